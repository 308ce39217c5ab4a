package sonos

import (
	"bytes"
	"encoding/xml"
	"strings"
)

const (
	defaultTitle    = "Audio Clip"
	defaultMimeType = "audio/mpeg"
	audioItemClass  = "object.item.audioItem.musicTrack"
)

// ClipMetadata is the descriptive payload sent alongside a play source.
type ClipMetadata struct {
	Title    string
	Class    string
	URI      string
	MimeType string
}

// BuildDidlMetadata renders the DIDL-Lite fragment for a single audio item.
func BuildDidlMetadata(uri, title, mimeType string) string {
	var b strings.Builder
	b.WriteString(`<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/"`)
	b.WriteString(` xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"`)
	b.WriteString(` xmlns:r="urn:schemas-rinconnetworks-com:metadata-1-0/"`)
	b.WriteString(` xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">`)
	b.WriteString(`<item id="00000000" parentID="00000000" restricted="true">`)
	b.WriteString(`<dc:title>`)
	b.WriteString(escapeXML(title))
	b.WriteString(`</dc:title>`)
	b.WriteString(`<upnp:class>` + audioItemClass + `</upnp:class>`)
	b.WriteString(`<res protocolInfo="http-get:*:`)
	b.WriteString(escapeXML(mimeType))
	b.WriteString(`:*">`)
	b.WriteString(escapeXML(uri))
	b.WriteString(`</res>`)
	b.WriteString(`</item></DIDL-Lite>`)
	return b.String()
}

// ParseDidlMetadata reads the first item of a DIDL-Lite fragment. It returns
// nil when the fragment is empty or carries no item.
func ParseDidlMetadata(didlXML string) *ClipMetadata {
	if strings.TrimSpace(didlXML) == "" || didlXML == "NOT_IMPLEMENTED" {
		return nil
	}

	decoder := xml.NewDecoder(bytes.NewReader([]byte(didlXML)))
	var currentElement string
	var inItem bool
	item := &ClipMetadata{}

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		switch elem := token.(type) {
		case xml.StartElement:
			local := elem.Name.Local
			if local == "item" {
				inItem = true
				continue
			}
			if !inItem {
				continue
			}
			currentElement = local
			if local == "res" && item.MimeType == "" {
				for _, attr := range elem.Attr {
					if attr.Name.Local == "protocolInfo" {
						item.MimeType = mimeFromProtocolInfo(attr.Value)
					}
				}
			}
		case xml.EndElement:
			if !inItem {
				continue
			}
			currentElement = ""
			if elem.Name.Local == "item" {
				return item
			}
		case xml.CharData:
			if !inItem {
				continue
			}
			switch currentElement {
			case "title":
				item.Title += string(elem)
			case "class":
				item.Class += strings.TrimSpace(string(elem))
			case "res":
				item.URI += string(elem)
			}
		}
	}

	if *item == (ClipMetadata{}) {
		return nil
	}
	return item
}

// mimeFromProtocolInfo extracts the content format from "proto:network:format:info".
func mimeFromProtocolInfo(protocolInfo string) string {
	parts := strings.SplitN(protocolInfo, ":", 4)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

func escapeXML(input string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(input))
	return b.String()
}
