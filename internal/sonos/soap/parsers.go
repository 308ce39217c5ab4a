package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Response is a successfully parsed action response body.
type Response struct {
	payload []byte
}

// ParseResponse checks that payload is well-formed XML and wraps it for querying.
func ParseResponse(payload []byte) (*Response, error) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	sawElement := false
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed response: %w", err)
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
	if !sawElement {
		return nil, errors.New("malformed response: no root element")
	}
	return &Response{payload: payload}, nil
}

// Text returns the trimmed text of the first element with the given local
// name, or "" when absent.
func (r *Response) Text(element string) string {
	value, _ := r.Lookup(element)
	return value
}

// RawText returns the untrimmed text of the first element with the given
// local name.
func (r *Response) RawText(element string) string {
	value, _ := r.lookup(element, false)
	return value
}

// Lookup is like Text but reports whether the element was present.
func (r *Response) Lookup(element string) (string, bool) {
	return r.lookup(element, true)
}

func (r *Response) lookup(element string, trim bool) (string, bool) {
	decoder := xml.NewDecoder(bytes.NewReader(r.payload))
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == element {
				var value string
				if err := decoder.DecodeElement(&value, &se); err == nil {
					if trim {
						value = strings.TrimSpace(value)
					}
					return value, true
				}
				return "", false
			}
		}
	}
	return "", false
}

// Int parses the named element as an integer.
func (r *Response) Int(element string) (int, bool) {
	value, ok := r.Lookup(element)
	if !ok || value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseTransportInfo(resp *Response) TransportInfo {
	return TransportInfo{
		CurrentTransportState:  resp.Text("CurrentTransportState"),
		CurrentTransportStatus: resp.Text("CurrentTransportStatus"),
		CurrentSpeed:           resp.Text("CurrentSpeed"),
	}
}

func parseMediaInfo(resp *Response) MediaInfo {
	nrTracks, _ := resp.Int("NrTracks")

	return MediaInfo{
		NrTracks:           nrTracks,
		MediaDuration:      resp.Text("MediaDuration"),
		CurrentURI:         resp.Text("CurrentURI"),
		CurrentURIMetaData: resp.RawText("CurrentURIMetaData"),
	}
}

func parseVolumeRange(resp *Response) VolumeRange {
	minValue, okMin := resp.Int("MinValue")
	maxValue, okMax := resp.Int("MaxValue")
	if !okMin || !okMax || minValue > maxValue {
		return DefaultVolumeRange
	}
	return VolumeRange{Min: minValue, Max: maxValue}
}
