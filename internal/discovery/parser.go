package discovery

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// deviceNamespace is the namespace of UPnP device description documents.
const deviceNamespace = "urn:schemas-upnp-org:device-1-0"

// DeviceDescription holds the parts of a device description document used to
// build a Device.
type DeviceDescription struct {
	FriendlyName string
	MACAddress   string
	UDN          string
	Services     []ServiceEntry
}

// ServiceEntry is one serviceList/service element, from the root device or any
// embedded device.
type ServiceEntry struct {
	ServiceType string `xml:"urn:schemas-upnp-org:device-1-0 serviceType"`
	ServiceID   string `xml:"urn:schemas-upnp-org:device-1-0 serviceId"`
	ControlURL  string `xml:"urn:schemas-upnp-org:device-1-0 controlURL"`
}

// ParseDeviceDescription parses a device description. Malformed XML is an error.
func ParseDeviceDescription(xmlPayload []byte) (*DeviceDescription, error) {
	decoder := xml.NewDecoder(bytes.NewReader(xmlPayload))
	var desc DeviceDescription
	sawRoot := false

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse device description: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if se.Name.Space != deviceNamespace {
			continue
		}

		switch se.Name.Local {
		case "friendlyName", "MACAddress", "UDN":
			// Only the first occurrence counts: the root device precedes
			// embedded devices in document order.
			var value string
			if err := decoder.DecodeElement(&value, &se); err != nil {
				return nil, fmt.Errorf("parse device description: %w", err)
			}
			value = strings.TrimSpace(value)
			switch se.Name.Local {
			case "friendlyName":
				if desc.FriendlyName == "" {
					desc.FriendlyName = value
				}
			case "MACAddress":
				if desc.MACAddress == "" {
					desc.MACAddress = value
				}
			case "UDN":
				if desc.UDN == "" {
					desc.UDN = strings.TrimPrefix(value, "uuid:")
				}
			}
		case "service":
			var entry ServiceEntry
			if err := decoder.DecodeElement(&entry, &se); err != nil {
				return nil, fmt.Errorf("parse device description: %w", err)
			}
			entry.ServiceType = strings.TrimSpace(entry.ServiceType)
			entry.ServiceID = strings.TrimSpace(entry.ServiceID)
			entry.ControlURL = strings.TrimSpace(entry.ControlURL)
			if entry.ServiceType == "" || entry.ControlURL == "" {
				continue
			}
			desc.Services = append(desc.Services, entry)
		}
	}

	if !sawRoot {
		return nil, errors.New("parse device description: empty document")
	}
	return &desc, nil
}

// FindService returns the first service whose type starts with prefix.
func (d *DeviceDescription) FindService(prefix string) (ServiceEntry, bool) {
	for _, service := range d.Services {
		if strings.HasPrefix(service.ServiceType, prefix) {
			return service, true
		}
	}
	return ServiceEntry{}, false
}
