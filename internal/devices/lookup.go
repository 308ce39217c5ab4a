package devices

import (
	"log"
	"strings"

	"github.com/strefethen/sonos-player-go/internal/discovery"
)

// findDevice looks up a device by ID or name.
// The lookup order is: ID → name (case-insensitive fallback)
func findDevice(devices []discovery.Device, logger *log.Logger, identifier string) *discovery.Device {
	for _, device := range devices {
		if device.ID == identifier {
			found := device
			return &found
		}
	}

	for _, device := range devices {
		if strings.EqualFold(device.Name, identifier) {
			logger.Printf("Device found by name fallback: requested=%s found=%s", identifier, device.ID)
			found := device
			return &found
		}
	}

	return nil
}
