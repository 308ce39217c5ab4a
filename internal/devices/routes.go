package devices

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/sonos-player-go/internal/api"
	"github.com/strefethen/sonos-player-go/internal/apperrors"
	"github.com/strefethen/sonos-player-go/internal/discovery"
)

// Inventory lists the devices resolved at startup. *sonos.Controller
// satisfies it.
type Inventory interface {
	Devices() []discovery.Device
}

// RegisterRoutes wires device routes to the router.
func RegisterRoutes(router chi.Router, inventory Inventory, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}

	router.Method(http.MethodGet, "/v1/devices", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		devices := inventory.Devices()
		formatted := make([]map[string]any, 0, len(devices))
		for _, device := range devices {
			formatted = append(formatted, formatDevice(device))
		}
		return api.WriteList(w, "/v1/devices", formatted, false)
	}))

	router.Method(http.MethodGet, "/v1/devices/{device_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		deviceID := chi.URLParam(r, "device_id")

		device := findDevice(inventory.Devices(), logger, deviceID)
		if device == nil {
			return apperrors.NewAppError(apperrors.ErrorCodeDeviceNotFound, "Device not found: "+deviceID, http.StatusNotFound, map[string]any{
				"device_id": deviceID,
			})
		}

		return api.WriteResource(w, http.StatusOK, formatDevice(*device))
	}))
}

func formatDevice(device discovery.Device) map[string]any {
	return map[string]any{
		"object":                   "device",
		"id":                       device.ID,
		"name":                     device.Name,
		"udn":                      device.UDN,
		"location":                 device.Location,
		"av_transport_control_url": device.AVTransportURL,
		"rendering_control_url":    device.RenderingControlURL,
		"has_volume_control":       device.SupportsVolume(),
		"volume_min":               device.VolumeRange.Min,
		"volume_max":               device.VolumeRange.Max,
		"host_ip":                  device.HostIP,
	}
}
