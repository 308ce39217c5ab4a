package devices

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-player-go/internal/discovery"
	"github.com/strefethen/sonos-player-go/internal/sonos/soap"
)

type staticInventory []discovery.Device

func (s staticInventory) Devices() []discovery.Device { return s }

func newTestRouter() chi.Router {
	router := chi.NewRouter()
	RegisterRoutes(router, staticInventory{
		{
			ID:                  "48:A6:B8:00:00:01",
			Name:                "Kitchen",
			Location:            "http://10.0.0.20:1400/xml/device_description.xml",
			AVTransportURL:      "http://10.0.0.20:1400/MediaRenderer/AVTransport/Control",
			RenderingControlURL: "http://10.0.0.20:1400/MediaRenderer/RenderingControl/Control",
			VolumeRange:         soap.VolumeRange{Min: 0, Max: 80},
			HostIP:              "10.0.0.5",
		},
		{
			ID:             "48:A6:B8:00:00:02",
			Name:           "Patio",
			AVTransportURL: "http://10.0.0.21:1400/MediaRenderer/AVTransport/Control",
			VolumeRange:    soap.DefaultVolumeRange,
		},
	}, log.New(io.Discard, "", 0))
	return router
}

func TestListDevices(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Object string           `json:"object"`
		Data   []map[string]any `json:"data"`
		URL    string           `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, "list", list.Object)
	require.Equal(t, "/v1/devices", list.URL)
	require.Len(t, list.Data, 2)
	require.Equal(t, "Kitchen", list.Data[0]["name"])
	require.Equal(t, true, list.Data[0]["has_volume_control"])
	require.Equal(t, float64(80), list.Data[0]["volume_max"])
	require.Equal(t, false, list.Data[1]["has_volume_control"])
}

func TestGetDevice(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices/48:A6:B8:00:00:02", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Patio"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices/kitchen", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"48:A6:B8:00:00:01"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices/attic", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "DEVICE_NOT_FOUND")
}
