package discovery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-player-go/internal/sonos/soap"
)

const volumeRangeFault = `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault>
<detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0"><errorCode>%CODE%</errorCode></UPnPError></detail>
</s:Fault></s:Body></s:Envelope>`

type fakeDescriptionServer struct {
	description     string
	descStatus      int
	rangeStatus     int
	rangeBody       string
	rangeRequests   int
	rangeSOAPAction string
}

func (f *fakeDescriptionServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xml/device_description.xml":
			if f.descStatus != 0 {
				w.WriteHeader(f.descStatus)
			}
			_, _ = io.WriteString(w, f.description)
		case "/MediaRenderer/RenderingControl/Control":
			f.rangeRequests++
			f.rangeSOAPAction = r.Header.Get("SOAPACTION")
			if f.rangeStatus != 0 {
				w.WriteHeader(f.rangeStatus)
			}
			_, _ = io.WriteString(w, f.rangeBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func rangeResponse(minValue, maxValue string) string {
	return `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		`<u:GetVolumeRangeResponse xmlns:u="urn:schemas-upnp-org:service:RenderingControl:1">` +
		`<MinValue>` + minValue + `</MinValue><MaxValue>` + maxValue + `</MaxValue>` +
		`</u:GetVolumeRangeResponse></s:Body></s:Envelope>`
}

func newTestResolver() *Resolver {
	return NewResolver(time.Second, soap.NewClient(time.Second))
}

func TestResolve_ControllableDevice(t *testing.T) {
	fake := &fakeDescriptionServer{description: sonosDescription, rangeBody: rangeResponse("0", "80")}
	server := fake.start(t)
	location := server.URL + "/xml/device_description.xml"

	device, err := newTestResolver().Resolve(context.Background(), location)
	require.NoError(t, err)
	require.NotNil(t, device)

	require.Equal(t, "48:A6:B8:00:00:01", device.ID)
	require.Equal(t, "192.168.1.20 - Sonos One - RINCON_48A6B8000001400", device.Name)
	require.Equal(t, location, device.Location)
	require.Equal(t, server.URL+"/MediaRenderer/AVTransport/Control", device.AVTransportURL)
	require.Equal(t, server.URL+"/MediaRenderer/RenderingControl/Control", device.RenderingControlURL)
	require.Equal(t, soap.VolumeRange{Min: 0, Max: 80}, device.VolumeRange)
	require.Equal(t, "127.0.0.1", device.HostIP)
	require.True(t, device.SupportsVolume())
	require.Equal(t, `"urn:schemas-upnp-org:service:RenderingControl:1#GetVolumeRange"`, fake.rangeSOAPAction)
}

func TestResolve_NameAndIDFallbacks(t *testing.T) {
	description := strings.NewReplacer(
		"<friendlyName>192.168.1.20 - Sonos One - RINCON_48A6B8000001400</friendlyName>", "",
		"<friendlyName>Living Room - Sonos One Media Renderer</friendlyName>", "",
		"<MACAddress>48:A6:B8:00:00:01</MACAddress>", "",
	).Replace(sonosDescription)
	fake := &fakeDescriptionServer{description: description, rangeBody: rangeResponse("0", "100")}
	server := fake.start(t)
	location := server.URL + "/xml/device_description.xml"

	device, err := newTestResolver().Resolve(context.Background(), location)
	require.NoError(t, err)
	require.NotNil(t, device)
	require.Equal(t, location, device.Name)
	require.Equal(t, "RINCON_48A6B8000001400", device.ID)
}

func TestResolve_MissingServiceIsAbsent(t *testing.T) {
	description := strings.Replace(sonosDescription,
		"urn:schemas-upnp-org:service:AVTransport:1", "urn:schemas-upnp-org:service:Queue:1", 1)
	fake := &fakeDescriptionServer{description: description, rangeBody: rangeResponse("0", "100")}
	server := fake.start(t)

	device, err := newTestResolver().Resolve(context.Background(), server.URL+"/xml/device_description.xml")
	require.NoError(t, err)
	require.Nil(t, device)
	require.Zero(t, fake.rangeRequests)
}

func TestResolve_VolumeRangeNotActionableUsesDefault(t *testing.T) {
	fake := &fakeDescriptionServer{
		description: sonosDescription,
		rangeStatus: http.StatusInternalServerError,
		rangeBody:   strings.Replace(volumeRangeFault, "%CODE%", "401", 1),
	}
	server := fake.start(t)

	device, err := newTestResolver().Resolve(context.Background(), server.URL+"/xml/device_description.xml")
	require.NoError(t, err)
	require.NotNil(t, device)
	require.Equal(t, soap.DefaultVolumeRange, device.VolumeRange)
}

func TestResolve_VolumeRangeOtherFaultPropagates(t *testing.T) {
	fake := &fakeDescriptionServer{
		description: sonosDescription,
		rangeStatus: http.StatusInternalServerError,
		rangeBody:   strings.Replace(volumeRangeFault, "%CODE%", "501", 1),
	}
	server := fake.start(t)

	_, err := newTestResolver().Resolve(context.Background(), server.URL+"/xml/device_description.xml")
	require.Error(t, err)
	require.True(t, soap.HasFaultCode(err, 501))

	var descErr *DescriptionError
	require.False(t, errors.As(err, &descErr))
}

func TestResolve_DescriptionHTTPError(t *testing.T) {
	fake := &fakeDescriptionServer{description: "gone", descStatus: http.StatusNotFound}
	server := fake.start(t)

	_, err := newTestResolver().Resolve(context.Background(), server.URL+"/xml/device_description.xml")
	var descErr *DescriptionError
	require.True(t, errors.As(err, &descErr))
	require.Equal(t, http.StatusNotFound, descErr.StatusCode)
}

func TestResolve_MalformedDescription(t *testing.T) {
	fake := &fakeDescriptionServer{description: "<root xmlns=\"urn:schemas-upnp-org:device-1-0\"><device>"}
	server := fake.start(t)

	_, err := newTestResolver().Resolve(context.Background(), server.URL+"/xml/device_description.xml")
	var descErr *DescriptionError
	require.True(t, errors.As(err, &descErr))
}

func TestResolveControlURL(t *testing.T) {
	origin := mustOrigin(t, "http://10.0.0.5:1400/xml/device_description.xml")

	got, err := resolveControlURL(origin, "/MediaRenderer/AVTransport/Control")
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:1400/MediaRenderer/AVTransport/Control", got)

	got, err = resolveControlURL(origin, "upnp/control/rendertransport1")
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:1400/upnp/control/rendertransport1", got)

	got, err = resolveControlURL(origin, "http://10.0.0.6:49152/ctl")
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.6:49152/ctl", got)
}
