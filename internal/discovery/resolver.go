package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/strefethen/sonos-player-go/internal/sonos/soap"
)

// Device is a resolved, controllable media renderer. Devices are immutable
// once resolved.
type Device struct {
	ID                  string
	MACAddress          string
	UDN                 string
	Name                string
	Location            string
	AVTransportURL      string
	RenderingControlURL string
	VolumeRange         soap.VolumeRange
	// HostIP is the local address this process is reachable at from the device.
	HostIP string
}

// SupportsVolume reports whether the device exposes rendering control.
func (d Device) SupportsVolume() bool {
	return d.RenderingControlURL != ""
}

// DescriptionError is returned when a description document cannot be fetched
// or parsed.
type DescriptionError struct {
	Location   string
	StatusCode int
	Err        error
}

func (e *DescriptionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("device description %s: http %d", e.Location, e.StatusCode)
	}
	return fmt.Sprintf("device description %s: %v", e.Location, e.Err)
}

func (e *DescriptionError) Unwrap() error {
	return e.Err
}

// Resolver turns SSDP locations into Devices.
type Resolver struct {
	httpClient *http.Client
	soapClient *soap.Client
	localIP    func(host string) (string, error)
}

// NewResolver creates a Resolver that fetches descriptions with the given
// timeout and queries volume bounds through soapClient.
func NewResolver(timeout time.Duration, soapClient *soap.Client) *Resolver {
	return &Resolver{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				TLSHandshakeTimeout: timeout,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		soapClient: soapClient,
		localIP:    LocalIPFor,
	}
}

// Resolve fetches and interprets the description at location. It returns
// nil, nil when the device lacks AVTransport or RenderingControl.
func (r *Resolver) Resolve(ctx context.Context, location string) (*Device, error) {
	base, err := url.Parse(location)
	if err != nil || base.Host == "" {
		return nil, &DescriptionError{Location: location, Err: fmt.Errorf("bad location url")}
	}

	body, err := r.fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	desc, err := ParseDeviceDescription(body)
	if err != nil {
		return nil, &DescriptionError{Location: location, Err: err}
	}

	origin := &url.URL{Scheme: base.Scheme, Host: base.Host}
	transport, okTransport := desc.FindService(soap.AVTransportPrefix)
	rendering, okRendering := desc.FindService(soap.RenderingControlPrefix)
	if !okTransport || !okRendering {
		return nil, nil
	}

	transportURL, err := resolveControlURL(origin, transport.ControlURL)
	if err != nil {
		return nil, &DescriptionError{Location: location, Err: err}
	}
	renderingURL, err := resolveControlURL(origin, rendering.ControlURL)
	if err != nil {
		return nil, &DescriptionError{Location: location, Err: err}
	}

	volumeRange, err := r.soapClient.GetVolumeRange(ctx, renderingURL)
	if err != nil {
		return nil, fmt.Errorf("volume range for %s: %w", location, err)
	}

	hostIP, err := r.localIP(base.Hostname())
	if err != nil {
		return nil, fmt.Errorf("local address for %s: %w", location, err)
	}

	name := desc.FriendlyName
	if name == "" {
		name = location
	}

	return &Device{
		ID:                  deviceID(desc),
		MACAddress:          desc.MACAddress,
		UDN:                 desc.UDN,
		Name:                name,
		Location:            location,
		AVTransportURL:      transportURL,
		RenderingControlURL: renderingURL,
		VolumeRange:         volumeRange,
		HostIP:              hostIP,
	}, nil
}

func (r *Resolver) fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &DescriptionError{Location: location, Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &DescriptionError{Location: location, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DescriptionError{Location: location, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DescriptionError{Location: location, Err: err}
	}
	return body, nil
}

func resolveControlURL(origin *url.URL, controlPath string) (string, error) {
	ref, err := url.Parse(controlPath)
	if err != nil {
		return "", fmt.Errorf("bad control url %q: %w", controlPath, err)
	}
	return origin.ResolveReference(ref).String(), nil
}

// deviceID prefers the hardware address and falls back to the root UDN.
func deviceID(desc *DeviceDescription) string {
	if desc.MACAddress != "" {
		return desc.MACAddress
	}
	return desc.UDN
}

// LocalIPFor returns the local address the OS would use to reach host.
// Connecting a UDP socket sends nothing but fixes the outgoing interface.
func LocalIPFor(host string) (string, error) {
	conn, err := net.Dial("udp4", net.JoinHostPort(host, "1234"))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address %v", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
