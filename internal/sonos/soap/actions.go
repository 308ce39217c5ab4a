package soap

import (
	"context"
	"strconv"
)

// ErrorCodeNotActionable is the UPnP code some firmware returns for
// GetVolumeRange; it means "use the default range".
const ErrorCodeNotActionable = 401

const instanceID = "0"

// Transport actions

func (c *Client) GetTransportInfo(ctx context.Context, controlURL string) (TransportInfo, error) {
	resp, err := c.Invoke(ctx, controlURL, ServiceAVTransport, "GetTransportInfo", []Arg{
		{Name: "InstanceID", Value: instanceID},
	})
	if err != nil {
		return TransportInfo{}, err
	}
	return parseTransportInfo(resp), nil
}

func (c *Client) GetMediaInfo(ctx context.Context, controlURL string) (MediaInfo, error) {
	resp, err := c.Invoke(ctx, controlURL, ServiceAVTransport, "GetMediaInfo", []Arg{
		{Name: "InstanceID", Value: instanceID},
	})
	if err != nil {
		return MediaInfo{}, err
	}
	return parseMediaInfo(resp), nil
}

func (c *Client) SetAVTransportURI(ctx context.Context, controlURL, uri, metadata string) error {
	_, err := c.Invoke(ctx, controlURL, ServiceAVTransport, "SetAVTransportURI", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "CurrentURI", Value: uri},
		{Name: "CurrentURIMetaData", Value: metadata},
	})
	return err
}

// Play starts playback at normal speed.
func (c *Client) Play(ctx context.Context, controlURL string) error {
	_, err := c.Invoke(ctx, controlURL, ServiceAVTransport, "Play", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Speed", Value: "1"},
	})
	return err
}

func (c *Client) Stop(ctx context.Context, controlURL string) error {
	_, err := c.Invoke(ctx, controlURL, ServiceAVTransport, "Stop", []Arg{
		{Name: "InstanceID", Value: instanceID},
	})
	return err
}

// Rendering control actions

func (c *Client) GetVolume(ctx context.Context, controlURL string) (int, error) {
	resp, err := c.Invoke(ctx, controlURL, ServiceRenderingControl, "GetVolume", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Channel", Value: "Master"},
	})
	if err != nil {
		return 0, err
	}
	volume, _ := resp.Int("CurrentVolume")
	return volume, nil
}

// SetVolume clamps volume into volumeRange before sending it.
func (c *Client) SetVolume(ctx context.Context, controlURL string, volume int, volumeRange VolumeRange) error {
	volume = volumeRange.Clamp(volume)
	_, err := c.Invoke(ctx, controlURL, ServiceRenderingControl, "SetVolume", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Channel", Value: "Master"},
		{Name: "DesiredVolume", Value: strconv.Itoa(volume)},
	})
	return err
}

// GetVolumeRange returns the device's volume bounds. A fault carrying
// ErrorCodeNotActionable, or a response without usable bounds, yields
// DefaultVolumeRange. Other faults are returned.
func (c *Client) GetVolumeRange(ctx context.Context, controlURL string) (VolumeRange, error) {
	resp, err := c.Invoke(ctx, controlURL, ServiceRenderingControl, "GetVolumeRange", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Channel", Value: "Master"},
	})
	if err != nil {
		if HasFaultCode(err, ErrorCodeNotActionable) {
			return DefaultVolumeRange, nil
		}
		return VolumeRange{}, err
	}
	return parseVolumeRange(resp), nil
}
