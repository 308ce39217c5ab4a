package sonos

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/strefethen/sonos-player-go/internal/discovery"
	"github.com/strefethen/sonos-player-go/internal/sonos/soap"
)

// TransportStatus is the upper-cased transport state a device reports.
// Values outside the known set are kept verbatim.
type TransportStatus string

const (
	StatusStopped        TransportStatus = "STOPPED"
	StatusPlaying        TransportStatus = "PLAYING"
	StatusTransitioning  TransportStatus = "TRANSITIONING"
	StatusPausedPlayback TransportStatus = "PAUSED_PLAYBACK"
	StatusNoMediaPresent TransportStatus = "NO_MEDIA_PRESENT"
)

// ParseTransportStatus normalizes a raw device status.
func ParseTransportStatus(raw string) TransportStatus {
	return TransportStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// Known reports whether s is one of the statuses defined above.
func (s TransportStatus) Known() bool {
	switch s {
	case StatusStopped, StatusPlaying, StatusTransitioning, StatusPausedPlayback, StatusNoMediaPresent:
		return true
	}
	return false
}

// Active reports whether the device is rendering or about to render.
func (s TransportStatus) Active() bool {
	return s == StatusPlaying || s == StatusTransitioning
}

// TransportState is a point-in-time view of one device's transport.
type TransportState struct {
	Status   TransportStatus
	URI      string
	Metadata string
}

// Playing reports whether the device was actively playing.
func (s TransportState) Playing() bool {
	return s.Status == StatusPlaying
}

// String summarizes the state for logs.
func (s TransportState) String() string {
	status := string(s.Status)
	if !s.Status.Known() {
		status = "unrecognized status " + strconv.Quote(status)
	}
	if s.URI == "" {
		return status + ", no source"
	}
	if clip := ParseDidlMetadata(s.Metadata); clip != nil && clip.Title != "" {
		return fmt.Sprintf("%s, %q", status, clip.Title)
	}
	return status + ", " + s.URI
}

// ReadState queries transport status and the current media of a device.
func ReadState(ctx context.Context, client *soap.Client, device discovery.Device) (TransportState, error) {
	info, err := client.GetTransportInfo(ctx, device.AVTransportURL)
	if err != nil {
		return TransportState{}, fmt.Errorf("transport info: %w", err)
	}
	media, err := client.GetMediaInfo(ctx, device.AVTransportURL)
	if err != nil {
		return TransportState{}, fmt.Errorf("media info: %w", err)
	}
	return TransportState{
		Status:   ParseTransportStatus(info.CurrentTransportState),
		URI:      media.CurrentURI,
		Metadata: media.CurrentURIMetaData,
	}, nil
}
