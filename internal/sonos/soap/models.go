package soap

// TransportInfo mirrors the GetTransportInfo response.
type TransportInfo struct {
	CurrentTransportState  string
	CurrentTransportStatus string
	CurrentSpeed           string
}

// MediaInfo mirrors the GetMediaInfo response.
type MediaInfo struct {
	NrTracks           int
	MediaDuration      string
	CurrentURI         string
	CurrentURIMetaData string
}

// VolumeRange is the inclusive volume range reported by a device.
type VolumeRange struct {
	Min int
	Max int
}

// DefaultVolumeRange is used when a device does not report its range.
var DefaultVolumeRange = VolumeRange{Min: 0, Max: 100}

// Clamp limits volume to the range.
func (r VolumeRange) Clamp(volume int) int {
	if volume < r.Min {
		return r.Min
	}
	if volume > r.Max {
		return r.Max
	}
	return volume
}
