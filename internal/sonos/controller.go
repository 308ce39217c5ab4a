package sonos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/strefethen/sonos-player-go/internal/discovery"
	"github.com/strefethen/sonos-player-go/internal/sonos/soap"
)

const (
	defaultStartTimeout = 5 * time.Second
	defaultPollInterval = time.Second
)

// ErrCompletionTimeout is returned when devices are still playing the clip
// after the configured completion ceiling. Restoration has already run.
var ErrCompletionTimeout = errors.New("clip did not finish before completion timeout")

// ValidationError reports bad play input. It is returned before any device
// is contacted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SourceFunc returns the URL a device should play.
type SourceFunc func(device discovery.Device) string

// PlayOptions configures a single play.
type PlayOptions struct {
	// Volume is a fraction of each device's range, 0 through 1.
	Volume       float64
	Title        string
	MimeType     string
	StartTimeout time.Duration
}

func (o PlayOptions) withDefaults() PlayOptions {
	if o.Title == "" {
		o.Title = defaultTitle
	}
	if o.MimeType == "" {
		o.MimeType = defaultMimeType
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = defaultStartTimeout
	}
	return o
}

// RestoreOutcome is the restoration result for one device.
type RestoreOutcome struct {
	DeviceID string
	// SourceRestored is false when the device had no prior source to return to.
	SourceRestored bool
	Err            error
}

// PlayResult describes a finished play. It is populated even when PlayOn
// returns an error.
type PlayResult struct {
	DeviceIDs []string
	Sources   map[string]string
	// Elapsed covers starting playback through completion; restoration is excluded.
	Elapsed time.Duration
	Restore []RestoreOutcome
}

// RestoreFailures returns the outcomes that carry an error.
func (r PlayResult) RestoreFailures() []RestoreOutcome {
	var failed []RestoreOutcome
	for _, outcome := range r.Restore {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// ControllerOptions tunes polling behaviour.
type ControllerOptions struct {
	PollInterval time.Duration
	// CompletionTimeout bounds the wait for the clip to finish. Zero waits
	// until every device reports it has stopped or moved on.
	CompletionTimeout time.Duration
}

type snapshot struct {
	state  TransportState
	volume int
}

// Controller owns the device inventory and drives plays across it.
//
// Calls to PlayOn that target overlapping device sets must be serialized by
// the caller (see DeviceSetLock); concurrent snapshot/restore pairs on the
// same device would restore each other's intermediate state.
type Controller struct {
	devices           []discovery.Device
	index             map[string]int
	client            *soap.Client
	logger            *log.Logger
	pollInterval      time.Duration
	completionTimeout time.Duration
}

// NewController creates a controller over an already resolved inventory.
func NewController(devices []discovery.Device, client *soap.Client, options ControllerOptions, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	if options.PollInterval <= 0 {
		options.PollInterval = defaultPollInterval
	}
	index := make(map[string]int, len(devices))
	for i, device := range devices {
		index[device.ID] = i
	}
	return &Controller{
		devices:           append([]discovery.Device(nil), devices...),
		index:             index,
		client:            client,
		logger:            logger,
		pollInterval:      options.PollInterval,
		completionTimeout: options.CompletionTimeout,
	}
}

// Devices returns a copy of the inventory in discovery order.
func (c *Controller) Devices() []discovery.Device {
	return append([]discovery.Device(nil), c.devices...)
}

// Device looks up a device by id.
func (c *Controller) Device(id string) (discovery.Device, bool) {
	i, ok := c.index[id]
	if !ok {
		return discovery.Device{}, false
	}
	return c.devices[i], true
}

// Select returns the devices named by ids in inventory order. A nil slice
// selects every device; unknown ids are ignored.
func (c *Controller) Select(ids []string) []discovery.Device {
	if ids == nil {
		return c.Devices()
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	selected := make([]discovery.Device, 0, len(ids))
	for _, device := range c.devices {
		if _, ok := wanted[device.ID]; ok {
			selected = append(selected, device)
		}
	}
	return selected
}

// PlayURL plays the same absolute URL on every selected device.
func (c *Controller) PlayURL(ctx context.Context, deviceIDs []string, url string, options PlayOptions) (PlayResult, error) {
	return c.PlayOn(ctx, deviceIDs, func(discovery.Device) string { return url }, options)
}

// PlayHosted plays content served by this process. Each device fetches it
// from its own outbound-facing host address at port and path.
func (c *Controller) PlayHosted(ctx context.Context, deviceIDs []string, port int, path string, options PlayOptions) (PlayResult, error) {
	return c.PlayOn(ctx, deviceIDs, func(device discovery.Device) string {
		return HostedURL(device, port, path)
	}, options)
}

// HostedURL is the address device uses to fetch content hosted on port and path.
func HostedURL(device discovery.Device, port int, path string) string {
	if device.HostIP == "" {
		return ""
	}
	return "http://" + net.JoinHostPort(device.HostIP, strconv.Itoa(port)) + path
}

// PlayOn snapshots every selected device, starts the clip, waits for it to
// start and finish, then restores each device to its snapshot. Restoration
// runs on every path after the snapshot succeeds; errors from the start and
// wait phases are returned after it completes.
//
// Cancelling ctx interrupts polling. Restoration still runs, detached from
// the cancellation.
func (c *Controller) PlayOn(ctx context.Context, deviceIDs []string, source SourceFunc, options PlayOptions) (PlayResult, error) {
	options = options.withDefaults()
	result := PlayResult{Sources: map[string]string{}}

	if math.IsNaN(options.Volume) || options.Volume < 0 || options.Volume > 1 {
		return result, &ValidationError{Field: "volume", Message: fmt.Sprintf("must be in [0, 1], got %v", options.Volume)}
	}

	targets := c.Select(deviceIDs)
	urls := make([]string, len(targets))
	for i, device := range targets {
		urls[i] = source(device)
		if urls[i] == "" {
			return result, &ValidationError{Field: "url", Message: "no source for device " + device.ID}
		}
		result.DeviceIDs = append(result.DeviceIDs, device.ID)
		result.Sources[device.ID] = urls[i]
	}
	if len(targets) == 0 {
		return result, nil
	}

	snapshots, err := c.snapshot(ctx, targets)
	if err != nil {
		return result, err
	}

	started := time.Now()
	playErr := c.play(ctx, targets, urls, options)
	result.Elapsed = time.Since(started)

	result.Restore = c.restore(context.WithoutCancel(ctx), targets, snapshots)
	return result, playErr
}

func (c *Controller) snapshot(ctx context.Context, targets []discovery.Device) ([]snapshot, error) {
	snapshots := make([]snapshot, 0, len(targets))
	for _, device := range targets {
		state, err := ReadState(ctx, c.client, device)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", device.ID, err)
		}
		volume, err := c.client.GetVolume(ctx, device.RenderingControlURL)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: volume: %w", device.ID, err)
		}
		c.logger.Printf("Snapshot %s: %s, volume %d", device.ID, state, volume)
		snapshots = append(snapshots, snapshot{state: state, volume: volume})
	}
	return snapshots, nil
}

func (c *Controller) play(ctx context.Context, targets []discovery.Device, urls []string, options PlayOptions) error {
	for i, device := range targets {
		if err := c.start(ctx, device, urls[i], options); err != nil {
			return fmt.Errorf("start %s: %w", device.ID, err)
		}
	}
	if err := c.waitForStart(ctx, targets, urls, options.StartTimeout); err != nil {
		return err
	}
	return c.waitForCompletion(ctx, targets, urls)
}

// start issues stop, volume, source and play in that order.
func (c *Controller) start(ctx context.Context, device discovery.Device, url string, options PlayOptions) error {
	if err := c.client.Stop(ctx, device.AVTransportURL); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	volume := ScaleVolume(options.Volume, device.VolumeRange)
	if err := c.client.SetVolume(ctx, device.RenderingControlURL, volume, device.VolumeRange); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	metadata := BuildDidlMetadata(url, options.Title, options.MimeType)
	if err := c.client.SetAVTransportURI(ctx, device.AVTransportURL, url, metadata); err != nil {
		return fmt.Errorf("set source: %w", err)
	}
	if err := c.client.Play(ctx, device.AVTransportURL); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// ScaleVolume maps a fraction onto a device range.
func ScaleVolume(fraction float64, volumeRange soap.VolumeRange) int {
	fraction = math.Max(0, math.Min(1, fraction))
	return int(math.Round(fraction*float64(volumeRange.Max-volumeRange.Min))) + volumeRange.Min
}

// waitForStart polls until every device reports its assigned source or the
// timeout elapses. Devices that never switch do not fail the play.
func (c *Controller) waitForStart(ctx context.Context, targets []discovery.Device, urls []string, timeout time.Duration) error {
	iterations := int(math.Ceil(float64(timeout) / float64(c.pollInterval)))
	switched := make([]bool, len(targets))

	for iteration := 0; iteration < iterations; iteration++ {
		pending := false
		for i, device := range targets {
			if switched[i] {
				continue
			}
			state, err := ReadState(ctx, c.client, device)
			if err != nil {
				return fmt.Errorf("poll %s: %w", device.ID, err)
			}
			if state.URI == urls[i] {
				switched[i] = true
				continue
			}
			pending = true
		}
		if !pending {
			return nil
		}
		if err := sleep(ctx, c.pollInterval); err != nil {
			return err
		}
	}

	for i, device := range targets {
		if !switched[i] {
			c.logger.Printf("Device %s did not switch source within %s", device.ID, timeout)
		}
	}
	return nil
}

// waitForCompletion polls until every device has moved off its assigned
// source or left the playing/transitioning states.
func (c *Controller) waitForCompletion(ctx context.Context, targets []discovery.Device, urls []string) error {
	var deadline time.Time
	if c.completionTimeout > 0 {
		deadline = time.Now().Add(c.completionTimeout)
	}
	done := make([]bool, len(targets))

	for {
		pending := false
		for i, device := range targets {
			if done[i] {
				continue
			}
			state, err := ReadState(ctx, c.client, device)
			if err != nil {
				return fmt.Errorf("poll %s: %w", device.ID, err)
			}
			if state.URI != urls[i] || !state.Status.Active() {
				done[i] = true
				continue
			}
			pending = true
		}
		if !pending {
			return nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrCompletionTimeout
		}
		if err := sleep(ctx, c.pollInterval); err != nil {
			return err
		}
	}
}

func (c *Controller) restore(ctx context.Context, targets []discovery.Device, snapshots []snapshot) []RestoreOutcome {
	outcomes := make([]RestoreOutcome, 0, len(targets))
	for i, device := range targets {
		restored, err := c.restoreDevice(ctx, device, snapshots[i])
		if err != nil {
			c.logger.Printf("Restore failed for %s: %v", device.ID, err)
		}
		outcomes = append(outcomes, RestoreOutcome{DeviceID: device.ID, SourceRestored: restored, Err: err})
	}
	return outcomes
}

func (c *Controller) restoreDevice(ctx context.Context, device discovery.Device, snap snapshot) (bool, error) {
	volume := soap.DefaultVolumeRange.Clamp(snap.volume)
	if err := c.client.SetVolume(ctx, device.RenderingControlURL, volume, device.VolumeRange); err != nil {
		return false, fmt.Errorf("set volume: %w", err)
	}
	if snap.state.URI == "" {
		return false, nil
	}
	if err := c.client.SetAVTransportURI(ctx, device.AVTransportURL, snap.state.URI, snap.state.Metadata); err != nil {
		return false, fmt.Errorf("set source: %w", err)
	}
	if snap.state.Playing() {
		if err := c.client.Play(ctx, device.AVTransportURL); err != nil {
			return false, fmt.Errorf("play: %w", err)
		}
	} else if err := c.client.Stop(ctx, device.AVTransportURL); err != nil {
		return false, fmt.Errorf("stop: %w", err)
	}
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
