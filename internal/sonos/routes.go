package sonos

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/sonos-player-go/internal/api"
	"github.com/strefethen/sonos-player-go/internal/apperrors"
	"github.com/strefethen/sonos-player-go/internal/auth"
	"github.com/strefethen/sonos-player-go/internal/history"
	"github.com/strefethen/sonos-player-go/internal/hosted"
	"github.com/strefethen/sonos-player-go/internal/sonos/soap"
)

// HostedAudioPath is the route renderers fetch hosted clips from.
const HostedAudioPath = "/v1/play_bytes_audio"

// MaxClipBytes bounds the body accepted by POST /v1/play_bytes.
const MaxClipBytes = 64 << 20

// PlayRecorder stores the outcome of play requests. history.Service
// satisfies it.
type PlayRecorder interface {
	Record(input history.RecordInput) (*history.PlayRecord, error)
}

// RouteOptions carries the dependencies of the play routes.
type RouteOptions struct {
	// BaseContext bounds every play. Plays ignore client disconnects; when
	// BaseContext is cancelled they stop waiting and restore their devices.
	BaseContext   context.Context
	Controller    *Controller
	Lock          *DeviceSetLock
	Store         *hosted.Store
	Recorder      PlayRecorder
	AdvertisePort int
	StartTimeout  time.Duration
	LockTimeout   time.Duration
	Logger        *log.Logger
}

type playRoutes struct {
	RouteOptions
}

// RegisterRoutes wires play routes to the router.
func RegisterRoutes(router chi.Router, options RouteOptions) {
	if options.Logger == nil {
		options.Logger = log.Default()
	}
	if options.BaseContext == nil {
		options.BaseContext = context.Background()
	}
	if options.Lock == nil {
		options.Lock = NewDeviceSetLock(options.Logger)
	}
	if options.Store == nil {
		options.Store = hosted.NewStore()
	}
	routes := &playRoutes{RouteOptions: options}

	router.Method(http.MethodPost, "/v1/play", api.Handler(routes.playURL))
	router.Method(http.MethodPost, "/v1/play_bytes", api.Handler(routes.playBytes))
	router.Method(http.MethodGet, HostedAudioPath, api.Handler(routes.hostedAudio))
	router.Method(http.MethodHead, HostedAudioPath, api.Handler(routes.hostedAudio))
}

// POST /v1/play?url=&volume=&device_ids=&title=&mime=
func (p *playRoutes) playURL(w http.ResponseWriter, r *http.Request) error {
	url := r.URL.Query().Get("url")
	if url == "" {
		return apperrors.NewValidationError("missing required field: url", map[string]any{"field": "url"})
	}
	volume, err := api.QueryFloat(r, "volume")
	if err != nil {
		return err
	}
	deviceIDs := api.QueryCSV(r, "device_ids")
	options := PlayOptions{
		Volume:       volume,
		Title:        api.QueryString(r, "title", defaultTitle),
		MimeType:     api.QueryString(r, "mime", defaultMimeType),
		StartTimeout: p.StartTimeout,
	}

	var result PlayResult
	started := time.Now()
	ctx := p.BaseContext
	err = p.Lock.WithLock(p.lockKeys(deviceIDs), p.LockTimeout, func() error {
		var playErr error
		result, playErr = p.Controller.PlayURL(ctx, deviceIDs, url, options)
		return playErr
	})
	p.record(r, history.KindURL, url, options, started, result, err)
	if err != nil {
		return playError(err)
	}

	return api.WriteAction(w, http.StatusOK, playResponse(url, volume, result))
}

// POST /v1/play_bytes?volume=&device_ids=&title=
func (p *playRoutes) playBytes(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxClipBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewValidationError("request body too large", map[string]any{"limit": tooLarge.Limit})
		}
		return apperrors.NewValidationError("could not read request body", nil)
	}
	if len(body) == 0 {
		return apperrors.NewValidationError("missing required body", nil)
	}
	volume, err := api.QueryFloat(r, "volume")
	if err != nil {
		return err
	}
	deviceIDs := api.QueryCSV(r, "device_ids")
	options := PlayOptions{
		Volume:       volume,
		Title:        api.QueryString(r, "title", defaultTitle),
		MimeType:     contentType(r),
		StartTimeout: p.StartTimeout,
	}

	var (
		result PlayResult
		clip   *hosted.Clip
		path   string
	)
	started := time.Now()
	ctx := p.BaseContext
	keys := append(p.lockKeys(deviceIDs), HostedClipKey)
	err = p.Lock.WithLock(keys, p.LockTimeout, func() error {
		clip = p.Store.Put(body, options.MimeType)
		path = HostedAudioPath + "?hash=" + clip.Hash
		var playErr error
		result, playErr = p.Controller.PlayHosted(ctx, deviceIDs, p.AdvertisePort, path, options)
		return playErr
	})
	p.record(r, history.KindHosted, path, options, started, result, err)
	if err != nil {
		return playError(err)
	}

	response := playResponse(path, volume, result)
	response["hash"] = clip.Hash
	return api.WriteAction(w, http.StatusOK, response)
}

// GET|HEAD /v1/play_bytes_audio?hash=
func (p *playRoutes) hostedAudio(w http.ResponseWriter, r *http.Request) error {
	hash := r.URL.Query().Get("hash")
	clip, ok := p.Store.Get(hash)
	if !ok {
		return apperrors.NewAppError(apperrors.ErrorCodeClipNotFound, "Clip not found", http.StatusNotFound, map[string]any{"hash": hash})
	}

	w.Header().Set("Content-Type", clip.MimeType)
	w.Header().Set("Content-Disposition", "attachment; filename=audio")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "audio", time.Time{}, bytes.NewReader(clip.Data))
	return nil
}

// lockKeys returns the ids of the devices a request will touch.
func (p *playRoutes) lockKeys(deviceIDs []string) []string {
	targets := p.Controller.Select(deviceIDs)
	keys := make([]string, 0, len(targets)+1)
	for _, device := range targets {
		keys = append(keys, device.ID)
	}
	return keys
}

func (p *playRoutes) record(r *http.Request, kind history.PlayKind, source string, options PlayOptions, started time.Time, result PlayResult, err error) {
	if p.Recorder == nil || isRequestError(err) {
		return
	}

	input := history.RecordInput{
		RequestID: api.GetRequestID(r),
		Kind:      kind,
		DeviceIDs: result.DeviceIDs,
		Source:    source,
		Volume:    options.Volume,
		Title:     options.Title,
		MimeType:  options.MimeType,
		Duration:  result.Elapsed,
		Err:       err,
		StartedAt: started,
	}
	if client, ok := auth.ClientFromContext(r.Context()); ok {
		input.ClientSub = client.Sub
	}
	for _, outcome := range result.RestoreFailures() {
		input.RestoreFailures = append(input.RestoreFailures, history.RestoreFailure{
			DeviceID: outcome.DeviceID,
			Error:    outcome.Err.Error(),
		})
	}

	if _, recordErr := p.Recorder.Record(input); recordErr != nil {
		p.Logger.Printf("Failed to record play: %v", recordErr)
	}
}

// isRequestError reports errors raised before any device was touched.
func isRequestError(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation) || errors.Is(err, ErrLockTimeout)
}

func contentType(r *http.Request) string {
	header := r.Header.Get("Content-Type")
	if header == "" {
		return defaultMimeType
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return header
	}
	return mediaType
}

func playResponse(source string, volume float64, result PlayResult) map[string]any {
	restore := make([]map[string]any, 0, len(result.Restore))
	for _, outcome := range result.Restore {
		entry := map[string]any{
			"device_id":       outcome.DeviceID,
			"source_restored": outcome.SourceRestored,
		}
		if outcome.Err != nil {
			entry["error"] = outcome.Err.Error()
		}
		restore = append(restore, entry)
	}

	deviceIDs := result.DeviceIDs
	if deviceIDs == nil {
		deviceIDs = []string{}
	}

	return map[string]any{
		"object":     "play",
		"played":     true,
		"url":        source,
		"volume":     volume,
		"duration":   result.Elapsed.Seconds(),
		"device_ids": deviceIDs,
		"sources":    result.Sources,
		"restore":    restore,
	}
}

// playError maps orchestration and control-protocol failures to API errors.
func playError(err error) error {
	var (
		validation  *ValidationError
		fault       *soap.FaultError
		timeout     *soap.TimeoutError
		unreachable *soap.UnreachableError
	)

	switch {
	case errors.As(err, &validation):
		return apperrors.NewValidationError("'"+validation.Field+"' "+validation.Message, map[string]any{"field": validation.Field})
	case errors.Is(err, ErrLockTimeout):
		return apperrors.NewConflictError(apperrors.ErrorCodePlayInProgress, "Another play is using these devices").WithCause(err)
	case errors.Is(err, context.Canceled):
		return apperrors.NewAppError(apperrors.ErrorCodeShuttingDown, "Play interrupted by server shutdown", http.StatusServiceUnavailable, nil).WithCause(err)
	case errors.Is(err, ErrCompletionTimeout):
		return apperrors.NewUpstreamError(apperrors.ErrorCodeClipTooLong, "Clip did not finish before the completion timeout", http.StatusGatewayTimeout, nil).WithCause(err)
	case errors.As(err, &fault):
		details := map[string]any{"action": fault.Action, "status": fault.StatusCode}
		if fault.Code != "" {
			details["upnp_error_code"] = fault.Code
		}
		return apperrors.NewUpstreamError(apperrors.ErrorCodeSonosRejected, err.Error(), http.StatusBadGateway, details).WithCause(err)
	case errors.As(err, &timeout):
		return apperrors.NewUpstreamError(apperrors.ErrorCodeSonosTimeout, err.Error(), http.StatusGatewayTimeout, nil).WithCause(err)
	case errors.As(err, &unreachable):
		return apperrors.NewUpstreamError(apperrors.ErrorCodeSonosUnreachable, err.Error(), http.StatusBadGateway, nil).WithCause(err)
	default:
		return apperrors.NewInternalError("Play failed").WithCause(err)
	}
}
