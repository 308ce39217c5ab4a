package history

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/sonos-player-go/internal/api"
	"github.com/strefethen/sonos-player-go/internal/apperrors"
)

// RegisterRoutes wires play history routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/plays", api.Handler(listPlays(service)))
	router.Method(http.MethodGet, "/v1/plays/{play_id}", api.Handler(getPlay(service)))
}

// RegisterDisabledRoutes answers history requests when no database is configured.
func RegisterDisabledRoutes(router chi.Router) {
	disabled := api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewAppError(apperrors.ErrorCodeHistoryDisabled,
			"Play history is disabled; set SQLITE_DB_PATH to enable it", http.StatusNotFound, nil)
	})
	router.Method(http.MethodGet, "/v1/plays", disabled)
	router.Method(http.MethodGet, "/v1/plays/{play_id}", disabled)
}

// GET /v1/plays
func listPlays(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		records, _, hasMore, err := service.List(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query play history").WithCause(err)
		}

		formatted := make([]map[string]any, 0, len(records))
		for i := range records {
			formatted = append(formatted, formatRecord(&records[i]))
		}
		return api.WriteList(w, "/v1/plays", formatted, hasMore)
	}
}

// GET /v1/plays/{play_id}
func getPlay(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		playID := chi.URLParam(r, "play_id")

		record, err := service.Get(playID)
		if err != nil {
			var notFound *PlayNotFoundError
			if errors.As(err, &notFound) {
				return apperrors.NewNotFoundResource("Play", playID)
			}
			return apperrors.NewInternalError("Failed to get play").WithCause(err)
		}

		return api.WriteResource(w, http.StatusOK, formatRecord(record))
	}
}

func parseQueryFilters(r *http.Request) (QueryFilters, error) {
	var filters QueryFilters

	limit, err := api.QueryInt(r, "limit", DefaultQueryLimit, 1, MaxQueryLimit)
	if err != nil {
		return filters, err
	}
	offset, err := api.QueryInt(r, "offset", 0, 0, 1<<31-1)
	if err != nil {
		return filters, err
	}
	filters.Limit = limit
	filters.Offset = offset

	switch kind := PlayKind(r.URL.Query().Get("kind")); kind {
	case "":
	case KindURL, KindHosted:
		filters.Kind = &kind
	default:
		return filters, apperrors.NewValidationError("invalid kind, must be 'url' or 'hosted'", map[string]any{"kind": string(kind)})
	}

	switch status := PlayStatus(r.URL.Query().Get("status")); status {
	case "":
	case StatusSucceeded, StatusFailed:
		filters.Status = &status
	default:
		return filters, apperrors.NewValidationError("invalid status, must be 'succeeded' or 'failed'", map[string]any{"status": string(status)})
	}

	return filters, nil
}

func formatRecord(record *PlayRecord) map[string]any {
	result := map[string]any{
		"object":           "play_record",
		"id":               record.PlayID,
		"kind":             record.Kind,
		"device_ids":       record.DeviceIDs,
		"source":           record.Source,
		"volume":           record.Volume,
		"title":            record.Title,
		"mime_type":        record.MimeType,
		"status":           record.Status,
		"duration_sec":     record.DurationSec,
		"restore_failures": record.RestoreFailures,
		"started_at":       record.StartedAt.Format(time.RFC3339Nano),
	}
	if record.RequestID != nil {
		result["request_id"] = *record.RequestID
	}
	if record.ClientSub != nil {
		result["client_sub"] = *record.ClientSub
	}
	if record.Error != nil {
		result["error"] = *record.Error
	}
	return result
}
