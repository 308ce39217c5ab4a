package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/strefethen/sonos-player-go/internal/apperrors"
)

// QueryFloat parses a required numeric query parameter.
func QueryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, apperrors.NewValidationError("'"+name+"' must be a number", map[string]any{name: raw})
	}
	return value, nil
}

// QueryString returns a query parameter, or fallback when absent or empty.
func QueryString(r *http.Request, name, fallback string) string {
	if value := r.URL.Query().Get(name); value != "" {
		return value
	}
	return fallback
}

// QueryCSV splits a comma-separated parameter. It returns nil when the
// parameter is absent, which callers read as "no filter".
func QueryCSV(r *http.Request, name string) []string {
	values, present := r.URL.Query()[name]
	if !present || len(values) == 0 {
		return nil
	}
	parts := strings.Split(values[0], ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// QueryInt parses an optional integer parameter bounded by [lo, hi].
func QueryInt(r *http.Request, name string, fallback, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < lo || value > hi {
		return 0, apperrors.NewValidationError("invalid "+name+", must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi), map[string]any{
			name: raw,
		})
	}
	return value, nil
}
