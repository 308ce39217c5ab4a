package history

import (
	"database/sql"
	"fmt"
	"time"
)

// PlayKind distinguishes URL plays from hosted-clip plays.
type PlayKind string

const (
	KindURL    PlayKind = "url"
	KindHosted PlayKind = "hosted"
)

// PlayStatus is the final outcome of a play request.
type PlayStatus string

const (
	StatusSucceeded PlayStatus = "succeeded"
	StatusFailed    PlayStatus = "failed"
)

// RestoreFailure is one device that could not be returned to its prior state.
type RestoreFailure struct {
	DeviceID string `json:"device_id"`
	Error    string `json:"error"`
}

// PlayRecord is a stored play request.
type PlayRecord struct {
	PlayID          string           `json:"play_id"`
	RequestID       *string          `json:"request_id,omitempty"`
	ClientSub       *string          `json:"client_sub,omitempty"`
	Kind            PlayKind         `json:"kind"`
	DeviceIDs       []string         `json:"device_ids"`
	Source          string           `json:"source"`
	Volume          float64          `json:"volume"`
	Title           string           `json:"title"`
	MimeType        string           `json:"mime_type"`
	Status          PlayStatus       `json:"status"`
	DurationSec     float64          `json:"duration_sec"`
	Error           *string          `json:"error,omitempty"`
	RestoreFailures []RestoreFailure `json:"restore_failures"`
	StartedAt       time.Time        `json:"started_at"`
}

// RecordInput contains the fields for a new play record.
type RecordInput struct {
	RequestID       string
	ClientSub       string
	Kind            PlayKind
	DeviceIDs       []string
	Source          string
	Volume          float64
	Title           string
	MimeType        string
	Duration        time.Duration
	Err             error
	RestoreFailures []RestoreFailure
	StartedAt       time.Time
}

// QueryFilters narrows a history listing.
type QueryFilters struct {
	Kind   *PlayKind
	Status *PlayStatus
	Limit  int
	Offset int
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// PlayNotFoundError is returned when a play record does not exist.
type PlayNotFoundError struct {
	PlayID string
}

func (e *PlayNotFoundError) Error() string {
	return fmt.Sprintf("play not found: %s", e.PlayID)
}
