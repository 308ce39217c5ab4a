package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Repository handles database operations for play history.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new history Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Insert stores a play record and returns it as read back.
func (r *Repository) Insert(input RecordInput) (*PlayRecord, error) {
	playID := uuid.New().String()

	startedAt := input.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	deviceIDs := input.DeviceIDs
	if deviceIDs == nil {
		deviceIDs = []string{}
	}
	deviceIDsJSON, err := json.Marshal(deviceIDs)
	if err != nil {
		return nil, err
	}

	failures := input.RestoreFailures
	if failures == nil {
		failures = []RestoreFailure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return nil, err
	}

	status := StatusSucceeded
	var errText *string
	if input.Err != nil {
		status = StatusFailed
		text := input.Err.Error()
		errText = &text
	}

	_, err = r.writer.Exec(`
		INSERT INTO play_history (play_id, request_id, client_sub, kind, device_ids, source, volume, title, mime_type, status, duration_sec, error, restore_failures, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, playID, nullable(input.RequestID), nullable(input.ClientSub), string(input.Kind), string(deviceIDsJSON),
		input.Source, input.Volume, input.Title, input.MimeType, string(status), input.Duration.Seconds(),
		errText, string(failuresJSON), formatTimestamp(startedAt))
	if err != nil {
		return nil, err
	}

	return r.Get(playID)
}

// Get retrieves a single play by ID. Returns nil, nil if not found.
func (r *Repository) Get(playID string) (*PlayRecord, error) {
	row := r.reader.QueryRow(`
		SELECT play_id, request_id, client_sub, kind, device_ids, source, volume, title, mime_type, status, duration_sec, error, restore_failures, started_at
		FROM play_history
		WHERE play_id = ?
	`, playID)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// Query lists plays newest first and returns the total matching count.
func (r *Repository) Query(filters QueryFilters) ([]PlayRecord, int, error) {
	whereClause, args := buildWhereClause(filters)

	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM play_history "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := `
		SELECT play_id, request_id, client_sub, kind, device_ids, source, volume, title, mime_type, status, duration_sec, error, restore_failures, started_at
		FROM play_history
		` + whereClause + `
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.reader.Query(query, append(args, limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := []PlayRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Prune deletes plays started before cutoff and returns the number removed.
func (r *Repository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.writer.Exec(`
		DELETE FROM play_history
		WHERE started_at < ?
	`, formatTimestamp(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func buildWhereClause(filters QueryFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(*filters.Kind))
	}
	if filters.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filters.Status))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*PlayRecord, error) {
	var record PlayRecord
	var requestID, clientSub, errText sql.NullString
	var kind, status, deviceIDsJSON, failuresJSON, startedAt string

	err := row.Scan(
		&record.PlayID,
		&requestID,
		&clientSub,
		&kind,
		&deviceIDsJSON,
		&record.Source,
		&record.Volume,
		&record.Title,
		&record.MimeType,
		&status,
		&record.DurationSec,
		&errText,
		&failuresJSON,
		&startedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Kind = PlayKind(kind)
	record.Status = PlayStatus(status)
	if requestID.Valid {
		record.RequestID = &requestID.String
	}
	if clientSub.Valid {
		record.ClientSub = &clientSub.String
	}
	if errText.Valid {
		record.Error = &errText.String
	}
	if err := json.Unmarshal([]byte(deviceIDsJSON), &record.DeviceIDs); err != nil {
		record.DeviceIDs = []string{}
	}
	if err := json.Unmarshal([]byte(failuresJSON), &record.RestoreFailures); err != nil {
		record.RestoreFailures = []RestoreFailure{}
	}
	if parsed, err := time.Parse(timestampLayout, startedAt); err == nil {
		record.StartedAt = parsed
	}

	return &record, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
