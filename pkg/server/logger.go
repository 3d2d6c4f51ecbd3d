package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mikeboe/report-agent/pkg/database"
)

// DBLogHandler is a slog.Handler that writes records to report_logs so job
// progress is queryable through the API while a run is still going.
type DBLogHandler struct {
	DB    *database.DB
	JobID uuid.UUID
}

func NewDBLogHandler(db *database.DB, jobID uuid.UUID) *DBLogHandler {
	return &DBLogHandler{
		DB:    db,
		JobID: jobID,
	}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO report_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`

	// Insert with a background context so log rows survive request
	// cancellation.
	_, err = h.DB.Pool.Exec(context.Background(), query, h.JobID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Attribute chaining is not merged; records carry their own attrs.
	return h
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	return h
}
