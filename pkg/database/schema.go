package database

import (
	"context"
	"fmt"
)

// InitSchema creates the report job tables and their indexes.
func (db *DB) InitSchema(ctx context.Context) error {
	jobsQuery := `
		CREATE TABLE IF NOT EXISTS report_jobs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			topic TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			config JSONB,
			state JSONB,
			document TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, jobsQuery); err != nil {
		return fmt.Errorf("failed to create report_jobs table: %w", err)
	}

	logsQuery := `
		CREATE TABLE IF NOT EXISTS report_logs (
			id SERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES report_jobs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create report_logs table: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_report_logs_job_id ON report_logs(job_id)"); err != nil {
		return fmt.Errorf("failed to create index on report_logs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_report_jobs_created_at ON report_jobs(created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create index on report_jobs: %w", err)
	}

	return nil
}
