package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mikeboe/report-agent/pkg/archive"
	"github.com/mikeboe/report-agent/pkg/clients"
	"github.com/mikeboe/report-agent/pkg/config"
	"github.com/mikeboe/report-agent/pkg/database"
	"github.com/mikeboe/report-agent/pkg/generate"
	"github.com/mikeboe/report-agent/pkg/pipeline"
	"github.com/mikeboe/report-agent/pkg/tools"
)

// Service runs report jobs: each job executes one full pipeline run in a
// background goroutine, persisting state snapshots and logs as it goes.
type Service struct {
	DB  *database.DB
	Cfg *config.Config

	// Archive is optional. When set, completed runs are indexed into the
	// findings archive.
	Archive *archive.Archive
}

func NewService(db *database.DB, cfg *config.Config) *Service {
	return &Service{
		DB:  db,
		Cfg: cfg,
	}
}

type Job struct {
	ID        uuid.UUID       `json:"id"`
	Topic     string          `json:"topic"`
	Status    string          `json:"status"`
	Document  *string         `json:"document,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Config    json.RawMessage `json:"config"`
}

type CreateJobRequest struct {
	Topic string `json:"topic"`

	// Limits optionally overrides the server defaults for this job only.
	Limits *pipeline.Limits `json:"limits,omitempty"`
}

func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	limits := s.Cfg.Limits
	if req.Limits != nil {
		limits = *req.Limits
	}

	configJSON, _ := json.Marshal(limits)

	jobID := uuid.New()
	query := `
		INSERT INTO report_jobs (id, topic, status, config)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, topic, status, created_at, updated_at
	`

	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query, jobID, req.Topic, configJSON).Scan(
		&job.ID, &job.Topic, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	go s.runWorker(job.ID, req.Topic, limits)

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, topic, status, document, created_at, updated_at, config
		FROM report_jobs
		WHERE id = $1
	`
	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Topic, &job.Status, &job.Document, &job.CreatedAt, &job.UpdatedAt, &job.Config,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	query := `
		SELECT id, topic, status, document, created_at, updated_at, config
		FROM report_jobs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Topic, &job.Status, &job.Document, &job.CreatedAt, &job.UpdatedAt, &job.Config); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJobState returns the persisted pipeline state snapshot for a job, or
// nil if no snapshot has been written yet.
func (s *Service) GetJobState(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	var state json.RawMessage
	err := s.DB.Pool.QueryRow(ctx, "SELECT state FROM report_jobs WHERE id = $1", id).Scan(&state)
	if err != nil {
		return nil, fmt.Errorf("failed to get job state: %w", err)
	}
	return state, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM report_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (s *Service) runWorker(jobID uuid.UUID, topic string, limits pipeline.Limits) {
	ctx := context.Background()

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE report_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", jobID)

	dbLogger := slog.New(NewDBLogHandler(s.DB, jobID))

	llm, err := clients.GoogleAi(ctx, clients.ModelType(s.Cfg.ReasoningModel))
	if err != nil {
		s.failJob(ctx, jobID, fmt.Sprintf("Failed to init LLM client: %v", err))
		return
	}

	gen := generate.New(llm, tools.NewWebSearcher(nil))
	gen.Logger = dbLogger

	engine := pipeline.New(limits, gen)
	engine.Logger = dbLogger

	// Persist every state snapshot so clients can poll progress.
	engine.OnStateUpdate = func(state pipeline.State) {
		stateJSON, err := json.Marshal(state)
		if err != nil {
			dbLogger.Error("Failed to marshal state", "error", err)
			return
		}

		_, err = s.DB.Pool.Exec(context.Background(),
			"UPDATE report_jobs SET state = $2, updated_at = NOW() WHERE id = $1",
			jobID, stateJSON)
		if err != nil {
			dbLogger.Error("Failed to save state to DB", "error", err)
		}
	}

	state := engine.Run(ctx, topic)

	// Persist whatever state the run ended with, escalated or not.
	if stateJSON, err := json.Marshal(state); err == nil {
		_, _ = s.DB.Pool.Exec(ctx,
			"UPDATE report_jobs SET state = $2, updated_at = NOW() WHERE id = $1",
			jobID, stateJSON)
	}

	if state.Escalated() {
		s.failJob(ctx, jobID, fmt.Sprintf("Run halted: %s", state.ErrMessage))
		return
	}
	if state.ErrMessage != "" {
		// Degraded but compiled: the job still completes with its document.
		dbLogger.Warn("Run degraded", "error", state.ErrMessage)
	}

	_, err = s.DB.Pool.Exec(ctx,
		"UPDATE report_jobs SET status = 'completed', document = $2, updated_at = NOW() WHERE id = $1",
		jobID, state.FinalDocument)
	if err != nil {
		dbLogger.Error("Failed to save final document to DB", "error", err)
	}

	if s.Archive != nil {
		if err := s.Archive.IndexRun(ctx, state); err != nil {
			// Archive failures never fail the job; the document is done.
			dbLogger.Error("Failed to index run into archive", "error", err)
		}
	}
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, reason string) {
	dbLogger := slog.New(NewDBLogHandler(s.DB, jobID))
	dbLogger.Error(reason)

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE report_jobs SET status = 'failed', updated_at = NOW() WHERE id = $1", jobID)
}
