package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aerolake/aerolake-etl/pkg/apperrors"
	"github.com/aerolake/aerolake-etl/pkg/database"
	"github.com/aerolake/aerolake-etl/pkg/models"
)

// LoadRunRepository maintains the batch run journal.
type LoadRunRepository interface {
	// Create opens a new in-progress run entry and returns its id.
	Create(ctx context.Context, startedAt time.Time) (uuid.UUID, error)

	// MarkSucceeded closes a run with its summary.
	MarkSucceeded(ctx context.Context, id uuid.UUID, finishedAt time.Time, summary models.RunSummary) error

	// MarkFailed closes a run with an error message. The summary still
	// records whatever the batch managed to do before failing.
	MarkFailed(ctx context.Context, id uuid.UUID, finishedAt time.Time, errorMessage string, summary models.RunSummary) error

	// GetLatest returns the most recently started run, or apperrors.ErrNotFound.
	GetLatest(ctx context.Context) (*models.LoadRun, error)
}

type loadRunRepository struct{}

// NewLoadRunRepository creates a LoadRunRepository.
func NewLoadRunRepository() LoadRunRepository {
	return &loadRunRepository{}
}

var _ LoadRunRepository = (*loadRunRepository)(nil)

func (r *loadRunRepository) Create(ctx context.Context, startedAt time.Time) (uuid.UUID, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return uuid.Nil, fmt.Errorf("no session scope in context")
	}

	id := uuid.New()
	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO load_runs (id, started_at, status)
		VALUES ($1, $2, $3)`,
		id, startedAt, models.RunStatusInProgress)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create load run: %w", err)
	}
	return id, nil
}

func (r *loadRunRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, finishedAt time.Time, summary models.RunSummary) error {
	return r.close(ctx, id, finishedAt, models.RunStatusSucceeded, "", summary)
}

func (r *loadRunRepository) MarkFailed(ctx context.Context, id uuid.UUID, finishedAt time.Time, errorMessage string, summary models.RunSummary) error {
	return r.close(ctx, id, finishedAt, models.RunStatusFailed, errorMessage, summary)
}

func (r *loadRunRepository) close(ctx context.Context, id uuid.UUID, finishedAt time.Time, status models.RunStatus, errorMessage string, summary models.RunSummary) error {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return fmt.Errorf("no session scope in context")
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	_, err = scope.Conn.Exec(ctx, `
		UPDATE load_runs
		SET finished_at = $2, status = $3, error_message = NULLIF($4, ''), summary = $5
		WHERE id = $1`,
		id, finishedAt, status, errorMessage, summaryJSON)
	if err != nil {
		return fmt.Errorf("failed to close load run %s: %w", id, err)
	}
	return nil
}

func (r *loadRunRepository) GetLatest(ctx context.Context) (*models.LoadRun, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return nil, fmt.Errorf("no session scope in context")
	}

	query := `
		SELECT id, started_at, finished_at, status, error_message, summary
		FROM load_runs
		ORDER BY started_at DESC
		LIMIT 1`

	var (
		run         models.LoadRun
		errMsg      *string
		summaryJSON []byte
	)
	err := scope.Conn.QueryRow(ctx, query).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &errMsg, &summaryJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest load run: %w", err)
	}

	if errMsg != nil {
		run.ErrorMessage = *errMsg
	}
	if len(summaryJSON) > 0 && string(summaryJSON) != "null" {
		if err := json.Unmarshal(summaryJSON, &run.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
		}
	}
	return &run, nil
}
