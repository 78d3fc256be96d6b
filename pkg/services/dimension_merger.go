package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aerolake/aerolake-etl/pkg/apperrors"
	"github.com/aerolake/aerolake-etl/pkg/models"
	"github.com/aerolake/aerolake-etl/pkg/repositories"
)

// DimensionMerger applies incoming snapshots to one dimension under SCD2
// semantics. Merging the same snapshot twice is a no-op the second time.
type DimensionMerger interface {
	// Merge reconciles a snapshot against the dimension's current state as of
	// the given load time. The result says which of the three outcomes
	// happened. An error return means the entity could not be merged; the
	// batch continues unless the error is apperrors.ErrSurrogateKeyCollision.
	Merge(ctx context.Context, snapshot models.DimensionSnapshot, asOf time.Time) (models.MergeResult, error)
}

type dimensionMerger struct {
	repo       repositories.DimensionRepository
	locks      *keyedLock
	maxRetries int
	logger     *zap.Logger
}

// NewDimensionMerger creates a merger over one dimension repository.
// maxRetries bounds re-reads after a lost write race on a business key.
func NewDimensionMerger(repo repositories.DimensionRepository, maxRetries int, logger *zap.Logger) DimensionMerger {
	return &dimensionMerger{
		repo:       repo,
		locks:      newKeyedLock(),
		maxRetries: maxRetries,
		logger:     logger.Named("dimension-merger").With(zap.String("dimension", repo.Name())),
	}
}

var _ DimensionMerger = (*dimensionMerger)(nil)

func (m *dimensionMerger) Merge(ctx context.Context, snapshot models.DimensionSnapshot, asOf time.Time) (models.MergeResult, error) {
	if snapshot.BusinessKey == "" {
		return models.MergeResult{}, fmt.Errorf("snapshot has empty business key")
	}

	// Serialize merges for the same business key within this process. The
	// storage layer's conditional writes catch races this lock cannot see.
	release := m.locks.Acquire(snapshot.BusinessKey)
	defer release()

	for attempt := 0; ; attempt++ {
		result, err := m.mergeOnce(ctx, snapshot, asOf)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return models.MergeResult{}, err
		}
		if attempt >= m.maxRetries {
			m.logger.Warn("Merge conflict retries exhausted",
				zap.String("business_key", snapshot.BusinessKey),
				zap.Int("attempts", attempt+1))
			return models.MergeResult{}, fmt.Errorf("merge of %s gave up after %d conflicts: %w",
				snapshot.BusinessKey, attempt+1, apperrors.ErrConflict)
		}
		// Lost a race against a concurrent merge. Re-read and reconcile
		// against the state the winner left behind.
		m.logger.Debug("Merge conflict, re-reading current state",
			zap.String("business_key", snapshot.BusinessKey),
			zap.Int("attempt", attempt+1))
	}
}

// mergeOnce runs one pass of the merge algorithm: read current, then decide
// between no change, new entity, and expire+insert.
func (m *dimensionMerger) mergeOnce(ctx context.Context, snapshot models.DimensionSnapshot, asOf time.Time) (models.MergeResult, error) {
	current, err := m.repo.GetCurrent(ctx, snapshot.BusinessKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return m.insertNewEntity(ctx, snapshot, asOf)
		}
		return models.MergeResult{}, fmt.Errorf("failed to read current version of %s: %w", snapshot.BusinessKey, err)
	}

	if snapshot.TrackedEquals(current.Tracked) {
		return models.MergeResult{
			Outcome:     models.MergeOutcomeNoChange,
			BusinessKey: snapshot.BusinessKey,
		}, nil
	}

	return m.insertNewVersion(ctx, snapshot, current, asOf)
}

func (m *dimensionMerger) insertNewEntity(ctx context.Context, snapshot models.DimensionSnapshot, asOf time.Time) (models.MergeResult, error) {
	sk, err := m.repo.NextSurrogateKey(ctx)
	if err != nil {
		return models.MergeResult{}, fmt.Errorf("failed to allocate surrogate key for %s: %w", snapshot.BusinessKey, err)
	}

	v := &models.DimensionVersion{
		SurrogateKey:  sk,
		BusinessKey:   snapshot.BusinessKey,
		Tracked:       snapshot.Tracked,
		Extra:         snapshot.Extra,
		EffectiveDate: asOf,
		IsCurrent:     true,
	}
	if err := m.repo.InsertNew(ctx, v); err != nil {
		if errors.Is(err, apperrors.ErrSurrogateKeyCollision) {
			// A collision on a freshly allocated key means the allocator is
			// broken. Nothing downstream is trustworthy; abort the batch.
			m.logger.Error("Surrogate key collision on freshly allocated key",
				zap.String("business_key", snapshot.BusinessKey),
				zap.Int64("surrogate_key", sk))
		}
		return models.MergeResult{}, err
	}

	m.logger.Debug("Created new entity",
		zap.String("business_key", snapshot.BusinessKey),
		zap.Int64("surrogate_key", sk))
	return models.MergeResult{
		Outcome:      models.MergeOutcomeNewEntity,
		BusinessKey:  snapshot.BusinessKey,
		SurrogateKey: sk,
	}, nil
}

func (m *dimensionMerger) insertNewVersion(ctx context.Context, snapshot models.DimensionSnapshot, current *models.DimensionVersion, asOf time.Time) (models.MergeResult, error) {
	sk, err := m.repo.NextSurrogateKey(ctx)
	if err != nil {
		return models.MergeResult{}, fmt.Errorf("failed to allocate surrogate key for %s: %w", snapshot.BusinessKey, err)
	}

	// Tracked attributes come from the incoming snapshot; first-sighting-only
	// attributes carry forward from the version being replaced.
	v := &models.DimensionVersion{
		SurrogateKey:  sk,
		BusinessKey:   snapshot.BusinessKey,
		Tracked:       snapshot.Tracked,
		Extra:         current.Extra,
		EffectiveDate: asOf,
		IsCurrent:     true,
	}
	if err := m.repo.ExpireAndInsert(ctx, current.SurrogateKey, v); err != nil {
		return models.MergeResult{}, err
	}

	m.logger.Debug("Created new version",
		zap.String("business_key", snapshot.BusinessKey),
		zap.Int64("old_surrogate_key", current.SurrogateKey),
		zap.Int64("surrogate_key", sk))
	return models.MergeResult{
		Outcome:      models.MergeOutcomeNewVersion,
		BusinessKey:  snapshot.BusinessKey,
		SurrogateKey: sk,
	}, nil
}
