package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aerolake/aerolake-etl/pkg/apperrors"
	"github.com/aerolake/aerolake-etl/pkg/models"
	"github.com/aerolake/aerolake-etl/pkg/repositories"
	"github.com/aerolake/aerolake-etl/pkg/retry"
)

// FlightLoad pairs an enriched fact with the airport business references the
// loader still has to resolve to dimension surrogate keys.
type FlightLoad struct {
	Fact             *models.FlightFact
	DepartureAirport string
	ArrivalAirport   string
}

// FactLoadStats is the per-batch accounting from LoadBatch.
type FactLoadStats struct {
	Inserted int
	Updated  int
	Failed   int
}

// FactLoader writes flight facts into the warehouse. Loading the same fact
// twice is an update the second time, never a duplicate; only the revisable
// measures change on re-load.
type FactLoader interface {
	// Upsert resolves airport references and writes one fact. Unresolvable
	// references fail with apperrors.ErrUnresolvedReference; transient
	// storage failures are retried with backoff before giving up.
	Upsert(ctx context.Context, load FlightLoad) (models.UpsertOutcome, error)

	// LoadBatch processes loads one record at a time. Per-record failures are
	// counted, not fatal; a context cancellation between records stops the
	// batch after the in-flight record completes.
	LoadBatch(ctx context.Context, loads []FlightLoad) (FactLoadStats, error)
}

type factLoader struct {
	factRepo    repositories.FlightFactRepository
	airportRepo repositories.DimensionRepository
	locks       *keyedLock
	retryCfg    *retry.Config
	logger      *zap.Logger
}

// NewFactLoader creates a FactLoader resolving airport references against the
// given dimension repository. Pass nil retryCfg for the default backoff.
func NewFactLoader(factRepo repositories.FlightFactRepository, airportRepo repositories.DimensionRepository, retryCfg *retry.Config, logger *zap.Logger) FactLoader {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &factLoader{
		factRepo:    factRepo,
		airportRepo: airportRepo,
		locks:       newKeyedLock(),
		retryCfg:    retryCfg,
		logger:      logger.Named("fact-loader"),
	}
}

var _ FactLoader = (*factLoader)(nil)

func (l *factLoader) Upsert(ctx context.Context, load FlightLoad) (models.UpsertOutcome, error) {
	fact := load.Fact
	if fact == nil || fact.FlightKey == "" {
		return "", fmt.Errorf("fact has empty flight key")
	}

	// Serialize concurrent loads of the same flight key so two workers cannot
	// interleave resolve-then-write for one fact.
	release := l.locks.Acquire(fact.FlightKey)
	defer release()

	depKey, err := l.resolveAirport(ctx, load.DepartureAirport)
	if err != nil {
		return "", fmt.Errorf("departure airport of %s: %w", fact.FlightKey, err)
	}
	arrKey, err := l.resolveAirport(ctx, load.ArrivalAirport)
	if err != nil {
		return "", fmt.Errorf("arrival airport of %s: %w", fact.FlightKey, err)
	}
	fact.DepartureAirportKey = depKey
	fact.ArrivalAirportKey = arrKey

	// The upsert is idempotent, so transient storage failures retry safely.
	var outcome models.UpsertOutcome
	err = retry.DoIfRetryable(ctx, l.retryCfg, func() error {
		var upsertErr error
		outcome, upsertErr = l.factRepo.Upsert(ctx, fact)
		return upsertErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert flight %s: %w", fact.FlightKey, err)
	}
	return outcome, nil
}

func (l *factLoader) LoadBatch(ctx context.Context, loads []FlightLoad) (FactLoadStats, error) {
	var stats FactLoadStats
	for _, load := range loads {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		outcome, err := l.Upsert(ctx, load)
		if err != nil {
			stats.Failed++
			l.logger.Warn("Failed to load flight fact",
				zap.String("flight_key", load.Fact.FlightKey),
				zap.Error(err))
			continue
		}
		switch outcome {
		case models.UpsertOutcomeInserted:
			stats.Inserted++
		case models.UpsertOutcomeUpdated:
			stats.Updated++
		}
	}
	return stats, nil
}

// resolveAirport maps an IATA business key to the airport's current surrogate
// key. A reference that resolves to nothing is a per-record failure.
func (l *factLoader) resolveAirport(ctx context.Context, iata string) (int64, error) {
	if iata == "" {
		return 0, fmt.Errorf("empty airport reference: %w", apperrors.ErrUnresolvedReference)
	}
	current, err := l.airportRepo.GetCurrent(ctx, iata)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return 0, fmt.Errorf("airport %s has no current dimension row: %w", iata, apperrors.ErrUnresolvedReference)
		}
		return 0, fmt.Errorf("failed to resolve airport %s: %w", iata, err)
	}
	return current.SurrogateKey, nil
}
