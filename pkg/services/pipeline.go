package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aerolake/aerolake-etl/pkg/apperrors"
	"github.com/aerolake/aerolake-etl/pkg/database"
	"github.com/aerolake/aerolake-etl/pkg/ingest"
	"github.com/aerolake/aerolake-etl/pkg/logging"
	"github.com/aerolake/aerolake-etl/pkg/models"
	"github.com/aerolake/aerolake-etl/pkg/repositories"
)

// SessionProvider hands out per-operation storage sessions. *database.DB is
// the production implementation.
type SessionProvider interface {
	AcquireSession(ctx context.Context) (*database.SessionScope, error)
}

// SourceFactory opens a fresh record source for one batch run.
type SourceFactory func() (ingest.RecordSource, error)

// Pipeline orchestrates one batch: read, validate, transform, merge
// dimensions, load facts, audit, journal the run.
type Pipeline interface {
	// Run executes one batch and returns the journaled run. The summary is
	// always produced, even when the run partially or fully fails.
	Run(ctx context.Context) (*models.LoadRun, error)

	// RunScheduler executes Run immediately and then on every interval tick
	// until the context is cancelled.
	RunScheduler(ctx context.Context, interval time.Duration)
}

// PipelineDeps are the collaborators a Pipeline orchestrates.
type PipelineDeps struct {
	Sessions       SessionProvider
	Source         SourceFactory
	Validator      Validator
	Transformer    Transformer
	CustomerMerger DimensionMerger
	AirportMerger  DimensionMerger
	FactLoader     FactLoader
	Auditor        QualityAuditor
	RunRepo        repositories.LoadRunRepository
	Workers        int
	StorageTimeout time.Duration
}

type pipeline struct {
	deps   PipelineDeps
	logger *zap.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps PipelineDeps, logger *zap.Logger) Pipeline {
	if deps.Workers < 1 {
		deps.Workers = 1
	}
	return &pipeline{
		deps:   deps,
		logger: logger.Named("pipeline"),
	}
}

var _ Pipeline = (*pipeline)(nil)

// runCounters aggregates the summary across workers.
type runCounters struct {
	mu      sync.Mutex
	summary models.RunSummary
}

func (c *runCounters) add(fn func(*models.RunSummary)) {
	c.mu.Lock()
	fn(&c.summary)
	c.mu.Unlock()
}

// batch is the validated, transformed content of one run, split by target.
type batch struct {
	customers []models.DimensionSnapshot
	airports  []models.DimensionSnapshot
	flights   []FlightLoad
}

func (p *pipeline) Run(ctx context.Context) (*models.LoadRun, error) {
	startedAt := time.Now().UTC()
	counters := &runCounters{}

	runID, err := p.openRun(ctx, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal entry: %w", err)
	}
	log := p.logger.With(zap.String("run_id", runID.String()))
	log.Info("Starting batch run")

	runErr := p.execute(ctx, log, startedAt, counters)

	finishedAt := time.Now().UTC()
	run := &models.LoadRun{
		ID:         runID,
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
		Summary:    counters.summary,
	}
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = logging.SanitizeError(runErr)
		if closeErr := p.closeRun(ctx, run); closeErr != nil {
			log.Error("Failed to journal failed run", zap.Error(closeErr))
		}
		log.Error("Batch run failed", zap.Error(runErr))
		return run, runErr
	}

	run.Status = models.RunStatusSucceeded
	if closeErr := p.closeRun(ctx, run); closeErr != nil {
		return run, fmt.Errorf("failed to close run journal entry: %w", closeErr)
	}
	log.Info("Batch run finished",
		zap.Int("records_read", run.Summary.RecordsRead),
		zap.Int("records_rejected", run.Summary.RecordsRejected),
		zap.Int("entities_created", run.Summary.EntitiesCreated),
		zap.Int("versions_created", run.Summary.VersionsCreated),
		zap.Int("facts_inserted", run.Summary.FactsInserted),
		zap.Int("facts_updated", run.Summary.FactsUpdated),
		zap.Int("quality_violations", run.Summary.QualityViolations),
		zap.Duration("elapsed", finishedAt.Sub(startedAt)))
	return run, nil
}

// execute runs the batch phases in order: dimensions must land before facts
// so fact airport references resolve against this run's versions, and the
// audit sees the finished warehouse.
func (p *pipeline) execute(ctx context.Context, log *zap.Logger, startedAt time.Time, counters *runCounters) error {
	b, err := p.readAndPrepare(ctx, log, counters)
	if err != nil {
		return err
	}

	if err := p.mergeDimensions(ctx, startedAt, b, counters); err != nil {
		return err
	}
	if err := p.loadFacts(ctx, b, counters); err != nil {
		return err
	}
	p.audit(ctx, counters)
	return nil
}

func (p *pipeline) readAndPrepare(ctx context.Context, log *zap.Logger, counters *runCounters) (*batch, error) {
	source, err := p.deps.Source()
	if err != nil {
		return nil, fmt.Errorf("failed to open record source: %w", err)
	}
	defer source.Close()

	b := &batch{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := source.Next(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			var decodeErr *ingest.DecodeError
			if errors.As(err, &decodeErr) {
				counters.add(func(s *models.RunSummary) { s.RecordsRead++; s.RecordsRejected++ })
				log.Warn("Rejected undecodable record",
					zap.String("reason", logging.SanitizeRecord(decodeErr.Error())))
				continue
			}
			return nil, fmt.Errorf("record source failed: %w", err)
		}

		counters.add(func(s *models.RunSummary) { s.RecordsRead++ })

		result := p.deps.Validator.Validate(rec)
		if !result.Valid {
			counters.add(func(s *models.RunSummary) { s.RecordsRejected++ })
			log.Warn("Rejected invalid record",
				zap.String("kind", string(rec.Kind)),
				zap.Strings("reasons", sanitizeReasons(result.Reasons)))
			continue
		}

		switch rec.Kind {
		case models.RecordKindCustomer:
			b.customers = append(b.customers, p.deps.Transformer.CustomerSnapshot(rec.Customer))
		case models.RecordKindAirport:
			b.airports = append(b.airports, p.deps.Transformer.AirportSnapshot(rec.Airport))
		case models.RecordKindFlight:
			b.flights = append(b.flights, FlightLoad{
				Fact:             p.deps.Transformer.EnrichFlight(rec.Flight),
				DepartureAirport: rec.Flight.DepartureAirport,
				ArrivalAirport:   rec.Flight.ArrivalAirport,
			})
		}
	}
	return b, nil
}

// mergeDimensions fans snapshots out over the worker pool. A per-entity merge
// failure is counted; only a surrogate key collision or cancellation aborts
// the batch.
func (p *pipeline) mergeDimensions(ctx context.Context, asOf time.Time, b *batch, counters *runCounters) error {
	type mergeItem struct {
		merger   DimensionMerger
		snapshot models.DimensionSnapshot
	}
	items := make([]mergeItem, 0, len(b.customers)+len(b.airports))
	for _, snap := range b.customers {
		items = append(items, mergeItem{p.deps.CustomerMerger, snap})
	}
	for _, snap := range b.airports {
		items = append(items, mergeItem{p.deps.AirportMerger, snap})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.deps.Workers)
	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := p.mergeOne(gctx, item.merger, item.snapshot, asOf)
			if err != nil {
				if errors.Is(err, apperrors.ErrSurrogateKeyCollision) || errors.Is(err, context.Canceled) {
					return err
				}
				counters.add(func(s *models.RunSummary) { s.MergeFailures++ })
				p.logger.Warn("Failed to merge entity",
					zap.String("business_key", item.snapshot.BusinessKey),
					zap.Error(err))
				return nil
			}
			counters.add(func(s *models.RunSummary) {
				switch result.Outcome {
				case models.MergeOutcomeNewEntity:
					s.EntitiesCreated++
				case models.MergeOutcomeNewVersion:
					s.VersionsCreated++
				case models.MergeOutcomeNoChange:
					s.Unchanged++
				}
			})
			return nil
		})
	}
	return g.Wait()
}

func (p *pipeline) mergeOne(ctx context.Context, merger DimensionMerger, snapshot models.DimensionSnapshot, asOf time.Time) (models.MergeResult, error) {
	var result models.MergeResult
	err := p.withSession(ctx, func(opCtx context.Context) error {
		var mergeErr error
		result, mergeErr = merger.Merge(opCtx, snapshot, asOf)
		return mergeErr
	})
	return result, err
}

func (p *pipeline) loadFacts(ctx context.Context, b *batch, counters *runCounters) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.deps.Workers)
	for _, load := range b.flights {
		load := load
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var outcome models.UpsertOutcome
			err := p.withSession(gctx, func(opCtx context.Context) error {
				var upsertErr error
				outcome, upsertErr = p.deps.FactLoader.Upsert(opCtx, load)
				return upsertErr
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				counters.add(func(s *models.RunSummary) { s.FactFailures++ })
				p.logger.Warn("Failed to load fact",
					zap.String("flight_key", load.Fact.FlightKey),
					zap.Error(err))
				return nil
			}
			counters.add(func(s *models.RunSummary) {
				switch outcome {
				case models.UpsertOutcomeInserted:
					s.FactsInserted++
				case models.UpsertOutcomeUpdated:
					s.FactsUpdated++
				}
			})
			return nil
		})
	}
	return g.Wait()
}

// audit never fails the run; an unreachable warehouse shows up as errored
// findings counted in the summary.
func (p *pipeline) audit(ctx context.Context, counters *runCounters) {
	var findings []models.QualityFinding
	err := p.withSession(ctx, func(opCtx context.Context) error {
		findings = p.deps.Auditor.Audit(opCtx)
		return nil
	})
	if err != nil {
		p.logger.Error("Failed to run quality audit", zap.Error(err))
		counters.add(func(s *models.RunSummary) { s.FailedRules += 1 })
		return
	}

	counters.add(func(s *models.RunSummary) {
		for _, f := range findings {
			s.QualityViolations += int(f.Violations)
			if !f.Passed {
				s.FailedRules++
			}
		}
	})
}

func (p *pipeline) openRun(ctx context.Context, startedAt time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := p.withSession(ctx, func(opCtx context.Context) error {
		var createErr error
		id, createErr = p.deps.RunRepo.Create(opCtx, startedAt)
		return createErr
	})
	return id, err
}

// closeRun journals the finished run. It deliberately ignores the batch
// context's cancellation so a cancelled run still gets its summary written.
func (p *pipeline) closeRun(ctx context.Context, run *models.LoadRun) error {
	closeCtx := context.WithoutCancel(ctx)
	return p.withSession(closeCtx, func(opCtx context.Context) error {
		if run.Status == models.RunStatusFailed {
			return p.deps.RunRepo.MarkFailed(opCtx, run.ID, *run.FinishedAt, run.ErrorMessage, run.Summary)
		}
		return p.deps.RunRepo.MarkSucceeded(opCtx, run.ID, *run.FinishedAt, run.Summary)
	})
}

// withSession scopes one logical unit of warehouse work: its own pooled
// connection and its own timeout.
func (p *pipeline) withSession(ctx context.Context, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, p.deps.StorageTimeout)
	defer cancel()

	scope, err := p.deps.Sessions.AcquireSession(opCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire session: %w", err)
	}
	defer scope.Close()

	return fn(database.SetSession(opCtx, scope))
}

func (p *pipeline) RunScheduler(ctx context.Context, interval time.Duration) {
	p.logger.Info("Starting batch scheduler", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("Scheduled batch run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Batch scheduler stopping")
			return
		case <-ticker.C:
		}
	}
}

func sanitizeReasons(reasons []string) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = logging.SanitizeRecord(r)
	}
	return out
}
