package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/aerolake/aerolake-etl/pkg/logging"
	"github.com/aerolake/aerolake-etl/pkg/models"
	"github.com/aerolake/aerolake-etl/pkg/repositories"
	"github.com/aerolake/aerolake-etl/pkg/retry"
)

// QualityAuditor runs the post-load data quality rules. The audit is
// read-only and safe to re-run at any time; violations are reported, never
// auto-corrected.
type QualityAuditor interface {
	// Audit runs every rule and returns one finding per rule, in rule-table
	// order. A rule whose query fails after retries yields an errored finding
	// and never blocks the remaining rules.
	Audit(ctx context.Context) []models.QualityFinding
}

// auditRule is one row of the fixed rule table. Adding a rule means adding a
// row, not touching the audit loop.
type auditRule struct {
	name     string
	severity models.Severity
	count    func(repo repositories.QualityRepository, ctx context.Context) (int64, error)
}

var auditRules = []auditRule{
	{
		name:     "orphaned_flight_references",
		severity: models.SeverityError,
		count: func(r repositories.QualityRepository, ctx context.Context) (int64, error) {
			return r.CountOrphanedFlightReferences(ctx)
		},
	},
	{
		name:     "invalid_load_factors",
		severity: models.SeverityError,
		count: func(r repositories.QualityRepository, ctx context.Context) (int64, error) {
			return r.CountInvalidLoadFactors(ctx)
		},
	},
	{
		name:     "overbooked_flights",
		severity: models.SeverityWarning,
		count: func(r repositories.QualityRepository, ctx context.Context) (int64, error) {
			return r.CountOverbookedFlights(ctx)
		},
	},
	{
		name:     "future_dated_flights",
		severity: models.SeverityWarning,
		count: func(r repositories.QualityRepository, ctx context.Context) (int64, error) {
			return r.CountFutureDatedFlights(ctx)
		},
	},
	{
		name:     "duplicate_current_versions",
		severity: models.SeverityError,
		count: func(r repositories.QualityRepository, ctx context.Context) (int64, error) {
			return r.CountDuplicateCurrentVersions(ctx)
		},
	},
	{
		name:     "expired_without_expiration",
		severity: models.SeverityError,
		count: func(r repositories.QualityRepository, ctx context.Context) (int64, error) {
			return r.CountExpiredWithoutExpiration(ctx)
		},
	},
}

type qualityAuditor struct {
	repo     repositories.QualityRepository
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewQualityAuditor creates a QualityAuditor. Pass nil retryCfg for the
// default backoff.
func NewQualityAuditor(repo repositories.QualityRepository, retryCfg *retry.Config, logger *zap.Logger) QualityAuditor {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &qualityAuditor{
		repo:     repo,
		retryCfg: retryCfg,
		logger:   logger.Named("quality-auditor"),
	}
}

var _ QualityAuditor = (*qualityAuditor)(nil)

func (a *qualityAuditor) Audit(ctx context.Context) []models.QualityFinding {
	findings := make([]models.QualityFinding, 0, len(auditRules))

	for _, rule := range auditRules {
		finding := models.QualityFinding{Rule: rule.name, Severity: rule.severity}

		var violations int64
		// Read-only counts are idempotent, so transient failures retry.
		err := retry.DoIfRetryable(ctx, a.retryCfg, func() error {
			var countErr error
			violations, countErr = rule.count(a.repo, ctx)
			return countErr
		})
		if err != nil {
			finding.Detail = logging.SanitizeError(err)
			a.logger.Error("Audit rule failed to run",
				zap.String("rule", rule.name),
				zap.Error(err))
			findings = append(findings, finding)
			continue
		}

		finding.Violations = violations
		finding.Passed = violations == 0
		if !finding.Passed {
			a.logger.Warn("Audit rule found violations",
				zap.String("rule", rule.name),
				zap.String("severity", string(rule.severity)),
				zap.Int64("violations", violations))
		}
		findings = append(findings, finding)
	}

	return findings
}
