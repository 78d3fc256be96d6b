package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockQualityRepo returns configurable counts per rule. errs entries fail
// every call; failOnce entries fail the first call only.
type mockQualityRepo struct {
	counts   map[string]int64
	errs     map[string]error
	failOnce map[string]error
	calls    map[string]int
}

func newMockQualityRepo() *mockQualityRepo {
	return &mockQualityRepo{
		counts:   make(map[string]int64),
		errs:     make(map[string]error),
		failOnce: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (m *mockQualityRepo) rule(name string) (int64, error) {
	m.calls[name]++
	if err := m.failOnce[name]; err != nil {
		delete(m.failOnce, name)
		return 0, err
	}
	if err := m.errs[name]; err != nil {
		return 0, err
	}
	return m.counts[name], nil
}

func (m *mockQualityRepo) CountOrphanedFlightReferences(ctx context.Context) (int64, error) {
	return m.rule("orphaned_flight_references")
}
func (m *mockQualityRepo) CountInvalidLoadFactors(ctx context.Context) (int64, error) {
	return m.rule("invalid_load_factors")
}
func (m *mockQualityRepo) CountOverbookedFlights(ctx context.Context) (int64, error) {
	return m.rule("overbooked_flights")
}
func (m *mockQualityRepo) CountFutureDatedFlights(ctx context.Context) (int64, error) {
	return m.rule("future_dated_flights")
}
func (m *mockQualityRepo) CountDuplicateCurrentVersions(ctx context.Context) (int64, error) {
	return m.rule("duplicate_current_versions")
}
func (m *mockQualityRepo) CountExpiredWithoutExpiration(ctx context.Context) (int64, error) {
	return m.rule("expired_without_expiration")
}

func TestAudit_CleanWarehousePassesEveryRule(t *testing.T) {
	repo := newMockQualityRepo()
	auditor := NewQualityAuditor(repo, fastRetryConfig(), zap.NewNop())

	findings := auditor.Audit(context.Background())
	require.Len(t, findings, 6)
	for _, f := range findings {
		assert.True(t, f.Passed, "rule %s", f.Rule)
		assert.Zero(t, f.Violations, "rule %s", f.Rule)
		assert.Empty(t, f.Detail, "rule %s", f.Rule)
	}
}

func TestAudit_OrphanedReferenceReported(t *testing.T) {
	repo := newMockQualityRepo()
	repo.counts["orphaned_flight_references"] = 3
	auditor := NewQualityAuditor(repo, fastRetryConfig(), zap.NewNop())

	findings := auditor.Audit(context.Background())
	require.Len(t, findings, 6)

	// Exactly one finding names the orphan rule, with the violation count.
	var orphanFindings []int
	for i, f := range findings {
		if f.Rule == "orphaned_flight_references" {
			orphanFindings = append(orphanFindings, i)
		}
	}
	require.Len(t, orphanFindings, 1)
	orphan := findings[orphanFindings[0]]
	assert.False(t, orphan.Passed)
	assert.Equal(t, int64(3), orphan.Violations)

	// The other rules still pass.
	for i, f := range findings {
		if i != orphanFindings[0] {
			assert.True(t, f.Passed, "rule %s", f.Rule)
		}
	}
}

func TestAudit_FailingRuleDoesNotBlockOthers(t *testing.T) {
	repo := newMockQualityRepo()
	repo.errs["invalid_load_factors"] = fmt.Errorf("relation fact_flights does not exist")
	repo.counts["overbooked_flights"] = 2
	auditor := NewQualityAuditor(repo, fastRetryConfig(), zap.NewNop())

	findings := auditor.Audit(context.Background())
	require.Len(t, findings, 6)

	byRule := make(map[string]int)
	for i, f := range findings {
		byRule[f.Rule] = i
	}

	errored := findings[byRule["invalid_load_factors"]]
	assert.False(t, errored.Passed)
	assert.Contains(t, errored.Detail, "does not exist")

	// Rules after the errored one still ran.
	overbooked := findings[byRule["overbooked_flights"]]
	assert.False(t, overbooked.Passed)
	assert.Equal(t, int64(2), overbooked.Violations)
	assert.True(t, findings[byRule["expired_without_expiration"]].Passed)
}

func TestAudit_TransientFailureRetried(t *testing.T) {
	repo := newMockQualityRepo()
	repo.failOnce["orphaned_flight_references"] = fmt.Errorf("count orphans: connection reset")
	auditor := NewQualityAuditor(repo, fastRetryConfig(), zap.NewNop())

	// First call fails transiently; the retry succeeds and the rule passes.
	findings := auditor.Audit(context.Background())
	assert.Equal(t, 2, repo.calls["orphaned_flight_references"])
	for _, f := range findings {
		if f.Rule == "orphaned_flight_references" {
			assert.True(t, f.Passed)
		}
	}
}
