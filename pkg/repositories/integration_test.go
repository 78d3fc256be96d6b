package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerolake/aerolake-etl/pkg/apperrors"
	"github.com/aerolake/aerolake-etl/pkg/database"
	"github.com/aerolake/aerolake-etl/pkg/models"
	"github.com/aerolake/aerolake-etl/pkg/testhelpers"
)

var (
	customerTracked = []string{"loyalty_tier", "email"}
	airportTracked  = []string{"airport_name", "city", "country", "timezone"}
)

// scopedCtx acquires a session scope the way the pipeline does for each
// logical unit of work.
func scopedCtx(t *testing.T, db *database.DB) (context.Context, func()) {
	t.Helper()
	scope, err := db.AcquireSession(context.Background())
	require.NoError(t, err)
	return database.SetSession(context.Background(), scope), scope.Close
}

// uniqueKey builds a business key no other test in the shared warehouse uses.
func uniqueKey(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func newCustomerVersion(t *testing.T, ctx context.Context, repo DimensionRepository, businessKey, tier string, effective time.Time) *models.DimensionVersion {
	t.Helper()
	sk, err := repo.NextSurrogateKey(ctx)
	require.NoError(t, err)
	return &models.DimensionVersion{
		SurrogateKey: sk,
		BusinessKey:  businessKey,
		Tracked: map[string]string{
			"loyalty_tier": tier,
			"email":        businessKey + "@example.com",
		},
		Extra: map[string]any{
			"first_name":     "Ada",
			"last_name":      "Reyes",
			"loyalty_points": 1200,
		},
		EffectiveDate: effective,
		IsCurrent:     true,
	}
}

func TestCustomerDimension_VersionChain(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	repo := NewCustomerDimensionRepository(customerTracked)
	ctx, done := scopedCtx(t, wh.DB)
	defer done()

	key := uniqueKey("C")
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	v1 := newCustomerVersion(t, ctx, repo, key, "silver", day1)
	require.NoError(t, repo.InsertNew(ctx, v1))

	current, err := repo.GetCurrent(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, v1.SurrogateKey, current.SurrogateKey)
	assert.Equal(t, "silver", current.Tracked["loyalty_tier"])
	assert.True(t, current.IsCurrent)
	assert.Nil(t, current.ExpirationDate)
	// Non-tracked columns round-trip through the extra set.
	assert.Equal(t, "Ada", current.Extra["first_name"])
	assert.Equal(t, 1200, current.Extra["loyalty_points"])

	v2 := newCustomerVersion(t, ctx, repo, key, "gold", day2)
	require.NoError(t, repo.ExpireAndInsert(ctx, v1.SurrogateKey, v2))

	versions, err := repo.ListVersions(ctx, key)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.False(t, versions[0].IsCurrent)
	require.NotNil(t, versions[0].ExpirationDate)
	assert.Equal(t, day2, versions[0].ExpirationDate.UTC())
	assert.True(t, versions[1].IsCurrent)
	assert.Equal(t, "gold", versions[1].Tracked["loyalty_tier"])

	current, err = repo.GetCurrent(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, v2.SurrogateKey, current.SurrogateKey)
}

func TestCustomerDimension_StaleExpireConflicts(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	repo := NewCustomerDimensionRepository(customerTracked)
	ctx, done := scopedCtx(t, wh.DB)
	defer done()

	key := uniqueKey("C")
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	v1 := newCustomerVersion(t, ctx, repo, key, "silver", day1)
	require.NoError(t, repo.InsertNew(ctx, v1))
	v2 := newCustomerVersion(t, ctx, repo, key, "gold", day1.Add(time.Hour))
	require.NoError(t, repo.ExpireAndInsert(ctx, v1.SurrogateKey, v2))

	// A merge still holding v1 as "current" lost the race: conditional
	// expire hits zero rows and nothing is written.
	v3 := newCustomerVersion(t, ctx, repo, key, "platinum", day1.Add(2*time.Hour))
	err := repo.ExpireAndInsert(ctx, v1.SurrogateKey, v3)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	versions, err := repo.ListVersions(ctx, key)
	require.NoError(t, err)
	assert.Len(t, versions, 2, "the losing transaction must write nothing")
}

func TestCustomerDimension_SecondCurrentRowConflicts(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	repo := NewCustomerDimensionRepository(customerTracked)
	ctx, done := scopedCtx(t, wh.DB)
	defer done()

	key := uniqueKey("C")
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertNew(ctx, newCustomerVersion(t, ctx, repo, key, "silver", day1)))

	// The partial unique index rejects a second current row for the key.
	err := repo.InsertNew(ctx, newCustomerVersion(t, ctx, repo, key, "gold", day1))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCustomerDimension_SurrogateKeyCollision(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	repo := NewCustomerDimensionRepository(customerTracked)
	ctx, done := scopedCtx(t, wh.DB)
	defer done()

	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	v1 := newCustomerVersion(t, ctx, repo, uniqueKey("C"), "silver", day1)
	require.NoError(t, repo.InsertNew(ctx, v1))

	// Reusing an existing surrogate key for a different business key is an
	// allocator failure, not a merge race.
	v2 := newCustomerVersion(t, ctx, repo, uniqueKey("C"), "silver", day1)
	v2.SurrogateKey = v1.SurrogateKey
	err := repo.InsertNew(ctx, v2)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSurrogateKeyCollision)
}

func TestAirportDimension_VersionChain(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	repo := NewAirportDimensionRepository(airportTracked)
	ctx, done := scopedCtx(t, wh.DB)
	defer done()

	key := uniqueKey("AP")
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	sk, err := repo.NextSurrogateKey(ctx)
	require.NoError(t, err)
	v1 := &models.DimensionVersion{
		SurrogateKey: sk,
		BusinessKey:  key,
		Tracked: map[string]string{
			"airport_name": "Testfield Regional",
			"city":         "Testville",
			"country":      "US",
			"timezone":     "America/Denver",
		},
		Extra: map[string]any{
			"icao":      "KTST",
			"region":    "CO",
			"latitude":  39.7,
			"longitude": -104.9,
		},
		EffectiveDate: day1,
		IsCurrent:     true,
	}
	require.NoError(t, repo.InsertNew(ctx, v1))

	current, err := repo.GetCurrent(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Testfield Regional", current.Tracked["airport_name"])
	assert.InDelta(t, 39.7, current.Extra["latitude"].(float64), 0.0001)

	// Rename the airport: tracked drift, new version.
	sk2, err := repo.NextSurrogateKey(ctx)
	require.NoError(t, err)
	v2 := *v1
	v2.SurrogateKey = sk2
	v2.Tracked = map[string]string{
		"airport_name": "Testfield International",
		"city":         "Testville",
		"country":      "US",
		"timezone":     "America/Denver",
	}
	v2.EffectiveDate = day1.Add(24 * time.Hour)
	require.NoError(t, repo.ExpireAndInsert(ctx, sk, &v2))

	versions, err := repo.ListVersions(ctx, key)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "Testfield International", versions[1].Tracked["airport_name"])
}

func insertTestAirport(t *testing.T, ctx context.Context, repo DimensionRepository, iata string) int64 {
	t.Helper()
	sk, err := repo.NextSurrogateKey(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.InsertNew(ctx, &models.DimensionVersion{
		SurrogateKey: sk,
		BusinessKey:  iata,
		Tracked: map[string]string{
			"airport_name": iata + " Intl",
			"city":         "Testville",
			"country":      "US",
			"timezone":     "UTC",
		},
		Extra:         map[string]any{"latitude": 0.0, "longitude": 0.0},
		EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IsCurrent:     true,
	}))
	return sk
}

func testFact(flightKey string, depKey, arrKey int64) *models.FlightFact {
	return &models.FlightFact{
		FlightKey:           flightKey,
		DateKey:             20260301,
		DepartureAirportKey: depKey,
		ArrivalAirportKey:   arrKey,
		CarrierCode:         "AS",
		DepartureDelayMin:   5,
		ArrivalDelayMin:     12,
		SeatsAvailable:      180,
		SeatsFilled:         150,
		LoadFactor:          83.33,
		OnTimeFlag:          true,
		Revenue:             41250.50,
		FuelCost:            9800.00,
		DistanceMiles:       679,
	}
}

func TestFlightFactRepository_UpsertIdempotence(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	airports := NewAirportDimensionRepository(airportTracked)
	facts := NewFlightFactRepository()
	ctx, done := scopedCtx(t, wh.DB)
	defer done()

	depKey := insertTestAirport(t, ctx, airports, uniqueKey("AP"))
	arrKey := insertTestAirport(t, ctx, airports, uniqueKey("AP"))
	flightKey := uniqueKey("FL")

	outcome, err := facts.Upsert(ctx, testFact(flightKey, depKey, arrKey))
	require.NoError(t, err)
	assert.Equal(t, models.UpsertOutcomeInserted, outcome)

	// Re-load revises the revisable measures and nothing else.
	revised := testFact(flightKey, depKey, arrKey)
	revised.ArrivalDelayMin = 45
	revised.OnTimeFlag = false
	revised.SeatsFilled = 160
	revised.LoadFactor = 88.89
	revised.Revenue = 99999.99 // historical measure, must not change

	outcome, err = facts.Upsert(ctx, revised)
	require.NoError(t, err)
	assert.Equal(t, models.UpsertOutcomeUpdated, outcome)

	stored, err := facts.GetByFlightKey(ctx, flightKey)
	require.NoError(t, err)
	assert.Equal(t, 45, stored.ArrivalDelayMin)
	assert.False(t, stored.OnTimeFlag)
	assert.Equal(t, 160, stored.SeatsFilled)
	assert.InDelta(t, 41250.50, stored.Revenue, 0.001, "historical measures stay fixed on re-load")
}

func TestLoadRunRepository_Journal(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	runs := NewLoadRunRepository()
	ctx, done := scopedCtx(t, wh.DB)
	defer done()

	startedAt := time.Now().UTC().Truncate(time.Microsecond)
	id, err := runs.Create(ctx, startedAt)
	require.NoError(t, err)

	summary := models.RunSummary{RecordsRead: 100, FactsInserted: 60, QualityViolations: 2}
	finishedAt := startedAt.Add(3 * time.Minute)
	require.NoError(t, runs.MarkSucceeded(ctx, id, finishedAt, summary))

	latest, err := runs.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, latest.ID)
	assert.Equal(t, models.RunStatusSucceeded, latest.Status)
	assert.Equal(t, 100, latest.Summary.RecordsRead)
	assert.Empty(t, latest.ErrorMessage)

	// A later failed run becomes the latest, summary intact.
	id2, err := runs.Create(ctx, finishedAt.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, runs.MarkFailed(ctx, id2, finishedAt.Add(2*time.Minute),
		"record source failed", models.RunSummary{RecordsRead: 10}))

	latest, err = runs.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, id2, latest.ID)
	assert.Equal(t, models.RunStatusFailed, latest.Status)
	assert.Equal(t, "record source failed", latest.ErrorMessage)
	assert.Equal(t, 10, latest.Summary.RecordsRead)
}

func TestQualityRepository_OrphanDetection(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	facts := NewFlightFactRepository()
	quality := NewQualityRepository()
	ctx, done := scopedCtx(t, wh.DB)
	defer done()

	before, err := quality.CountOrphanedFlightReferences(ctx)
	require.NoError(t, err)

	// A fact pointing at surrogate keys no dimension row holds.
	_, err = facts.Upsert(ctx, testFact(uniqueKey("FL"), 999999901, 999999902))
	require.NoError(t, err)

	after, err := quality.CountOrphanedFlightReferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}

func TestQualityRepository_SCD2InvariantsHoldAfterMerges(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	repo := NewCustomerDimensionRepository(customerTracked)
	quality := NewQualityRepository()
	ctx, done := scopedCtx(t, wh.DB)
	defer done()

	key := uniqueKey("C")
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	v1 := newCustomerVersion(t, ctx, repo, key, "silver", day1)
	require.NoError(t, repo.InsertNew(ctx, v1))
	v2 := newCustomerVersion(t, ctx, repo, key, "gold", day1.Add(time.Hour))
	require.NoError(t, repo.ExpireAndInsert(ctx, v1.SurrogateKey, v2))

	dupes, err := quality.CountDuplicateCurrentVersions(ctx)
	require.NoError(t, err)
	assert.Zero(t, dupes)

	unexpired, err := quality.CountExpiredWithoutExpiration(ctx)
	require.NoError(t, err)
	assert.Zero(t, unexpired)
}
