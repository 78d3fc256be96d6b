package repositories

import (
	"context"
	"fmt"

	"github.com/aerolake/aerolake-etl/pkg/database"
)

// QualityRepository runs the aggregate count queries behind the post-load
// audit rules. Every method is read-only; the auditor never mutates the
// warehouse.
type QualityRepository interface {
	// CountOrphanedFlightReferences counts fact rows whose departure or
	// arrival airport surrogate key resolves to no dimension row.
	CountOrphanedFlightReferences(ctx context.Context) (int64, error)

	// CountInvalidLoadFactors counts facts with load factor outside [0,100].
	CountInvalidLoadFactors(ctx context.Context) (int64, error)

	// CountOverbookedFlights counts facts with seats_filled > seats_available.
	CountOverbookedFlights(ctx context.Context) (int64, error)

	// CountFutureDatedFlights counts facts dated after the warehouse clock.
	CountFutureDatedFlights(ctx context.Context) (int64, error)

	// CountDuplicateCurrentVersions counts business keys holding more than
	// one current row, across both SCD2 dimensions.
	CountDuplicateCurrentVersions(ctx context.Context) (int64, error)

	// CountExpiredWithoutExpiration counts non-current rows missing an
	// expiration date, across both SCD2 dimensions.
	CountExpiredWithoutExpiration(ctx context.Context) (int64, error)
}

type qualityRepository struct{}

// NewQualityRepository creates a QualityRepository.
func NewQualityRepository() QualityRepository {
	return &qualityRepository{}
}

var _ QualityRepository = (*qualityRepository)(nil)

func (r *qualityRepository) count(ctx context.Context, name, query string) (int64, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return 0, fmt.Errorf("no session scope in context")
	}

	var n int64
	if err := scope.Conn.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to run %s check: %w", name, err)
	}
	return n, nil
}

func (r *qualityRepository) CountOrphanedFlightReferences(ctx context.Context) (int64, error) {
	return r.count(ctx, "orphaned_flight_references", `
		SELECT COUNT(*)
		FROM fact_flights ff
		LEFT JOIN dim_airports dep ON ff.departure_airport_key = dep.surrogate_key
		LEFT JOIN dim_airports arr ON ff.arrival_airport_key = arr.surrogate_key
		WHERE dep.surrogate_key IS NULL OR arr.surrogate_key IS NULL`)
}

func (r *qualityRepository) CountInvalidLoadFactors(ctx context.Context) (int64, error) {
	return r.count(ctx, "invalid_load_factors", `
		SELECT COUNT(*)
		FROM fact_flights
		WHERE load_factor < 0 OR load_factor > 100`)
}

func (r *qualityRepository) CountOverbookedFlights(ctx context.Context) (int64, error) {
	return r.count(ctx, "overbooked_flights", `
		SELECT COUNT(*)
		FROM fact_flights
		WHERE seats_filled > seats_available`)
}

func (r *qualityRepository) CountFutureDatedFlights(ctx context.Context) (int64, error) {
	return r.count(ctx, "future_dated_flights", `
		SELECT COUNT(*)
		FROM fact_flights ff
		JOIN dim_dates d ON ff.date_key = d.date_key
		WHERE d.full_date > CURRENT_DATE`)
}

func (r *qualityRepository) CountDuplicateCurrentVersions(ctx context.Context) (int64, error) {
	return r.count(ctx, "duplicate_current_versions", `
		SELECT
			(SELECT COUNT(*) FROM (
				SELECT customer_id FROM dim_customers
				WHERE is_current GROUP BY customer_id HAVING COUNT(*) > 1
			) dup_customers)
			+
			(SELECT COUNT(*) FROM (
				SELECT iata FROM dim_airports
				WHERE is_current GROUP BY iata HAVING COUNT(*) > 1
			) dup_airports)`)
}

func (r *qualityRepository) CountExpiredWithoutExpiration(ctx context.Context) (int64, error) {
	return r.count(ctx, "expired_without_expiration", `
		SELECT
			(SELECT COUNT(*) FROM dim_customers WHERE NOT is_current AND expiration_date IS NULL)
			+
			(SELECT COUNT(*) FROM dim_airports WHERE NOT is_current AND expiration_date IS NULL)`)
}
