package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aerolake/aerolake-etl/pkg/apperrors"
	"github.com/aerolake/aerolake-etl/pkg/database"
	"github.com/aerolake/aerolake-etl/pkg/models"
)

// FlightFactRepository provides idempotent storage for the flight fact table.
type FlightFactRepository interface {
	// Upsert inserts the fact or, if the flight key exists, updates only the
	// revisable measures. Replaying an identical upsert is a no-op in effect.
	Upsert(ctx context.Context, f *models.FlightFact) (models.UpsertOutcome, error)

	// GetByFlightKey returns one fact row, or apperrors.ErrNotFound.
	GetByFlightKey(ctx context.Context, flightKey string) (*models.FlightFact, error)

	// Summarize returns the aggregate measure view the reporting layer reads.
	Summarize(ctx context.Context) (*models.FlightMeasureSummary, error)
}

type flightFactRepository struct{}

// NewFlightFactRepository creates a FlightFactRepository.
func NewFlightFactRepository() FlightFactRepository {
	return &flightFactRepository{}
}

var _ FlightFactRepository = (*flightFactRepository)(nil)

func (r *flightFactRepository) Upsert(ctx context.Context, f *models.FlightFact) (models.UpsertOutcome, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return "", fmt.Errorf("no session scope in context")
	}

	// Revisable measures only in the DO UPDATE set: delays firm up after the
	// fact, seats filled and its derivations follow. Identity fields and
	// historical measures (revenue, fuel, distance, seats available) stay as
	// first loaded. xmax = 0 distinguishes a fresh insert from an update.
	query := `
		INSERT INTO fact_flights (
			flight_key, date_key, departure_airport_key, arrival_airport_key,
			carrier_code, departure_delay_min, arrival_delay_min,
			seats_available, seats_filled, load_factor, on_time_flag,
			revenue, fuel_cost, distance_miles, cancelled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (flight_key) DO UPDATE SET
			departure_delay_min = EXCLUDED.departure_delay_min,
			arrival_delay_min   = EXCLUDED.arrival_delay_min,
			seats_filled        = EXCLUDED.seats_filled,
			load_factor         = EXCLUDED.load_factor,
			on_time_flag        = EXCLUDED.on_time_flag
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := scope.Conn.QueryRow(ctx, query,
		f.FlightKey, f.DateKey, f.DepartureAirportKey, f.ArrivalAirportKey,
		f.CarrierCode, f.DepartureDelayMin, f.ArrivalDelayMin,
		f.SeatsAvailable, f.SeatsFilled, f.LoadFactor, f.OnTimeFlag,
		f.Revenue, f.FuelCost, f.DistanceMiles, f.Cancelled,
	).Scan(&inserted)
	if err != nil {
		return "", fmt.Errorf("failed to upsert flight fact %s: %w", f.FlightKey, err)
	}

	if inserted {
		return models.UpsertOutcomeInserted, nil
	}
	return models.UpsertOutcomeUpdated, nil
}

func (r *flightFactRepository) GetByFlightKey(ctx context.Context, flightKey string) (*models.FlightFact, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return nil, fmt.Errorf("no session scope in context")
	}

	query := `
		SELECT flight_key, date_key, departure_airport_key, arrival_airport_key,
			carrier_code, departure_delay_min, arrival_delay_min,
			seats_available, seats_filled, load_factor, on_time_flag,
			revenue, fuel_cost, distance_miles, cancelled
		FROM fact_flights
		WHERE flight_key = $1`

	var f models.FlightFact
	err := scope.Conn.QueryRow(ctx, query, flightKey).Scan(
		&f.FlightKey, &f.DateKey, &f.DepartureAirportKey, &f.ArrivalAirportKey,
		&f.CarrierCode, &f.DepartureDelayMin, &f.ArrivalDelayMin,
		&f.SeatsAvailable, &f.SeatsFilled, &f.LoadFactor, &f.OnTimeFlag,
		&f.Revenue, &f.FuelCost, &f.DistanceMiles, &f.Cancelled,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get flight fact %s: %w", flightKey, err)
	}
	return &f, nil
}

func (r *flightFactRepository) Summarize(ctx context.Context) (*models.FlightMeasureSummary, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return nil, fmt.Errorf("no session scope in context")
	}

	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(load_factor), 0),
			COALESCE(AVG(arrival_delay_min), 0),
			COALESCE(AVG(CASE WHEN on_time_flag THEN 1.0 ELSE 0.0 END), 0),
			COUNT(*) FILTER (WHERE cancelled),
			COALESCE(SUM(revenue), 0)
		FROM fact_flights`

	var s models.FlightMeasureSummary
	err := scope.Conn.QueryRow(ctx, query).Scan(
		&s.FlightCount, &s.AvgLoadFactor, &s.AvgArrivalDelay,
		&s.OnTimeRate, &s.CancelledFlights, &s.TotalRevenue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize flight facts: %w", err)
	}
	return &s, nil
}
