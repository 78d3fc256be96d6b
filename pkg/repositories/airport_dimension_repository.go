package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aerolake/aerolake-etl/pkg/apperrors"
	"github.com/aerolake/aerolake-etl/pkg/database"
	"github.com/aerolake/aerolake-etl/pkg/models"
)

// airportDimensionRepository stores the airport dimension in dim_airports.
// Latitude and longitude are deliberately untrackable: tracked attributes
// compare by exact string equality, and float coordinates have no exact
// canonical form.
type airportDimensionRepository struct {
	tracked []string
}

// NewAirportDimensionRepository creates a DimensionRepository over
// dim_airports with the configured tracked-attribute set.
func NewAirportDimensionRepository(tracked []string) DimensionRepository {
	return &airportDimensionRepository{tracked: tracked}
}

var _ DimensionRepository = (*airportDimensionRepository)(nil)

func (r *airportDimensionRepository) Name() string { return "airport" }

const airportColumns = `surrogate_key, iata, icao, airport_name, city, country, region, timezone, latitude, longitude, effective_date, expiration_date, is_current`

func (r *airportDimensionRepository) GetCurrent(ctx context.Context, businessKey string) (*models.DimensionVersion, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return nil, fmt.Errorf("no session scope in context")
	}

	query := `
		SELECT ` + airportColumns + `
		FROM dim_airports
		WHERE iata = $1 AND is_current = TRUE`

	v, err := r.scanVersion(scope.Conn.QueryRow(ctx, query, businessKey))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current airport version: %w", err)
	}
	return v, nil
}

func (r *airportDimensionRepository) ListCurrent(ctx context.Context) ([]*models.DimensionVersion, error) {
	query := `
		SELECT ` + airportColumns + `
		FROM dim_airports
		WHERE is_current = TRUE
		ORDER BY iata`
	return r.list(ctx, query)
}

func (r *airportDimensionRepository) ListVersions(ctx context.Context, businessKey string) ([]*models.DimensionVersion, error) {
	query := `
		SELECT ` + airportColumns + `
		FROM dim_airports
		WHERE iata = $1
		ORDER BY effective_date, surrogate_key`
	return r.list(ctx, query, businessKey)
}

func (r *airportDimensionRepository) list(ctx context.Context, query string, args ...any) ([]*models.DimensionVersion, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return nil, fmt.Errorf("no session scope in context")
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dim_airports: %w", err)
	}
	defer rows.Close()

	var versions []*models.DimensionVersion
	for rows.Next() {
		v, err := r.scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan airport version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating airport versions: %w", err)
	}
	return versions, nil
}

func (r *airportDimensionRepository) NextSurrogateKey(ctx context.Context) (int64, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return 0, fmt.Errorf("no session scope in context")
	}

	var key int64
	err := scope.Conn.QueryRow(ctx, `SELECT nextval('dim_airports_sk_seq')`).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate airport surrogate key: %w", err)
	}
	return key, nil
}

func (r *airportDimensionRepository) InsertNew(ctx context.Context, v *models.DimensionVersion) error {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return fmt.Errorf("no session scope in context")
	}

	if err := r.insert(ctx, scope.Conn, v); err != nil {
		return fmt.Errorf("failed to insert new airport version: %w",
			classifyInsertError(err, "dim_airports_pkey", "dim_airports_one_current_idx"))
	}
	return nil
}

func (r *airportDimensionRepository) ExpireAndInsert(ctx context.Context, oldSurrogateKey int64, v *models.DimensionVersion) error {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return fmt.Errorf("no session scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin airport version transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE dim_airports
		SET is_current = FALSE, expiration_date = $2
		WHERE surrogate_key = $1 AND is_current = TRUE`,
		oldSurrogateKey, v.EffectiveDate)
	if err != nil {
		return fmt.Errorf("failed to expire airport version %d: %w", oldSurrogateKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("airport version %d already expired: %w", oldSurrogateKey, apperrors.ErrConflict)
	}

	if err := r.insert(ctx, tx, v); err != nil {
		return fmt.Errorf("failed to insert airport version: %w",
			classifyInsertError(err, "dim_airports_pkey", "dim_airports_one_current_idx"))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit airport version transaction: %w", err)
	}
	committed = true
	return nil
}

func (r *airportDimensionRepository) insert(ctx context.Context, db dbExecer, v *models.DimensionVersion) error {
	_, err := db.Exec(ctx, `
		INSERT INTO dim_airports (
			surrogate_key, iata, icao, airport_name, city, country, region,
			timezone, latitude, longitude, effective_date, expiration_date, is_current
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.SurrogateKey,
		v.BusinessKey,
		models.Attr(v.Tracked, v.Extra, "icao"),
		models.Attr(v.Tracked, v.Extra, "airport_name"),
		models.Attr(v.Tracked, v.Extra, "city"),
		models.Attr(v.Tracked, v.Extra, "country"),
		models.Attr(v.Tracked, v.Extra, "region"),
		models.Attr(v.Tracked, v.Extra, "timezone"),
		models.ExtraFloat(v.Extra, "latitude"),
		models.ExtraFloat(v.Extra, "longitude"),
		v.EffectiveDate,
		v.ExpirationDate,
		v.IsCurrent,
	)
	return err
}

func (r *airportDimensionRepository) scanVersion(row pgx.Row) (*models.DimensionVersion, error) {
	var (
		surrogateKey   int64
		businessKey    string
		icao           string
		airportName    string
		city           string
		country        string
		region         string
		timezone       string
		latitude       float64
		longitude      float64
		effectiveDate  time.Time
		expirationDate *time.Time
		isCurrent      bool
	)

	err := row.Scan(&surrogateKey, &businessKey, &icao, &airportName, &city, &country,
		&region, &timezone, &latitude, &longitude, &effectiveDate, &expirationDate, &isCurrent)
	if err != nil {
		return nil, err
	}

	snapshot := models.BuildSnapshot(businessKey,
		map[string]string{
			"icao":         icao,
			"airport_name": airportName,
			"city":         city,
			"country":      country,
			"region":       region,
			"timezone":     timezone,
		},
		map[string]any{"latitude": latitude, "longitude": longitude},
		r.tracked,
	)

	return &models.DimensionVersion{
		SurrogateKey:   surrogateKey,
		BusinessKey:    businessKey,
		Tracked:        snapshot.Tracked,
		Extra:          snapshot.Extra,
		EffectiveDate:  effectiveDate,
		ExpirationDate: expirationDate,
		IsCurrent:      isCurrent,
	}, nil
}
