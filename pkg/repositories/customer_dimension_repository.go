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

// customerDimensionRepository stores the customer dimension in dim_customers.
type customerDimensionRepository struct {
	tracked []string
}

// NewCustomerDimensionRepository creates a DimensionRepository over
// dim_customers. tracked is the configured tracked-attribute set; attributes
// outside it load on first sighting only.
func NewCustomerDimensionRepository(tracked []string) DimensionRepository {
	return &customerDimensionRepository{tracked: tracked}
}

var _ DimensionRepository = (*customerDimensionRepository)(nil)

func (r *customerDimensionRepository) Name() string { return "customer" }

const customerColumns = `surrogate_key, customer_id, first_name, last_name, email, loyalty_tier, loyalty_points, effective_date, expiration_date, is_current`

func (r *customerDimensionRepository) GetCurrent(ctx context.Context, businessKey string) (*models.DimensionVersion, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return nil, fmt.Errorf("no session scope in context")
	}

	query := `
		SELECT ` + customerColumns + `
		FROM dim_customers
		WHERE customer_id = $1 AND is_current = TRUE`

	v, err := r.scanVersion(scope.Conn.QueryRow(ctx, query, businessKey))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current customer version: %w", err)
	}
	return v, nil
}

func (r *customerDimensionRepository) ListCurrent(ctx context.Context) ([]*models.DimensionVersion, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM dim_customers
		WHERE is_current = TRUE
		ORDER BY customer_id`
	return r.list(ctx, query)
}

func (r *customerDimensionRepository) ListVersions(ctx context.Context, businessKey string) ([]*models.DimensionVersion, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM dim_customers
		WHERE customer_id = $1
		ORDER BY effective_date, surrogate_key`
	return r.list(ctx, query, businessKey)
}

func (r *customerDimensionRepository) list(ctx context.Context, query string, args ...any) ([]*models.DimensionVersion, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return nil, fmt.Errorf("no session scope in context")
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dim_customers: %w", err)
	}
	defer rows.Close()

	var versions []*models.DimensionVersion
	for rows.Next() {
		v, err := r.scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customer versions: %w", err)
	}
	return versions, nil
}

func (r *customerDimensionRepository) NextSurrogateKey(ctx context.Context) (int64, error) {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return 0, fmt.Errorf("no session scope in context")
	}

	var key int64
	err := scope.Conn.QueryRow(ctx, `SELECT nextval('dim_customers_sk_seq')`).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate customer surrogate key: %w", err)
	}
	return key, nil
}

func (r *customerDimensionRepository) InsertNew(ctx context.Context, v *models.DimensionVersion) error {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return fmt.Errorf("no session scope in context")
	}

	if err := r.insert(ctx, scope.Conn, v); err != nil {
		return fmt.Errorf("failed to insert new customer version: %w",
			classifyInsertError(err, "dim_customers_pkey", "dim_customers_one_current_idx"))
	}
	return nil
}

func (r *customerDimensionRepository) ExpireAndInsert(ctx context.Context, oldSurrogateKey int64, v *models.DimensionVersion) error {
	scope, ok := database.GetSession(ctx)
	if !ok {
		return fmt.Errorf("no session scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin customer version transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	// Conditional expire: only the merge that still sees the old current row
	// wins. A loser observes zero rows and retries from a fresh read.
	tag, err := tx.Exec(ctx, `
		UPDATE dim_customers
		SET is_current = FALSE, expiration_date = $2
		WHERE surrogate_key = $1 AND is_current = TRUE`,
		oldSurrogateKey, v.EffectiveDate)
	if err != nil {
		return fmt.Errorf("failed to expire customer version %d: %w", oldSurrogateKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer version %d already expired: %w", oldSurrogateKey, apperrors.ErrConflict)
	}

	if err := r.insert(ctx, tx, v); err != nil {
		return fmt.Errorf("failed to insert customer version: %w",
			classifyInsertError(err, "dim_customers_pkey", "dim_customers_one_current_idx"))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit customer version transaction: %w", err)
	}
	committed = true
	return nil
}

func (r *customerDimensionRepository) insert(ctx context.Context, db dbExecer, v *models.DimensionVersion) error {
	_, err := db.Exec(ctx, `
		INSERT INTO dim_customers (
			surrogate_key, customer_id, first_name, last_name, email,
			loyalty_tier, loyalty_points, effective_date, expiration_date, is_current
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.SurrogateKey,
		v.BusinessKey,
		models.Attr(v.Tracked, v.Extra, "first_name"),
		models.Attr(v.Tracked, v.Extra, "last_name"),
		models.Attr(v.Tracked, v.Extra, "email"),
		models.Attr(v.Tracked, v.Extra, "loyalty_tier"),
		models.ExtraInt(v.Extra, "loyalty_points"),
		v.EffectiveDate,
		v.ExpirationDate,
		v.IsCurrent,
	)
	return err
}

func (r *customerDimensionRepository) scanVersion(row pgx.Row) (*models.DimensionVersion, error) {
	var (
		surrogateKey   int64
		businessKey    string
		firstName      string
		lastName       string
		email          string
		loyaltyTier    string
		loyaltyPoints  int
		effectiveDate  time.Time
		expirationDate *time.Time
		isCurrent      bool
	)

	err := row.Scan(&surrogateKey, &businessKey, &firstName, &lastName, &email,
		&loyaltyTier, &loyaltyPoints, &effectiveDate, &expirationDate, &isCurrent)
	if err != nil {
		return nil, err
	}

	snapshot := models.BuildSnapshot(businessKey,
		map[string]string{
			"first_name":   firstName,
			"last_name":    lastName,
			"email":        email,
			"loyalty_tier": loyaltyTier,
		},
		map[string]any{"loyalty_points": loyaltyPoints},
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
