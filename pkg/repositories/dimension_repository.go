package repositories

import (
	"context"

	"github.com/aerolake/aerolake-etl/pkg/models"
)

// DimensionRepository provides SCD2 storage for one dimension. Implementations
// map their typed warehouse columns to the attribute-set model the merge
// engine works on, routing attributes into tracked/extra according to the
// configured tracked set.
//
// Write methods encode the concurrency contract:
//   - InsertNew fails with apperrors.ErrConflict when another merge created a
//     current row for the same business key first, and with
//     apperrors.ErrSurrogateKeyCollision when the freshly allocated surrogate
//     key already exists.
//   - ExpireAndInsert runs as one transaction; the expire is a conditional
//     write keyed on the old surrogate key and is_current, so a lost race
//     surfaces as apperrors.ErrConflict with nothing written.
type DimensionRepository interface {
	// Name identifies the dimension in logs and findings.
	Name() string

	// GetCurrent returns the current version for a business key, or
	// apperrors.ErrNotFound.
	GetCurrent(ctx context.Context, businessKey string) (*models.DimensionVersion, error)

	// ListCurrent returns all current rows, the read-only view the reporting
	// layer queries.
	ListCurrent(ctx context.Context) ([]*models.DimensionVersion, error)

	// ListVersions returns the full version chain for a business key ordered
	// by effective date.
	ListVersions(ctx context.Context, businessKey string) ([]*models.DimensionVersion, error)

	// NextSurrogateKey allocates the next key from the dimension's sequence.
	NextSurrogateKey(ctx context.Context) (int64, error)

	// InsertNew writes the first version of a never-seen business key.
	InsertNew(ctx context.Context, v *models.DimensionVersion) error

	// ExpireAndInsert atomically expires the current version identified by
	// oldSurrogateKey and inserts v as the new current version.
	ExpireAndInsert(ctx context.Context, oldSurrogateKey int64, v *models.DimensionVersion) error
}
