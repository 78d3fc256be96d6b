package ingest

import (
	"context"
	"io"

	"github.com/aerolake/aerolake-etl/pkg/models"
)

// RecordSource yields raw records one at a time. Next returns io.EOF when
// the source is exhausted. A non-EOF error means the source itself broke,
// not that a record was malformed; malformed records are returned with
// Kind set and a decode error so the caller can count the rejection and
// keep going.
type RecordSource interface {
	Next(ctx context.Context) (*models.RawRecord, error)
	Close() error
}

// SliceSource serves records from memory. Used in tests and for
// programmatic loads.
type SliceSource struct {
	records []*models.RawRecord
	pos     int
}

// NewSliceSource creates a SliceSource over the given records.
func NewSliceSource(records []*models.RawRecord) *SliceSource {
	return &SliceSource{records: records}
}

var _ RecordSource = (*SliceSource)(nil)

func (s *SliceSource) Next(ctx context.Context) (*models.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

func (s *SliceSource) Close() error {
	return nil
}
