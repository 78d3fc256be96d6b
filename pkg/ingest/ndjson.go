package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aerolake/aerolake-etl/pkg/models"
)

// maxLineBytes bounds a single NDJSON line. Source extracts with longer
// lines are corrupt and fail the whole source.
const maxLineBytes = 1 << 20

// DecodeError marks a line that could not be decoded into a typed record.
// The pipeline treats these as rejected records, not source failures.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NDJSONSource reads newline-delimited JSON envelopes from a reader. Each
// line carries a kind discriminator and exactly one typed payload.
type NDJSONSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewNDJSONSource wraps an open reader. The source closes closer when Close
// is called; pass nil when the caller owns the reader's lifetime.
func NewNDJSONSource(r io.Reader, closer io.Closer) *NDJSONSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &NDJSONSource{scanner: scanner, closer: closer}
}

// OpenNDJSONFile opens path as an NDJSON record source.
func OpenNDJSONFile(path string) (*NDJSONSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	return NewNDJSONSource(f, f), nil
}

var _ RecordSource = (*NDJSONSource)(nil)

func (s *NDJSONSource) Next(ctx context.Context) (*models.RawRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read source at line %d: %w", s.line+1, err)
			}
			return nil, io.EOF
		}
		s.line++

		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}

		var rec models.RawRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, &DecodeError{Line: s.line, Err: err}
		}
		if err := checkEnvelope(&rec); err != nil {
			return nil, &DecodeError{Line: s.line, Err: err}
		}
		return &rec, nil
	}
}

func (s *NDJSONSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// checkEnvelope verifies the kind discriminator matches the payload that is
// actually set. Validation of field contents happens downstream.
func checkEnvelope(rec *models.RawRecord) error {
	switch rec.Kind {
	case models.RecordKindCustomer:
		if rec.Customer == nil {
			return fmt.Errorf("kind %q without customer payload", rec.Kind)
		}
	case models.RecordKindAirport:
		if rec.Airport == nil {
			return fmt.Errorf("kind %q without airport payload", rec.Kind)
		}
	case models.RecordKindFlight:
		if rec.Flight == nil {
			return fmt.Errorf("kind %q without flight payload", rec.Kind)
		}
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
	return nil
}
