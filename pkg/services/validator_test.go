package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerolake/aerolake-etl/pkg/models"
)

func validFlightRecord() *models.FlightRecord {
	return &models.FlightRecord{
		FlightKey:         "AS100-2026-03-01",
		FlightDate:        "2026-03-01",
		Carrier:           "AS",
		DepartureAirport:  "SEA",
		ArrivalAirport:    "SFO",
		DepartureDelayMin: 5,
		ArrivalDelayMin:   -3,
		SeatsAvailable:    180,
		SeatsFilled:       154,
		Revenue:           41250.50,
		FuelCost:          9800.00,
		DistanceMiles:     679,
	}
}

func TestValidate_ValidFlight(t *testing.T) {
	v := NewValidator()
	result := v.Validate(&models.RawRecord{Kind: models.RecordKindFlight, Flight: validFlightRecord()})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Reasons)
}

func TestValidate_FlightSeatBoundary(t *testing.T) {
	v := NewValidator()

	// A completely full flight is valid.
	full := validFlightRecord()
	full.SeatsFilled = full.SeatsAvailable
	result := v.Validate(&models.RawRecord{Kind: models.RecordKindFlight, Flight: full})
	assert.True(t, result.Valid, "seats_filled == seats_available must pass")

	// One seat over is not.
	over := validFlightRecord()
	over.SeatsFilled = over.SeatsAvailable + 1
	result = v.Validate(&models.RawRecord{Kind: models.RecordKindFlight, Flight: over})
	require.False(t, result.Valid)
	assert.Contains(t, result.Reasons[0], "exceeds seats_available")
}

func TestValidate_FlightRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.FlightRecord)
		reason string
	}{
		{"missing flight key", func(f *models.FlightRecord) { f.FlightKey = "" }, "flight_key is required"},
		{"missing flight date", func(f *models.FlightRecord) { f.FlightDate = "" }, "flight_date is required"},
		{"unparseable flight date", func(f *models.FlightRecord) { f.FlightDate = "03/01/2026" }, "not a valid YYYY-MM-DD date"},
		{"missing carrier", func(f *models.FlightRecord) { f.Carrier = "" }, "carrier is required"},
		{"missing departure airport", func(f *models.FlightRecord) { f.DepartureAirport = "" }, "departure_airport is required"},
		{"missing arrival airport", func(f *models.FlightRecord) { f.ArrivalAirport = "" }, "arrival_airport is required"},
		{"zero seats available", func(f *models.FlightRecord) { f.SeatsAvailable = 0 }, "seats_available must be > 0"},
		{"negative seats available", func(f *models.FlightRecord) { f.SeatsAvailable = -10 }, "seats_available must be > 0"},
		{"negative seats filled", func(f *models.FlightRecord) { f.SeatsFilled = -1 }, "seats_filled must be >= 0"},
		{"absurd arrival delay", func(f *models.FlightRecord) { f.ArrivalDelayMin = 100000 }, "outside sane range"},
		{"absurd early departure", func(f *models.FlightRecord) { f.DepartureDelayMin = -10000 }, "outside sane range"},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFlightRecord()
			tt.mutate(f)
			result := v.Validate(&models.RawRecord{Kind: models.RecordKindFlight, Flight: f})
			require.False(t, result.Valid)
			found := false
			for _, r := range result.Reasons {
				if strings.Contains(r, tt.reason) {
					found = true
				}
			}
			assert.True(t, found, "expected reason containing %q, got %v", tt.reason, result.Reasons)
		})
	}
}

func TestValidate_CollectsAllReasons(t *testing.T) {
	v := NewValidator()
	result := v.Validate(&models.RawRecord{Kind: models.RecordKindFlight, Flight: &models.FlightRecord{}})
	require.False(t, result.Valid)
	// Every failed check is reported, not just the first.
	assert.GreaterOrEqual(t, len(result.Reasons), 6)
}

func TestValidate_Customer(t *testing.T) {
	v := NewValidator()

	valid := &models.CustomerRecord{
		CustomerID: "C001", Email: "ada@example.com", LoyaltyTier: "gold", LoyaltyPoints: 1200,
	}
	result := v.Validate(&models.RawRecord{Kind: models.RecordKindCustomer, Customer: valid})
	assert.True(t, result.Valid)

	invalid := &models.CustomerRecord{LoyaltyPoints: -5}
	result = v.Validate(&models.RawRecord{Kind: models.RecordKindCustomer, Customer: invalid})
	require.False(t, result.Valid)
	assert.Len(t, result.Reasons, 4)
}

func TestValidate_Airport(t *testing.T) {
	v := NewValidator()

	valid := &models.AirportRecord{IATA: "SEA", AirportName: "Seattle-Tacoma Intl", Country: "US"}
	result := v.Validate(&models.RawRecord{Kind: models.RecordKindAirport, Airport: valid})
	assert.True(t, result.Valid)

	result = v.Validate(&models.RawRecord{Kind: models.RecordKindAirport, Airport: &models.AirportRecord{}})
	require.False(t, result.Valid)
	assert.Len(t, result.Reasons, 3)
}

func TestValidate_UnknownKind(t *testing.T) {
	v := NewValidator()
	result := v.Validate(&models.RawRecord{Kind: "aircraft"})
	require.False(t, result.Valid)
	assert.Contains(t, result.Reasons[0], "unknown record kind")
}
