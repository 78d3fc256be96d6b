package services

import (
	"fmt"
	"time"

	"github.com/aerolake/aerolake-etl/pkg/models"
)

// delayBoundMin/Max bound delay minutes to a sane range. A flight cannot
// depart two days early or arrive three days late and still be the same
// scheduled flight; values outside this window are source corruption.
const (
	delayBoundMin = -120
	delayBoundMax = 2880
)

// Validator checks raw ingest records before any of them reach the
// transformer or the warehouse. Pure and stateless; malformed input is an
// expected case and never an error return, let alone a panic.
type Validator interface {
	Validate(rec *models.RawRecord) models.ValidationResult
}

type validator struct{}

// NewValidator creates a Validator.
func NewValidator() Validator {
	return &validator{}
}

var _ Validator = (*validator)(nil)

func (v *validator) Validate(rec *models.RawRecord) models.ValidationResult {
	var reasons []string

	switch rec.Kind {
	case models.RecordKindCustomer:
		reasons = v.validateCustomer(rec.Customer)
	case models.RecordKindAirport:
		reasons = v.validateAirport(rec.Airport)
	case models.RecordKindFlight:
		reasons = v.validateFlight(rec.Flight)
	default:
		reasons = []string{fmt.Sprintf("unknown record kind %q", rec.Kind)}
	}

	return models.ValidationResult{Valid: len(reasons) == 0, Reasons: reasons}
}

func (v *validator) validateCustomer(c *models.CustomerRecord) []string {
	var reasons []string
	if c.CustomerID == "" {
		reasons = append(reasons, "customer_id is required")
	}
	if c.Email == "" {
		reasons = append(reasons, "email is required")
	}
	if c.LoyaltyTier == "" {
		reasons = append(reasons, "loyalty_tier is required")
	}
	if c.LoyaltyPoints < 0 {
		reasons = append(reasons, fmt.Sprintf("loyalty_points must be >= 0, got %d", c.LoyaltyPoints))
	}
	return reasons
}

func (v *validator) validateAirport(a *models.AirportRecord) []string {
	var reasons []string
	if a.IATA == "" {
		reasons = append(reasons, "iata is required")
	}
	if a.AirportName == "" {
		reasons = append(reasons, "airport_name is required")
	}
	if a.Country == "" {
		reasons = append(reasons, "country is required")
	}
	return reasons
}

func (v *validator) validateFlight(f *models.FlightRecord) []string {
	var reasons []string
	if f.FlightKey == "" {
		reasons = append(reasons, "flight_key is required")
	}
	if f.FlightDate == "" {
		reasons = append(reasons, "flight_date is required")
	} else if _, err := time.Parse("2006-01-02", f.FlightDate); err != nil {
		reasons = append(reasons, fmt.Sprintf("flight_date %q is not a valid YYYY-MM-DD date", f.FlightDate))
	}
	if f.Carrier == "" {
		reasons = append(reasons, "carrier is required")
	}
	if f.DepartureAirport == "" {
		reasons = append(reasons, "departure_airport is required")
	}
	if f.ArrivalAirport == "" {
		reasons = append(reasons, "arrival_airport is required")
	}

	// seats_available must be strictly positive: it is the load-factor
	// denominator and a zero-seat flight record carries no usable signal.
	if f.SeatsAvailable <= 0 {
		reasons = append(reasons, fmt.Sprintf("seats_available must be > 0, got %d", f.SeatsAvailable))
	}
	if f.SeatsFilled < 0 {
		reasons = append(reasons, fmt.Sprintf("seats_filled must be >= 0, got %d", f.SeatsFilled))
	}
	// A full flight (filled == available) is valid; only overbooking fails.
	if f.SeatsAvailable > 0 && f.SeatsFilled > f.SeatsAvailable {
		reasons = append(reasons, fmt.Sprintf("seats_filled %d exceeds seats_available %d", f.SeatsFilled, f.SeatsAvailable))
	}

	if f.DepartureDelayMin < delayBoundMin || f.DepartureDelayMin > delayBoundMax {
		reasons = append(reasons, fmt.Sprintf("departure_delay_min %d outside sane range [%d, %d]", f.DepartureDelayMin, delayBoundMin, delayBoundMax))
	}
	if f.ArrivalDelayMin < delayBoundMin || f.ArrivalDelayMin > delayBoundMax {
		reasons = append(reasons, fmt.Sprintf("arrival_delay_min %d outside sane range [%d, %d]", f.ArrivalDelayMin, delayBoundMin, delayBoundMax))
	}
	return reasons
}
