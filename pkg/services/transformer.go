package services

import (
	"strconv"
	"time"

	"github.com/aerolake/aerolake-etl/pkg/models"
)

// onTimeThresholdMin is the industry on-time cutoff: a flight arriving within
// 15 minutes of schedule counts as on time.
const onTimeThresholdMin = 15

// Transformer derives warehouse-shaped values from validated records. All
// derivations are deterministic and idempotent: the same input always yields
// the same output, so reprocessing a batch is safe.
type Transformer interface {
	EnrichFlight(rec *models.FlightRecord) *models.FlightFact
	CustomerSnapshot(rec *models.CustomerRecord) models.DimensionSnapshot
	AirportSnapshot(rec *models.AirportRecord) models.DimensionSnapshot
}

type transformer struct {
	customerTracked []string
	airportTracked  []string
}

// NewTransformer creates a Transformer with the configured tracked-attribute
// sets. The tracked sets decide which attributes land in a snapshot's
// comparison set; everything else loads on first sighting only.
func NewTransformer(customerTracked, airportTracked []string) Transformer {
	return &transformer{
		customerTracked: customerTracked,
		airportTracked:  airportTracked,
	}
}

var _ Transformer = (*transformer)(nil)

// EnrichFlight computes the derived measures. The validator has already
// excluded zero seat capacity and unparseable dates, so the division and the
// date parse here cannot fail on validated input.
func (t *transformer) EnrichFlight(rec *models.FlightRecord) *models.FlightFact {
	loadFactor := 0.0
	if rec.SeatsAvailable > 0 {
		loadFactor = float64(rec.SeatsFilled) / float64(rec.SeatsAvailable) * 100
	}

	return &models.FlightFact{
		FlightKey:         rec.FlightKey,
		DateKey:           dateKey(rec.FlightDate),
		CarrierCode:       rec.Carrier,
		DepartureDelayMin: rec.DepartureDelayMin,
		ArrivalDelayMin:   rec.ArrivalDelayMin,
		SeatsAvailable:    rec.SeatsAvailable,
		SeatsFilled:       rec.SeatsFilled,
		LoadFactor:        loadFactor,
		OnTimeFlag:        rec.ArrivalDelayMin <= onTimeThresholdMin,
		Revenue:           rec.Revenue,
		FuelCost:          rec.FuelCost,
		DistanceMiles:     rec.DistanceMiles,
		Cancelled:         rec.Cancelled,
	}
}

func (t *transformer) CustomerSnapshot(rec *models.CustomerRecord) models.DimensionSnapshot {
	attrs := map[string]string{
		"first_name":   rec.FirstName,
		"last_name":    rec.LastName,
		"email":        rec.Email,
		"loyalty_tier": rec.LoyaltyTier,
	}
	extra := map[string]any{
		"loyalty_points": rec.LoyaltyPoints,
	}
	return models.BuildSnapshot(rec.CustomerID, attrs, extra, t.customerTracked)
}

func (t *transformer) AirportSnapshot(rec *models.AirportRecord) models.DimensionSnapshot {
	attrs := map[string]string{
		"icao":         rec.ICAO,
		"airport_name": rec.AirportName,
		"city":         rec.City,
		"country":      rec.Country,
		"region":       rec.Region,
		"timezone":     rec.Timezone,
	}
	// Float-valued attributes are never trackable; they load once.
	extra := map[string]any{
		"latitude":  rec.Latitude,
		"longitude": rec.Longitude,
	}
	return models.BuildSnapshot(rec.IATA, attrs, extra, t.airportTracked)
}

// dateKey converts a YYYY-MM-DD date string to the warehouse integer key
// YYYYMMDD. Returns 0 for unparseable input, which validated records never
// produce.
func dateKey(flightDate string) int {
	d, err := time.Parse("2006-01-02", flightDate)
	if err != nil {
		return 0
	}
	key, _ := strconv.Atoi(d.Format("20060102"))
	return key
}
