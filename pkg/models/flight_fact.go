package models

// UpsertOutcome is the explicit result variant of a fact upsert.
type UpsertOutcome string

const (
	UpsertOutcomeInserted UpsertOutcome = "inserted"
	UpsertOutcomeUpdated  UpsertOutcome = "updated"
)

// FlightFact is one row of the flight fact table, keyed by the
// business-unique flight key. Airport references are dimension surrogate
// keys valid as of load time; the carrier rides along as a degenerate
// dimension attribute.
//
// On re-load of an existing flight key only the revisable measures change
// (delays, seats filled, load factor, on-time flag); identity fields and
// historical measures stay fixed.
type FlightFact struct {
	FlightKey           string  `json:"flight_key"`
	DateKey             int     `json:"date_key"`
	DepartureAirportKey int64   `json:"departure_airport_key"`
	ArrivalAirportKey   int64   `json:"arrival_airport_key"`
	CarrierCode         string  `json:"carrier_code"`
	DepartureDelayMin   int     `json:"departure_delay_min"`
	ArrivalDelayMin     int     `json:"arrival_delay_min"`
	SeatsAvailable      int     `json:"seats_available"`
	SeatsFilled         int     `json:"seats_filled"`
	LoadFactor          float64 `json:"load_factor"`
	OnTimeFlag          bool    `json:"on_time_flag"`
	Revenue             float64 `json:"revenue"`
	FuelCost            float64 `json:"fuel_cost"`
	DistanceMiles       int     `json:"distance_miles"`
	Cancelled           bool    `json:"cancelled"`
}

// FlightMeasureSummary is the read-only aggregate view the reporting layer
// queries.
type FlightMeasureSummary struct {
	FlightCount      int64   `json:"flight_count"`
	AvgLoadFactor    float64 `json:"avg_load_factor"`
	AvgArrivalDelay  float64 `json:"avg_arrival_delay_min"`
	OnTimeRate       float64 `json:"on_time_rate"`
	CancelledFlights int64   `json:"cancelled_flights"`
	TotalRevenue     float64 `json:"total_revenue"`
}
