package models

// RecordKind discriminates the typed payload of a raw ingest record.
type RecordKind string

const (
	RecordKindCustomer RecordKind = "customer"
	RecordKindAirport  RecordKind = "airport"
	RecordKindFlight   RecordKind = "flight"
)

// RawRecord is the sum-typed ingest envelope: exactly one payload pointer is
// non-nil, selected by Kind. Records are typed here at the boundary; nothing
// downstream works on loose field maps.
type RawRecord struct {
	Kind     RecordKind      `json:"kind"`
	Customer *CustomerRecord `json:"customer,omitempty"`
	Airport  *AirportRecord  `json:"airport,omitempty"`
	Flight   *FlightRecord   `json:"flight,omitempty"`
}

// CustomerRecord is a point-in-time customer snapshot from the source system.
type CustomerRecord struct {
	CustomerID    string `json:"customer_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	LoyaltyTier   string `json:"loyalty_tier"`
	LoyaltyPoints int    `json:"loyalty_points"`
}

// AirportRecord is a point-in-time airport snapshot from the source system.
type AirportRecord struct {
	IATA        string  `json:"iata"`
	ICAO        string  `json:"icao"`
	AirportName string  `json:"airport_name"`
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Region      string  `json:"region"`
	Timezone    string  `json:"timezone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// FlightRecord is a raw flight event. FlightDate is the source-system date
// string (YYYY-MM-DD); the validator checks it parses and the transformer
// derives the warehouse date key from it.
type FlightRecord struct {
	FlightKey         string  `json:"flight_key"`
	FlightDate        string  `json:"flight_date"`
	Carrier           string  `json:"carrier"`
	DepartureAirport  string  `json:"departure_airport"`
	ArrivalAirport    string  `json:"arrival_airport"`
	DepartureDelayMin int     `json:"departure_delay_min"`
	ArrivalDelayMin   int     `json:"arrival_delay_min"`
	SeatsAvailable    int     `json:"seats_available"`
	SeatsFilled       int     `json:"seats_filled"`
	Revenue           float64 `json:"revenue"`
	FuelCost          float64 `json:"fuel_cost"`
	DistanceMiles     int     `json:"distance_miles"`
	Cancelled         bool    `json:"cancelled"`
}

// ValidationResult reports whether a raw record passed validation, with one
// reason per failed check. Malformed records are an expected case, not an
// error: the pipeline counts and logs them and the batch continues.
type ValidationResult struct {
	Valid   bool
	Reasons []string
}
