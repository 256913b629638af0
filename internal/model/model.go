package model

import "fmt"

// FlightRecord is one flight as returned by the upstream API. Fields are not interpreted.
type FlightRecord map[string]any

// FlightBatch holds the records of one run and one direction, in catalog order.
type FlightBatch []FlightRecord

// Direction selects the query filter and the snapshot filename segment.
type Direction string

const (
	Arrivals   Direction = "arrivals"
	Departures Direction = "departures"
)

// Directions lists every direction in run order.
var Directions = []Direction{Arrivals, Departures}

// ParseDirection accepts "arrivals" or "departures".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Arrivals, Departures:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// AirportParam is the query parameter filtering flights by airport for this direction.
func (d Direction) AirportParam() string {
	if d == Departures {
		return "dep_iata"
	}
	return "arr_iata"
}

func (d Direction) String() string {
	return string(d)
}
