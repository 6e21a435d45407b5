package models

import "time"

// Observation is the normalized weather row written to the store and returned to callers.
type Observation struct {
	Location      string    `json:"location"`
	Temperature   int       `json:"temperature"`
	Humidity      int       `json:"humidity"`
	Precipitation float64   `json:"precipitation"`
	WindSpeed     float64   `json:"wind_speed"`
	Conditions    string    `json:"conditions"`
	Date          string    `json:"date"`
	CreatedAt     time.Time `json:"created_at"`
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// CurrentReading holds the provider's current values before normalization.
type CurrentReading struct {
	Temperature   float64
	Humidity      int
	Precipitation float64
	WindSpeed     float64
	WeatherCode   int
}
