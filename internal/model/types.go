package model

import (
	"time"

	"github.com/google/uuid"
)

// Station represents a fixed air-quality monitoring station.
type Station struct {
	ID        string  `json:"id"`   // Primary key (e.g., "sfo-mission-03")
	Name      string  `json:"name"` // Display name
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Active    bool    `json:"active"`
}

// Reading is a single air-quality measurement from a station.
type Reading struct {
	ID         uuid.UUID `json:"id"`         // Primary key (assigned by the backend)
	StationID  string    `json:"station_id"` // Foreign key to Station
	PM25       float64   `json:"pm25"`       // Fine particulates, µg/m³
	PM10       float64   `json:"pm10"`       // Coarse particulates, µg/m³
	O3         float64   `json:"o3"`         // Ozone, ppb
	NO2        float64   `json:"no2"`        // Nitrogen dioxide, ppb
	AQI        int       `json:"aqi"`        // Computed air quality index (0-500)
	RecordedAt time.Time `json:"recorded_at"`
}

// AQICategory is the consumer-facing bucket for an AQI value.
type AQICategory string

const (
	CategoryGood          AQICategory = "good"
	CategoryModerate      AQICategory = "moderate"
	CategorySensitive     AQICategory = "unhealthy_sensitive"
	CategoryUnhealthy     AQICategory = "unhealthy"
	CategoryVeryUnhealthy AQICategory = "very_unhealthy"
	CategoryHazardous     AQICategory = "hazardous"
)

// CategoryForAQI maps an AQI value to its display category using the EPA
// breakpoints.
func CategoryForAQI(aqi int) AQICategory {
	switch {
	case aqi <= 50:
		return CategoryGood
	case aqi <= 100:
		return CategoryModerate
	case aqi <= 150:
		return CategorySensitive
	case aqi <= 200:
		return CategoryUnhealthy
	case aqi <= 300:
		return CategoryVeryUnhealthy
	default:
		return CategoryHazardous
	}
}
