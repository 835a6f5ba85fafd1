package api

// HealthResponse from GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Healthy reports whether the backend considers itself operational.
func (r *HealthResponse) Healthy() bool {
	return r.Status == "ok"
}

// StationsResponse from GET /stations
type StationsResponse struct {
	Stations []APIStation `json:"stations"`
}

// APIStation is a monitoring station as the backend serializes it.
type APIStation struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Active    bool    `json:"active"`
}

// ReadingsResponse from GET /stations/{id}/readings
type ReadingsResponse struct {
	Readings []APIReading `json:"readings"`
	Cursor   string       `json:"cursor"`
}

// APIReading is a measurement row as the backend serializes it. Timestamps
// arrive as RFC 3339 strings and IDs as UUID strings; ToModel parses both.
type APIReading struct {
	ID         string  `json:"id"`
	StationID  string  `json:"station_id"`
	PM25       float64 `json:"pm25"`
	PM10       float64 `json:"pm10"`
	O3         float64 `json:"o3"`
	NO2        float64 `json:"no2"`
	AQI        int     `json:"aqi"`
	RecordedAt string  `json:"recorded_at"`
}

// GetReadingsOptions filters GET /stations/{id}/readings.
type GetReadingsOptions struct {
	Limit  int    // Max rows per page; backend caps at 1000
	Cursor string // Pagination cursor from a previous response
	Since  string // RFC 3339 lower bound on recorded_at
}
