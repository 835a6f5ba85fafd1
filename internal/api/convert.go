package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/breatheio/realtime/internal/model"
)

// ParseTimestamp parses an RFC 3339 timestamp. Returns the zero time for
// empty or invalid input.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", s)
		if err != nil {
			return time.Time{}
		}
	}

	return t
}

// ToModel converts a wire reading into the internal model. Malformed IDs
// become the zero UUID rather than failing the whole batch.
func (r APIReading) ToModel() model.Reading {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		id = uuid.Nil
	}
	return model.Reading{
		ID:         id,
		StationID:  r.StationID,
		PM25:       r.PM25,
		PM10:       r.PM10,
		O3:         r.O3,
		NO2:        r.NO2,
		AQI:        r.AQI,
		RecordedAt: ParseTimestamp(r.RecordedAt),
	}
}

// ToModel converts a wire station into the internal model.
func (s APIStation) ToModel() model.Station {
	return model.Station{
		ID:        s.ID,
		Name:      s.Name,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Active:    s.Active,
	}
}
