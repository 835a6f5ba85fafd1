// Package model defines the domain documents that flow through the realtime
// layer and its polling fallback.
//
// Conventions:
//   - IDs: uuid.UUID for readings, string slugs for stations
//   - Timestamps: time.Time in UTC
//   - Concentrations: µg/m³ for particulates, ppb for gases
package model
