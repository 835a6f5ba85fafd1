// Package api provides the REST client for the air-quality backend. It is
// the polling side of the delivery stack: when the realtime channel is
// unavailable, the fallback controller fetches readings through this client
// instead.
//
// Endpoints:
//   - GET /stations
//   - GET /stations/{id}/readings
//   - GET /health
package api
