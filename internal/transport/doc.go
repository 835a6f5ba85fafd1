// Package transport defines the realtime transport primitive the resilience
// layer is built on: a connection-oriented pub/sub client with named
// channels, per-channel event filters, and a subscribe status callback.
//
// The Transport interface is the seam the subscription manager and health
// monitor depend on. Socket is the production implementation, speaking the
// backend's Phoenix-style WebSocket protocol (join/leave/heartbeat/reply).
package transport
