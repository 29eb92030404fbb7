// Package ws multiplexes the global task progress stream out to per-user
// WebSocket connections. Each connection gets the owning user's events only;
// a slow or broken socket affects nothing but itself.
package ws
