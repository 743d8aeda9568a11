// Package timeouts defines shared timeout constants used across the tracker.
// Centralizing these values prevents drift between components and makes the
// durations discoverable.
package timeouts

import "time"

// SnapshotFetch caps how long the discovery subprocess may run before the
// cycle gives up on it.
const SnapshotFetch = 30 * time.Second

// SinkCall caps one message create or edit against the chat sink.
const SinkCall = 10 * time.Second

// HTTPRequest caps one request to the network controller API.
const HTTPRequest = 10 * time.Second

// Shutdown limits how long the health server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
