// internal/data/errors.go
package data

import "errors"

// Error taxonomy for the ingestion and query boundaries. Handlers map these
// onto HTTP status codes; nothing in this package is fatal to the process.
var (
	// ErrInvalidSample marks malformed or out-of-range input. The sample is
	// rejected at the boundary and never stored.
	ErrInvalidSample = errors.New("invalid sample")

	// ErrUnknownChannel marks a query against an unconfigured channel. It is
	// distinct from "channel exists but empty".
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrRateLimited marks an ingest rejected by the per-channel rate limit.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamUnavailable marks a failed call to an external service
	// (fire detection, device broker). Callers degrade, they do not crash.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
