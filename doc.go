// Package quillsign is a Go client for the QuillSign document-signing API,
// built around a resilient request pipeline:
//
//   - Conditional (ETag) response caching with 304 revalidation and
//     conservative prefix invalidation after mutations
//   - Dual-lifecycle bearer tokens: organization API tokens / JWTs and
//     short-lived signer sessions with rotating refresh tokens,
//     refreshed lazily with a single-flight guarantee
//   - A structured error taxonomy driving retries with exponential
//     backoff (server-declared rate-limit resets take precedence)
//   - Per-endpoint-group circuit breakers
//   - Middleware chain for cross-cutting concerns (tracing, custom headers)
//   - Optional Prometheus metrics and structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Each Client owns its cache and token state; clients never interfere
//   - Safe concurrent use of a single *Client instance
//
// Typical usage:
//
//	client, err := quillsign.New(os.Getenv("QUILLSIGN_API_TOKEN"),
//	    quillsign.WithMaxRetries(3),
//	    quillsign.WithCircuitBreaker(quillsign.BreakerConfig{}),
//	    quillsign.WithMetrics(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	envelopes, err := client.Envelopes().List(ctx)
//
// Failures surface as *APIError with a discrete Kind; calls blocked by an
// open circuit surface a *CircuitOpenError instead, so callers can tell
// "the service said no" from "we refused to ask".
package quillsign
