// Package scheduler drains outbound language model requests through a single
// dispatcher goroutine.
//
// The dispatcher owns the sliding-window RateLimiter and walks the
// CredentialPool round robin, so neither needs coordination with other
// dispatchers. Each dispatched request runs on a bounded ants pool with
// linear-backoff retries for transport failures. Callers get a Future from
// Enqueue; PollResult offers the same result with a bounded wait and
// at-most-once consumption.
package scheduler
