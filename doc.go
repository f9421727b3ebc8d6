// Package keyrotate is a client-side API-key rotation and resilience
// engine that fronts outbound calls to remote AI/inference providers. It
// owns a pool of interchangeable keys, selects one per outbound call via
// a pluggable strategy, classifies failures, drives a per-key circuit
// breaker, retries with capped exponential backoff, and optionally memoizes
// responses by prompt-embedding similarity.
//
// See the keystate, classifier, selector, bulkhead, retry, cache,
// storage, events and telemetry subpackages for the individual
// components; this package wires them together behind Manager.Execute.
package keyrotate
