// Package orchestrator drives request execution against a test backend.
//
// Each request walks a strictly sequential state machine:
//
//	pending -> submitted -> running -> complete | error | cancelled
//
// A restarted request re-enters pending with the same request id and
// lineage but a fresh backend submission. Requests are independent:
// submission and polling run concurrently, one goroutine per request,
// and a failure of one never blocks or cancels siblings. Per-request
// errors land in that request's execution record; the run result lists
// every failed request id so operators know what to restart.
//
// There is no global timeout. NoWait is the one mechanism bounding how
// long a run blocks; a later invocation resumes polling the handles it
// left submitted or running.
package orchestrator
