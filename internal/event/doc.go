// Package event turns a change event into artifact jobs, one per
// resolved release context.
//
// An advisory touches one or more product releases; each release
// becomes its own job carrying the advisory payload and the test
// compose derived from the release name. Compose, tracker-issue and
// merge-request events resolve to exactly one job.
//
// Release-to-compose derivation runs a built-in regexp rewrite chain
// that can be replaced wholesale by explicit RELEASE=COMPOSE pairs.
// Erratum-release deduplication is opt-in: collapsing releases changes
// which tracking issues get created, so it never happens silently.
package event
