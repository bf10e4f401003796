// Package recipe resolves declarative recipe documents into ordered
// sequences of fully merged requests.
//
// A recipe document has four sections: fixtures (the baseline every
// request starts from), adjustments (conditional overlays applied in
// declaration order), dimensions (named axes whose values multiply into
// a Cartesian product), and includes (other documents contributing
// fixtures and adjustments).
//
// Merging is a two-mode operation and this is a sharp edge worth
// knowing: the environment and context maps merge key-by-key, so a
// later layer's single key replaces only that key, while every other
// section replaces wholesale. A later layer that sets plan replaces the
// entire plan block, not individual fields of it. The when clauses are
// the one further exception, joining with "and".
//
// Precedence, most overriding first:
//
//	CLI overrides > dimension value > adjustment > fixtures > included fixtures
//
// Expansion is deterministic: dimensions iterate in declaration order,
// values in declaration order, so identical input yields identical
// requests in identical order with identical identifiers.
package recipe
