// Package expr evaluates the small conditional sublanguage used by
// `when` and `schedule` fields of recipe and issue-config documents, and
// renders string templates against the same variable surface.
//
// Expressions are compiled once into a typed AST and cached per source
// string; evaluation dispatches event-variant predicates (`is erratum`,
// `is compose`, ...) by tag comparison on the closed model.EventType set,
// never by attribute probing.
//
// Any failure (parse error, unresolved variable, malformed match
// pattern) is a hard error carrying the offending source; callers abort
// resolution of the owning document instead of treating the predicate
// as false.
package expr
