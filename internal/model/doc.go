// Package model provides the core data model for the weaver pipeline.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal. This keeps the data model
// the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Events and jobs are tagged unions: a closed EventType discriminant
//     plus variant-specific payloads, never duck-typed attribute probing
//   - Job stage structs embed the previous stage and only ADD fields;
//     a record written by one stage is never mutated by a later one
//   - All YAML tags use snake_case
package model
