// Package workflow defines the project graph: items, dependency connections,
// backward jumps, and reusable specifications.
//
// A Project is mutated only through its operations, and every failed
// operation leaves it unchanged:
//   - Items are keyed by unique name; renames re-key incident edges atomically
//   - Connections must keep the connection-only subgraph acyclic; insertions
//     are checked speculatively and rolled back on violation
//   - Backward jumps may close cycles on purpose; they are the iteration
//     mechanism and are ignored by the acyclicity check
//   - Specifications are reusable configuration keyed by (item type, name)
package workflow
