// Package domain defines the core business types for the engagement engine.
//
// Types in this package are pure value objects with no database
// dependencies and no transport concerns. They are the shared language between
// the worker loops, services and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no sessions, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Small pure methods on the types are allowed
//   - Constants and enums belong here
package domain
