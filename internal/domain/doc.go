// Package domain defines the core business types for the sendcore scheduler.
//
// Types in this package are pure value objects with no behavior beyond pure
// functions on the type. They are the shared language between the dispatch
// layer, the outbox registry, the workers, and the repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Constants and enums belong here
package domain
