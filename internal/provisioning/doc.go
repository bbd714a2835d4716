// Package provisioning provides the shared types, error taxonomy and observer
// used to provision user accounts across vendor portals.
//
// # Subpackages
//
//   - task: per-vendor state machine driving one driver session
//   - run: sequential coordinator, pause/resume/cancel and the run watchdog
//   - report: end-of-run aggregation and export
//
// # Core Types
//
// RunRequest is the immutable input of a run: the target UserProfile plus an
// ordered vendor list. Snapshot is the value copy of one task's state that is
// streamed to consumers. KindOf maps any error to its ErrorKind.
package provisioning
