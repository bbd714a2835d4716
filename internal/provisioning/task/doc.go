// Package task implements the state machine for one vendor's provisioning
// attempt.
//
// A [Task] moves PENDING -> RUNNING -> (AWAITING_INPUT <-> RUNNING)* -> one
// terminal state (SUCCEEDED, FAILED or SKIPPED). It fetches the vendor's
// admin credentials once, owns exactly one driver session for its lifetime
// and closes it on every exit path. Login and verification are retried on
// transient failures; submission never is. Duplicates are routed through the
// conflict broker and challenges through the wait gate. Every error is caught
// at the task boundary and recorded on the terminal snapshot.
package task
