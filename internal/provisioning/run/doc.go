// Package run sequences the vendor tasks of one provisioning run.
//
// A Coordinator executes tasks one at a time in request order on a single
// background goroutine. Only one driver session is open at any moment; a
// capacity-one semaphore guards it. Every snapshot is pushed to an unbounded
// stream so the interface never blocks the run and never has to poll.
//
// Pause halts before the next PENDING task. Cancel is immediate: the in-flight
// task's wait or conflict prompt returns, the task ends SKIPPED and every
// remaining task is skipped without being started. A run watchdog bounds the
// total run time the same way with reason run_timeout.
package run
