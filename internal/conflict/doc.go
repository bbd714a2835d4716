// Package conflict implements the rendezvous used to ask a human how to handle
// a duplicate identity reported by a vendor.
//
// A task opens a [Request] with [Broker.Open] and blocks in [Pending.Wait].
// The decision surface answers with [Broker.Resolve]. Each request has a
// single resolution slot written at most once: whichever of the operator,
// the timeout or cancellation arrives first wins, and later writes are no-ops.
package conflict
