// Package retry provides exponential backoff retry logic for transient failures.
//
// The [Do] function retries an operation under a [Policy] (max attempts,
// initial delay, maximum delay, multiplier). Callers pass a classifier via
// [WithRetryIf] so that only transient failures are retried; everything else,
// and anything wrapped with [Fatal], propagates on the first failure. Only
// idempotent steps such as navigation and login should be wrapped.
package retry
