// Package waitgate implements a bounded, cancellable wait for an external
// condition such as an MFA approval or a solved CAPTCHA.
//
// [Gate.Open] polls a driver-supplied detector at a fixed interval until it
// reports true, the absolute deadline passes, or the context is cancelled.
// A separate, slower ticker emits heartbeats so a human watching the run can
// see it is alive without flooding the log.
package waitgate
