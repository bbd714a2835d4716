// Package portal defines the contract between the orchestration core and the
// per-vendor drivers that perform the actual portal steps.
//
// A [Driver] is a black box bound to one vendor's page layout. The core only
// calls the methods of this interface, in the order documented on [Driver],
// and closes every driver it creates. Drivers are constructed by name through
// a [Registry] of [Factory] functions.
package portal
