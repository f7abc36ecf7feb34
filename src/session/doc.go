// Package session holds the per-transfer records of a gateway.
//
// A SessionData is created when a source gateway configures a transfer, or when
// a destination gateway accepts a transfer initialization request. It is then
// mutated only through Store.Update, one phase at a time, and never deleted:
// completed and aborted sessions remain available for audit and recovery.
package session
