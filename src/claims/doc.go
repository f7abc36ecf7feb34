// Package claims stores the proofs produced by ledger operations.
//
// A proof is an opaque claim returned by a ledger connector, addressed by a
// key of the form <session>/proof/<name>, and stored together with its digest
// and the signature of the gateway that produced it. Proofs travel inside the
// protocol messages that carry their claims; the receiver verifies them and
// keeps a copy in its own store.
package claims
