package claims

// Store is the proof repository of one gateway. It holds the proofs the
// gateway signed and the verified proofs received from its counterparts.
type Store interface {
	// Put stores p under p.Key and returns its hash. It fails with a
	// HashMismatch StoreErr if p.Hash is not the digest of p.Bytes, and with
	// KeyAlreadyExists if a different proof is stored under the same key.
	Put(p *Proof) (string, error)

	// Get returns the proof stored under key, or a KeyNotFound StoreErr.
	Get(key string) (*Proof, error)

	// Keys lists the stored keys starting with prefix.
	Keys(prefix string) ([]string, error)

	Close() error
}
