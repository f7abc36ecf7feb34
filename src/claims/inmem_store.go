package claims

import (
	"sort"
	"strings"
	"sync"

	cm "github.com/mosaicnetworks/satp/src/common"
)

// InmemStore implements the Store interface in memory.
type InmemStore struct {
	sync.RWMutex
	proofs map[string]Proof
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		proofs: make(map[string]Proof),
	}
}

// Put implements the Store interface.
func (s *InmemStore) Put(p *Proof) (string, error) {
	if !p.CheckHash() {
		return "", cm.NewStoreErr("Proof", cm.HashMismatch, p.Key)
	}

	s.Lock()
	defer s.Unlock()

	if prev, ok := s.proofs[p.Key]; ok && prev.Hash != p.Hash {
		return "", cm.NewStoreErr("Proof", cm.KeyAlreadyExists, p.Key)
	}

	c := *p
	c.Bytes = append([]byte(nil), p.Bytes...)
	s.proofs[p.Key] = c

	return p.Hash, nil
}

// Get implements the Store interface.
func (s *InmemStore) Get(key string) (*Proof, error) {
	s.RLock()
	defer s.RUnlock()

	p, ok := s.proofs[key]
	if !ok {
		return nil, cm.NewStoreErr("Proof", cm.KeyNotFound, key)
	}

	p.Bytes = append([]byte(nil), p.Bytes...)
	return &p, nil
}

// Keys implements the Store interface.
func (s *InmemStore) Keys(prefix string) ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	var res []string
	for k := range s.proofs {
		if strings.HasPrefix(k, prefix) {
			res = append(res, k)
		}
	}
	sort.Strings(res)

	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
