package session

import (
	"sort"
	"sync"

	cm "github.com/mosaicnetworks/satp/src/common"
)

// InmemStore implements the Store interface in memory. Sessions are lost when
// the process exits, so it is meant for tests and for gateways that do not
// need crash recovery.
type InmemStore struct {
	sync.RWMutex
	sessions map[string]*SessionData
	keys     *keyLocks
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		sessions: make(map[string]*SessionData),
		keys:     newKeyLocks(),
	}
}

// Create implements the Store interface.
func (s *InmemStore) Create(sd *SessionData) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.sessions[sd.ID]; ok {
		return cm.NewStoreErr("Session", cm.KeyAlreadyExists, sd.ID)
	}

	s.sessions[sd.ID] = sd.Clone()

	return nil
}

// Get implements the Store interface.
func (s *InmemStore) Get(id string) (*SessionData, error) {
	s.RLock()
	defer s.RUnlock()

	sd, ok := s.sessions[id]
	if !ok {
		return nil, cm.NewStoreErr("Session", cm.KeyNotFound, id)
	}

	return sd.Clone(), nil
}

// Update implements the Store interface.
func (s *InmemStore) Update(id string, fn func(*SessionData) error) error {
	unlock := s.keys.lock(id)
	defer unlock()

	sd, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := fn(sd); err != nil {
		return err
	}

	s.Lock()
	s.sessions[id] = sd
	s.Unlock()

	return nil
}

// Put implements the Store interface.
func (s *InmemStore) Put(sd *SessionData) error {
	unlock := s.keys.lock(sd.ID)
	defer unlock()

	s.Lock()
	s.sessions[sd.ID] = sd.Clone()
	s.Unlock()

	return nil
}

// IDs implements the Store interface.
func (s *InmemStore) IDs() ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	res := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		res = append(res, id)
	}
	sort.Strings(res)

	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
