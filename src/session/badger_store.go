package session

import (
	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/satp/src/common"
	"github.com/pkg/errors"
)

const sessionPrefix = "session_"

// BadgerStore implements the Store interface on top of a badger database. The
// database may be shared with other stores; BadgerStore only touches keys
// under its own prefix.
type BadgerStore struct {
	db   *badger.DB
	keys *keyLocks
}

// NewBadgerStore ...
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{
		db:   db,
		keys: newKeyLocks(),
	}
}

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

// Create implements the Store interface.
func (s *BadgerStore) Create(sd *SessionData) error {
	unlock := s.keys.lock(sd.ID)
	defer unlock()

	val, err := sd.Marshal()
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(sessionKey(sd.ID))
		switch {
		case err == nil:
			return cm.NewStoreErr("Session", cm.KeyAlreadyExists, sd.ID)
		case err != badger.ErrKeyNotFound:
			return err
		}
		return txn.Set(sessionKey(sd.ID), val)
	})
}

// Get implements the Store interface.
func (s *BadgerStore) Get(id string) (*SessionData, error) {
	val, err := cm.BadgerGet(s.db, "Session", sessionKey(id))
	if err != nil {
		return nil, err
	}

	sd := new(SessionData)
	if err := sd.Unmarshal(val); err != nil {
		return nil, errors.Wrapf(err, "decoding session %s", id)
	}

	return sd, nil
}

// Update implements the Store interface.
func (s *BadgerStore) Update(id string, fn func(*SessionData) error) error {
	unlock := s.keys.lock(id)
	defer unlock()

	sd, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := fn(sd); err != nil {
		return err
	}

	return s.write(sd)
}

// Put implements the Store interface.
func (s *BadgerStore) Put(sd *SessionData) error {
	unlock := s.keys.lock(sd.ID)
	defer unlock()

	return s.write(sd)
}

func (s *BadgerStore) write(sd *SessionData) error {
	val, err := sd.Marshal()
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(sessionKey(sd.ID), val); err != nil {
		return err
	}

	return tx.Commit()
}

// IDs implements the Store interface.
func (s *BadgerStore) IDs() ([]string, error) {
	return cm.BadgerKeys(s.db, []byte(sessionPrefix))
}

// Close implements the Store interface. The underlying database is owned by
// the caller and stays open.
func (s *BadgerStore) Close() error {
	return nil
}
