package claims

import (
	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/satp/src/common"
	"github.com/pkg/errors"
)

const claimPrefix = "claim_"

// BadgerStore implements the Store interface on top of a badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore ...
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func claimKey(key string) []byte {
	return []byte(claimPrefix + key)
}

// Put implements the Store interface.
func (s *BadgerStore) Put(p *Proof) (string, error) {
	if !p.CheckHash() {
		return "", cm.NewStoreErr("Proof", cm.HashMismatch, p.Key)
	}

	val, err := p.Marshal()
	if err != nil {
		return "", errors.Wrap(err, "encoding proof")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(claimKey(p.Key))
		switch {
		case err == badger.ErrKeyNotFound:
		case err != nil:
			return err
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			prev := new(Proof)
			if err := prev.Unmarshal(raw); err != nil {
				return err
			}
			if prev.Hash != p.Hash {
				return cm.NewStoreErr("Proof", cm.KeyAlreadyExists, p.Key)
			}
		}

		return txn.Set(claimKey(p.Key), val)
	})
	if err != nil {
		return "", err
	}

	return p.Hash, nil
}

// Get implements the Store interface.
func (s *BadgerStore) Get(key string) (*Proof, error) {
	val, err := cm.BadgerGet(s.db, "Proof", claimKey(key))
	if err != nil {
		return nil, err
	}

	p := new(Proof)
	if err := p.Unmarshal(val); err != nil {
		return nil, errors.Wrapf(err, "decoding proof %s", key)
	}

	return p, nil
}

// Keys implements the Store interface.
func (s *BadgerStore) Keys(prefix string) ([]string, error) {
	keys, err := cm.BadgerKeys(s.db, claimKey(prefix))
	if err != nil {
		return nil, err
	}

	res := make([]string, len(keys))
	for i, k := range keys {
		res[i] = prefix + k
	}

	return res, nil
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return nil
}
