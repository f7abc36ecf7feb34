package common

import (
	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

// OpenBadger opens, or creates, the badger database shared by the session
// store, the audit log and the claim store of a gateway. Writes are synced to
// disk before a transaction commits because recovery trusts what it finds on
// disk.
func OpenBadger(path string, logger *logrus.Entry) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithTruncate(true)

	if logger != nil {
		opts = opts.WithLogger(logger.WithField("ns", "badger"))
	}

	return badger.Open(opts)
}

// BadgerGet returns a copy of the value stored under key, or a KeyNotFound
// StoreErr tagged with dataType.
func BadgerGet(db *badger.DB, dataType string, key []byte) ([]byte, error) {
	var res []byte

	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		res, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return nil, NewStoreErr(dataType, KeyNotFound, string(key))
	}

	return res, err
}

// BadgerKeys returns the keys starting with prefix, in lexicographic order,
// with the prefix trimmed.
func BadgerKeys(db *badger.DB, prefix []byte) ([]string, error) {
	var res []string

	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().Key()
			res = append(res, string(k[len(prefix):]))
		}

		return nil
	})

	return res, err
}
