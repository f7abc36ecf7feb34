package wal

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/satp/src/common"
	"github.com/pkg/errors"
)

const (
	entryPrefix = "wal_"
	countPrefix = "walcount_"
)

// BadgerLog implements the Log interface on top of a badger database opened
// with synchronous writes. The entry and the session's entry counter are
// written in the same transaction.
type BadgerLog struct {
	db *badger.DB
	mu sync.Mutex
}

// NewBadgerLog ...
func NewBadgerLog(db *badger.DB) *BadgerLog {
	return &BadgerLog{db: db}
}

func entryKey(sessionID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s/%09d", entryPrefix, sessionID, index))
}

func entryPrefixKey(sessionID string) []byte {
	return []byte(fmt.Sprintf("%s%s/", entryPrefix, sessionID))
}

func countKey(sessionID string) []byte {
	return []byte(countPrefix + sessionID)
}

func (l *BadgerLog) count(txn *badger.Txn, sessionID string) (int, error) {
	item, err := txn.Get(countKey(sessionID))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(string(val))
}

// Append implements the Log interface.
func (l *BadgerLog) Append(e *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.db.Update(func(txn *badger.Txn) error {
		n, err := l.count(txn, e.SessionID)
		if err != nil {
			return errors.Wrap(err, "reading entry counter")
		}

		e.Index = n

		val, err := e.Marshal()
		if err != nil {
			return errors.Wrap(err, "encoding entry")
		}

		if err := txn.Set(entryKey(e.SessionID, n), val); err != nil {
			return err
		}

		return txn.Set(countKey(e.SessionID), []byte(strconv.Itoa(n+1)))
	})
}

// Query implements the Log interface.
func (l *BadgerLog) Query(sessionID string) ([]*Entry, error) {
	var res []*Entry

	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := entryPrefixKey(sessionID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			e := new(Entry)
			if err := e.Unmarshal(val); err != nil {
				return errors.Wrapf(err, "decoding entry %s", it.Item().Key())
			}

			res = append(res, e)
		}

		return nil
	})

	return res, err
}

// Last implements the Log interface.
func (l *BadgerLog) Last(sessionID string) (*Entry, error) {
	var n int

	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = l.count(txn, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, cm.NewStoreErr("AuditLog", cm.Empty, sessionID)
	}

	val, err := cm.BadgerGet(l.db, "AuditLog", entryKey(sessionID, n-1))
	if err != nil {
		return nil, err
	}

	e := new(Entry)
	if err := e.Unmarshal(val); err != nil {
		return nil, errors.Wrap(err, "decoding entry")
	}

	return e, nil
}

// Sessions implements the Log interface.
func (l *BadgerLog) Sessions() ([]string, error) {
	return cm.BadgerKeys(l.db, []byte(countPrefix))
}

// Close implements the Log interface. The database is owned by the caller.
func (l *BadgerLog) Close() error {
	return nil
}
