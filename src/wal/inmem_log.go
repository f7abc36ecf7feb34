package wal

import (
	"sort"
	"sync"

	cm "github.com/mosaicnetworks/satp/src/common"
)

// InmemLog implements the Log interface in memory.
type InmemLog struct {
	sync.RWMutex
	entries map[string][]*Entry
}

// NewInmemLog ...
func NewInmemLog() *InmemLog {
	return &InmemLog{
		entries: make(map[string][]*Entry),
	}
}

// Append implements the Log interface.
func (l *InmemLog) Append(e *Entry) error {
	l.Lock()
	defer l.Unlock()

	c := *e
	c.Index = len(l.entries[e.SessionID])
	l.entries[e.SessionID] = append(l.entries[e.SessionID], &c)
	e.Index = c.Index

	return nil
}

// Query implements the Log interface.
func (l *InmemLog) Query(sessionID string) ([]*Entry, error) {
	l.RLock()
	defer l.RUnlock()

	src := l.entries[sessionID]
	res := make([]*Entry, len(src))
	for i, e := range src {
		c := *e
		res[i] = &c
	}

	return res, nil
}

// Last implements the Log interface.
func (l *InmemLog) Last(sessionID string) (*Entry, error) {
	l.RLock()
	defer l.RUnlock()

	src := l.entries[sessionID]
	if len(src) == 0 {
		return nil, cm.NewStoreErr("AuditLog", cm.Empty, sessionID)
	}

	c := *src[len(src)-1]
	return &c, nil
}

// Sessions implements the Log interface.
func (l *InmemLog) Sessions() ([]string, error) {
	l.RLock()
	defer l.RUnlock()

	res := make([]string, 0, len(l.entries))
	for id := range l.entries {
		res = append(res, id)
	}
	sort.Strings(res)

	return res, nil
}

// Close implements the Log interface.
func (l *InmemLog) Close() error {
	return nil
}
