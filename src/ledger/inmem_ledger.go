package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Operation names written in claims.
const (
	OpLock   = "lock"
	OpUnlock = "unlock"
	OpDelete = "delete"
	OpCreate = "create"
)

// ErrorType ...
type ErrorType uint32

const (
	// UnknownAsset means the asset is not on the ledger.
	UnknownAsset ErrorType = iota
	// AssetLocked means the asset is locked by a transfer.
	AssetLocked
	// AssetNotLocked means the operation requires a locked asset.
	AssetNotLocked
	// AssetExists means the asset is already on the ledger.
	AssetExists
)

// Error is returned by InmemLedger when an operation is not allowed in the
// current state of the asset.
type Error struct {
	Ledger  string
	AssetID string
	Type    ErrorType
}

func (e *Error) Error() string {
	var m string
	switch e.Type {
	case UnknownAsset:
		m = "unknown asset"
	case AssetLocked:
		m = "asset locked"
	case AssetNotLocked:
		m = "asset not locked"
	case AssetExists:
		m = "asset exists"
	}
	return fmt.Sprintf("%s: %s %s", e.Ledger, m, e.AssetID)
}

// IsLedgerErr reports whether the cause of err is a ledger Error of type t.
func IsLedgerErr(err error, t ErrorType) bool {
	le, ok := errors.Cause(err).(*Error)
	return ok && le.Type == t
}

// Asset is the record kept for each asset.
type Asset struct {
	ID     string `json:"id"`
	Locked bool   `json:"locked"`
}

// Claim is the body of a claim issued by InmemLedger.
type Claim struct {
	Ledger    string `json:"ledger"`
	Operation string `json:"operation"`
	AssetID   string `json:"assetID"`
	Sequence  int    `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

// InmemLedger is a Connector that keeps its assets in memory. Every
// successful operation increments a sequence number embedded in its claim.
type InmemLedger struct {
	sync.Mutex

	name   string
	assets map[string]*Asset
	seq    int
	logger *logrus.Entry
}

// NewInmemLedger ...
func NewInmemLedger(name string, logger *logrus.Entry) *InmemLedger {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.InfoLevel
		logger = logrus.NewEntry(log)
	}

	return &InmemLedger{
		name:   name,
		assets: make(map[string]*Asset),
		logger: logger.WithField("ledger", name),
	}
}

// Seed adds unlocked assets to the ledger.
func (l *InmemLedger) Seed(assetIDs ...string) {
	l.Lock()
	defer l.Unlock()

	for _, id := range assetIDs {
		l.assets[id] = &Asset{ID: id}
	}
}

// Asset returns a copy of an asset record.
func (l *InmemLedger) Asset(assetID string) (Asset, bool) {
	l.Lock()
	defer l.Unlock()

	a, ok := l.assets[assetID]
	if !ok {
		return Asset{}, false
	}
	return *a, true
}

// Assets lists the identifiers of the assets on the ledger.
func (l *InmemLedger) Assets() []string {
	l.Lock()
	defer l.Unlock()

	res := make([]string, 0, len(l.assets))
	for id := range l.assets {
		res = append(res, id)
	}
	sort.Strings(res)

	return res
}

// Name implements the Connector interface.
func (l *InmemLedger) Name() string {
	return l.name
}

// LockAsset implements the Connector interface.
func (l *InmemLedger) LockAsset(ctx context.Context, assetID string) ([]byte, error) {
	return l.apply(ctx, OpLock, assetID, func(a *Asset) error {
		if a == nil {
			return l.err(assetID, UnknownAsset)
		}
		if a.Locked {
			return l.err(assetID, AssetLocked)
		}
		a.Locked = true
		return nil
	})
}

// UnlockAsset implements the Connector interface.
func (l *InmemLedger) UnlockAsset(ctx context.Context, assetID string) ([]byte, error) {
	return l.apply(ctx, OpUnlock, assetID, func(a *Asset) error {
		if a == nil {
			return l.err(assetID, UnknownAsset)
		}
		if !a.Locked {
			return l.err(assetID, AssetNotLocked)
		}
		a.Locked = false
		return nil
	})
}

// DeleteAsset implements the Connector interface. Only locked assets can be
// deleted.
func (l *InmemLedger) DeleteAsset(ctx context.Context, assetID string) ([]byte, error) {
	return l.apply(ctx, OpDelete, assetID, func(a *Asset) error {
		if a == nil {
			return l.err(assetID, UnknownAsset)
		}
		if !a.Locked {
			return l.err(assetID, AssetNotLocked)
		}
		delete(l.assets, assetID)
		return nil
	})
}

// CreateAsset implements the Connector interface.
func (l *InmemLedger) CreateAsset(ctx context.Context, assetID string) ([]byte, error) {
	return l.apply(ctx, OpCreate, assetID, func(a *Asset) error {
		if a != nil {
			return l.err(assetID, AssetExists)
		}
		l.assets[assetID] = &Asset{ID: assetID}
		return nil
	})
}

// AssetExists implements the Connector interface.
func (l *InmemLedger) AssetExists(ctx context.Context, assetID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.Lock()
	defer l.Unlock()

	_, ok := l.assets[assetID]
	return ok, nil
}

func (l *InmemLedger) apply(ctx context.Context, op, assetID string, fn func(*Asset) error) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.Lock()
	defer l.Unlock()

	if err := fn(l.assets[assetID]); err != nil {
		l.logger.WithError(err).WithField("op", op).Debug("Ledger operation refused")
		return nil, err
	}

	l.seq++

	claim := Claim{
		Ledger:    l.name,
		Operation: op,
		AssetID:   assetID,
		Sequence:  l.seq,
		Timestamp: time.Now().UnixNano() / int64(time.Millisecond),
	}

	l.logger.WithFields(logrus.Fields{
		"op":    op,
		"asset": assetID,
		"seq":   l.seq,
	}).Debug("Ledger operation")

	return crypto.CanonicalJSON(claim)
}

func (l *InmemLedger) err(assetID string, t ErrorType) error {
	return &Error{Ledger: l.name, AssetID: assetID, Type: t}
}
