package ledger

import (
	"context"
	"reflect"
	"testing"

	"github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/sirupsen/logrus"
)

func TestAssetLifecycle(t *testing.T) {
	ctx := context.Background()

	l := NewInmemLedger("DLT1", common.NewTestEntry(t, logrus.DebugLevel, "ledger"))
	l.Seed("a1")

	if _, err := l.DeleteAsset(ctx, "a1"); !IsLedgerErr(err, AssetNotLocked) {
		t.Fatalf("deleting an unlocked asset should fail, got %v", err)
	}

	claim, err := l.LockAsset(ctx, "a1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	var c Claim
	if err := crypto.DecodeJSON(claim, &c); err != nil {
		t.Fatalf("err: %v", err)
	}
	if c.Ledger != "DLT1" || c.Operation != OpLock || c.AssetID != "a1" || c.Sequence != 1 {
		t.Fatalf("unexpected claim %+v", c)
	}

	if _, err := l.LockAsset(ctx, "a1"); !IsLedgerErr(err, AssetLocked) {
		t.Fatalf("locking twice should fail, got %v", err)
	}

	if _, err := l.UnlockAsset(ctx, "a1"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if a, _ := l.Asset("a1"); a.Locked {
		t.Fatalf("asset should be unlocked")
	}

	l.LockAsset(ctx, "a1")
	if _, err := l.DeleteAsset(ctx, "a1"); err != nil {
		t.Fatalf("err: %v", err)
	}

	if ok, _ := l.AssetExists(ctx, "a1"); ok {
		t.Fatalf("asset should be gone")
	}

	if _, err := l.CreateAsset(ctx, "a1"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := l.CreateAsset(ctx, "a1"); !IsLedgerErr(err, AssetExists) {
		t.Fatalf("creating twice should fail, got %v", err)
	}

	if _, err := l.LockAsset(ctx, "nope"); !IsLedgerErr(err, UnknownAsset) {
		t.Fatalf("locking an unknown asset should fail, got %v", err)
	}

	if !reflect.DeepEqual(l.Assets(), []string{"a1"}) {
		t.Fatalf("unexpected assets %v", l.Assets())
	}
}

func TestCancelledContext(t *testing.T) {
	l := NewInmemLedger("DLT1", nil)
	l.Seed("a1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.LockAsset(ctx, "a1"); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if a, _ := l.Asset("a1"); a.Locked {
		t.Fatalf("a cancelled call should not change the ledger")
	}
}
