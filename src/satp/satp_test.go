package satp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mosaicnetworks/satp/src/claims"
	"github.com/mosaicnetworks/satp/src/config"
	"github.com/mosaicnetworks/satp/src/crypto/keys"
	"github.com/mosaicnetworks/satp/src/gateway"
	"github.com/mosaicnetworks/satp/src/ledger"
	"github.com/mosaicnetworks/satp/src/peers"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/sirupsen/logrus"
)

func newTestEngine(t *testing.T, moniker, dlt string, dataDir string, supported ...string) *SATP {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.SetDataDir(dataDir)
	conf.DatabaseDir = filepath.Join(dataDir, config.DefaultBadgerFile)
	conf.Store = true
	conf.NoService = true
	conf.BindAddr = "127.0.0.1:0"
	conf.Moniker = moniker
	conf.DLTSystem = dlt
	conf.SupportedDLTs = supported
	conf.MaxRetries = 1
	conf.MaxTimeout = time.Second
	conf.CrashCheckInterval = 0

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	conf.Key = key

	return NewSATP(conf)
}

func TestInitFailsWithoutKey(t *testing.T) {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.SetDataDir(t.TempDir())

	engine := NewSATP(conf)
	if err := engine.Init(); err == nil {
		engine.Shutdown()
		t.Fatalf("Init should fail without a key file")
	}
}

func TestTransfer(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()

	dst := newTestEngine(t, "gw2", "DLT2", dstDir, "DLT1")
	if err := dst.Init(); err != nil {
		t.Fatal(err)
	}
	defer dst.Shutdown()

	if _, err := dst.RunAsync(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The counterparts file names the destination by moniker.
	peerStore := peers.NewJSONPeerSet(srcDir)
	gw2 := peers.NewPeer(dst.Identity.PublicKeyHex(), dst.Transport.AdvertiseAddr(), "gw2", "DLT2")
	if err := peerStore.Write([]*peers.Peer{gw2}); err != nil {
		t.Fatal(err)
	}

	srcLedger := ledger.NewInmemLedger("DLT1", nil)
	srcLedger.Seed("asset-1")

	src := newTestEngine(t, "gw1", "DLT1", srcDir)
	src.Ledger = srcLedger
	if err := src.Init(); err != nil {
		t.Fatal(err)
	}

	if _, err := src.RunAsync(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := src.Transfer(context.Background(), "unknown", "asset-1", "asset-2"); err == nil {
		t.Fatalf("Transfer to an unknown counterpart should fail")
	}

	id, err := src.Transfer(context.Background(), "gw2", "asset-1", "asset-2")
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := srcLedger.Asset("asset-1"); ok {
		t.Fatalf("asset-1 should be deleted from DLT1")
	}
	dstLedger := dst.Ledger.(*ledger.InmemLedger)
	if _, ok := dstLedger.Asset("asset-2"); !ok {
		t.Fatalf("asset-2 should exist on DLT2")
	}

	dstSession, err := dst.Gateway.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if dstSession.Status != session.Completed {
		t.Fatalf("destination session should be completed, not %s", dstSession.Status)
	}

	// The lock proof reached the destination database inside Lock-Evidence.
	lock, err := dst.Claims.Get(claims.ProofKey(id, claims.ProofLock))
	if err != nil {
		t.Fatalf("destination should hold the lock proof: %v", err)
	}
	if lock.Signer != src.Identity.PublicKeyHex() {
		t.Fatalf("lock proof should be signed by the source")
	}

	src.Shutdown()

	// A restarted source finds the session in its database and leaves it
	// alone.
	restarted := newTestEngine(t, "gw1", "DLT1", srcDir)
	restarted.Config.Key = src.Config.Key
	if err := restarted.Init(); err != nil {
		t.Fatal(err)
	}
	defer restarted.Shutdown()

	outcomes, err := restarted.RunAsync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Action != gateway.ActionSkipped {
		t.Fatalf("completed session should be skipped, got %v", outcomes)
	}

	s, err := restarted.Gateway.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != session.Completed || s.Step != session.StepComplete {
		t.Fatalf("restored session should be completed, got %s %s", s.Status, s.Step)
	}
}
