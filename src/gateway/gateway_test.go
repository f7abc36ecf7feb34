package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/satp/src/claims"
	cm "github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/crypto/keys"
	"github.com/mosaicnetworks/satp/src/ledger"
	"github.com/mosaicnetworks/satp/src/net"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/mosaicnetworks/satp/src/wal"
	"github.com/sirupsen/logrus"
)

const (
	sourceAsset    = "asset-1"
	recipientAsset = "asset-2"
)

type testGateway struct {
	*Gateway
	id     *keys.Identity
	conf   *Config
	ledger *ledger.InmemLedger
	trans  *net.InmemTransport
	store  session.Store
	log    wal.Log
	claims claims.Store

	// wrap, if set, decorates the transport of the next gateway started.
	wrap func(*net.InmemTransport) net.Transport
}

func newTestGateway(t *testing.T, dlt string, claimStore claims.Store, supported ...string) *testGateway {
	id, err := keys.GenerateIdentity()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	tg := &testGateway{
		id:     id,
		conf:   TestConfig(t, dlt, supported...),
		ledger: ledger.NewInmemLedger(dlt, cm.NewTestEntry(t, logrus.DebugLevel, "ledger")),
		store:  session.NewInmemStore(),
		log:    wal.NewInmemLog(),
		claims: claimStore,
	}

	_, tg.trans = net.NewInmemTransport("")

	tg.start()

	return tg
}

func (tg *testGateway) start() {
	var trans net.Transport = tg.trans
	if tg.wrap != nil {
		trans = tg.wrap(tg.trans)
	}

	tg.Gateway = New(tg.conf, tg.id, tg.store, tg.log, tg.claims, tg.ledger, trans)
	tg.RunAsync()
}

// restart replaces the gateway by a new one over the same stores, ledger and
// address, as after a crash of the process.
func (tg *testGateway) restart(peers ...*testGateway) {
	tg.Shutdown()

	_, tg.trans = net.NewInmemTransport(tg.trans.LocalAddr())
	for _, p := range peers {
		tg.trans.Connect(p.trans.LocalAddr(), p.trans)
		p.trans.Connect(tg.trans.LocalAddr(), tg.trans)
	}

	tg.start()
}

func connect(a, b *testGateway) {
	a.trans.Connect(b.trans.LocalAddr(), b.trans)
	b.trans.Connect(a.trans.LocalAddr(), a.trans)
}

func newTestPair(t *testing.T, dstSupported ...string) (*testGateway, *testGateway) {
	if len(dstSupported) == 0 {
		dstSupported = []string{"DLT1"}
	}

	src := newTestGateway(t, "DLT1", claims.NewInmemStore(), "DLT2")
	dst := newTestGateway(t, "DLT2", claims.NewInmemStore(), dstSupported...)

	connect(src, dst)

	src.ledger.Seed(sourceAsset)

	t.Cleanup(func() {
		src.Shutdown()
		dst.Shutdown()
	})

	return src, dst
}

func testParams(t *testing.T, dst *testGateway) TransferParams {
	originator, err := keys.GenerateIdentity()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	beneficiary, err := keys.GenerateIdentity()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	return TransferParams{
		LoggingProfile:       "dummy",
		AccessControlProfile: "dummy",
		ApplicationProfile:   "dummy",
		PayloadProfile: odap.PayloadProfile{
			AssetProfile: odap.AssetProfile{
				Issuer:         "CB1",
				AssetCode:      "CBDC1",
				ExpirationDate: time.Now().Add(time.Hour).UnixNano() / int64(time.Millisecond),
			},
			Capabilities: "",
		},
		OriginatorPubKey:          originator.PublicKeyHex(),
		BeneficiaryPubKey:         beneficiary.PublicKeyHex(),
		RecipientGatewayPubKey:    dst.PublicKeyHex(),
		RecipientGatewayDLTSystem: dst.conf.DLTSystem,
		RecipientGatewayAddr:      dst.Addr(),
		SourceLedgerAssetID:       sourceAsset,
		RecipientLedgerAssetID:    recipientAsset,
	}
}

func getSession(t *testing.T, g *testGateway, id string) *session.SessionData {
	s, err := g.GetSession(id)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return s
}

// advance drives a source session until it reaches step.
func advance(t *testing.T, src *testGateway, id string, step session.Step) {
	ctx := context.Background()

	for {
		s := getSession(t, src, id)
		if s.Step >= step {
			return
		}

		var err error
		switch s.Step {
		case session.StepNone:
			_, err = src.SendTransferInitializationRequest(ctx, id)
		case session.StepInitAckd:
			_, err = src.SendTransferCommenceRequest(ctx, id)
		case session.StepCommenceAckd:
			if err = src.LockAsset(ctx, id); err == nil {
				_, err = src.SendLockEvidenceRequest(ctx, id)
			}
		case session.StepLockAckd:
			_, err = src.SendCommitPreparationRequest(ctx, id)
		case session.StepPrepAckd:
			if err = src.DeleteAsset(ctx, id); err == nil {
				_, err = src.SendCommitFinalRequest(ctx, id)
			}
		case session.StepFinalAckd:
			err = src.SendTransferCompleteRequest(ctx, id)
		default:
			t.Fatalf("cannot advance from %s", s.Step)
		}
		if err != nil {
			t.Fatalf("advancing from %s: %v", s.Step, err)
		}
	}
}

// lossyTransport delivers requests but loses the first response of the
// Commit Final and Transfer Complete exchanges.
type lossyTransport struct {
	*net.InmemTransport

	mu   sync.Mutex
	lost map[odap.MessageType]int
}

func newLossyTransport(t *net.InmemTransport) *lossyTransport {
	return &lossyTransport{
		InmemTransport: t,
		lost:           make(map[odap.MessageType]int),
	}
}

func (l *lossyTransport) lose(t odap.MessageType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lost[t]++
	return l.lost[t] == 1
}

func (l *lossyTransport) Lost(t odap.MessageType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost[t]
}

func (l *lossyTransport) CommitFinal(target string, args *odap.CommitFinalRequest, resp *odap.CommitFinalResponse) error {
	if l.lose(odap.TypeCommitFinalRequest) {
		var dropped odap.CommitFinalResponse
		if err := l.InmemTransport.CommitFinal(target, args, &dropped); err != nil {
			return err
		}
		return net.ErrTimeout
	}
	return l.InmemTransport.CommitFinal(target, args, resp)
}

func (l *lossyTransport) TransferComplete(target string, args *odap.TransferCompleteRequest, resp *odap.Ack) error {
	if l.lose(odap.TypeTransferComplete) {
		var dropped odap.Ack
		if err := l.InmemTransport.TransferComplete(target, args, &dropped); err != nil {
			return err
		}
		return net.ErrTimeout
	}
	return l.InmemTransport.TransferComplete(target, args, resp)
}
