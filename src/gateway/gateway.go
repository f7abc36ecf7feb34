package gateway

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/satp/src/claims"
	cm "github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/ledger"
	"github.com/mosaicnetworks/satp/src/net"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/mosaicnetworks/satp/src/wal"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ClaimFormat is the format of the ledger claims carried in messages.
const ClaimFormat = "application/json"

// Gateway is the protocol engine of one gateway. The session store, the audit
// log and the claim store are handles owned by the caller.
type Gateway struct {
	state

	conf   *Config
	logger *logrus.Entry

	identity odap.Signer

	store  session.Store
	log    wal.Log
	claims claims.Store
	ledger ledger.Connector

	trans net.Transport
	netCh <-chan net.RPC

	// initLock serialises the creation of destination sessions.
	initLock sync.Mutex

	crashLock sync.Mutex
	crash     map[string]CrashStatus
	inflight  map[string]int

	controlTimer *ControlTimer
	shutdownCh   chan struct{}

	now func() time.Time
}

// New is a factory method that returns a Gateway instance.
func New(conf *Config,
	identity odap.Signer,
	store session.Store,
	log wal.Log,
	claimStore claims.Store,
	connector ledger.Connector,
	trans net.Transport,
) *Gateway {

	logger := conf.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Gateway{
		conf: conf,
		logger: logger.WithFields(logrus.Fields{
			"prefix":  "gateway",
			"moniker": conf.Moniker,
		}),
		identity:     identity,
		store:        store,
		log:          log,
		claims:       claimStore,
		ledger:       connector,
		trans:        trans,
		netCh:        trans.Consumer(),
		crash:        make(map[string]CrashStatus),
		inflight:     make(map[string]int),
		controlTimer: NewPeriodicControlTimer(),
		shutdownCh:   make(chan struct{}),
		now:          time.Now,
	}
}

// PublicKeyHex returns the identity key of the gateway.
func (g *Gateway) PublicKeyHex() string {
	return g.identity.PublicKeyHex()
}

// Addr returns the address counterparts use to reach the gateway.
func (g *Gateway) Addr() string {
	return g.trans.AdvertiseAddr()
}

// GetState ...
func (g *Gateway) GetState() State {
	return g.getState()
}

// RunAsync calls Run in a separate goroutine.
func (g *Gateway) RunAsync() {
	go g.Run()
}

// Run starts the transport listener, consumes incoming RPCs and runs the
// stalled session check until Shutdown is called.
func (g *Gateway) Run() {
	go g.trans.Listen()

	go g.controlTimer.Run(g.conf.CrashCheckInterval)

	g.logger.WithField("addr", g.trans.AdvertiseAddr()).Debug("Run loop")

	for {
		select {
		case rpc := <-g.netCh:
			g.goFunc(func() {
				g.processRPC(rpc)
			})
		case <-g.controlTimer.tickCh:
			g.goFunc(func() {
				g.CheckStalledSessions()
			})
			g.controlTimer.Reset(g.conf.CrashCheckInterval)
		case <-g.shutdownCh:
			return
		}
	}
}

// Shutdown stops processing RPCs. Transitions in progress complete, new ones
// fail with ErrShutdown. Nothing is rolled back.
func (g *Gateway) Shutdown() {
	if g.getState() != Shutdown {
		g.logger.Debug("Shutdown")

		g.setState(Shutdown)

		close(g.shutdownCh)

		g.waitRoutines()

		g.controlTimer.Shutdown()

		g.trans.Close()
	}
}

func (g *Gateway) checkRunning(sessionID string, phase odap.Phase) error {
	if g.getState() == Shutdown {
		return &ProtocolViolation{
			SessionID: sessionID,
			Phase:     phase,
			Cause:     ErrShutdown,
		}
	}
	return nil
}

// millis returns the current time in unix milliseconds.
func (g *Gateway) millis() int64 {
	return g.now().UnixNano() / int64(time.Millisecond)
}

// audit appends an entry carrying a snapshot of s. It is called inside store
// updates, before the store commits.
func (g *Gateway) audit(s *session.SessionData, phase odap.Phase, stage odap.Stage) error {
	snap, err := s.Marshal()
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}

	if err := g.log.Append(wal.NewEntry(s.ID, phase, stage, g.millis(), snap)); err != nil {
		return errors.Wrap(err, "appending audit entry")
	}

	g.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"phase":   phase,
		"stage":   stage,
		"step":    s.Step,
	}).Debug("Audit")

	return nil
}

// auditExec records that a message of a session is about to be validated.
// Exec entries carry no snapshot.
func (g *Gateway) auditExec(sessionID string, phase odap.Phase) error {
	if err := g.log.Append(wal.NewEntry(sessionID, phase, odap.StageExec, g.millis(), nil)); err != nil {
		return errors.Wrap(err, "appending audit entry")
	}

	g.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"phase":   phase,
		"stage":   odap.StageExec,
	}).Debug("Audit")

	return nil
}

// GetSession returns a copy of a session.
func (g *Gateway) GetSession(id string) (*session.SessionData, error) {
	return g.store.Get(id)
}

// GetSessions returns copies of all the sessions of the gateway.
func (g *Gateway) GetSessions() ([]*session.SessionData, error) {
	ids, err := g.store.IDs()
	if err != nil {
		return nil, err
	}

	res := make([]*session.SessionData, 0, len(ids))
	for _, id := range ids {
		s, err := g.store.Get(id)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}

	return res, nil
}

// GetAuditLog returns the audit entries of a session.
func (g *Gateway) GetAuditLog(id string) ([]*wal.Entry, error) {
	return g.log.Query(id)
}

// GetStats returns counters describing the gateway.
func (g *Gateway) GetStats() map[string]string {
	sessions, err := g.GetSessions()
	if err != nil {
		g.logger.WithError(err).Error("Listing sessions")
	}

	var active, completed, aborted, source, destination int
	for _, s := range sessions {
		switch s.Status {
		case session.Active:
			active++
		case session.Completed:
			completed++
		case session.Aborted:
			aborted++
		}
		if s.Role == session.Source {
			source++
		} else {
			destination++
		}
	}

	return map[string]string{
		"moniker":              g.conf.Moniker,
		"dlt":                  g.conf.DLTSystem,
		"state":                g.getState().String(),
		"public_key":           g.identity.PublicKeyHex(),
		"addr":                 g.trans.AdvertiseAddr(),
		"sessions":             strconv.Itoa(len(sessions)),
		"active_sessions":      strconv.Itoa(active),
		"completed_sessions":   strconv.Itoa(completed),
		"aborted_sessions":     strconv.Itoa(aborted),
		"source_sessions":      strconv.Itoa(source),
		"destination_sessions": strconv.Itoa(destination),
	}
}

func (g *Gateway) processRPC(rpc net.RPC) {
	var resp interface{}
	var err error

	switch cmd := rpc.Command.(type) {
	case *odap.TransferInitializationRequest:
		resp, err = g.processTransferInitialization(cmd)
	case *odap.TransferCommenceRequest:
		resp, err = g.processTransferCommence(cmd)
	case *odap.LockEvidenceRequest:
		resp, err = g.processLockEvidence(cmd)
	case *odap.CommitPreparationRequest:
		resp, err = g.processCommitPreparation(cmd)
	case *odap.CommitFinalRequest:
		resp, err = g.processCommitFinal(cmd)
	case *odap.TransferCompleteRequest:
		resp, err = g.processTransferComplete(cmd)
	case *odap.RecoverMessage:
		resp, err = g.processRecover(cmd)
	case *odap.RecoverSuccessMessage:
		resp, err = g.processRecoverSuccess(cmd)
	case *odap.RollbackMessage:
		resp, err = g.processRollback(cmd)
	default:
		g.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		err = fmt.Errorf("unexpected command")
	}

	if err != nil {
		g.logger.WithError(err).Debug("Refusing RPC")
		rpc.Respond(nil, err)
		return
	}

	rpc.Respond(resp, nil)
}

// storeErr turns a session store error into a protocol error when the
// session does not exist.
func storeErr(sessionID string, phase odap.Phase, err error) error {
	if cm.IsStore(err, cm.KeyNotFound) {
		return violation(sessionID, phase, ErrUnknownSession, "%s", sessionID)
	}
	return err
}
