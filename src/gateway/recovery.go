package gateway

import (
	"context"
	"time"

	"github.com/mosaicnetworks/satp/src/claims"
	cm "github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/ledger"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Action is what recovery did with a session.
type Action string

const (
	ActionSkipped    Action = "skipped"
	ActionResumed    Action = "resumed"
	ActionRolledBack Action = "rolled-back"
	ActionAborted    Action = "aborted"
	ActionPending    Action = "pending"
)

// Outcome reports the recovery of one session.
type Outcome struct {
	SessionID string
	Role      session.Role
	Action    Action
	Err       error
}

// statusUnknown is reported in a RecoverUpdate for sessions the responder
// does not know.
const statusUnknown = "unknown"

/*******************************************************************************
Startup
*******************************************************************************/

// RecoverOpenSessions restores the sessions recorded in the audit log and
// settles every open one. Source sessions are resumed when both gateways
// agree on the last exchange, and rolled back otherwise. Destination sessions
// that did not create the asset are aborted; the others wait for the source.
// Rollbacks the counterpart did not acknowledge are notified again.
func (g *Gateway) RecoverOpenSessions(ctx context.Context) ([]Outcome, error) {
	if err := g.checkRunning("", odap.PhaseRecovery); err != nil {
		return nil, err
	}

	g.setState(Recovering)
	defer func() {
		if g.getState() == Recovering {
			g.setState(Running)
		}
	}()

	if err := g.restoreFromLog(); err != nil {
		return nil, err
	}

	ids, err := g.store.IDs()
	if err != nil {
		return nil, err
	}

	res := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		s, err := g.store.Get(id)
		if err != nil {
			res = append(res, Outcome{SessionID: id, Action: ActionPending, Err: err})
			continue
		}

		var o Outcome
		switch {
		case s.RollbackPending:
			o = g.resendRollback(ctx, id)
		case s.Closed():
			o = Outcome{SessionID: id, Role: s.Role, Action: ActionSkipped}
		case s.Role == session.Source:
			o = g.recoverSource(ctx, id)
		default:
			o = g.recoverDestination(id)
		}

		g.logger.WithFields(logrus.Fields{
			"session": id,
			"role":    o.Role,
			"action":  o.Action,
			"error":   o.Err,
		}).Info("Recovered session")

		res = append(res, o)
	}

	return res, nil
}

// restoreFromLog writes back the latest snapshot of every session whose
// stored state is missing or behind the audit log.
func (g *Gateway) restoreFromLog() error {
	ids, err := g.log.Sessions()
	if err != nil {
		return err
	}

	for _, id := range ids {
		snap, err := g.latestSnapshot(id)
		if err != nil {
			return err
		}
		if snap == nil {
			continue
		}

		s, err := g.store.Get(id)
		if err != nil && !cm.IsStore(err, cm.KeyNotFound) {
			return err
		}

		if s != nil && !ahead(snap, s) {
			continue
		}

		if err := g.store.Put(snap); err != nil {
			return err
		}

		g.logger.WithFields(logrus.Fields{
			"session": id,
			"step":    snap.Step,
			"status":  snap.Status,
		}).Debug("Session restored from audit log")
	}

	return nil
}

// latestSnapshot decodes the most recent snapshot of a session. Exec entries
// carry none and are skipped.
func (g *Gateway) latestSnapshot(sessionID string) (*session.SessionData, error) {
	entries, err := g.log.Query(sessionID)
	if err != nil {
		return nil, err
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if len(entries[i].Snapshot) == 0 {
			continue
		}
		s := new(session.SessionData)
		if err := s.Unmarshal(entries[i].Snapshot); err != nil {
			return nil, errors.Wrapf(err, "decoding snapshot %d of %s", entries[i].Index, sessionID)
		}
		return s, nil
	}

	return nil, nil
}

// ahead reports whether snapshot a records progress that s lacks.
func ahead(a, s *session.SessionData) bool {
	if a.Step != s.Step {
		return a.Step > s.Step
	}
	if a.LastSequenceNumber != s.LastSequenceNumber {
		return a.LastSequenceNumber > s.LastSequenceNumber
	}
	if a.Closed() != s.Closed() {
		return a.Closed()
	}
	if len(a.RollbackActions) != len(s.RollbackActions) {
		return len(a.RollbackActions) > len(s.RollbackActions)
	}
	return s.RollbackPending && !a.RollbackPending
}

/*******************************************************************************
Source
*******************************************************************************/

// recoverSource asks the counterpart for its view of the session and decides
// whether to resume or to roll back.
func (g *Gateway) recoverSource(ctx context.Context, sessionID string) Outcome {
	g.setCrashStatus(sessionID, InRecovery)
	defer g.setCrashStatus(sessionID, Idle)

	out := Outcome{SessionID: sessionID, Role: session.Source}

	if err := g.reconcile(sessionID); err != nil {
		out.Action, out.Err = ActionPending, err
		return out
	}

	s, err := g.store.Get(sessionID)
	if err != nil {
		out.Action, out.Err = ActionPending, err
		return out
	}

	if s.Step == session.StepNone {
		if err := g.abort(sessionID, "nothing sent"); err != nil {
			out.Action, out.Err = ActionPending, err
			return out
		}
		out.Action = ActionAborted
		return out
	}

	update, err := g.sendRecover(ctx, s)
	if err != nil {
		if s.Step >= session.StepFinalAckd {
			out.Action, out.Err = ActionPending, err
			return out
		}
		return g.rollback(ctx, sessionID, "counterpart unreachable")
	}

	g.logger.WithFields(logrus.Fields{
		"session":      sessionID,
		"step":         s.Step,
		"remoteStatus": update.Status,
		"remoteStep":   session.Step(update.Step),
		"remoteSeq":    update.SequenceNumber,
		"seq":          s.LastSequenceNumber,
	}).Debug("Recover update")

	if update.Status == string(session.Completed) && s.Step == session.StepComplete {
		if err := g.complete(sessionID); err != nil {
			out.Action, out.Err = ActionPending, err
			return out
		}
		out.Action = ActionResumed
		return out
	}

	agreed := update.Status == string(session.Active) && update.SequenceNumber == s.LastSequenceNumber

	if s.Step >= session.StepFinalAckd {
		if !agreed {
			out.Action = ActionPending
			return out
		}
		return g.resume(ctx, sessionID)
	}

	if !agreed {
		return g.rollback(ctx, sessionID, "counterpart diverged")
	}

	return g.resume(ctx, sessionID)
}

// resume tells the counterpart the session goes on and drives it.
func (g *Gateway) resume(ctx context.Context, sessionID string) Outcome {
	out := Outcome{SessionID: sessionID, Role: session.Source, Action: ActionResumed}

	if err := g.sendRecoverSuccess(ctx, sessionID); err != nil {
		out.Action, out.Err = ActionPending, err
		return out
	}

	g.setCrashStatus(sessionID, Idle)

	if err := g.RunTransfer(ctx, sessionID); err != nil {
		s, gerr := g.store.Get(sessionID)
		if gerr == nil && s.Step < session.StepFinalAckd && !s.Closed() {
			return g.rollback(ctx, sessionID, err.Error())
		}
		out.Action, out.Err = ActionPending, err
	}

	return out
}

// reconcile marks the ledger actions whose proofs exist in the claim store
// but were not recorded in the session.
func (g *Gateway) reconcile(sessionID string) error {
	lock, err := g.ownProof(sessionID, claims.ProofLock)
	if err != nil {
		return err
	}
	del, err := g.ownProof(sessionID, claims.ProofDelete)
	if err != nil {
		return err
	}

	if lock == nil && del == nil {
		return nil
	}

	return g.store.Update(sessionID, func(s *session.SessionData) error {
		if lock != nil && !s.AssetLocked {
			s.AssetLocked = true
			s.LockEvidenceClaim = string(lock.Bytes)
			s.LockEvidenceFormat = ClaimFormat
		}
		if del != nil && !s.AssetDeleted {
			s.AssetDeleted = true
			s.CommitFinalClaim = string(del.Bytes)
			s.CommitFinalFormat = ClaimFormat
		}
		return nil
	})
}

// ownProof returns the proof called name of a session if this gateway
// signed it.
func (g *Gateway) ownProof(sessionID, name string) (*claims.Proof, error) {
	p, err := g.claims.Get(claims.ProofKey(sessionID, name))
	if err != nil {
		if cm.IsStore(err, cm.KeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if p.Signer != g.identity.PublicKeyHex() || !p.Verify() {
		return nil, nil
	}
	return p, nil
}

// recoveryHeader is the header of the recovery messages of a session. They
// carry the last sequence number of the sender and are not chained.
func recoveryHeader(s *session.SessionData, t odap.MessageType) odap.Header {
	return odap.Header{
		MessageType:          t,
		SessionID:            s.ID,
		SequenceNumber:       s.LastSequenceNumber,
		ClientIdentityPubKey: s.SourceGatewayPubKey,
		ServerIdentityPubKey: s.RecipientGatewayPubKey,
	}
}

func (g *Gateway) recoveryCall(ctx context.Context, s *session.SessionData, rpc func() (interface{}, error)) (interface{}, error) {
	return g.call(ctx, s.ID, odap.PhaseRecovery, s.MaxRetries, time.Duration(s.MaxTimeout)*time.Millisecond, rpc)
}

func (g *Gateway) sendRecover(ctx context.Context, s *session.SessionData) (*odap.RecoverUpdateMessage, error) {
	if err := g.auditExec(s.ID, odap.PhaseRecovery); err != nil {
		return nil, err
	}

	msg := &odap.RecoverMessage{
		Header:    recoveryHeader(s, odap.TypeRecover),
		Timestamp: g.millis(),
	}
	if err := odap.Sign(msg, g.identity); err != nil {
		return nil, err
	}

	target := s.CounterpartAddr()

	out, err := g.recoveryCall(ctx, s, func() (interface{}, error) {
		var resp odap.RecoverUpdateMessage
		err := g.trans.Recover(target, msg, &resp)
		return &resp, err
	})
	if err != nil {
		return nil, err
	}

	update := out.(*odap.RecoverUpdateMessage)
	if err := verifyPinned(s, update); err != nil {
		return nil, err
	}

	return update, nil
}

func (g *Gateway) sendRecoverSuccess(ctx context.Context, sessionID string) error {
	s, err := g.store.Get(sessionID)
	if err != nil {
		return err
	}

	msg := &odap.RecoverSuccessMessage{
		Header:    recoveryHeader(s, odap.TypeRecoverSuccess),
		Success:   true,
		Timestamp: g.millis(),
	}
	if err := odap.Sign(msg, g.identity); err != nil {
		return err
	}

	target := s.CounterpartAddr()

	out, err := g.recoveryCall(ctx, s, func() (interface{}, error) {
		var resp odap.Ack
		err := g.trans.RecoverSuccess(target, msg, &resp)
		return &resp, err
	})
	if err != nil {
		return err
	}

	if ack := out.(*odap.Ack); !ack.Accepted {
		return violation(sessionID, odap.PhaseRecovery, ErrRemote, "recover success not acknowledged")
	}

	return g.store.Update(sessionID, func(s *session.SessionData) error {
		return g.audit(s, odap.PhaseRecovery, odap.StageInit)
	})
}

// rollback reverses the ledger actions of a source session, aborts it and
// notifies the counterpart. It does nothing while the session is driven.
func (g *Gateway) rollback(ctx context.Context, sessionID, reason string) Outcome {
	if !g.claimRollback(sessionID, Idle, InRecovery) {
		return Outcome{
			SessionID: sessionID,
			Role:      session.Source,
			Action:    ActionPending,
			Err:       violation(sessionID, odap.PhaseRecovery, ErrSessionBusy, "%s", reason),
		}
	}
	return g.rollbackClaimed(ctx, sessionID, reason)
}

// rollbackClaimed is rollback for a session already moved to InRollback.
func (g *Gateway) rollbackClaimed(ctx context.Context, sessionID, reason string) Outcome {
	defer g.setCrashStatus(sessionID, Idle)

	out := Outcome{SessionID: sessionID, Role: session.Source, Action: ActionRolledBack}

	var s *session.SessionData
	err := g.store.Update(sessionID, func(cur *session.SessionData) error {
		if err := canRollback(cur); err != nil {
			return err
		}
		s = cur.Clone()
		return nil
	})
	if err != nil {
		out.Action, out.Err = ActionPending, err
		return out
	}

	var action *session.RollbackAction

	switch {
	case s.AssetDeleted && !s.HasRollback(session.ActionRecreate):
		action, err = g.recreateSourceAsset(ctx, s)
	case s.AssetLocked && !s.AssetDeleted && !s.HasRollback(session.ActionUnlock):
		action, err = g.unlockSourceAsset(ctx, s)
	}
	if err != nil {
		out.Action, out.Err = ActionPending, err
		return out
	}

	err = g.store.Update(sessionID, func(s *session.SessionData) error {
		if err := canRollback(s); err != nil {
			return err
		}
		if action != nil {
			s.RecordRollback(*action)
		}
		s.Status = session.Aborted
		s.RollbackPending = true
		return g.audit(s, odap.PhaseRecovery, odap.StageDone)
	})
	if err != nil {
		out.Action, out.Err = ActionPending, err
		return out
	}

	g.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"reason":  reason,
	}).Info("Session rolled back")

	if err := g.sendRollback(ctx, sessionID, reason); err != nil {
		g.logger.WithError(err).WithField("session", sessionID).Warn("Rollback not acknowledged")
	}

	return out
}

// canRollback refuses the rollback of a session that is closed, or whose
// Commit Final was acknowledged.
func canRollback(s *session.SessionData) error {
	if s.Role != session.Source {
		return violation(s.ID, odap.PhaseRecovery, ErrMessageType, "%s sessions are rolled back by their source", s.Role)
	}
	if s.Closed() {
		return violation(s.ID, odap.PhaseRecovery, ErrSessionClosed, "status %s", s.Status)
	}
	if s.Step >= session.StepFinalAckd {
		return violation(s.ID, odap.PhaseRecovery, ErrMessageType, "rollback at step %s", s.Step)
	}
	return nil
}

// resendRollback notifies again the counterpart of a session rolled back
// without acknowledgement.
func (g *Gateway) resendRollback(ctx context.Context, sessionID string) Outcome {
	if !g.claimRollback(sessionID, Idle) {
		return Outcome{
			SessionID: sessionID,
			Role:      session.Source,
			Action:    ActionPending,
			Err:       violation(sessionID, odap.PhaseRecovery, ErrSessionBusy, "rollback notification"),
		}
	}
	return g.notifyRollback(ctx, sessionID)
}

// notifyRollback sends the Rollback message of a claimed session whose
// rollback is pending. The outcome stays pending until it is acknowledged.
func (g *Gateway) notifyRollback(ctx context.Context, sessionID string) Outcome {
	defer g.setCrashStatus(sessionID, Idle)

	out := Outcome{SessionID: sessionID, Role: session.Source, Action: ActionRolledBack}

	if err := g.sendRollback(ctx, sessionID, "rollback not acknowledged"); err != nil {
		g.logger.WithError(err).WithField("session", sessionID).Warn("Rollback not acknowledged")
		out.Action, out.Err = ActionPending, err
	}

	return out
}

func (g *Gateway) recreateSourceAsset(ctx context.Context, s *session.SessionData) (*session.RollbackAction, error) {
	exists, err := g.ledger.AssetExists(ctx, s.SourceLedgerAssetID)
	if err != nil {
		return nil, err
	}

	action := &session.RollbackAction{
		Kind:      session.ActionRecreate,
		Ledger:    g.ledger.Name(),
		AssetID:   s.SourceLedgerAssetID,
		ProofKey:  claims.ProofKey(s.ID, claims.ProofRollbackCreate),
		Timestamp: g.millis(),
	}

	if exists {
		if p, err := g.ownProof(s.ID, claims.ProofRollbackCreate); err == nil && p != nil {
			action.ProofHash = p.Hash
		}
		return action, nil
	}

	_, hash, err := g.ledgerProof(ctx, s.ID, claims.ProofRollbackCreate, func() ([]byte, error) {
		return g.ledger.CreateAsset(ctx, s.SourceLedgerAssetID)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "recreating asset %s", s.SourceLedgerAssetID)
	}
	action.ProofHash = hash

	return action, nil
}

func (g *Gateway) unlockSourceAsset(ctx context.Context, s *session.SessionData) (*session.RollbackAction, error) {
	action := &session.RollbackAction{
		Kind:      session.ActionUnlock,
		Ledger:    g.ledger.Name(),
		AssetID:   s.SourceLedgerAssetID,
		ProofKey:  claims.ProofKey(s.ID, claims.ProofRollbackUnlock),
		Timestamp: g.millis(),
	}

	_, hash, err := g.ledgerProof(ctx, s.ID, claims.ProofRollbackUnlock, func() ([]byte, error) {
		return g.ledger.UnlockAsset(ctx, s.SourceLedgerAssetID)
	})
	if err != nil {
		if ledger.IsLedgerErr(err, ledger.AssetNotLocked) {
			return action, nil
		}
		return nil, errors.Wrapf(err, "unlocking asset %s", s.SourceLedgerAssetID)
	}
	action.ProofHash = hash

	return action, nil
}

func (g *Gateway) sendRollback(ctx context.Context, sessionID, reason string) error {
	s, err := g.store.Get(sessionID)
	if err != nil {
		return err
	}

	msg := &odap.RollbackMessage{
		Header:    recoveryHeader(s, odap.TypeRollback),
		Reason:    reason,
		Timestamp: g.millis(),
	}
	for _, a := range s.RollbackActions {
		msg.Actions = append(msg.Actions, string(a.Kind))
	}
	msg.Proofs = append(msg.Proofs, s.RollbackProofs...)

	if err := odap.Sign(msg, g.identity); err != nil {
		return err
	}

	target := s.CounterpartAddr()

	out, err := g.recoveryCall(ctx, s, func() (interface{}, error) {
		var resp odap.RollbackAckMessage
		err := g.trans.Rollback(target, msg, &resp)
		return &resp, err
	})
	if err != nil {
		return err
	}

	ack := out.(*odap.RollbackAckMessage)
	if err := verifyPinned(s, ack); err != nil {
		return err
	}
	if !ack.Success {
		return violation(sessionID, odap.PhaseRecovery, ErrRemote, "rollback not confirmed")
	}

	g.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"actions": ack.Actions,
	}).Debug("Rollback acknowledged")

	return g.store.Update(sessionID, func(s *session.SessionData) error {
		if !s.RollbackPending {
			return nil
		}
		s.RollbackPending = false
		return g.audit(s, odap.PhaseRecovery, odap.StageAck)
	})
}

// abort closes a session without ledger actions.
func (g *Gateway) abort(sessionID, reason string) error {
	err := g.store.Update(sessionID, func(s *session.SessionData) error {
		if s.Closed() {
			return nil
		}
		s.Status = session.Aborted
		return g.audit(s, odap.PhaseRecovery, odap.StageDone)
	})
	if err != nil {
		return err
	}

	g.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"reason":  reason,
	}).Info("Session aborted")

	return nil
}

// verifyPinned checks a recovery message against the keys pinned in s.
func verifyPinned(s *session.SessionData, m odap.Message) error {
	h := m.GetHeader()

	if h.SessionID != s.ID {
		return violation(s.ID, odap.PhaseRecovery, ErrUnknownSession, "%s", h.SessionID)
	}
	if h.ClientIdentityPubKey != s.SourceGatewayPubKey {
		return violation(s.ID, odap.PhaseRecovery, ErrPubKeyMismatch, "client key %s", h.ClientIdentityPubKey)
	}
	if h.ServerIdentityPubKey != s.RecipientGatewayPubKey {
		return violation(s.ID, odap.PhaseRecovery, ErrPubKeyMismatch, "server key %s", h.ServerIdentityPubKey)
	}
	if !odap.Verify(m, odap.SenderPubKey(m)) {
		return violation(s.ID, odap.PhaseRecovery, ErrSignature, "%s", h.MessageType)
	}

	return nil
}

/*******************************************************************************
Destination
*******************************************************************************/

// recoverDestination settles a destination session at startup. Without a
// created asset there is nothing to undo and the session is aborted.
func (g *Gateway) recoverDestination(sessionID string) Outcome {
	out := Outcome{SessionID: sessionID, Role: session.Destination}

	s, err := g.store.Get(sessionID)
	if err != nil {
		out.Action, out.Err = ActionPending, err
		return out
	}

	if s.AssetCreated {
		out.Action = ActionPending
		return out
	}

	if err := g.abort(sessionID, "asset not created"); err != nil {
		out.Action, out.Err = ActionPending, err
		return out
	}
	out.Action = ActionAborted

	return out
}

func (g *Gateway) processRecover(m *odap.RecoverMessage) (interface{}, error) {
	if err := g.checkRunning(m.SessionID, odap.PhaseRecovery); err != nil {
		return nil, err
	}

	s, err := g.store.Get(m.SessionID)
	if err != nil {
		if !cm.IsStore(err, cm.KeyNotFound) {
			return nil, err
		}
		return g.unknownUpdate(m)
	}

	if err := g.auditExec(m.SessionID, odap.PhaseRecovery); err != nil {
		return nil, err
	}

	if err := verifyPinned(s, m); err != nil {
		return nil, err
	}

	g.setCrashStatus(s.ID, InRecovery)

	var update *odap.RecoverUpdateMessage

	err = g.store.Update(s.ID, func(s *session.SessionData) error {
		update = &odap.RecoverUpdateMessage{
			Header:       recoveryHeader(s, odap.TypeRecoverUpdate),
			Status:       string(s.Status),
			Step:         int(s.Step),
			AssetCreated: s.AssetCreated,
			Timestamp:    g.millis(),
		}
		if err := odap.Sign(update, g.identity); err != nil {
			return err
		}
		return g.audit(s, odap.PhaseRecovery, odap.StageAck)
	})
	if err != nil {
		return nil, err
	}

	return update, nil
}

// unknownUpdate answers a Recover for a session this gateway never opened.
func (g *Gateway) unknownUpdate(m *odap.RecoverMessage) (interface{}, error) {
	if m.ServerIdentityPubKey != g.identity.PublicKeyHex() {
		return nil, violation(m.SessionID, odap.PhaseRecovery, ErrPubKeyMismatch, "server key %s", m.ServerIdentityPubKey)
	}
	if !odap.Verify(m, m.ClientIdentityPubKey) {
		return nil, violation(m.SessionID, odap.PhaseRecovery, ErrSignature, "%s", m.MessageType)
	}

	update := &odap.RecoverUpdateMessage{
		Header: odap.Header{
			MessageType:          odap.TypeRecoverUpdate,
			SessionID:            m.SessionID,
			ClientIdentityPubKey: m.ClientIdentityPubKey,
			ServerIdentityPubKey: m.ServerIdentityPubKey,
		},
		Status:    statusUnknown,
		Timestamp: g.millis(),
	}
	if err := odap.Sign(update, g.identity); err != nil {
		return nil, err
	}

	return update, nil
}

func (g *Gateway) processRecoverSuccess(m *odap.RecoverSuccessMessage) (interface{}, error) {
	if err := g.checkRunning(m.SessionID, odap.PhaseRecovery); err != nil {
		return nil, err
	}

	s, err := g.store.Get(m.SessionID)
	if err != nil {
		return nil, storeErr(m.SessionID, odap.PhaseRecovery, err)
	}

	if err := verifyPinned(s, m); err != nil {
		return nil, err
	}

	err = g.store.Update(s.ID, func(s *session.SessionData) error {
		return g.audit(s, odap.PhaseRecovery, odap.StageDone)
	})
	if err != nil {
		return nil, err
	}

	g.setCrashStatus(s.ID, Idle)

	return &odap.Ack{SessionID: s.ID, Accepted: m.Success}, nil
}

func (g *Gateway) processRollback(m *odap.RollbackMessage) (interface{}, error) {
	if err := g.checkRunning(m.SessionID, odap.PhaseRecovery); err != nil {
		return nil, err
	}

	s, err := g.store.Get(m.SessionID)
	if err != nil {
		if !cm.IsStore(err, cm.KeyNotFound) {
			return nil, err
		}
		return g.unknownRollbackAck(m)
	}

	if err := g.auditExec(s.ID, odap.PhaseRecovery); err != nil {
		return nil, err
	}

	if err := verifyPinned(s, m); err != nil {
		return nil, err
	}

	if s.Status == session.Completed {
		return nil, violation(s.ID, odap.PhaseRecovery, ErrSessionClosed, "session completed")
	}

	g.setCrashStatus(s.ID, InRollback)
	defer g.setCrashStatus(s.ID, Idle)

	var action *session.RollbackAction
	if s.AssetCreated && !s.HasRollback(session.ActionDeleteCreated) {
		ctx, cancel := g.serverContext()
		defer cancel()

		action, err = g.deleteCreatedAsset(ctx, s)
		if err != nil {
			return nil, err
		}
	}

	var ack *odap.RollbackAckMessage

	err = g.store.Update(s.ID, func(s *session.SessionData) error {
		if action != nil {
			s.RecordRollback(*action)
		}
		s.Status = session.Aborted

		ack = &odap.RollbackAckMessage{
			Header:    recoveryHeader(s, odap.TypeRollbackAck),
			Success:   true,
			Proofs:    append([]string(nil), s.RollbackProofs...),
			Timestamp: g.millis(),
		}
		for _, a := range s.RollbackActions {
			ack.Actions = append(ack.Actions, string(a.Kind))
		}
		if err := odap.Sign(ack, g.identity); err != nil {
			return err
		}

		return g.audit(s, odap.PhaseRecovery, odap.StageDone)
	})
	if err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"reason":  m.Reason,
	}).Info("Session rolled back by source")

	return ack, nil
}

// unknownRollbackAck acknowledges the Rollback of a session this gateway never
// opened. There is nothing to undo.
func (g *Gateway) unknownRollbackAck(m *odap.RollbackMessage) (interface{}, error) {
	if m.ServerIdentityPubKey != g.identity.PublicKeyHex() {
		return nil, violation(m.SessionID, odap.PhaseRecovery, ErrPubKeyMismatch, "server key %s", m.ServerIdentityPubKey)
	}
	if !odap.Verify(m, m.ClientIdentityPubKey) {
		return nil, violation(m.SessionID, odap.PhaseRecovery, ErrSignature, "%s", m.MessageType)
	}

	ack := &odap.RollbackAckMessage{
		Header: odap.Header{
			MessageType:          odap.TypeRollbackAck,
			SessionID:            m.SessionID,
			ClientIdentityPubKey: m.ClientIdentityPubKey,
			ServerIdentityPubKey: m.ServerIdentityPubKey,
		},
		Success:   true,
		Timestamp: g.millis(),
	}
	if err := odap.Sign(ack, g.identity); err != nil {
		return nil, err
	}

	return ack, nil
}

// deleteCreatedAsset removes the asset created on the destination ledger.
// The asset is locked first, as the ledger only deletes locked assets.
func (g *Gateway) deleteCreatedAsset(ctx context.Context, s *session.SessionData) (*session.RollbackAction, error) {
	_, hash, err := g.ledgerProof(ctx, s.ID, claims.ProofRollbackDelete, func() ([]byte, error) {
		if _, err := g.ledger.LockAsset(ctx, s.RecipientLedgerAssetID); err != nil && !ledger.IsLedgerErr(err, ledger.AssetLocked) {
			return nil, err
		}
		return g.ledger.DeleteAsset(ctx, s.RecipientLedgerAssetID)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "deleting created asset %s", s.RecipientLedgerAssetID)
	}

	return &session.RollbackAction{
		Kind:      session.ActionDeleteCreated,
		Ledger:    g.ledger.Name(),
		AssetID:   s.RecipientLedgerAssetID,
		ProofKey:  claims.ProofKey(s.ID, claims.ProofRollbackDelete),
		ProofHash: hash,
		Timestamp: g.millis(),
	}, nil
}
