package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/mosaicnetworks/satp/src/claims"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/mosaicnetworks/satp/src/wal"
	"github.com/pkg/errors"
)

func recoverOne(t *testing.T, g *testGateway, id string) Outcome {
	outcomes, err := g.RecoverOpenSessions(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	for _, o := range outcomes {
		if o.SessionID == id {
			return o
		}
	}

	t.Fatalf("no outcome for session %s in %v", id, outcomes)
	return Outcome{}
}

func TestCrashAfterCommitFinal(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepPrepAckd)

	if err := src.DeleteAsset(context.Background(), id); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := src.NewCommitFinalRequest(id); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Both processes die before Commit Final is delivered, and the source
	// loses its session store. Only the audit log survives.
	dst.Shutdown()
	src.store = session.NewInmemStore()
	src.restart()

	o := recoverOne(t, src, id)
	if o.Action != ActionRolledBack || o.Err != nil {
		t.Fatalf("source session should be rolled back, got %s (%v)", o.Action, o.Err)
	}

	a, ok := src.ledger.Asset(sourceAsset)
	if !ok {
		t.Fatalf("%s should be restored on the source ledger", sourceAsset)
	}
	if a.Locked {
		t.Fatalf("restored asset should not be locked")
	}

	if _, ok := dst.ledger.Asset(recipientAsset); ok {
		t.Fatalf("%s should never exist on the destination ledger", recipientAsset)
	}

	ss := getSession(t, src, id)
	if ss.Status != session.Aborted {
		t.Fatalf("source session should be aborted, not %s", ss.Status)
	}
	if len(ss.RollbackActions) != 1 || ss.RollbackActions[0].Kind != session.ActionRecreate {
		t.Fatalf("expected one recreate action, got %#v", ss.RollbackActions)
	}
	if len(ss.RollbackProofs) != 1 {
		t.Fatalf("expected one rollback proof, got %v", ss.RollbackProofs)
	}

	p, err := src.claims.Get(claims.ProofKey(id, claims.ProofRollbackCreate))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p.Hash != ss.RollbackProofs[0] {
		t.Fatalf("rollback proof hash should be %s, not %s", p.Hash, ss.RollbackProofs[0])
	}

	entries, err := src.GetAuditLog(id)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !wal.Contains(entries, odap.PhaseRecovery, odap.StageDone) {
		t.Fatalf("rollback should be recorded in the audit log")
	}

	// The destination restarts afterwards and closes its side.
	dst.restart()

	o = recoverOne(t, dst, id)
	if o.Action != ActionAborted {
		t.Fatalf("destination session should be aborted, got %s (%v)", o.Action, o.Err)
	}
	if _, ok := dst.ledger.Asset(recipientAsset); ok {
		t.Fatalf("%s should never exist on the destination ledger", recipientAsset)
	}
}

func TestRecoverResumes(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepCommenceAckd)

	src.restart(dst)

	o := recoverOne(t, src, id)
	if o.Action != ActionResumed || o.Err != nil {
		t.Fatalf("session should be resumed, got %s (%v)", o.Action, o.Err)
	}

	if ss := getSession(t, src, id); ss.Status != session.Completed {
		t.Fatalf("source session should be completed, not %s", ss.Status)
	}
	if ds := getSession(t, dst, id); ds.Status != session.Completed {
		t.Fatalf("destination session should be completed, not %s", ds.Status)
	}
	if _, ok := dst.ledger.Asset(recipientAsset); !ok {
		t.Fatalf("%s should exist on the destination ledger", recipientAsset)
	}
	if c := dst.CrashStatusOf(id); c != Idle {
		t.Fatalf("destination crash status should be %s, not %s", Idle, c)
	}

	entries, err := dst.GetAuditLog(id)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !wal.Contains(entries, odap.PhaseRecovery, odap.StageAck) {
		t.Fatalf("recover update should be recorded in the audit log")
	}
}

func TestRecoverRollsBackDestination(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepPrepAckd)

	if err := src.DeleteAsset(context.Background(), id); err != nil {
		t.Fatalf("err: %v", err)
	}
	req, err := src.NewCommitFinalRequest(id)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// The destination creates the asset but its response is lost.
	if _, err := dst.processCommitFinal(req); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, ok := dst.ledger.Asset(recipientAsset); !ok {
		t.Fatalf("%s should have been created", recipientAsset)
	}

	o := recoverOne(t, src, id)
	if o.Action != ActionRolledBack {
		t.Fatalf("diverged session should be rolled back, got %s (%v)", o.Action, o.Err)
	}

	if _, ok := src.ledger.Asset(sourceAsset); !ok {
		t.Fatalf("%s should be restored on the source ledger", sourceAsset)
	}
	if _, ok := dst.ledger.Asset(recipientAsset); ok {
		t.Fatalf("%s should be removed from the destination ledger", recipientAsset)
	}

	ds := getSession(t, dst, id)
	if ds.Status != session.Aborted {
		t.Fatalf("destination session should be aborted, not %s", ds.Status)
	}
	if len(ds.RollbackActions) != 1 || ds.RollbackActions[0].Kind != session.ActionDeleteCreated {
		t.Fatalf("expected one delete-created action, got %#v", ds.RollbackActions)
	}
	if c := dst.CrashStatusOf(id); c != Idle {
		t.Fatalf("destination crash status should be %s, not %s", Idle, c)
	}
}

func TestRecoverAfterLostCompleteAck(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepFinalAckd)

	req, err := src.NewTransferCompleteRequest(id)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := dst.processTransferComplete(req); err != nil {
		t.Fatalf("err: %v", err)
	}

	o := recoverOne(t, src, id)
	if o.Action != ActionResumed || o.Err != nil {
		t.Fatalf("session should be resumed, got %s (%v)", o.Action, o.Err)
	}

	if ss := getSession(t, src, id); ss.Status != session.Completed {
		t.Fatalf("source session should be completed, not %s", ss.Status)
	}
	if _, ok := src.ledger.Asset(sourceAsset); ok {
		t.Fatalf("%s should not come back", sourceAsset)
	}
}

func TestNoRollbackAfterFinalAck(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepFinalAckd)

	dst.Shutdown()

	o := recoverOne(t, src, id)
	if o.Action != ActionPending || !IsRecoverable(o.Err) {
		t.Fatalf("session should stay pending, got %s (%v)", o.Action, o.Err)
	}

	ss := getSession(t, src, id)
	if ss.Status != session.Active || len(ss.RollbackActions) != 0 {
		t.Fatalf("session should not be rolled back: %s, %#v", ss.Status, ss.RollbackActions)
	}
	if _, ok := src.ledger.Asset(sourceAsset); ok {
		t.Fatalf("%s should not be recreated", sourceAsset)
	}
}

func TestRecoverUnknownToCounterpart(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := src.NewTransferInitializationRequest(id); err != nil {
		t.Fatalf("err: %v", err)
	}

	o := recoverOne(t, src, id)
	if o.Action != ActionRolledBack {
		t.Fatalf("session should be rolled back, got %s (%v)", o.Action, o.Err)
	}

	ss := getSession(t, src, id)
	if ss.Status != session.Aborted || len(ss.RollbackActions) != 0 {
		t.Fatalf("session should be aborted without ledger actions: %s, %#v", ss.Status, ss.RollbackActions)
	}
	if ss.RollbackPending {
		t.Fatalf("a counterpart without the session should acknowledge the rollback")
	}
	if a, ok := src.ledger.Asset(sourceAsset); !ok || a.Locked {
		t.Fatalf("%s should be untouched", sourceAsset)
	}
}

func TestRecoverSkipsAndAborts(t *testing.T) {
	src, dst := newTestPair(t)

	done, err := src.Transfer(context.Background(), testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	idle, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if o := recoverOne(t, src, done); o.Action != ActionSkipped {
		t.Fatalf("completed session should be skipped, got %s", o.Action)
	}

	if s := getSession(t, src, idle); s.Status != session.Aborted {
		t.Fatalf("session that never started should be aborted, not %s", s.Status)
	}

	if src.GetState() != Running {
		t.Fatalf("state should be back to Running, not %s", src.GetState())
	}
}

func TestCheckStalledSessions(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepLockAckd)

	if outcomes := src.CheckStalledSessions(); len(outcomes) != 0 {
		t.Fatalf("fresh session should not be stalled: %v", outcomes)
	}

	err = src.store.Update(id, func(s *session.SessionData) error {
		s.LastMessageReceivedTimestamp -= time.Hour.Milliseconds()
		return nil
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	outcomes := src.CheckStalledSessions()
	if len(outcomes) != 1 || outcomes[0].Action != ActionRolledBack {
		t.Fatalf("stalled session should be rolled back: %v", outcomes)
	}

	a, ok := src.ledger.Asset(sourceAsset)
	if !ok || a.Locked {
		t.Fatalf("%s should be unlocked", sourceAsset)
	}

	ss := getSession(t, src, id)
	if len(ss.RollbackActions) != 1 || ss.RollbackActions[0].Kind != session.ActionUnlock {
		t.Fatalf("expected one unlock action, got %#v", ss.RollbackActions)
	}

	if ds := getSession(t, dst, id); ds.Status != session.Aborted {
		t.Fatalf("destination session should be aborted, not %s", ds.Status)
	}

	if outcomes := src.CheckStalledSessions(); len(outcomes) != 0 {
		t.Fatalf("aborted session should not be checked again: %v", outcomes)
	}
}

func TestRollbackResentUntilAcknowledged(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepPrepAckd)

	if err := src.DeleteAsset(context.Background(), id); err != nil {
		t.Fatalf("err: %v", err)
	}
	req, err := src.NewCommitFinalRequest(id)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// The destination creates the asset, then goes down before answering.
	if _, err := dst.processCommitFinal(req); err != nil {
		t.Fatalf("err: %v", err)
	}
	dst.Shutdown()

	o := recoverOne(t, src, id)
	if o.Action != ActionRolledBack {
		t.Fatalf("source session should be rolled back, got %s (%v)", o.Action, o.Err)
	}
	if ss := getSession(t, src, id); !ss.RollbackPending {
		t.Fatalf("unacknowledged rollback should stay pending")
	}
	if _, ok := src.ledger.Asset(sourceAsset); !ok {
		t.Fatalf("%s should be restored on the source ledger", sourceAsset)
	}

	dst.restart(src)

	if o := recoverOne(t, dst, id); o.Action != ActionPending {
		t.Fatalf("destination with a created asset should wait, got %s (%v)", o.Action, o.Err)
	}

	o = recoverOne(t, src, id)
	if o.Action != ActionRolledBack || o.Err != nil {
		t.Fatalf("rollback should be notified again, got %s (%v)", o.Action, o.Err)
	}

	if _, ok := dst.ledger.Asset(recipientAsset); ok {
		t.Fatalf("%s should be removed from the destination ledger", recipientAsset)
	}
	if ds := getSession(t, dst, id); ds.Status != session.Aborted || !ds.HasRollback(session.ActionDeleteCreated) {
		t.Fatalf("destination should be rolled back: %s, %#v", ds.Status, ds.RollbackActions)
	}

	ss := getSession(t, src, id)
	if ss.RollbackPending {
		t.Fatalf("acknowledged rollback should not stay pending")
	}
	if len(ss.RollbackActions) != 1 {
		t.Fatalf("ledger actions should not be repeated: %#v", ss.RollbackActions)
	}

	if o := recoverOne(t, src, id); o.Action != ActionSkipped {
		t.Fatalf("settled session should be skipped, got %s", o.Action)
	}
	if outcomes := src.CheckStalledSessions(); len(outcomes) != 0 {
		t.Fatalf("settled session should not be checked: %v", outcomes)
	}
}

func TestStalledCheckResendsRollback(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepLockAckd)

	err = src.store.Update(id, func(s *session.SessionData) error {
		s.LastMessageReceivedTimestamp -= time.Hour.Milliseconds()
		return nil
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	src.trans.Disconnect(dst.Addr())

	outcomes := src.CheckStalledSessions()
	if len(outcomes) != 1 || outcomes[0].Action != ActionRolledBack {
		t.Fatalf("stalled session should be rolled back: %v", outcomes)
	}
	if ds := getSession(t, dst, id); ds.Status != session.Active {
		t.Fatalf("unreachable destination should still be active, not %s", ds.Status)
	}

	outcomes = src.CheckStalledSessions()
	if len(outcomes) != 1 || outcomes[0].Action != ActionPending || !IsRecoverable(outcomes[0].Err) {
		t.Fatalf("rollback should be sent again and fail: %v", outcomes)
	}

	connect(src, dst)

	outcomes = src.CheckStalledSessions()
	if len(outcomes) != 1 || outcomes[0].Action != ActionRolledBack || outcomes[0].Err != nil {
		t.Fatalf("rollback should be acknowledged: %v", outcomes)
	}
	if ds := getSession(t, dst, id); ds.Status != session.Aborted {
		t.Fatalf("destination session should be aborted, not %s", ds.Status)
	}
	if ss := getSession(t, src, id); ss.RollbackPending || len(ss.RollbackActions) != 1 {
		t.Fatalf("rollback should be settled once: %v, %#v", ss.RollbackPending, ss.RollbackActions)
	}

	if outcomes := src.CheckStalledSessions(); len(outcomes) != 0 {
		t.Fatalf("settled session should not be checked: %v", outcomes)
	}
}

func TestRollbackRechecksSession(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepFinalAckd)

	o := src.rollback(context.Background(), id, "late")
	if o.Action != ActionPending || !errors.Is(o.Err, ErrMessageType) {
		t.Fatalf("acknowledged Commit Final should not be rolled back, got %s (%v)", o.Action, o.Err)
	}

	ss := getSession(t, src, id)
	if ss.Status != session.Active || len(ss.RollbackActions) != 0 || ss.RollbackPending {
		t.Fatalf("refused rollback mutated the session: %s, %#v", ss.Status, ss.RollbackActions)
	}
	if _, ok := src.ledger.Asset(sourceAsset); ok {
		t.Fatalf("%s should not be recreated", sourceAsset)
	}

	advance(t, src, id, session.StepComplete)

	o = src.rollback(context.Background(), id, "late")
	if o.Action != ActionPending || !errors.Is(o.Err, ErrSessionClosed) {
		t.Fatalf("completed session should not be rolled back, got %s (%v)", o.Action, o.Err)
	}
	if ss := getSession(t, src, id); ss.Status != session.Completed {
		t.Fatalf("session should stay completed, not %s", ss.Status)
	}
	if c := src.CrashStatusOf(id); c != Idle {
		t.Fatalf("crash status should be back to %s, not %s", Idle, c)
	}
}

func TestStalledCheckSkipsDrivenSession(t *testing.T) {
	src, dst := newTestPair(t)

	id, err := src.ConfigureSession(testParams(t, dst))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	advance(t, src, id, session.StepLockAckd)

	err = src.store.Update(id, func(s *session.SessionData) error {
		s.LastMessageReceivedTimestamp -= time.Hour.Milliseconds()
		return nil
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	done, ok := src.markInflight(id)
	if !ok {
		t.Fatalf("idle session should be driven")
	}

	if outcomes := src.CheckStalledSessions(); len(outcomes) != 0 {
		t.Fatalf("driven session should not be rolled back: %v", outcomes)
	}
	if c := src.CrashStatusOf(id); c != Idle {
		t.Fatalf("crash status should stay %s, not %s", Idle, c)
	}

	done()

	if !src.claimRollback(id, Idle) {
		t.Fatalf("released session should be claimed")
	}
	if _, ok := src.markInflight(id); ok {
		t.Fatalf("session being rolled back should not be driven")
	}
	if err := src.RunTransfer(context.Background(), id); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	src.setCrashStatus(id, Idle)

	outcomes := src.CheckStalledSessions()
	if len(outcomes) != 1 || outcomes[0].Action != ActionRolledBack {
		t.Fatalf("stalled session should be rolled back: %v", outcomes)
	}
}
