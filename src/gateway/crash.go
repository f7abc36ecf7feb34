package gateway

import (
	"context"

	"github.com/mosaicnetworks/satp/src/session"
	"github.com/sirupsen/logrus"
)

// CrashStatus tells whether a session is being recovered or rolled back.
type CrashStatus int

const (
	// Idle sessions run the protocol normally.
	Idle CrashStatus = iota
	// InRecovery sessions are exchanging recover messages.
	InRecovery
	// InRollback sessions are reversing their ledger actions.
	InRollback
)

func (c CrashStatus) String() string {
	switch c {
	case Idle:
		return "IDLE"
	case InRecovery:
		return "IN_RECOVERY"
	case InRollback:
		return "IN_ROLLBACK"
	default:
		return "UNKNOWN"
	}
}

// CrashStatusOf returns the crash status of a session.
func (g *Gateway) CrashStatusOf(sessionID string) CrashStatus {
	g.crashLock.Lock()
	defer g.crashLock.Unlock()
	return g.crash[sessionID]
}

func (g *Gateway) setCrashStatus(sessionID string, c CrashStatus) {
	g.crashLock.Lock()
	defer g.crashLock.Unlock()

	if c == Idle {
		delete(g.crash, sessionID)
		return
	}
	g.crash[sessionID] = c
}

// markInflight records that a session is being driven and returns the
// function that clears the mark. It fails while the session is rolled back.
func (g *Gateway) markInflight(sessionID string) (func(), bool) {
	g.crashLock.Lock()
	if g.crash[sessionID] == InRollback {
		g.crashLock.Unlock()
		return nil, false
	}
	g.inflight[sessionID]++
	g.crashLock.Unlock()

	return func() {
		g.crashLock.Lock()
		defer g.crashLock.Unlock()

		g.inflight[sessionID]--
		if g.inflight[sessionID] <= 0 {
			delete(g.inflight, sessionID)
		}
	}, true
}

// claimRollback moves a session to InRollback if it is not being driven and
// its crash status is one of from. The check and the move are atomic.
func (g *Gateway) claimRollback(sessionID string, from ...CrashStatus) bool {
	g.crashLock.Lock()
	defer g.crashLock.Unlock()

	if g.inflight[sessionID] > 0 {
		return false
	}

	cur := g.crash[sessionID]
	for _, f := range from {
		if cur == f {
			g.crash[sessionID] = InRollback
			return true
		}
	}

	return false
}

// stalled reports whether a source session stopped before Commit Final was
// acknowledged and saw no activity for longer than its retries allow.
func (g *Gateway) stalled(s *session.SessionData) bool {
	if s.Role != session.Source || s.Closed() {
		return false
	}
	if s.Step == session.StepNone || s.Step >= session.StepFinalAckd {
		return false
	}

	window := s.MaxTimeout * int64(s.MaxRetries+1)

	return g.millis()-s.LastMessageReceivedTimestamp > window
}

// CheckStalledSessions rolls back the stalled source sessions that are not
// being driven or recovered, and sends again the Rollback messages the
// counterparts did not acknowledge.
func (g *Gateway) CheckStalledSessions() []Outcome {
	sessions, err := g.GetSessions()
	if err != nil {
		g.logger.WithError(err).Error("Listing sessions")
		return nil
	}

	ctx := context.Background()

	var res []Outcome
	for _, s := range sessions {
		switch {
		case s.RollbackPending:
			if !g.claimRollback(s.ID, Idle) {
				continue
			}
			res = append(res, g.notifyRollback(ctx, s.ID))
		case g.stalled(s):
			if !g.claimRollback(s.ID, Idle) {
				continue
			}

			g.logger.WithFields(logrus.Fields{
				"session": s.ID,
				"step":    s.Step,
			}).Debug("Stalled session")

			res = append(res, g.rollbackClaimed(ctx, s.ID, "stalled"))
		}
	}

	return res
}
