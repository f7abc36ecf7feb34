package gateway

import (
	"github.com/mosaicnetworks/satp/src/claims"
	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/pkg/errors"
)

// phaseSteps are the steps around one phase: the request is admitted at
// before, moves the session to requested, and the response to acked.
type phaseSteps struct {
	before    session.Step
	requested session.Step
	acked     session.Step
}

var steps = map[odap.Phase]phaseSteps{
	odap.PhaseInitialization: {session.StepNone, session.StepInitRcvd, session.StepInitAckd},
	odap.PhaseCommence:       {session.StepInitAckd, session.StepCommenceRcvd, session.StepCommenceAckd},
	odap.PhaseLock:           {session.StepCommenceAckd, session.StepLockRcvd, session.StepLockAckd},
	odap.PhasePrepare:        {session.StepLockAckd, session.StepPrepRcvd, session.StepPrepAckd},
	odap.PhaseFinal:          {session.StepPrepAckd, session.StepFinalRcvd, session.StepFinalAckd},
	odap.PhaseComplete:       {session.StepFinalAckd, session.StepComplete, session.StepComplete},
}

var phases = []odap.Phase{
	odap.PhaseInitialization,
	odap.PhaseCommence,
	odap.PhaseLock,
	odap.PhasePrepare,
	odap.PhaseFinal,
	odap.PhaseComplete,
}

// stepPhase returns the phase a session at step st is in.
func stepPhase(st session.Step) odap.Phase {
	for _, p := range phases {
		if st < steps[p].acked {
			return p
		}
	}
	return odap.PhaseComplete
}

// previous maps a message type to the type of the message it chains to.
var previous = map[odap.MessageType]odap.MessageType{
	odap.TypeInitResponse:          odap.TypeInitRequest,
	odap.TypeCommenceRequest:       odap.TypeInitResponse,
	odap.TypeCommenceResponse:      odap.TypeCommenceRequest,
	odap.TypeLockEvidenceRequest:   odap.TypeCommenceResponse,
	odap.TypeLockEvidenceResponse:  odap.TypeLockEvidenceRequest,
	odap.TypeCommitPrepareRequest:  odap.TypeLockEvidenceResponse,
	odap.TypeCommitPrepareResponse: odap.TypeCommitPrepareRequest,
	odap.TypeCommitFinalRequest:    odap.TypeCommitPrepareResponse,
	odap.TypeCommitFinalResponse:   odap.TypeCommitFinalRequest,
	odap.TypeTransferComplete:      odap.TypeCommitFinalResponse,
}

// admittedAt returns the step at which a message of type t is expected.
func admittedAt(t odap.MessageType) session.Step {
	ps := steps[odap.PhaseOf(t)]
	if t.SignedByClient() {
		return ps.before
	}
	return ps.requested
}

// reachedBy returns the step a session moves to once a message of type t is
// issued or accepted.
func reachedBy(t odap.MessageType) session.Step {
	ps := steps[odap.PhaseOf(t)]
	if t.SignedByClient() {
		return ps.requested
	}
	return ps.acked
}

// prevHash returns the digest the next message of type t must embed.
func prevHash(s *session.SessionData, t odap.MessageType) string {
	p, ok := previous[t]
	if !ok {
		return ""
	}
	return s.Hash(p)
}

// checkMessage runs the checks shared by every protocol message, in order.
// It does not modify s.
func (g *Gateway) checkMessage(s *session.SessionData, m odap.Message) error {
	h := m.GetHeader()
	phase := odap.PhaseOf(h.MessageType)

	if s.Closed() {
		return violation(s.ID, phase, ErrSessionClosed, "status %s", s.Status)
	}
	if s.Step != admittedAt(h.MessageType) {
		return violation(s.ID, phase, ErrMessageType, "%s at step %s", h.MessageType, s.Step)
	}

	if h.SequenceNumber != s.LastSequenceNumber+1 {
		return violation(s.ID, phase, ErrSequenceNumber, "expected %d, got %d", s.LastSequenceNumber+1, h.SequenceNumber)
	}

	if h.HashPrevMessage != prevHash(s, h.MessageType) {
		return violation(s.ID, phase, ErrHashChain, "%s", h.MessageType)
	}

	if h.ClientIdentityPubKey != s.SourceGatewayPubKey {
		return violation(s.ID, phase, ErrPubKeyMismatch, "client key %s", h.ClientIdentityPubKey)
	}
	if h.ServerIdentityPubKey != s.RecipientGatewayPubKey {
		return violation(s.ID, phase, ErrPubKeyMismatch, "server key %s", h.ServerIdentityPubKey)
	}

	if !odap.Verify(m, odap.SenderPubKey(m)) {
		return violation(s.ID, phase, ErrSignature, "%s", h.MessageType)
	}

	return nil
}

// accept records m in s: digest, signature, sequence number and step.
func (g *Gateway) accept(s *session.SessionData, m odap.Message) error {
	h := m.GetHeader()

	digest, err := odap.Digest(m)
	if err != nil {
		return err
	}

	if err := s.SetHash(h.MessageType, digest); err != nil {
		return err
	}
	if err := s.SetSignature(h.MessageType, h.Signature); err != nil {
		return err
	}

	s.LastSequenceNumber = h.SequenceNumber
	s.LastMessageReceivedTimestamp = g.millis()

	return s.Advance(reachedBy(h.MessageType))
}

// receive validates m against the stored session and commits it. check runs
// the checks proper to the phase and apply copies the message fields into the
// session. The done entry is appended before the store commits.
func (g *Gateway) receive(m odap.Message, check, apply func(*session.SessionData) error) (*session.SessionData, error) {
	h := m.GetHeader()
	phase := odap.PhaseOf(h.MessageType)

	if err := g.checkRunning(h.SessionID, phase); err != nil {
		return nil, err
	}

	if _, err := g.store.Get(h.SessionID); err != nil {
		return nil, storeErr(h.SessionID, phase, err)
	}

	if err := g.auditExec(h.SessionID, phase); err != nil {
		return nil, err
	}

	var res *session.SessionData

	err := g.store.Update(h.SessionID, func(s *session.SessionData) error {
		if err := g.checkMessage(s, m); err != nil {
			return err
		}

		if check != nil {
			if err := check(s); err != nil {
				return err
			}
		}

		if err := g.accept(s, m); err != nil {
			return err
		}

		if apply != nil {
			if err := apply(s); err != nil {
				return err
			}
		}

		if err := g.audit(s, phase, odap.StageDone); err != nil {
			return err
		}

		res = s.Clone()
		return nil
	})
	if err != nil {
		return nil, storeErr(h.SessionID, phase, err)
	}

	return res, nil
}

// issue builds, signs and records the next message of a session. build
// returns the unsigned message; the session step must admit it. Responses are
// kept encoded in the session so they can be sent again.
func (g *Gateway) issue(sessionID string, t odap.MessageType, stage odap.Stage, build func(*session.SessionData) (odap.Message, error), apply func(*session.SessionData) error) (*session.SessionData, error) {
	phase := odap.PhaseOf(t)

	if err := g.checkRunning(sessionID, phase); err != nil {
		return nil, err
	}

	var res *session.SessionData

	err := g.store.Update(sessionID, func(s *session.SessionData) error {
		if s.Closed() {
			return violation(s.ID, phase, ErrSessionClosed, "status %s", s.Status)
		}
		if s.Step != admittedAt(t) {
			return violation(s.ID, phase, ErrMessageType, "cannot issue %s at step %s", t, s.Step)
		}

		m, err := build(s)
		if err != nil {
			return err
		}

		if err := odap.Sign(m, g.identity); err != nil {
			return err
		}

		if err := g.accept(s, m); err != nil {
			return err
		}

		if !t.SignedByClient() {
			raw, err := crypto.CanonicalJSON(m)
			if err != nil {
				return err
			}
			s.SetReply(t, string(raw))
		}

		if apply != nil {
			if err := apply(s); err != nil {
				return err
			}
		}

		if err := g.audit(s, phase, stage); err != nil {
			return err
		}

		res = s.Clone()
		return nil
	})
	if err != nil {
		return nil, storeErr(sessionID, phase, err)
	}

	return res, nil
}

// checkProof verifies the proof carried with claim and keeps it in the claim
// store of this gateway. The proof must be stored under the proof name of the
// session, signed by signer, and hold exactly claim.
func (g *Gateway) checkProof(s *session.SessionData, phase odap.Phase, name, claim string, p claims.Proof, signer string) error {
	key := claims.ProofKey(s.ID, name)

	if p.Key != key {
		return integrity(s.ID, phase, key, errors.Wrapf(ErrClaimMismatch, "proof stored under %q", p.Key))
	}

	if p.Signer != signer {
		return integrity(s.ID, phase, key, errors.Wrap(ErrClaimMismatch, "proof signed by another key"))
	}

	if !p.Verify() {
		return integrity(s.ID, phase, key, errors.Wrap(ErrClaimMismatch, "invalid proof"))
	}

	if string(p.Bytes) != claim {
		return integrity(s.ID, phase, key, errors.Wrap(ErrClaimMismatch, "claim differs from proof"))
	}

	if _, err := g.claims.Put(&p); err != nil {
		return integrity(s.ID, phase, key, err)
	}

	return nil
}

// signedProof returns the proof called name that this gateway signed for a
// session, to be attached to the message carrying its claim.
func (g *Gateway) signedProof(sessionID string, phase odap.Phase, name string) (*claims.Proof, error) {
	p, err := g.ownProof(sessionID, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		key := claims.ProofKey(sessionID, name)
		return nil, integrity(sessionID, phase, key, errors.Wrap(ErrClaimMismatch, "no proof"))
	}
	return p, nil
}
