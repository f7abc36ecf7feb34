package gateway

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/satp/src/claims"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TransferParams describes a transfer to start from this gateway.
type TransferParams struct {
	LoggingProfile       string
	AccessControlProfile string
	ApplicationProfile   string
	PayloadProfile       odap.PayloadProfile

	OriginatorPubKey  string
	BeneficiaryPubKey string

	RecipientGatewayPubKey    string
	RecipientGatewayDLTSystem string
	RecipientGatewayAddr      string

	SourceLedgerAssetID    string
	RecipientLedgerAssetID string

	// Zero values take the gateway defaults.
	MaxRetries int
	MaxTimeout time.Duration
}

// ConfigureSession creates a source session and returns its ID. Missing
// parameters are reported when the first message is built.
func (g *Gateway) ConfigureSession(p TransferParams) (string, error) {
	if err := g.checkRunning("", odap.PhaseInitialization); err != nil {
		return "", err
	}

	s := session.NewSessionData(uuid.New().String(), session.Source)

	s.Version = g.conf.Version
	s.MaxRetries = p.MaxRetries
	if s.MaxRetries == 0 {
		s.MaxRetries = g.conf.MaxRetries
	}
	timeout := p.MaxTimeout
	if timeout == 0 {
		timeout = g.conf.MaxTimeout
	}
	s.MaxTimeout = int64(timeout / time.Millisecond)

	// The first request carries LastSequenceNumber+1.
	s.LastSequenceNumber = rand.Int63n(1 << 31)

	s.LoggingProfile = p.LoggingProfile
	s.AccessControlProfile = p.AccessControlProfile
	s.ApplicationProfile = p.ApplicationProfile
	s.PayloadProfile = p.PayloadProfile
	s.AssetProfile = p.PayloadProfile.AssetProfile

	s.OriginatorPubKey = p.OriginatorPubKey
	s.BeneficiaryPubKey = p.BeneficiaryPubKey
	s.SourceGatewayPubKey = g.identity.PublicKeyHex()
	s.RecipientGatewayPubKey = p.RecipientGatewayPubKey
	s.SourceGatewayDLTSystem = g.conf.DLTSystem
	s.RecipientGatewayDLTSystem = p.RecipientGatewayDLTSystem
	s.SourceGatewayAddr = g.trans.AdvertiseAddr()
	s.RecipientGatewayAddr = p.RecipientGatewayAddr
	s.SourceLedgerAssetID = p.SourceLedgerAssetID
	s.RecipientLedgerAssetID = p.RecipientLedgerAssetID

	s.LastMessageReceivedTimestamp = g.millis()

	if err := g.store.Create(s); err != nil {
		return "", err
	}

	g.logger.WithFields(logrus.Fields{
		"session":   s.ID,
		"recipient": s.RecipientGatewayAddr,
		"asset":     s.SourceLedgerAssetID,
	}).Debug("Session configured")

	return s.ID, nil
}

/*******************************************************************************
Ledger actions
*******************************************************************************/

// LockAsset locks the asset of a source session on the source ledger and
// stores the lock proof. It is a no-op if the asset is already locked.
func (g *Gateway) LockAsset(ctx context.Context, sessionID string) error {
	s, err := g.store.Get(sessionID)
	if err != nil {
		return storeErr(sessionID, odap.PhaseLock, err)
	}
	if s.AssetLocked {
		return nil
	}

	claim, hash, err := g.ledgerProof(ctx, sessionID, claims.ProofLock, func() ([]byte, error) {
		return g.ledger.LockAsset(ctx, s.SourceLedgerAssetID)
	})
	if err != nil {
		return errors.Wrapf(err, "locking asset %s", s.SourceLedgerAssetID)
	}

	expiration := g.now().Add(g.conf.LockEvidenceTTL)

	return g.store.Update(sessionID, func(s *session.SessionData) error {
		s.AssetLocked = true
		s.LockEvidenceClaim = string(claim)
		s.LockEvidenceFormat = ClaimFormat
		s.LockEvidenceExpiration = expiration.UnixNano() / int64(time.Millisecond)

		g.logger.WithFields(logrus.Fields{
			"session": s.ID,
			"asset":   s.SourceLedgerAssetID,
			"proof":   hash,
		}).Debug("Asset locked")

		return nil
	})
}

// DeleteAsset deletes the locked asset of a source session from the source
// ledger and stores the delete proof.
func (g *Gateway) DeleteAsset(ctx context.Context, sessionID string) error {
	s, err := g.store.Get(sessionID)
	if err != nil {
		return storeErr(sessionID, odap.PhaseFinal, err)
	}
	if s.AssetDeleted {
		return nil
	}

	claim, hash, err := g.ledgerProof(ctx, sessionID, claims.ProofDelete, func() ([]byte, error) {
		return g.ledger.DeleteAsset(ctx, s.SourceLedgerAssetID)
	})
	if err != nil {
		return errors.Wrapf(err, "deleting asset %s", s.SourceLedgerAssetID)
	}

	return g.store.Update(sessionID, func(s *session.SessionData) error {
		s.AssetDeleted = true
		s.CommitFinalClaim = string(claim)
		s.CommitFinalFormat = ClaimFormat

		g.logger.WithFields(logrus.Fields{
			"session": s.ID,
			"asset":   s.SourceLedgerAssetID,
			"proof":   hash,
		}).Debug("Asset deleted")

		return nil
	})
}

// ledgerProof runs a ledger operation and stores its claim as the proof
// called name. If the proof already exists the operation is not repeated.
func (g *Gateway) ledgerProof(ctx context.Context, sessionID, name string, op func() ([]byte, error)) ([]byte, string, error) {
	key := claims.ProofKey(sessionID, name)

	if p, err := g.claims.Get(key); err == nil && p.Signer == g.identity.PublicKeyHex() {
		return p.Bytes, p.Hash, nil
	}

	claim, err := op()
	if err != nil {
		return nil, "", err
	}

	p, err := claims.NewProof(key, claim, g.identity)
	if err != nil {
		return nil, "", err
	}

	hash, err := g.claims.Put(p)
	if err != nil {
		return nil, "", errors.Wrapf(err, "storing proof %s", key)
	}

	return claim, hash, nil
}

/*******************************************************************************
Transfer Initialization
*******************************************************************************/

// NewTransferInitializationRequest builds, signs and records the first
// request of a source session.
func (g *Gateway) NewTransferInitializationRequest(sessionID string) (*odap.TransferInitializationRequest, error) {
	var req *odap.TransferInitializationRequest

	_, err := g.issue(sessionID, odap.TypeInitRequest, odap.StageInit, func(s *session.SessionData) (odap.Message, error) {
		r, err := newInitReady(s)
		if err != nil {
			return nil, err
		}
		req = r.message(g.millis())
		return req, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// SendTransferInitializationRequest issues the initialization request and
// validates the response.
func (g *Gateway) SendTransferInitializationRequest(ctx context.Context, sessionID string) (*odap.TransferInitializationResponse, error) {
	req, err := g.NewTransferInitializationRequest(sessionID)
	if err != nil {
		return nil, err
	}

	target := g.counterpart(sessionID)

	out, err := g.callSession(ctx, sessionID, odap.PhaseInitialization, func() (interface{}, error) {
		var resp odap.TransferInitializationResponse
		err := g.trans.TransferInitialization(target, req, &resp)
		return &resp, err
	})
	if err != nil {
		return nil, err
	}

	resp := out.(*odap.TransferInitializationResponse)
	if err := g.CheckTransferInitializationResponse(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// CheckTransferInitializationResponse validates and records the response to
// the initialization request.
func (g *Gateway) CheckTransferInitializationResponse(resp *odap.TransferInitializationResponse) error {
	_, err := g.receive(resp, nil, nil)
	return err
}

/*******************************************************************************
Transfer Commence
*******************************************************************************/

// NewTransferCommenceRequest ...
func (g *Gateway) NewTransferCommenceRequest(sessionID string) (*odap.TransferCommenceRequest, error) {
	var req *odap.TransferCommenceRequest

	_, err := g.issue(sessionID, odap.TypeCommenceRequest, odap.StageInit, func(s *session.SessionData) (odap.Message, error) {
		r, err := newCommenceReady(s)
		if err != nil {
			return nil, err
		}
		req = r.message(g.millis())
		return req, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// SendTransferCommenceRequest ...
func (g *Gateway) SendTransferCommenceRequest(ctx context.Context, sessionID string) (*odap.TransferCommenceResponse, error) {
	req, err := g.NewTransferCommenceRequest(sessionID)
	if err != nil {
		return nil, err
	}

	target := g.counterpart(sessionID)

	out, err := g.callSession(ctx, sessionID, odap.PhaseCommence, func() (interface{}, error) {
		var resp odap.TransferCommenceResponse
		err := g.trans.TransferCommence(target, req, &resp)
		return &resp, err
	})
	if err != nil {
		return nil, err
	}

	resp := out.(*odap.TransferCommenceResponse)
	if err := g.CheckTransferCommenceResponse(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// CheckTransferCommenceResponse ...
func (g *Gateway) CheckTransferCommenceResponse(resp *odap.TransferCommenceResponse) error {
	_, err := g.receive(resp, nil, nil)
	return err
}

/*******************************************************************************
Lock Evidence
*******************************************************************************/

// NewLockEvidenceRequest builds the request carrying the lock claim. The
// asset must have been locked with LockAsset.
func (g *Gateway) NewLockEvidenceRequest(sessionID string) (*odap.LockEvidenceRequest, error) {
	var req *odap.LockEvidenceRequest

	_, err := g.issue(sessionID, odap.TypeLockEvidenceRequest, odap.StageInit, func(s *session.SessionData) (odap.Message, error) {
		r, err := newLockReady(s)
		if err != nil {
			return nil, err
		}
		p, err := g.signedProof(s.ID, odap.PhaseLock, claims.ProofLock)
		if err != nil {
			return nil, err
		}
		req = r.message(g.millis())
		req.LockEvidenceProof = *p
		return req, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// SendLockEvidenceRequest ...
func (g *Gateway) SendLockEvidenceRequest(ctx context.Context, sessionID string) (*odap.LockEvidenceResponse, error) {
	req, err := g.NewLockEvidenceRequest(sessionID)
	if err != nil {
		return nil, err
	}

	target := g.counterpart(sessionID)

	out, err := g.callSession(ctx, sessionID, odap.PhaseLock, func() (interface{}, error) {
		var resp odap.LockEvidenceResponse
		err := g.trans.LockEvidence(target, req, &resp)
		return &resp, err
	})
	if err != nil {
		return nil, err
	}

	resp := out.(*odap.LockEvidenceResponse)
	if err := g.CheckLockEvidenceResponse(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// CheckLockEvidenceResponse ...
func (g *Gateway) CheckLockEvidenceResponse(resp *odap.LockEvidenceResponse) error {
	_, err := g.receive(resp, nil, nil)
	return err
}

/*******************************************************************************
Commit Preparation
*******************************************************************************/

// NewCommitPreparationRequest ...
func (g *Gateway) NewCommitPreparationRequest(sessionID string) (*odap.CommitPreparationRequest, error) {
	var req *odap.CommitPreparationRequest

	_, err := g.issue(sessionID, odap.TypeCommitPrepareRequest, odap.StageInit, func(s *session.SessionData) (odap.Message, error) {
		r, err := newPrepareReady(s)
		if err != nil {
			return nil, err
		}
		req = r.message(g.millis())
		return req, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// SendCommitPreparationRequest ...
func (g *Gateway) SendCommitPreparationRequest(ctx context.Context, sessionID string) (*odap.CommitPreparationResponse, error) {
	req, err := g.NewCommitPreparationRequest(sessionID)
	if err != nil {
		return nil, err
	}

	target := g.counterpart(sessionID)

	out, err := g.callSession(ctx, sessionID, odap.PhasePrepare, func() (interface{}, error) {
		var resp odap.CommitPreparationResponse
		err := g.trans.CommitPreparation(target, req, &resp)
		return &resp, err
	})
	if err != nil {
		return nil, err
	}

	resp := out.(*odap.CommitPreparationResponse)
	if err := g.CheckCommitPreparationResponse(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// CheckCommitPreparationResponse ...
func (g *Gateway) CheckCommitPreparationResponse(resp *odap.CommitPreparationResponse) error {
	_, err := g.receive(resp, nil, nil)
	return err
}

/*******************************************************************************
Commit Final
*******************************************************************************/

// NewCommitFinalRequest builds the request carrying the delete claim. The
// asset must have been deleted with DeleteAsset.
func (g *Gateway) NewCommitFinalRequest(sessionID string) (*odap.CommitFinalRequest, error) {
	var req *odap.CommitFinalRequest

	_, err := g.issue(sessionID, odap.TypeCommitFinalRequest, odap.StageInit, func(s *session.SessionData) (odap.Message, error) {
		r, err := newFinalReady(s)
		if err != nil {
			return nil, err
		}
		p, err := g.signedProof(s.ID, odap.PhaseFinal, claims.ProofDelete)
		if err != nil {
			return nil, err
		}
		req = r.message(g.millis())
		req.CommitFinalProof = *p
		return req, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// SendCommitFinalRequest ...
func (g *Gateway) SendCommitFinalRequest(ctx context.Context, sessionID string) (*odap.CommitFinalResponse, error) {
	req, err := g.NewCommitFinalRequest(sessionID)
	if err != nil {
		return nil, err
	}

	target := g.counterpart(sessionID)

	out, err := g.callSession(ctx, sessionID, odap.PhaseFinal, func() (interface{}, error) {
		var resp odap.CommitFinalResponse
		err := g.trans.CommitFinal(target, req, &resp)
		return &resp, err
	})
	if err != nil {
		return nil, err
	}

	resp := out.(*odap.CommitFinalResponse)
	if err := g.CheckCommitFinalResponse(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// CheckCommitFinalResponse validates the response to Commit Final, including
// the claim of the asset created on the destination ledger and its proof.
func (g *Gateway) CheckCommitFinalResponse(resp *odap.CommitFinalResponse) error {
	check := func(s *session.SessionData) error {
		return g.checkProof(s, odap.PhaseFinal, claims.ProofCreate, resp.CommitAcknowledgementClaim, resp.CommitAcknowledgementProof, s.RecipientGatewayPubKey)
	}

	apply := func(s *session.SessionData) error {
		s.CommitAcknowledgementClaim = resp.CommitAcknowledgementClaim
		s.CommitAcknowledgementFormat = resp.CommitAcknowledgementFormat
		return nil
	}

	_, err := g.receive(resp, check, apply)
	return err
}

/*******************************************************************************
Transfer Complete
*******************************************************************************/

// NewTransferCompleteRequest ...
func (g *Gateway) NewTransferCompleteRequest(sessionID string) (*odap.TransferCompleteRequest, error) {
	var req *odap.TransferCompleteRequest

	_, err := g.issue(sessionID, odap.TypeTransferComplete, odap.StageInit, func(s *session.SessionData) (odap.Message, error) {
		r, err := newCompleteReady(s)
		if err != nil {
			return nil, err
		}
		req = r.message(g.millis())
		return req, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// SendTransferCompleteRequest issues the last request of a session. The
// session is completed once the counterpart acknowledges it.
func (g *Gateway) SendTransferCompleteRequest(ctx context.Context, sessionID string) error {
	req, err := g.NewTransferCompleteRequest(sessionID)
	if err != nil {
		return err
	}

	target := g.counterpart(sessionID)

	out, err := g.callSession(ctx, sessionID, odap.PhaseComplete, func() (interface{}, error) {
		var resp odap.Ack
		err := g.trans.TransferComplete(target, req, &resp)
		return &resp, err
	})
	if err != nil {
		return err
	}

	ack := out.(*odap.Ack)
	if !ack.Accepted || ack.SessionID != sessionID {
		return violation(sessionID, odap.PhaseComplete, ErrRemote, "transfer complete not acknowledged")
	}

	return g.complete(sessionID)
}

// complete marks a source session completed.
func (g *Gateway) complete(sessionID string) error {
	return g.store.Update(sessionID, func(s *session.SessionData) error {
		if s.Status == session.Completed {
			return nil
		}
		s.Status = session.Completed
		return g.audit(s, odap.PhaseComplete, odap.StageDone)
	})
}

/*******************************************************************************
Driver
*******************************************************************************/

// counterpart returns the address of the other gateway of a session.
func (g *Gateway) counterpart(sessionID string) string {
	s, err := g.store.Get(sessionID)
	if err != nil {
		return ""
	}
	return s.CounterpartAddr()
}

// RunTransfer drives a source session from its current step to completion.
// It resumes sessions whose last exchange completed; a session waiting for a
// response is left to recovery.
func (g *Gateway) RunTransfer(ctx context.Context, sessionID string) error {
	done, ok := g.markInflight(sessionID)
	if !ok {
		return violation(sessionID, odap.PhaseRecovery, ErrSessionBusy, "session is being rolled back")
	}
	defer done()

	for {
		s, err := g.store.Get(sessionID)
		if err != nil {
			return storeErr(sessionID, odap.PhaseInitialization, err)
		}

		if s.Role != session.Source {
			return violation(s.ID, stepPhase(s.Step), ErrMessageType, "%s session cannot be driven", s.Role)
		}

		switch s.Status {
		case session.Completed:
			return nil
		case session.Aborted:
			return violation(s.ID, stepPhase(s.Step), ErrSessionClosed, "session aborted")
		}

		g.logger.WithFields(logrus.Fields{
			"session": s.ID,
			"step":    s.Step,
		}).Debug("RunTransfer")

		switch s.Step {
		case session.StepNone:
			_, err = g.SendTransferInitializationRequest(ctx, sessionID)
		case session.StepInitAckd:
			_, err = g.SendTransferCommenceRequest(ctx, sessionID)
		case session.StepCommenceAckd:
			if err = g.LockAsset(ctx, sessionID); err == nil {
				_, err = g.SendLockEvidenceRequest(ctx, sessionID)
			}
		case session.StepLockAckd:
			_, err = g.SendCommitPreparationRequest(ctx, sessionID)
		case session.StepPrepAckd:
			if err = g.DeleteAsset(ctx, sessionID); err == nil {
				_, err = g.SendCommitFinalRequest(ctx, sessionID)
			}
		case session.StepFinalAckd:
			err = g.SendTransferCompleteRequest(ctx, sessionID)
		default:
			return violation(s.ID, stepPhase(s.Step), ErrMessageType, "step %s awaits a response", s.Step)
		}

		if err != nil {
			return err
		}
	}
}

// Transfer configures a session and runs it to completion.
func (g *Gateway) Transfer(ctx context.Context, p TransferParams) (string, error) {
	id, err := g.ConfigureSession(p)
	if err != nil {
		return "", err
	}

	return id, g.RunTransfer(ctx, id)
}
