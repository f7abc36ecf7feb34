package gateway

import (
	"context"

	"github.com/mosaicnetworks/satp/src/claims"
	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

/*******************************************************************************
Transfer Initialization
*******************************************************************************/

// CheckTransferInitializationRequest validates the first request of a session
// and creates the destination session. The keys carried by the request are
// pinned for the rest of the session.
func (g *Gateway) CheckTransferInitializationRequest(req *odap.TransferInitializationRequest) error {
	phase := odap.PhaseInitialization

	if err := g.checkRunning(req.SessionID, phase); err != nil {
		return err
	}

	g.initLock.Lock()
	defer g.initLock.Unlock()

	if err := g.auditExec(req.SessionID, phase); err != nil {
		return err
	}

	if req.SessionID == "" {
		return violation(req.SessionID, phase, ErrUnknownSession, "empty session id")
	}

	if _, err := g.store.Get(req.SessionID); err == nil {
		return violation(req.SessionID, phase, ErrMessageType, "session already exists")
	}

	s := g.newDestinationSession(req)

	if err := g.checkMessage(s, req); err != nil {
		return err
	}

	if !g.conf.supports(req.SourceGatewayDLTSystem) {
		return violation(s.ID, phase, ErrUnsupportedDLT, "%s", req.SourceGatewayDLTSystem)
	}
	if req.RecipientGatewayDLTSystem != g.conf.DLTSystem {
		return violation(s.ID, phase, ErrUnsupportedDLT, "recipient %s, gateway runs %s", req.RecipientGatewayDLTSystem, g.conf.DLTSystem)
	}

	if req.PayloadProfile.AssetProfile.Expired(g.millis()) {
		return violation(s.ID, phase, ErrAssetExpired, "expired at %d", req.PayloadProfile.AssetProfile.ExpirationDate)
	}

	if err := g.accept(s, req); err != nil {
		return err
	}

	if err := g.audit(s, phase, odap.StageDone); err != nil {
		return err
	}

	if err := g.store.Create(s); err != nil {
		return err
	}

	g.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"source":  s.SourceGatewayAddr,
		"asset":   s.RecipientLedgerAssetID,
	}).Debug("Session opened")

	return nil
}

// newDestinationSession derives a session from an initialization request.
func (g *Gateway) newDestinationSession(req *odap.TransferInitializationRequest) *session.SessionData {
	s := session.NewSessionData(req.SessionID, session.Destination)

	s.Version = req.Version
	s.MaxRetries = req.MaxRetries
	s.MaxTimeout = req.MaxTimeout
	if s.MaxTimeout == 0 {
		s.MaxTimeout = g.conf.MaxTimeout.Milliseconds()
	}

	s.LastSequenceNumber = req.SequenceNumber - 1

	s.LoggingProfile = req.LoggingProfile
	s.AccessControlProfile = req.AccessControlProfile
	s.ApplicationProfile = req.ApplicationProfile
	s.PayloadProfile = req.PayloadProfile
	s.AssetProfile = req.PayloadProfile.AssetProfile

	s.OriginatorPubKey = req.OriginatorPubKey
	s.BeneficiaryPubKey = req.BeneficiaryPubKey
	s.SourceGatewayPubKey = req.ClientIdentityPubKey
	s.RecipientGatewayPubKey = g.identity.PublicKeyHex()
	s.SourceGatewayDLTSystem = req.SourceGatewayDLTSystem
	s.RecipientGatewayDLTSystem = req.RecipientGatewayDLTSystem
	s.SourceGatewayAddr = req.SourceGatewayAddr
	s.RecipientGatewayAddr = g.trans.AdvertiseAddr()
	s.SourceLedgerAssetID = req.SourceLedgerAssetID
	s.RecipientLedgerAssetID = req.RecipientLedgerAssetID

	return s
}

// NewTransferInitializationResponse ...
func (g *Gateway) NewTransferInitializationResponse(sessionID string) (*odap.TransferInitializationResponse, error) {
	var resp *odap.TransferInitializationResponse

	_, err := g.issue(sessionID, odap.TypeInitResponse, odap.StageAck, func(s *session.SessionData) (odap.Message, error) {
		r, err := newResponseReady(s, odap.TypeInitResponse)
		if err != nil {
			return nil, err
		}
		now := g.millis()
		resp = &odap.TransferInitializationResponse{
			Header:             r.header(odap.TypeInitResponse),
			Timestamp:          now,
			ProcessedTimestamp: now,
		}
		return resp, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (g *Gateway) processTransferInitialization(req *odap.TransferInitializationRequest) (interface{}, error) {
	if err := g.CheckTransferInitializationRequest(req); err != nil {
		return g.replay(req, err)
	}
	return g.NewTransferInitializationResponse(req.SessionID)
}

/*******************************************************************************
Transfer Commence
*******************************************************************************/

// CheckTransferCommenceRequest validates the commence request against the
// parameters agreed at initialization.
func (g *Gateway) CheckTransferCommenceRequest(req *odap.TransferCommenceRequest) error {
	phase := odap.PhaseCommence

	check := func(s *session.SessionData) error {
		hash, err := crypto.HashObject(s.AssetProfile)
		if err != nil {
			return err
		}
		if req.HashAssetProfile != hash {
			return violation(s.ID, phase, ErrAssetProfileHash, "%s", req.HashAssetProfile)
		}

		fields := []struct {
			name, got, want string
		}{
			{"OriginatorPubKey", req.OriginatorPubKey, s.OriginatorPubKey},
			{"BeneficiaryPubKey", req.BeneficiaryPubKey, s.BeneficiaryPubKey},
			{"SourceGatewayDLTSystem", req.SourceGatewayDLTSystem, s.SourceGatewayDLTSystem},
			{"RecipientGatewayDLTSystem", req.RecipientGatewayDLTSystem, s.RecipientGatewayDLTSystem},
		}
		for _, f := range fields {
			if f.got != f.want {
				return violation(s.ID, phase, ErrFieldMismatch, "%s is %q, expected %q", f.name, f.got, f.want)
			}
		}

		return nil
	}

	_, err := g.receive(req, check, nil)
	return err
}

// NewTransferCommenceResponse ...
func (g *Gateway) NewTransferCommenceResponse(sessionID string) (*odap.TransferCommenceResponse, error) {
	var resp *odap.TransferCommenceResponse

	_, err := g.issue(sessionID, odap.TypeCommenceResponse, odap.StageAck, func(s *session.SessionData) (odap.Message, error) {
		r, err := newResponseReady(s, odap.TypeCommenceResponse)
		if err != nil {
			return nil, err
		}
		resp = &odap.TransferCommenceResponse{
			Header:    r.header(odap.TypeCommenceResponse),
			Timestamp: g.millis(),
		}
		return resp, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (g *Gateway) processTransferCommence(req *odap.TransferCommenceRequest) (interface{}, error) {
	if err := g.CheckTransferCommenceRequest(req); err != nil {
		return g.replay(req, err)
	}
	return g.NewTransferCommenceResponse(req.SessionID)
}

/*******************************************************************************
Lock Evidence
*******************************************************************************/

// CheckLockEvidenceRequest validates the lock claim against the proof the
// source gateway attached to it.
func (g *Gateway) CheckLockEvidenceRequest(req *odap.LockEvidenceRequest) error {
	phase := odap.PhaseLock

	check := func(s *session.SessionData) error {
		if req.LockEvidenceExpiration <= g.millis() {
			return violation(s.ID, phase, ErrClaimExpired, "expired at %d", req.LockEvidenceExpiration)
		}
		return g.checkProof(s, phase, claims.ProofLock, req.LockEvidenceClaim, req.LockEvidenceProof, s.SourceGatewayPubKey)
	}

	apply := func(s *session.SessionData) error {
		s.LockEvidenceClaim = req.LockEvidenceClaim
		s.LockEvidenceFormat = req.LockEvidenceFormat
		s.LockEvidenceExpiration = req.LockEvidenceExpiration
		return nil
	}

	_, err := g.receive(req, check, apply)
	return err
}

// NewLockEvidenceResponse ...
func (g *Gateway) NewLockEvidenceResponse(sessionID string) (*odap.LockEvidenceResponse, error) {
	var resp *odap.LockEvidenceResponse

	_, err := g.issue(sessionID, odap.TypeLockEvidenceResponse, odap.StageAck, func(s *session.SessionData) (odap.Message, error) {
		r, err := newResponseReady(s, odap.TypeLockEvidenceResponse)
		if err != nil {
			return nil, err
		}
		resp = &odap.LockEvidenceResponse{
			Header:    r.header(odap.TypeLockEvidenceResponse),
			Timestamp: g.millis(),
		}
		return resp, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (g *Gateway) processLockEvidence(req *odap.LockEvidenceRequest) (interface{}, error) {
	if err := g.CheckLockEvidenceRequest(req); err != nil {
		return g.replay(req, err)
	}
	return g.NewLockEvidenceResponse(req.SessionID)
}

/*******************************************************************************
Commit Preparation
*******************************************************************************/

// CheckCommitPreparationRequest ...
func (g *Gateway) CheckCommitPreparationRequest(req *odap.CommitPreparationRequest) error {
	_, err := g.receive(req, nil, nil)
	return err
}

// NewCommitPreparationResponse ...
func (g *Gateway) NewCommitPreparationResponse(sessionID string) (*odap.CommitPreparationResponse, error) {
	var resp *odap.CommitPreparationResponse

	_, err := g.issue(sessionID, odap.TypeCommitPrepareResponse, odap.StageAck, func(s *session.SessionData) (odap.Message, error) {
		r, err := newResponseReady(s, odap.TypeCommitPrepareResponse)
		if err != nil {
			return nil, err
		}
		resp = &odap.CommitPreparationResponse{
			Header:    r.header(odap.TypeCommitPrepareResponse),
			Timestamp: g.millis(),
		}
		return resp, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (g *Gateway) processCommitPreparation(req *odap.CommitPreparationRequest) (interface{}, error) {
	if err := g.CheckCommitPreparationRequest(req); err != nil {
		return g.replay(req, err)
	}
	return g.NewCommitPreparationResponse(req.SessionID)
}

/*******************************************************************************
Commit Final
*******************************************************************************/

// CheckCommitFinalRequest validates the delete claim against the proof the
// source gateway attached to it.
func (g *Gateway) CheckCommitFinalRequest(req *odap.CommitFinalRequest) error {
	check := func(s *session.SessionData) error {
		return g.checkProof(s, odap.PhaseFinal, claims.ProofDelete, req.CommitFinalClaim, req.CommitFinalProof, s.SourceGatewayPubKey)
	}

	apply := func(s *session.SessionData) error {
		s.CommitFinalClaim = req.CommitFinalClaim
		s.CommitFinalFormat = req.CommitFinalFormat
		return nil
	}

	_, err := g.receive(req, check, apply)
	return err
}

// CreateAsset creates the asset of a destination session on the destination
// ledger and stores the create proof. It is a no-op if the asset was already
// created.
func (g *Gateway) CreateAsset(ctx context.Context, sessionID string) error {
	s, err := g.store.Get(sessionID)
	if err != nil {
		return storeErr(sessionID, odap.PhaseFinal, err)
	}
	if s.AssetCreated {
		return nil
	}

	claim, hash, err := g.ledgerProof(ctx, sessionID, claims.ProofCreate, func() ([]byte, error) {
		return g.ledger.CreateAsset(ctx, s.RecipientLedgerAssetID)
	})
	if err != nil {
		return errors.Wrapf(err, "creating asset %s", s.RecipientLedgerAssetID)
	}

	return g.store.Update(sessionID, func(s *session.SessionData) error {
		s.AssetCreated = true
		s.CommitAcknowledgementClaim = string(claim)
		s.CommitAcknowledgementFormat = ClaimFormat

		g.logger.WithFields(logrus.Fields{
			"session": s.ID,
			"asset":   s.RecipientLedgerAssetID,
			"proof":   hash,
		}).Debug("Asset created")

		return nil
	})
}

// NewCommitFinalResponse builds the response carrying the create claim. The
// asset must have been created with CreateAsset.
func (g *Gateway) NewCommitFinalResponse(sessionID string) (*odap.CommitFinalResponse, error) {
	var resp *odap.CommitFinalResponse

	_, err := g.issue(sessionID, odap.TypeCommitFinalResponse, odap.StageAck, func(s *session.SessionData) (odap.Message, error) {
		r, err := newFinalResponseReady(s)
		if err != nil {
			return nil, err
		}
		p, err := g.signedProof(s.ID, odap.PhaseFinal, claims.ProofCreate)
		if err != nil {
			return nil, err
		}
		resp = r.message(g.millis())
		resp.CommitAcknowledgementProof = *p
		return resp, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (g *Gateway) processCommitFinal(req *odap.CommitFinalRequest) (interface{}, error) {
	if err := g.CheckCommitFinalRequest(req); err != nil {
		return g.replay(req, err)
	}

	ctx, cancel := g.serverContext()
	defer cancel()

	if err := g.CreateAsset(ctx, req.SessionID); err != nil {
		return nil, err
	}

	return g.NewCommitFinalResponse(req.SessionID)
}

// replies maps each request to the response that answers it.
var replies = map[odap.MessageType]odap.MessageType{
	odap.TypeInitRequest:          odap.TypeInitResponse,
	odap.TypeCommenceRequest:      odap.TypeCommenceResponse,
	odap.TypeLockEvidenceRequest:  odap.TypeLockEvidenceResponse,
	odap.TypeCommitPrepareRequest: odap.TypeCommitPrepareResponse,
	odap.TypeCommitFinalRequest:   odap.TypeCommitFinalResponse,
}

func newReply(t odap.MessageType) odap.Message {
	switch t {
	case odap.TypeInitResponse:
		return new(odap.TransferInitializationResponse)
	case odap.TypeCommenceResponse:
		return new(odap.TransferCommenceResponse)
	case odap.TypeLockEvidenceResponse:
		return new(odap.LockEvidenceResponse)
	case odap.TypeCommitPrepareResponse:
		return new(odap.CommitPreparationResponse)
	case odap.TypeCommitFinalResponse:
		return new(odap.CommitFinalResponse)
	}
	return nil
}

// replay answers a request that was refused with cause. When the request is
// an exact copy of the one accepted in an open or completed session, the
// client retried after losing the response and gets the response already
// issued. Otherwise cause is returned.
func (g *Gateway) replay(req odap.Message, cause error) (interface{}, error) {
	h := req.GetHeader()

	s, err := g.store.Get(h.SessionID)
	if err != nil || s.Status == session.Aborted {
		return nil, cause
	}

	stored := s.Hash(h.MessageType)
	if stored == "" {
		return nil, cause
	}
	if digest, err := odap.Digest(req); err != nil || digest != stored {
		return nil, cause
	}

	var resp interface{}

	if h.MessageType == odap.TypeTransferComplete {
		if s.Status != session.Completed {
			return nil, cause
		}
		resp = &odap.Ack{SessionID: s.ID, Accepted: true}
	} else {
		raw, ok := s.Reply(replies[h.MessageType])
		if !ok {
			return nil, cause
		}
		m := newReply(replies[h.MessageType])
		if err := crypto.DecodeJSON([]byte(raw), m); err != nil {
			return nil, errors.Wrapf(err, "decoding stored %s", replies[h.MessageType])
		}
		resp = m
	}

	g.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"type":    h.MessageType,
	}).Debug("Answering duplicate request")

	return resp, nil
}

func (g *Gateway) serverContext() (context.Context, context.CancelFunc) {
	if g.conf.ServerTimeout > 0 {
		return context.WithTimeout(context.Background(), g.conf.ServerTimeout)
	}
	return context.WithCancel(context.Background())
}

/*******************************************************************************
Transfer Complete
*******************************************************************************/

// CheckTransferCompleteRequest validates the last request of a session and
// completes it.
func (g *Gateway) CheckTransferCompleteRequest(req *odap.TransferCompleteRequest) error {
	check := func(s *session.SessionData) error {
		if req.HashTransferInitialization != s.Hash(odap.TypeInitRequest) {
			return violation(s.ID, odap.PhaseComplete, ErrHashChain, "transfer initialization hash")
		}
		return nil
	}

	apply := func(s *session.SessionData) error {
		s.Status = session.Completed
		return nil
	}

	_, err := g.receive(req, check, apply)
	return err
}

func (g *Gateway) processTransferComplete(req *odap.TransferCompleteRequest) (interface{}, error) {
	if err := g.CheckTransferCompleteRequest(req); err != nil {
		return g.replay(req, err)
	}

	err := g.store.Update(req.SessionID, func(s *session.SessionData) error {
		return g.audit(s, odap.PhaseComplete, odap.StageAck)
	})
	if err != nil {
		return nil, err
	}

	return &odap.Ack{SessionID: req.SessionID, Accepted: true}, nil
}
