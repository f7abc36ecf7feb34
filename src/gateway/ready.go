package gateway

import (
	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/session"
)

/*
The ready types gather, for one phase, the session fields a message needs.
They are derived from a session just before the message is built, and fail
with a ConfigurationError listing every missing field.
*/

type requirements struct {
	missing []string
}

func (r *requirements) need(name, value string) {
	if value == "" {
		r.missing = append(r.missing, name)
	}
}

func (r *requirements) err(sessionID string, phase odap.Phase) error {
	if len(r.missing) == 0 {
		return nil
	}
	return &ConfigurationError{
		SessionID: sessionID,
		Phase:     phase,
		Missing:   r.missing,
	}
}

// headerReady holds the envelope of the next message of a session.
type headerReady struct {
	sessionID string
	seq       int64
	clientKey string
	serverKey string
	hashPrev  string
}

func newHeaderReady(s *session.SessionData, t odap.MessageType, r *requirements) headerReady {
	r.need("SessionID", s.ID)
	r.need("SourceGatewayPubKey", s.SourceGatewayPubKey)
	r.need("RecipientGatewayPubKey", s.RecipientGatewayPubKey)

	hr := headerReady{
		sessionID: s.ID,
		seq:       s.LastSequenceNumber + 1,
		clientKey: s.SourceGatewayPubKey,
		serverKey: s.RecipientGatewayPubKey,
		hashPrev:  prevHash(s, t),
	}

	if _, chained := previous[t]; chained {
		r.need("Hash("+string(previous[t])+")", hr.hashPrev)
	}

	return hr
}

func (hr headerReady) header(t odap.MessageType) odap.Header {
	return odap.Header{
		MessageType:          t,
		SessionID:            hr.sessionID,
		SequenceNumber:       hr.seq,
		ClientIdentityPubKey: hr.clientKey,
		ServerIdentityPubKey: hr.serverKey,
		HashPrevMessage:      hr.hashPrev,
	}
}

/*******************************************************************************
Requests
*******************************************************************************/

type initReady struct {
	headerReady
	s *session.SessionData
}

func newInitReady(s *session.SessionData) (*initReady, error) {
	r := &requirements{}
	hr := newHeaderReady(s, odap.TypeInitRequest, r)

	r.need("Version", s.Version)
	r.need("OriginatorPubKey", s.OriginatorPubKey)
	r.need("BeneficiaryPubKey", s.BeneficiaryPubKey)
	r.need("SourceGatewayDLTSystem", s.SourceGatewayDLTSystem)
	r.need("RecipientGatewayDLTSystem", s.RecipientGatewayDLTSystem)
	r.need("SourceLedgerAssetID", s.SourceLedgerAssetID)
	r.need("RecipientLedgerAssetID", s.RecipientLedgerAssetID)
	r.need("RecipientGatewayAddr", s.RecipientGatewayAddr)

	if err := r.err(s.ID, odap.PhaseInitialization); err != nil {
		return nil, err
	}

	return &initReady{headerReady: hr, s: s}, nil
}

func (ir *initReady) message(now int64) *odap.TransferInitializationRequest {
	s := ir.s
	return &odap.TransferInitializationRequest{
		Header:                    ir.header(odap.TypeInitRequest),
		Version:                   s.Version,
		LoggingProfile:            s.LoggingProfile,
		AccessControlProfile:      s.AccessControlProfile,
		ApplicationProfile:        s.ApplicationProfile,
		PayloadProfile:            s.PayloadProfile,
		OriginatorPubKey:          s.OriginatorPubKey,
		BeneficiaryPubKey:         s.BeneficiaryPubKey,
		SourceGatewayDLTSystem:    s.SourceGatewayDLTSystem,
		RecipientGatewayDLTSystem: s.RecipientGatewayDLTSystem,
		SourceLedgerAssetID:       s.SourceLedgerAssetID,
		RecipientLedgerAssetID:    s.RecipientLedgerAssetID,
		SourceGatewayAddr:         s.SourceGatewayAddr,
		MaxRetries:                s.MaxRetries,
		MaxTimeout:                s.MaxTimeout,
		Timestamp:                 now,
	}
}

type commenceReady struct {
	headerReady
	originator       string
	beneficiary      string
	sourceDLT        string
	recipientDLT     string
	hashAssetProfile string
}

func newCommenceReady(s *session.SessionData) (*commenceReady, error) {
	r := &requirements{}
	hr := newHeaderReady(s, odap.TypeCommenceRequest, r)

	if err := r.err(s.ID, odap.PhaseCommence); err != nil {
		return nil, err
	}

	hash, err := crypto.HashObject(s.AssetProfile)
	if err != nil {
		return nil, err
	}

	return &commenceReady{
		headerReady:      hr,
		originator:       s.OriginatorPubKey,
		beneficiary:      s.BeneficiaryPubKey,
		sourceDLT:        s.SourceGatewayDLTSystem,
		recipientDLT:     s.RecipientGatewayDLTSystem,
		hashAssetProfile: hash,
	}, nil
}

func (cr *commenceReady) message(now int64) *odap.TransferCommenceRequest {
	return &odap.TransferCommenceRequest{
		Header:                    cr.header(odap.TypeCommenceRequest),
		OriginatorPubKey:          cr.originator,
		BeneficiaryPubKey:         cr.beneficiary,
		SourceGatewayDLTSystem:    cr.sourceDLT,
		RecipientGatewayDLTSystem: cr.recipientDLT,
		HashAssetProfile:          cr.hashAssetProfile,
		Timestamp:                 now,
	}
}

type lockReady struct {
	headerReady
	claim      string
	format     string
	expiration int64
}

func newLockReady(s *session.SessionData) (*lockReady, error) {
	r := &requirements{}
	hr := newHeaderReady(s, odap.TypeLockEvidenceRequest, r)

	r.need("LockEvidenceClaim", s.LockEvidenceClaim)
	r.need("LockEvidenceFormat", s.LockEvidenceFormat)

	if err := r.err(s.ID, odap.PhaseLock); err != nil {
		return nil, err
	}

	return &lockReady{
		headerReady: hr,
		claim:       s.LockEvidenceClaim,
		format:      s.LockEvidenceFormat,
		expiration:  s.LockEvidenceExpiration,
	}, nil
}

func (lr *lockReady) message(now int64) *odap.LockEvidenceRequest {
	return &odap.LockEvidenceRequest{
		Header:                 lr.header(odap.TypeLockEvidenceRequest),
		LockEvidenceClaim:      lr.claim,
		LockEvidenceFormat:     lr.format,
		LockEvidenceExpiration: lr.expiration,
		Timestamp:              now,
	}
}

type prepareReady struct {
	headerReady
}

func newPrepareReady(s *session.SessionData) (*prepareReady, error) {
	r := &requirements{}
	hr := newHeaderReady(s, odap.TypeCommitPrepareRequest, r)

	if err := r.err(s.ID, odap.PhasePrepare); err != nil {
		return nil, err
	}

	return &prepareReady{headerReady: hr}, nil
}

func (pr *prepareReady) message(now int64) *odap.CommitPreparationRequest {
	return &odap.CommitPreparationRequest{
		Header:    pr.header(odap.TypeCommitPrepareRequest),
		Timestamp: now,
	}
}

type finalReady struct {
	headerReady
	claim  string
	format string
}

func newFinalReady(s *session.SessionData) (*finalReady, error) {
	r := &requirements{}
	hr := newHeaderReady(s, odap.TypeCommitFinalRequest, r)

	r.need("CommitFinalClaim", s.CommitFinalClaim)
	r.need("CommitFinalFormat", s.CommitFinalFormat)

	if err := r.err(s.ID, odap.PhaseFinal); err != nil {
		return nil, err
	}

	return &finalReady{
		headerReady: hr,
		claim:       s.CommitFinalClaim,
		format:      s.CommitFinalFormat,
	}, nil
}

func (fr *finalReady) message(now int64) *odap.CommitFinalRequest {
	return &odap.CommitFinalRequest{
		Header:            fr.header(odap.TypeCommitFinalRequest),
		CommitFinalClaim:  fr.claim,
		CommitFinalFormat: fr.format,
		Timestamp:         now,
	}
}

type completeReady struct {
	headerReady
	hashInit string
}

func newCompleteReady(s *session.SessionData) (*completeReady, error) {
	r := &requirements{}
	hr := newHeaderReady(s, odap.TypeTransferComplete, r)

	r.need("Hash("+string(odap.TypeInitRequest)+")", s.Hash(odap.TypeInitRequest))

	if err := r.err(s.ID, odap.PhaseComplete); err != nil {
		return nil, err
	}

	return &completeReady{
		headerReady: hr,
		hashInit:    s.Hash(odap.TypeInitRequest),
	}, nil
}

func (cr *completeReady) message(now int64) *odap.TransferCompleteRequest {
	return &odap.TransferCompleteRequest{
		Header:                     cr.header(odap.TypeTransferComplete),
		HashTransferInitialization: cr.hashInit,
		Timestamp:                  now,
	}
}

/*******************************************************************************
Responses
*******************************************************************************/

// responseReady is shared by the responses that only carry a header and
// timestamps.
type responseReady struct {
	headerReady
}

func newResponseReady(s *session.SessionData, t odap.MessageType) (*responseReady, error) {
	r := &requirements{}
	hr := newHeaderReady(s, t, r)

	if err := r.err(s.ID, odap.PhaseOf(t)); err != nil {
		return nil, err
	}

	return &responseReady{headerReady: hr}, nil
}

type finalResponseReady struct {
	headerReady
	claim  string
	format string
}

func newFinalResponseReady(s *session.SessionData) (*finalResponseReady, error) {
	r := &requirements{}
	hr := newHeaderReady(s, odap.TypeCommitFinalResponse, r)

	r.need("CommitAcknowledgementClaim", s.CommitAcknowledgementClaim)
	r.need("CommitAcknowledgementFormat", s.CommitAcknowledgementFormat)

	if err := r.err(s.ID, odap.PhaseFinal); err != nil {
		return nil, err
	}

	return &finalResponseReady{
		headerReady: hr,
		claim:       s.CommitAcknowledgementClaim,
		format:      s.CommitAcknowledgementFormat,
	}, nil
}

func (fr *finalResponseReady) message(now int64) *odap.CommitFinalResponse {
	return &odap.CommitFinalResponse{
		Header:                      fr.header(odap.TypeCommitFinalResponse),
		CommitAcknowledgementClaim:  fr.claim,
		CommitAcknowledgementFormat: fr.format,
		Timestamp:                   now,
	}
}
