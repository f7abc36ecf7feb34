package gateway

import (
	"fmt"
	"strings"

	"github.com/mosaicnetworks/satp/src/net"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/pkg/errors"
)

// Kinds of refusal sent to the counterpart with the error message.
const (
	kindViolation     = "violation"
	kindIntegrity     = "integrity"
	kindConfiguration = "configuration"
)

// Causes carried by the errors of this package. They can be tested with
// errors.Is on any error returned by a Gateway.
var (
	ErrMessageType      = errors.New("message not expected at this step")
	ErrSequenceNumber   = errors.New("sequence number mismatch")
	ErrHashChain        = errors.New("previous message hash mismatch")
	ErrPubKeyMismatch   = errors.New("public key does not match the pinned key")
	ErrSignature        = errors.New("invalid signature")
	ErrUnsupportedDLT   = errors.New("unsupported DLT system")
	ErrAssetExpired     = errors.New("asset profile expired")
	ErrClaimExpired     = errors.New("lock evidence claim expired")
	ErrAssetProfileHash = errors.New("asset profile hash mismatch")
	ErrFieldMismatch    = errors.New("field does not match the session")
	ErrSessionClosed    = errors.New("session closed")
	ErrUnknownSession   = errors.New("unknown session")
	ErrRemote           = errors.New("counterpart refused the message")
	ErrMissingField     = errors.New("missing field")
	ErrClaimMismatch    = errors.New("claim does not match the claim store")
	ErrShutdown         = errors.New("gateway shut down")
	ErrSessionBusy      = errors.New("session is being driven or rolled back")
)

// ConfigurationError is returned by the factories when the session lacks a
// field the message needs.
type ConfigurationError struct {
	SessionID string
	Phase     odap.Phase
	Missing   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("session %s, %s: %v: %s", e.SessionID, e.Phase, ErrMissingField, strings.Join(e.Missing, ", "))
}

// Unwrap ...
func (e *ConfigurationError) Unwrap() error {
	return ErrMissingField
}

// RemoteKind implements net.Classified.
func (e *ConfigurationError) RemoteKind() (string, string) {
	return kindConfiguration, strings.Join(e.Missing, ",")
}

// ProtocolViolation is returned when a message fails validation, or when the
// counterpart refused one of ours.
type ProtocolViolation struct {
	SessionID string
	Phase     odap.Phase
	Cause     error
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("session %s, %s: protocol violation: %v", e.SessionID, e.Phase, e.Cause)
}

// Unwrap ...
func (e *ProtocolViolation) Unwrap() error {
	return e.Cause
}

// RemoteKind implements net.Classified.
func (e *ProtocolViolation) RemoteKind() (string, string) {
	return kindViolation, ""
}

// TransportError is returned when an exchange could not complete within the
// allowed attempts. The session keeps the request it issued and waits for
// recovery.
type TransportError struct {
	SessionID string
	Phase     odap.Phase
	Attempts  int
	Cause     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session %s, %s: transport failed after %d attempts: %v", e.SessionID, e.Phase, e.Attempts, e.Cause)
}

// Unwrap ...
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Recoverable is always true: the session can be recovered or rolled back.
func (e *TransportError) Recoverable() bool {
	return true
}

// IntegrityError is returned when a claim does not match the proof stored in
// the claim store.
type IntegrityError struct {
	SessionID string
	Phase     odap.Phase
	Key       string
	Cause     error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("session %s, %s: integrity check of %s failed: %v", e.SessionID, e.Phase, e.Key, e.Cause)
}

// Unwrap ...
func (e *IntegrityError) Unwrap() error {
	return e.Cause
}

// RemoteKind implements net.Classified.
func (e *IntegrityError) RemoteKind() (string, string) {
	return kindIntegrity, e.Key
}

// IsRecoverable reports whether err leaves the session in a state that
// recovery can resume or roll back.
func IsRecoverable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Recoverable()
	}
	return false
}

func violation(sessionID string, phase odap.Phase, cause error, format string, args ...interface{}) error {
	return &ProtocolViolation{
		SessionID: sessionID,
		Phase:     phase,
		Cause:     errors.Wrapf(cause, format, args...),
	}
}

func integrity(sessionID string, phase odap.Phase, key string, cause error) error {
	return &IntegrityError{
		SessionID: sessionID,
		Phase:     phase,
		Key:       key,
		Cause:     cause,
	}
}

// remoteError rebuilds the error of a counterpart that refused a message of
// a session. The result wraps ErrRemote, except for a ConfigurationError
// which lists the fields the counterpart lacked.
func remoteError(sessionID string, phase odap.Phase, re *net.RemoteError) error {
	cause := errors.Wrap(ErrRemote, re.Error())

	switch re.Kind {
	case kindIntegrity:
		return &IntegrityError{
			SessionID: sessionID,
			Phase:     phase,
			Key:       re.Detail,
			Cause:     cause,
		}
	case kindConfiguration:
		var missing []string
		if re.Detail != "" {
			missing = strings.Split(re.Detail, ",")
		}
		return &ConfigurationError{
			SessionID: sessionID,
			Phase:     phase,
			Missing:   missing,
		}
	default:
		return &ProtocolViolation{
			SessionID: sessionID,
			Phase:     phase,
			Cause:     cause,
		}
	}
}
