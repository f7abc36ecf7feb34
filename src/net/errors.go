package net

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrTimeout is returned when no response arrived within the transport
	// timeout.
	ErrTimeout = errors.New("command timed out")

	// ErrUnreachable is returned when the target could not be contacted.
	ErrUnreachable = errors.New("target unreachable")
)

// RemoteError is returned when the target processed the request and refused
// it. Kind and Detail are set by the target when its error is Classified.
type RemoteError struct {
	Target  string
	Kind    string
	Detail  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Target, e.Message)
}

// IsRemote reports whether err is, or wraps, a *RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// Classified is implemented by the errors a consumer responds with when the
// caller needs more than the message to handle the refusal.
type Classified interface {
	error
	RemoteKind() (kind, detail string)
}

// wireError is a refusal as it travels back to the caller. An empty Message
// means no error.
type wireError struct {
	Kind    string `json:"kind"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func newWireError(err error) wireError {
	if err == nil {
		return wireError{}
	}

	w := wireError{Message: err.Error()}
	if w.Message == "" {
		w.Message = "request refused"
	}

	var c Classified
	if errors.As(err, &c) {
		w.Kind, w.Detail = c.RemoteKind()
	}

	return w
}

func (w wireError) remote(target string) *RemoteError {
	return &RemoteError{
		Target:  target,
		Kind:    w.Kind,
		Detail:  w.Detail,
		Message: w.Message,
	}
}
