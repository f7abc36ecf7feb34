package session

// Step is the per-participant position of a session in the protocol. Each
// gateway advances its own counter. On the source gateway a *Rcvd step means
// the request was issued and an *Ackd step means the response was accepted.
// On the destination gateway a *Rcvd step means the request was accepted and
// an *Ackd step means the response was issued.
type Step int

const (
	StepNone Step = iota
	StepInitRcvd
	StepInitAckd
	StepCommenceRcvd
	StepCommenceAckd
	StepLockRcvd
	StepLockAckd
	StepPrepRcvd
	StepPrepAckd
	StepFinalRcvd
	StepFinalAckd
	StepComplete
)

// String ...
func (s Step) String() string {
	switch s {
	case StepNone:
		return "NONE"
	case StepInitRcvd:
		return "INIT_RCVD"
	case StepInitAckd:
		return "INIT_ACKD"
	case StepCommenceRcvd:
		return "COMMENCE_RCVD"
	case StepCommenceAckd:
		return "COMMENCE_ACKD"
	case StepLockRcvd:
		return "LOCK_RCVD"
	case StepLockAckd:
		return "LOCK_ACKD"
	case StepPrepRcvd:
		return "PREP_RCVD"
	case StepPrepAckd:
		return "PREP_ACKD"
	case StepFinalRcvd:
		return "FINAL_RCVD"
	case StepFinalAckd:
		return "FINAL_ACKD"
	case StepComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Role is the side a gateway plays in a session.
type Role string

const (
	// Source gateways hold the asset and drive the protocol as clients.
	Source Role = "source"
	// Destination gateways receive the asset and answer as servers.
	Destination Role = "destination"
)

// Status is the lifecycle marker of a session.
type Status string

const (
	Active    Status = "active"
	Completed Status = "completed"
	Aborted   Status = "aborted"
)
