package protocol

// ControlType is the Directive packet's control discriminant.
type ControlType uint8

const (
	ControlAck ControlType = iota
	ControlError
	ControlDisconnect
)

// Reason is the Directive packet's failure classification.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonUnsupportedPacket
	ReasonValidationFailed
	ReasonInvalidUsername
	ReasonWeakPassword
	ReasonUnauthenticated
	ReasonAccountLocked
	ReasonAccountSuspended
	ReasonAlreadyExists
	ReasonSessionNotFound
	ReasonMissingRequiredField
	ReasonRateLimited
	ReasonConcurrencyExceeded
	ReasonNotEncrypted
	ReasonTimeout
	ReasonCancelled
	ReasonClientQuit
	ReasonInternalError
	// ReasonUnauthorized and ReasonBackpressure are required by the
	// permission middleware stage and the dispatch backpressure policy
	// respectively; both are used elsewhere in the external interface
	// description without appearing in its reason enum. See DESIGN.md.
	ReasonUnauthorized
	ReasonBackpressure
)

var reasonNames = map[Reason]string{
	ReasonNone:                 "NONE",
	ReasonUnsupportedPacket:    "UNSUPPORTED_PACKET",
	ReasonValidationFailed:     "VALIDATION_FAILED",
	ReasonInvalidUsername:      "INVALID_USERNAME",
	ReasonWeakPassword:         "WEAK_PASSWORD",
	ReasonUnauthenticated:      "UNAUTHENTICATED",
	ReasonAccountLocked:        "ACCOUNT_LOCKED",
	ReasonAccountSuspended:     "ACCOUNT_SUSPENDED",
	ReasonAlreadyExists:        "ALREADY_EXISTS",
	ReasonSessionNotFound:      "SESSION_NOT_FOUND",
	ReasonMissingRequiredField: "MISSING_REQUIRED_FIELD",
	ReasonRateLimited:          "RATE_LIMITED",
	ReasonConcurrencyExceeded:  "CONCURRENCY_EXCEEDED",
	ReasonNotEncrypted:         "NOT_ENCRYPTED",
	ReasonTimeout:              "TIMEOUT",
	ReasonCancelled:            "CANCELLED",
	ReasonClientQuit:           "CLIENT_QUIT",
	ReasonInternalError:        "INTERNAL_ERROR",
	ReasonUnauthorized:         "UNAUTHORIZED",
	ReasonBackpressure:         "BACKPRESSURE",
}

// String returns the reason's wire name, used as a low-cardinality metric
// label rather than for anything sent over the wire.
func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Advice is the Directive packet's retry guidance.
type Advice uint8

const (
	AdviceNone Advice = iota
	AdviceDoNotRetry
	AdviceFixAndRetry
	AdviceReauthenticate
	AdviceBackoffRetry
)

// DirectiveFlags are auxiliary bits describing the nature of a directive.
type DirectiveFlags uint8

const (
	FlagIsTransient   DirectiveFlags = 1 << 0
	FlagIsAuthRelated DirectiveFlags = 1 << 1
)
