package server

import (
	"time"

	"github.com/duskforge/palisade/pkg/protocol"
)

// Result is the sum-typed outcome every handler returns: either a plain
// acknowledgement or a directive carrying a specific reason/advice. There
// is no exception path; every failure mode is represented in the value.
type Result struct {
	ok        bool
	written   bool
	directive *protocol.DirectivePacket
}

// Ok returns a successful result with no special directive payload; the
// dispatcher replies with a bare ACK.
func Ok() Result {
	return Result{ok: true}
}

// OkDirective returns a successful result carrying an explicit directive
// (used when success still needs to report flags, e.g. a transient
// notice).
func OkDirective(d *protocol.DirectivePacket) Result {
	return Result{ok: true, directive: d}
}

// AlreadyWritten returns a successful result for a handler that wrote its
// own reply frame directly (Handshake's reply is a Handshake packet, not
// a Directive). The dispatcher sends nothing further for this result.
func AlreadyWritten() Result {
	return Result{ok: true, written: true}
}

// Fail returns a failed result with the given reason/advice/flags.
func Fail(reason protocol.Reason, advice protocol.Advice, flags protocol.DirectiveFlags) Result {
	return Result{
		ok: false,
		directive: &protocol.DirectivePacket{
			ControlType: protocol.ControlError,
			Reason:      reason,
			Advice:      advice,
			Flags:       flags,
		},
	}
}

// Disconnect returns a failed result instructing the dispatcher to close
// the connection after delivering the directive.
func Disconnect(reason protocol.Reason, advice protocol.Advice, flags protocol.DirectiveFlags) Result {
	return Result{
		ok: false,
		directive: &protocol.DirectivePacket{
			ControlType: protocol.ControlDisconnect,
			Reason:      reason,
			Advice:      advice,
			Flags:       flags,
		},
	}
}

func (r Result) IsOK() bool { return r.ok }

// AlreadyWritten reports whether the handler already wrote its own reply
// frame, so the dispatcher must not write anything further.
func (r Result) AlreadyWritten() bool { return r.written }

// Directive returns the directive associated with this result, or nil if
// it is a plain Ok with no directive payload.
func (r Result) Directive() *protocol.DirectivePacket { return r.directive }

// HandlerContext carries everything a handler needs to act: the decoded
// request packet (already decrypted if required), the frame it arrived
// in, and the connection/server it is running against.
type HandlerContext struct {
	Conn      *Connection
	Frame     *protocol.Frame
	Packet    protocol.Packet
	DecodeErr error
	Server    *ServerContext
	Done      <-chan struct{}
}

// deadline returns the channel that closes when the handler's operation
// deadline expires, for handlers that need to check cancellation
// mid-flight rather than relying solely on the dispatcher's own timeout
// race.
func (c *HandlerContext) deadline() <-chan struct{} {
	if c.Done == nil {
		return nil
	}
	return c.Done
}

// HandlerFunc is the signature every operation implements.
type HandlerFunc func(ctx *HandlerContext) Result

// HandlerDescriptor is the immutable-after-startup record the registry
// holds per opcode: the access policy, timeout, and rate limit alongside
// the handler itself.
type HandlerDescriptor struct {
	Opcode             protocol.Opcode
	RequiredLevel      Level
	RequiresEncryption bool
	Timeout            time.Duration
	RateLimitMaxCalls  int
	RateLimitWindow    time.Duration
	Handle             HandlerFunc

	// Cancellable marks an operation whose deadline firing mid-handler is
	// a client-initiated cancellation rather than a server-side timeout:
	// the dispatcher replies CANCELLED/DO_NOT_RETRY/IS_TRANSIENT instead
	// of the default TIMEOUT/BACKOFF_RETRY/IS_TRANSIENT. Login is the
	// only operation declared this way.
	Cancellable bool
}

// HandlerRegistry maps opcodes to their descriptor and the rate limiter
// that descriptor's policy requires. It is built once at startup and read
// concurrently afterward without further mutation.
type HandlerRegistry struct {
	handlers map[protocol.Opcode]*HandlerDescriptor
	limiters map[protocol.Opcode]*LeakyLimiter
}

// NewHandlerRegistry constructs an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[protocol.Opcode]*HandlerDescriptor),
		limiters: make(map[protocol.Opcode]*LeakyLimiter),
	}
}

// Register adds d to the registry. When RateLimitMaxCalls is positive it
// also constructs d's dedicated rate limiter from RateLimitMaxCalls/
// RateLimitWindow; a descriptor without one has no per-handler limit.
func (r *HandlerRegistry) Register(d *HandlerDescriptor) {
	r.handlers[d.Opcode] = d
	if d.RateLimitMaxCalls > 0 {
		r.limiters[d.Opcode] = NewLeakyLimiter(d.RateLimitMaxCalls, d.RateLimitWindow)
	}
}

// Lookup returns the descriptor for opcode, or false if unregistered.
func (r *HandlerRegistry) Lookup(opcode protocol.Opcode) (*HandlerDescriptor, bool) {
	d, ok := r.handlers[opcode]
	return d, ok
}

// LimiterFor returns the per-handler rate limiter for opcode, or false if
// that handler has none.
func (r *HandlerRegistry) LimiterFor(opcode protocol.Opcode) (*LeakyLimiter, bool) {
	l, ok := r.limiters[opcode]
	return l, ok
}

// ForgetConnection drops connID's history from every per-handler
// limiter, called when a connection disconnects.
func (r *HandlerRegistry) ForgetConnection(connID uint64) {
	for _, l := range r.limiters {
		l.Forget(connID)
	}
}
