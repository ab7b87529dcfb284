package server

import (
	"github.com/duskforge/palisade/pkg/crypto"
	"github.com/duskforge/palisade/pkg/protocol"
)

// Decision is the outcome of one middleware stage.
type Decision uint8

const (
	// Continue lets the dispatch pipeline proceed to the next stage.
	Continue Decision = iota
	// ReplyAndStop sends the attached directive and halts the pipeline.
	ReplyAndStop
	// DropSilently halts the pipeline without sending anything. It is
	// returned by stageClosing for frames that arrive on a connection
	// that is already tearing down.
	DropSilently
)

// StageResult is what a middleware stage returns: a decision and, for
// ReplyAndStop, the directive to send.
type StageResult struct {
	Decision  Decision
	Directive *protocol.DirectivePacket
}

func cont() StageResult { return StageResult{Decision: Continue} }

func drop() StageResult { return StageResult{Decision: DropSilently} }

func reply(reason protocol.Reason, advice protocol.Advice, flags protocol.DirectiveFlags) StageResult {
	return StageResult{
		Decision: ReplyAndStop,
		Directive: &protocol.DirectivePacket{
			ControlType: protocol.ControlError,
			Reason:      reason,
			Advice:      advice,
			Flags:       flags,
		},
	}
}

// DispatchContext carries the state a middleware stage inspects. It is
// built once per frame and threaded through the pipeline.
type DispatchContext struct {
	Conn       *Connection
	Frame      *protocol.Frame
	Packet     protocol.Packet
	DecodeErr  error
	Descriptor *HandlerDescriptor
	Server     *ServerContext
}

// InboundStage is one pure (context) -> Decision transform in the
// inbound pipeline.
type InboundStage func(ctx *DispatchContext) StageResult

// stageClosing silently discards frames that arrive for a connection
// already tearing down: by the time the reply would reach the wire the
// socket may already be gone, and a directive here would race teardown
// for no benefit to a peer that is no longer listening.
func stageClosing(ctx *DispatchContext) StageResult {
	if ctx.Conn.Closing() {
		return drop()
	}
	return cont()
}

// stagePermission rejects frames whose connection has not reached the
// descriptor's required authorization level.
func stagePermission(ctx *DispatchContext) StageResult {
	if ctx.Conn.Level() < ctx.Descriptor.RequiredLevel {
		return reply(protocol.ReasonUnauthorized, protocol.AdviceDoNotRetry, 0)
	}
	return cont()
}

// stageTokenBucket enforces the connection-wide traffic budget.
func stageTokenBucket(ctx *DispatchContext) StageResult {
	bucket := ctx.Server.connBucket(ctx.Conn)
	if !bucket.Allow() {
		return reply(protocol.ReasonRateLimited, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}
	return cont()
}

// stageRateLimit enforces the handler-specific leaky-bucket limit.
func stageRateLimit(ctx *DispatchContext) StageResult {
	limiter, ok := ctx.Server.registry.LimiterFor(ctx.Descriptor.Opcode)
	if !ok {
		return cont()
	}
	if !limiter.Allow(ctx.Conn.ID) {
		return reply(protocol.ReasonRateLimited, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}
	return cont()
}

// stageUnwrap enforces the descriptor's encryption requirement and, when
// the frame is marked encrypted, decrypts every field a FieldCarrier
// exposes.
func stageUnwrap(ctx *DispatchContext) StageResult {
	if ctx.Descriptor.RequiresEncryption {
		if !ctx.Conn.HasSecret() {
			return reply(protocol.ReasonNotEncrypted, protocol.AdviceDoNotRetry, 0)
		}
		if ctx.Frame.Flags&protocol.FlagEncrypted == 0 {
			return reply(protocol.ReasonNotEncrypted, protocol.AdviceDoNotRetry, 0)
		}
	}

	if ctx.Frame.Flags&protocol.FlagEncrypted == 0 {
		return cont()
	}

	carrier, ok := ctx.Packet.(protocol.FieldCarrier)
	if !ok {
		return cont()
	}

	secret, ok := ctx.Conn.secretCopy()
	if !ok {
		return reply(protocol.ReasonNotEncrypted, protocol.AdviceDoNotRetry, 0)
	}

	if err := decryptFields(carrier, secret); err != nil {
		return reply(protocol.ReasonValidationFailed, protocol.AdviceFixAndRetry, 0)
	}
	ctx.Frame.Flags &^= protocol.FlagEncrypted
	return cont()
}

func decryptFields(carrier protocol.FieldCarrier, key [32]byte) error {
	for _, field := range carrier.EncryptableFields() {
		if *field == "" {
			continue
		}
		plain, err := crypto.OpenFromBase64(key, *field)
		if err != nil {
			return err
		}
		*field = plain
	}
	return nil
}

// runStages executes stages in order and returns the first non-Continue
// result, or a Continue result if every stage passed. The dispatcher
// acquires the global concurrency slot separately, outside this helper,
// so it can defer the matching Release immediately after a successful
// acquire; every stage here is a pure check with nothing to release.
func runStages(ctx *DispatchContext, stages ...InboundStage) StageResult {
	for _, stage := range stages {
		if res := stage(ctx); res.Decision != Continue {
			return res
		}
	}
	return cont()
}
