package server

import (
	"context"
	"time"

	"github.com/duskforge/palisade/pkg/protocol"
)

// dispatchQueueSize bounds the per-connection backlog of frames awaiting
// processing by that connection's single writer goroutine.
const dispatchQueueSize = 64

const defaultHandlerTimeout = 5 * time.Second

// Dispatcher owns the single goroutine that processes frames for one
// connection, serializing handler execution per connection while letting
// different connections run concurrently.
type Dispatcher struct {
	conn   *Connection
	server *ServerContext

	queue chan *protocol.Frame
	done  chan struct{}
}

func newDispatcher(conn *Connection, server *ServerContext) *Dispatcher {
	return &Dispatcher{
		conn:   conn,
		server: server,
		queue:  make(chan *protocol.Frame, dispatchQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue adds a frame to the dispatcher's queue. Under backpressure it
// drops the oldest queued frame to make room rather than blocking the
// reader goroutine; if the queue is still full after that (a burst larger
// than the queue itself), it tells the connection directly rather than
// silently dropping the new frame.
func (d *Dispatcher) Enqueue(f *protocol.Frame) {
	select {
	case d.queue <- f:
		return
	default:
	}

	select {
	case <-d.queue:
	default:
	}

	select {
	case d.queue <- f:
	default:
		d.server.Metrics.DirectiveSent(protocol.ReasonBackpressure.String())
		d.conn.SendDirective(f.Opcode, protocol.ControlError, protocol.ReasonBackpressure, protocol.AdviceBackoffRetry, protocol.FlagIsTransient, f.SequenceID)
	}
}

// Close stops the dispatcher's run loop.
func (d *Dispatcher) Close() {
	close(d.done)
}

func (d *Dispatcher) run() {
	for {
		select {
		case f := <-d.queue:
			d.process(f)
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) process(frame *protocol.Frame) {
	descriptor, ok := d.server.registry.Lookup(frame.Opcode)
	if !ok {
		d.server.Metrics.DirectiveSent(protocol.ReasonUnsupportedPacket.String())
		d.conn.SendDirective(frame.Opcode, protocol.ControlError, protocol.ReasonUnsupportedPacket, protocol.AdviceDoNotRetry, 0, frame.SequenceID)
		return
	}

	ctx := &DispatchContext{
		Conn:       d.conn,
		Frame:      frame,
		Descriptor: descriptor,
		Server:     d.server,
	}

	if res := runStages(ctx, stageClosing, stagePermission, stageTokenBucket); res.Decision != Continue {
		d.finishStage(frame, res)
		return
	}

	if !d.server.concurrency.TryAcquire() {
		d.finishStage(frame, reply(protocol.ReasonConcurrencyExceeded, protocol.AdviceBackoffRetry, protocol.FlagIsTransient))
		return
	}
	defer d.server.concurrency.Release()

	if res := runStages(ctx, stageRateLimit); res.Decision != Continue {
		d.finishStage(frame, res)
		return
	}

	payload := frame.Payload
	if frame.Flags&protocol.FlagCompressed != 0 {
		decompressed, err := protocol.DecompressPayload(payload)
		if err != nil {
			d.server.Metrics.DirectiveSent(protocol.ReasonValidationFailed.String())
			d.conn.SendDirective(frame.Opcode, protocol.ControlError, protocol.ReasonValidationFailed, protocol.AdviceDoNotRetry, 0, frame.SequenceID)
			return
		}
		payload = decompressed
		frame.Flags &^= protocol.FlagCompressed
	}

	pkt, decodeErr := protocol.DecodePacketPooled(d.server.Pool, frame.Magic, payload)
	ctx.Packet = pkt
	ctx.DecodeErr = decodeErr

	if res := stageUnwrap(ctx); res.Decision != Continue {
		if pkt != nil {
			d.server.Pool.Put(pkt)
		}
		d.finishStage(frame, res)
		return
	}

	d.runHandler(ctx, descriptor, frame)
}

func (d *Dispatcher) finishStage(frame *protocol.Frame, res StageResult) {
	if res.Decision != ReplyAndStop || res.Directive == nil {
		return
	}
	d.server.Metrics.DirectiveSent(res.Directive.Reason.String())
	d.sendDirective(frame.Opcode, frame.SequenceID, res.Directive)
}

// sendDirective copies src into a pooled DirectivePacket before handing it
// to the connection, keeping the dispatch hot path's directive traffic off
// the allocator the same way the inbound decode path already is.
func (d *Dispatcher) sendDirective(opcode protocol.Opcode, seq uint32, src *protocol.DirectivePacket) bool {
	pkt := d.server.Pool.GetDirective()
	*pkt = *src
	ok := d.conn.sendDirectivePacket(opcode, pkt, seq)
	d.server.Pool.PutDirective(pkt)
	return ok
}

func (d *Dispatcher) runHandler(ctx *DispatchContext, descriptor *HandlerDescriptor, frame *protocol.Frame) {
	timeout := descriptor.Timeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}

	deadline, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	resultCh := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- Fail(protocol.ReasonInternalError, protocol.AdviceDoNotRetry, 0)
			}
		}()
		hctx := &HandlerContext{
			Conn:      d.conn,
			Frame:     ctx.Frame,
			Packet:    ctx.Packet,
			DecodeErr: ctx.DecodeErr,
			Server:    d.server,
			Done:      deadline.Done(),
		}
		resultCh <- descriptor.Handle(hctx)
	}()

	select {
	case result := <-resultCh:
		d.server.Metrics.ObserveHandler(descriptor.Opcode.String(), time.Since(start).Seconds())
		if ctx.Packet != nil {
			d.server.Pool.Put(ctx.Packet)
		}
		d.writeResult(frame, descriptor, result)
	case <-deadline.Done():
		// The handler goroutine may still be reading ctx.Packet past this
		// point, so it is left for the garbage collector rather than
		// returned to the pool where a concurrent borrower could reuse it
		// out from under the abandoned goroutine.
		d.server.Metrics.ObserveHandler(descriptor.Opcode.String(), time.Since(start).Seconds())
		reason, advice := protocol.ReasonTimeout, protocol.AdviceBackoffRetry
		if descriptor.Cancellable {
			reason, advice = protocol.ReasonCancelled, protocol.AdviceDoNotRetry
		}
		d.server.Metrics.DirectiveSent(reason.String())
		d.conn.SendDirective(frame.Opcode, protocol.ControlError, reason, advice, protocol.FlagIsTransient, frame.SequenceID)
	}
}

func (d *Dispatcher) writeResult(frame *protocol.Frame, descriptor *HandlerDescriptor, result Result) {
	if result.AlreadyWritten() {
		return
	}

	directive := result.Directive()
	if directive == nil {
		if result.IsOK() {
			directive = &protocol.DirectivePacket{ControlType: protocol.ControlAck}
		} else {
			directive = &protocol.DirectivePacket{ControlType: protocol.ControlError, Reason: protocol.ReasonInternalError}
		}
	}
	d.server.Metrics.DirectiveSent(directive.Reason.String())
	d.sendDirective(frame.Opcode, frame.SequenceID, directive)

	if directive.ControlType == protocol.ControlDisconnect {
		d.conn.Disconnect()
	}
}
