package server

import (
	"testing"
	"time"

	"github.com/duskforge/palisade/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherProcessesFramesInOrderPerConnection(t *testing.T) {
	s, repo := newTestServer(t)
	conn, client := newTestConnection(t)
	_ = repo

	conn.SetLevel(LevelGuest)
	d := newDispatcher(conn, s)
	go d.run()
	t.Cleanup(d.Close)

	var seen []uint32
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for i := 0; i < 3; i++ {
			n, err := client.Read(buf)
			if err != nil {
				break
			}
			frame, _, decodeErr := protocol.DecodeFrame(buf[:n])
			if decodeErr != nil {
				break
			}
			seen = append(seen, frame.SequenceID)
		}
		close(done)
	}()

	pkt := &protocol.CredentialsPacket{Username: "r", Password: "x"}
	payload := make([]byte, pkt.EncodedSize())
	_, err := pkt.Encode(payload)
	require.NoError(t, err)

	for seq := uint32(1); seq <= 3; seq++ {
		d.Enqueue(&protocol.Frame{
			Magic:      protocol.MagicCredentials,
			Opcode:     protocol.OpRegister,
			SequenceID: seq,
			Payload:    payload,
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for directives")
	}

	require.Len(t, seen, 3)
	assert.Equal(t, []uint32{1, 2, 3}, seen, "frames from one connection must be processed in arrival order")
}

func TestDispatcherReportsCancelledForCancellableOpDeadline(t *testing.T) {
	s, _ := newTestServer(t)
	conn, client := newTestConnection(t)

	blockOpcode := protocol.Opcode(200)
	release := make(chan struct{})
	s.registry.Register(&HandlerDescriptor{
		Opcode:      blockOpcode,
		Timeout:     10 * time.Millisecond,
		Cancellable: true,
		Handle: func(ctx *HandlerContext) Result {
			<-release
			return Ok()
		},
	})
	t.Cleanup(func() { close(release) })

	d := newDispatcher(conn, s)
	go d.run()
	t.Cleanup(d.Close)

	d.Enqueue(&protocol.Frame{Opcode: blockOpcode, SequenceID: 1})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)

	frame, _, err := protocol.DecodeFrame(buf[:n])
	require.NoError(t, err)
	dir := &protocol.DirectivePacket{}
	require.NoError(t, dir.Decode(frame.Payload))
	assert.Equal(t, protocol.ReasonCancelled, dir.Reason)
	assert.Equal(t, protocol.AdviceDoNotRetry, dir.Advice)
}

func TestDispatcherUnsupportedOpcode(t *testing.T) {
	s, _ := newTestServer(t)
	conn, client := newTestConnection(t)

	d := newDispatcher(conn, s)
	go d.run()
	t.Cleanup(d.Close)

	directiveCh := make(chan *protocol.DirectivePacket, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := client.Read(buf)
		if err != nil {
			directiveCh <- nil
			return
		}
		frame, _, decodeErr := protocol.DecodeFrame(buf[:n])
		if decodeErr != nil {
			directiveCh <- nil
			return
		}
		dir := &protocol.DirectivePacket{}
		if decErr := dir.Decode(frame.Payload); decErr != nil {
			directiveCh <- nil
			return
		}
		directiveCh <- dir
	}()

	d.Enqueue(&protocol.Frame{Magic: protocol.MagicDirective, Opcode: protocol.Opcode(9999), SequenceID: 1})

	dir := <-directiveCh
	require.NotNil(t, dir)
	assert.Equal(t, protocol.ReasonUnsupportedPacket, dir.Reason)
}

func TestDispatcherEnqueueDropsOldestUnderBackpressure(t *testing.T) {
	s, _ := newTestServer(t)
	conn, _ := newTestConnection(t)
	d := newDispatcher(conn, s)
	// Never start d.run(): the queue fills up and stays full so we can
	// observe the drop-oldest-then-retry behavior deterministically.

	for seq := uint32(0); seq < dispatchQueueSize; seq++ {
		d.Enqueue(&protocol.Frame{SequenceID: seq})
	}
	assert.Len(t, d.queue, dispatchQueueSize)

	// One more frame should succeed by dropping the oldest.
	d.Enqueue(&protocol.Frame{SequenceID: 999})
	assert.Len(t, d.queue, dispatchQueueSize)
}
