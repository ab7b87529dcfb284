package server

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/duskforge/palisade/pkg/protocol"
)

// Level is the authentication/authorization tier a connection currently
// holds. It starts at LevelNone and advances as the handshake and login
// operations succeed.
type Level uint8

const (
	LevelNone Level = iota
	LevelGuest
	LevelUser
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelGuest:
		return "GUEST"
	case LevelUser:
		return "USER"
	case LevelAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

// Connection wraps a net.Conn with write synchronization, session state
// (level, shared secret, pending incoming frame), and the bookkeeping the
// hub and dispatcher need. Concurrent request handlers and directive
// writers share one Connection; without the write mutex their frame bytes
// would interleave on the wire.
type Connection struct {
	ID         uint64
	RemoteAddr string

	conn net.Conn
	wmu  sync.Mutex // serializes writes to conn

	mu       sync.RWMutex
	level    Level
	secret   *[32]byte
	incoming *protocol.Frame

	closing atomic.Bool
}

func newConnection(id uint64, conn net.Conn) *Connection {
	return &Connection{
		ID:         id,
		RemoteAddr: conn.RemoteAddr().String(),
		conn:       conn,
		level:      LevelNone,
	}
}

// Level returns the connection's current authorization tier.
func (c *Connection) Level() Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// SetLevel updates the connection's authorization tier.
func (c *Connection) SetLevel(l Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = l
}

// SetSecret installs the session key derived from the handshake. The
// caller retains no reference to key; SetSecret copies it.
func (c *Connection) SetSecret(key [32]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	secret := key
	c.secret = &secret
}

// ClearSecret wipes and discards the session key, used on handshake
// rollback and logout.
func (c *Connection) ClearSecret() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.secret != nil {
		for i := range c.secret {
			c.secret[i] = 0
		}
	}
	c.secret = nil
}

// HasSecret reports whether a session key has been established.
func (c *Connection) HasSecret() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secret != nil
}

// secretCopy returns a copy of the session key, or false if none is set.
func (c *Connection) secretCopy() ([32]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.secret == nil {
		return [32]byte{}, false
	}
	return *c.secret, true
}

// SetIncoming records the frame currently being dispatched, so handlers
// can inspect sequence/opcode without threading it through every call.
func (c *Connection) SetIncoming(f *protocol.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incoming = f
}

// Incoming returns the frame set by the most recent SetIncoming.
func (c *Connection) Incoming() *protocol.Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.incoming
}

// write serializes and writes a fully-formed frame to the wire. It is the
// only path to conn; handlers and directive writers must route through
// it, never touch conn directly.
func (c *Connection) write(f *protocol.Frame) bool {
	if compressed, ok := protocol.CompressPayload(f.Payload); ok {
		out := *f
		out.Payload = compressed
		out.Flags |= protocol.FlagCompressed
		f = &out
	}

	buf := make([]byte, f.EncodedSize())
	n, err := protocol.EncodeFrame(buf, f)
	if err != nil {
		return false
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.conn.Write(buf[:n])
	return err == nil
}

// SendDirective frames and writes a control reply.
func (c *Connection) SendDirective(opcode protocol.Opcode, ct protocol.ControlType, reason protocol.Reason, advice protocol.Advice, flags protocol.DirectiveFlags, seq uint32) bool {
	pkt := &protocol.DirectivePacket{ControlType: ct, Reason: reason, Advice: advice, Flags: flags}
	return c.sendDirectivePacket(opcode, pkt, seq)
}

func (c *Connection) sendDirectivePacket(opcode protocol.Opcode, pkt *protocol.DirectivePacket, seq uint32) bool {
	payload := make([]byte, pkt.EncodedSize())
	if _, err := pkt.Encode(payload); err != nil {
		return false
	}

	frame := &protocol.Frame{
		Magic:      protocol.MagicDirective,
		Opcode:     opcode,
		SequenceID: seq,
		Payload:    payload,
	}
	return c.write(frame)
}

// Closing reports whether the connection has begun tearing down.
func (c *Connection) Closing() bool {
	return c.closing.Load()
}

// Disconnect marks the connection as closing and closes the socket. Safe
// to call more than once.
func (c *Connection) Disconnect() {
	if c.closing.CompareAndSwap(false, true) {
		c.ClearSecret()
		c.conn.Close()
	}
}
