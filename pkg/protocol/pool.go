package protocol

import "github.com/duskforge/palisade/pkg/pool"

// hotPoolCapacity and coldPoolCapacity bound the retained instances per
// packet class.
// Handshake, Credentials, and Directive dominate the hot path (handshake,
// login) and get a larger ceiling than the lightly-used classes.
const (
	hotPoolCapacity  = 256
	coldPoolCapacity = 64
)

// PacketPool is the typed, bounded cache keyed by packet class that the
// dispatch hot path borrows from instead of allocating a fresh struct per
// frame.
type PacketPool struct {
	handshake   *pool.TypedPool[*HandshakePacket]
	credentials *pool.TypedPool[*CredentialsPacket]
	credsUpdate *pool.TypedPool[*CredsUpdatePacket]
	directive   *pool.TypedPool[*DirectivePacket]
	response    *pool.TypedPool[*ResponsePacket]
}

// NewPacketPool constructs a PacketPool with the default per-class
// capacities.
func NewPacketPool() *PacketPool {
	return &PacketPool{
		handshake:   pool.NewTypedPool(func() *HandshakePacket { return &HandshakePacket{} }, hotPoolCapacity),
		credentials: pool.NewTypedPool(func() *CredentialsPacket { return &CredentialsPacket{} }, hotPoolCapacity),
		credsUpdate: pool.NewTypedPool(func() *CredsUpdatePacket { return &CredsUpdatePacket{} }, coldPoolCapacity),
		directive:   pool.NewTypedPool(func() *DirectivePacket { return &DirectivePacket{} }, hotPoolCapacity),
		response:    pool.NewTypedPool(func() *ResponsePacket { return &ResponsePacket{} }, coldPoolCapacity),
	}
}

func (p *PacketPool) GetHandshake() *HandshakePacket    { return p.handshake.Get() }
func (p *PacketPool) PutHandshake(pk *HandshakePacket)  { p.handshake.Put(pk) }

func (p *PacketPool) GetCredentials() *CredentialsPacket   { return p.credentials.Get() }
func (p *PacketPool) PutCredentials(pk *CredentialsPacket) { p.credentials.Put(pk) }

func (p *PacketPool) GetCredsUpdate() *CredsUpdatePacket   { return p.credsUpdate.Get() }
func (p *PacketPool) PutCredsUpdate(pk *CredsUpdatePacket) { p.credsUpdate.Put(pk) }

func (p *PacketPool) GetDirective() *DirectivePacket   { return p.directive.Get() }
func (p *PacketPool) PutDirective(pk *DirectivePacket) { p.directive.Put(pk) }

func (p *PacketPool) GetResponse() *ResponsePacket   { return p.response.Get() }
func (p *PacketPool) PutResponse(pk *ResponsePacket) { p.response.Put(pk) }

// Get manufactures a packet for magic from the matching sub-pool instead
// of allocating, or ErrBadMagic if magic is not registered. LogoutPacket
// has no payload to decode and is not pooled; NewPacket covers it.
func (p *PacketPool) Get(m Magic) (Packet, error) {
	switch m {
	case MagicHandshake:
		return p.GetHandshake(), nil
	case MagicCredentials:
		return p.GetCredentials(), nil
	case MagicCredsUpdate:
		return p.GetCredsUpdate(), nil
	case MagicDirective:
		return p.GetDirective(), nil
	case MagicResponse:
		return p.GetResponse(), nil
	default:
		return NewPacket(m)
	}
}

// Put returns pkt to its sub-pool, which resets it on the way in. A no-op
// for classes Get never pulls from a pool.
func (p *PacketPool) Put(pkt Packet) {
	switch v := pkt.(type) {
	case *HandshakePacket:
		p.PutHandshake(v)
	case *CredentialsPacket:
		p.PutCredentials(v)
	case *CredsUpdatePacket:
		p.PutCredsUpdate(v)
	case *DirectivePacket:
		p.PutDirective(v)
	case *ResponsePacket:
		p.PutResponse(v)
	}
}

// DecodePacketPooled behaves like DecodePacket but borrows the packet
// from pool instead of allocating a fresh one.
func DecodePacketPooled(pool *PacketPool, m Magic, payload []byte) (Packet, error) {
	pkt, err := pool.Get(m)
	if err != nil {
		return nil, err
	}
	if err := pkt.Decode(payload); err != nil {
		pool.Put(pkt)
		return nil, err
	}
	return pkt, nil
}

// Prealloc seeds every sub-pool with n instances, used at server startup
// to avoid an allocation burst on the first wave of connections.
func (p *PacketPool) Prealloc(n int) {
	p.handshake.Prealloc(n)
	p.credentials.Prealloc(n)
	p.credsUpdate.Prealloc(n / 4)
	p.directive.Prealloc(n)
	p.response.Prealloc(n / 4)
}
