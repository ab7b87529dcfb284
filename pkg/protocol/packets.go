package protocol

// MaxUsernameLen and MaxPasswordLen bound the Credentials/CredsUpdate
// string fields in cleartext domain terms. Decode never enforces them:
// when the ENCRYPTED flag is set these fields arrive Base64-framed
// ciphertext, which is routinely longer than the plaintext bound it will
// decrypt to. After stageUnwrap decrypts, Register's username pattern and
// IsStrongPassword (Register, and ChangePassword's new password) apply the
// same limits; Login and ChangePassword's old password are not
// length-checked.
const (
	MaxUsernameLen = 20
	MaxPasswordLen = 128
)

// Packet is the tagged-union member every payload type implements. The
// frame codec identifies the concrete type via Magic; Encode/Decode move
// between the typed struct and the frame's payload bytes.
type Packet interface {
	Magic() Magic
	EncodedSize() int
	Encode(dst []byte) (int, error)
	Decode(payload []byte) error
	Reset()
}

// FieldCarrier is implemented by packet types with sensitive string fields
// the ENCRYPTED middleware stage must transform. Packets with no such
// fields simply do not implement it.
type FieldCarrier interface {
	EncryptableFields() []*string
}

// NewPacket manufactures a zero-valued packet for the given magic, or
// ErrBadMagic if magic is not registered.
func NewPacket(m Magic) (Packet, error) {
	switch m {
	case MagicHandshake:
		return &HandshakePacket{}, nil
	case MagicCredentials:
		return &CredentialsPacket{}, nil
	case MagicCredsUpdate:
		return &CredsUpdatePacket{}, nil
	case MagicDirective:
		return &DirectivePacket{}, nil
	case MagicResponse:
		return &ResponsePacket{}, nil
	case MagicLogout:
		return &LogoutPacket{}, nil
	default:
		return nil, ErrBadMagic
	}
}

// DecodePacket manufactures a packet for magic and decodes payload into
// it.
func DecodePacket(m Magic, payload []byte) (Packet, error) {
	pkt, err := NewPacket(m)
	if err != nil {
		return nil, err
	}
	if err := pkt.Decode(payload); err != nil {
		return nil, err
	}
	return pkt, nil
}

// HandshakePacket carries a raw 32-byte X25519 public key, in either
// direction.
type HandshakePacket struct {
	PublicKey [32]byte
}

func (p *HandshakePacket) Magic() Magic    { return MagicHandshake }
func (p *HandshakePacket) EncodedSize() int { return 32 }

func (p *HandshakePacket) Encode(dst []byte) (int, error) {
	if len(dst) < 32 {
		return 0, ErrBufferTooSmall
	}
	copy(dst, p.PublicKey[:])
	return 32, nil
}

func (p *HandshakePacket) Decode(payload []byte) error {
	if len(payload) != 32 {
		return ErrMalformed
	}
	copy(p.PublicKey[:], payload)
	return nil
}

func (p *HandshakePacket) Reset() { *p = HandshakePacket{} }

// CredentialsPacket carries a username/password pair for Register and
// Login.
type CredentialsPacket struct {
	Username string
	Password string
}

func (p *CredentialsPacket) Magic() Magic { return MagicCredentials }

func (p *CredentialsPacket) EncodedSize() int {
	return stringSize(p.Username) + stringSize(p.Password)
}

func (p *CredentialsPacket) Encode(dst []byte) (int, error) {
	n, err := putString(dst, p.Username)
	if err != nil {
		return 0, err
	}
	m, err := putString(dst[n:], p.Password)
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

func (p *CredentialsPacket) Decode(payload []byte) error {
	username, n, err := getString(payload)
	if err != nil {
		return err
	}
	password, _, err := getString(payload[n:])
	if err != nil {
		return err
	}
	p.Username, p.Password = username, password
	return nil
}

func (p *CredentialsPacket) Reset() { p.Username, p.Password = "", "" }

func (p *CredentialsPacket) EncryptableFields() []*string {
	return []*string{&p.Username, &p.Password}
}

// CredsUpdatePacket carries an old/new password pair for ChangePassword.
type CredsUpdatePacket struct {
	OldPassword string
	NewPassword string
}

func (p *CredsUpdatePacket) Magic() Magic { return MagicCredsUpdate }

func (p *CredsUpdatePacket) EncodedSize() int {
	return stringSize(p.OldPassword) + stringSize(p.NewPassword)
}

func (p *CredsUpdatePacket) Encode(dst []byte) (int, error) {
	n, err := putString(dst, p.OldPassword)
	if err != nil {
		return 0, err
	}
	m, err := putString(dst[n:], p.NewPassword)
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

func (p *CredsUpdatePacket) Decode(payload []byte) error {
	oldPassword, n, err := getString(payload)
	if err != nil {
		return err
	}
	newPassword, _, err := getString(payload[n:])
	if err != nil {
		return err
	}
	p.OldPassword, p.NewPassword = oldPassword, newPassword
	return nil
}

func (p *CredsUpdatePacket) Reset() { p.OldPassword, p.NewPassword = "", "" }

func (p *CredsUpdatePacket) EncryptableFields() []*string {
	return []*string{&p.OldPassword, &p.NewPassword}
}

// DirectivePacket is the server's control reply: ACK, ERROR, or DISCONNECT
// with a reason, retry advice, and auxiliary flags.
type DirectivePacket struct {
	ControlType ControlType
	Reason      Reason
	Advice      Advice
	Flags       DirectiveFlags
}

func (p *DirectivePacket) Magic() Magic    { return MagicDirective }
func (p *DirectivePacket) EncodedSize() int { return 4 }

func (p *DirectivePacket) Encode(dst []byte) (int, error) {
	if len(dst) < 4 {
		return 0, ErrBufferTooSmall
	}
	dst[0] = uint8(p.ControlType)
	dst[1] = uint8(p.Reason)
	dst[2] = uint8(p.Advice)
	dst[3] = uint8(p.Flags)
	return 4, nil
}

func (p *DirectivePacket) Decode(payload []byte) error {
	if len(payload) != 4 {
		return ErrMalformed
	}
	p.ControlType = ControlType(payload[0])
	p.Reason = Reason(payload[1])
	p.Advice = Advice(payload[2])
	p.Flags = DirectiveFlags(payload[3])
	return nil
}

func (p *DirectivePacket) Reset() { *p = DirectivePacket{} }

// ResponsePacket is a minimal server reply carrying only a status code.
// Reserved for handlers with no richer directive semantics.
type ResponsePacket struct {
	Status uint8
}

func (p *ResponsePacket) Magic() Magic    { return MagicResponse }
func (p *ResponsePacket) EncodedSize() int { return 1 }

func (p *ResponsePacket) Encode(dst []byte) (int, error) {
	if len(dst) < 1 {
		return 0, ErrBufferTooSmall
	}
	dst[0] = p.Status
	return 1, nil
}

func (p *ResponsePacket) Decode(payload []byte) error {
	if len(payload) != 1 {
		return ErrMalformed
	}
	p.Status = payload[0]
	return nil
}

func (p *ResponsePacket) Reset() { p.Status = 0 }

// LogoutPacket carries no payload; its magic exists solely so Logout
// requests, which need no fields, still fit the tagged-union dispatch.
type LogoutPacket struct{}

func (p *LogoutPacket) Magic() Magic    { return MagicLogout }
func (p *LogoutPacket) EncodedSize() int { return 0 }

func (p *LogoutPacket) Encode(dst []byte) (int, error) { return 0, nil }

func (p *LogoutPacket) Decode(payload []byte) error {
	if len(payload) != 0 {
		return ErrMalformed
	}
	return nil
}

func (p *LogoutPacket) Reset() {}
