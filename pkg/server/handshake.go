package server

import (
	"github.com/duskforge/palisade/pkg/crypto"
	"github.com/duskforge/palisade/pkg/protocol"
)

// handleHandshake performs the server side of the X25519 key agreement:
// it generates an ephemeral keypair, derives the shared session key from
// the client's public key, installs it on the connection, and replies
// with the server's public key. On any crypto failure the connection's
// secret and level are reset so the session never advances on a key it
// cannot prove.
func handleHandshake(ctx *HandlerContext) Result {
	if ctx.Frame.Magic != protocol.MagicHandshake {
		return Fail(protocol.ReasonUnsupportedPacket, protocol.AdviceDoNotRetry, 0)
	}
	if len(ctx.Frame.Payload) == 0 {
		return Fail(protocol.ReasonMissingRequiredField, protocol.AdviceFixAndRetry, 0)
	}

	hs, ok := ctx.Packet.(*protocol.HandshakePacket)
	if !ok || ctx.DecodeErr != nil {
		return Fail(protocol.ReasonValidationFailed, protocol.AdviceFixAndRetry, 0)
	}

	serverKP, err := crypto.GenerateKeyPair()
	if err != nil {
		ctx.Conn.ClearSecret()
		ctx.Conn.SetLevel(LevelNone)
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}

	shared, err := crypto.Agree(serverKP.Private, hs.PublicKey)
	crypto.Wipe(serverKP.Private[:])
	if err != nil {
		ctx.Conn.ClearSecret()
		ctx.Conn.SetLevel(LevelNone)
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}

	sessionKey := crypto.DeriveSessionKey(shared)
	crypto.Wipe(shared[:])

	ctx.Conn.SetSecret(sessionKey)
	ctx.Conn.SetLevel(LevelGuest)

	reply := &protocol.HandshakePacket{PublicKey: serverKP.Public}
	payload := make([]byte, reply.EncodedSize())
	if _, err := reply.Encode(payload); err != nil {
		ctx.Conn.ClearSecret()
		ctx.Conn.SetLevel(LevelNone)
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}

	frame := &protocol.Frame{
		Magic:      protocol.MagicHandshake,
		Opcode:     protocol.OpHandshake,
		SequenceID: ctx.Frame.SequenceID,
		Payload:    payload,
	}
	if !ctx.Conn.write(frame) {
		// Rollback to NONE rather than leaving the connection at GUEST
		// without a key: a GUEST session with no secret cannot pass any
		// later ENCRYPTED check and would otherwise wedge the client.
		ctx.Conn.ClearSecret()
		ctx.Conn.SetLevel(LevelNone)
		ctx.Conn.Disconnect()
		return AlreadyWritten()
	}

	return AlreadyWritten()
}
