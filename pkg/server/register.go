package server

import (
	"regexp"

	"github.com/duskforge/palisade/pkg/crypto"
	"github.com/duskforge/palisade/pkg/protocol"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// handleRegister validates a username/password pair, hashes the password,
// and inserts a new account row, treating a username collision as
// ALREADY_EXISTS rather than an error.
func handleRegister(ctx *HandlerContext) Result {
	cred, ok := ctx.Packet.(*protocol.CredentialsPacket)
	if !ok || ctx.DecodeErr != nil {
		return Fail(protocol.ReasonValidationFailed, protocol.AdviceFixAndRetry, 0)
	}

	if !usernamePattern.MatchString(cred.Username) {
		return Fail(protocol.ReasonInvalidUsername, protocol.AdviceFixAndRetry, 0)
	}
	if !crypto.IsStrongPassword(cred.Password) {
		return Fail(protocol.ReasonWeakPassword, protocol.AdviceFixAndRetry, 0)
	}

	salt, hash, err := crypto.HashPassword(cred.Password)
	defer func() {
		crypto.Wipe(salt[:])
		crypto.Wipe(hash[:])
	}()
	if err != nil {
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}

	id, err := ctx.Server.Repo.InsertOrIgnore(cred.Username, salt, hash, ctx.Server.now())
	if err != nil {
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}
	if id <= 0 {
		return Fail(protocol.ReasonAlreadyExists, protocol.AdviceFixAndRetry, 0)
	}

	return Ok()
}
