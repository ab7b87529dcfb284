package server

import (
	"errors"

	"github.com/duskforge/palisade/pkg/crypto"
	"github.com/duskforge/palisade/pkg/database"
	"github.com/duskforge/palisade/pkg/protocol"
)

// handleChangePassword requires an established username association. The
// permission gate already enforced required_level=USER; the hub lookup
// here identifies which account row to mutate, and its own failure is
// reported as SESSION_NOT_FOUND rather than treated as a second
// authorization check. It verifies the old password, then applies the
// new one under optimistic concurrency.
func handleChangePassword(ctx *HandlerContext) Result {
	username, ok := ctx.Server.Hub.GetUsername(ctx.Conn.ID)
	if !ok {
		return Fail(protocol.ReasonSessionNotFound, protocol.AdviceDoNotRetry, 0)
	}

	update, ok := ctx.Packet.(*protocol.CredsUpdatePacket)
	if !ok || ctx.DecodeErr != nil {
		return Fail(protocol.ReasonValidationFailed, protocol.AdviceFixAndRetry, 0)
	}
	if !crypto.IsStrongPassword(update.NewPassword) {
		return Fail(protocol.ReasonWeakPassword, protocol.AdviceFixAndRetry, 0)
	}

	view, err := ctx.Server.Repo.GetForPasswordChangeByUsername(username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Fail(protocol.ReasonSessionNotFound, protocol.AdviceDoNotRetry, 0)
		}
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}
	if !view.IsActive {
		return Fail(protocol.ReasonAccountSuspended, protocol.AdviceDoNotRetry, protocol.FlagIsAuthRelated)
	}

	if !crypto.VerifyPassword(update.OldPassword, view.PasswordSalt, view.PasswordHash) {
		return Fail(protocol.ReasonUnauthenticated, protocol.AdviceReauthenticate, protocol.FlagIsAuthRelated)
	}

	newSalt, newHash, err := crypto.HashPassword(update.NewPassword)
	defer func() {
		crypto.Wipe(newSalt[:])
		crypto.Wipe(newHash[:])
		crypto.Wipe(view.PasswordSalt[:])
		crypto.Wipe(view.PasswordHash[:])
	}()
	if err != nil {
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}

	rows, err := ctx.Server.Repo.UpdatePasswordIfMatches(view.ID, view.PasswordHash, newSalt, newHash)
	if err != nil {
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}
	if rows == 0 {
		return Fail(protocol.ReasonValidationFailed, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}

	return Ok()
}
