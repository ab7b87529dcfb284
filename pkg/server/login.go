package server

import (
	"errors"
	"time"

	"github.com/duskforge/palisade/pkg/crypto"
	"github.com/duskforge/palisade/pkg/database"
	"github.com/duskforge/palisade/pkg/protocol"
)

const (
	maxFailedLogins = 5
	lockoutWindow   = 3 * time.Minute
)

func levelForRole(role database.Role) Level {
	switch role {
	case database.RoleAdmin:
		return LevelAdmin
	case database.RoleUser:
		return LevelUser
	case database.RoleGuest:
		return LevelGuest
	default:
		return LevelNone
	}
}

// handleLogin verifies a username/password pair against the credentials
// repository, enforcing a 5-failure/3-minute lockout window and a
// constant-cost fake verification path for unknown usernames so login
// timing does not leak which half of the check failed.
func handleLogin(ctx *HandlerContext) Result {
	cred, ok := ctx.Packet.(*protocol.CredentialsPacket)
	if !ok || ctx.DecodeErr != nil {
		return Fail(protocol.ReasonValidationFailed, protocol.AdviceFixAndRetry, 0)
	}
	if cred.Username == "" || cred.Password == "" {
		return Fail(protocol.ReasonMissingRequiredField, protocol.AdviceFixAndRetry, 0)
	}

	view, err := ctx.Server.Repo.GetAuthViewByUsername(cred.Username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			crypto.FakeVerify(cred.Password)
			return Fail(protocol.ReasonUnauthenticated, protocol.AdviceReauthenticate, protocol.FlagIsAuthRelated)
		}
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}

	now := ctx.Server.now()
	if view.FailedLoginCount >= maxFailedLogins && now < view.LastFailedLoginAt+lockoutWindow.Milliseconds() {
		return Fail(protocol.ReasonAccountLocked, protocol.AdviceBackoffRetry, protocol.FlagIsAuthRelated)
	}

	if !crypto.VerifyPassword(cred.Password, view.PasswordSalt, view.PasswordHash) {
		if err := ctx.Server.Repo.IncrementFailed(view.ID, now); err != nil {
			ctx.Server.Logger.Printf("login: increment failed-login count for %d: %v", view.ID, err)
		}
		return Fail(protocol.ReasonUnauthenticated, protocol.AdviceReauthenticate, protocol.FlagIsAuthRelated)
	}

	if !view.IsActive {
		return Fail(protocol.ReasonAccountSuspended, protocol.AdviceDoNotRetry, protocol.FlagIsAuthRelated)
	}

	if err := ctx.Server.Repo.ResetFailedAndStampLogin(view.ID, now); err != nil {
		return Fail(protocol.ReasonInternalError, protocol.AdviceBackoffRetry, protocol.FlagIsTransient)
	}

	ctx.Conn.SetLevel(levelForRole(view.Role))
	ctx.Server.Hub.AssociateUsername(ctx.Conn, view.Username)

	return Ok()
}
