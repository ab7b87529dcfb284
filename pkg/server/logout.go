package server

import "github.com/duskforge/palisade/pkg/protocol"

// handleLogout requires an established username association, stamps the
// logout time, drops the association, and instructs the dispatcher to
// disconnect after delivering the DISCONNECT directive.
func handleLogout(ctx *HandlerContext) Result {
	username, ok := ctx.Server.Hub.GetUsername(ctx.Conn.ID)
	if !ok {
		return Fail(protocol.ReasonSessionNotFound, protocol.AdviceDoNotRetry, 0)
	}

	view, err := ctx.Server.Repo.GetAuthViewByUsername(username)
	if err == nil {
		_ = ctx.Server.Repo.StampLogout(view.ID, ctx.Server.now())
	}

	ctx.Conn.SetLevel(LevelNone)
	ctx.Server.Hub.Dissociate(ctx.Conn)

	return Disconnect(protocol.ReasonNone, protocol.AdviceNone, 0)
}
