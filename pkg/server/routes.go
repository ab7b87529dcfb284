package server

import (
	"time"

	"github.com/duskforge/palisade/pkg/protocol"
)

// defaultAuthTimeout is the 4s default declared for login/register-class
// operations.
const defaultAuthTimeout = 4 * time.Second

// registerHandlers wires every operation's descriptor into r. This table
// is the single source of truth for each opcode's access policy; the
// registry is frozen after this call returns.
func registerHandlers(r *HandlerRegistry) {
	r.Register(&HandlerDescriptor{
		Opcode:             protocol.OpHandshake,
		RequiredLevel:      LevelNone,
		RequiresEncryption: false,
		Timeout:            defaultAuthTimeout,
		RateLimitMaxCalls:  5,
		RateLimitWindow:    10 * time.Second,
		Handle:             handleHandshake,
	})

	r.Register(&HandlerDescriptor{
		Opcode:             protocol.OpRegister,
		RequiredLevel:      LevelGuest,
		RequiresEncryption: true,
		Timeout:            defaultAuthTimeout,
		RateLimitMaxCalls:  5,
		RateLimitWindow:    time.Minute,
		Handle:             handleRegister,
	})

	r.Register(&HandlerDescriptor{
		Opcode:             protocol.OpLogin,
		RequiredLevel:      LevelGuest,
		RequiresEncryption: true,
		Timeout:            defaultAuthTimeout,
		RateLimitMaxCalls:  10,
		RateLimitWindow:    time.Minute,
		Handle:             handleLogin,
		Cancellable:        true,
	})

	r.Register(&HandlerDescriptor{
		Opcode:             protocol.OpLogout,
		RequiredLevel:      LevelUser,
		RequiresEncryption: false,
		Timeout:            2 * time.Second,
		RateLimitMaxCalls:  5,
		RateLimitWindow:    time.Minute,
		Handle:             handleLogout,
	})

	r.Register(&HandlerDescriptor{
		Opcode:             protocol.OpChangePassword,
		RequiredLevel:      LevelUser,
		RequiresEncryption: true,
		Timeout:            defaultAuthTimeout,
		RateLimitMaxCalls:  5,
		RateLimitWindow:    time.Minute,
		Handle:             handleChangePassword,
	})
}
