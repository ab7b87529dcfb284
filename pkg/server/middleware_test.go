package server

import (
	"testing"

	"github.com/duskforge/palisade/pkg/crypto"
	"github.com/duskforge/palisade/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageClosingDropsSilentlyOnceTornDown(t *testing.T) {
	conn, _ := newTestConnection(t)
	conn.Disconnect()

	ctx := &DispatchContext{Conn: conn}

	res := stageClosing(ctx)
	assert.Equal(t, DropSilently, res.Decision)
	assert.Nil(t, res.Directive)
}

func TestStageClosingContinuesWhileConnectionIsLive(t *testing.T) {
	conn, _ := newTestConnection(t)

	ctx := &DispatchContext{Conn: conn}

	assert.Equal(t, Continue, stageClosing(ctx).Decision)
}

func TestStagePermissionRejectsBelowRequiredLevel(t *testing.T) {
	conn, _ := newTestConnection(t)
	conn.SetLevel(LevelGuest)

	ctx := &DispatchContext{
		Conn:       conn,
		Descriptor: &HandlerDescriptor{RequiredLevel: LevelUser},
	}

	res := stagePermission(ctx)
	require.Equal(t, ReplyAndStop, res.Decision)
	assert.Equal(t, protocol.ReasonUnauthorized, res.Directive.Reason)
	assert.Equal(t, protocol.AdviceDoNotRetry, res.Directive.Advice)
	assert.Equal(t, protocol.DirectiveFlags(0), res.Directive.Flags)
}

func TestStagePermissionAllowsAtOrAboveRequiredLevel(t *testing.T) {
	conn, _ := newTestConnection(t)
	conn.SetLevel(LevelAdmin)

	ctx := &DispatchContext{
		Conn:       conn,
		Descriptor: &HandlerDescriptor{RequiredLevel: LevelUser},
	}

	res := stagePermission(ctx)
	assert.Equal(t, Continue, res.Decision)
}

func TestStageTokenBucketBlocksWhenExhausted(t *testing.T) {
	s, _ := newTestServer(t)
	conn, _ := newTestConnection(t)

	s.bucketsMu.Lock()
	s.buckets[conn.ID] = NewTokenBucket(1, 0)
	s.bucketsMu.Unlock()

	ctx := &DispatchContext{Conn: conn, Server: s}

	assert.Equal(t, Continue, stageTokenBucket(ctx).Decision)
	res := stageTokenBucket(ctx)
	require.Equal(t, ReplyAndStop, res.Decision)
	assert.Equal(t, protocol.ReasonRateLimited, res.Directive.Reason)
}

func TestStageUnwrapRequiresEncryptionWhenDescriptorDemandsIt(t *testing.T) {
	conn, _ := newTestConnection(t)

	ctx := &DispatchContext{
		Conn:       conn,
		Frame:      &protocol.Frame{},
		Descriptor: &HandlerDescriptor{RequiresEncryption: true},
	}

	res := stageUnwrap(ctx)
	require.Equal(t, ReplyAndStop, res.Decision)
	assert.Equal(t, protocol.ReasonNotEncrypted, res.Directive.Reason)
	assert.Equal(t, protocol.AdviceDoNotRetry, res.Directive.Advice)
}

func TestStageUnwrapDecryptsFieldCarrierPayload(t *testing.T) {
	conn, _ := newTestConnection(t)

	var key [32]byte
	for i := range key {
		key[i] = byte(i + 1)
	}
	conn.SetSecret(key)

	sealedUser, err := crypto.SealToBase64(key, "rowan")
	require.NoError(t, err)
	sealedPass, err := crypto.SealToBase64(key, "hunter2")
	require.NoError(t, err)

	pkt := &protocol.CredentialsPacket{Username: sealedUser, Password: sealedPass}

	ctx := &DispatchContext{
		Conn:       conn,
		Frame:      &protocol.Frame{Flags: protocol.FlagEncrypted},
		Packet:     pkt,
		Descriptor: &HandlerDescriptor{RequiresEncryption: true},
	}

	res := stageUnwrap(ctx)
	require.Equal(t, Continue, res.Decision)
	assert.Equal(t, "rowan", pkt.Username)
	assert.Equal(t, "hunter2", pkt.Password)
}

func TestStageUnwrapRejectsUndecryptablePayload(t *testing.T) {
	conn, _ := newTestConnection(t)

	var key [32]byte
	for i := range key {
		key[i] = byte(i + 1)
	}
	conn.SetSecret(key)

	pkt := &protocol.CredentialsPacket{Username: "not-valid-ciphertext", Password: ""}

	ctx := &DispatchContext{
		Conn:       conn,
		Frame:      &protocol.Frame{Flags: protocol.FlagEncrypted},
		Packet:     pkt,
		Descriptor: &HandlerDescriptor{RequiresEncryption: true},
	}

	res := stageUnwrap(ctx)
	require.Equal(t, ReplyAndStop, res.Decision)
	assert.Equal(t, protocol.ReasonValidationFailed, res.Directive.Reason)
}
