package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/aretw0/warmtransfer/pkg/contextbuf"
	"github.com/aretw0/warmtransfer/pkg/contextbuf/middleware"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, middleware.KeySize)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

func TestRedaction_MasksBeforeStore(t *testing.T) {
	ctx := context.Background()
	inner := contextbuf.NewMemory()
	mw, err := middleware.NewRedaction([]string{`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`, `[\w.+-]+@[\w-]+\.[\w.]+`})
	require.NoError(t, err)
	buf := mw(inner)

	e, err := buf.Append(ctx, "r1", "  card 4111 1111 1111 1111, mail jane@example.com  ")
	require.NoError(t, err)
	assert.Equal(t, "card ***, mail ***", e.Text)

	stored, err := inner.Snapshot(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"card ***, mail ***"}, stored)
}

func TestRedaction_BadPattern(t *testing.T) {
	_, err := middleware.NewRedaction([]string{"("})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEncryption_Roundtrip(t *testing.T) {
	ctx := context.Background()
	inner := contextbuf.NewMemory()
	mw, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	buf := mw(inner)

	e, err := buf.Append(ctx, "r1", "my account number is 42")
	require.NoError(t, err)
	assert.Equal(t, "my account number is 42", e.Text)
	assert.Equal(t, uint64(1), e.Seq)

	raw, err := inner.Snapshot(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.NotContains(t, raw[0], "account")
	assert.True(t, strings.HasPrefix(raw[0], "enc:v1:"))

	got, err := buf.Snapshot(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"my account number is 42"}, got)
}

func TestEncryption_KeyRotation(t *testing.T) {
	ctx := context.Background()
	inner := contextbuf.NewMemory()
	oldKey, newKey := generateKey(t), generateKey(t)

	mwOld, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, err)
	_, err = mwOld(inner).Append(ctx, "r1", "sealed with the old key")
	require.NoError(t, err)

	mwNew, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	require.NoError(t, err)
	got, err := mwNew(inner).Snapshot(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"sealed with the old key"}, got)

	mwOther, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: newKey})
	require.NoError(t, err)
	_, err = mwOther(inner).Snapshot(ctx, "r1", 0)
	assert.Error(t, err)
}

func TestEncryption_RejectsBlankAndBadKeys(t *testing.T) {
	mw, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mw(contextbuf.NewMemory()).Append(context.Background(), "r1", "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	key, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(generateKey(t)))
	require.NoError(t, err)
	assert.Len(t, key, middleware.KeySize)
}

func TestChain_RedactsThenSeals(t *testing.T) {
	ctx := context.Background()
	inner := contextbuf.NewMemory()
	redact, err := middleware.NewRedaction([]string{`secret`})
	require.NoError(t, err)
	seal, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	buf := middleware.Chain(inner, redact, seal)
	_, err = buf.Append(ctx, "r1", "the secret word")
	require.NoError(t, err)

	got, err := buf.Snapshot(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"the *** word"}, got)

	require.NoError(t, buf.Drop(ctx, "r1"))
	got, err = buf.Snapshot(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
