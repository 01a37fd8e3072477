package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/warmtransfer/pkg/contextbuf"
	"github.com/aretw0/warmtransfer/pkg/domain"
)

// KeySize is the AES-256 key length.
const KeySize = 32

const sealedPrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey seals new utterances.
	ActiveKey []byte
	// FallbackKeys are tried in order when ActiveKey cannot open an entry,
	// so keys can rotate while sessions are live.
	FallbackKeys [][]byte
}

// ParseKey decodes a base64 key and checks its length.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: key is not base64: %v", domain.ErrInvalidArgument, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", domain.ErrInvalidArgument, KeySize, len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	contextbuf.Store
	config EncryptionConfig
}

// NewEncryption seals utterance text with AES-GCM before it is stored and opens
// it again on read. Sequence numbers and timestamps stay in the clear.
func NewEncryption(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != KeySize {
		return nil, fmt.Errorf("%w: active key must be %d bytes (AES-256)", domain.ErrInvalidArgument, KeySize)
	}
	for i, k := range config.FallbackKeys {
		if len(k) != KeySize {
			return nil, fmt.Errorf("%w: fallback key %d must be %d bytes", domain.ErrInvalidArgument, i, KeySize)
		}
	}
	return func(next contextbuf.Store) contextbuf.Store {
		return &encryptionMiddleware{Store: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Append(ctx context.Context, session, text string) (domain.ContextEntry, error) {
	text, err := contextbuf.Normalize(text)
	if err != nil {
		return domain.ContextEntry{}, err
	}
	sealed, err := seal([]byte(text), m.config.ActiveKey)
	if err != nil {
		return domain.ContextEntry{}, fmt.Errorf("failed to encrypt utterance: %w", err)
	}
	entry, err := m.Store.Append(ctx, session, sealedPrefix+base64.StdEncoding.EncodeToString(sealed))
	if err != nil {
		return domain.ContextEntry{}, err
	}
	entry.Text = text
	return entry, nil
}

func (m *encryptionMiddleware) Entries(ctx context.Context, session string, limit int) ([]domain.ContextEntry, error) {
	entries, err := m.Store.Entries(ctx, session, limit)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		plain, err := m.open(entries[i].Text)
		if err != nil {
			return nil, fmt.Errorf("session %s entry %d: %w", session, entries[i].Seq, err)
		}
		entries[i].Text = plain
	}
	return entries, nil
}

func (m *encryptionMiddleware) Snapshot(ctx context.Context, session string, limit int) ([]string, error) {
	entries, err := m.Entries(ctx, session, limit)
	if err != nil {
		return nil, err
	}
	return contextbuf.Texts(entries), nil
}

func (m *encryptionMiddleware) open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return "", errors.New("utterance is missing encrypted envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plain, err := openWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func openWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := open(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := open(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func open(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
