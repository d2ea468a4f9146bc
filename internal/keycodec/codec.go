// Package keycodec issues API key secrets and derives the keyed hash that is
// the only form ever stored.
package keycodec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
)

type Codec struct {
	secret []byte
	prefix string
}

// New returns a codec keyed by the server secret. prefix namespaces the
// generated secrets, e.g. "sk_live_" or "sk_test_".
func New(serverSecret, prefix string) *Codec {
	return &Codec{
		secret: []byte(serverSecret),
		prefix: prefix,
	}
}

type Generated struct {
	RawKey        string
	Hash          string
	DisplayPrefix string
}

// Generate draws apikey.SecretBytes of randomness. A failing entropy source
// is not recoverable, so it panics rather than returning an error.
func (c *Codec) Generate() Generated {
	b := make([]byte, apikey.SecretBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("keycodec: crypto/rand failed: %v", err))
	}

	raw := c.prefix + base64.RawURLEncoding.EncodeToString(b)

	return Generated{
		RawKey:        raw,
		Hash:          c.Hash(raw),
		DisplayPrefix: raw[:len(c.prefix)+apikey.DisplayPrefixLength] + apikey.DisplayEllipsis,
	}
}

// Hash returns hex(HMAC-SHA256(serverSecret, rawKey)).
func (c *Codec) Hash(rawKey string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(rawKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the hash and compares it in constant time.
func (c *Codec) Verify(rawKey, storedHash string) bool {
	return hmac.Equal([]byte(c.Hash(rawKey)), []byte(storedHash))
}
