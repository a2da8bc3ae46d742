// Package token implements the stateless pending-rendition capability
// token: an HMAC-signed encoding of exactly the inputs needed to resume a
// deferred render, so no server-side session state is required.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quillcms/renditions/internal/model"
)

// Pending is the payload carried by a token. The retry counter is not part
// of the token; it travels as a query parameter on each poll.
type Pending struct {
	Path  string              `json:"p"`
	Scale int                 `json:"s"`
	Spec  model.RenditionSpec `json:"r"`
}

// Signer signs and verifies pending tokens with a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer for the configured token secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Encode serializes and signs a pending request. The result is URL-safe.
func (s *Signer) Encode(p Pending) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode pending token: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + s.sign(payload), nil
}

// Decode verifies a token's signature and recovers the pending request.
// Any malformed or tampered token yields model.ErrBadToken without detail,
// so the endpoint is not a signing oracle.
func (s *Signer) Decode(tok string) (Pending, error) {
	body, sig, ok := strings.Cut(tok, ".")
	if !ok {
		return Pending{}, model.ErrBadToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Pending{}, model.ErrBadToken
	}
	if !hmac.Equal([]byte(s.sign(payload)), []byte(sig)) {
		return Pending{}, model.ErrBadToken
	}
	var p Pending
	if err := json.Unmarshal(payload, &p); err != nil {
		return Pending{}, model.ErrBadToken
	}
	return p, nil
}
