package webhooks

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/goliatone/go-tmsync/core"
)

// Signer computes delivery signatures for a shared secret.
type Signer struct {
	key []byte
}

// NewSigner decodes secret as base64 and falls back to its raw bytes when it
// is not valid base64.
func NewSigner(secret string) (Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Signer{}, core.NewError(core.ErrInvalidSignature, "webhooks: signature secret is required", nil)
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil || len(key) == 0 {
		key = []byte(secret)
	}
	return Signer{key: key}, nil
}

func (s Signer) Sum(body []byte) []byte {
	mac := hmac.New(sha512.New, s.key)
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// Sign returns base64(HMAC-SHA512(body, key)).
func (s Signer) Sign(body []byte) string {
	return base64.StdEncoding.EncodeToString(s.Sum(body))
}

type Verifier struct {
	Signer Signer
}

func NewVerifier(secret string) (*Verifier, error) {
	signer, err := NewSigner(secret)
	if err != nil {
		return nil, err
	}
	return &Verifier{Signer: signer}, nil
}

// Verify fails closed: a missing, undecodable or mismatching signature is
// reported as ErrInvalidSignature.
func (v *Verifier) Verify(body []byte, signature string) error {
	if v == nil || len(v.Signer.key) == 0 {
		return core.NewError(core.ErrInvalidSignature, "webhooks: verifier has no secret", nil)
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return core.NewError(core.ErrInvalidSignature, "webhooks: signature header is required", nil)
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return core.NewError(core.ErrInvalidSignature, "webhooks: signature is not base64", nil)
	}
	if subtle.ConstantTimeCompare(decoded, v.Signer.Sum(body)) != 1 {
		return core.NewError(core.ErrInvalidSignature, "webhooks: signature verification failed", nil)
	}
	return nil
}
