// Package token implements the ticket token wire format: three unpadded
// URL-safe base64 segments (header, payload, signature) joined by ".",
// signed with HMAC-SHA256 over the first two segments.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aett-transit/ticket-service/internal/model"
)

// Verification failure reasons.
var (
	ErrMalformedToken   = errors.New("MalformedToken")
	ErrInvalidSignature = errors.New("InvalidSignature")
	ErrInvalidPayload   = errors.New("InvalidPayload")
	ErrExpired          = errors.New("Expired")
	ErrInvalidIssuer    = errors.New("InvalidIssuer")
)

// headerJSON is the fixed token header, covered by the signature.
const headerJSON = `{"alg":"HS256","typ":"ticket"}`

var b64 = base64.RawURLEncoding

type Codec struct {
	secret []byte
	issuer string
}

func NewCodec(secret []byte, issuer string) *Codec {
	return &Codec{secret: secret, issuer: issuer}
}

// Encode serializes the payload and returns the signed token string.
func (c *Codec) Encode(p *model.TicketPayload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("token: marshal payload: %w", err)
	}
	signingInput := b64.EncodeToString([]byte(headerJSON)) + "." + b64.EncodeToString(body)
	return signingInput + "." + b64.EncodeToString(c.sign(signingInput)), nil
}

// DecodeAndVerify validates a token string and returns its payload. The
// signature is checked before the payload is interpreted. now is a Unix
// timestamp.
func (c *Codec) DecodeAndVerify(tok string, now int64) (*model.TicketPayload, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	want := b64.EncodeToString(c.sign(parts[0] + "." + parts[1]))
	if !hmac.Equal([]byte(want), []byte(parts[2])) {
		return nil, ErrInvalidSignature
	}

	body, err := b64.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidPayload
	}
	var p model.TicketPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ErrInvalidPayload
	}
	if p.TicketID == "" || p.ExpiresAt == 0 {
		return nil, ErrInvalidPayload
	}

	if now > p.ExpiresAt {
		return nil, ErrExpired
	}
	if p.Issuer != c.issuer {
		return nil, ErrInvalidIssuer
	}
	return &p, nil
}

func (c *Codec) sign(input string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(input))
	return mac.Sum(nil)
}
