// Package ledger holds the two pieces of server-side state the otherwise
// stateless ticket core depends on: the rolling issuance hash chain and
// the first-scan ledger.
package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"sync"
)

// Chain maintains the rolling hash linking successively issued tickets.
// Single writer, single secret: not a security boundary against the
// issuer itself.
type Chain struct {
	mu     sync.Mutex
	secret []byte
	last   string
}

func NewChain(secret []byte) *Chain {
	return &Chain{secret: secret}
}

// Restore sets the last hash loaded from durable storage. Call before the
// first Advance.
func (c *Chain) Restore(last string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = last
}

// Last returns the current head of the chain, empty if nothing was issued.
func (c *Chain) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Advance derives the next link from the current head and the new ticket's
// attributes, stores it as the new head and returns it.
func (c *Chain) Advance(ticketType, zone, origin, destination string, ts int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = Derive(c.secret, c.last, ticketType, zone, origin, destination, ts)
	return c.last
}

// Derive computes one chain link.
func Derive(secret []byte, prev, ticketType, zone, origin, destination string, ts int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(prev + "|" + ticketType + "|" + zone + "|" + origin + "|" + destination + "|" + strconv.FormatInt(ts, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
