package model

import "time"

type TicketType string

const (
	TicketTypeSingle  TicketType = "single"
	TicketTypeTwoHour TicketType = "2h"
	TicketTypeDay     TicketType = "day"
	TicketTypeMonthly TicketType = "monthly"
)

// Duration returns the validity window for the ticket type, or false for
// an unknown type.
func (t TicketType) Duration() (time.Duration, bool) {
	switch t {
	case TicketTypeSingle:
		return time.Hour, true
	case TicketTypeTwoHour:
		return 2 * time.Hour, true
	case TicketTypeDay:
		return 24 * time.Hour, true
	case TicketTypeMonthly:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

// TicketPayload is the signed claim set embedded in a ticket token. The
// token is the ticket: once encoded it is never updated, and JSON field
// order (struct declaration order) is the canonical serialization.
type TicketPayload struct {
	TicketID       string     `json:"ticket_id"`
	TicketType     TicketType `json:"ticket_type"`
	Zone           string     `json:"zone"`
	Origin         string     `json:"origin"`
	Destination    string     `json:"destination"`
	IssuedAt       int64      `json:"issued_at"`
	ExpiresAt      int64      `json:"expires_at"`
	Issuer         string     `json:"issuer"`
	ChainHash      string     `json:"chain_hash,omitempty"`
	PersonalizedID string     `json:"personalized_id,omitempty"`
}
