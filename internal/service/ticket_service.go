package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aett-transit/ticket-service/internal/audit"
	"github.com/aett-transit/ticket-service/internal/kafka"
	"github.com/aett-transit/ticket-service/internal/ledger"
	"github.com/aett-transit/ticket-service/internal/model"
	"github.com/aett-transit/ticket-service/internal/storage"
	"github.com/aett-transit/ticket-service/internal/token"
)

var ErrUnknownTicketType = errors.New("unknown ticket type")

// Deps wires the ticket service (Events is an interface for mocking in
// tests).
type Deps struct {
	Codec  *token.Codec
	Chain  *ledger.Chain
	Scans  *ledger.Scans
	Store  *storage.FileStore
	Audit  *audit.Recorder
	Events kafka.TicketEventProducer
	Issuer string
}

// TicketService issues and verifies tickets. One mutex serializes every
// chain/scan mutation together with the state save.
type TicketService struct {
	mu sync.Mutex
	d  Deps

	// now is swapped in tests.
	now func() time.Time
}

func NewTicketService(d Deps) *TicketService {
	return &TicketService{d: d, now: time.Now}
}

type IssueParams struct {
	TicketType     model.TicketType
	Zone           string
	Origin         string
	Destination    string
	PersonalizedID string
}

type IssueResult struct {
	Token   string
	Payload *model.TicketPayload
}

// Issue creates a new ticket: advances the hash chain, signs the token
// and persists the new chain head.
func (s *TicketService) Issue(ctx context.Context, p IssueParams) (*IssueResult, error) {
	dur, ok := p.TicketType.Duration()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTicketType, p.TicketType)
	}
	id, err := newTicketID()
	if err != nil {
		return nil, fmt.Errorf("ticket id: %w", err)
	}
	now := s.now().Unix()

	payload := &model.TicketPayload{
		TicketID:       id,
		TicketType:     p.TicketType,
		Zone:           p.Zone,
		Origin:         p.Origin,
		Destination:    p.Destination,
		IssuedAt:       now,
		ExpiresAt:      now + int64(dur.Seconds()),
		Issuer:         s.d.Issuer,
		PersonalizedID: p.PersonalizedID,
	}

	s.mu.Lock()
	prev := s.d.Chain.Last()
	payload.ChainHash = s.d.Chain.Advance(string(p.TicketType), p.Zone, p.Origin, p.Destination, now)
	s.persistLocked()
	s.mu.Unlock()

	tok, err := s.d.Codec.Encode(payload)
	if err != nil {
		return nil, err
	}

	s.d.Audit.RecordAsync(payload, prev)
	if s.d.Events != nil {
		s.d.Events.ProduceTicketEvent(ctx, "ticket.issued", map[string]interface{}{
			"ticket_id":   payload.TicketID,
			"ticket_type": string(payload.TicketType),
			"zone":        payload.Zone,
			"chain_hash":  payload.ChainHash,
			"expires_at":  payload.ExpiresAt,
		})
	}
	return &IssueResult{Token: tok, Payload: payload}, nil
}

type VerifyResult struct {
	Valid          bool
	Reason         string
	Payload        *model.TicketPayload
	FirstCheckedAt int64
	AlreadyChecked bool
}

// Verify checks a token and, when it is valid, records the scan. A repeat
// scan stays valid; already-checked is informational, not a rejection.
func (s *TicketService) Verify(ctx context.Context, tok string) *VerifyResult {
	now := s.now().Unix()
	payload, err := s.d.Codec.DecodeAndVerify(tok, now)
	if err != nil {
		if s.d.Events != nil {
			s.d.Events.ProduceTicketEvent(ctx, "ticket.verified", map[string]interface{}{
				"valid":  false,
				"reason": err.Error(),
			})
		}
		return &VerifyResult{Valid: false, Reason: err.Error()}
	}

	s.mu.Lock()
	first, already := s.d.Scans.RecordScan(payload.TicketID, now)
	s.persistLocked()
	s.mu.Unlock()

	if s.d.Events != nil {
		s.d.Events.ProduceTicketEvent(ctx, "ticket.verified", map[string]interface{}{
			"valid":           true,
			"ticket_id":       payload.TicketID,
			"already_checked": already,
		})
	}
	return &VerifyResult{
		Valid:          true,
		Payload:        payload,
		FirstCheckedAt: first,
		AlreadyChecked: already,
	}
}

// ScanCount reports the number of tickets seen at least once.
func (s *TicketService) ScanCount() int {
	return s.d.Scans.Len()
}

// persistLocked writes the state snapshot; callers hold s.mu. A failed
// save is logged and the in-memory mutation stands.
func (s *TicketService) persistLocked() {
	st := &storage.State{
		LastChainHash: s.d.Chain.Last(),
		FirstScan:     s.d.Scans.Snapshot(),
	}
	if err := s.d.Store.Save(st); err != nil {
		log.Printf("service: save state: %v", err)
	}
}

func newTicketID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
