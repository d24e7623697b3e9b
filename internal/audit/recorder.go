// Package audit keeps a Postgres trail of issued tickets, one row per
// issuance with the chain link and its predecessor; the chain-audit
// command recomputes the chain from it.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/aett-transit/ticket-service/internal/model"
	"gorm.io/gorm"
)

type IssuanceRecord struct {
	ID            uint64 `gorm:"primaryKey" json:"id"`
	TicketID      string `gorm:"type:varchar(64);uniqueIndex;not null" json:"ticket_id"`
	TicketType    string `gorm:"type:varchar(32);not null" json:"ticket_type"`
	Zone          string `gorm:"type:varchar(64)" json:"zone"`
	Origin        string `gorm:"type:varchar(255)" json:"origin"`
	Destination   string `gorm:"type:varchar(255)" json:"destination"`
	Personalized  bool   `json:"personalized"`
	IssuedAt      int64  `gorm:"not null" json:"issued_at"`
	ExpiresAt     int64  `gorm:"not null" json:"expires_at"`
	PrevChainHash string `gorm:"type:varchar(64)" json:"prev_chain_hash"`
	ChainHash     string `gorm:"type:varchar(64);not null" json:"chain_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// Recorder writes issuance records (best-effort, does not block the API).
// With a nil db every method is a no-op.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Enabled() bool {
	return r != nil && r.db != nil
}

// Record inserts one issuance row. prev is the chain head the payload's
// chain_hash was derived from.
func (r *Recorder) Record(ctx context.Context, p *model.TicketPayload, prev string) error {
	if !r.Enabled() {
		return nil
	}
	rec := IssuanceRecord{
		TicketID:      p.TicketID,
		TicketType:    string(p.TicketType),
		Zone:          p.Zone,
		Origin:        p.Origin,
		Destination:   p.Destination,
		Personalized:  p.PersonalizedID != "",
		IssuedAt:      p.IssuedAt,
		ExpiresAt:     p.ExpiresAt,
		PrevChainHash: prev,
		ChainHash:     p.ChainHash,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

// RecordAsync calls Record in its own goroutine; failures are logged only.
func (r *Recorder) RecordAsync(p *model.TicketPayload, prev string) {
	if !r.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Record(ctx, p, prev); err != nil {
			log.Printf("audit: record issuance %s: %v", p.TicketID, err)
		}
	}()
}

// Records returns all issuance rows. Insertion order is not issuance
// order (rows are written by detached goroutines); VerifyChain follows
// the prev_chain_hash linkage instead.
func (r *Recorder) Records(ctx context.Context) ([]IssuanceRecord, error) {
	var items []IssuanceRecord
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
