package audit

import (
	"fmt"

	"github.com/aett-transit/ticket-service/internal/ledger"
)

// VerifyChain checks that the records form one unbroken hash chain under
// the secret and returns the head hash. Records are linked through
// prev_chain_hash, not table order: rows are inserted by detached
// goroutines and may land out of issuance order, which is not tampering.
func VerifyChain(secret []byte, records []IssuanceRecord) (string, error) {
	byPrev := make(map[string]*IssuanceRecord, len(records))
	for i := range records {
		rec := &records[i]
		if other, dup := byPrev[rec.PrevChainHash]; dup {
			return "", fmt.Errorf("tickets %s and %s both chain off %q", other.TicketID, rec.TicketID, rec.PrevChainHash)
		}
		byPrev[rec.PrevChainHash] = rec
	}

	prev := ""
	for n := 0; n < len(records); n++ {
		rec, ok := byPrev[prev]
		if !ok {
			return "", fmt.Errorf("chain breaks after %q: %d of %d records linked", prev, n, len(records))
		}
		want := ledger.Derive(secret, prev, rec.TicketType, rec.Zone, rec.Origin, rec.Destination, rec.IssuedAt)
		if rec.ChainHash != want {
			return "", fmt.Errorf("ticket %s: stored hash does not recompute", rec.TicketID)
		}
		prev = rec.ChainHash
	}
	return prev, nil
}
