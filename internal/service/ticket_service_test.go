package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aett-transit/ticket-service/internal/audit"
	"github.com/aett-transit/ticket-service/internal/ledger"
	"github.com/aett-transit/ticket-service/internal/model"
	"github.com/aett-transit/ticket-service/internal/storage"
	"github.com/aett-transit/ticket-service/internal/token"
)

const (
	testIssuer = "aett"
	testSecret = "test-secret"
)

type capturedEvent struct {
	event   string
	payload map[string]interface{}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (r *eventRecorder) ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, capturedEvent{event: event, payload: payload})
}

// newTestService builds a service over a fresh state file with a
// controllable clock.
func newTestService(t *testing.T, statePath string, clock *int64) (*TicketService, *eventRecorder) {
	t.Helper()
	store := storage.NewFileStore(statePath)
	st, err := store.Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	chain := ledger.NewChain([]byte(testSecret))
	chain.Restore(st.LastChainHash)
	scans := ledger.NewScans()
	scans.Restore(st.FirstScan)

	events := &eventRecorder{}
	svc := NewTicketService(Deps{
		Codec:  token.NewCodec([]byte(testSecret), testIssuer),
		Chain:  chain,
		Scans:  scans,
		Store:  store,
		Audit:  audit.NewRecorder(nil),
		Events: events,
		Issuer: testIssuer,
	})
	svc.now = func() time.Time { return time.Unix(*clock, 0) }
	return svc, events
}

func TestIssueAndVerifyScenario(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, statePath, &now)
	ctx := context.Background()

	res, err := svc.Issue(ctx, IssueParams{
		TicketType:  model.TicketTypeSingle,
		Zone:        "A",
		Origin:      "Station1",
		Destination: "Station2",
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p := res.Payload
	if p.TicketID == "" || len(p.TicketID) != 32 {
		t.Errorf("ticket_id = %q, want 32 hex chars", p.TicketID)
	}
	if p.ExpiresAt != now+3600 {
		t.Errorf("expires_at = %d, want %d", p.ExpiresAt, now+3600)
	}
	if p.ExpiresAt <= p.IssuedAt {
		t.Error("expires_at must be after issued_at")
	}
	if p.ChainHash == "" {
		t.Error("issued ticket missing chain_hash")
	}
	if p.Issuer != testIssuer {
		t.Errorf("issuer = %q", p.Issuer)
	}

	// First verification inside the window.
	now += 600
	v1 := svc.Verify(ctx, res.Token)
	if !v1.Valid {
		t.Fatalf("first verify invalid: %s", v1.Reason)
	}
	if v1.AlreadyChecked {
		t.Error("first verify reported already_checked")
	}
	if v1.FirstCheckedAt != now {
		t.Errorf("first_checked_at = %d, want %d", v1.FirstCheckedAt, now)
	}

	// Second verification later, still inside the window.
	firstScanAt := now
	now += 600
	v2 := svc.Verify(ctx, res.Token)
	if !v2.Valid {
		t.Fatalf("second verify invalid: %s", v2.Reason)
	}
	if !v2.AlreadyChecked {
		t.Error("second verify must report already_checked")
	}
	if v2.FirstCheckedAt != firstScanAt {
		t.Errorf("first_checked_at = %d, want the first scan's %d", v2.FirstCheckedAt, firstScanAt)
	}

	// After expiry.
	now = p.ExpiresAt + 1
	v3 := svc.Verify(ctx, res.Token)
	if v3.Valid {
		t.Fatal("expired ticket verified as valid")
	}
	if v3.Reason != "Expired" {
		t.Errorf("reason = %q, want Expired", v3.Reason)
	}
}

func TestIssueUnknownTicketType(t *testing.T) {
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, filepath.Join(t.TempDir(), "state.json"), &now)
	if _, err := svc.Issue(context.Background(), IssueParams{TicketType: "annual"}); err == nil {
		t.Fatal("expected error for unknown ticket type")
	}
}

func TestIssueChainsSequentially(t *testing.T) {
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, filepath.Join(t.TempDir(), "state.json"), &now)
	ctx := context.Background()

	r1, err := svc.Issue(ctx, IssueParams{TicketType: model.TicketTypeDay, Zone: "AB"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r2, err := svc.Issue(ctx, IssueParams{TicketType: model.TicketTypeDay, Zone: "AB"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if r1.Payload.ChainHash == r2.Payload.ChainHash {
		t.Error("consecutive issuances carry the same chain hash")
	}
	want := ledger.Derive([]byte(testSecret), r1.Payload.ChainHash, "day", "AB", "", "", now)
	if r2.Payload.ChainHash != want {
		t.Error("second chain hash does not chain off the first")
	}
}

func TestValidityWindowPerType(t *testing.T) {
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, filepath.Join(t.TempDir(), "state.json"), &now)
	ctx := context.Background()

	windows := map[model.TicketType]int64{
		model.TicketTypeSingle:  3600,
		model.TicketTypeTwoHour: 2 * 3600,
		model.TicketTypeDay:     24 * 3600,
		model.TicketTypeMonthly: 30 * 24 * 3600,
	}
	for tt, want := range windows {
		res, err := svc.Issue(ctx, IssueParams{TicketType: tt})
		if err != nil {
			t.Fatalf("Issue(%s): %v", tt, err)
		}
		if got := res.Payload.ExpiresAt - res.Payload.IssuedAt; got != want {
			t.Errorf("%s window = %d, want %d", tt, got, want)
		}
	}
}

func TestPersistenceSurvivesRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, statePath, &now)
	ctx := context.Background()

	res, err := svc.Issue(ctx, IssueParams{TicketType: model.TicketTypeTwoHour, Zone: "B"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	now += 100
	if v := svc.Verify(ctx, res.Token); !v.Valid || v.AlreadyChecked {
		t.Fatalf("first verify: valid=%v already=%v", v.Valid, v.AlreadyChecked)
	}
	firstScanAt := now

	// Restart: rebuild everything from the state file.
	now += 100
	restarted, _ := newTestService(t, statePath, &now)
	v := restarted.Verify(ctx, res.Token)
	if !v.Valid {
		t.Fatalf("verify after restart: %s", v.Reason)
	}
	if !v.AlreadyChecked {
		t.Error("scan history lost across restart")
	}
	if v.FirstCheckedAt != firstScanAt {
		t.Errorf("first_checked_at = %d, want %d", v.FirstCheckedAt, firstScanAt)
	}

	// The chain head survived too: the next issuance chains off it.
	r2, err := restarted.Issue(ctx, IssueParams{TicketType: model.TicketTypeSingle})
	if err != nil {
		t.Fatalf("Issue after restart: %v", err)
	}
	want := ledger.Derive([]byte(testSecret), res.Payload.ChainHash, "single", "", "", "", now)
	if r2.Payload.ChainHash != want {
		t.Error("issuance after restart did not chain off the persisted head")
	}
}

func TestSaveFailureDoesNotAbortOperations(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, filepath.Join(dir, "state.json"), &now)
	ctx := context.Background()

	// Every save now fails; operations must still succeed and the
	// in-memory mutation must stand.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Issue(ctx, IssueParams{TicketType: model.TicketTypeSingle, Zone: "A"})
	if err != nil {
		t.Fatalf("Issue with failing store: %v", err)
	}
	now += 10
	v1 := svc.Verify(ctx, res.Token)
	if !v1.Valid || v1.AlreadyChecked {
		t.Fatalf("first verify: valid=%v already=%v reason=%s", v1.Valid, v1.AlreadyChecked, v1.Reason)
	}
	now += 10
	v2 := svc.Verify(ctx, res.Token)
	if !v2.Valid || !v2.AlreadyChecked || v2.FirstCheckedAt != v1.FirstCheckedAt {
		t.Fatalf("second verify: %+v, want already_checked with first scan's timestamp", v2)
	}
}

func TestVerifyEmitsEvents(t *testing.T) {
	now := int64(1_700_000_000)
	svc, events := newTestService(t, filepath.Join(t.TempDir(), "state.json"), &now)
	ctx := context.Background()

	res, err := svc.Issue(ctx, IssueParams{TicketType: model.TicketTypeSingle, Zone: "A"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	svc.Verify(ctx, res.Token)
	svc.Verify(ctx, "garbage")

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.events) != 3 {
		t.Fatalf("got %d events, want 3", len(events.events))
	}
	if events.events[0].event != "ticket.issued" {
		t.Errorf("event[0] = %s", events.events[0].event)
	}
	if events.events[1].event != "ticket.verified" || events.events[1].payload["valid"] != true {
		t.Errorf("event[1] = %+v", events.events[1])
	}
	if events.events[2].payload["valid"] != false || events.events[2].payload["reason"] != "MalformedToken" {
		t.Errorf("event[2] = %+v", events.events[2])
	}
}

func TestConcurrentIssueKeepsChainConsistent(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, statePath, &now)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	hashes := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Issue(ctx, IssueParams{TicketType: model.TicketTypeSingle, Zone: "A"})
			if err != nil {
				t.Errorf("Issue: %v", err)
				return
			}
			hashes[i] = res.Payload.ChainHash
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, h := range hashes {
		if seen[h] {
			t.Fatalf("duplicate chain hash %q: two issuances derived from the same head", h)
		}
		seen[h] = true
	}
}
