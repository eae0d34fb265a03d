package ticket

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mvarela/triage/internal/evidence"
	"github.com/mvarela/triage/internal/log"
	"github.com/mvarela/triage/internal/resolution"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ============================================================
// Fixture: a real machine over scripted collaborators
// ============================================================

type scriptedRetriever struct{ fragments []evidence.Fragment }

func (s *scriptedRetriever) Retrieve(ctx context.Context, query string) ([]evidence.Fragment, error) {
	return s.fragments, nil
}

type scriptedScorer struct{}

func (s *scriptedScorer) ScoredSearch(ctx context.Context, text string, k int) ([]evidence.ScoredFragment, error) {
	return []evidence.ScoredFragment{{Distance: 0.1}}, nil
}

type scriptedGenerator struct{ answer string }

func (s *scriptedGenerator) Generate(ctx context.Context, question, docContext string) (string, error) {
	return s.answer, nil
}

type scriptedClassifier struct{ decision string }

func (s *scriptedClassifier) Classify(ctx context.Context, question, docContext string, confidence float64) (string, error) {
	return s.decision, nil
}

type scriptedEstimator struct{ score float64 }

func (s *scriptedEstimator) Score(query, answer string, fragments []evidence.Fragment, scored []evidence.ScoredFragment) float64 {
	if len(fragments) == 0 {
		return 0
	}
	return s.score
}

// newLedger wires a ledger over a real resolution machine whose routing is
// controlled by decision.
func newLedger(decision string) (*Ledger, *resolution.MemoryCheckpointer) {
	cps := resolution.NewMemoryCheckpointer()
	machine := resolution.New(
		&scriptedRetriever{fragments: []evidence.Fragment{
			{ID: "f1", Content: "Refund policy text.", Source: "billing.pdf"},
		}},
		&scriptedScorer{},
		&scriptedGenerator{answer: "Refunds take 30 days."},
		&scriptedClassifier{decision: decision},
		&scriptedEstimator{score: 0.8},
		cps,
		resolution.Config{AutoThreshold: 0.6},
		log.NewNop(),
	)
	return New(machine, cps, log.NewNop()), cps
}

// ============================================================
// Create
// ============================================================

func TestCreate_AutomaticTicketFinalizes(t *testing.T) {
	ledger, _ := newLedger("automatic")

	tk, err := ledger.Create(context.Background(), "how long do refunds take", "alex")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !strings.HasPrefix(tk.ID, "TK-") {
		t.Errorf("ticket id = %q, want TK- prefix", tk.ID)
	}
	if tk.Node != resolution.NodeFinalized {
		t.Errorf("Node = %q, want Finalized", tk.Node)
	}
	if tk.State.FinalAnswer == nil {
		t.Error("FinalAnswer is nil for an automatic ticket")
	}
	if tk.User != "alex" {
		t.Errorf("User = %q, want %q", tk.User, "alex")
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	ledger, _ := newLedger("automatic")
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		tk, err := ledger.Create(ctx, "q", "u")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[tk.ID] {
			t.Fatalf("duplicate ticket id %q", tk.ID)
		}
		seen[tk.ID] = true
	}
}

// ============================================================
// Resume
// ============================================================

func TestScenarioC_ResumeWithHumanAnswer(t *testing.T) {
	ledger, _ := newLedger("escalated")
	ctx := context.Background()

	tk, err := ledger.Create(ctx, "cancel my contract", "alex")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tk.Node != resolution.NodeAwaitingHuman {
		t.Fatalf("Node = %q, want AwaitingHuman", tk.Node)
	}
	historyBefore := len(tk.State.History)

	st, err := ledger.Resume(ctx, tk.ID, "Refund issued.")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	if st.FinalAnswer == nil || *st.FinalAnswer != "Refund issued." {
		t.Errorf("FinalAnswer = %v, want %q", st.FinalAnswer, "Refund issued.")
	}
	if !st.RequiresHuman {
		t.Error("RequiresHuman = false, want true after escalation")
	}
	if len(st.History) <= historyBefore {
		t.Errorf("history did not grow: %d -> %d", historyBefore, len(st.History))
	}
}

func TestScenarioD_ResumeUnknownTicket(t *testing.T) {
	ledger, _ := newLedger("automatic")

	_, err := ledger.Resume(context.Background(), "unknown-id", "x")
	if !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("Resume() error = %v, want ErrTicketNotFound", err)
	}
}

func TestResume_WithoutAnswerStaysAwaiting(t *testing.T) {
	ledger, _ := newLedger("escalated")
	ctx := context.Background()

	tk, err := ledger.Create(ctx, "q", "u")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		st, err := ledger.Resume(ctx, tk.ID, "")
		if err != nil {
			t.Fatalf("Resume() #%d error = %v", i+1, err)
		}
		if st.FinalAnswer != nil {
			t.Errorf("Resume() #%d set FinalAnswer without a human answer", i+1)
		}
	}

	listed := ledger.List()
	if len(listed) != 1 || listed[0].Node != resolution.NodeAwaitingHuman {
		t.Errorf("List() = %+v, want single awaiting ticket", listed)
	}
}

func TestResume_ConcurrentCallsSerialize(t *testing.T) {
	ledger, _ := newLedger("escalated")
	ctx := context.Background()

	tk, err := ledger.Create(ctx, "q", "u")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Resume(ctx, tk.ID, ""); err != nil {
				t.Errorf("Resume() error = %v", err)
			}
		}()
	}
	wg.Wait()

	st, err := ledger.Resume(ctx, tk.ID, "Final word.")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if st.FinalAnswer == nil || *st.FinalAnswer != "Final word." {
		t.Errorf("FinalAnswer = %v, want %q", st.FinalAnswer, "Final word.")
	}
}

// ============================================================
// Attach
// ============================================================

func TestAttach_RebindsAfterRestart(t *testing.T) {
	first, cps := newLedger("escalated")
	ctx := context.Background()

	tk, err := first.Create(ctx, "q", "u")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// A fresh ledger over the same checkpoint store models a process
	// restart: the in-memory map is empty but the checkpoint survives.
	second := New(first.machine, cps, log.NewNop())
	if len(second.List()) != 0 {
		t.Fatal("fresh ledger should start empty")
	}

	attached, err := second.Attach(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if attached.Node != resolution.NodeAwaitingHuman {
		t.Errorf("attached Node = %q, want AwaitingHuman", attached.Node)
	}
	if attached.State.Query != "q" {
		t.Errorf("attached Query = %q, want original query", attached.State.Query)
	}

	st, err := second.Resume(ctx, tk.ID, "Done by the second process.")
	if err != nil {
		t.Fatalf("Resume() after attach error = %v", err)
	}
	if st.FinalAnswer == nil || *st.FinalAnswer != "Done by the second process." {
		t.Errorf("FinalAnswer = %v, want the injected answer", st.FinalAnswer)
	}
}

func TestAttach_UnknownTicket(t *testing.T) {
	ledger, _ := newLedger("automatic")

	_, err := ledger.Attach(context.Background(), "TK-nope")
	if !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("Attach() error = %v, want ErrTicketNotFound", err)
	}
}

// ============================================================
// List and Expire
// ============================================================

func TestList_OldestFirst(t *testing.T) {
	ledger, _ := newLedger("automatic")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		tk, err := ledger.Create(ctx, "q", "u")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, tk.ID)
		time.Sleep(time.Millisecond)
	}

	listed := ledger.List()
	if len(listed) != 3 {
		t.Fatalf("List() returned %d tickets, want 3", len(listed))
	}
	for i, tk := range listed {
		if tk.ID != ids[i] {
			t.Errorf("List()[%d].ID = %q, want %q (creation order)", i, tk.ID, ids[i])
		}
	}
}

func TestExpire_SweepsOnlyStaleAwaitingTickets(t *testing.T) {
	ledger, _ := newLedger("escalated")
	ctx := context.Background()

	awaiting, err := ledger.Create(ctx, "q", "u")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	auto, _ := newLedger("automatic")
	done, err := auto.Create(ctx, "q", "u")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	if expired := ledger.Expire(time.Hour); len(expired) != 0 {
		t.Errorf("Expire(1h) = %v, want nothing this fresh", expired)
	}

	expired := ledger.Expire(time.Millisecond)
	if len(expired) != 1 || expired[0] != awaiting.ID {
		t.Errorf("Expire() = %v, want [%s]", expired, awaiting.ID)
	}
	if len(ledger.List()) != 0 {
		t.Error("expired ticket still listed")
	}

	if expired := auto.Expire(time.Millisecond); len(expired) != 0 {
		t.Errorf("Expire() swept finalized ticket %s", done.ID)
	}
}

func TestExpire_ReleasesTicketLock(t *testing.T) {
	ledger, _ := newLedger("escalated")
	ctx := context.Background()

	tk, err := ledger.Create(ctx, "q", "u")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ledger.mu.RLock()
	_, held := ledger.locks[tk.ID]
	ledger.mu.RUnlock()
	if !held {
		t.Fatal("expected a lock entry for the live ticket")
	}

	time.Sleep(2 * time.Millisecond)
	if expired := ledger.Expire(time.Millisecond); len(expired) != 1 {
		t.Fatalf("Expire() = %v, want one id", expired)
	}

	ledger.mu.RLock()
	_, held = ledger.locks[tk.ID]
	ledger.mu.RUnlock()
	if held {
		t.Error("lock entry survived expiry")
	}
}

func TestExpire_SkipsTicketWithResumeInFlight(t *testing.T) {
	ledger, _ := newLedger("escalated")
	ctx := context.Background()

	tk, err := ledger.Create(ctx, "q", "u")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	lock := ledger.acquire(tk.ID)
	if expired := ledger.Expire(time.Millisecond); len(expired) != 0 {
		t.Errorf("Expire() = %v, want nothing while the ticket is locked", expired)
	}
	if _, ok := ledger.lookup(tk.ID); !ok {
		t.Error("locked ticket dropped from the ledger")
	}
	lock.Unlock()

	if expired := ledger.Expire(time.Millisecond); len(expired) != 1 {
		t.Errorf("Expire() after unlock = %v, want one id", expired)
	}
}

func TestExpire_LeavesCheckpointIntact(t *testing.T) {
	ledger, cps := newLedger("escalated")
	ctx := context.Background()

	tk, err := ledger.Create(ctx, "q", "u")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	ledger.Expire(time.Millisecond)

	if _, err := cps.Load(ctx, tk.ID); err != nil {
		t.Errorf("checkpoint gone after expire: %v", err)
	}
	if _, err := ledger.Attach(ctx, tk.ID); err != nil {
		t.Errorf("Attach() after expire error = %v", err)
	}
}
