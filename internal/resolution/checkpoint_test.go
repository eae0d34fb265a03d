package resolution

import (
	"context"
	"errors"
	"testing"
)

func sampleCheckpoint() Checkpoint {
	human := "use form B-12"
	return Checkpoint{
		Node: NodeAwaitingHuman,
		State: State{
			Query:         "which form do I use",
			Answer:        "Form B-12 covers address changes.",
			Confidence:    0.42,
			Sources:       []string{"forms.pdf"},
			Context:       "[Fragment 1]\nForm B-12...",
			Category:      CategoryEscalated,
			RequiresHuman: true,
			HumanAnswer:   &human,
			History:       []string{"step one", "step two"},
		},
	}
}

func TestMemoryCheckpointer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cps := NewMemoryCheckpointer()
	want := sampleCheckpoint()

	if err := cps.Save(ctx, "TK-1", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := cps.Load(ctx, "TK-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Node != want.Node {
		t.Errorf("Node = %q, want %q", got.Node, want.Node)
	}
	if got.State.Query != want.State.Query || got.State.Confidence != want.State.Confidence {
		t.Errorf("State = %+v, want %+v", got.State, want.State)
	}
	if got.State.HumanAnswer == nil || *got.State.HumanAnswer != *want.State.HumanAnswer {
		t.Errorf("HumanAnswer = %v, want %v", got.State.HumanAnswer, want.State.HumanAnswer)
	}
	if len(got.State.History) != 2 {
		t.Errorf("History = %v, want 2 entries", got.State.History)
	}
}

func TestMemoryCheckpointer_NotFound(t *testing.T) {
	cps := NewMemoryCheckpointer()

	_, err := cps.Load(context.Background(), "TK-missing")
	if !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Load() error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestMemoryCheckpointer_IsolatesCallers(t *testing.T) {
	ctx := context.Background()
	cps := NewMemoryCheckpointer()
	cp := sampleCheckpoint()
	if err := cps.Save(ctx, "TK-1", cp); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Mutating the caller's copy after Save must not leak into the store.
	cp.State.History[0] = "tampered"
	*cp.State.HumanAnswer = "tampered"

	got, err := cps.Load(ctx, "TK-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.State.History[0] != "step one" {
		t.Errorf("stored history mutated through caller slice: %q", got.State.History[0])
	}
	if *got.State.HumanAnswer != "use form B-12" {
		t.Errorf("stored human answer mutated through caller pointer: %q", *got.State.HumanAnswer)
	}

	// And mutating a loaded copy must not change the next load.
	got.State.History[1] = "tampered"
	again, _ := cps.Load(ctx, "TK-1")
	if again.State.History[1] != "step two" {
		t.Errorf("stored history mutated through loaded slice: %q", again.State.History[1])
	}
}

func TestMemoryCheckpointer_Overwrite(t *testing.T) {
	ctx := context.Background()
	cps := NewMemoryCheckpointer()

	first := sampleCheckpoint()
	if err := cps.Save(ctx, "TK-1", first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := first
	second.Node = NodeFinalized
	final := "done"
	second.State.FinalAnswer = &final
	if err := cps.Save(ctx, "TK-1", second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := cps.Load(ctx, "TK-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Node != NodeFinalized {
		t.Errorf("Node = %q, want overwritten value %q", got.Node, NodeFinalized)
	}
	if got.State.FinalAnswer == nil || *got.State.FinalAnswer != "done" {
		t.Errorf("FinalAnswer = %v, want %q", got.State.FinalAnswer, "done")
	}
}
