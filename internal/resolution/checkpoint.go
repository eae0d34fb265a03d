package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Checkpoint is the durable record for one ticket: the full state plus the
// machine position to re-enter at.
type Checkpoint struct {
	State State `json:"state"`
	Node  Node  `json:"node"`
}

// Checkpointer persists checkpoints keyed by ticket id. Save overwrites
// any previous checkpoint for the same ticket; Load returns
// ErrCheckpointNotFound for unknown tickets.
type Checkpointer interface {
	Save(ctx context.Context, ticketID string, cp Checkpoint) error
	Load(ctx context.Context, ticketID string) (Checkpoint, error)
}

// ============================================================
// PostgreSQL checkpointer
// ============================================================

const (
	saveCheckpointSQL = `
INSERT INTO ticket_checkpoints (ticket_id, node, state, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (ticket_id) DO UPDATE
SET node = EXCLUDED.node, state = EXCLUDED.state, updated_at = now()`

	loadCheckpointSQL = `
SELECT node, state FROM ticket_checkpoints WHERE ticket_id = $1`
)

// PGCheckpointer stores checkpoints in PostgreSQL with the state as a
// JSONB column, one row per ticket.
type PGCheckpointer struct {
	pool *pgxpool.Pool
}

func NewPGCheckpointer(pool *pgxpool.Pool) *PGCheckpointer {
	return &PGCheckpointer{pool: pool}
}

func (c *PGCheckpointer) Save(ctx context.Context, ticketID string, cp Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if _, err := c.pool.Exec(ctx, saveCheckpointSQL, ticketID, string(cp.Node), stateJSON); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrCheckpointUnavailable, ticketID, err)
	}
	return nil
}

func (c *PGCheckpointer) Load(ctx context.Context, ticketID string) (Checkpoint, error) {
	var (
		node      string
		stateJSON []byte
	)
	err := c.pool.QueryRow(ctx, loadCheckpointSQL, ticketID).Scan(&node, &stateJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, ticketID)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: load %s: %w", ErrCheckpointUnavailable, ticketID, err)
	}

	var st State
	if err := json.Unmarshal(stateJSON, &st); err != nil {
		return Checkpoint{}, fmt.Errorf("unmarshal state for %s: %w", ticketID, err)
	}
	return Checkpoint{State: st, Node: Node(node)}, nil
}

// ============================================================
// In-memory checkpointer
// ============================================================

// MemoryCheckpointer keeps checkpoints in a map. Deep-copies on both Save
// and Load so callers cannot mutate stored state through shared slices.
type MemoryCheckpointer struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{checkpoints: make(map[string]Checkpoint)}
}

func (c *MemoryCheckpointer) Save(_ context.Context, ticketID string, cp Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpoints[ticketID] = copyCheckpoint(cp)
	return nil
}

func (c *MemoryCheckpointer) Load(_ context.Context, ticketID string) (Checkpoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp, ok := c.checkpoints[ticketID]
	if !ok {
		return Checkpoint{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, ticketID)
	}
	return copyCheckpoint(cp), nil
}

func copyCheckpoint(cp Checkpoint) Checkpoint {
	out := cp
	out.State.Sources = append([]string(nil), cp.State.Sources...)
	out.State.History = append([]string(nil), cp.State.History...)
	if cp.State.HumanAnswer != nil {
		v := *cp.State.HumanAnswer
		out.State.HumanAnswer = &v
	}
	if cp.State.FinalAnswer != nil {
		v := *cp.State.FinalAnswer
		out.State.FinalAnswer = &v
	}
	return out
}
