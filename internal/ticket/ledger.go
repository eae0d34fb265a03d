// Package ticket tracks helpdesk tickets across their resolution lifecycle.
// The ledger owns ticket identity, serializes concurrent operations per
// ticket, and keeps the last known state snapshot for display.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvarela/triage/internal/log"
	"github.com/mvarela/triage/internal/resolution"
)

// ErrTicketNotFound indicates the ticket id is unknown to both the ledger
// and the checkpoint store. User-correctable: the caller supplied a bad id.
var ErrTicketNotFound = errors.New("ticket not found")

// idPrefix namespaces ticket identifiers.
const idPrefix = "TK-"

// Ticket is the ledger's snapshot of one ticket.
type Ticket struct {
	ID        string
	User      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Node      resolution.Node
	State     resolution.State
}

// Runner is the slice of the resolution machine the ledger drives.
type Runner interface {
	Run(ctx context.Context, ticketID string, st *resolution.State) (resolution.Node, error)
	Resume(ctx context.Context, ticketID string) (*resolution.State, resolution.Node, error)
}

// Ledger maps ticket ids to snapshots and serializes per-ticket access.
// Distinct tickets proceed fully independently.
type Ledger struct {
	machine     Runner
	checkpoints resolution.Checkpointer
	logger      log.Logger

	mu      sync.RWMutex
	tickets map[string]*Ticket
	locks   map[string]*sync.Mutex
}

// New builds an empty ledger.
func New(machine Runner, checkpoints resolution.Checkpointer, logger log.Logger) *Ledger {
	return &Ledger{
		machine:     machine,
		checkpoints: checkpoints,
		logger:      logger,
		tickets:     make(map[string]*Ticket),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Create opens a ticket for query and drives the machine until it either
// finalizes or suspends awaiting a human. The stored snapshot reflects the
// halt position.
func (l *Ledger) Create(ctx context.Context, query, user string) (Ticket, error) {
	id := idPrefix + uuid.NewString()
	lock := l.acquire(id)
	defer lock.Unlock()

	now := time.Now()
	st := resolution.NewState(query)
	node, err := l.machine.Run(ctx, id, st)
	if err != nil {
		return Ticket{}, fmt.Errorf("run ticket %s: %w", id, err)
	}

	tk := Ticket{
		ID:        id,
		User:      user,
		CreatedAt: now,
		UpdatedAt: time.Now(),
		Node:      node,
		State:     *st,
	}
	l.store(tk)

	l.logger.Info("ticket created",
		"ticket", id,
		"user", user,
		"node", node,
		"confidence", st.Confidence,
	)
	return tk, nil
}

// Resume injects humanAnswer (empty string means no answer yet) into the
// ticket's checkpoint and re-enters the machine. Unknown ids fail with
// ErrTicketNotFound. Concurrent resumes on the same id are serialized.
func (l *Ledger) Resume(ctx context.Context, id, humanAnswer string) (resolution.State, error) {
	lock := l.acquire(id)
	defer lock.Unlock()

	cp, err := l.checkpoints.Load(ctx, id)
	if err != nil {
		if errors.Is(err, resolution.ErrCheckpointNotFound) {
			return resolution.State{}, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
		}
		return resolution.State{}, fmt.Errorf("load ticket %s: %w", id, err)
	}

	if humanAnswer != "" {
		cp.State.HumanAnswer = &humanAnswer
		if err := l.checkpoints.Save(ctx, id, cp); err != nil {
			return resolution.State{}, fmt.Errorf("inject human answer for %s: %w", id, err)
		}
	}

	st, node, err := l.machine.Resume(ctx, id)
	if err != nil {
		return resolution.State{}, fmt.Errorf("resume ticket %s: %w", id, err)
	}

	l.updateSnapshot(id, node, *st)
	l.logger.Info("ticket resumed", "ticket", id, "node", node)
	return *st, nil
}

// Attach re-binds a ticket that exists only in the checkpoint store, the
// situation after a process restart. The rebuilt snapshot carries no user
// attribution: that was never checkpointed.
func (l *Ledger) Attach(ctx context.Context, id string) (Ticket, error) {
	lock := l.acquire(id)
	defer lock.Unlock()

	if tk, ok := l.lookup(id); ok {
		return tk, nil
	}

	cp, err := l.checkpoints.Load(ctx, id)
	if err != nil {
		if errors.Is(err, resolution.ErrCheckpointNotFound) {
			return Ticket{}, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
		}
		return Ticket{}, fmt.Errorf("attach ticket %s: %w", id, err)
	}

	now := time.Now()
	tk := Ticket{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Node:      cp.Node,
		State:     cp.State,
	}
	l.store(tk)
	l.logger.Info("ticket attached from checkpoint", "ticket", id, "node", cp.Node)
	return tk, nil
}

// List returns all known tickets, oldest first.
func (l *Ledger) List() []Ticket {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Ticket, 0, len(l.tickets))
	for _, tk := range l.tickets {
		out = append(out, *tk)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Expire detaches tickets that have been awaiting a human longer than
// olderThan and returns their ids. Checkpoints are left in place so an
// expired ticket can still be attached and resumed later. Not scheduled by
// default; operators decide when and whether to sweep.
func (l *Ledger) Expire(olderThan time.Duration) []string {
	cutoff := time.Now().Add(-olderThan)

	l.mu.Lock()
	defer l.mu.Unlock()

	var expired []string
	for id, tk := range l.tickets {
		if tk.Node != resolution.NodeAwaitingHuman || !tk.UpdatedAt.Before(cutoff) {
			continue
		}
		// A held per-ticket lock means a resume is in flight; leave the
		// ticket alone rather than dropping the mutex under it.
		if lock, ok := l.locks[id]; ok {
			if !lock.TryLock() {
				continue
			}
			lock.Unlock()
			delete(l.locks, id)
		}
		delete(l.tickets, id)
		expired = append(expired, id)
	}
	sort.Strings(expired)
	if len(expired) > 0 {
		l.logger.Info("expired awaiting tickets", "count", len(expired))
	}
	return expired
}

// ticketLock returns the mutex serializing operations on id, creating it
// on first use. Entries are dropped again when their ticket expires.
func (l *Ledger) ticketLock(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	return lock
}

// acquire locks the per-ticket mutex for id. The map entry is re-checked
// after locking: Expire may drop an idle entry between the lookup and the
// Lock, leaving the acquired mutex stale, in which case the acquisition
// retries on the fresh one.
func (l *Ledger) acquire(id string) *sync.Mutex {
	for {
		lock := l.ticketLock(id)
		lock.Lock()

		l.mu.RLock()
		current := l.locks[id]
		l.mu.RUnlock()

		if current == lock {
			return lock
		}
		lock.Unlock()
	}
}

func (l *Ledger) store(tk Ticket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tickets[tk.ID] = &tk
}

func (l *Ledger) lookup(id string) (Ticket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tk, ok := l.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return *tk, true
}

func (l *Ledger) updateSnapshot(id string, node resolution.Node, st resolution.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tk, ok := l.tickets[id]
	if !ok {
		tk = &Ticket{ID: id, CreatedAt: time.Now()}
		l.tickets[id] = tk
	}
	tk.Node = node
	tk.State = st
	tk.UpdatedAt = time.Now()
}
