// Package resolution drives a helpdesk query through its lifecycle: retrieve
// evidence, generate and score an answer, route it automatic-vs-escalated,
// and either finalize immediately or suspend until a human answers.
//
// The machine is an explicit finite-state machine over a plain serializable
// State. After every transition the full state and the machine position are
// checkpointed, so the process can terminate at the escalation boundary and
// a later process can resume the same ticket with no loss of state.
package resolution

import (
	"context"
	"fmt"
	"strings"

	"github.com/mvarela/triage/internal/evidence"
	"github.com/mvarela/triage/internal/log"
)

// Retriever returns evidence fragments for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]evidence.Fragment, error)
}

// Scorer returns fragments with raw cosine distances for the estimator.
type Scorer interface {
	ScoredSearch(ctx context.Context, text string, k int) ([]evidence.ScoredFragment, error)
}

// Generator produces an answer grounded in the assembled context.
type Generator interface {
	Generate(ctx context.Context, question, docContext string) (string, error)
}

// Classifier produces the routing decision text. Its output is untrusted
// and only ever substring-matched.
type Classifier interface {
	Classify(ctx context.Context, question, docContext string, confidence float64) (string, error)
}

// Estimator scores an answer against its evidence.
type Estimator interface {
	Score(query, answer string, fragments []evidence.Fragment, scored []evidence.ScoredFragment) float64
}

// Config holds the machine's routing knobs.
type Config struct {
	// AutoThreshold is the confidence at or above which a malformed
	// classification falls back to automatic delivery.
	AutoThreshold float64
}

// Machine executes ticket resolutions. One ticket is processed strictly
// sequentially from suspend point to suspend point; distinct tickets are
// fully independent.
type Machine struct {
	retriever   Retriever
	scorer      Scorer
	generator   Generator
	classifier  Classifier
	estimator   Estimator
	checkpoints Checkpointer
	cfg         Config
	logger      log.Logger
}

// New builds a machine. All collaborators are required.
func New(
	retriever Retriever,
	scorer Scorer,
	generator Generator,
	classifier Classifier,
	estimator Estimator,
	checkpoints Checkpointer,
	cfg Config,
	logger log.Logger,
) *Machine {
	return &Machine{
		retriever:   retriever,
		scorer:      scorer,
		generator:   generator,
		classifier:  classifier,
		estimator:   estimator,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run drives st from Start until the machine either finalizes or suspends
// awaiting a human. The returned node is the position checkpointed last.
func (m *Machine) Run(ctx context.Context, ticketID string, st *State) (Node, error) {
	return m.run(ctx, ticketID, NodeStart, st)
}

// Resume loads the ticket's checkpoint and re-enters at the stored node.
// Retrieval and classification never re-run after a resume: the stored
// position is already past them. Resuming a finalized ticket returns its
// state unchanged.
func (m *Machine) Resume(ctx context.Context, ticketID string) (*State, Node, error) {
	cp, err := m.checkpoints.Load(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}
	if cp.Node == NodeFinalized {
		return &cp.State, cp.Node, nil
	}

	st := cp.State
	node, err := m.run(ctx, ticketID, cp.Node, &st)
	return &st, node, err
}

// run advances the machine transition by transition, checkpointing after
// each one, until it reaches a halt position.
func (m *Machine) run(ctx context.Context, ticketID string, node Node, st *State) (Node, error) {
	for {
		next, err := m.advance(ctx, node, st)
		if err != nil {
			return node, err
		}
		if err := m.checkpoints.Save(ctx, ticketID, Checkpoint{State: *st, Node: next}); err != nil {
			return next, err
		}
		node = next
		if node == NodeFinalized || node == NodeAwaitingHuman {
			m.logger.Debug("machine halted", "ticket", ticketID, "node", node)
			return node, nil
		}
	}
}

// advance executes the transition out of node, mutating st, and returns
// the position reached.
func (m *Machine) advance(ctx context.Context, node Node, st *State) (Node, error) {
	switch node {
	case NodeStart:
		if err := m.runRetrieval(ctx, st); err != nil {
			return node, err
		}
		return NodeRetrieved, nil

	case NodeRetrieved:
		if err := m.classify(ctx, st); err != nil {
			return node, err
		}
		return NodeClassified, nil

	case NodeClassified:
		if st.Category == CategoryAutomatic {
			m.finalizeAutomatic(st)
			return NodeFinalized, nil
		}
		m.prepareEscalation(st)
		return NodeEscalated, nil

	case NodeEscalated:
		// The suspend boundary: the checkpoint written for this
		// transition is the one a human-answer injection targets.
		st.trace("Ticket suspended awaiting a human response.")
		return NodeAwaitingHuman, nil

	case NodeAwaitingHuman:
		return m.consumeHuman(st), nil

	default:
		return node, fmt.Errorf("machine cannot advance from node %q", node)
	}
}

// runRetrieval populates answer, confidence, sources and context. Store
// and generation failures propagate; zero evidence is a legitimate result
// scored at confidence 0.
func (m *Machine) runRetrieval(ctx context.Context, st *State) error {
	fragments, err := m.retriever.Retrieve(ctx, st.Query)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	if len(fragments) == 0 {
		st.Confidence = m.estimator.Score(st.Query, "", fragments, nil)
		st.trace(
			"Retrieval found no evidence for the query.",
			fmt.Sprintf("Heuristic confidence: %.2f", st.Confidence),
		)
		return nil
	}

	scored, err := m.scorer.ScoredSearch(ctx, st.Query, len(fragments))
	if err != nil {
		return fmt.Errorf("score evidence: %w", err)
	}

	st.Context = assembleContext(fragments)
	answer, err := m.generator.Generate(ctx, st.Query, st.Context)
	if err != nil {
		return fmt.Errorf("generate answer: %w", err)
	}

	st.Answer = answer
	st.Sources = collectSources(fragments)
	st.Confidence = m.estimator.Score(st.Query, answer, fragments, scored)
	st.trace(
		"Retrieval executed with multi-query MMR.",
		fmt.Sprintf("Heuristic confidence: %.2f", st.Confidence),
		fmt.Sprintf("Sources consulted: %d", len(st.Sources)),
	)
	return nil
}

// classify routes the ticket. The model's reply is substring-matched; a
// reply matching neither token falls back to the confidence threshold so
// classification can never leave a ticket unrouted.
func (m *Machine) classify(ctx context.Context, st *State) error {
	decision, err := m.classifier.Classify(ctx, st.Query, st.Context, st.Confidence)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	st.Category = parseCategory(decision, st.Confidence, m.cfg.AutoThreshold)
	st.trace(fmt.Sprintf("Query classified as %s.", st.Category))
	return nil
}

func (m *Machine) finalizeAutomatic(st *State) {
	if st.FinalAnswer != nil {
		st.trace("Final answer already set, left untouched.")
		return
	}

	answer := st.Answer
	if len(st.Sources) > 0 {
		answer += "\n\nSources consulted: " + strings.Join(st.Sources, ", ")
	}
	st.FinalAnswer = &answer
	st.trace("Final answer generated automatically.")
}

func (m *Machine) prepareEscalation(st *State) {
	st.RequiresHuman = true
	st.HumanAnswer = nil
	st.trace("Query escalated to a human agent.")
}

// consumeHuman finalizes with the human's answer when present; a nil
// answer records "waiting" and halts in AwaitingHuman again.
func (m *Machine) consumeHuman(st *State) Node {
	if st.HumanAnswer != nil {
		answer := *st.HumanAnswer
		st.FinalAnswer = &answer
		st.trace("Answer provided by human agent.")
		return NodeFinalized
	}

	st.trace("Waiting for the human agent's answer.")
	return NodeAwaitingHuman
}

// assembleContext formats fragments for the generation prompt, numbering
// each one and carrying its source and page.
func assembleContext(fragments []evidence.Fragment) string {
	var b strings.Builder
	for i, f := range fragments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Fragment %d]", i+1)
		if f.Source != "" {
			fmt.Fprintf(&b, " - Source: %s", f.Source)
		}
		if f.Page > 0 {
			fmt.Fprintf(&b, " - Page: %d", f.Page)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(f.Content))
	}
	return b.String()
}

// collectSources returns the distinct fragment sources in first-seen order.
func collectSources(fragments []evidence.Fragment) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, f := range fragments {
		if f.Source == "" || seen[f.Source] {
			continue
		}
		seen[f.Source] = true
		sources = append(sources, f.Source)
	}
	return sources
}
