package resolution

// Category is the routing decision for a resolved query.
type Category string

const (
	CategoryUnset     Category = ""
	CategoryAutomatic Category = "automatic"
	CategoryEscalated Category = "escalated"
)

// Node is the machine's position within a ticket's lifecycle. It is
// persisted alongside the state so a resumed process re-enters exactly
// where the previous one halted.
type Node string

const (
	NodeStart         Node = "start"
	NodeRetrieved     Node = "retrieved"
	NodeClassified    Node = "classified"
	NodeEscalated     Node = "escalated"
	NodeAwaitingHuman Node = "awaiting_human"
	NodeFinalized     Node = "finalized"
)

// State carries everything known about a ticket's resolution. It is a
// plain serializable record: every field survives a JSON round-trip
// through the checkpoint store unchanged.
type State struct {
	// Query is the user's original question.
	Query string `json:"query"`

	// Answer is the generated answer text, before finalization.
	Answer string `json:"answer"`

	// Confidence is the heuristic trust score in [0,1].
	Confidence float64 `json:"confidence"`

	// Sources lists the distinct document sources behind the answer, in
	// first-seen order.
	Sources []string `json:"sources"`

	// Context is the assembled evidence text passed to generation.
	Context string `json:"context"`

	// Category is the automatic-vs-escalated routing decision.
	Category Category `json:"category"`

	// RequiresHuman marks tickets waiting on a human agent.
	RequiresHuman bool `json:"requires_human"`

	// HumanAnswer is set by an external actor while the ticket is
	// suspended; nil means no human has answered yet.
	HumanAnswer *string `json:"human_answer"`

	// FinalAnswer is the answer delivered to the user. Non-nil exactly
	// when the machine has reached NodeFinalized.
	FinalAnswer *string `json:"final_answer"`

	// History is the append-only trace of everything that happened to
	// this ticket, across arbitrarily many suspend/resume cycles.
	History []string `json:"history"`
}

// NewState returns the initial state for a fresh query.
func NewState(query string) *State {
	return &State{Query: query}
}

// trace appends entries to the history. History is only ever appended to,
// never rewritten.
func (s *State) trace(entries ...string) {
	s.History = append(s.History, entries...)
}
