// Package relationship defines the bounded per-conversation relationship
// model: four continuous axes, boolean milestones, and a forward-moving
// phase enum.
package relationship

import "time"

// Phase is the define-the-relationship progression stage.
type Phase string

const (
	PhaseHintCloser    Phase = "hint_closer"
	PhaseAskExclusive  Phase = "ask_exclusive"
	PhaseAskGirlfriend Phase = "ask_girlfriend"
	PhaseSteady        Phase = "steady"
)

// order maps phases onto a monotonic scale.
var order = map[Phase]int{
	PhaseHintCloser:    0,
	PhaseAskExclusive:  1,
	PhaseAskGirlfriend: 2,
	PhaseSteady:        3,
}

// Rank returns the position of p on the forward scale.
func (p Phase) Rank() int { return order[p] }

// Next returns the phase one step forward; steady is terminal.
func (p Phase) Next() Phase {
	switch p {
	case PhaseHintCloser:
		return PhaseAskExclusive
	case PhaseAskExclusive:
		return PhaseAskGirlfriend
	case PhaseAskGirlfriend:
		return PhaseSteady
	default:
		return PhaseSteady
	}
}

// Prev returns the phase one step back; hint_closer is the floor.
func (p Phase) Prev() Phase {
	switch p {
	case PhaseSteady:
		return PhaseAskGirlfriend
	case PhaseAskGirlfriend:
		return PhaseAskExclusive
	default:
		return PhaseHintCloser
	}
}

// State is the per-conversation relationship snapshot. Axes stay within
// [0,100]; mutation happens only through the updater, one turn at a time.
type State struct {
	Trust      float64 `json:"trust"`
	Closeness  float64 `json:"closeness"`
	Attraction float64 `json:"attraction"`
	Safety     float64 `json:"safety"`

	ExclusiveAgreed     bool `json:"exclusiveAgreed"`
	GirlfriendConfirmed bool `json:"girlfriendConfirmed"`

	Phase             Phase     `json:"phase"`
	TurnCount         int       `json:"turnCount"`
	LastInteractionAt time.Time `json:"lastInteractionAt"`
}

// DefaultState is the starting point for a first-time conversation.
func DefaultState() State {
	return State{
		Trust:      20,
		Closeness:  10,
		Attraction: 10,
		Safety:     60,
		Phase:      PhaseHintCloser,
	}
}

// Clamp forces every axis back into [0,100].
func (s *State) Clamp() {
	s.Trust = clamp(s.Trust)
	s.Closeness = clamp(s.Closeness)
	s.Attraction = clamp(s.Attraction)
	s.Safety = clamp(s.Safety)
}

func clamp(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 100 {
		return 100
	}
	return x
}

// Signals is the per-message evidence extracted from the latest user input
// only. Continuous fields live in [0,1].
type Signals struct {
	Support        float64 `json:"support"`
	Affection      float64 `json:"affection"`
	Flirt          float64 `json:"flirt"`
	Respect        float64 `json:"respect"`
	Rude           float64 `json:"rude"`
	BoundaryPush   float64 `json:"boundaryPush"`
	Apology        float64 `json:"apology"`
	CommitmentTalk float64 `json:"commitmentTalk"`
	Distancing     float64 `json:"distancing"`

	AcceptedExclusive  bool `json:"acceptedExclusive"`
	AcceptedGirlfriend bool `json:"acceptedGirlfriend"`
}

// Decision is a relationship-update decision requested by the language
// model as a tool call. Zero deltas mean "no change".
type Decision struct {
	Signals Signals `json:"signals"`
	Reason  string  `json:"reason,omitempty"`
}
