package relationship

import (
	"math"

	"github.com/mireilabs/velora/backend/internal/model/relationship"
)

// ScoringPolicy weights how signals move each axis and caps the per-turn
// movement. Conflicting signals in one message (affection plus
// boundary-setting, say) are not ordered by precedence: positive and
// negative contributions both apply under their own caps.
type ScoringPolicy struct {
	// SafetyFloor blocks forward phase transitions while safety sits
	// below it.
	SafetyFloor float64
	// DistancingFloor is the signal strength treated as an explicit
	// de-escalation, stepping the phase back.
	DistancingFloor float64
	// ModelDecisionWeight blends a relationship_update tool decision from
	// the language model into the heuristic signals (0 disables).
	ModelDecisionWeight float64

	// Per-axis caps on a single turn's positive and negative movement.
	TrustUpCap, TrustDownCap           float64
	ClosenessUpCap, ClosenessDownCap   float64
	AttractionUpCap, AttractionDownCap float64
	SafetyUpCap, SafetyDownCap         float64
}

// DefaultScoringPolicy mirrors the tuning the service shipped with.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		SafetyFloor:         40,
		DistancingFloor:     0.5,
		ModelDecisionWeight: 0.5,
		TrustUpCap:          2.0, TrustDownCap: 3.5,
		ClosenessUpCap: 2.0, ClosenessDownCap: 3.0,
		AttractionUpCap: 1.8, AttractionDownCap: 3.5,
		SafetyUpCap: 1.5, SafetyDownCap: 3.5,
	}
}

// satUp moves x toward 100 with diminishing returns.
func satUp(x, delta float64) float64 {
	if delta <= 0 {
		return x
	}
	return x + (100-x)*(1-math.Exp(-0.015*delta))
}

// satDown moves x toward 0, faster than satUp climbs.
func satDown(x, delta float64) float64 {
	if delta <= 0 {
		return x
	}
	return x - x*(1-math.Exp(-0.03*delta))
}

// ApplySignals returns the state after one turn's signals. The input state
// is not mutated; axes of the result always lie in [0,100].
func ApplySignals(state relationship.State, sig relationship.Signals, policy ScoringPolicy) relationship.State {
	trustPos := 5*sig.Support + 4*sig.Respect + 3*sig.Apology
	trustNeg := 9*sig.Rude + 12*sig.BoundaryPush

	closePos := 4*sig.Affection + 4*sig.Support
	closeNeg := 5*sig.Rude + 3*sig.Distancing

	attrPos := 5*sig.Flirt*sig.Respect + 1.5*sig.Flirt + 2*sig.Affection
	attrNeg := 10*sig.BoundaryPush + 6*sig.Rude

	safetyPos := 6*sig.Respect + 4*sig.Apology
	safetyNeg := 10*sig.BoundaryPush + 8*sig.Rude + 4*sig.Distancing

	trustPos = math.Min(trustPos, policy.TrustUpCap)
	trustNeg = math.Min(trustNeg, policy.TrustDownCap)
	closePos = math.Min(closePos, policy.ClosenessUpCap)
	closeNeg = math.Min(closeNeg, policy.ClosenessDownCap)
	attrPos = math.Min(attrPos, policy.AttractionUpCap)
	attrNeg = math.Min(attrNeg, policy.AttractionDownCap)
	safetyPos = math.Min(safetyPos, policy.SafetyUpCap)
	safetyNeg = math.Min(safetyNeg, policy.SafetyDownCap)

	next := state
	next.Trust = satDown(satUp(state.Trust, trustPos), trustNeg)
	next.Closeness = satDown(satUp(state.Closeness, closePos), closeNeg)
	next.Attraction = satDown(satUp(state.Attraction, attrPos), attrNeg)
	next.Safety = satDown(satUp(state.Safety, safetyPos), safetyNeg)
	next.Clamp()

	return next
}

// BlendDecision folds the model's relationship_update decision into the
// heuristic signals at the configured weight. A nil decision or zero weight
// leaves the heuristics untouched.
func BlendDecision(sig relationship.Signals, decision *relationship.Decision, weight float64) relationship.Signals {
	if decision == nil || weight <= 0 {
		return sig
	}
	if weight > 1 {
		weight = 1
	}

	d := decision.Signals
	mix := func(a, b float64) float64 {
		v := a + weight*b
		if v > 1 {
			v = 1
		}
		return v
	}

	sig.Support = mix(sig.Support, d.Support)
	sig.Affection = mix(sig.Affection, d.Affection)
	sig.Flirt = mix(sig.Flirt, d.Flirt)
	sig.Respect = mix(sig.Respect, d.Respect)
	sig.Rude = mix(sig.Rude, d.Rude)
	sig.BoundaryPush = mix(sig.BoundaryPush, d.BoundaryPush)
	sig.Apology = mix(sig.Apology, d.Apology)
	sig.CommitmentTalk = mix(sig.CommitmentTalk, d.CommitmentTalk)
	sig.Distancing = mix(sig.Distancing, d.Distancing)
	sig.AcceptedExclusive = sig.AcceptedExclusive || d.AcceptedExclusive
	sig.AcceptedGirlfriend = sig.AcceptedGirlfriend || d.AcceptedGirlfriend
	return sig
}

// AdvancePhase plans the phase for the turn. Forward movement is gated on
// axis thresholds and suppressed entirely while safety is below the policy
// floor or a distancing signal is present; strong distancing steps the
// phase back one stage.
func AdvancePhase(state relationship.State, sig relationship.Signals, policy ScoringPolicy) relationship.Phase {
	phase := state.Phase

	if sig.Distancing >= policy.DistancingFloor {
		return phase.Prev()
	}
	if state.Safety < policy.SafetyFloor || sig.Distancing > 0 {
		return phase
	}

	switch phase {
	case relationship.PhaseHintCloser:
		if state.Trust >= 60 && state.Closeness >= 55 && state.Safety >= 65 {
			return relationship.PhaseAskExclusive
		}
	case relationship.PhaseAskExclusive:
		if state.ExclusiveAgreed && canAskGirlfriend(state) {
			return relationship.PhaseAskGirlfriend
		}
	case relationship.PhaseAskGirlfriend:
		if state.GirlfriendConfirmed {
			return relationship.PhaseSteady
		}
	}

	return phase
}

func canAskGirlfriend(state relationship.State) bool {
	return state.Safety >= 70 && state.Trust >= 75 &&
		state.Closeness >= 70 && state.Attraction >= 65
}
