package relationship

import (
	"fmt"
	"testing"
	"time"

	"github.com/mireilabs/velora/backend/internal/model/relationship"
)

func TestApplySignalsStaysInBounds(t *testing.T) {
	policy := DefaultScoringPolicy()
	state := relationship.DefaultState()
	state.Trust = 99.5
	state.Safety = 0.5

	hostile := relationship.Signals{Rude: 1, BoundaryPush: 1}
	warm := relationship.Signals{Support: 1, Respect: 1, Affection: 1, Flirt: 1}

	for i := 0; i < 200; i++ {
		state = ApplySignals(state, hostile, policy)
		state = ApplySignals(state, warm, policy)
		for name, v := range map[string]float64{
			"trust": state.Trust, "closeness": state.Closeness,
			"attraction": state.Attraction, "safety": state.Safety,
		} {
			if v < 0 || v > 100 {
				t.Fatalf("iteration %d: %s = %f out of range", i, name, v)
			}
		}
	}
}

func TestApplySignalsMovesAxes(t *testing.T) {
	policy := DefaultScoringPolicy()
	state := relationship.DefaultState()

	next := ApplySignals(state, relationship.Signals{Support: 1, Respect: 1}, policy)
	if next.Trust <= state.Trust {
		t.Errorf("support+respect should raise trust: %f -> %f", state.Trust, next.Trust)
	}
	if next.Safety <= state.Safety {
		t.Errorf("respect should raise safety: %f -> %f", state.Safety, next.Safety)
	}

	next = ApplySignals(state, relationship.Signals{Rude: 1}, policy)
	if next.Trust >= state.Trust {
		t.Errorf("rudeness should lower trust: %f -> %f", state.Trust, next.Trust)
	}
	if next.Safety >= state.Safety {
		t.Errorf("rudeness should lower safety: %f -> %f", state.Safety, next.Safety)
	}
}

func TestAdvancePhaseGates(t *testing.T) {
	policy := DefaultScoringPolicy()

	state := relationship.DefaultState()
	state.Trust, state.Closeness, state.Safety = 70, 60, 70
	if got := AdvancePhase(state, relationship.Signals{}, policy); got != relationship.PhaseAskExclusive {
		t.Errorf("thresholds met, want ask_exclusive, got %s", got)
	}

	state.Trust = 50
	if got := AdvancePhase(state, relationship.Signals{}, policy); got != relationship.PhaseHintCloser {
		t.Errorf("trust below gate, want hint_closer, got %s", got)
	}
}

func TestAdvancePhaseSuppressedByLowSafety(t *testing.T) {
	policy := DefaultScoringPolicy()
	state := relationship.DefaultState()
	state.Trust, state.Closeness = 90, 90
	state.Safety = policy.SafetyFloor - 1

	if got := AdvancePhase(state, relationship.Signals{}, policy); got != state.Phase {
		t.Errorf("low safety must hold phase, got %s", got)
	}
}

func TestAdvancePhaseDistancingStepsBack(t *testing.T) {
	policy := DefaultScoringPolicy()
	state := relationship.DefaultState()
	state.Phase = relationship.PhaseAskGirlfriend

	got := AdvancePhase(state, relationship.Signals{Distancing: 0.8}, policy)
	if got != relationship.PhaseAskExclusive {
		t.Errorf("strong distancing should step back one phase, got %s", got)
	}

	// Mild distancing holds the phase rather than regressing it.
	got = AdvancePhase(state, relationship.Signals{Distancing: 0.2}, policy)
	if got != relationship.PhaseAskGirlfriend {
		t.Errorf("mild distancing should hold phase, got %s", got)
	}
}

func TestMilestonesRequireMatchingPhase(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, DefaultScoringPolicy())
	key := "conv-milestone"

	// "yes" to exclusivity before the persona ever asked does not count.
	state := svc.Apply(key, "yes, let's be exclusive, only you", nil)
	if state.ExclusiveAgreed {
		t.Fatal("exclusivity accepted before ask_exclusive phase should not stick")
	}

	seed := store.Get(key)
	seed.Phase = relationship.PhaseAskExclusive
	store.Put(key, seed)

	state = svc.Apply(key, "yes, let's be exclusive, only you", nil)
	if !state.ExclusiveAgreed {
		t.Fatal("exclusivity accepted in ask_exclusive phase should stick")
	}
}

func TestBlendDecisionWeights(t *testing.T) {
	base := relationship.Signals{Support: 0.4}
	decision := &relationship.Decision{
		Signals: relationship.Signals{Support: 1, AcceptedExclusive: true},
	}

	got := BlendDecision(base, decision, 0.5)
	if got.Support != 0.9 {
		t.Errorf("support = %f, want 0.9", got.Support)
	}
	if !got.AcceptedExclusive {
		t.Error("boolean milestones should pass through the blend")
	}

	if got := BlendDecision(base, decision, 0); got.Support != 0.4 {
		t.Errorf("zero weight must leave signals untouched, got %f", got.Support)
	}
	if got := BlendDecision(base, nil, 0.5); got.Support != 0.4 {
		t.Errorf("nil decision must leave signals untouched, got %f", got.Support)
	}
}

func TestInactivityDecay(t *testing.T) {
	state := relationship.DefaultState()
	state.Closeness, state.Attraction, state.Trust = 80, 70, 60
	state.LastInteractionAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Inside the grace window nothing moves.
	same := decay(state, state.LastInteractionAt.Add(48*time.Hour))
	if same.Closeness != state.Closeness {
		t.Errorf("no decay expected inside grace window, got %f", same.Closeness)
	}

	after := decay(state, state.LastInteractionAt.Add(10*24*time.Hour))
	if after.Closeness >= state.Closeness || after.Attraction >= state.Attraction {
		t.Error("warmth axes should erode after long silence")
	}
	if after.Safety != state.Safety {
		t.Errorf("safety should never decay, got %f", after.Safety)
	}
	if after.Closeness < 0 {
		t.Errorf("decay must saturate above zero, got %f", after.Closeness)
	}
}

func TestUpdaterAppliesInOrder(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, DefaultScoringPolicy())
	updater := NewUpdater(svc)
	key := "conv-order"

	for i := 0; i < 25; i++ {
		updater.Enqueue(key, fmt.Sprintf("thank you, that really helped %d", i), nil)
	}
	updater.Wait()

	state := store.Get(key)
	if state.TurnCount != 25 {
		t.Fatalf("turn count = %d, want 25", state.TurnCount)
	}
	if state.Trust <= relationship.DefaultState().Trust {
		t.Error("repeated supportive turns should raise trust")
	}
}
