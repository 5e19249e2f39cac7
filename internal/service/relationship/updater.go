package relationship

import (
	"log"
	"sync"
	"time"

	"github.com/mireilabs/velora/backend/internal/model/relationship"
)

const (
	// decayGrace is how long a conversation may idle before axes start
	// eroding.
	decayGrace = 72 * time.Hour
	// decayPerDay is the per-day erosion applied to closeness and
	// attraction past the grace window. Trust fades at half that rate;
	// safety never decays.
	decayPerDay = 1.5
)

// Service applies a turn's relationship effects. Apply is synchronous;
// Updater wraps it with per-conversation ordered async delivery.
type Service struct {
	store  Store
	policy ScoringPolicy
}

func NewService(store Store, policy ScoringPolicy) *Service {
	return &Service{store: store, policy: policy}
}

// Snapshot returns the current state with inactivity decay folded in, for
// use in prompt building. The decayed state is not persisted here; Apply
// persists it on the next turn.
func (s *Service) Snapshot(conversationKey string) relationship.State {
	return decay(s.store.Get(conversationKey), now())
}

// Apply folds the user's latest message and the model's optional decision
// into the stored state, plans the phase, and persists the result.
func (s *Service) Apply(conversationKey, userMessage string, decision *relationship.Decision) relationship.State {
	state := decay(s.store.Get(conversationKey), now())

	sig := ClassifySignals(userMessage)
	sig = BlendDecision(sig, decision, s.policy.ModelDecisionWeight)

	next := ApplySignals(state, sig, s.policy)

	// Milestones only count when the persona has actually reached the
	// phase that asks the question.
	if sig.AcceptedExclusive && state.Phase.Rank() >= relationship.PhaseAskExclusive.Rank() {
		next.ExclusiveAgreed = true
	}
	if sig.AcceptedGirlfriend && state.Phase == relationship.PhaseAskGirlfriend {
		next.GirlfriendConfirmed = true
	}

	next.Phase = AdvancePhase(next, sig, s.policy)
	next.TurnCount = state.TurnCount + 1
	next.LastInteractionAt = now()

	s.store.Put(conversationKey, next)
	return next
}

// decay erodes warmth axes after long silence. Everything here saturates,
// so repeated application is stable.
func decay(state relationship.State, at time.Time) relationship.State {
	if state.LastInteractionAt.IsZero() {
		return state
	}
	idle := at.Sub(state.LastInteractionAt)
	if idle <= decayGrace {
		return state
	}
	days := float64(idle-decayGrace) / float64(24*time.Hour)
	state.Closeness = satDown(state.Closeness, days*decayPerDay)
	state.Attraction = satDown(state.Attraction, days*decayPerDay)
	state.Trust = satDown(state.Trust, days*decayPerDay/2)
	state.Clamp()
	return state
}

// Updater delivers Apply calls asynchronously while keeping them ordered
// within a conversation. Each conversation gets a serial queue; queues are
// torn down once drained.
type Updater struct {
	svc *Service

	mu     sync.Mutex
	queues map[string]*updateQueue
	wg     sync.WaitGroup
}

type updateQueue struct {
	pending []updateJob
	running bool
}

type updateJob struct {
	userMessage string
	decision    *relationship.Decision
}

func NewUpdater(svc *Service) *Updater {
	return &Updater{svc: svc, queues: make(map[string]*updateQueue)}
}

// Enqueue schedules a post-turn update. It never blocks the caller.
func (u *Updater) Enqueue(conversationKey, userMessage string, decision *relationship.Decision) {
	u.mu.Lock()
	q, ok := u.queues[conversationKey]
	if !ok {
		q = &updateQueue{}
		u.queues[conversationKey] = q
	}
	q.pending = append(q.pending, updateJob{userMessage: userMessage, decision: decision})
	if q.running {
		u.mu.Unlock()
		return
	}
	q.running = true
	u.mu.Unlock()

	u.wg.Add(1)
	go u.drain(conversationKey, q)
}

func (u *Updater) drain(conversationKey string, q *updateQueue) {
	defer u.wg.Done()
	for {
		u.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			delete(u.queues, conversationKey)
			u.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending = q.pending[1:]
		u.mu.Unlock()

		state := u.svc.Apply(conversationKey, job.userMessage, job.decision)
		log.Printf("[relationship] conversation=%s phase=%s trust=%.1f closeness=%.1f attraction=%.1f safety=%.1f",
			conversationKey, state.Phase, state.Trust, state.Closeness, state.Attraction, state.Safety)
	}
}

// Wait blocks until all enqueued updates have been applied. Used in tests
// and graceful shutdown.
func (u *Updater) Wait() {
	u.wg.Wait()
}
