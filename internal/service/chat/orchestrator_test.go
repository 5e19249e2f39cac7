package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mireilabs/velora/backend/internal/config"
	"github.com/mireilabs/velora/backend/internal/fault"
	"github.com/mireilabs/velora/backend/internal/model/persona"
	"github.com/mireilabs/velora/backend/internal/service/ai"
	"github.com/mireilabs/velora/backend/internal/service/audio"
	"github.com/mireilabs/velora/backend/internal/service/billing"
	"github.com/mireilabs/velora/backend/internal/service/memory"
	relsvc "github.com/mireilabs/velora/backend/internal/service/relationship"
)

type fakeSpeech struct {
	transcribeCalls atomic.Int32
	synthCalls      atomic.Int32
	transcribeText  string
	synthErr        error
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	f.transcribeCalls.Add(1)
	return f.transcribeText, nil
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	f.synthCalls.Add(1)
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return []byte("audio-bytes"), nil
}

type fakeGenerator struct {
	reply *ai.Reply
	err   error
	calls atomic.Int32
}

func (f *fakeGenerator) GenerateReply(ctx context.Context, req ai.Request) (*ai.Reply, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

type pushRecorder struct {
	mu     sync.Mutex
	frames []Outbound
}

func (p *pushRecorder) push(out Outbound) {
	p.mu.Lock()
	p.frames = append(p.frames, out)
	p.mu.Unlock()
}

func (p *pushRecorder) last(t *testing.T) Outbound {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) == 0 {
		t.Fatal("no frames pushed")
	}
	return p.frames[len(p.frames)-1]
}

type fixture struct {
	orch      *Orchestrator
	sessions  *Sessions
	ledger    *billing.MemoryLedger
	history   *MemoryHistory
	memories  *memory.MemoryStore
	relStore  *relsvc.MemoryStore
	updater   *relsvc.Updater
	speech    *fakeSpeech
	generator *fakeGenerator
	convKey   string
}

func (fx *fixture) balance(t *testing.T) int64 {
	t.Helper()
	bal, err := fx.ledger.Balance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()

	personas := persona.NewMemoryStore(persona.Seed())
	sessions := NewSessions(personas)
	conv, err := sessions.Create(context.Background(), "user-1", "luna")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	ledger := billing.NewMemoryLedger()
	if balance > 0 {
		ledger.Topup(context.Background(), "user-1", balance)
	}
	gate := billing.NewGate(ledger, config.BillingConfig{TextCost: 1, VoiceCost: 5, Timeout: time.Second})

	history := NewMemoryHistory(0)
	memories := memory.NewMemoryStore()
	relStore := relsvc.NewMemoryStore()
	relService := relsvc.NewService(relStore, relsvc.DefaultScoringPolicy())
	updater := relsvc.NewUpdater(relService)
	speech := &fakeSpeech{transcribeText: "hello from voice"}
	generator := &fakeGenerator{reply: &ai.Reply{Text: "Hello you."}}

	orch := NewOrchestrator(OrchestratorDeps{
		Sessions:      sessions,
		Personas:      personas,
		Gate:          gate,
		Speech:        speech,
		Clips:         audio.NewClipStore(),
		Generator:     generator,
		History:       history,
		Memories:      memories,
		Relationships: relService,
		Updater:       updater,
		MaxWorkers:    4,
		FlushTimeout:  5 * time.Second,
		HistoryWindow: 10,
	})

	return &fixture{
		orch: orch, sessions: sessions, ledger: ledger, history: history,
		memories: memories, relStore: relStore, updater: updater,
		speech: speech, generator: generator, convKey: conv.Key,
	}
}

func TestTurnTextSuccess(t *testing.T) {
	fx := newFixture(t, 10)
	rec := &pushRecorder{}
	fx.orch.Register(fx.convKey, rec.push)

	fx.orch.HandleBatch(fx.convKey, []Inbound{{Text: "I like slow teasing"}})
	fx.updater.Wait()

	frame := rec.last(t)
	if frame.Type != "reply" || frame.Text != "Hello you." {
		t.Fatalf("frame = %+v", frame)
	}

	if bal := fx.balance(t); bal != 9 {
		t.Errorf("balance = %d, want 9 after text turn", bal)
	}

	recent, _ := fx.history.Recent(context.Background(), fx.convKey, 10)
	if len(recent) != 2 || recent[0].Role != "user" || recent[1].Role != "assistant" {
		t.Fatalf("history = %+v", recent)
	}

	if facts := fx.memories.List(fx.convKey); len(facts) != 1 || !strings.Contains(facts[0].Text, "slow teasing") {
		t.Errorf("facts = %+v", facts)
	}

	if state := fx.relStore.Get(fx.convKey); state.TurnCount != 1 {
		t.Errorf("relationship turn count = %d, want 1", state.TurnCount)
	}
}

func TestTurnFactCarriesTurnProvenance(t *testing.T) {
	fx := newFixture(t, 10)
	rec := &pushRecorder{}
	fx.orch.Register(fx.convKey, rec.push)

	fx.orch.HandleBatch(fx.convKey, []Inbound{{Text: "I love rainy mornings"}})

	frame := rec.last(t)
	if frame.TurnID == "" {
		t.Fatal("reply frame must carry the turn id")
	}
	facts := fx.memories.List(fx.convKey)
	if len(facts) != 1 {
		t.Fatalf("facts = %+v, want one", facts)
	}
	if facts[0].TurnID != frame.TurnID {
		t.Errorf("fact turn id = %q, want %q", facts[0].TurnID, frame.TurnID)
	}
}

func TestTurnReplyDispatchPrecedesPersistence(t *testing.T) {
	fx := newFixture(t, 10)

	var historyAtPush atomic.Int32
	historyAtPush.Store(-1)
	fx.orch.Register(fx.convKey, func(out Outbound) {
		recent, _ := fx.history.Recent(context.Background(), fx.convKey, 10)
		historyAtPush.Store(int32(len(recent)))
	})

	fx.orch.HandleBatch(fx.convKey, []Inbound{{Text: "I like slow teasing"}})

	if got := historyAtPush.Load(); got != 0 {
		t.Errorf("history length at push time = %d, want 0", got)
	}
	recent, _ := fx.history.Recent(context.Background(), fx.convKey, 10)
	if len(recent) != 2 {
		t.Errorf("history after batch = %d messages, want 2", len(recent))
	}
}

func TestTurnCreditDenied(t *testing.T) {
	fx := newFixture(t, 0)
	rec := &pushRecorder{}
	fx.orch.Register(fx.convKey, rec.push)

	fx.orch.HandleBatch(fx.convKey, []Inbound{
		{Audio: []byte("blob"), MimeType: "audio/webm", Voice: true},
	})

	frame := rec.last(t)
	if frame.Type != "error" || frame.Code != "credit_denied" {
		t.Fatalf("frame = %+v, want credit_denied error", frame)
	}

	// A denial happens before any provider work or state change.
	if fx.speech.transcribeCalls.Load() != 0 {
		t.Error("denied turn must not transcribe")
	}
	if fx.generator.calls.Load() != 0 {
		t.Error("denied turn must not generate")
	}
	if state := fx.relStore.Get(fx.convKey); state.TurnCount != 0 {
		t.Error("denied turn must leave relationship state untouched")
	}
	if recent, _ := fx.history.Recent(context.Background(), fx.convKey, 10); len(recent) != 0 {
		t.Error("denied turn must not persist history")
	}
}

func TestTurnGenerationFailureReleasesCredits(t *testing.T) {
	fx := newFixture(t, 10)
	fx.generator.err = fmt.Errorf("%w: model exploded", fault.ErrGenerationFailed)
	rec := &pushRecorder{}
	fx.orch.Register(fx.convKey, rec.push)

	fx.orch.HandleBatch(fx.convKey, []Inbound{{Text: "hi there"}})

	frame := rec.last(t)
	if frame.Code != "generation_failed" {
		t.Fatalf("code = %q", frame.Code)
	}
	if bal := fx.balance(t); bal != 10 {
		t.Errorf("balance = %d, failed turn must refund the hold", bal)
	}
	if recent, _ := fx.history.Recent(context.Background(), fx.convKey, 10); len(recent) != 0 {
		t.Error("failed turn must not persist history")
	}
}

func TestTurnVoiceSuccess(t *testing.T) {
	fx := newFixture(t, 10)
	rec := &pushRecorder{}
	fx.orch.Register(fx.convKey, rec.push)

	fx.orch.HandleBatch(fx.convKey, []Inbound{
		{Audio: []byte("blob"), MimeType: "audio/webm", Voice: true},
	})

	frame := rec.last(t)
	if frame.Type != "reply" {
		t.Fatalf("frame = %+v", frame)
	}
	if !strings.HasPrefix(frame.AudioURL, "/api/audio/") {
		t.Errorf("audio url = %q", frame.AudioURL)
	}
	if fx.speech.transcribeCalls.Load() != 1 || fx.speech.synthCalls.Load() != 1 {
		t.Errorf("speech calls: transcribe=%d synth=%d, want 1/1",
			fx.speech.transcribeCalls.Load(), fx.speech.synthCalls.Load())
	}
	if bal := fx.balance(t); bal != 5 {
		t.Errorf("balance = %d, want 5 after voice turn", bal)
	}
}

func TestTurnSynthesisFailureReleasesCredits(t *testing.T) {
	fx := newFixture(t, 10)
	fx.speech.synthErr = fmt.Errorf("%w: both providers down", fault.ErrProviderUnavailable)
	rec := &pushRecorder{}
	fx.orch.Register(fx.convKey, rec.push)

	fx.orch.HandleBatch(fx.convKey, []Inbound{{Text: "say it out loud", Voice: true}})

	frame := rec.last(t)
	if frame.Code != "provider_unavailable" {
		t.Fatalf("code = %q", frame.Code)
	}
	if bal := fx.balance(t); bal != 10 {
		t.Errorf("balance = %d, want full refund", bal)
	}
}

func TestTurnCompletesAfterClientDetaches(t *testing.T) {
	fx := newFixture(t, 10)
	// No push handle registered at all: the client dropped before the
	// flush ran. The turn must still complete and persist.
	fx.orch.HandleBatch(fx.convKey, []Inbound{{Text: "I love rainy mornings"}})
	fx.updater.Wait()

	recent, _ := fx.history.Recent(context.Background(), fx.convKey, 10)
	if len(recent) != 2 {
		t.Fatalf("history = %d messages, want the detached turn persisted", len(recent))
	}
	if bal := fx.balance(t); bal != 9 {
		t.Errorf("balance = %d, completed turn still costs credits", bal)
	}
	if state := fx.relStore.Get(fx.convKey); state.TurnCount != 1 {
		t.Error("relationship update should still apply")
	}
}

func TestTurnUnknownConversation(t *testing.T) {
	fx := newFixture(t, 10)
	rec := &pushRecorder{}
	fx.orch.Register("ghost", rec.push)

	fx.orch.HandleBatch("ghost", []Inbound{{Text: "anyone home?"}})

	frame := rec.last(t)
	if frame.Type != "error" || frame.Code != "internal" {
		t.Fatalf("frame = %+v", frame)
	}
	if fx.generator.calls.Load() != 0 {
		t.Error("unknown conversation must not reach the generator")
	}
}
