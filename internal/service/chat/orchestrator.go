package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mireilabs/velora/backend/internal/fault"
	"github.com/mireilabs/velora/backend/internal/model/chat"
	"github.com/mireilabs/velora/backend/internal/model/persona"
	"github.com/mireilabs/velora/backend/internal/service/ai"
	"github.com/mireilabs/velora/backend/internal/service/audio"
	"github.com/mireilabs/velora/backend/internal/service/billing"
	"github.com/mireilabs/velora/backend/internal/service/knowledge"
	"github.com/mireilabs/velora/backend/internal/service/memory"
	"github.com/mireilabs/velora/backend/internal/service/relationship"
)

// Generator produces one persona reply.
type Generator interface {
	GenerateReply(ctx context.Context, req ai.Request) (*ai.Reply, error)
}

// Speech is the slice of the audio service the orchestrator needs.
type Speech interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Outbound is one server-to-client push.
type Outbound struct {
	Type            string `json:"type"` // reply | error
	ConversationKey string `json:"conversationKey"`
	TurnID          string `json:"turnId,omitempty"`
	Text            string `json:"text,omitempty"`
	AudioURL        string `json:"audioUrl,omitempty"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// PushFunc delivers an outbound frame to a connected client.
type PushFunc func(Outbound)

// Orchestrator runs the full turn pipeline for each flushed batch: credit
// reservation, transcription, generation, synthesis, persistence and the
// post-turn updates.
type Orchestrator struct {
	sessions      *Sessions
	personas      persona.Store
	gate          *billing.Gate
	speech        Speech
	clips         *audio.ClipStore
	generator     Generator
	history       HistorySink
	memories      memory.Store
	relationships *relationship.Service
	updater       *relationship.Updater
	retriever     knowledge.Retriever

	// sem bounds concurrent provider calls across all conversations.
	sem           *semaphore.Weighted
	flushTimeout  time.Duration
	historyWindow int

	pushMu sync.RWMutex
	pushes map[string]PushFunc

	// turnWG tracks in-flight turns for graceful shutdown.
	turnWG sync.WaitGroup
}

type OrchestratorDeps struct {
	Sessions      *Sessions
	Personas      persona.Store
	Gate          *billing.Gate
	Speech        Speech
	Clips         *audio.ClipStore
	Generator     Generator
	History       HistorySink
	Memories      memory.Store
	Relationships *relationship.Service
	Updater       *relationship.Updater
	Retriever     knowledge.Retriever
	MaxWorkers    int64
	FlushTimeout  time.Duration
	HistoryWindow int
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	workers := deps.MaxWorkers
	if workers <= 0 {
		workers = 16
	}
	return &Orchestrator{
		sessions:      deps.Sessions,
		personas:      deps.Personas,
		gate:          deps.Gate,
		speech:        deps.Speech,
		clips:         deps.Clips,
		generator:     deps.Generator,
		history:       deps.History,
		memories:      deps.Memories,
		relationships: deps.Relationships,
		updater:       deps.Updater,
		retriever:     deps.Retriever,
		sem:           semaphore.NewWeighted(workers),
		flushTimeout:  deps.FlushTimeout,
		historyWindow: deps.HistoryWindow,
		pushes:        make(map[string]PushFunc),
	}
}

// Register installs the push handle for a connected client. The previous
// handle, if any, is replaced.
func (o *Orchestrator) Register(conversationKey string, push PushFunc) {
	o.pushMu.Lock()
	o.pushes[conversationKey] = push
	o.pushMu.Unlock()
}

// Unregister drops the push handle. In-flight turns keep running; their
// results are persisted and the push is simply skipped.
func (o *Orchestrator) Unregister(conversationKey string) {
	o.pushMu.Lock()
	delete(o.pushes, conversationKey)
	o.pushMu.Unlock()
}

// Wait blocks until in-flight turns finish, for graceful shutdown.
func (o *Orchestrator) Wait() {
	o.turnWG.Wait()
}

// HandleBatch is the buffer's FlushFunc. The turn runs on a detached
// context: a client disconnect must not abort work already paid for.
func (o *Orchestrator) HandleBatch(conversationKey string, batch []Inbound) {
	o.turnWG.Add(1)
	defer o.turnWG.Done()

	ctx := context.Background()
	if o.flushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.flushTimeout)
		defer cancel()
	}

	turn, err := o.runTurn(ctx, conversationKey, batch)
	if err != nil {
		code := fault.Code(err)
		log.Printf("[chat] turn failed conversation=%s code=%s err=%v", conversationKey, code, err)
		o.push(Outbound{
			Type:            "error",
			ConversationKey: conversationKey,
			Code:            code,
			Message:         publicMessage(code),
		})
		return
	}

	// The reply goes out first; persistence and the post-turn updates
	// must not delay dispatch.
	o.push(Outbound{
		Type:            "reply",
		ConversationKey: conversationKey,
		TurnID:          turn.ID,
		Text:            turn.ReplyText,
		AudioURL:        turn.AudioURL,
	})

	o.persistTurn(context.WithoutCancel(ctx), turn)
	o.rememberFacts(turn)
	o.updater.Enqueue(turn.ConversationKey, turn.UserText, turn.RelDecision)
}

func (o *Orchestrator) runTurn(ctx context.Context, conversationKey string, batch []Inbound) (*chat.Turn, error) {
	started := time.Now()

	conv, err := o.sessions.Get(ctx, conversationKey)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}
	p, ok := o.personas.FindByID(conv.PersonaID)
	if !ok {
		return nil, fmt.Errorf("resolve persona %q: %w", conv.PersonaID, ErrPersonaNotFound)
	}

	voice := false
	for _, msg := range batch {
		if msg.Voice {
			voice = true
			break
		}
	}
	feature := billing.FeatureText
	if voice {
		feature = billing.FeatureVoice
	}

	// Credits are reserved before any provider call; a denial costs the
	// user nothing and touches no state.
	res, err := o.gate.Reserve(ctx, conv.UserID, feature)
	if err != nil {
		return nil, err
	}
	// Every exit path resolves the reservation: Commit on the success
	// path below, Release here for all the rest.
	defer res.MustRelease(context.WithoutCancel(ctx))

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: worker pool: %v", fault.ErrGenerationFailed, err)
	}
	defer o.sem.Release(1)

	userText, err := o.assembleUserText(ctx, batch)
	if err != nil {
		return nil, err
	}

	recent, err := o.history.Recent(ctx, conversationKey, o.historyWindow)
	if err != nil {
		log.Printf("[chat] history read failed conversation=%s: %v", conversationKey, err)
		recent = nil
	}

	relState := o.relationships.Snapshot(conversationKey)
	facts := o.memories.List(conversationKey)
	snippets := knowledge.Lookup(ctx, o.retriever, p.ID, userText)

	reply, err := o.generator.GenerateReply(ctx, ai.Request{
		ConversationKey: conversationKey,
		Persona:         &p,
		History:         recent,
		UserMessage:     userText,
		Relationship:    relState,
		Facts:           facts,
		Knowledge:       snippets,
	})
	if err != nil {
		return nil, err
	}

	audioURL := ""
	if voice {
		clip, err := o.speech.Synthesize(ctx, reply.Text, p.VoiceID)
		if err != nil {
			return nil, err
		}
		audioURL = "/api/audio/" + o.clips.Put(clip, "audio/mpeg")
	}

	// The user got (or is about to get) the reply; the credits are spent.
	if err := res.Commit(context.WithoutCancel(ctx)); err != nil {
		log.Printf("[billing] commit failed conversation=%s: %v", conversationKey, err)
	}

	turn := &chat.Turn{
		ID:              uuid.NewString(),
		ConversationKey: conversationKey,
		UserText:        userText,
		ReplyText:       reply.Text,
		AudioURL:        audioURL,
		Voice:           voice,
		CostUnits:       res.Units(),
		Latency:         time.Since(started),
		CreatedAt:       time.Now().UTC(),
		RelDecision:     reply.Decision,
	}

	return turn, nil
}

// assembleUserText joins the batch into one user message, transcribing
// audio parts in arrival order.
func (o *Orchestrator) assembleUserText(ctx context.Context, batch []Inbound) (string, error) {
	parts := make([]string, 0, len(batch))
	for _, msg := range batch {
		if msg.IsAudio() {
			text, err := o.speech.Transcribe(ctx, msg.Audio, msg.MimeType)
			if err != nil {
				return "", err
			}
			if text = strings.TrimSpace(text); text != "" {
				parts = append(parts, text)
			}
			continue
		}
		if text := strings.TrimSpace(msg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: batch reduced to empty input", fault.ErrProviderRejectedInput)
	}
	return strings.Join(parts, "\n"), nil
}

func (o *Orchestrator) persistTurn(ctx context.Context, turn *chat.Turn) {
	userMsg := chat.Message{
		ID:              uuid.NewString(),
		ConversationKey: turn.ConversationKey,
		Role:            "user",
		Content:         turn.UserText,
		CreatedAt:       turn.CreatedAt,
	}
	assistantMsg := chat.Message{
		ID:              uuid.NewString(),
		ConversationKey: turn.ConversationKey,
		Role:            "assistant",
		Content:         turn.ReplyText,
		AudioURL:        turn.AudioURL,
		CreatedAt:       turn.CreatedAt,
	}
	if err := o.history.Append(ctx, userMsg); err != nil {
		log.Printf("[chat] history append failed conversation=%s: %v", turn.ConversationKey, err)
	}
	if err := o.history.Append(ctx, assistantMsg); err != nil {
		log.Printf("[chat] history append failed conversation=%s: %v", turn.ConversationKey, err)
	}
}

// rememberFacts extracts at most one durable fact from the latest user
// message and records which turn produced it.
func (o *Orchestrator) rememberFacts(turn *chat.Turn) {
	if fact, ok := memory.Extract(turn.UserText); ok {
		fact.TurnID = turn.ID
		o.memories.Add(turn.ConversationKey, fact)
		log.Printf("[memory] stored %s fact for conversation=%s turn=%s", fact.Kind, turn.ConversationKey, turn.ID)
	}
}

func (o *Orchestrator) push(out Outbound) {
	o.pushMu.RLock()
	push, ok := o.pushes[out.ConversationKey]
	o.pushMu.RUnlock()
	if !ok {
		log.Printf("[chat] no client attached, dropping %s push for conversation=%s", out.Type, out.ConversationKey)
		return
	}
	push(out)
}

// publicMessage keeps wire errors stable and free of internals.
func publicMessage(code string) string {
	switch code {
	case "credit_denied":
		return "not enough credits for this reply"
	case "provider_unavailable":
		return "a backing service is unavailable, try again shortly"
	case "rejected_input":
		return "that input could not be processed"
	case "quota_exceeded":
		return "service quota exhausted, try again later"
	case "generation_failed":
		return "could not generate a reply"
	default:
		return "internal error"
	}
}
