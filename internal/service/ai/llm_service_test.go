package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mireilabs/velora/backend/internal/fault"
	"github.com/mireilabs/velora/backend/internal/model/chat"
	"github.com/mireilabs/velora/backend/internal/model/persona"
	"github.com/mireilabs/velora/backend/internal/model/relationship"
	"github.com/mireilabs/velora/backend/internal/service/memory"
)

// fakeModel replays scripted responses and records the prompts it saw.
type fakeModel struct {
	responses []*schema.Message
	errs      []error
	calls     int
	seen      [][]*schema.Message
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	idx := f.calls
	f.calls++
	f.seen = append(f.seen, input)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx >= len(f.responses) {
		return nil, errors.New("no scripted response left")
	}
	return f.responses[idx], nil
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported in fake")
}

func (f *fakeModel) BindTools(tools []*schema.ToolInfo) error { return nil }

func testPersona() *persona.Persona {
	p := persona.Seed()[0]
	return &p
}

func testRequest() Request {
	return Request{
		ConversationKey: "conv-1",
		Persona:         testPersona(),
		UserMessage:     "hey, how was your day?",
		Relationship:    relationship.DefaultState(),
	}
}

func TestGenerateReplyPlainText(t *testing.T) {
	fake := &fakeModel{responses: []*schema.Message{
		schema.AssistantMessage("Better now that you're here.", nil),
	}}
	svc := NewServiceWith(fake, memory.NewMemoryStore(), 10)

	reply, err := svc.GenerateReply(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply.Text != "Better now that you're here." {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.Decision != nil {
		t.Error("no tool call, decision must stay nil")
	}

	first := fake.seen[0]
	if first[0].Role != schema.System {
		t.Fatal("first message must be the system prompt")
	}
	if !strings.Contains(first[0].Content, "Luna") {
		t.Error("system prompt should carry the persona identity")
	}
	if last := first[len(first)-1]; last.Role != schema.User || last.Content != "hey, how was your day?" {
		t.Errorf("last message should be the user turn, got %s %q", last.Role, last.Content)
	}
}

func TestGenerateReplyServesRelationshipUpdateTool(t *testing.T) {
	toolCall := schema.AssistantMessage("", nil)
	toolCall.ToolCalls = []schema.ToolCall{{
		ID: "call-1",
		Function: schema.FunctionCall{
			Name:      "relationship_update",
			Arguments: `{"affection":0.8,"respect":0.5,"reason":"warm message"}`,
		},
	}}

	fake := &fakeModel{responses: []*schema.Message{
		toolCall,
		schema.AssistantMessage("You always know what to say.", nil),
	}}
	svc := NewServiceWith(fake, memory.NewMemoryStore(), 10)

	reply, err := svc.GenerateReply(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply.Decision == nil {
		t.Fatal("relationship_update call should populate the decision")
	}
	if reply.Decision.Signals.Affection != 0.8 {
		t.Errorf("affection = %f", reply.Decision.Signals.Affection)
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want 2", fake.calls)
	}

	// Second call must see the tool result appended.
	second := fake.seen[1]
	last := second[len(second)-1]
	if last.Role != schema.Tool || last.Content != "recorded" {
		t.Errorf("tool result message = %s %q", last.Role, last.Content)
	}
}

func TestGenerateReplyServesMemoryLookupTool(t *testing.T) {
	store := memory.NewMemoryStore()
	store.Add("conv-1", memory.Fact{Text: "User prefers slow teasing.", Kind: "preference"})

	toolCall := schema.AssistantMessage("", nil)
	toolCall.ToolCalls = []schema.ToolCall{{
		ID: "call-7",
		Function: schema.FunctionCall{
			Name:      "memory_lookup",
			Arguments: `{"query":"teasing"}`,
		},
	}}

	fake := &fakeModel{responses: []*schema.Message{
		toolCall,
		schema.AssistantMessage("I remember what you like.", nil),
	}}
	svc := NewServiceWith(fake, store, 10)

	if _, err := svc.GenerateReply(context.Background(), testRequest()); err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}

	second := fake.seen[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "slow teasing") {
		t.Errorf("tool result should surface the fact, got %q", last.Content)
	}
}

func TestGenerateReplyRefusesSecondMemoryLookup(t *testing.T) {
	store := memory.NewMemoryStore()
	store.Add("conv-1", memory.Fact{Text: "User prefers slow teasing.", Kind: "preference"})

	lookup := func(id string) *schema.Message {
		msg := schema.AssistantMessage("", nil)
		msg.ToolCalls = []schema.ToolCall{{
			ID: id,
			Function: schema.FunctionCall{
				Name:      "memory_lookup",
				Arguments: `{"query":"teasing"}`,
			},
		}}
		return msg
	}

	fake := &fakeModel{responses: []*schema.Message{
		lookup("call-1"),
		lookup("call-2"),
		schema.AssistantMessage("Fine, I'll work with what I have.", nil),
	}}
	svc := NewServiceWith(fake, store, 10)

	if _, err := svc.GenerateReply(context.Background(), testRequest()); err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("calls = %d, want 3", fake.calls)
	}

	second := fake.seen[1]
	if got := second[len(second)-1].Content; !strings.Contains(got, "slow teasing") {
		t.Errorf("first lookup should be served from the store, got %q", got)
	}
	third := fake.seen[2]
	if got := third[len(third)-1].Content; got != "memory already consulted this turn" {
		t.Errorf("second lookup result = %q, want a refusal", got)
	}
}

func TestGenerateReplyRetriesTransientFailure(t *testing.T) {
	fake := &fakeModel{
		errs: []error{errors.New("dial tcp: connection refused")},
		responses: []*schema.Message{
			nil, // consumed by the scripted error
			schema.AssistantMessage("Sorry, got distracted. Hi.", nil),
		},
	}
	svc := NewServiceWith(fake, memory.NewMemoryStore(), 10)
	svc.retryPolicy.InitialDelay = 1 // keep the test fast

	reply, err := svc.GenerateReply(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply.Text == "" || fake.calls != 2 {
		t.Errorf("text=%q calls=%d, want retried success", reply.Text, fake.calls)
	}
}

func TestGenerateReplyExhaustedRetriesSurfaceGenerationFailure(t *testing.T) {
	fake := &fakeModel{errs: []error{
		errors.New("dial tcp: connection refused"),
		errors.New("dial tcp: connection refused"),
	}}
	svc := NewServiceWith(fake, memory.NewMemoryStore(), 10)
	svc.retryPolicy.InitialDelay = 1 // keep the test fast

	_, err := svc.GenerateReply(context.Background(), testRequest())
	if !errors.Is(err, fault.ErrGenerationFailed) {
		t.Fatalf("err = %v, want generation failure once the budget is spent", err)
	}
	if code := fault.Code(err); code != "generation_failed" {
		t.Errorf("wire code = %q, want generation_failed", code)
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want 2", fake.calls)
	}
}

func TestGenerateReplyDoesNotRetryHardFailure(t *testing.T) {
	fake := &fakeModel{errs: []error{errors.New("invalid request: content filtered")}}
	svc := NewServiceWith(fake, memory.NewMemoryStore(), 10)

	_, err := svc.GenerateReply(context.Background(), testRequest())
	if !errors.Is(err, fault.ErrGenerationFailed) {
		t.Fatalf("err = %v, want generation failure", err)
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, hard failures must not retry", fake.calls)
	}
}

func TestBuildHistoryMessagesWindow(t *testing.T) {
	svc := NewServiceWith(&fakeModel{}, memory.NewMemoryStore(), 3)

	history := []chat.Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
		{Role: "assistant", Content: "four"},
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "five"},
	}

	got := svc.buildHistoryMessages(history)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (window of 3 minus the skipped role)", len(got))
	}
	if got[len(got)-1].Content != "five" {
		t.Errorf("window should keep the newest messages, got %q", got[len(got)-1].Content)
	}
}
