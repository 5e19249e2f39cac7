// Package ai generates persona replies through the configured chat model.
// The model is bound to two tools: memory_lookup for recalling stored user
// facts mid-generation, and relationship_update for reporting how the
// latest exchange landed.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mireilabs/velora/backend/internal/config"
	"github.com/mireilabs/velora/backend/internal/fault"
	"github.com/mireilabs/velora/backend/internal/model/chat"
	"github.com/mireilabs/velora/backend/internal/model/persona"
	"github.com/mireilabs/velora/backend/internal/model/relationship"
	"github.com/mireilabs/velora/backend/internal/service/knowledge"
	"github.com/mireilabs/velora/backend/internal/service/memory"
	"github.com/mireilabs/velora/backend/pkg/retry"
)

// maxToolRounds bounds how many tool-call exchanges one turn may spend
// before the model must answer in plain text.
const maxToolRounds = 3

// Request carries everything the generator needs for one reply.
type Request struct {
	ConversationKey string
	Persona         *persona.Persona
	History         []chat.Message
	UserMessage     string
	Relationship    relationship.State
	Facts           []memory.Fact
	Knowledge       []knowledge.Snippet
}

// Reply is one generated turn. Decision is non-nil only when the model
// invoked the relationship_update tool.
type Reply struct {
	Text     string
	Decision *relationship.Decision
}

// Service encapsulates AI-powered reply generation.
type Service struct {
	chatModel     model.ChatModel
	memories      memory.Store
	prompts       *PromptBuilder
	cfg           config.AIConfig
	historyWindow int
	retryPolicy   retry.Policy
}

// NewService creates the generator and binds the conversation tools.
func NewService(ctx context.Context, memories memory.Store, cfg config.AIConfig, historyWindow int) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	if err := chatModel.BindTools(toolInfos()); err != nil {
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}
	return newService(chatModel, memories, cfg, historyWindow), nil
}

// NewServiceWith injects a chat model directly, for tests.
func NewServiceWith(chatModel model.ChatModel, memories memory.Store, historyWindow int) *Service {
	return newService(chatModel, memories, config.AIConfig{}, historyWindow)
}

func newService(chatModel model.ChatModel, memories memory.Store, cfg config.AIConfig, historyWindow int) *Service {
	policy := retry.Default
	policy.Retryable = fault.Transient
	return &Service{
		chatModel:     chatModel,
		memories:      memories,
		prompts:       NewPromptBuilder(),
		cfg:           cfg,
		historyWindow: historyWindow,
		retryPolicy:   policy,
	}
}

// GenerateReply runs the model, serving tool calls until it produces text.
func (s *Service) GenerateReply(ctx context.Context, req Request) (*Reply, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	messages := s.buildMessages(req)
	reply := &Reply{}
	lookupServed := false

	for round := 0; ; round++ {
		var resp *schema.Message
		err := retry.Do(ctx, s.retryPolicy, func() error {
			var genErr error
			resp, genErr = s.chatModel.Generate(ctx, messages)
			if genErr != nil {
				return classifyModelErr(genErr)
			}
			return nil
		})
		if err != nil {
			if fault.Transient(err) {
				// The retry budget is spent; to the caller this is a
				// failed generation, not a retryable outage.
				return nil, fmt.Errorf("%w: retries exhausted: %v", fault.ErrGenerationFailed, err)
			}
			return nil, err
		}

		if len(resp.ToolCalls) == 0 || round >= maxToolRounds {
			reply.Text = strings.TrimSpace(resp.Content)
			if reply.Text == "" {
				return nil, fmt.Errorf("%w: model returned empty reply", fault.ErrGenerationFailed)
			}
			log.Printf("[ai] generated reply for conversation=%s, persona=%s, length=%d, toolRounds=%d",
				req.ConversationKey, req.Persona.ID, len(reply.Text), round)
			return reply, nil
		}

		messages = append(messages, resp)
		for _, call := range resp.ToolCalls {
			result := s.dispatchTool(req.ConversationKey, call, reply, &lookupServed)
			messages = append(messages, schema.ToolMessage(result, call.ID))
		}
	}
}

// OpeningLine is the persona's first message in a fresh conversation;
// no model call involved.
func (s *Service) OpeningLine(p *persona.Persona) string {
	return p.OpeningLine
}

func (s *Service) buildMessages(req Request) []*schema.Message {
	system := s.prompts.Build(req.Persona, req.Relationship, req.Facts, req.Knowledge)

	messages := make([]*schema.Message, 0, len(req.History)+2)
	messages = append(messages, schema.SystemMessage(system))
	messages = append(messages, s.buildHistoryMessages(req.History)...)
	messages = append(messages, schema.UserMessage(req.UserMessage))
	return messages
}

func (s *Service) buildHistoryMessages(history []chat.Message) []*schema.Message {
	if len(history) == 0 {
		return nil
	}

	startIdx := 0
	if s.historyWindow > 0 && len(history) > s.historyWindow {
		startIdx = len(history) - s.historyWindow
	}

	out := make([]*schema.Message, 0, len(history)-startIdx)
	for _, msg := range history[startIdx:] {
		switch msg.Role {
		case "user":
			out = append(out, schema.UserMessage(msg.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return out
}

// dispatchTool executes one tool call and returns the content for the tool
// message. Unknown tools get an error string back rather than failing the
// turn. The store answers one memory lookup per turn; repeats are refused.
func (s *Service) dispatchTool(conversationKey string, call schema.ToolCall, reply *Reply, lookupServed *bool) string {
	switch call.Function.Name {
	case "memory_lookup":
		if *lookupServed {
			return "memory already consulted this turn"
		}
		*lookupServed = true
		return s.runMemoryLookup(conversationKey, call.Function.Arguments)
	case "relationship_update":
		return s.runRelationshipUpdate(call.Function.Arguments, reply)
	default:
		log.Printf("[ai] model requested unknown tool %q", call.Function.Name)
		return fmt.Sprintf("unknown tool %q", call.Function.Name)
	}
}

func (s *Service) runMemoryLookup(conversationKey, arguments string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "invalid arguments: " + err.Error()
	}

	facts := s.memories.Search(conversationKey, args.Query, 5)
	if len(facts) == 0 {
		return "no stored facts match"
	}

	lines := make([]string, len(facts))
	for i, f := range facts {
		lines[i] = "- " + f.Text
	}
	return strings.Join(lines, "\n")
}

func (s *Service) runRelationshipUpdate(arguments string, reply *Reply) string {
	var args struct {
		Support            float64 `json:"support"`
		Affection          float64 `json:"affection"`
		Flirt              float64 `json:"flirt"`
		Respect            float64 `json:"respect"`
		Rude               float64 `json:"rude"`
		BoundaryPush       float64 `json:"boundary_push"`
		Apology            float64 `json:"apology"`
		CommitmentTalk     float64 `json:"commitment_talk"`
		Distancing         float64 `json:"distancing"`
		AcceptedExclusive  bool    `json:"accepted_exclusive"`
		AcceptedGirlfriend bool    `json:"accepted_girlfriend"`
		Reason             string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "invalid arguments: " + err.Error()
	}

	reply.Decision = &relationship.Decision{
		Signals: relationship.Signals{
			Support:            clampUnit(args.Support),
			Affection:          clampUnit(args.Affection),
			Flirt:              clampUnit(args.Flirt),
			Respect:            clampUnit(args.Respect),
			Rude:               clampUnit(args.Rude),
			BoundaryPush:       clampUnit(args.BoundaryPush),
			Apology:            clampUnit(args.Apology),
			CommitmentTalk:     clampUnit(args.CommitmentTalk),
			Distancing:         clampUnit(args.Distancing),
			AcceptedExclusive:  args.AcceptedExclusive,
			AcceptedGirlfriend: args.AcceptedGirlfriend,
		},
		Reason: args.Reason,
	}
	return "recorded"
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toolInfos() []*schema.ToolInfo {
	signalParam := func(desc string) *schema.ParameterInfo {
		return &schema.ParameterInfo{Type: schema.Number, Desc: desc + " in [0,1]"}
	}

	return []*schema.ToolInfo{
		{
			Name: "memory_lookup",
			Desc: "Search the facts you have stored about this user. Call at most once per reply, when the user references something you might already know.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "keywords to search for", Required: true},
			}),
		},
		{
			Name: "relationship_update",
			Desc: "Report how the user's latest message landed emotionally. Call at most once per reply, before answering.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"support":             signalParam("supportiveness"),
				"affection":           signalParam("expressed affection"),
				"flirt":               signalParam("flirtation"),
				"respect":             signalParam("respectfulness"),
				"rude":                signalParam("rudeness"),
				"boundary_push":       signalParam("pushing against a stated boundary"),
				"apology":             signalParam("apology sincerity"),
				"commitment_talk":     signalParam("talk about commitment"),
				"distancing":          signalParam("pulling away or asking for space"),
				"accepted_exclusive":  {Type: schema.Boolean, Desc: "user accepted being exclusive"},
				"accepted_girlfriend": {Type: schema.Boolean, Desc: "user accepted making it official"},
				"reason":              {Type: schema.String, Desc: "one-line justification"},
			}),
		},
	}
}

// classifyModelErr folds provider errors into the fault taxonomy so the
// retry policy can tell transient outages from hard failures.
func classifyModelErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", fault.ErrProviderUnavailable, err)
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"timeout", "timed out", "connection refused", "connection reset", "503", "502", "temporarily"} {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("%w: %v", fault.ErrProviderUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", fault.ErrGenerationFailed, err)
}
