package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"whatsapp-agent/backend/ai"
	"whatsapp-agent/backend/pkg/logger"
)

const summaryPreviewLen = 200

var errUnknownTool = errors.New("unknown tool")

// ToolRunner runs a tool-augmented language model call
type ToolRunner interface {
	RunTools(ctx context.Context, system, prompt string, tools []ai.Tool, handle ai.ToolHandler) (string, error)
}

// GenerateInput is the message a reply is generated for
type GenerateInput struct {
	Text    string
	Sender  string
	Group   string
	Context string
}

// Generation is the model's reply and the actions it proposed, in call order
type Generation struct {
	ReplyText string
	Proposals []Proposal
}

// Draft returns the text to put up for approval: the final reply, or the last drafted reply when the
// model ended without text
func (g *Generation) Draft() string {
	if strings.TrimSpace(g.ReplyText) != "" {
		return g.ReplyText
	}
	for i := len(g.Proposals) - 1; i >= 0; i-- {
		if d, ok := g.Proposals[i].(DraftReply); ok {
			return d.Reply
		}
	}
	return ""
}

// Generator produces replies and action proposals
type Generator struct {
	llm     ToolRunner
	prompts Prompts
	timeout time.Duration
	log     *logger.Logger
}

// NewGenerator creates a new generator
func NewGenerator(llm ToolRunner, prompts Prompts, timeout time.Duration, log *logger.Logger) *Generator {
	return &Generator{llm: llm, prompts: prompts, timeout: timeout, log: log}
}

// Generate runs the model once. Proposals are advisory; nothing is dispatched here.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (*Generation, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	rec := &proposalRecorder{input: in}
	reply, err := g.llm.RunTools(ctx, g.prompts.System, GenerationPrompt(in.Text, in.Context), Tools(), rec.handle)
	if err != nil {
		return nil, externalError("generate", err)
	}

	gen := &Generation{ReplyText: reply, Proposals: rec.list()}
	g.log.Debug("Reply generated", "proposals", len(gen.Proposals), "reply_len", len(reply))
	return gen, nil
}

// Tools returns the tool definitions offered to the model
func Tools() []ai.Tool {
	return []ai.Tool{
		{
			Name:        "draft_reply",
			Description: "Draft a reply to send back to the sender once a reviewer approves it.",
			InputSchema: objectSchema(map[string]any{
				"reply_text": stringProp("The full text of the reply."),
			}, "reply_text"),
		},
		{
			Name:        "escalate_to_dev",
			Description: "Flag the message for the developers.",
			InputSchema: objectSchema(map[string]any{
				"reason": stringProp("Why a developer needs to look at this."),
				"priority": map[string]any{
					"type":        "string",
					"enum":        []string{PriorityLow, PriorityNormal, PriorityHigh},
					"description": "How urgent the escalation is.",
				},
			}, "reason"),
		},
		{
			Name:        "forward_to_personal",
			Description: "Flag the message for forwarding to a team member's personal number.",
			InputSchema: objectSchema(map[string]any{
				"reason":  stringProp("Why the message should be forwarded."),
				"summary": stringProp("Optional short summary of the message."),
			}, "reason"),
		},
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

type proposalRecorder struct {
	input     GenerateInput
	mu        sync.Mutex
	proposals []Proposal
}

func (r *proposalRecorder) list() []Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Proposal(nil), r.proposals...)
}

func (r *proposalRecorder) add(p Proposal) {
	r.mu.Lock()
	r.proposals = append(r.proposals, p)
	r.mu.Unlock()
}

func (r *proposalRecorder) handle(_ context.Context, call ai.ToolCall) (string, error) {
	p, err := r.decode(call)
	if err != nil {
		return "", err
	}
	r.add(p)
	return fmt.Sprintf("%s recorded", call.Name), nil
}

func (r *proposalRecorder) decode(call ai.ToolCall) (Proposal, error) {
	input := call.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	switch call.Name {
	case "draft_reply":
		var args struct {
			ReplyText string `json:"reply_text"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("decode draft_reply input: %w", err)
		}
		if strings.TrimSpace(args.ReplyText) == "" {
			return nil, errors.New("reply_text is required")
		}
		return DraftReply{Reply: args.ReplyText, OriginalMessage: r.input.Text, Sender: r.input.Sender}, nil

	case "escalate_to_dev":
		var args struct {
			Reason   string `json:"reason"`
			Priority string `json:"priority"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("decode escalate_to_dev input: %w", err)
		}
		if strings.TrimSpace(args.Reason) == "" {
			return nil, errors.New("reason is required")
		}
		if args.Priority == "" {
			args.Priority = PriorityNormal
		}
		return ForwardDev{Reason: args.Reason, Priority: args.Priority, OriginalMessage: r.input.Text, Group: r.input.Group}, nil

	case "forward_to_personal":
		var args struct {
			Reason  string `json:"reason"`
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("decode forward_to_personal input: %w", err)
		}
		if strings.TrimSpace(args.Reason) == "" {
			return nil, errors.New("reason is required")
		}
		if args.Summary == "" {
			args.Summary = truncate(r.input.Text, summaryPreviewLen)
		}
		return ForwardPersonal{Reason: args.Reason, Summary: args.Summary, OriginalMessage: r.input.Text, Sender: r.input.Sender}, nil
	}
	return nil, fmt.Errorf("%w: %s", errUnknownTool, call.Name)
}
