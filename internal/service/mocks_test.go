package service

import (
	"context"
	"io"
	"sync"

	"whatsapp-agent/backend/ai"
	"whatsapp-agent/backend/internal/docstore"
	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/internal/whatsapp"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/stretchr/testify/mock"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	args := m.Called(ctx, system, prompt)
	return args.String(0), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendMessage(ctx context.Context, to, text string) (*whatsapp.SendResult, error) {
	args := m.Called(ctx, to, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*whatsapp.SendResult), args.Error(1)
}

func (m *MockSender) SendTemplate(ctx context.Context, to, name, language string, params []string) (*whatsapp.SendResult, error) {
	args := m.Called(ctx, to, name, language, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*whatsapp.SendResult), args.Error(1)
}

// scriptedRunner replays tool calls through the handler and then returns reply
type scriptedRunner struct {
	calls   []ai.ToolCall
	reply   string
	err     error
	prompts []string
	results []string
}

func (r *scriptedRunner) RunTools(ctx context.Context, _, prompt string, _ []ai.Tool, handle ai.ToolHandler) (string, error) {
	r.prompts = append(r.prompts, prompt)
	if r.err != nil {
		return "", r.err
	}
	for _, call := range r.calls {
		out, err := handle(ctx, call)
		if err != nil {
			out = "error: " + err.Error()
		}
		r.results = append(r.results, out)
	}
	return r.reply, nil
}

type staticSearcher struct {
	results []docstore.Result
	err     error
}

func (s staticSearcher) Search(_ context.Context, _ string, k int) ([]docstore.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.results) {
		return s.results[:k], nil
	}
	return s.results, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(event models.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
