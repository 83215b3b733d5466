package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"whatsapp-agent/backend/ai"
	"whatsapp-agent/backend/internal/docstore"
	"whatsapp-agent/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestClassifyMapsModelOutput(t *testing.T) {
	tests := []struct {
		raw  string
		want models.Category
	}{
		{"COMPLAINT", models.CategoryComplaint},
		{"  error\n", models.CategoryError},
		{"Casual", models.CategoryCasual},
		{"UNKNOWN", models.CategoryUnknown},
		{"It is a complaint.", models.CategoryUnknown},
		{"", models.CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			llm := new(MockCompleter)
			llm.On("Complete", mock.Anything, defaultClassifierSystem, mock.MatchedBy(func(prompt string) bool {
				return strings.HasSuffix(prompt, "Message: where is my order")
			})).Return(tt.raw, nil)

			got, err := NewClassifier(llm, DefaultPrompts(), time.Second, testLogger()).Classify(context.Background(), "where is my order")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyFailure(t *testing.T) {
	llm := new(MockCompleter)
	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("connection reset"))

	got, err := NewClassifier(llm, DefaultPrompts(), 0, testLogger()).Classify(context.Background(), "hi")
	assert.Equal(t, models.CategoryUnknown, got)

	var callErr *ExternalCallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, "classify", callErr.Op)
	llm.AssertNumberOfCalls(t, "Complete", 1)
}

func results(texts ...string) []docstore.Result {
	out := make([]docstore.Result, 0, len(texts))
	for i, text := range texts {
		out = append(out, docstore.Result{Document: docstore.Document{Text: text}, Score: float64(len(texts) - i)})
	}
	return out
}

func TestRetrieveBoundedByK(t *testing.T) {
	r := NewRetriever(staticSearcher{results: results("a", "b", "c", "d")}, 3)

	got, err := r.Retrieve(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = r.Retrieve(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	small := NewRetriever(staticSearcher{results: results("only")}, 3)
	got, err = small.Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, got)
}

func TestAssembleContext(t *testing.T) {
	empty := NewRetriever(staticSearcher{}, 3)
	ctxText, err := empty.AssembleContext(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "", ctxText)

	r := NewRetriever(staticSearcher{results: results("first", "second")}, 3)
	ctxText, err = r.AssembleContext(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "first"+ContextSeparator+"second", ctxText)
	assert.Contains(t, ctxText, "first")
	assert.Contains(t, ctxText, "second")
}

func TestAssembleContextSearchFailure(t *testing.T) {
	r := NewRetriever(staticSearcher{err: docstore.ErrClosed}, 3)
	_, err := r.AssembleContext(context.Background(), "q")

	var callErr *ExternalCallError
	require.True(t, errors.As(err, &callErr))
	assert.ErrorIs(t, err, docstore.ErrClosed)
}

func TestGenerateCollectsProposals(t *testing.T) {
	runner := &scriptedRunner{
		reply: "Thanks for reporting this.",
		calls: []ai.ToolCall{
			draftCall("Thanks for reporting this."),
			{ID: "t2", Name: "escalate_to_dev", Input: []byte(`{"reason":"login crash"}`)},
			{ID: "t3", Name: "forward_to_personal", Input: []byte(`{"reason":"billing owner"}`)},
			{ID: "t4", Name: "delete_everything", Input: []byte(`{}`)},
			{ID: "t5", Name: "escalate_to_dev", Input: []byte(`{"priority":"high"}`)},
		},
	}
	g := NewGenerator(runner, DefaultPrompts(), time.Second, testLogger())

	gen, err := g.Generate(context.Background(), GenerateInput{Text: "App crashes on login", Sender: "Dana", Group: "Support", Context: "Known issue"})
	require.NoError(t, err)
	assert.Equal(t, "Thanks for reporting this.", gen.ReplyText)
	assert.Equal(t, "Context: Known issue\n\nMessage: App crashes on login", runner.prompts[0])

	require.Len(t, gen.Proposals, 3)
	assert.Equal(t, DraftReply{Reply: "Thanks for reporting this.", OriginalMessage: "App crashes on login", Sender: "Dana"}, gen.Proposals[0])
	assert.Equal(t, ForwardDev{Reason: "login crash", Priority: PriorityNormal, OriginalMessage: "App crashes on login", Group: "Support"}, gen.Proposals[1])
	assert.Equal(t, ForwardPersonal{Reason: "billing owner", Summary: "App crashes on login", OriginalMessage: "App crashes on login", Sender: "Dana"}, gen.Proposals[2])

	assert.Contains(t, runner.results[3], "unknown tool")
	assert.Contains(t, runner.results[4], "reason is required")
}

func TestGenerationDraft(t *testing.T) {
	gen := &Generation{Proposals: []Proposal{
		DraftReply{Reply: "first"},
		ForwardDev{Reason: "x"},
		DraftReply{Reply: "second"},
	}}
	assert.Equal(t, "second", gen.Draft())

	gen.ReplyText = "final"
	assert.Equal(t, "final", gen.Draft())

	assert.Equal(t, "", (&Generation{}).Draft())
}

func TestToolsDeclareRequiredFields(t *testing.T) {
	tools := Tools()
	require.Len(t, tools, 3)
	names := []string{tools[0].Name, tools[1].Name, tools[2].Name}
	assert.Equal(t, []string{"draft_reply", "escalate_to_dev", "forward_to_personal"}, names)
	assert.Equal(t, []string{"reply_text"}, tools[0].InputSchema["required"])
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("system: Be brief.\n"), 0o600))
	prompts, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", prompts.System)
	assert.Equal(t, defaultClassificationPrompt, prompts.Classification)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("classification: Classify this.\n"), 0o600))
	_, err = LoadPrompts(bad)
	assert.Error(t, err)

	prompts, err = LoadPrompts("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), prompts)
}
