package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/internal/service"
	apperrors "whatsapp-agent/backend/pkg/errors"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("logger", testLogger())
		c.Next()
	})
	r.Use(apperrors.ErrorHandler())
	return r
}

func perform(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func passThrough(c *gin.Context) { c.Next() }

type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) IsReviewer(phone string) bool {
	return m.Called(phone).Bool(0)
}

func (m *MockPipeline) HandleIncoming(ctx context.Context, in models.ParsedMessage, groupID, groupName string) (*service.Outcome, error) {
	args := m.Called(ctx, in, groupID, groupName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Outcome), args.Error(1)
}

func (m *MockPipeline) HandleApprovalResponse(ctx context.Context, text, fromPhone string) (*service.ReviewOutcome, error) {
	args := m.Called(ctx, text, fromPhone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReviewOutcome), args.Error(1)
}

type MockReadMarker struct {
	mock.Mock
}

func (m *MockReadMarker) MarkAsRead(ctx context.Context, messageID string) error {
	return m.Called(ctx, messageID).Error(0)
}

type MockReviewer struct {
	mock.Mock
}

func (m *MockReviewer) outcome(args mock.Arguments) (*service.ReviewOutcome, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReviewOutcome), args.Error(1)
}

func (m *MockReviewer) Approve(ctx context.Context, id uuid.UUID) (*service.ReviewOutcome, error) {
	return m.outcome(m.Called(ctx, id))
}

func (m *MockReviewer) Reject(ctx context.Context, id uuid.UUID) (*service.ReviewOutcome, error) {
	return m.outcome(m.Called(ctx, id))
}

func (m *MockReviewer) Edit(ctx context.Context, id uuid.UUID, draft string) (*service.ReviewOutcome, error) {
	return m.outcome(m.Called(ctx, id, draft))
}

type MockLister struct {
	mock.Mock
}

func (m *MockLister) ListPending(ctx context.Context) ([]models.ApprovalRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ApprovalRequest), args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) MessageHistory(ctx context.Context, groupID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, groupID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockHistory) ActionsForMessage(ctx context.Context, id uuid.UUID) ([]models.Action, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Action), args.Error(1)
}

func (m *MockHistory) RecentActions(ctx context.Context, limit int) ([]models.Action, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Action), args.Error(1)
}

