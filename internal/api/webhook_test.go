package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/internal/service"
	"whatsapp-agent/backend/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	verifyToken = "verify-me"
	reviewer    = "15550009"
	customer    = "15551234567"
)

func textPayload(id, from, body string) string {
	return `{
  "object": "whatsapp_business_account",
  "entry": [{"id": "WABA", "changes": [{
    "field": "messages",
    "value": {
      "contacts": [{"wa_id": "` + from + `", "profile": {"name": "Ana"}}],
      "messages": [{"from": "` + from + `", "id": "` + id + `", "timestamp": "1700000000", "type": "text", "text": {"body": "` + body + `"}}]
    }
  }]}]
}`
}

type webhookFixture struct {
	pipeline   *MockPipeline
	marker     *MockReadMarker
	dispatcher *Dispatcher
	router     http.Handler
}

func newWebhookFixture(t *testing.T, appSecret string) *webhookFixture {
	t.Helper()
	f := &webhookFixture{pipeline: new(MockPipeline), marker: new(MockReadMarker)}
	f.pipeline.On("IsReviewer", reviewer).Return(true).Maybe()
	f.pipeline.On("IsReviewer", mock.Anything).Return(false).Maybe()
	f.marker.On("MarkAsRead", mock.Anything, mock.Anything).Return(nil).Maybe()

	c := cache.New[struct{}](cache.Options{TTL: time.Minute, MaxSize: 100, PurgeWindow: time.Minute})
	t.Cleanup(c.Close)

	f.dispatcher = NewDispatcher(f.pipeline, f.marker, NewCacheClaimer(c), DispatcherConfig{
		MaxConcurrency: 2,
		MessageTimeout: time.Second,
		DedupeTTL:      time.Minute,
	}, testLogger())

	r := newTestEngine()
	NewWebhookHandler(f.dispatcher, verifyToken, appSecret, testLogger()).RegisterRoutes(r)
	f.router = r
	return f
}

func (f *webhookFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.dispatcher.Wait(ctx))
}

func TestWebhookVerify(t *testing.T) {
	f := newWebhookFixture(t, "")

	w := perform(f.router, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token="+verifyToken+"&hub.challenge=12345", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = perform(f.router, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = perform(f.router, http.MethodGet, "/webhook?hub.mode=unsubscribe&hub.verify_token="+verifyToken+"&hub.challenge=1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookReceiveDispatchesIncoming(t *testing.T) {
	f := newWebhookFixture(t, "")
	f.pipeline.On("HandleIncoming", mock.Anything, mock.MatchedBy(func(in models.ParsedMessage) bool {
		return in.MessageID == "wamid.1" && in.Text == "This is broken"
	}), customer, "Ana").Return(&service.Outcome{Category: models.CategoryComplaint, Persisted: true}, nil).Once()

	w := perform(f.router, http.MethodPost, "/webhook", textPayload("wamid.1", customer, "This is broken"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","messages_received":1}`, w.Body.String())

	f.wait(t)
	f.pipeline.AssertExpectations(t)
	f.marker.AssertCalled(t, "MarkAsRead", mock.Anything, "wamid.1")
}

func TestWebhookReceiveRoutesReviewer(t *testing.T) {
	f := newWebhookFixture(t, "")
	f.pipeline.On("HandleApprovalResponse", mock.Anything, "approve", reviewer).
		Return(&service.ReviewOutcome{Intent: service.IntentApprove, Result: service.ResultApplied, Sent: true}, nil).Once()

	w := perform(f.router, http.MethodPost, "/webhook", textPayload("wamid.r", reviewer, "approve"))
	require.Equal(t, http.StatusOK, w.Code)

	f.wait(t)
	f.pipeline.AssertExpectations(t)
	f.pipeline.AssertNotCalled(t, "HandleIncoming", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookRedeliveryProcessedOnce(t *testing.T) {
	f := newWebhookFixture(t, "")
	f.pipeline.On("HandleIncoming", mock.Anything, mock.Anything, customer, "Ana").
		Return(&service.Outcome{Category: models.CategoryCasual}, nil).Once()

	body := textPayload("wamid.dup", customer, "hi there")
	perform(f.router, http.MethodPost, "/webhook", body)
	f.wait(t)
	w := perform(f.router, http.MethodPost, "/webhook", body)
	f.wait(t)

	assert.Equal(t, http.StatusOK, w.Code)
	f.pipeline.AssertNumberOfCalls(t, "HandleIncoming", 1)
}

func TestWebhookPipelineErrorStillAcknowledged(t *testing.T) {
	f := newWebhookFixture(t, "")
	f.pipeline.On("HandleIncoming", mock.Anything, mock.Anything, customer, "Ana").
		Return(nil, &service.ExternalCallError{Op: "classify", Retryable: true}).Once()

	w := perform(f.router, http.MethodPost, "/webhook", textPayload("wamid.e", customer, "help"))
	assert.Equal(t, http.StatusOK, w.Code)
	f.wait(t)
	f.pipeline.AssertExpectations(t)
}

func TestWebhookInvalidPayload(t *testing.T) {
	f := newWebhookFixture(t, "")

	w := perform(f.router, http.MethodPost, "/webhook", "{not json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Invalid payload"}`, w.Body.String())
}

func TestWebhookNoTextMessages(t *testing.T) {
	f := newWebhookFixture(t, "")

	w := perform(f.router, http.MethodPost, "/webhook", `{"object":"whatsapp_business_account","entry":[]}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["messages_received"])
}

func TestWebhookSignature(t *testing.T) {
	const secret = "app-secret"
	f := newWebhookFixture(t, secret)
	f.pipeline.On("HandleIncoming", mock.Anything, mock.Anything, customer, "Ana").
		Return(&service.Outcome{Category: models.CategoryCasual}, nil).Once()

	body := textPayload("wamid.s", customer, "hello")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(signatureHeader, "sha256=deadbeef")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(signatureHeader, "sha256="+hex.EncodeToString(mac.Sum(nil)))
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	f.wait(t)
	f.pipeline.AssertExpectations(t)
}
