package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/internal/whatsapp"
	"whatsapp-agent/backend/pkg/logger"
	"whatsapp-agent/backend/pkg/resilience"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	notificationTextLen  = 100
	notificationDraftLen = 200
)

// Sender delivers outbound WhatsApp messages
type Sender interface {
	SendMessage(ctx context.Context, to, text string) (*whatsapp.SendResult, error)
	SendTemplate(ctx context.Context, to, name, language string, params []string) (*whatsapp.SendResult, error)
}

// EventPublisher receives pipeline events for live subscribers
type EventPublisher interface {
	Publish(event models.Event)
}

// PipelineConfig holds the phone numbers and switches the pipeline runs with
type PipelineConfig struct {
	// ReviewerPhone receives approval notifications and is the only sender whose replies resolve approvals
	ReviewerPhone string
	// PersonalPhone receives casual messages
	PersonalPhone string
	// GenerateForUnknown runs retrieval and generation for unclassified messages without persisting the result
	GenerateForUnknown bool
	ApprovalTTL        time.Duration
	SendTimeout        time.Duration
	// ReviewTemplate is sent to the reviewer when WhatsApp refuses the free-form notification,
	// with body parameters category, sender, message preview and draft preview
	ReviewTemplate         string
	ReviewTemplateLanguage string
}

// PipelineDeps are the collaborators a pipeline is built from
type PipelineDeps struct {
	Classifier *Classifier
	Retriever  *Retriever
	Generator  *Generator
	Approvals  *ApprovalService
	Tracking   *TrackingService
	Sender     Sender
	Events     EventPublisher
}

// Outcome reports what HandleIncoming did with a message
type Outcome struct {
	Message    *models.Message
	Category   models.Category
	Persisted  bool
	Duplicate  bool
	Forwarded  bool
	Approval   *models.ApprovalRequest
	Notified   bool
	Generation *Generation
}

// Pipeline routes inbound messages through classification, retrieval, generation and approval
type Pipeline struct {
	deps     PipelineDeps
	cfg      PipelineConfig
	validate *validator.Validate
	tracer   trace.Tracer
	log      *logger.Logger

	// keyed by action id
	dispatches singleflight.Group
}

// NewPipeline creates a new pipeline
func NewPipeline(deps PipelineDeps, cfg PipelineConfig, log *logger.Logger) *Pipeline {
	if cfg.ApprovalTTL <= 0 {
		cfg.ApprovalTTL = models.DefaultApprovalTTL
	}
	return &Pipeline{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(),
		tracer:   otel.Tracer("whatsapp-agent/pipeline"),
		log:      log,
	}
}

// IsReviewer reports whether phone belongs to the configured reviewer
func (p *Pipeline) IsReviewer(phone string) bool {
	return p.cfg.ReviewerPhone != "" && phone == p.cfg.ReviewerPhone
}

// HandleIncoming processes one inbound message end to end
func (p *Pipeline) HandleIncoming(ctx context.Context, in models.ParsedMessage, groupID, groupName string) (out *Outcome, err error) {
	if err := p.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.HandleIncoming",
		trace.WithAttributes(attribute.String("wa.message_id", in.MessageID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := p.log.WithContext(ctx).WithMessageID(in.MessageID)
	if groupID == "" {
		groupID = in.FromPhone
	}

	msg := &models.Message{
		WAMessageID: in.MessageID,
		GroupID:     groupID,
		SenderPhone: in.FromPhone,
		Content:     in.Text,
	}
	if groupName != "" {
		msg.GroupName = &groupName
	}
	if in.SenderName != "" {
		msg.SenderName = &in.SenderName
	}
	p.publish(models.Event{Type: models.EventMessageReceived, MessageID: in.MessageID, Data: map[string]any{"sender": msg.DisplaySender()}})

	category := p.classify(ctx, log, in.Text)
	msg.Category = category
	span.SetAttributes(attribute.String("message.category", string(category)))
	p.publish(models.Event{Type: models.EventMessageClassified, MessageID: in.MessageID, Category: category})
	out = &Outcome{Category: category}

	stored, result, err := p.deps.Tracking.LogMessage(ctx, msg)
	if err != nil {
		p.recordError("persist", err)
		return out, err
	}
	switch result {
	case ResultUnavailable:
		log.Warn("Persistence unavailable, message not stored", "category", category)
		messagesProcessedCounter.WithLabelValues(string(category), "unpersisted").Inc()
		return out, nil
	case ResultUnchanged:
		log.Info("Duplicate delivery ignored", "message_id", stored.ID)
		out.Message = stored
		out.Category = stored.Category
		out.Persisted = true
		out.Duplicate = true
		messagesProcessedCounter.WithLabelValues(string(stored.Category), "duplicate").Inc()
		return out, nil
	}
	out.Message = stored
	out.Persisted = true

	if category == models.CategoryCasual {
		return out, p.forwardCasual(ctx, log, stored, out)
	}

	if category == models.CategoryUnknown && !p.cfg.GenerateForUnknown {
		log.Info("Unclassified message left for manual handling")
		messagesProcessedCounter.WithLabelValues(string(category), "skipped").Inc()
		return out, nil
	}

	gen, err := p.generate(ctx, stored)
	if err != nil {
		messagesProcessedCounter.WithLabelValues(string(category), "failed").Inc()
		return out, err
	}
	out.Generation = gen

	if !category.RequiresApproval() {
		log.Info("Reply generated for unclassified message", "reply", gen.ReplyText, "proposals", len(gen.Proposals))
		messagesProcessedCounter.WithLabelValues(string(category), "reported").Inc()
		return out, nil
	}

	return out, p.queueForApproval(ctx, log, stored, gen, out)
}

func (p *Pipeline) classify(ctx context.Context, log *logger.Logger, text string) models.Category {
	defer observeStage("classify", time.Now())
	category, err := p.deps.Classifier.Classify(ctx, text)
	if err != nil {
		p.recordError("classify", err)
		log.LogError(err, "Classification failed, treating message as unknown")
		return models.CategoryUnknown
	}
	return category
}

func (p *Pipeline) generate(ctx context.Context, msg *models.Message) (*Generation, error) {
	start := time.Now()
	snippets, err := p.deps.Retriever.AssembleContext(ctx, msg.Content)
	observeStage("retrieve", start)
	if err != nil {
		p.recordError("retrieve", err)
		return nil, err
	}

	defer observeStage("generate", time.Now())
	group := msg.GroupID
	if msg.GroupName != nil && *msg.GroupName != "" {
		group = *msg.GroupName
	}
	gen, err := p.deps.Generator.Generate(ctx, GenerateInput{
		Text:    msg.Content,
		Sender:  msg.DisplaySender(),
		Group:   group,
		Context: snippets,
	})
	if err != nil {
		p.recordError("generate", err)
		return nil, err
	}
	return gen, nil
}

func (p *Pipeline) forwardCasual(ctx context.Context, log *logger.Logger, msg *models.Message, out *Outcome) error {
	if p.cfg.PersonalPhone == "" {
		log.Warn("Personal phone not configured, casual message not forwarded")
		messagesProcessedCounter.WithLabelValues(string(msg.Category), "skipped").Inc()
		return nil
	}

	text := fmt.Sprintf("[Casual] From %s:\n%s", msg.DisplaySender(), msg.Content)
	if err := p.send(ctx, "forward", p.cfg.PersonalPhone, text); err != nil {
		messagesProcessedCounter.WithLabelValues(string(msg.Category), "failed").Inc()
		return err
	}
	out.Forwarded = true

	_, _, err := p.deps.Tracking.LogAction(ctx, msg.ID, models.ActionForwardPersonal,
		models.ForwardPayload{ForwardedTo: p.cfg.PersonalPhone}, models.StatusSent)
	if err != nil {
		p.recordError("persist", err)
		return err
	}
	p.publish(models.Event{Type: models.EventMessageForwarded, MessageID: msg.WAMessageID, Category: msg.Category})
	messagesProcessedCounter.WithLabelValues(string(msg.Category), "forwarded").Inc()
	log.Info("Casual message forwarded")
	return nil
}

func (p *Pipeline) queueForApproval(ctx context.Context, log *logger.Logger, msg *models.Message, gen *Generation, out *Outcome) error {
	draft := gen.Draft()
	if strings.TrimSpace(draft) == "" {
		log.Warn("Generator returned no draft, nothing to approve")
		messagesProcessedCounter.WithLabelValues(string(msg.Category), "no_draft").Inc()
		return nil
	}

	req, result, err := p.deps.Approvals.CreateApprovalRequest(ctx, msg, draft, msg.GroupID, p.cfg.ApprovalTTL)
	if err != nil {
		p.recordError("persist", err)
		return err
	}
	if result != ResultApplied {
		log.Warn("Approval request not stored", "result", result)
		return nil
	}
	out.Approval = req
	p.publish(models.Event{
		Type:       models.EventApprovalCreated,
		MessageID:  msg.WAMessageID,
		ApprovalID: req.ID.String(),
		Category:   msg.Category,
		Data:       map[string]any{"draft": draft, "expires_at": req.ExpiresAt},
	})
	messagesProcessedCounter.WithLabelValues(string(msg.Category), "pending_approval").Inc()

	if p.cfg.ReviewerPhone == "" {
		log.Warn("Reviewer phone not configured, approval notification skipped")
		return nil
	}
	if err := p.notifyReviewer(ctx, msg, draft); err != nil {
		return err
	}
	out.Notified = true
	return nil
}

// notifyReviewer falls back to the review template when the free-form text is refused outright,
// which is how WhatsApp answers outside the reviewer's 24-hour service window
func (p *Pipeline) notifyReviewer(ctx context.Context, msg *models.Message, draft string) error {
	category := strings.ToLower(string(msg.Category))
	text := truncate(msg.Content, notificationTextLen)
	preview := truncate(draft, notificationDraftLen)

	notification := fmt.Sprintf("New %s from %s:\n'%s...'\n\nDraft reply:\n'%s...'\n\nReply 'approve' or send edited response.",
		category, msg.DisplaySender(), text, preview)
	err := p.send(ctx, "notify", p.cfg.ReviewerPhone, notification)
	if err == nil || p.cfg.ReviewTemplate == "" || resilience.IsRetryable(err) {
		return err
	}

	p.log.Warn("Reviewer notification refused, sending template", "template", p.cfg.ReviewTemplate, "error", err)
	defer observeStage("notify_template", time.Now())
	if p.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.SendTimeout)
		defer cancel()
	}
	params := []string{category, msg.DisplaySender(), text, preview}
	if _, err := p.deps.Sender.SendTemplate(ctx, p.cfg.ReviewerPhone, p.cfg.ReviewTemplate, p.cfg.ReviewTemplateLanguage, params); err != nil {
		err = externalError("notify_template", err)
		p.recordError("notify_template", err)
		return err
	}
	return nil
}

// ReviewIntent is what a reviewer's reply asks for
type ReviewIntent string

const (
	IntentNone    ReviewIntent = ""
	IntentApprove ReviewIntent = "approve"
	IntentReject  ReviewIntent = "reject"
	IntentEdit    ReviewIntent = "edit"
)

const editPrefix = "edit:"

// ParseReviewIntent reads a reviewer reply. For edits it also returns the replacement draft in its original case.
func ParseReviewIntent(text string) (ReviewIntent, string) {
	trimmed := strings.TrimSpace(text)
	normalized := strings.ToLower(trimmed)
	switch {
	case normalized == string(IntentApprove):
		return IntentApprove, ""
	case normalized == string(IntentReject):
		return IntentReject, ""
	case strings.HasPrefix(normalized, editPrefix):
		draft := strings.TrimSpace(trimmed[len(editPrefix):])
		if draft == "" {
			return IntentNone, ""
		}
		return IntentEdit, draft
	}
	return IntentNone, ""
}

// ReviewOutcome reports what a reviewer reply or admin decision did
type ReviewOutcome struct {
	Intent   ReviewIntent
	Approval *models.ApprovalRequest
	Result   WriteResult
	Sent     bool
}

// HandleApprovalResponse applies a reviewer's reply to the most recent pending approval.
// Replies from anyone other than the reviewer, or without a recognised intent, are ignored.
func (p *Pipeline) HandleApprovalResponse(ctx context.Context, text, fromPhone string) (*ReviewOutcome, error) {
	if !p.IsReviewer(fromPhone) {
		return &ReviewOutcome{Intent: IntentNone}, nil
	}
	intent, draft := ParseReviewIntent(text)
	if intent == IntentNone {
		return &ReviewOutcome{Intent: IntentNone}, nil
	}

	latest, err := p.deps.Approvals.LatestPending(ctx)
	if err != nil {
		if errors.Is(err, ErrPersistenceUnavailable) {
			return &ReviewOutcome{Intent: intent, Result: ResultUnavailable}, nil
		}
		return nil, err
	}
	if latest == nil {
		p.log.Info("Reviewer reply with no pending approval", "intent", intent)
		return &ReviewOutcome{Intent: intent, Result: ResultNotFound}, nil
	}

	var outcome *ReviewOutcome
	switch intent {
	case IntentApprove:
		outcome, err = p.Approve(ctx, latest.ID)
	case IntentReject:
		outcome, err = p.Reject(ctx, latest.ID)
	case IntentEdit:
		outcome, err = p.Edit(ctx, latest.ID, draft)
	}
	if outcome != nil {
		outcome.Intent = intent
	}
	return outcome, err
}

// Approve approves a request and sends its draft to the target.
// A draft that was approved earlier but never sent is sent again; a sent draft is not.
func (p *Pipeline) Approve(ctx context.Context, approvalID uuid.UUID) (*ReviewOutcome, error) {
	outcome := &ReviewOutcome{Intent: IntentApprove}
	result, err := p.deps.Approvals.Approve(ctx, approvalID)
	outcome.Result = result
	if err != nil || (result != ResultApplied && result != ResultUnchanged) {
		return outcome, err
	}

	req, err := p.deps.Approvals.Find(ctx, approvalID)
	if err != nil {
		return outcome, err
	}
	outcome.Approval = req
	if result == ResultApplied {
		p.publishResolved(req, models.StatusApproved)
	} else if req.Action == nil || req.Action.Status != models.StatusApproved {
		return outcome, nil
	}

	sent, err := p.DispatchApproved(ctx, req)
	outcome.Sent = sent
	return outcome, err
}

// Reject rejects a request
func (p *Pipeline) Reject(ctx context.Context, approvalID uuid.UUID) (*ReviewOutcome, error) {
	outcome := &ReviewOutcome{Intent: IntentReject}
	result, err := p.deps.Approvals.Reject(ctx, approvalID)
	outcome.Result = result
	if err != nil || result != ResultApplied {
		return outcome, err
	}
	if req, err := p.deps.Approvals.Find(ctx, approvalID); err == nil {
		outcome.Approval = req
		p.publishResolved(req, models.StatusRejected)
	}
	return outcome, nil
}

// Edit replaces the draft, then approves and sends it
func (p *Pipeline) Edit(ctx context.Context, approvalID uuid.UUID, draft string) (*ReviewOutcome, error) {
	result, err := p.deps.Approvals.UpdateDraft(ctx, approvalID, draft)
	if err != nil || (result != ResultApplied && result != ResultUnchanged) {
		return &ReviewOutcome{Intent: IntentEdit, Result: result}, err
	}
	outcome, err := p.Approve(ctx, approvalID)
	outcome.Intent = IntentEdit
	return outcome, err
}

// DispatchApproved sends an approved draft to its target and marks the action sent.
// Overlapping calls for one action share a single send, and an action that is already sent is not resent.
func (p *Pipeline) DispatchApproved(ctx context.Context, req *models.ApprovalRequest) (bool, error) {
	v, err, _ := p.dispatches.Do(req.ActionID.String(), func() (any, error) {
		return p.dispatchOnce(ctx, req.ID)
	})
	sent, _ := v.(bool)
	return sent, err
}

func (p *Pipeline) dispatchOnce(ctx context.Context, approvalID uuid.UUID) (bool, error) {
	req, err := p.deps.Approvals.Find(ctx, approvalID)
	if err != nil {
		return false, err
	}
	switch status := req.Action.Status; {
	case status == models.StatusSent:
		return false, nil
	case !status.CanTransition(models.StatusSent):
		return false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, status, models.StatusSent)
	}

	if err := p.send(ctx, "dispatch", req.TargetGroup, req.DraftMessage); err != nil {
		return false, err
	}
	if _, err := p.deps.Approvals.MarkSent(ctx, req.ActionID); err != nil {
		p.recordError("persist", err)
		return true, err
	}
	p.publish(models.Event{Type: models.EventReplySent, ApprovalID: req.ID.String(), Data: map[string]any{"target": req.TargetGroup}})
	p.log.Info("Approved reply sent", "approval_id", req.ID, "target", req.TargetGroup)
	return true, nil
}

func (p *Pipeline) send(ctx context.Context, op, to, text string) error {
	defer observeStage(op, time.Now())
	if p.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.SendTimeout)
		defer cancel()
	}
	if _, err := p.deps.Sender.SendMessage(ctx, to, text); err != nil {
		err = externalError(op, err)
		p.recordError(op, err)
		return err
	}
	return nil
}

func (p *Pipeline) publishResolved(req *models.ApprovalRequest, status models.ActionStatus) {
	p.publish(models.Event{
		Type:       models.EventApprovalResolved,
		ApprovalID: req.ID.String(),
		Data:       map[string]any{"status": status},
	})
}

func (p *Pipeline) publish(event models.Event) {
	if p.deps.Events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	p.deps.Events.Publish(event)
}

func (p *Pipeline) recordError(stage string, err error) {
	var callErr *ExternalCallError
	retryable := errors.As(err, &callErr) && callErr.Retryable
	pipelineErrorsCounter.WithLabelValues(stage, strconv.FormatBool(retryable)).Inc()
}

func observeStage(stage string, start time.Time) {
	stageDurationHist.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
