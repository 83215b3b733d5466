package api

import (
	"context"
	"sync"
	"time"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/internal/service"
	"whatsapp-agent/backend/pkg/logger"
	"whatsapp-agent/backend/pkg/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"
)

// MessagePipeline is the part of the pipeline the webhook drives
type MessagePipeline interface {
	IsReviewer(phone string) bool
	HandleIncoming(ctx context.Context, in models.ParsedMessage, groupID, groupName string) (*service.Outcome, error)
	HandleApprovalResponse(ctx context.Context, text, fromPhone string) (*service.ReviewOutcome, error)
}

// ReadMarker marks inbound messages as read
type ReadMarker interface {
	MarkAsRead(ctx context.Context, messageID string) error
}

// DispatcherConfig bounds how webhook messages are processed
type DispatcherConfig struct {
	MaxConcurrency int64
	MessageTimeout time.Duration
	DedupeTTL      time.Duration
}

// DefaultDispatcherConfig returns the dispatcher defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxConcurrency: 8,
		MessageTimeout: 2 * time.Minute,
		DedupeTTL:      24 * time.Hour,
	}
}

// Dispatcher runs each parsed webhook message through the pipeline in the background
type Dispatcher struct {
	pipeline   MessagePipeline
	marker     ReadMarker
	claimer    Claimer
	sem        *semaphore.Weighted
	cfg        DispatcherConfig
	dispatched metric.Int64Counter
	wg         sync.WaitGroup
	log        *logger.Logger
}

// NewDispatcher creates a dispatcher. marker and claimer may be nil.
func NewDispatcher(pipeline MessagePipeline, marker ReadMarker, claimer Claimer, cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = defaults.MessageTimeout
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaults.DedupeTTL
	}

	counter, err := otel.Meter("whatsapp-agent/api").Int64Counter(
		"webhook_messages_dispatched",
		metric.WithDescription("Webhook messages handed to the pipeline, by route"),
	)
	if err != nil {
		log.LogError(err, "Failed to create dispatch counter")
	}

	return &Dispatcher{
		pipeline:   pipeline,
		marker:     marker,
		claimer:    claimer,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrency),
		cfg:        cfg,
		dispatched: counter,
		log:        log,
	}
}

// Dispatch processes msgs asynchronously. ctx must not be tied to the HTTP request.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []models.ParsedMessage) {
	for _, msg := range msgs {
		d.wg.Add(1)
		go d.process(ctx, msg)
	}
}

// Wait blocks until in-flight messages finish or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) process(parent context.Context, msg models.ParsedMessage) {
	defer d.wg.Done()
	log := d.log.WithContext(parent).WithMessageID(msg.MessageID)

	if err := d.sem.Acquire(parent, 1); err != nil {
		log.Warn("Dropped message before processing", "error", err)
		return
	}
	defer d.sem.Release(1)

	ctx, cancel := context.WithTimeout(parent, d.cfg.MessageTimeout)
	defer cancel()
	ctx = logger.NewContext(ctx, log)

	if !d.claim(ctx, log, msg.MessageID) {
		d.count(ctx, "duplicate")
		log.Debug("Duplicate delivery skipped")
		return
	}

	if d.pipeline.IsReviewer(msg.FromPhone) {
		d.count(ctx, "review")
		outcome, err := d.pipeline.HandleApprovalResponse(ctx, msg.Text, msg.FromPhone)
		if err != nil {
			log.LogError(err, "Reviewer reply failed", "retryable", resilience.IsRetryable(err))
		} else if outcome.Intent != service.IntentNone {
			log.Info("Reviewer reply applied", "intent", outcome.Intent, "result", outcome.Result, "sent", outcome.Sent)
		}
	} else {
		d.count(ctx, "incoming")
		outcome, err := d.pipeline.HandleIncoming(ctx, msg, msg.FromPhone, msg.SenderName)
		if err != nil {
			log.LogError(err, "Message processing failed", "retryable", resilience.IsRetryable(err))
		} else {
			log.Info("Message processed",
				"category", outcome.Category,
				"persisted", outcome.Persisted,
				"forwarded", outcome.Forwarded,
				"notified", outcome.Notified,
			)
		}
	}

	d.markRead(ctx, log, msg.MessageID)
}

// claim returns true when this delivery should be processed. A claim store error does not block processing;
// the unique message id index still rejects the duplicate row.
func (d *Dispatcher) claim(ctx context.Context, log *logger.Logger, messageID string) bool {
	if d.claimer == nil {
		return true
	}
	ok, err := d.claimer.Claim(ctx, dedupeKey(messageID), d.cfg.DedupeTTL)
	if err != nil {
		log.Warn("Dedupe claim failed", "error", err)
		return true
	}
	return ok
}

func (d *Dispatcher) markRead(ctx context.Context, log *logger.Logger, messageID string) {
	if d.marker == nil {
		return
	}
	if err := d.marker.MarkAsRead(ctx, messageID); err != nil {
		log.Warn("Failed to mark message as read", "error", err)
	}
}

func (d *Dispatcher) count(ctx context.Context, route string) {
	if d.dispatched == nil {
		return
	}
	d.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}
