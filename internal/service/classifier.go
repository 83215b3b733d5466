package service

import (
	"context"
	"time"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/pkg/logger"
)

// Completer runs a single-turn language model call
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Classifier assigns a category to message text
type Classifier struct {
	llm     Completer
	prompts Prompts
	timeout time.Duration
	log     *logger.Logger
}

// NewClassifier creates a new classifier
func NewClassifier(llm Completer, prompts Prompts, timeout time.Duration, log *logger.Logger) *Classifier {
	return &Classifier{llm: llm, prompts: prompts, timeout: timeout, log: log}
}

// Classify makes one model call and maps the answer onto a category.
// On failure it returns CategoryUnknown together with the error; it never retries.
func (c *Classifier) Classify(ctx context.Context, text string) (models.Category, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.llm.Complete(ctx, c.prompts.ClassifierSystem, c.prompts.ClassificationFor(text))
	if err != nil {
		return models.CategoryUnknown, externalError("classify", err)
	}

	category := models.ParseCategory(raw)
	c.log.Debug("Message classified", "category", category, "raw", raw)
	return category, nil
}
