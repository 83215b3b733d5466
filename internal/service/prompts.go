package service

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultSystemPrompt = `You are the support agent for the team's WhatsApp groups. For every incoming message you:

1. Work out whether it is a complaint, an error report or casual conversation.
2. Draft a professional reply.
3. Escalate technical problems to the developers when they need engineering attention.
4. Forward personal matters to the responsible team member.

Keep replies polite, short and useful. Acknowledge complaints and show empathy. For errors, ask for the
details a developer would need before escalating.

Use the draft_reply, escalate_to_dev and forward_to_personal tools to record what should happen with the message.`

	defaultClassifierSystem = "You are a message classifier. Answer with the category name only."

	defaultClassificationPrompt = `Classify the message below into exactly one category:

- COMPLAINT: the sender is unhappy, frustrated or reports a problem with the service or product
- ERROR: a technical error, bug report, outage or application malfunction
- CASUAL: greetings, thanks, small talk or non-urgent questions
- UNKNOWN: anything that does not clearly fit the categories above

Reply with only the category name in uppercase (COMPLAINT, ERROR, CASUAL or UNKNOWN).

Message: {message}`
)

// Prompts holds the instructions sent to the language model
type Prompts struct {
	System           string `yaml:"system"`
	ClassifierSystem string `yaml:"classifier_system"`
	Classification   string `yaml:"classification"`
}

// DefaultPrompts returns the built-in prompts
func DefaultPrompts() Prompts {
	return Prompts{
		System:           defaultSystemPrompt,
		ClassifierSystem: defaultClassifierSystem,
		Classification:   defaultClassificationPrompt,
	}
}

// LoadPrompts reads prompt overrides from a YAML file. Fields left empty keep their defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return prompts, fmt.Errorf("parse prompts file: %w", err)
	}
	if strings.TrimSpace(override.System) != "" {
		prompts.System = override.System
	}
	if strings.TrimSpace(override.ClassifierSystem) != "" {
		prompts.ClassifierSystem = override.ClassifierSystem
	}
	if strings.TrimSpace(override.Classification) != "" {
		if !strings.Contains(override.Classification, "{message}") {
			return prompts, fmt.Errorf("classification prompt must contain {message}")
		}
		prompts.Classification = override.Classification
	}
	return prompts, nil
}

// ClassificationFor renders the classification prompt for text
func (p Prompts) ClassificationFor(text string) string {
	return strings.ReplaceAll(p.Classification, "{message}", text)
}

// GenerationPrompt combines retrieved context and the message text
func GenerationPrompt(text, context string) string {
	if context == "" {
		return text
	}
	return fmt.Sprintf("Context: %s\n\nMessage: %s", context, text)
}
