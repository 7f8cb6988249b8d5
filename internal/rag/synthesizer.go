package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"document-qa/internal/models"
)

var thinkTagRe = regexp.MustCompile(models.ThinkTag)

// Synthesizer answers a question from retrieved chunks only
type Synthesizer struct {
	generator Generator
}

func NewSynthesizer(generator Generator) *Synthesizer {
	return &Synthesizer{generator: generator}
}

// Answer always calls the generator, also for empty context, so the model
// can say that the document does not cover the question.
func (s *Synthesizer) Answer(ctx context.Context, chunks []models.RetrievedChunk, question string) (string, error) {
	out, err := s.generator.Generate(ctx, RenderPrompt(chunks, question))
	if err != nil {
		if errors.Is(err, models.ErrProviderError) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", models.ErrProviderError, err)
	}
	return stripThinking(out), nil
}

// RenderPrompt fills the grounded answer template
func RenderPrompt(chunks []models.RetrievedChunk, question string) string {
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	return fmt.Sprintf(models.AnswerPromptTemplate, strings.Join(contents, models.ContextSeparator), question)
}

// stripThinking drops <think> blocks emitted by reasoning models
func stripThinking(s string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(s, ""))
}
