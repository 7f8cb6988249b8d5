package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

var listMarkerRe = regexp.MustCompile(models.ListMarkerRegex)

// Expander turns a question into retrieval probes: the question itself
// followed by up to maxVariants generated rephrasings.
type Expander struct {
	generator   Generator
	maxVariants int
}

func NewExpander(generator Generator, maxVariants int) *Expander {
	return &Expander{generator: generator, maxVariants: maxVariants}
}

// Expand never fails. When generation errors, the original question is the only probe.
func (e *Expander) Expand(ctx context.Context, question string) []string {
	question = strings.TrimSpace(question)
	variants := []string{question}
	if e.maxVariants <= 0 {
		return variants
	}

	response, err := e.generator.Generate(ctx, fmt.Sprintf(models.QueryPromptTemplate, question))
	if err != nil {
		log.Warn().Err(err).Msg("Query expansion failed, using original question only")
		return variants
	}

	seen := map[string]bool{strings.ToLower(question): true}
	for _, line := range strings.Split(stripThinking(response), "\n") {
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		key := strings.ToLower(line)
		if line == "" || seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, line)
		if len(variants) == e.maxVariants+1 {
			break
		}
	}
	log.Debug().Strs("variants", variants).Msg("Expanded query")
	return variants
}
