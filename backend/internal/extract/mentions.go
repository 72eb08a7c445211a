package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"reqgraph/backend/internal/adapter"
	"reqgraph/backend/pkg/logger"
)

// Recognizer pulls entity mentions out of a question with an LLM.
type Recognizer struct {
	llm    adapter.Completer
	logger *zap.Logger
}

// NewRecognizer creates a mention recognizer.
func NewRecognizer(llm adapter.Completer) *Recognizer {
	return &Recognizer{llm: llm, logger: logger.Get()}
}

// Mentions returns the distinct mentions in the question, in reply order.
func (r *Recognizer) Mentions(ctx context.Context, question string) ([]string, error) {
	if strings.TrimSpace(question) == "" {
		return nil, nil
	}
	reply, err := r.llm.Complete(ctx, fmt.Sprintf(mentionPrompt, question))
	if err != nil {
		return nil, fmt.Errorf("failed to recognize mentions: %w", err)
	}
	mentions := ParseMentions(reply)
	r.logger.Debug("Mentions recognized", zap.Strings("mentions", mentions))
	return mentions, nil
}

// ParseMentions splits a comma or newline separated reply into mentions,
// stripping quotes, list bullets and duplicates.
func ParseMentions(reply string) []string {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == '\n' || r == '，' || r == '、'
	})
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		m := strings.TrimSpace(f)
		m = strings.TrimLeft(m, "-*• ")
		m = strings.Trim(m, "'\"`“”‘’[]")
		m = strings.TrimSpace(m)
		key := strings.ToLower(m)
		if m == "" || key == "none" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}
