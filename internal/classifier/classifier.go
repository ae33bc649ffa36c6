package classifier

import (
	"context"
	"strings"

	"github.com/xaenox/taskmate/internal/models"
)

// Classifier turns a user utterance into an intent and its entities.
// Implementations never fail: unusable output degrades to UNKNOWN.
type Classifier interface {
	ExtractIntent(ctx context.Context, text string) models.ExtractionResult
}

// stripCodeFence removes the markdown fence models like to wrap JSON in.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
