package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/taskmate/internal/models"
	"github.com/xaenox/taskmate/internal/oracle"
	"go.uber.org/zap"
)

// Apology is the reply used whenever the oracle cannot produce one.
const Apology = "I'm sorry, I encountered an error processing your request."

// Responder turns the outcome of a turn into the reply shown to the user.
type Responder struct {
	oracle       oracle.Oracle
	historyLimit int
	logger       *zap.Logger
}

func NewResponder(o oracle.Oracle, historyLimit int, logger *zap.Logger) *Responder {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Responder{
		oracle:       o,
		historyLimit: historyLimit,
		logger:       logger.Named("responder"),
	}
}

// Synthesize never fails. A successful tool run is phrased from a template,
// anything else is answered from the recent history and the user's text.
// history holds the session's messages before this turn, oldest first.
func (r *Responder) Synthesize(ctx context.Context, extraction models.ExtractionResult, outcome *models.ToolOutcome, text string, history []*models.Message) string {
	var prompt string
	if outcome != nil && outcome.Success {
		prompt = buildPrompt(successSummary(extraction.Intent, outcome.Message), nil)
	} else {
		if len(history) > r.historyLimit {
			history = history[len(history)-r.historyLimit:]
		}
		prompt = buildPrompt(text, history)
	}

	reply, err := r.oracle.Complete(ctx, prompt)
	if err != nil {
		r.logger.Error("Failed to generate response", zap.Error(err))
		return Apology
	}
	if reply == "" {
		r.logger.Warn("Oracle returned an empty response")
		return Apology
	}
	return reply
}

func successSummary(intent, message string) string {
	operation := strings.ReplaceAll(strings.ToLower(intent), "_", " ")
	return fmt.Sprintf("The %s operation was successful. Result: %s", operation, message)
}

func buildPrompt(text string, history []*models.Message) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Previous conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Sender, m.Content)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "User: %s\n\n", text)
	sb.WriteString("Please provide a helpful and concise response to the user's message.")
	return sb.String()
}
