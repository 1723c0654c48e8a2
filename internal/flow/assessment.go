package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/IntakeFlow/internal/genai"
	"github.com/BTreeMap/IntakeFlow/internal/models"
)

const assessmentSystemPrompt = `You write a short intake summary from the results of a mental-health screening conversation.

Guidelines:
- Summarize what the user reported, area by area, in plain language.
- Note which areas were skipped.
- This is an intake record, not a diagnosis. Never state conclusions about what the user "has".
- Write in the third person ("the user reported ...").
- Keep it under 250 words.`

// Assessor produces the free-text assessment summary once every interview
// topic is resolved.
type Assessor struct {
	genAIClient genai.ClientInterface
}

// NewAssessor creates an assessor backed by the given generation client.
func NewAssessor(client genai.ClientInterface) *Assessor {
	return &Assessor{genAIClient: client}
}

// Summarize renders the resolved topics into a screening-results digest and
// asks the backend for a prose summary. Failure is not fatal to the caller;
// the session simply keeps an empty summary.
func (a *Assessor) Summarize(ctx context.Context, topics []models.Topic) (string, error) {
	var b strings.Builder
	b.WriteString("Screening results:\n")
	for _, t := range topics {
		switch t.Status {
		case models.TopicStatusAnswered:
			fmt.Fprintf(&b, "- %s: answered. %s\n", t.ID, t.ResponseSummary)
		case models.TopicStatusSkipped:
			fmt.Fprintf(&b, "- %s: skipped.\n", t.ID)
		default:
			fmt.Fprintf(&b, "- %s: not reached.\n", t.ID)
		}
	}

	summary, err := a.genAIClient.GeneratePromptWithContext(ctx, assessmentSystemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("assessment summary: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("assessment summary: empty response")
	}
	slog.Debug("Assessor.Summarize: summary generated", "topics", len(topics), "length", len(summary))
	return summary, nil
}
