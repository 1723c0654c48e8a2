package flow

import (
	"strings"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// historyWindow bounds how many recent turn records are replayed to the
// generation backend. Older context is dropped rather than summarized.
const historyWindow = 12

// recentRecords returns the last window records, or all of them when fewer.
func recentRecords(records []models.TurnRecord, window int) []models.TurnRecord {
	if window <= 0 || len(records) <= window {
		return records
	}
	return records[len(records)-window:]
}

// historyMessages converts recent turn records into chat messages, mapping the
// user speaker to user messages and the assistant speaker to assistant
// messages. Records with empty text are skipped.
func historyMessages(records []models.TurnRecord, window int) []openai.ChatCompletionMessageParamUnion {
	recent := recentRecords(records, window)
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(recent))
	for _, rec := range recent {
		if strings.TrimSpace(rec.Text) == "" {
			continue
		}
		switch rec.Speaker {
		case models.SpeakerUser:
			messages = append(messages, openai.UserMessage(rec.Text))
		case models.SpeakerAssistant:
			messages = append(messages, openai.AssistantMessage(rec.Text))
		}
	}
	return messages
}

// formatRecentHistory renders recent turn records as a plain-text transcript
// for inclusion inside a prompt body.
func formatRecentHistory(records []models.TurnRecord, window int) string {
	recent := recentRecords(records, window)
	var b strings.Builder
	for _, rec := range recent {
		text := strings.TrimSpace(rec.Text)
		if text == "" {
			continue
		}
		switch rec.Speaker {
		case models.SpeakerUser:
			b.WriteString("User: ")
		case models.SpeakerAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
