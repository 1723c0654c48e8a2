package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/IntakeFlow/internal/genai"
	"github.com/BTreeMap/IntakeFlow/internal/models"
	"github.com/BTreeMap/IntakeFlow/internal/tone"
)

const supportiveSystemPrompt = `You are a warm, supportive companion in a mental-health intake service, talking with someone between or after screening questions.

Guidelines:
- Listen first. Reflect what the user said before adding anything of your own.
- Ask at most one gentle question per reply, and only when it helps the user keep talking.
- When the user describes serious or persistent difficulties, encourage them to speak with a mental-health professional.
- Never diagnose, never prescribe, and never promise outcomes.
- Keep replies short and conversational, under 150 words.`

// SupportiveResponder generates open supportive-chat replies, shaped by the
// session's accumulated tone profile.
type SupportiveResponder struct {
	genAIClient genai.ClientInterface
}

// NewSupportiveResponder creates a responder backed by the given generation client.
func NewSupportiveResponder(client genai.ClientInterface) *SupportiveResponder {
	return &SupportiveResponder{genAIClient: client}
}

// Reply generates a supportive response to the conversation so far. Active
// tone tags append a style guide to the system prompt so the reply matches
// how the user has been communicating. Returns
// models.ErrGenerationUnavailable when the backend cannot produce a reply.
func (s *SupportiveResponder) Reply(ctx context.Context, history []models.TurnRecord, toneTags []string) (string, error) {
	system := supportiveSystemPrompt
	if guide := tone.BuildSupportGuide(toneTags); guide != "" {
		system += "\n\n" + guide
	}
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	messages = append(messages, historyMessages(history, historyWindow)...)

	reply, err := s.genAIClient.GenerateWithMessages(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: supportive reply: %v", models.ErrGenerationUnavailable, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty supportive reply", models.ErrGenerationUnavailable)
	}
	slog.Debug("SupportiveResponder.Reply: reply generated", "tone_tags", len(toneTags), "length", len(reply))
	return reply, nil
}
