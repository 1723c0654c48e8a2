package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/IntakeFlow/internal/genai"
	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// Answer polarity labels produced by extraction.
const (
	PolarityPositive = "positive"
	PolarityNegative = "negative"
	PolarityUnclear  = "unclear"
)

const interviewerSystemPrompt = `You are a warm, professional mental-health intake assistant conducting a structured screening conversation.

Your task is to ask the user the screening question given below, phrased naturally for this conversation.

Guidelines:
- If the user just shared something difficult, acknowledge it in one brief, empathetic sentence before asking.
- Ask exactly one question, and keep the clinical meaning of the screening question intact.
- Use plain, caring language.
- Never diagnose the user and never speculate about what their answers mean.
- Keep the whole reply under 120 words.`

const extractionSystemPrompt = `You check whether a user's reply answers a mental-health screening question.

Respond with only a JSON object:
{"addressed": <true when the reply answers the question, false when it avoids or ignores it>, "summary": "<one or two sentences capturing the user's answer, empty when not addressed>", "polarity": "positive" | "negative" | "unclear"}

Polarity describes the answer, not its tone: "positive" when the user reports experiencing what the question asks about, "negative" when the user clearly denies it, "unclear" otherwise.`

// AnswerExtraction is the structured outcome of checking a user reply against
// the screening question it was given in response to.
type AnswerExtraction struct {
	Addressed bool   `json:"addressed"`
	Summary   string `json:"summary"`
	Polarity  string `json:"polarity"`
}

// Interviewer phrases catalog questions for the conversation and extracts
// structured answers from user replies.
type Interviewer struct {
	genAIClient genai.ClientInterface
}

// NewInterviewer creates an interviewer backed by the given generation client.
func NewInterviewer(client genai.ClientInterface) *Interviewer {
	return &Interviewer{genAIClient: client}
}

// AskTopic generates the conversational phrasing of a catalog question, given
// recent history for continuity. Returns models.ErrGenerationUnavailable when
// the backend cannot produce a reply.
func (iv *Interviewer) AskTopic(ctx context.Context, topic models.Topic, history []models.TurnRecord) (string, error) {
	system := interviewerSystemPrompt + "\n\nScreening question to ask:\n" + topic.PromptTemplate
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	messages = append(messages, historyMessages(history, historyWindow)...)

	reply, err := iv.genAIClient.GenerateWithMessages(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: ask topic %s: %v", models.ErrGenerationUnavailable, topic.ID, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply for topic %s", models.ErrGenerationUnavailable, topic.ID)
	}
	slog.Debug("Interviewer.AskTopic: question generated", "topicID", topic.ID, "length", len(reply))
	return reply, nil
}

// ExtractAnswer checks whether a user message answers the topic's screening
// question and summarizes the answer when it does. An unparseable backend
// response is an error; callers leave the topic pending and move on.
func (iv *Interviewer) ExtractAnswer(ctx context.Context, topic models.Topic, userMessage string) (AnswerExtraction, error) {
	prompt := fmt.Sprintf("Screening question:\n%s\n\nUser reply:\n%s", topic.PromptTemplate, userMessage)
	raw, err := iv.genAIClient.GeneratePromptWithContext(ctx, extractionSystemPrompt, prompt)
	if err != nil {
		return AnswerExtraction{}, fmt.Errorf("extract answer for topic %s: %w", topic.ID, err)
	}

	payload := extractJSONObject(raw)
	if payload == "" {
		return AnswerExtraction{}, fmt.Errorf("extract answer for topic %s: no JSON object in response", topic.ID)
	}
	var extraction AnswerExtraction
	if err := json.Unmarshal([]byte(payload), &extraction); err != nil {
		return AnswerExtraction{}, fmt.Errorf("extract answer for topic %s: %w", topic.ID, err)
	}

	switch extraction.Polarity {
	case PolarityPositive, PolarityNegative, PolarityUnclear:
	default:
		extraction.Polarity = PolarityUnclear
	}
	extraction.Summary = strings.TrimSpace(extraction.Summary)
	if len(extraction.Summary) > models.MaxSummaryLength {
		extraction.Summary = extraction.Summary[:models.MaxSummaryLength]
	}
	slog.Debug("Interviewer.ExtractAnswer: reply analyzed",
		"topicID", topic.ID, "addressed", extraction.Addressed, "polarity", extraction.Polarity)
	return extraction, nil
}
