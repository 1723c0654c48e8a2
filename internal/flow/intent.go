package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/IntakeFlow/internal/genai"
	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// Classification sources, recorded for logging and tests.
const (
	ClassificationSourceModel    = "model"
	ClassificationSourceFallback = "keyword_fallback"
)

// lowConfidenceThreshold is the floor below which a model classification is
// treated as ambiguous. Ambiguous intent retains the current mode under the
// adaptive policy, which keeps a shaky classification from flipping modes.
const lowConfidenceThreshold = 0.5

const classifierSystemPrompt = `You classify one user message from a guided mental-health intake conversation.

Decide whether the user wants to continue the structured interview or wants open supportive conversation.

Classify as "interview" when the user answers an assessment question, describes symptoms, or asks to start or continue the assessment.
Classify as "chat" when the user wants open-ended support, wants to talk about something else, or asks to pause the assessment.
Classify as "ambiguous" when the message fits neither clearly, such as a bare greeting or a one-word reply with no question on the table.

Respond with only a JSON object:
{"mode": "interview" | "chat" | "ambiguous", "confidence": <number 0.0-1.0>, "reason": "<one short sentence>"}`

// Classification is the outcome of intent classification for one user message.
type Classification struct {
	Intent     models.Intent
	Confidence float64
	Reason     string
	// Source records whether the classification came from the model backend
	// or from the keyword fallback.
	Source string
}

// Classifier determines whether a user message asks to continue the interview
// or to chat freely. Classification never fails: when the model backend is
// unavailable or returns garbage, a keyword scan stands in.
type Classifier struct {
	genAIClient genai.ClientInterface
}

// NewClassifier creates a classifier backed by the given generation client.
func NewClassifier(client genai.ClientInterface) *Classifier {
	return &Classifier{genAIClient: client}
}

// Classify labels one user message with an intent. Recent history gives the
// model context for elliptical replies like "yes" or "not really".
func (c *Classifier) Classify(ctx context.Context, text string, recent []models.TurnRecord) Classification {
	cls, err := c.classifyWithModel(ctx, text, recent)
	if err != nil {
		slog.Warn("Classifier.Classify: model classification unavailable, using keyword fallback", "error", err)
		return fallbackClassification(text)
	}
	slog.Debug("Classifier.Classify: classified message",
		"intent", cls.Intent, "confidence", cls.Confidence, "source", cls.Source)
	return cls
}

func (c *Classifier) classifyWithModel(ctx context.Context, text string, recent []models.TurnRecord) (Classification, error) {
	var prompt strings.Builder
	if transcript := formatRecentHistory(recent, 4); transcript != "" {
		prompt.WriteString("Recent conversation:\n")
		prompt.WriteString(transcript)
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("Message to classify:\n")
	prompt.WriteString(text)

	raw, err := c.genAIClient.GeneratePromptWithContext(ctx, classifierSystemPrompt, prompt.String())
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", models.ErrClassificationUnavailable, err)
	}

	payload := extractJSONObject(raw)
	if payload == "" {
		return Classification{}, fmt.Errorf("%w: no JSON object in classifier response", models.ErrClassificationUnavailable)
	}
	var parsed struct {
		Mode       string  `json:"mode"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return Classification{}, fmt.Errorf("%w: parse classifier response: %v", models.ErrClassificationUnavailable, err)
	}

	intent, ok := intentFromLabel(parsed.Mode)
	if !ok {
		return Classification{}, fmt.Errorf("%w: unknown mode label %q", models.ErrClassificationUnavailable, parsed.Mode)
	}
	if parsed.Confidence < lowConfidenceThreshold && intent != models.IntentAmbiguous {
		slog.Debug("Classifier.classifyWithModel: confidence below threshold, treating as ambiguous",
			"intent", intent, "confidence", parsed.Confidence)
		intent = models.IntentAmbiguous
	}
	return Classification{
		Intent:     intent,
		Confidence: clampConfidence(parsed.Confidence),
		Reason:     parsed.Reason,
		Source:     ClassificationSourceModel,
	}, nil
}

// intentFromLabel maps a classifier label to an intent. Both the short form
// ("interview") and the full label ("interview_intent") are accepted.
func intentFromLabel(label string) (models.Intent, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "interview", string(models.IntentInterview):
		return models.IntentInterview, true
	case "chat", string(models.IntentChat):
		return models.IntentChat, true
	case "ambiguous":
		return models.IntentAmbiguous, true
	}
	return "", false
}

// Keyword lists for the classification fallback. Interview markers are
// checked first so a message like "I want to talk about my symptoms" lands
// on the interview side.
var (
	interviewKeywords = []string{
		"assessment", "assess", "evaluat", "diagnos", "screening",
		"questionnaire", "interview", "symptom", "next question", "continue",
		"my mental health", "depress", "anxiet", "anxious", "panic",
		"can't sleep", "cant sleep", "hearing voices", "mood",
	}
	chatKeywords = []string{
		"just chat", "just talk", "keep me company", "someone to talk to",
		"need to vent", "vent", "lonely", "bored", "how are you",
		"talk about something else", "take a break", "pause",
	}
)

// fallbackClassification is the lexical stand-in used when the model backend
// cannot classify. No keyword hit yields ambiguous, which retains the current
// mode under the adaptive policy.
func fallbackClassification(text string) Classification {
	lowered := strings.ToLower(text)
	for _, kw := range interviewKeywords {
		if strings.Contains(lowered, kw) {
			return Classification{
				Intent:     models.IntentInterview,
				Confidence: 0.8,
				Reason:     fmt.Sprintf("matched interview keyword %q", kw),
				Source:     ClassificationSourceFallback,
			}
		}
	}
	for _, kw := range chatKeywords {
		if strings.Contains(lowered, kw) {
			return Classification{
				Intent:     models.IntentChat,
				Confidence: 0.7,
				Reason:     fmt.Sprintf("matched chat keyword %q", kw),
				Source:     ClassificationSourceFallback,
			}
		}
	}
	return Classification{
		Intent:     models.IntentAmbiguous,
		Confidence: 0.3,
		Reason:     "no keyword matched",
		Source:     ClassificationSourceFallback,
	}
}

// extractJSONObject pulls the first JSON object out of a model reply,
// tolerating markdown code fences and prose around the object.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
