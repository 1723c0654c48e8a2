// Package models defines mode, policy, and status enumerations shared across packages.
package models

// Mode represents the conversation mode a session is in.
type Mode string

// WorkflowPolicy represents how strictly a session follows the interview catalog.
type WorkflowPolicy string

// TopicStatus represents the resolution state of an interview topic.
type TopicStatus string

// Intent represents the classified intent of a user message.
type Intent string

// RiskLevel represents the crisis-detection outcome for a single message.
type RiskLevel string

// Speaker identifies who produced a turn-history entry.
type Speaker string

// Conversation modes.
const (
	ModeInterviewing   Mode = "INTERVIEWING"
	ModeSupportiveChat Mode = "SUPPORTIVE_CHAT"
	ModeCrisis         Mode = "CRISIS"
)

// Workflow policies. The policy is fixed at session creation.
const (
	PolicyAdaptive   WorkflowPolicy = "ADAPTIVE"
	PolicyStructured WorkflowPolicy = "STRUCTURED"
)

// Topic statuses. A topic leaves PENDING at most once and never returns.
const (
	TopicStatusPending  TopicStatus = "PENDING"
	TopicStatusAnswered TopicStatus = "ANSWERED"
	TopicStatusSkipped  TopicStatus = "SKIPPED"
)

// Intent labels returned by the classifier.
const (
	IntentInterview Intent = "interview_intent"
	IntentChat      Intent = "chat_intent"
	IntentAmbiguous Intent = "ambiguous"
)

// Risk levels returned by the crisis detector.
const (
	RiskNone     RiskLevel = "none"
	RiskElevated RiskLevel = "elevated"
)

// Turn-history speakers.
const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// IsValidMode checks if the given mode is supported.
func IsValidMode(m Mode) bool {
	switch m {
	case ModeInterviewing, ModeSupportiveChat, ModeCrisis:
		return true
	default:
		return false
	}
}

// IsValidWorkflowPolicy checks if the given workflow policy is supported.
func IsValidWorkflowPolicy(p WorkflowPolicy) bool {
	switch p {
	case PolicyAdaptive, PolicyStructured:
		return true
	default:
		return false
	}
}

// IsValidTopicStatus checks if the given topic status is supported.
func IsValidTopicStatus(s TopicStatus) bool {
	switch s {
	case TopicStatusPending, TopicStatusAnswered, TopicStatusSkipped:
		return true
	default:
		return false
	}
}

// IsResolved reports whether the status is a terminal one.
func (s TopicStatus) IsResolved() bool {
	return s == TopicStatusAnswered || s == TopicStatusSkipped
}

// IsValidIntent checks if the given intent label is supported.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentInterview, IntentChat, IntentAmbiguous:
		return true
	default:
		return false
	}
}
