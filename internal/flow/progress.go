package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// Tracker manages interview progress over a session's topic list. It mutates
// the topics in place so the caller's slice always reflects the latest state.
//
// Resolution is one-way: a topic moves from PENDING to ANSWERED or SKIPPED
// exactly once, and a resolved topic can never change status again.
type Tracker struct {
	topics []models.Topic
}

// NewTracker wraps an existing topic slice. The tracker does not copy the
// slice; updates are visible to the owner of the backing array.
func NewTracker(topics []models.Topic) *Tracker {
	return &Tracker{topics: topics}
}

// RecordResponse resolves a pending topic. When skipped is false the topic is
// marked ANSWERED and summary is stored as its response summary; when skipped
// is true the topic is marked SKIPPED and the summary is ignored.
//
// Returns models.ErrInvalidTopic when the topic does not exist or is already
// resolved.
func (t *Tracker) RecordResponse(topicID, summary string, skipped bool) error {
	idx := t.find(topicID)
	if idx < 0 {
		return fmt.Errorf("record response for unknown topic %q: %w", topicID, models.ErrInvalidTopic)
	}
	topic := &t.topics[idx]
	if topic.Status != models.TopicStatusPending {
		return fmt.Errorf("record response for topic %q already %s: %w", topicID, topic.Status, models.ErrInvalidTopic)
	}

	now := time.Now()
	topic.ResolvedAt = &now
	if skipped {
		topic.Status = models.TopicStatusSkipped
		topic.ResponseSummary = ""
	} else {
		topic.Status = models.TopicStatusAnswered
		topic.ResponseSummary = summary
	}
	slog.Debug("Tracker.RecordResponse: topic resolved", "topicID", topicID, "status", topic.Status)
	return nil
}

// NextPending returns the first topic in catalog order that is still PENDING,
// or nil when every topic is resolved.
func (t *Tracker) NextPending() *models.Topic {
	for i := range t.topics {
		if t.topics[i].Status == models.TopicStatusPending {
			return &t.topics[i]
		}
	}
	return nil
}

// IsComplete reports whether every topic is resolved. An empty topic list is
// complete by definition.
func (t *Tracker) IsComplete() bool {
	for i := range t.topics {
		if t.topics[i].Status == models.TopicStatusPending {
			return false
		}
	}
	return true
}

// PendingCount returns the number of topics still awaiting resolution.
func (t *Tracker) PendingCount() int {
	n := 0
	for i := range t.topics {
		if t.topics[i].Status == models.TopicStatusPending {
			n++
		}
	}
	return n
}

// Status returns the current status of a topic, or empty string when the
// topic does not exist.
func (t *Tracker) Status(topicID string) models.TopicStatus {
	idx := t.find(topicID)
	if idx < 0 {
		return ""
	}
	return t.topics[idx].Status
}

func (t *Tracker) find(topicID string) int {
	for i := range t.topics {
		if t.topics[i].ID == topicID {
			return i
		}
	}
	return -1
}
