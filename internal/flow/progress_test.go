package flow

import (
	"errors"
	"testing"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

func pendingTopics(ids ...string) []models.Topic {
	topics := make([]models.Topic, 0, len(ids))
	for _, id := range ids {
		topics = append(topics, models.Topic{
			ID:             id,
			PromptTemplate: "Tell me about " + id,
			Status:         models.TopicStatusPending,
		})
	}
	return topics
}

func TestTrackerRecordAnswer(t *testing.T) {
	topics := pendingTopics("sleep", "mood")
	tracker := NewTracker(topics)

	if err := tracker.RecordResponse("sleep", "sleeps four hours a night", false); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}

	if topics[0].Status != models.TopicStatusAnswered {
		t.Errorf("status = %v, want %v", topics[0].Status, models.TopicStatusAnswered)
	}
	if topics[0].ResponseSummary != "sleeps four hours a night" {
		t.Errorf("summary = %q, want recorded summary", topics[0].ResponseSummary)
	}
	if topics[0].ResolvedAt == nil {
		t.Error("ResolvedAt not set on answered topic")
	}
	if topics[1].Status != models.TopicStatusPending {
		t.Errorf("untouched topic status = %v, want PENDING", topics[1].Status)
	}
}

func TestTrackerRecordSkip(t *testing.T) {
	topics := pendingTopics("sleep")
	tracker := NewTracker(topics)

	if err := tracker.RecordResponse("sleep", "ignored", true); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}

	if topics[0].Status != models.TopicStatusSkipped {
		t.Errorf("status = %v, want %v", topics[0].Status, models.TopicStatusSkipped)
	}
	if topics[0].ResponseSummary != "" {
		t.Errorf("skipped topic kept summary %q", topics[0].ResponseSummary)
	}
	if topics[0].ResolvedAt == nil {
		t.Error("ResolvedAt not set on skipped topic")
	}
}

func TestTrackerUnknownTopic(t *testing.T) {
	tracker := NewTracker(pendingTopics("sleep"))

	err := tracker.RecordResponse("appetite", "", false)
	if !errors.Is(err, models.ErrInvalidTopic) {
		t.Errorf("RecordResponse(unknown) error = %v, want ErrInvalidTopic", err)
	}
}

func TestTrackerResolutionIsOneWay(t *testing.T) {
	topics := pendingTopics("sleep")
	tracker := NewTracker(topics)

	if err := tracker.RecordResponse("sleep", "first answer", false); err != nil {
		t.Fatalf("first RecordResponse failed: %v", err)
	}

	err := tracker.RecordResponse("sleep", "second answer", false)
	if !errors.Is(err, models.ErrInvalidTopic) {
		t.Errorf("second RecordResponse error = %v, want ErrInvalidTopic", err)
	}
	err = tracker.RecordResponse("sleep", "", true)
	if !errors.Is(err, models.ErrInvalidTopic) {
		t.Errorf("skip after answer error = %v, want ErrInvalidTopic", err)
	}

	if topics[0].Status != models.TopicStatusAnswered {
		t.Errorf("status changed to %v after rejected updates", topics[0].Status)
	}
	if topics[0].ResponseSummary != "first answer" {
		t.Errorf("summary changed to %q after rejected updates", topics[0].ResponseSummary)
	}
}

func TestTrackerNextPendingFollowsCatalogOrder(t *testing.T) {
	topics := pendingTopics("sleep", "mood", "energy")
	tracker := NewTracker(topics)

	if next := tracker.NextPending(); next == nil || next.ID != "sleep" {
		t.Fatalf("NextPending = %v, want sleep", next)
	}

	// Resolving the middle topic does not change the front of the queue.
	if err := tracker.RecordResponse("mood", "flat mood most days", false); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}
	if next := tracker.NextPending(); next == nil || next.ID != "sleep" {
		t.Fatalf("NextPending after mid resolution = %v, want sleep", next)
	}

	if err := tracker.RecordResponse("sleep", "fine", false); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}
	if next := tracker.NextPending(); next == nil || next.ID != "energy" {
		t.Fatalf("NextPending = %v, want energy", next)
	}

	if err := tracker.RecordResponse("energy", "", true); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}
	if next := tracker.NextPending(); next != nil {
		t.Errorf("NextPending on complete interview = %v, want nil", next)
	}
}

func TestTrackerCompleteness(t *testing.T) {
	tracker := NewTracker(pendingTopics("sleep", "mood"))

	if tracker.IsComplete() {
		t.Error("IsComplete true with pending topics")
	}
	if got := tracker.PendingCount(); got != 2 {
		t.Errorf("PendingCount = %d, want 2", got)
	}

	if err := tracker.RecordResponse("sleep", "ok", false); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}
	if err := tracker.RecordResponse("mood", "", true); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}

	if !tracker.IsComplete() {
		t.Error("IsComplete false after resolving every topic")
	}
	if got := tracker.PendingCount(); got != 0 {
		t.Errorf("PendingCount = %d, want 0", got)
	}
}

func TestTrackerEmptyListIsComplete(t *testing.T) {
	tracker := NewTracker(nil)
	if !tracker.IsComplete() {
		t.Error("IsComplete false for empty topic list")
	}
	if next := tracker.NextPending(); next != nil {
		t.Errorf("NextPending = %v, want nil", next)
	}
}

func TestTrackerStatus(t *testing.T) {
	tracker := NewTracker(pendingTopics("sleep"))

	if got := tracker.Status("sleep"); got != models.TopicStatusPending {
		t.Errorf("Status(sleep) = %v, want PENDING", got)
	}
	if got := tracker.Status("missing"); got != "" {
		t.Errorf("Status(missing) = %v, want empty", got)
	}
}
