// Package flow implements the conversation workflow engine: the interview
// topic catalog, progress tracking, intent classification, crisis detection,
// mode policy, and the per-turn engine that drives them.
package flow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// TopicDefinition describes one entry of the interview catalog.
type TopicDefinition struct {
	ID             string `json:"id"`
	PromptTemplate string `json:"prompt_template"`
	// Gate names an earlier screening topic. When that topic resolves with a
	// negative answer, this topic is skipped automatically.
	Gate string `json:"gate,omitempty"`
}

// Catalog is an ordered, validated set of interview topics. It is immutable
// after construction and shared across sessions.
type Catalog struct {
	topics []TopicDefinition
	index  map[string]int
}

// NewCatalog validates the topic definitions and builds a catalog.
// IDs must be unique and non-empty, prompt templates non-empty, and gates may
// only reference earlier topics.
func NewCatalog(defs []TopicDefinition) (*Catalog, error) {
	index := make(map[string]int, len(defs))
	for i, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("catalog: topic at position %d has no id", i)
		}
		if len(def.ID) > models.MaxTopicIDLength {
			return nil, fmt.Errorf("catalog: topic id %q exceeds %d characters", def.ID, models.MaxTopicIDLength)
		}
		if def.PromptTemplate == "" {
			return nil, fmt.Errorf("catalog: topic %q has no prompt template", def.ID)
		}
		if _, dup := index[def.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate topic id %q", def.ID)
		}
		if def.Gate != "" {
			gateIdx, ok := index[def.Gate]
			if !ok || gateIdx >= i {
				return nil, fmt.Errorf("catalog: topic %q gate %q does not reference an earlier topic", def.ID, def.Gate)
			}
		}
		index[def.ID] = i
	}

	topics := make([]TopicDefinition, len(defs))
	copy(topics, defs)
	return &Catalog{topics: topics, index: index}, nil
}

// Len returns the number of topics in the catalog.
func (c *Catalog) Len() int {
	return len(c.topics)
}

// Topics returns the catalog entries in interview order.
func (c *Catalog) Topics() []TopicDefinition {
	out := make([]TopicDefinition, len(c.topics))
	copy(out, c.topics)
	return out
}

// Definition looks up a topic definition by ID.
func (c *Catalog) Definition(id string) (TopicDefinition, bool) {
	idx, ok := c.index[id]
	if !ok {
		return TopicDefinition{}, false
	}
	return c.topics[idx], true
}

// Dependents returns the IDs of all topics gated on the given topic, in
// catalog order.
func (c *Catalog) Dependents(gateID string) []string {
	var out []string
	for _, def := range c.topics {
		if def.Gate == gateID {
			out = append(out, def.ID)
		}
	}
	return out
}

// InitTopics materializes the catalog as a fresh pending topic list for a new
// session.
func (c *Catalog) InitTopics() []models.Topic {
	topics := make([]models.Topic, 0, len(c.topics))
	for _, def := range c.topics {
		topics = append(topics, models.Topic{
			ID:             def.ID,
			PromptTemplate: def.PromptTemplate,
			Status:         models.TopicStatusPending,
		})
	}
	return topics
}

// LoadCatalogFile reads topic definitions from a JSON file and validates them.
// The file holds an array of TopicDefinition objects.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	var defs []TopicDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	catalog, err := NewCatalog(defs)
	if err != nil {
		return nil, err
	}
	slog.Info("Catalog loaded from file", "path", path, "topics", catalog.Len())
	return catalog, nil
}

// DefaultCatalog returns the built-in clinical screening catalog. Screening
// items gate their follow-ups so a negative screen skips the detail questions.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog([]TopicDefinition{
		{
			ID:             "depression_screening",
			PromptTemplate: "I'd like to understand how you have been feeling lately. How would you describe your mood over the past couple of weeks?",
		},
		{
			ID:             "depression_interest",
			PromptTemplate: "Over the past two weeks, have you noticed losing interest or pleasure in activities you usually enjoy?",
			Gate:           "depression_screening",
		},
		{
			ID:             "depression_symptoms",
			PromptTemplate: "Over the past two weeks, have you experienced changes in appetite, trouble sleeping or sleeping too much, feeling slowed down or restless, low energy, feelings of worthlessness or guilt, or trouble concentrating?",
			Gate:           "depression_screening",
		},
		{
			ID:             "depression_severity",
			PromptTemplate: "How much have these difficulties affected your daily life, work, or relationships: mildly, moderately, or severely?",
			Gate:           "depression_screening",
		},
		{
			ID:             "suicide_risk",
			PromptTemplate: "Have you had any thoughts of harming yourself or ending your life? If so, have you made any specific plans?",
		},
		{
			ID:             "anxiety_screening",
			PromptTemplate: "Over the past six months, have you often felt excessively worried or anxious and found it hard to control?",
		},
		{
			ID:             "anxiety_symptoms",
			PromptTemplate: "When you feel anxious, do you also notice restlessness, getting tired easily, trouble concentrating, irritability, muscle tension, or sleep problems?",
			Gate:           "anxiety_screening",
		},
		{
			ID:             "panic_screening",
			PromptTemplate: "Have you ever had a sudden surge of intense fear or discomfort, with a racing heart, sweating, or trembling, that peaked within a few minutes?",
		},
		{
			ID:             "psychotic_screening",
			PromptTemplate: "Have you ever heard voices that other people could not hear, or seen things that others could not see?",
		},
		{
			ID:             "psychotic_delusions",
			PromptTemplate: "Have you ever been firmly convinced of something others considered untrue, such as being watched or having special abilities?",
			Gate:           "psychotic_screening",
		},
		{
			ID:             "substance_screening",
			PromptTemplate: "In the past twelve months, has your use of alcohol or other substances caused problems in your life?",
		},
	})
	if err != nil {
		// The built-in catalog must always validate.
		panic(fmt.Sprintf("default catalog invalid: %v", err))
	}
	return catalog
}
