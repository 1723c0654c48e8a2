package flow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name    string
		defs    []TopicDefinition
		wantErr string
	}{
		{
			name: "valid with gate",
			defs: []TopicDefinition{
				{ID: "screen", PromptTemplate: "How have you been sleeping?"},
				{ID: "detail", PromptTemplate: "Tell me more about your sleep.", Gate: "screen"},
			},
		},
		{
			name: "empty catalog is valid",
			defs: nil,
		},
		{
			name: "missing id",
			defs: []TopicDefinition{
				{ID: "", PromptTemplate: "Hello?"},
			},
			wantErr: "has no id",
		},
		{
			name: "missing prompt template",
			defs: []TopicDefinition{
				{ID: "screen", PromptTemplate: ""},
			},
			wantErr: "has no prompt template",
		},
		{
			name: "duplicate id",
			defs: []TopicDefinition{
				{ID: "screen", PromptTemplate: "one"},
				{ID: "screen", PromptTemplate: "two"},
			},
			wantErr: "duplicate topic id",
		},
		{
			name: "id too long",
			defs: []TopicDefinition{
				{ID: strings.Repeat("x", models.MaxTopicIDLength+1), PromptTemplate: "Hello?"},
			},
			wantErr: "exceeds",
		},
		{
			name: "gate references unknown topic",
			defs: []TopicDefinition{
				{ID: "detail", PromptTemplate: "More?", Gate: "screen"},
			},
			wantErr: "does not reference an earlier topic",
		},
		{
			name: "gate references later topic",
			defs: []TopicDefinition{
				{ID: "detail", PromptTemplate: "More?", Gate: "screen"},
				{ID: "screen", PromptTemplate: "Anything?"},
			},
			wantErr: "does not reference an earlier topic",
		},
		{
			name: "gate references itself",
			defs: []TopicDefinition{
				{ID: "screen", PromptTemplate: "Anything?", Gate: "screen"},
			},
			wantErr: "does not reference an earlier topic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := NewCatalog(tt.defs)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("NewCatalog failed: %v", err)
				}
				if catalog.Len() != len(tt.defs) {
					t.Errorf("Len = %d, want %d", catalog.Len(), len(tt.defs))
				}
				return
			}
			if err == nil {
				t.Fatalf("NewCatalog succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestCatalogLookups(t *testing.T) {
	catalog, err := NewCatalog([]TopicDefinition{
		{ID: "screen", PromptTemplate: "How have you been sleeping?"},
		{ID: "detail_a", PromptTemplate: "More on falling asleep?", Gate: "screen"},
		{ID: "detail_b", PromptTemplate: "More on waking up?", Gate: "screen"},
		{ID: "other", PromptTemplate: "Anything else?"},
	})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	def, ok := catalog.Definition("detail_a")
	if !ok || def.Gate != "screen" {
		t.Errorf("Definition(detail_a) = %+v ok=%v, want gated on screen", def, ok)
	}
	if _, ok := catalog.Definition("missing"); ok {
		t.Error("Definition(missing) reported ok")
	}

	deps := catalog.Dependents("screen")
	if len(deps) != 2 || deps[0] != "detail_a" || deps[1] != "detail_b" {
		t.Errorf("Dependents(screen) = %v, want [detail_a detail_b]", deps)
	}
	if deps := catalog.Dependents("other"); len(deps) != 0 {
		t.Errorf("Dependents(other) = %v, want none", deps)
	}
}

func TestCatalogInitTopics(t *testing.T) {
	catalog, err := NewCatalog([]TopicDefinition{
		{ID: "screen", PromptTemplate: "How have you been sleeping?"},
		{ID: "other", PromptTemplate: "Anything else?"},
	})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	topics := catalog.InitTopics()
	if len(topics) != 2 {
		t.Fatalf("InitTopics returned %d topics, want 2", len(topics))
	}
	for i, topic := range topics {
		if topic.Status != models.TopicStatusPending {
			t.Errorf("topic %d status = %v, want PENDING", i, topic.Status)
		}
		if topic.ResolvedAt != nil || topic.ResponseSummary != "" {
			t.Errorf("topic %d carries resolution state on a fresh session", i)
		}
	}

	// Each call returns an independent slice.
	topics[0].Status = models.TopicStatusAnswered
	if again := catalog.InitTopics(); again[0].Status != models.TopicStatusPending {
		t.Error("InitTopics shares state between calls")
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	content := `[
		{"id": "screen", "prompt_template": "How have you been sleeping?"},
		{"id": "detail", "prompt_template": "Tell me more.", "gate": "screen"}
	]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}

	catalog, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile failed: %v", err)
	}
	if catalog.Len() != 2 {
		t.Errorf("Len = %d, want 2", catalog.Len())
	}
	if def, ok := catalog.Definition("detail"); !ok || def.Gate != "screen" {
		t.Errorf("Definition(detail) = %+v ok=%v", def, ok)
	}
}

func TestLoadCatalogFileErrors(t *testing.T) {
	if _, err := LoadCatalogFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadCatalogFile succeeded on missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadCatalogFile(bad); err == nil {
		t.Error("LoadCatalogFile succeeded on malformed JSON")
	}

	invalid := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(invalid, []byte(`[{"id": "", "prompt_template": "x"}]`), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadCatalogFile(invalid); err == nil {
		t.Error("LoadCatalogFile accepted an invalid catalog")
	}
}

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()

	if catalog.Len() != 11 {
		t.Errorf("default catalog has %d topics, want 11", catalog.Len())
	}

	// The risk item is never gated: it must be asked even after a negative
	// depression screen.
	if def, ok := catalog.Definition("suicide_risk"); !ok || def.Gate != "" {
		t.Errorf("suicide_risk = %+v ok=%v, want ungated", def, ok)
	}

	deps := catalog.Dependents("depression_screening")
	if len(deps) != 3 {
		t.Errorf("Dependents(depression_screening) = %v, want three follow-ups", deps)
	}
	for _, id := range []string{"anxiety_symptoms", "psychotic_delusions"} {
		def, ok := catalog.Definition(id)
		if !ok || def.Gate == "" {
			t.Errorf("%s = %+v ok=%v, want gated", id, def, ok)
		}
	}
}
