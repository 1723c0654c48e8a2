package store

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// sessionTone bundles the tone fields into one JSON column.
type sessionTone struct {
	Scores map[string]float32 `json:"scores,omitempty"`
	Tags   []string           `json:"tags,omitempty"`
}

// marshalSessionColumns encodes the JSON-typed columns of a session row.
// Empty collections encode as empty strings so the columns stay NULL-ish.
func marshalSessionColumns(s models.Session) (topicsJSON, historyJSON, toneJSON string, err error) {
	if len(s.Topics) > 0 {
		b, merr := json.Marshal(s.Topics)
		if merr != nil {
			return "", "", "", fmt.Errorf("failed to marshal topics: %w", merr)
		}
		topicsJSON = string(b)
	}
	if len(s.TurnHistory) > 0 {
		b, merr := json.Marshal(s.TurnHistory)
		if merr != nil {
			return "", "", "", fmt.Errorf("failed to marshal turn history: %w", merr)
		}
		historyJSON = string(b)
	}
	if len(s.ToneScores) > 0 || len(s.ToneTags) > 0 {
		b, merr := json.Marshal(sessionTone{Scores: s.ToneScores, Tags: s.ToneTags})
		if merr != nil {
			return "", "", "", fmt.Errorf("failed to marshal tone: %w", merr)
		}
		toneJSON = string(b)
	}
	return topicsJSON, historyJSON, toneJSON, nil
}

// unmarshalSessionColumns decodes the JSON-typed columns into the session.
func unmarshalSessionColumns(s *models.Session, topicsJSON, historyJSON, toneJSON string) error {
	if topicsJSON != "" {
		if err := json.Unmarshal([]byte(topicsJSON), &s.Topics); err != nil {
			return fmt.Errorf("failed to unmarshal topics: %w", err)
		}
	}
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &s.TurnHistory); err != nil {
			return fmt.Errorf("failed to unmarshal turn history: %w", err)
		}
	}
	if toneJSON != "" {
		var tone sessionTone
		if err := json.Unmarshal([]byte(toneJSON), &tone); err != nil {
			return fmt.Errorf("failed to unmarshal tone: %w", err)
		}
		s.ToneScores = tone.Scores
		s.ToneTags = tone.Tags
	}
	return nil
}

// nilIfEmpty maps an empty string to SQL NULL so JSON-typed columns stay valid.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
