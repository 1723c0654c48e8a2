// Package tone provides a fixed whitelist of conversation-state tags,
// per-turn observation heuristics, EMA-based smoothing, mutual-exclusion
// enforcement, and style-guide construction for supportive replies.
package tone

import (
	"math"
	"strings"
)

// ---- Whitelist ----

// AllTags is the hard-coded set of recognized conversation-state tags.
var AllTags = map[string]bool{
	// Affect
	"distressed": true,
	"calm":       true,
	// Engagement
	"withdrawn": true,
	"engaged":   true,
	// Reply style
	"terse":     true,
	"expansive": true,
	// Preferences
	"wants_reassurance":      true,
	"prefers_plain_language": true,
}

// mutuallyExclusivePairs defines tags where at most one may be active.
var mutuallyExclusivePairs = [][2]string{
	{"distressed", "calm"},
	{"withdrawn", "engaged"},
	{"terse", "expansive"},
}

// ---- Data types ----

// Observation is a single-turn reading of the user's message.
type Observation struct {
	Tags   []string           `json:"tags,omitempty"`
	Scores map[string]float32 `json:"scores,omitempty"`
}

// State holds the smoothed per-session conversation-state signal.
type State struct {
	Tags   []string           `json:"tags,omitempty"`
	Scores map[string]float32 `json:"scores,omitempty"`
}

// ---- Constants for EMA / hysteresis ----

const (
	// alpha is tuned for per-turn cadence: three consecutive observations
	// of the same tag cross the activation threshold.
	alpha             = float32(0.35)
	activateThreshold = float32(0.7)
	deactivateThresh  = float32(0.4)
)

// ---- Observation heuristics ----

var distressMarkers = []string{
	"overwhelmed", "can't cope", "cant cope", "can't handle", "cant handle",
	"scared", "terrified", "panick", "crying", "falling apart",
	"exhausted", "so stressed", "really anxious",
}

var calmMarkers = []string{
	"feeling better", "calmer", "doing okay", "doing ok", "feeling fine",
	"relaxed", "at ease", "more settled",
}

var withdrawnMarkers = []string{
	"idk", "dunno", "whatever", "fine", "nothing", "doesn't matter", "doesnt matter",
}

var reassuranceMarkers = []string{
	"is that normal", "is this normal", "am i crazy", "is this bad",
	"should i be worried", "am i broken", "is something wrong with me",
}

var plainLanguageMarkers = []string{
	"what does that mean", "in plain english", "don't understand", "dont understand",
	"simpler words", "plain words", "too technical",
}

// Observe derives a single-turn observation from the user's message text.
// It is deterministic and only emits whitelisted tags.
func Observe(text string) Observation {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	var tags []string

	if containsAny(lower, distressMarkers) {
		tags = append(tags, "distressed")
	}
	if containsAny(lower, calmMarkers) {
		tags = append(tags, "calm")
	}
	if len(words) <= 3 && containsAny(lower, withdrawnMarkers) {
		tags = append(tags, "withdrawn")
	}
	if len(words) >= 30 || (strings.Contains(text, "?") && len(words) >= 12) {
		tags = append(tags, "engaged")
	}
	if len(words) > 0 && len(words) <= 5 {
		tags = append(tags, "terse")
	} else if len(words) >= 60 {
		tags = append(tags, "expansive")
	}
	if containsAny(lower, reassuranceMarkers) {
		tags = append(tags, "wants_reassurance")
	}
	if containsAny(lower, plainLanguageMarkers) {
		tags = append(tags, "prefers_plain_language")
	}

	return Observation{Tags: tags}
}

// ---- Public API ----

// ValidateObservation strips unknown tags, clamps scores, and returns a
// cleaned observation.
func ValidateObservation(o Observation) Observation {
	var cleaned Observation

	// Filter tags.
	seen := map[string]bool{}
	for _, t := range o.Tags {
		t = strings.TrimSpace(strings.ToLower(t))
		if AllTags[t] && !seen[t] {
			cleaned.Tags = append(cleaned.Tags, t)
			seen[t] = true
		}
	}

	// Filter and clamp scores.
	if len(o.Scores) > 0 {
		cleaned.Scores = make(map[string]float32, len(o.Scores))
		for k, v := range o.Scores {
			k = strings.TrimSpace(strings.ToLower(k))
			if !AllTags[k] {
				continue
			}
			cleaned.Scores[k] = clamp(v)
		}
	}

	return cleaned
}

// UpdateState applies a validated observation to the session state using EMA
// smoothing and hysteresis. Non-observed tags decay toward zero so the state
// follows the conversation rather than pinning to its first reading. Returns
// true if the state was actually mutated.
func UpdateState(st *State, observation Observation) bool {
	if st.Scores == nil {
		st.Scores = make(map[string]float32)
	}

	observation = ValidateObservation(observation)

	// Build observation map. Explicit scores override the binary 1.0 presence.
	obs := make(map[string]float32)
	for _, t := range observation.Tags {
		obs[t] = 1.0
	}
	for k, v := range observation.Scores {
		obs[k] = v
	}

	changed := false

	// EMA smoothing for observed tags.
	for tag, v := range obs {
		prev := st.Scores[tag]
		st.Scores[tag] = clamp((1-alpha)*prev + alpha*v)
		if st.Scores[tag] != prev {
			changed = true
		}
	}
	// Decay non-observed tags toward 0 so deactivation can occur.
	for tag, prev := range st.Scores {
		if _, observed := obs[tag]; observed {
			continue
		}
		if prev <= 0 {
			continue
		}
		decayed := clamp((1 - alpha) * prev)
		if decayed != prev {
			st.Scores[tag] = decayed
			changed = true
		}
	}

	if !changed {
		return false
	}

	// Enforce mutual exclusion: keep the higher score.
	for _, pair := range mutuallyExclusivePairs {
		a, b := pair[0], pair[1]
		sa, sb := st.Scores[a], st.Scores[b]
		if sa >= activateThreshold && sb >= activateThreshold {
			if sa >= sb {
				st.Scores[b] = deactivateThresh - 0.01
			} else {
				st.Scores[a] = deactivateThresh - 0.01
			}
		}
	}

	// Rebuild active tags from scores using hysteresis.
	activeSet := make(map[string]bool)
	for _, t := range st.Tags {
		activeSet[t] = true
	}

	for tag, score := range st.Scores {
		if score >= activateThreshold {
			activeSet[tag] = true
		} else if score <= deactivateThresh {
			delete(activeSet, tag)
		}
		// Between thresholds: keep current state (hysteresis).
	}

	// Rebuild tags slice.
	newTags := make([]string, 0, len(activeSet))
	for t := range activeSet {
		newTags = append(newTags, t)
	}
	st.Tags = newTags

	return true
}

// BuildSupportGuide produces a compact instruction snippet for injection into
// supportive-chat system prompts. It returns an empty string when there are no
// active tags.
func BuildSupportGuide(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}

	var b strings.Builder
	b.WriteString("\n<STYLE GUIDE>\nAdapt your replies to the user's current state:\n")

	if set["distressed"] {
		b.WriteString("- The user sounds distressed. Slow down, acknowledge feelings before anything else, and keep suggestions small.\n")
	}
	if set["calm"] {
		b.WriteString("- The user sounds settled. A steady, conversational register is fine.\n")
	}
	if set["withdrawn"] {
		b.WriteString("- The user is giving short, flat answers. Ask gentle open questions and do not push.\n")
	}
	if set["engaged"] {
		b.WriteString("- The user is engaged and forthcoming. Reflect back the details they share.\n")
	}
	if set["terse"] {
		b.WriteString("- Keep replies short: one or two sentences.\n")
	}
	if set["expansive"] {
		b.WriteString("- The user writes at length. Briefly summarize what you heard before responding.\n")
	}
	if set["wants_reassurance"] {
		b.WriteString("- Offer normalizing, factual reassurance without minimizing their experience.\n")
	}
	if set["prefers_plain_language"] {
		b.WriteString("- Avoid clinical jargon. Use everyday words.\n")
	}

	b.WriteString("- Never diagnose, and never promise outcomes.\n")
	b.WriteString("</STYLE GUIDE>\n")

	return b.String()
}

// ---- helpers ----

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func clamp(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	// Round to 4 decimal places to avoid floating point drift.
	return float32(math.Round(float64(v)*10000) / 10000)
}
