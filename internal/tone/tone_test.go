package tone

import (
	"sort"
	"strings"
	"testing"
)

func TestValidateObservation_StripsUnknownTags(t *testing.T) {
	o := ValidateObservation(Observation{
		Tags: []string{"distressed", "UNKNOWN", "calm", "  engaged  ", "injected_tag"},
	})
	for _, tag := range o.Tags {
		if !AllTags[tag] {
			t.Errorf("unexpected tag in cleaned observation: %q", tag)
		}
	}
	if len(o.Tags) != 3 { // distressed, calm, engaged
		t.Errorf("expected 3 tags, got %d: %v", len(o.Tags), o.Tags)
	}
}

func TestValidateObservation_ClampsScores(t *testing.T) {
	o := ValidateObservation(Observation{
		Scores: map[string]float32{
			"distressed": 1.5,
			"calm":       -0.3,
			"engaged":    0.6,
		},
	})
	if o.Scores["distressed"] != 1.0 {
		t.Errorf("expected distressed score clamped to 1.0, got %f", o.Scores["distressed"])
	}
	if o.Scores["calm"] != 0.0 {
		t.Errorf("expected calm score clamped to 0.0, got %f", o.Scores["calm"])
	}
	if o.Scores["engaged"] != 0.6 {
		t.Errorf("expected engaged score 0.6, got %f", o.Scores["engaged"])
	}
}

func TestValidateObservation_DeduplicatesTags(t *testing.T) {
	o := ValidateObservation(Observation{
		Tags: []string{"distressed", "distressed", "calm", "calm"},
	})
	sort.Strings(o.Tags)
	if len(o.Tags) != 2 {
		t.Errorf("expected 2 unique tags, got %d: %v", len(o.Tags), o.Tags)
	}
}

func TestUpdateState_SingleObservationEMA(t *testing.T) {
	st := &State{}

	// First observation should set score to alpha*1.0 = 0.35
	changed := UpdateState(st, Observation{Tags: []string{"distressed"}})
	if !changed {
		t.Fatal("expected change on first observation")
	}
	if st.Scores["distressed"] < 0.34 || st.Scores["distressed"] > 0.36 {
		t.Errorf("expected ~0.35, got %f", st.Scores["distressed"])
	}
	// Should NOT be active yet (below 0.7).
	if toSet(st.Tags)["distressed"] {
		t.Error("distressed should not be active after a single observation")
	}
}

func TestUpdateState_ReachesActivation(t *testing.T) {
	st := &State{}

	// Three consecutive observations cross the activation threshold.
	for i := 0; i < 3; i++ {
		UpdateState(st, Observation{Tags: []string{"distressed"}})
	}

	if !toSet(st.Tags)["distressed"] {
		t.Errorf("expected distressed active after 3 observations, score=%f", st.Scores["distressed"])
	}
}

func TestUpdateState_DecayDeactivates(t *testing.T) {
	st := &State{
		Tags:   []string{"distressed"},
		Scores: map[string]float32{"distressed": 0.73},
	}

	// One quiet turn: score decays into the hysteresis band, tag stays active.
	UpdateState(st, Observation{Tags: []string{"engaged"}})
	if !toSet(st.Tags)["distressed"] {
		t.Errorf("distressed should stay active inside hysteresis band, score=%f", st.Scores["distressed"])
	}

	// A second quiet turn drops the score below the deactivation threshold.
	UpdateState(st, Observation{Tags: []string{"engaged"}})
	if toSet(st.Tags)["distressed"] {
		t.Errorf("distressed should deactivate after decay, score=%f", st.Scores["distressed"])
	}
}

func TestUpdateState_EmptyObservationStillDecays(t *testing.T) {
	st := &State{
		Tags:   []string{"distressed"},
		Scores: map[string]float32{"distressed": 0.9},
	}
	changed := UpdateState(st, Observation{})
	if !changed {
		t.Fatal("expected decay on empty observation")
	}
	if st.Scores["distressed"] >= 0.9 {
		t.Errorf("expected score to decay, got %f", st.Scores["distressed"])
	}
}

func TestUpdateState_MutualExclusion_DistressedCalm(t *testing.T) {
	st := &State{}

	// Push both over threshold; the higher one should win.
	UpdateState(st, Observation{Scores: map[string]float32{"distressed": 1.0, "calm": 1.0}})
	UpdateState(st, Observation{Scores: map[string]float32{"distressed": 1.0, "calm": 1.0}})
	UpdateState(st, Observation{Scores: map[string]float32{"distressed": 1.0, "calm": 0.9}})

	tagSet := toSet(st.Tags)
	if tagSet["distressed"] && tagSet["calm"] {
		t.Error("distressed and calm should not both be active")
	}
	if !tagSet["distressed"] {
		t.Error("distressed should win (higher score)")
	}
}

func TestUpdateState_MutualExclusion_TerseExpansive(t *testing.T) {
	st := &State{}

	for i := 0; i < 3; i++ {
		UpdateState(st, Observation{Scores: map[string]float32{"terse": 0.9, "expansive": 1.0}})
	}

	tagSet := toSet(st.Tags)
	if tagSet["terse"] && tagSet["expansive"] {
		t.Error("terse and expansive should not both be active")
	}
	if !tagSet["expansive"] {
		t.Error("expansive should win (higher score)")
	}
}

func TestUpdateState_NoObservationNoState(t *testing.T) {
	st := &State{}
	changed := UpdateState(st, Observation{})
	if changed {
		t.Error("empty observation on empty state should not change anything")
	}
}

func TestObserve_DistressMarkers(t *testing.T) {
	o := Observe("I feel completely overwhelmed and I am so stressed about everything lately")
	if !toSet(o.Tags)["distressed"] {
		t.Errorf("expected distressed tag, got %v", o.Tags)
	}
}

func TestObserve_CalmMarkers(t *testing.T) {
	o := Observe("Honestly I am feeling better and much calmer this week")
	if !toSet(o.Tags)["calm"] {
		t.Errorf("expected calm tag, got %v", o.Tags)
	}
}

func TestObserve_WithdrawnShortReply(t *testing.T) {
	o := Observe("idk")
	tagSet := toSet(o.Tags)
	if !tagSet["withdrawn"] {
		t.Errorf("expected withdrawn tag for flat one-word reply, got %v", o.Tags)
	}
	if !tagSet["terse"] {
		t.Errorf("expected terse tag for one-word reply, got %v", o.Tags)
	}
}

func TestObserve_EngagedLongReply(t *testing.T) {
	text := strings.Repeat("this has been on my mind a lot ", 5)
	o := Observe(text)
	if !toSet(o.Tags)["engaged"] {
		t.Errorf("expected engaged tag for long reply, got %v", o.Tags)
	}
}

func TestObserve_EngagedQuestionBack(t *testing.T) {
	o := Observe("I keep wondering about this, do other people you talk to feel the same way?")
	if !toSet(o.Tags)["engaged"] {
		t.Errorf("expected engaged tag for question with substance, got %v", o.Tags)
	}
}

func TestObserve_ReassuranceMarkers(t *testing.T) {
	o := Observe("Sometimes my heart races out of nowhere, is that normal for someone my age?")
	if !toSet(o.Tags)["wants_reassurance"] {
		t.Errorf("expected wants_reassurance tag, got %v", o.Tags)
	}
}

func TestObserve_PlainLanguageMarkers(t *testing.T) {
	o := Observe("You said anhedonia earlier but I don't understand what does that mean exactly")
	if !toSet(o.Tags)["prefers_plain_language"] {
		t.Errorf("expected prefers_plain_language tag, got %v", o.Tags)
	}
}

func TestObserve_NeutralMessage(t *testing.T) {
	o := Observe("I usually wake up around seven and head to work by eight thirty most days")
	for _, tag := range o.Tags {
		if tag == "distressed" || tag == "calm" || tag == "withdrawn" {
			t.Errorf("unexpected affect tag %q for neutral message", tag)
		}
	}
}

func TestObserve_OnlyWhitelistedTags(t *testing.T) {
	o := Observe("I am overwhelmed, idk, is that normal? I don't understand what does that mean")
	for _, tag := range o.Tags {
		if !AllTags[tag] {
			t.Errorf("Observe emitted unknown tag %q", tag)
		}
	}
}

func TestBuildSupportGuide_Empty(t *testing.T) {
	guide := BuildSupportGuide(nil)
	if guide != "" {
		t.Error("expected empty guide for nil tags")
	}
	guide = BuildSupportGuide([]string{})
	if guide != "" {
		t.Error("expected empty guide for empty tags")
	}
}

func TestBuildSupportGuide_ContainsTags(t *testing.T) {
	guide := BuildSupportGuide([]string{"distressed", "terse", "prefers_plain_language"})
	if guide == "" {
		t.Fatal("expected non-empty guide")
	}
	if !strings.Contains(guide, "distressed") {
		t.Error("guide should mention the distressed state")
	}
	if !strings.Contains(guide, "one or two sentences") {
		t.Error("guide should ask for short replies")
	}
	if !strings.Contains(guide, "jargon") {
		t.Error("guide should discourage jargon")
	}
	if !strings.Contains(guide, "STYLE GUIDE") {
		t.Error("guide should have STYLE GUIDE header")
	}
}

func TestBuildSupportGuide_AlwaysCarriesSafetyLine(t *testing.T) {
	guide := BuildSupportGuide([]string{"engaged"})
	if !strings.Contains(guide, "Never diagnose") {
		t.Error("guide should always carry the safety line")
	}
}

func TestAllTags_Count(t *testing.T) {
	if len(AllTags) != 8 {
		t.Errorf("expected 8 whitelist tags, got %d", len(AllTags))
	}
}

// ---- helpers ----

func toSet(tags []string) map[string]bool {
	s := make(map[string]bool, len(tags))
	for _, t := range tags {
		s[t] = true
	}
	return s
}
