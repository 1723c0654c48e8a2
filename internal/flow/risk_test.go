package flow

import (
	"testing"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

func TestDetectRiskElevated(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantIndicator string
	}{
		{"direct statement", "I want to kill myself", "kill myself"},
		{"suicidal wording", "I've been feeling suicidal lately", "suicidal"},
		{"ending life", "sometimes I think about ending my life", "ending my life"},
		{"want to die", "I just want to die", "want to die"},
		{"wanna die", "honestly i wanna die", "wanna die"},
		{"wish dead", "I wish I was dead", "wish i was dead"},
		{"self harm hyphenated", "I've thought about self-harm", "self-harm"},
		{"hurting myself", "I keep thinking about hurting myself", "hurting myself"},
		{"cutting", "I started cutting myself again", "cutting myself"},
		{"better off dead", "everyone would be better off dead without me around", "better off dead"},
		{"no reason to live", "there's no reason to live anymore", "no reason to live"},
		{"end it all", "I'm ready to end it all", "end it all"},
		{"dont want to be alive", "i don't want to be alive", "don't want to be alive"},
		{"take my own life", "I've planned how to take my own life", "take my own life"},
		{"uppercase", "I WANT TO DIE", "want to die"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, indicators := DetectRisk(tt.text)
			if level != models.RiskElevated {
				t.Fatalf("DetectRisk(%q) = %v, want elevated", tt.text, level)
			}
			found := false
			for _, ind := range indicators {
				if ind == tt.wantIndicator {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("DetectRisk(%q) indicators = %v, want to include %q", tt.text, indicators, tt.wantIndicator)
			}
		})
	}
}

func TestDetectRiskNone(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"neutral", "my day was fine, nothing special"},
		{"low mood without risk", "I've been feeling pretty down this week"},
		{"stress", "work has been stressful and I'm exhausted"},
		{"kill without self reference", "I killed it at work today"},
		{"dead without self reference", "my phone battery is dead again"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, indicators := DetectRisk(tt.text)
			if level != models.RiskNone {
				t.Errorf("DetectRisk(%q) = %v (indicators %v), want none", tt.text, level, indicators)
			}
			if indicators != nil {
				t.Errorf("DetectRisk(%q) indicators = %v, want nil", tt.text, indicators)
			}
		})
	}
}

func TestDetectRiskReportsEachMatch(t *testing.T) {
	level, indicators := DetectRisk("I want to die and there's no reason to go on")
	if level != models.RiskElevated {
		t.Fatalf("level = %v, want elevated", level)
	}
	if len(indicators) < 2 {
		t.Errorf("indicators = %v, want at least two matched phrases", indicators)
	}
}

func TestDetectRiskIsDeterministic(t *testing.T) {
	const text = "I can't do this anymore, I want to end my life"
	first, firstIndicators := DetectRisk(text)
	for i := 0; i < 10; i++ {
		level, indicators := DetectRisk(text)
		if level != first || len(indicators) != len(firstIndicators) {
			t.Fatalf("run %d: DetectRisk changed output: %v %v", i, level, indicators)
		}
	}
}
