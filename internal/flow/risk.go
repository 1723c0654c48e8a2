package flow

import (
	"regexp"
	"strings"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// riskPatterns match direct statements of suicidal intent or self-harm.
// Input is lowercased before matching, so the patterns are written in
// lowercase. The list errs toward sensitivity: false positives route a
// conversation to crisis handling, which a human can clear later.
var riskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`kill\w* myself`),
	regexp.MustCompile(`suicid\w*`),
	regexp.MustCompile(`end\w* my life`),
	regexp.MustCompile(`wan(?:t to|na) die`),
	regexp.MustCompile(`wish i (?:was|were) dead`),
	regexp.MustCompile(`(?:hurt|harm|cut)\w* myself`),
	regexp.MustCompile(`self[- ]harm`),
	regexp.MustCompile(`better off dead`),
	regexp.MustCompile(`no reason to (?:live|go on)`),
	regexp.MustCompile(`end it all`),
	regexp.MustCompile(`(?:don'?t|do not) want to (?:live|be alive|go on)`),
	regexp.MustCompile(`take my (?:own )?life`),
	regexp.MustCompile(`not worth living`),
}

// DetectRisk scans a user message for indicators of acute risk. It returns
// RiskElevated with the matched phrases when any pattern fires, RiskNone
// otherwise. Detection is purely lexical and never calls a model backend, so
// it cannot fail and it behaves identically on every run.
func DetectRisk(text string) (models.RiskLevel, []string) {
	lowered := strings.ToLower(text)
	var indicators []string
	for _, re := range riskPatterns {
		if m := re.FindString(lowered); m != "" {
			indicators = append(indicators, m)
		}
	}
	if len(indicators) == 0 {
		return models.RiskNone, nil
	}
	return models.RiskElevated, indicators
}
