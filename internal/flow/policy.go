package flow

import (
	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// PolicyInput carries everything the mode decision depends on. The decision
// is a pure function of this input so every precedence rule is testable
// without a session or a backend.
type PolicyInput struct {
	Policy      models.WorkflowPolicy
	CurrentMode models.Mode
	CrisisFlag  bool
	Complete    bool
	Intent      models.Intent
}

// DecideMode resolves the conversation mode for the next reply and returns
// the mode with a short reason for logging.
//
// Precedence, highest first:
//  1. Crisis flag set: CRISIS, regardless of policy or intent.
//  2. Structured policy with pending topics: INTERVIEWING. Intent is still
//     classified and logged upstream, but it cannot steer the mode.
//  3. Structured policy with all topics resolved: SUPPORTIVE_CHAT, one-way.
//  4. Adaptive policy with all topics resolved: SUPPORTIVE_CHAT.
//  5. Adaptive policy otherwise follows intent; ambiguous intent retains the
//     current mode.
//
// CRISIS is never returned unless the crisis flag is set: when a cleared
// session retains an ambiguous intent while still in crisis mode, the
// decision falls back to INTERVIEWING.
func DecideMode(in PolicyInput) (models.Mode, string) {
	if in.CrisisFlag {
		return models.ModeCrisis, "crisis flag set"
	}

	if in.Policy == models.PolicyStructured {
		if !in.Complete {
			return models.ModeInterviewing, "structured interview incomplete"
		}
		return models.ModeSupportiveChat, "structured interview complete"
	}

	if in.Complete {
		return models.ModeSupportiveChat, "interview complete"
	}

	switch in.Intent {
	case models.IntentInterview:
		return models.ModeInterviewing, "interview intent"
	case models.IntentChat:
		return models.ModeSupportiveChat, "chat intent"
	default:
		if in.CurrentMode == models.ModeSupportiveChat {
			return models.ModeSupportiveChat, "ambiguous intent retains current mode"
		}
		if in.CurrentMode == models.ModeCrisis {
			return models.ModeInterviewing, "resuming interview after crisis cleared"
		}
		return models.ModeInterviewing, "ambiguous intent retains current mode"
	}
}
