package flow

import (
	"fmt"
	"strings"
)

// DefaultCrisisContact is the contact line used in crisis replies when the
// operator has not configured a local one.
const DefaultCrisisContact = "If you are in immediate danger, call your local emergency number now."

// crisisTemplate is the entire crisis reply. It is never generated by the
// model backend, so it works identically whether or not the backend is up.
const crisisTemplate = `I'm really concerned about what you've just shared. What you're feeling matters, and you deserve support from a real person right now.

%s

You can also call or text 988 (Suicide and Crisis Lifeline) at any time, or text HOME to 741741 to reach a crisis counselor.

I'm pausing our regular conversation because your safety comes first. I'm not able to provide crisis care myself, but the people at these services can. A member of our care team will review this conversation as soon as possible.`

// crisisReply renders the fixed crisis response with the configured contact
// line, falling back to DefaultCrisisContact when it is blank.
func crisisReply(contact string) string {
	if strings.TrimSpace(contact) == "" {
		contact = DefaultCrisisContact
	}
	return fmt.Sprintf(crisisTemplate, contact)
}
