package sessions

import "slices"

// -------------------------------------------------------------------------
// Eligibility Filter
// -------------------------------------------------------------------------

// graphicalSessionTypes lists the logind session types whose seats are
// protected by a screensaver rather than an idle timeout. Tunneled
// graphical sessions are a different story and are handled through the
// evaluator's nested branch.
var graphicalSessionTypes = map[string]bool{
	"x11":     true,
	"wayland": true,
	"mir":     true,
}

// SkipReason reports whether the session is ineligible for idleness
// enforcement, and why. A session is ineligible when it is a graphical
// seat, has no assigned terminal (noninteractive), belongs to an
// excluded user, or is lingering (leader pid 0).
func (s *Session) SkipReason(excludedUsers []string) (string, bool) {
	if graphicalSessionTypes[s.Logind.Type] {
		return "graphical session", true
	}

	if s.TTY == nil {
		return "noninteractive session", true
	}

	if slices.Contains(excludedUsers, s.Username) {
		return "excluded user " + s.Username, true
	}

	if s.Logind.Leader == 0 {
		return "lingering session (leader pid 0)", true
	}

	return "", false
}
