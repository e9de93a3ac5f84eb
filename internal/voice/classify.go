package voice

import "strings"

// Recovery selects how a dead voice channel comes back: automatically on
// termination, or only through an explicit user action.
type Recovery string

const (
	RecoveryAuto   Recovery = "auto"
	RecoveryManual Recovery = "manual"
)

// Substrings that mark platforms where recognition engines need a user
// gesture to resume after backgrounding or silence. An approximation, not
// a guarantee.
var manualRecoveryHints = []string{
	"android",
	"iphone",
	"ipad",
	"ios",
	"mobile",
}

// ClassifyRecovery maps an opaque platform hint to a recovery policy. The
// result is injected into the session controller at construction; nothing
// re-inspects the hint at event-handling time.
func ClassifyRecovery(hint string) Recovery {
	lower := strings.ToLower(hint)
	for _, marker := range manualRecoveryHints {
		if strings.Contains(lower, marker) {
			return RecoveryManual
		}
	}
	return RecoveryAuto
}
