package queue

import (
	"fmt"
	"time"
)

const etaPlaceholder = "--"

// ETA renders the estimated wait as a short countdown. "Now" once the
// estimate has passed, otherwise "~Nm" with whole minutes rounded half up.
func ETA(estimatedStartAt *time.Time, now time.Time) string {
	if estimatedStartAt == nil {
		return etaPlaceholder
	}

	d := estimatedStartAt.Sub(now)
	if d <= 0 {
		return "Now"
	}

	mins := int((d + 30*time.Second) / time.Minute)
	if mins < 0 {
		mins = 0
	}
	return fmt.Sprintf("~%dm", mins)
}
