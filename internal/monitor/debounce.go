package monitor

import (
	"time"

	"sitewatch/internal/models"
)

// Transition is the outcome of feeding one detected status through the
// debounce state machine.
type Transition struct {
	// StatusChanged is set when the confirmed status moved, including the
	// first confirmation of an unknown site.
	StatusChanged bool
	// PendingChanged is set when the candidate or its start time changed.
	PendingChanged bool
	Previous       models.Status
}

// Debounce applies detected to the site's confirmed status. A candidate must
// persist for debounceMinutes before it is confirmed; returning to the
// confirmed status cancels the candidate.
func Debounce(site *models.Site, detected models.Status, now time.Time, debounceMinutes int) Transition {
	if debounceMinutes <= 0 {
		debounceMinutes = DefaultDebounceMinutes
	}
	nowMs := now.UnixMilli()
	t := Transition{Previous: site.Status}
	hadPending := site.HasPending()
	site.StatusRaw = detected

	switch {
	case site.Status == models.StatusUnknown || site.Status == "":
		site.Status = detected
		site.ClearPending()
		t.StatusChanged = true
		t.PendingChanged = hadPending

	case detected == site.Status:
		site.ClearPending()
		t.PendingChanged = hadPending

	case hadPending && detected == site.StatusPending:
		if site.StatusPendingStartTime > nowMs {
			// Start time from a skewed clock; restart the window.
			site.StatusPendingStartTime = nowMs
			t.PendingChanged = true
			break
		}
		if nowMs-site.StatusPendingStartTime >= minutes(debounceMinutes) {
			site.Status = detected
			site.ClearPending()
			t.StatusChanged = true
			t.PendingChanged = true
		}

	default:
		site.StatusPending = detected
		site.StatusPendingStartTime = nowMs
		t.PendingChanged = true
	}
	return t
}
