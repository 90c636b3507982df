package monitor

import (
	"time"

	"sitewatch/internal/models"
)

// ShouldThrottleAndMark reports whether a notification for the incident
// falls inside the cooldown of the previous one for the same site and type.
// When it does not, the send time is recorded.
func ShouldThrottleAndMark(state *models.MonitorState, inc models.Incident, cooldownMs int64, now time.Time) bool {
	if cooldownMs <= 0 {
		return false
	}
	if state.LastNotifications == nil {
		state.LastNotifications = map[string]int64{}
	}
	key := inc.SiteID + ":" + string(inc.Type)
	nowMs := now.UnixMilli()
	if nowMs-state.LastNotifications[key] < cooldownMs {
		return true
	}
	state.LastNotifications[key] = nowMs
	return false
}
