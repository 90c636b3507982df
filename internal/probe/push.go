package probe

import (
	"context"
	"fmt"
	"time"

	"sitewatch/internal/models"
)

// DefaultPushTimeout is the heartbeat window used when a site sets none.
const DefaultPushTimeout = 3 * time.Minute

// Push derives status from the age of the last heartbeat. It never touches
// the network; the cycle merges stored heartbeats into the site beforehand.
type Push struct{}

func (Push) Probe(_ context.Context, site models.Site, now time.Time) models.ProbeResult {
	res := models.ProbeResult{Timestamp: now.UnixMilli()}
	if site.LastHeartbeat <= 0 {
		res.Status = models.StatusOffline
		res.Message = "no heartbeat received"
		return res
	}
	window := DefaultPushTimeout
	if site.PushTimeoutMinutes > 0 {
		window = time.Duration(site.PushTimeoutMinutes) * time.Minute
	}
	age := now.Sub(time.UnixMilli(site.LastHeartbeat))
	if age < 0 {
		age = 0
	}
	if age > window {
		res.Status = models.StatusOffline
		res.Message = fmt.Sprintf("no heartbeat for %s (timeout %s)", age.Round(time.Second), window)
		return res
	}
	res.Status = models.StatusOnline
	res.ResponseTime = site.PushLatency
	res.Message = fmt.Sprintf("last heartbeat %s ago", age.Round(time.Second))
	return res
}
