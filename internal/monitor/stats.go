package monitor

import (
	"math"
	"time"

	"sitewatch/internal/models"
)

// ResetDailyStats rolls today's counters into yesterday when the calendar
// date in loc differs from the last reset. It reports whether a reset
// happened.
func ResetDailyStats(state *models.MonitorState, now time.Time, loc *time.Location) bool {
	today := dateKey(now, loc)
	w := &state.Stats.Writes
	if w.LastResetDate == today {
		return false
	}
	if w.LastResetDate != "" {
		w.Yesterday = w.Today
		state.Stats.Checks.Yesterday = state.Stats.Checks.Today
	}
	w.Today = 0
	w.Forced = 0
	w.StatusChange = 0
	state.Stats.Checks.Today = 0
	w.LastResetDate = today
	return true
}

// CountSites refreshes the site counters. Slow sites count as online.
func CountSites(state *models.MonitorState) models.SiteStats {
	s := models.SiteStats{Total: len(state.Sites)}
	for _, site := range state.Sites {
		switch {
		case site.Status.Reachable():
			s.Online++
		case site.Status == models.StatusOffline:
			s.Offline++
		}
	}
	state.Stats.Sites = s
	return s
}

// UptimeStats summarizes a history window.
type UptimeStats struct {
	Uptime          float64 `json:"uptime"`
	AvgResponseTime int64   `json:"avgResponseTime"`
	TotalChecks     int     `json:"totalChecks"`
	OnlineChecks    int     `json:"onlineChecks"`
	OfflineChecks   int     `json:"offlineChecks"`
}

// CalculateStats computes uptime over records. An empty window reports 100%.
func CalculateStats(records []models.HistoryRecord) UptimeStats {
	if len(records) == 0 {
		return UptimeStats{Uptime: 100}
	}
	var st UptimeStats
	var total int64
	for _, r := range records {
		st.TotalChecks++
		if r.Status.Reachable() {
			st.OnlineChecks++
		} else if r.Status == models.StatusOffline {
			st.OfflineChecks++
		}
		total += r.ResponseTime
	}
	st.Uptime = math.Round(float64(st.OnlineChecks)/float64(st.TotalChecks)*10000) / 100
	st.AvgResponseTime = int64(math.Round(float64(total) / float64(st.TotalChecks)))
	return st
}

// EstimatedDailyWrites is the number of scheduled writes per day at the
// configured interval, excluding status-change and forced writes.
func EstimatedDailyWrites(cfg models.MonitorConfig) int {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return int(math.Round(1440 / float64(interval)))
}
