package monitor

import (
	"strings"
	"time"

	"sitewatch/internal/models"
)

// UpdateHistory appends a record for the site. The record carries the
// site's confirmed status rather than the raw probe status.
func UpdateHistory(state *models.MonitorState, site *models.Site, res models.ProbeResult) {
	if state.History == nil {
		state.History = map[string][]models.HistoryRecord{}
	}
	state.History[site.ID] = append(state.History[site.ID], models.HistoryRecord{
		Timestamp:    res.Timestamp,
		Status:       site.Status,
		StatusCode:   res.StatusCode,
		ResponseTime: res.ResponseTime,
		Message:      res.Message,
	})
}

// CleanupOldData drops history records and incidents of one site that are
// older than the retention window. A record exactly at the boundary is kept.
func CleanupOldData(state *models.MonitorState, siteID string, now time.Time) {
	nowMs := now.UnixMilli()
	retention := hours(state.Config.RetentionHours)

	if records, ok := state.History[siteID]; ok {
		kept := records[:0]
		for _, r := range records {
			if nowMs-r.Timestamp <= retention {
				kept = append(kept, r)
			}
		}
		state.History[siteID] = kept
	}
	if list, ok := state.Incidents[siteID]; ok {
		kept := list[:0]
		for _, inc := range list {
			if inc.CreatedAt == 0 || nowMs-inc.CreatedAt <= retention {
				kept = append(kept, inc)
			}
		}
		state.Incidents[siteID] = kept
	}
}

// CleanupOrphanedData removes every per-site entry whose site no longer
// exists and returns how many entries were dropped.
func CleanupOrphanedData(state *models.MonitorState) int {
	valid := make(map[string]struct{}, len(state.Sites))
	for _, s := range state.Sites {
		valid[s.ID] = struct{}{}
	}
	known := func(id string) bool {
		_, ok := valid[id]
		return ok
	}

	cleaned := 0
	for id := range state.History {
		if !known(id) {
			delete(state.History, id)
			cleaned++
		}
	}
	for id := range state.Incidents {
		if !known(id) {
			delete(state.Incidents, id)
			cleaned++
		}
	}
	for id := range state.CertificateAlerts {
		if !known(id) {
			delete(state.CertificateAlerts, id)
			cleaned++
		}
	}
	for key := range state.LastNotifications {
		siteID, _, _ := strings.Cut(key, ":")
		if !known(siteID) {
			delete(state.LastNotifications, key)
			cleaned++
		}
	}

	index := state.IncidentIndex[:0]
	for _, inc := range state.IncidentIndex {
		if inc.SiteID != "" && known(inc.SiteID) {
			index = append(index, inc)
		} else {
			cleaned++
		}
	}
	state.IncidentIndex = index
	return cleaned
}

// CleanupIncidentIndex drops incidents older than the retention window from
// the global index and from the matching per-site list.
func CleanupIncidentIndex(state *models.MonitorState, now time.Time) {
	if len(state.IncidentIndex) == 0 {
		return
	}
	nowMs := now.UnixMilli()
	retention := hours(state.Config.RetentionHours)

	index := state.IncidentIndex[:0]
	for _, inc := range state.IncidentIndex {
		if inc.CreatedAt == 0 || nowMs-inc.CreatedAt <= retention {
			index = append(index, inc)
			continue
		}
		if list, ok := state.Incidents[inc.SiteID]; ok {
			state.Incidents[inc.SiteID] = withoutIncident(list, inc.ID)
		}
	}
	state.IncidentIndex = index
}

// HistorySince returns the site's records with a timestamp at or after
// since.
func HistorySince(state *models.MonitorState, siteID string, since time.Time) []models.HistoryRecord {
	cutoff := since.UnixMilli()
	var out []models.HistoryRecord
	for _, r := range state.History[siteID] {
		if r.Timestamp >= cutoff {
			out = append(out, r)
		}
	}
	return out
}

// LatestIncidents returns up to limit incidents from the global index, most
// recent first. A non-positive limit returns all of them.
func LatestIncidents(state *models.MonitorState, limit int) []models.Incident {
	n := len(state.IncidentIndex)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Incident, n)
	copy(out, state.IncidentIndex[:n])
	return out
}
