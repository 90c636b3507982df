package monitor

import (
	"fmt"
	"time"

	"sitewatch/internal/models"
)

// IncidentPayload carries the fields of an incident that vary by type.
type IncidentPayload struct {
	Type             models.IncidentType
	Title            string
	Message          string
	Status           models.Status
	PreviousStatus   models.Status
	ResponseTime     *int64
	DaysLeft         *int
	DownDuration     *int64
	MonthlyDownCount *int
	CertIssuer       string
	CertValidTo      string
}

// RecordIncident stores an incident at the head of the site's list and of
// the global index. Recording the same site, time and type twice replaces
// the earlier copy.
func RecordIncident(state *models.MonitorState, site *models.Site, p IncidentPayload, now time.Time) models.Incident {
	nowMs := now.UnixMilli()
	status := p.Status
	if status == "" {
		status = site.Status
	}
	inc := models.Incident{
		ID:               fmt.Sprintf("%s_%d_%s", site.ID, nowMs, p.Type),
		SiteID:           site.ID,
		SiteName:         site.Name,
		Type:             p.Type,
		Title:            p.Title,
		Message:          p.Message,
		CreatedAt:        nowMs,
		Status:           status,
		PreviousStatus:   p.PreviousStatus,
		ResponseTime:     p.ResponseTime,
		DaysLeft:         p.DaysLeft,
		DownDuration:     p.DownDuration,
		MonthlyDownCount: p.MonthlyDownCount,
		CertIssuer:       p.CertIssuer,
		CertValidTo:      p.CertValidTo,
	}

	if state.Incidents == nil {
		state.Incidents = map[string][]models.Incident{}
	}
	list := withoutIncident(state.Incidents[site.ID], inc.ID)
	state.Incidents[site.ID] = append([]models.Incident{inc}, list...)

	index := withoutIncident(state.IncidentIndex, inc.ID)
	state.IncidentIndex = append([]models.Incident{inc}, index...)
	return inc
}

func withoutIncident(list []models.Incident, id string) []models.Incident {
	out := list[:0:0]
	for _, inc := range list {
		if inc.ID != id {
			out = append(out, inc)
		}
	}
	return out
}

// transitionIncident records a down or recovered incident when a confirmed
// change crosses the offline boundary. First confirmation of an unknown
// site never records an incident.
func transitionIncident(state *models.MonitorState, site *models.Site, prev models.Status, res models.ProbeResult, now time.Time, loc *time.Location) *models.Incident {
	if prev == models.StatusUnknown || prev == "" || prev == site.Status {
		return nil
	}
	responseTime := res.ResponseTime

	switch {
	case site.Status == models.StatusOffline:
		msg := res.Message
		if msg == "" {
			msg = "site offline"
		}
		inc := RecordIncident(state, site, IncidentPayload{
			Type:           models.IncidentDown,
			Title:          "Site down",
			Message:        msg,
			Status:         site.Status,
			PreviousStatus: prev,
			ResponseTime:   &responseTime,
		}, now)
		return &inc

	case prev == models.StatusOffline && site.Status.Reachable():
		downDuration, monthly := downStats(state.Incidents[site.ID], now, loc)
		inc := RecordIncident(state, site, IncidentPayload{
			Type:             models.IncidentRecovered,
			Title:            "Site recovered",
			Message:          "site recovered",
			Status:           site.Status,
			PreviousStatus:   prev,
			ResponseTime:     &responseTime,
			DownDuration:     downDuration,
			MonthlyDownCount: &monthly,
		}, now)
		return &inc
	}
	return nil
}

// downStats returns the time since the most recent down incident and the
// number of down incidents in the calendar month of now.
func downStats(list []models.Incident, now time.Time, loc *time.Location) (*int64, int) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).UnixMilli()

	var duration *int64
	count := 0
	for _, inc := range list {
		if inc.Type != models.IncidentDown {
			continue
		}
		if duration == nil {
			d := now.UnixMilli() - inc.CreatedAt
			duration = &d
		}
		if inc.CreatedAt >= monthStart {
			count++
		}
	}
	return duration, count
}
