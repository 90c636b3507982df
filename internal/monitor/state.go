package monitor

import (
	"time"

	"sitewatch/internal/models"
)

const (
	StateVersion = 1

	DefaultDebounceMinutes = 3
	DefaultCheckInterval   = 10
	DefaultRetentionHours  = 720
	DefaultHistoryHours    = 24
)

// DefaultEvents are the incident types notified when no event list is configured.
var DefaultEvents = []models.IncidentType{
	models.IncidentDown,
	models.IncidentRecovered,
	models.IncidentCertWarning,
}

// DefaultConfig returns the monitor settings of a freshly initialized state.
func DefaultConfig() models.MonitorConfig {
	return models.MonitorConfig{
		HistoryHours:                DefaultHistoryHours,
		RetentionHours:              DefaultRetentionHours,
		CheckInterval:               DefaultCheckInterval,
		StatusChangeDebounceMinutes: DefaultDebounceMinutes,
		Notifications: models.NotificationConfig{
			Enabled: false,
			Events:  append([]models.IncidentType(nil), DefaultEvents...),
		},
	}
}

// NewState builds an empty state with default configuration. Daily stats
// start on the calendar date of now in loc.
func NewState(now time.Time, loc *time.Location) *models.MonitorState {
	return &models.MonitorState{
		Version:           StateVersion,
		LastUpdate:        now.UnixMilli(),
		Config:            DefaultConfig(),
		Sites:             []models.Site{},
		History:           map[string][]models.HistoryRecord{},
		Incidents:         map[string][]models.Incident{},
		IncidentIndex:     []models.Incident{},
		CertificateAlerts: map[string]models.CertificateAlertState{},
		LastNotifications: map[string]int64{},
		Stats: models.Stats{
			Writes: models.WriteStats{LastResetDate: dateKey(now, loc)},
		},
	}
}

// Normalize migrates legacy configuration fields and fills defaults in
// place. It reports whether anything changed.
func Normalize(state *models.MonitorState) bool {
	cfg := &state.Config
	changed := false

	if cfg.StatusChangeDebounceCount != nil {
		if cfg.StatusChangeDebounceMinutes <= 0 {
			cfg.StatusChangeDebounceMinutes = *cfg.StatusChangeDebounceCount
		}
		cfg.StatusChangeDebounceCount = nil
		changed = true
	}
	if cfg.StatusChangeDebounceMinutes <= 0 {
		cfg.StatusChangeDebounceMinutes = DefaultDebounceMinutes
		changed = true
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
		changed = true
	}
	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = DefaultRetentionHours
		changed = true
	}
	if cfg.HistoryHours <= 0 {
		cfg.HistoryHours = DefaultHistoryHours
		changed = true
	}
	if state.Version == 0 {
		state.Version = StateVersion
		changed = true
	}

	if state.Sites == nil {
		state.Sites = []models.Site{}
	}
	if state.History == nil {
		state.History = map[string][]models.HistoryRecord{}
	}
	if state.Incidents == nil {
		state.Incidents = map[string][]models.Incident{}
	}
	if state.IncidentIndex == nil {
		state.IncidentIndex = []models.Incident{}
	}
	if state.CertificateAlerts == nil {
		state.CertificateAlerts = map[string]models.CertificateAlertState{}
	}
	if state.LastNotifications == nil {
		state.LastNotifications = map[string]int64{}
	}
	for i := range state.Sites {
		if state.Sites[i].Status == "" {
			state.Sites[i].Status = models.StatusUnknown
		}
		if state.Sites[i].MonitorType == "" {
			state.Sites[i].MonitorType = models.MonitorHTTP
		}
	}
	return changed
}

func floorToMinute(ms int64) int64 {
	return ms - ms%60000
}

func dateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

func minutes(n int) int64 { return int64(n) * 60_000 }

func hours(n int) int64 { return int64(n) * 3_600_000 }
