package models

// WebhookChannel posts a JSON document describing the incident.
type WebhookChannel struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// WeComChannel posts a markdown message to a WeCom group robot.
type WeComChannel struct {
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
}

// EmailChannel sends mail through the Resend HTTP API.
type EmailChannel struct {
	Enabled      bool   `json:"enabled"`
	To           string `json:"to"`
	From         string `json:"from"`
	ResendAPIKey string `json:"resendApiKey,omitempty"`
}

// NotificationChannels groups the per-channel settings.
type NotificationChannels struct {
	Webhook WebhookChannel `json:"webhook"`
	WeCom   WeComChannel   `json:"wecom"`
	Email   EmailChannel   `json:"email"`
}

// NotificationConfig controls incident fan-out.
type NotificationConfig struct {
	Enabled bool           `json:"enabled"`
	Events  []IncidentType `json:"events,omitempty"`
	// Cooldown is the minimum gap in milliseconds between two notifications
	// for the same site and incident type.
	Cooldown int64                `json:"cooldown,omitempty"`
	Channels NotificationChannels `json:"channels"`
}

// AllowsEvent reports whether notifications are enabled for the incident type.
// A nil event list allows every type.
func (c NotificationConfig) AllowsEvent(t IncidentType) bool {
	if !c.Enabled {
		return false
	}
	if c.Events == nil {
		return true
	}
	for _, e := range c.Events {
		if e == t {
			return true
		}
	}
	return false
}

// MonitorConfig holds the global monitoring settings persisted with the state.
type MonitorConfig struct {
	HistoryHours   int `json:"historyHours"`
	RetentionHours int `json:"retentionHours"`
	// CheckInterval is the scheduled write interval in minutes.
	CheckInterval               int `json:"checkInterval"`
	StatusChangeDebounceMinutes int `json:"statusChangeDebounceMinutes"`
	// StatusChangeDebounceCount is the legacy name of the debounce setting.
	StatusChangeDebounceCount *int               `json:"statusChangeDebounceCount,omitempty"`
	SiteName                  string             `json:"siteName,omitempty"`
	Notifications             NotificationConfig `json:"notifications"`
}

// CheckStats counts monitoring cycles.
type CheckStats struct {
	Total     int64 `json:"total"`
	Today     int64 `json:"today"`
	Yesterday int64 `json:"yesterday"`
}

// WriteStats counts state persistence writes.
type WriteStats struct {
	Total         int64  `json:"total"`
	Today         int64  `json:"today"`
	Yesterday     int64  `json:"yesterday"`
	Forced        int64  `json:"forced"`
	StatusChange  int64  `json:"statusChange"`
	LastResetDate string `json:"lastResetDate"`
}

// SiteStats summarizes current site health.
type SiteStats struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// Stats is the aggregate counters block of the state.
type Stats struct {
	Checks CheckStats `json:"checks"`
	Writes WriteStats `json:"writes"`
	Sites  SiteStats  `json:"sites"`
}

// MonitorState is the aggregate root loaded at the start of a cycle and
// written back at its end.
type MonitorState struct {
	Version           int                              `json:"version"`
	LastUpdate        int64                            `json:"lastUpdate"`
	Config            MonitorConfig                    `json:"config"`
	Sites             []Site                           `json:"sites"`
	History           map[string][]HistoryRecord       `json:"history"`
	Incidents         map[string][]Incident            `json:"incidents"`
	IncidentIndex     []Incident                       `json:"incidentIndex"`
	CertificateAlerts map[string]CertificateAlertState `json:"certificateAlerts"`
	LastNotifications map[string]int64                 `json:"lastNotifications,omitempty"`
	Stats             Stats                            `json:"stats"`
	MonitorNextDueAt  int64                            `json:"monitorNextDueAt,omitempty"`
	LastCleanup       int64                            `json:"lastCleanup,omitempty"`
	LastSSLCheck      int64                            `json:"lastSslCheck,omitempty"`
}

// Site returns a pointer to the site with the given id, or nil.
func (s *MonitorState) Site(id string) *Site {
	for i := range s.Sites {
		if s.Sites[i].ID == id {
			return &s.Sites[i]
		}
	}
	return nil
}
