package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"sitewatch/internal/models"
	"sitewatch/internal/urlutil"
)

// File is the optional YAML document declaring monitored sites and
// monitor settings.
type File struct {
	Monitor MonitorSection `yaml:"monitor"`
	Sites   []SiteSection  `yaml:"sites"`
}

// MonitorSection overrides persisted monitor settings when a value is set.
type MonitorSection struct {
	SiteName        string         `yaml:"site_name"`
	CheckInterval   int            `yaml:"check_interval_minutes"`
	DebounceMinutes int            `yaml:"debounce_minutes"`
	RetentionHours  int            `yaml:"retention_hours"`
	HistoryHours    int            `yaml:"history_hours"`
	Notifications   *NotifySection `yaml:"notifications"`
}

// NotifySection mirrors models.NotificationConfig in YAML form.
type NotifySection struct {
	Enabled         bool     `yaml:"enabled"`
	Events          []string `yaml:"events"`
	CooldownMinutes int      `yaml:"cooldown_minutes"`
	Webhook         struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"webhook"`
	WeCom struct {
		Enabled bool   `yaml:"enabled"`
		Webhook string `yaml:"webhook"`
	} `yaml:"wecom"`
	Email struct {
		Enabled      bool   `yaml:"enabled"`
		To           string `yaml:"to"`
		From         string `yaml:"from"`
		ResendAPIKey string `yaml:"resend_api_key"`
	} `yaml:"email"`
}

// SiteSection is one site definition.
type SiteSection struct {
	ID                       string            `yaml:"id"`
	Name                     string            `yaml:"name"`
	Type                     string            `yaml:"type"`
	URL                      string            `yaml:"url"`
	Method                   string            `yaml:"method"`
	Headers                  map[string]string `yaml:"headers"`
	Body                     string            `yaml:"body"`
	ExpectedCodes            []int             `yaml:"expected_codes"`
	ResponseKeyword          string            `yaml:"response_keyword"`
	ResponseForbiddenKeyword string            `yaml:"response_forbidden_keyword"`
	DNSRecordType            string            `yaml:"dns_record_type"`
	DNSExpectedValue         string            `yaml:"dns_expected_value"`
	Host                     string            `yaml:"host"`
	Port                     int               `yaml:"port"`
	PushToken                string            `yaml:"push_token"`
	PushTimeoutMinutes       int               `yaml:"push_timeout_minutes"`
	Group                    string            `yaml:"group"`
	SortOrder                int               `yaml:"sort_order"`
}

var validDNSRecordTypes = map[string]bool{
	"A": true, "AAAA": true, "CNAME": true, "MX": true, "TXT": true, "NS": true,
}

var validEvents = map[models.IncidentType]bool{
	models.IncidentDown:        true,
	models.IncidentRecovered:   true,
	models.IncidentCertWarning: true,
}

// LoadFile reads, parses and validates a sites file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read sites file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses and validates a sites document.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("could not parse YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every site definition for the fields its monitor type needs.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(f.Sites))
	for i, s := range f.Sites {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("sites[%d]: id is required", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("sites[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("site %q: %w", s.ID, err))
		}
	}
	if n := f.Monitor.Notifications; n != nil {
		for _, e := range n.Events {
			if !validEvents[models.IncidentType(e)] {
				errs = append(errs, fmt.Errorf("notifications: unknown event %q", e))
			}
		}
	}
	return errors.Join(errs...)
}

func (s SiteSection) monitorType() models.MonitorType {
	if s.Type == "" {
		return models.MonitorHTTP
	}
	return models.MonitorType(strings.ToLower(s.Type))
}

func (s SiteSection) validate() error {
	switch s.monitorType() {
	case models.MonitorHTTP:
		if _, err := urlutil.Canonicalize(s.URL); err != nil {
			return errors.New("http sites need an absolute http(s) url")
		}
	case models.MonitorDNS:
		if s.URL == "" {
			return errors.New("dns sites need a domain in url")
		}
		if s.DNSRecordType != "" && !validDNSRecordTypes[strings.ToUpper(s.DNSRecordType)] {
			return fmt.Errorf("unsupported dns record type %q", s.DNSRecordType)
		}
	case models.MonitorTCP:
		if s.Host == "" || s.Port <= 0 {
			return errors.New("tcp sites need host and port")
		}
	case models.MonitorSMTP, models.MonitorMySQL, models.MonitorPostgres, models.MonitorMongoDB, models.MonitorMQTT:
		if s.Host == "" {
			return fmt.Errorf("%s sites need a host", s.monitorType())
		}
	case models.MonitorPush:
	default:
		return fmt.Errorf("unknown monitor type %q", s.Type)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	return nil
}

// Site converts the definition into a models.Site with only definition
// fields populated. Host and port land in the field group the monitor
// type reads.
func (s SiteSection) Site() models.Site {
	site := models.Site{
		ID:                       s.ID,
		Name:                     s.Name,
		MonitorType:              s.monitorType(),
		URL:                      s.URL,
		Method:                   strings.ToUpper(s.Method),
		Headers:                  s.Headers,
		Body:                     s.Body,
		ExpectedCodes:            s.ExpectedCodes,
		ResponseKeyword:          s.ResponseKeyword,
		ResponseForbiddenKeyword: s.ResponseForbiddenKeyword,
		DNSRecordType:            strings.ToUpper(s.DNSRecordType),
		DNSExpectedValue:         s.DNSExpectedValue,
		PushToken:                s.PushToken,
		PushTimeoutMinutes:       s.PushTimeoutMinutes,
		GroupID:                  s.Group,
		SortOrder:                s.SortOrder,
	}
	if site.Name == "" {
		site.Name = s.ID
	}
	if site.MonitorType == models.MonitorHTTP {
		if u, err := urlutil.Canonicalize(s.URL); err == nil {
			site.URL = u
		}
	}
	switch site.MonitorType {
	case models.MonitorTCP, models.MonitorSMTP:
		site.TCPHost, site.TCPPort = s.Host, s.Port
	case models.MonitorMySQL, models.MonitorPostgres, models.MonitorMongoDB:
		site.DBHost, site.DBPort = s.Host, s.Port
	case models.MonitorMQTT:
		site.MQTTHost, site.MQTTPort = s.Host, s.Port
	}
	return site
}

// SiteDefinitions returns the declared sites in file order.
func (f *File) SiteDefinitions() []models.Site {
	out := make([]models.Site, 0, len(f.Sites))
	for _, s := range f.Sites {
		out = append(out, s.Site())
	}
	return out
}

// ApplyMonitor overlays the non-zero monitor settings onto cfg.
func (f *File) ApplyMonitor(cfg *models.MonitorConfig) {
	m := f.Monitor
	if m.SiteName != "" {
		cfg.SiteName = m.SiteName
	}
	if m.CheckInterval > 0 {
		cfg.CheckInterval = m.CheckInterval
	}
	if m.DebounceMinutes > 0 {
		cfg.StatusChangeDebounceMinutes = m.DebounceMinutes
	}
	if m.RetentionHours > 0 {
		cfg.RetentionHours = m.RetentionHours
	}
	if m.HistoryHours > 0 {
		cfg.HistoryHours = m.HistoryHours
	}
	n := m.Notifications
	if n == nil {
		return
	}
	nc := models.NotificationConfig{
		Enabled:  n.Enabled,
		Cooldown: int64(n.CooldownMinutes) * 60_000,
		Channels: models.NotificationChannels{
			Webhook: models.WebhookChannel{Enabled: n.Webhook.Enabled, URL: n.Webhook.URL},
			WeCom:   models.WeComChannel{Enabled: n.WeCom.Enabled, Webhook: n.WeCom.Webhook},
			Email: models.EmailChannel{
				Enabled:      n.Email.Enabled,
				To:           n.Email.To,
				From:         n.Email.From,
				ResendAPIKey: n.Email.ResendAPIKey,
			},
		},
	}
	if n.Events != nil {
		nc.Events = make([]models.IncidentType, 0, len(n.Events))
		for _, e := range n.Events {
			nc.Events = append(nc.Events, models.IncidentType(e))
		}
	} else {
		nc.Events = cfg.Notifications.Events
	}
	cfg.Notifications = nc
}
