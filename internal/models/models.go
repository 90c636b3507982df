package models

// MonitorType selects the probe used for a Site.
type MonitorType string

const (
	MonitorHTTP     MonitorType = "http"
	MonitorTCP      MonitorType = "tcp"
	MonitorDNS      MonitorType = "dns"
	MonitorSMTP     MonitorType = "smtp"
	MonitorMySQL    MonitorType = "mysql"
	MonitorPostgres MonitorType = "postgres"
	MonitorMongoDB  MonitorType = "mongodb"
	MonitorMQTT     MonitorType = "mqtt"
	MonitorPush     MonitorType = "push"
)

// Status is the externally visible health of a Site.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusSlow    Status = "slow"
	StatusOffline Status = "offline"
)

// Reachable reports whether the status counts as up (online or slow).
func (s Status) Reachable() bool {
	return s == StatusOnline || s == StatusSlow
}

// CertInfo is a snapshot of a site's TLS leaf certificate.
type CertInfo struct {
	Valid     bool   `json:"valid"`
	DaysLeft  int    `json:"daysLeft"`
	Issuer    string `json:"issuer"`
	ValidFrom string `json:"validFrom"`
	ValidTo   string `json:"validTo"`
	Algorithm string `json:"algorithm,omitempty"`
}

// Site is a monitored target. The first block of fields is its definition,
// the second block is runtime state owned by the monitoring cycle.
// All timestamps are Unix epoch milliseconds.
type Site struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	MonitorType MonitorType `json:"monitorType"`

	URL                      string            `json:"url,omitempty"`
	Method                   string            `json:"method,omitempty"`
	Headers                  map[string]string `json:"headers,omitempty"`
	Body                     string            `json:"body,omitempty"`
	ExpectedCodes            []int             `json:"expectedCodes,omitempty"`
	ResponseKeyword          string            `json:"responseKeyword,omitempty"`
	ResponseForbiddenKeyword string            `json:"responseForbiddenKeyword,omitempty"`
	DNSRecordType            string            `json:"dnsRecordType,omitempty"`
	DNSExpectedValue         string            `json:"dnsExpectedValue,omitempty"`
	TCPHost                  string            `json:"tcpHost,omitempty"`
	TCPPort                  int               `json:"tcpPort,omitempty"`
	DBHost                   string            `json:"dbHost,omitempty"`
	DBPort                   int               `json:"dbPort,omitempty"`
	MQTTHost                 string            `json:"mqttHost,omitempty"`
	MQTTPort                 int               `json:"mqttPort,omitempty"`
	PushToken                string            `json:"pushToken,omitempty"`
	PushTimeoutMinutes       int               `json:"pushTimeoutMinutes,omitempty"`
	GroupID                  string            `json:"groupId,omitempty"`
	SortOrder                int               `json:"sortOrder"`
	CreatedAt                int64             `json:"createdAt"`

	Status                 Status    `json:"status"`
	StatusRaw              Status    `json:"statusRaw,omitempty"`
	StatusPending          Status    `json:"statusPending,omitempty"`
	StatusPendingStartTime int64     `json:"statusPendingStartTime,omitempty"`
	ResponseTime           int64     `json:"responseTime"`
	LastCheck              int64     `json:"lastCheck"`
	SSLCert                *CertInfo `json:"sslCert"`
	SSLCertLastCheck       int64     `json:"sslCertLastCheck,omitempty"`
	LastHeartbeat          int64     `json:"lastHeartbeat,omitempty"`
	PushLatency            int64     `json:"pushLatency,omitempty"`
}

// HasPending reports whether a candidate status is awaiting confirmation.
func (s *Site) HasPending() bool {
	return s.StatusPending != "" && s.StatusPendingStartTime != 0
}

// ClearPending drops the candidate status and its start time together.
func (s *Site) ClearPending() {
	s.StatusPending = ""
	s.StatusPendingStartTime = 0
}

// ProbeResult is the normalized outcome of one probe run.
type ProbeResult struct {
	Timestamp    int64  `json:"timestamp"`
	Status       Status `json:"status"`
	StatusCode   int    `json:"statusCode"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
}

// HistoryRecord is one persisted point of a site's time series.
// Status holds the confirmed status at write time, not the raw probe status.
type HistoryRecord struct {
	Timestamp    int64  `json:"timestamp"`
	Status       Status `json:"status"`
	StatusCode   int    `json:"statusCode"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
}

// IncidentType classifies an Incident.
type IncidentType string

const (
	IncidentDown        IncidentType = "down"
	IncidentRecovered   IncidentType = "recovered"
	IncidentCertWarning IncidentType = "cert_warning"
)

// Incident is a discrete event: a confirmed down/recovered transition or a
// certificate expiry threshold crossing.
type Incident struct {
	ID               string       `json:"id"`
	SiteID           string       `json:"siteId"`
	SiteName         string       `json:"siteName"`
	Type             IncidentType `json:"type"`
	Title            string       `json:"title"`
	Message          string       `json:"message"`
	CreatedAt        int64        `json:"createdAt"`
	Status           Status       `json:"status"`
	PreviousStatus   Status       `json:"previousStatus,omitempty"`
	ResponseTime     *int64       `json:"responseTime"`
	DaysLeft         *int         `json:"daysLeft"`
	DownDuration     *int64       `json:"downDuration"`
	MonthlyDownCount *int         `json:"monthlyDownCount"`
	CertIssuer       string       `json:"certIssuer,omitempty"`
	CertValidTo      string       `json:"certValidTo,omitempty"`
}

// CertificateAlertState maps a threshold in days to whether it already
// fired during the current expiry cycle.
type CertificateAlertState map[int]bool

// Heartbeat is a client-pushed liveness report for a push site.
type Heartbeat struct {
	SiteID      string   `json:"siteId"`
	ReceivedAt  int64    `json:"receivedAt"`
	Latency     int64    `json:"latency"`
	CPU         *float64 `json:"cpu,omitempty"`
	Memory      *float64 `json:"memory,omitempty"`
	Disk        *float64 `json:"disk,omitempty"`
	Load        *float64 `json:"load,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}
