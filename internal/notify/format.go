package notify

import (
	"fmt"
	"time"

	"sitewatch/internal/models"
)

// FormatDuration renders milliseconds as the two most significant units.
func FormatDuration(ms int64) string {
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, minutes%60)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func headline(t models.IncidentType) string {
	switch t {
	case models.IncidentRecovered:
		return "Site recovered"
	case models.IncidentCertWarning:
		return "Certificate expiring"
	default:
		return "Site down"
	}
}

// nextCertAlert describes when the following threshold will fire.
func nextCertAlert(daysLeft int) string {
	switch {
	case daysLeft > 30:
		return fmt.Sprintf("in %d days", daysLeft-30)
	case daysLeft > 7:
		return fmt.Sprintf("in %d days", daysLeft-7)
	case daysLeft > 1:
		return fmt.Sprintf("in %d days", daysLeft-1)
	default:
		return "final reminder"
	}
}

func formatTime(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc).Format("2006-01-02 15:04:05")
}

func formatValidTo(s string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

// field is one labelled line of a rendered notification.
type field struct {
	Label string
	Value string
}

// details lists the incident facts every channel renders.
func details(n Notification) []field {
	inc := n.Incident
	fields := []field{
		{"Site", n.Site.Name},
		{"Details", inc.Message},
	}
	switch inc.Type {
	case models.IncidentRecovered:
		if inc.DownDuration != nil && *inc.DownDuration > 0 {
			fields = append(fields, field{"Downtime", FormatDuration(*inc.DownDuration)})
		}
		if inc.ResponseTime != nil && *inc.ResponseTime > 0 {
			fields = append(fields, field{"Response", fmt.Sprintf("%dms", *inc.ResponseTime)})
		}
		if inc.MonthlyDownCount != nil {
			fields = append(fields, field{"Outages this month", fmt.Sprintf("%d", *inc.MonthlyDownCount)})
		}
	case models.IncidentDown:
		if inc.ResponseTime != nil && *inc.ResponseTime > 0 {
			fields = append(fields, field{"Response", fmt.Sprintf("%dms", *inc.ResponseTime)})
		}
	case models.IncidentCertWarning:
		if inc.CertIssuer != "" {
			fields = append(fields, field{"Issuer", inc.CertIssuer})
		}
		if inc.CertValidTo != "" {
			fields = append(fields, field{"Expires", formatValidTo(inc.CertValidTo, n.Location)})
		}
		if inc.DaysLeft != nil && *inc.DaysLeft > 0 {
			fields = append(fields, field{"Next reminder", nextCertAlert(*inc.DaysLeft)})
		}
	}
	return append(fields, field{"Time", formatTime(inc.CreatedAt, n.Location)})
}
