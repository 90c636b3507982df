package monitor

import (
	"fmt"
	"time"

	"sitewatch/internal/models"
)

// CertThresholds are the days-left marks that raise a cert_warning.
var CertThresholds = []int{30, 7, 1}

// HandleCertAlert fires a cert_warning once per threshold as the expiry
// approaches. A threshold re-arms once daysLeft climbs above it again, so a
// renewal re-arms only the thresholds it clears. Thresholds crossed in the
// same call share one incident id, so only the last one survives and is
// returned.
func HandleCertAlert(state *models.MonitorState, site *models.Site, next *models.CertInfo, now time.Time) *models.Incident {
	if next == nil {
		return nil
	}
	if state.CertificateAlerts == nil {
		state.CertificateAlerts = map[string]models.CertificateAlertState{}
	}
	flags := state.CertificateAlerts[site.ID]
	if flags == nil {
		flags = models.CertificateAlertState{}
		state.CertificateAlerts[site.ID] = flags
	}

	var last *models.Incident
	for _, threshold := range CertThresholds {
		if next.DaysLeft > threshold {
			delete(flags, threshold)
			continue
		}
		if flags[threshold] {
			continue
		}
		flags[threshold] = true

		days := next.DaysLeft
		inc := RecordIncident(state, site, IncidentPayload{
			Type:        models.IncidentCertWarning,
			Title:       "Certificate expiring",
			Message:     certMessage(days),
			DaysLeft:    &days,
			CertIssuer:  next.Issuer,
			CertValidTo: next.ValidTo,
		}, now)
		last = &inc
	}
	return last
}

func certMessage(daysLeft int) string {
	if daysLeft < 0 {
		return fmt.Sprintf("certificate expired %d days ago", -daysLeft)
	}
	return fmt.Sprintf("certificate expires in %d days", daysLeft)
}
