package monitor

import (
	"slices"
	"testing"

	"github.com/google/uuid"

	"sitewatch/internal/models"
)

func TestSeedSites(t *testing.T) {
	st := newTestState(
		models.Site{ID: "keep", Name: "Old", MonitorType: models.MonitorHTTP, URL: "https://a.example", Status: models.StatusOnline, LastCheck: 99},
		models.Site{ID: "retarget", MonitorType: models.MonitorHTTP, URL: "https://b.example", Status: models.StatusOffline, StatusPending: models.StatusOnline, StatusPendingStartTime: 5,
			SSLCert: &models.CertInfo{DaysLeft: 5}, SSLCertLastCheck: 7, LastHeartbeat: 9, PushLatency: 12},
		models.Site{ID: "drop", MonitorType: models.MonitorHTTP, URL: "https://c.example"},
	)
	st.CertificateAlerts["keep"] = models.CertificateAlertState{30: true}
	st.CertificateAlerts["retarget"] = models.CertificateAlertState{30: true, 7: true}
	defs := []models.Site{
		{ID: "keep", Name: "New", MonitorType: models.MonitorHTTP, URL: "https://a.example"},
		{ID: "retarget", MonitorType: models.MonitorHTTP, URL: "https://b2.example"},
		{ID: "push", MonitorType: models.MonitorPush},
	}

	res := SeedSites(st, defs, t0)
	if res.Added != 1 || res.Updated != 2 || res.Removed != 1 {
		t.Fatalf("got %+v", res)
	}
	if !slices.Equal(res.Stale, []string{"retarget", "drop"}) {
		t.Errorf("stale = %v", res.Stale)
	}
	if len(st.Sites) != 3 || st.Site("drop") != nil {
		t.Fatalf("unexpected sites %+v", st.Sites)
	}

	keep := st.Site("keep")
	if keep.Name != "New" || keep.Status != models.StatusOnline || keep.LastCheck != 99 {
		t.Errorf("rename should keep runtime state: %+v", keep)
	}
	re := st.Site("retarget")
	if re.Status != models.StatusUnknown || re.HasPending() {
		t.Errorf("retargeted site should reset: %+v", re)
	}
	if re.SSLCert != nil || re.SSLCertLastCheck != 0 || re.LastHeartbeat != 0 || re.PushLatency != 0 {
		t.Errorf("retargeted site kept data of the old target: %+v", re)
	}
	if _, ok := st.CertificateAlerts["retarget"]; ok {
		t.Error("retargeted site kept its certificate alert flags")
	}
	if !st.CertificateAlerts["keep"][30] {
		t.Error("unchanged site lost its certificate alert flags")
	}
	push := st.Site("push")
	if push.Status != models.StatusUnknown || push.CreatedAt != t0.UnixMilli() {
		t.Errorf("unexpected new site %+v", push)
	}
	if _, err := uuid.Parse(push.PushToken); err != nil {
		t.Errorf("push token %q is not a uuid: %v", push.PushToken, err)
	}
	if FindPushSite(st, push.PushToken) != push {
		t.Error("push site lookup by token failed")
	}

	token := push.PushToken
	if again := SeedSites(st, defs, t0); again.Changed() || len(again.Stale) != 0 {
		t.Errorf("reseeding the same definitions changed state: %+v", again)
	}
	if st.Site("push").PushToken != token {
		t.Error("generated push token must survive reseeding")
	}
}

func TestFindPushSiteIgnoresOtherTypes(t *testing.T) {
	st := newTestState(models.Site{ID: "h", MonitorType: models.MonitorHTTP, PushToken: "tok"})
	if FindPushSite(st, "tok") != nil {
		t.Error("only push sites own tokens")
	}
	if FindPushSite(st, "") != nil {
		t.Error("empty token must not match")
	}
}
