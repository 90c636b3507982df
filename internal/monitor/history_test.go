package monitor

import (
	"testing"
	"time"

	"sitewatch/internal/models"
)

func TestUpdateHistoryRecordsConfirmedStatus(t *testing.T) {
	site := models.Site{ID: "s1", Status: models.StatusOnline, StatusRaw: models.StatusOffline}
	st := newTestState(site)
	UpdateHistory(st, &site, models.ProbeResult{Timestamp: 1, Status: models.StatusOffline, StatusCode: 500, ResponseTime: 9, Message: "x"})

	got := st.History["s1"]
	if len(got) != 1 {
		t.Fatalf("got %d records", len(got))
	}
	want := models.HistoryRecord{Timestamp: 1, Status: models.StatusOnline, StatusCode: 500, ResponseTime: 9, Message: "x"}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestCleanupOldDataBoundary(t *testing.T) {
	site := models.Site{ID: "s1"}
	st := newTestState(site)
	st.Config.RetentionHours = 24
	retention := (24 * time.Hour).Milliseconds()
	now := t0.UnixMilli()

	st.History["s1"] = []models.HistoryRecord{
		{Timestamp: now - retention - 1},
		{Timestamp: now - retention},
		{Timestamp: now - retention + 1},
	}
	st.Incidents["s1"] = []models.Incident{
		{ID: "new", CreatedAt: now - retention + 1},
		{ID: "old", CreatedAt: now - retention - 1},
	}
	CleanupOldData(st, "s1", t0)

	if n := len(st.History["s1"]); n != 2 {
		t.Fatalf("kept %d records, want 2", n)
	}
	if st.History["s1"][0].Timestamp != now-retention {
		t.Errorf("record at the boundary should be kept")
	}
	if n := len(st.Incidents["s1"]); n != 1 || st.Incidents["s1"][0].ID != "new" {
		t.Errorf("unexpected incidents %+v", st.Incidents["s1"])
	}
}

func TestCleanupOrphanedData(t *testing.T) {
	st := newTestState(models.Site{ID: "keep"})
	st.History["keep"] = []models.HistoryRecord{{Timestamp: 1}}
	st.History["gone"] = []models.HistoryRecord{{Timestamp: 1}}
	st.Incidents["gone"] = []models.Incident{{ID: "g1", SiteID: "gone"}}
	st.IncidentIndex = []models.Incident{{ID: "k1", SiteID: "keep"}, {ID: "g1", SiteID: "gone"}, {ID: "anon"}}
	st.CertificateAlerts["gone"] = models.CertificateAlertState{30: true}
	st.LastNotifications["gone:down"] = 1
	st.LastNotifications["keep:down"] = 1

	if n := CleanupOrphanedData(st); n != 6 {
		t.Errorf("cleaned %d entries, want 6", n)
	}
	if _, ok := st.History["gone"]; ok {
		t.Error("orphan history left behind")
	}
	if _, ok := st.Incidents["gone"]; ok {
		t.Error("orphan incidents left behind")
	}
	if _, ok := st.CertificateAlerts["gone"]; ok {
		t.Error("orphan cert alerts left behind")
	}
	if _, ok := st.LastNotifications["gone:down"]; ok {
		t.Error("orphan cooldown left behind")
	}
	if _, ok := st.LastNotifications["keep:down"]; !ok {
		t.Error("valid cooldown removed")
	}
	if len(st.IncidentIndex) != 1 || st.IncidentIndex[0].ID != "k1" {
		t.Errorf("unexpected index %+v", st.IncidentIndex)
	}
}

func TestCleanupIncidentIndexKeepsListsInSync(t *testing.T) {
	site := models.Site{ID: "s1"}
	st := newTestState(site)
	st.Config.RetentionHours = 1
	RecordIncident(st, &site, IncidentPayload{Type: models.IncidentDown}, t0.Add(-2*time.Hour))
	RecordIncident(st, &site, IncidentPayload{Type: models.IncidentRecovered}, t0.Add(-30*time.Minute))

	CleanupIncidentIndex(st, t0)

	if len(st.IncidentIndex) != 1 || st.IncidentIndex[0].Type != models.IncidentRecovered {
		t.Errorf("unexpected index %+v", st.IncidentIndex)
	}
	if len(st.Incidents["s1"]) != 1 || st.Incidents["s1"][0].Type != models.IncidentRecovered {
		t.Errorf("per-site list out of sync: %+v", st.Incidents["s1"])
	}
}

func TestHistorySince(t *testing.T) {
	st := newTestState(models.Site{ID: "s1"})
	st.History["s1"] = []models.HistoryRecord{
		{Timestamp: t0.Add(-3 * time.Hour).UnixMilli()},
		{Timestamp: t0.Add(-time.Hour).UnixMilli()},
		{Timestamp: t0.UnixMilli()},
	}
	if got := HistorySince(st, "s1", t0.Add(-time.Hour)); len(got) != 2 {
		t.Errorf("got %d records, want 2", len(got))
	}
	if got := HistorySince(st, "missing", t0); got != nil {
		t.Errorf("expected nil for unknown site, got %+v", got)
	}
}
