package monitor

import (
	"testing"
	"time"

	"sitewatch/internal/models"
)

var t0 = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func TestDebounceRules(t *testing.T) {
	tests := []struct {
		name        string
		site        models.Site
		detected    models.Status
		at          time.Time
		wantStatus  models.Status
		wantPending models.Status
		wantChanged bool
		wantPendChg bool
	}{
		{
			name:        "unknown confirms immediately",
			site:        models.Site{Status: models.StatusUnknown},
			detected:    models.StatusOffline,
			at:          t0,
			wantStatus:  models.StatusOffline,
			wantChanged: true,
		},
		{
			name:       "same status without pending",
			site:       models.Site{Status: models.StatusOnline},
			detected:   models.StatusOnline,
			at:         t0,
			wantStatus: models.StatusOnline,
		},
		{
			name:        "revert cancels pending",
			site:        models.Site{Status: models.StatusOnline, StatusPending: models.StatusOffline, StatusPendingStartTime: t0.UnixMilli()},
			detected:    models.StatusOnline,
			at:          t0.Add(time.Minute),
			wantStatus:  models.StatusOnline,
			wantPendChg: true,
		},
		{
			name:        "new candidate starts pending",
			site:        models.Site{Status: models.StatusOnline},
			detected:    models.StatusOffline,
			at:          t0,
			wantStatus:  models.StatusOnline,
			wantPending: models.StatusOffline,
			wantPendChg: true,
		},
		{
			name:        "candidate still waiting",
			site:        models.Site{Status: models.StatusOnline, StatusPending: models.StatusOffline, StatusPendingStartTime: t0.UnixMilli()},
			detected:    models.StatusOffline,
			at:          t0.Add(2*time.Minute + 59*time.Second),
			wantStatus:  models.StatusOnline,
			wantPending: models.StatusOffline,
		},
		{
			name:        "candidate confirmed at window",
			site:        models.Site{Status: models.StatusOnline, StatusPending: models.StatusOffline, StatusPendingStartTime: t0.UnixMilli()},
			detected:    models.StatusOffline,
			at:          t0.Add(3 * time.Minute),
			wantStatus:  models.StatusOffline,
			wantChanged: true,
			wantPendChg: true,
		},
		{
			name:        "different candidate restarts timer",
			site:        models.Site{Status: models.StatusOnline, StatusPending: models.StatusOffline, StatusPendingStartTime: t0.UnixMilli()},
			detected:    models.StatusSlow,
			at:          t0.Add(5 * time.Minute),
			wantStatus:  models.StatusOnline,
			wantPending: models.StatusSlow,
			wantPendChg: true,
		},
		{
			name:        "future start time restarts window",
			site:        models.Site{Status: models.StatusOnline, StatusPending: models.StatusOffline, StatusPendingStartTime: t0.Add(time.Hour).UnixMilli()},
			detected:    models.StatusOffline,
			at:          t0,
			wantStatus:  models.StatusOnline,
			wantPending: models.StatusOffline,
			wantPendChg: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := tt.site
			got := Debounce(&site, tt.detected, tt.at, 3)
			if site.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", site.Status, tt.wantStatus)
			}
			if site.StatusPending != tt.wantPending {
				t.Errorf("pending = %q, want %q", site.StatusPending, tt.wantPending)
			}
			if got.StatusChanged != tt.wantChanged || got.PendingChanged != tt.wantPendChg {
				t.Errorf("transition = %+v, want changed=%v pendingChanged=%v", got, tt.wantChanged, tt.wantPendChg)
			}
			if site.StatusRaw != tt.detected {
				t.Errorf("raw status = %s, want %s", site.StatusRaw, tt.detected)
			}
			if site.StatusPending == "" && site.StatusPendingStartTime != 0 {
				t.Errorf("pending start time left behind: %d", site.StatusPendingStartTime)
			}
		})
	}
}

func TestDebounceConfirmsOnceAtWindow(t *testing.T) {
	site := models.Site{Status: models.StatusOnline}
	confirmedAt := -1
	changes := 0
	for i := 0; i < 8; i++ {
		tr := Debounce(&site, models.StatusOffline, t0.Add(time.Duration(i)*time.Minute), 3)
		if tr.StatusChanged {
			changes++
			confirmedAt = i
		}
	}
	if changes != 1 || confirmedAt != 3 {
		t.Fatalf("expected one confirmation at minute 3, got %d at %d", changes, confirmedAt)
	}
	if site.Status != models.StatusOffline || site.HasPending() {
		t.Errorf("unexpected final site %+v", site)
	}
}

func TestDebounceFlapNeverConfirms(t *testing.T) {
	site := models.Site{Status: models.StatusOnline}
	seq := []models.Status{
		models.StatusOffline, models.StatusOffline, models.StatusOnline,
		models.StatusOffline, models.StatusOffline, models.StatusOnline,
	}
	for i, s := range seq {
		if tr := Debounce(&site, s, t0.Add(time.Duration(i)*time.Minute), 3); tr.StatusChanged {
			t.Fatalf("confirmed at step %d despite reverting", i)
		}
	}
	if site.Status != models.StatusOnline || site.HasPending() {
		t.Errorf("unexpected final site %+v", site)
	}
}

func TestDebounceDefaultsWindow(t *testing.T) {
	site := models.Site{Status: models.StatusOnline, StatusPending: models.StatusOffline, StatusPendingStartTime: t0.UnixMilli()}
	if tr := Debounce(&site, models.StatusOffline, t0.Add(2*time.Minute), 0); tr.StatusChanged {
		t.Fatal("non-positive window should fall back to the default")
	}
	if tr := Debounce(&site, models.StatusOffline, t0.Add(3*time.Minute), 0); !tr.StatusChanged {
		t.Fatal("expected confirmation at the default window")
	}
}
