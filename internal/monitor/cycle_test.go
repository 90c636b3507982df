package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sitewatch/internal/logger"
	"sitewatch/internal/models"
	"sitewatch/internal/probe"
	"sitewatch/internal/storage"
	"sitewatch/internal/storage/memory"
)

// scriptedProber returns the status configured for each site id.
type scriptedProber struct {
	mu     sync.Mutex
	status map[string]models.Status
	calls  int
}

func (p *scriptedProber) set(id string, s models.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		p.status = map[string]models.Status{}
	}
	p.status[id] = s
}

func (p *scriptedProber) Probe(_ context.Context, site models.Site, now time.Time) models.ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	s, ok := p.status[site.ID]
	if !ok {
		s = models.StatusOnline
	}
	res := models.ProbeResult{Timestamp: now.UnixMilli(), Status: s, StatusCode: 200, ResponseTime: 120, Message: "OK"}
	if s == models.StatusOffline {
		res.StatusCode = 0
		res.Message = "connection refused"
	}
	return res
}

type recordingNotifier struct {
	mu        sync.Mutex
	incidents []models.Incident
}

func (n *recordingNotifier) Dispatch(inc models.Incident, _ models.Site, _ models.NotificationConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incidents = append(n.incidents, inc)
}

// countingStore wraps a storage.Store and can fail on demand.
type countingStore struct {
	*storage.Store
	saves   int
	loadErr error
	saveErr error
}

func (s *countingStore) LoadState(ctx context.Context) (*models.MonitorState, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.Store.LoadState(ctx)
}

func (s *countingStore) SaveState(ctx context.Context, st *models.MonitorState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	return s.Store.SaveState(ctx, st)
}

type fakeCerts map[string]models.CertInfo

func (f fakeCerts) Fetch(_ context.Context, hosts []string) map[string]models.CertInfo {
	out := map[string]models.CertInfo{}
	for _, h := range hosts {
		if c, ok := f[h]; ok {
			out[h] = c
		}
	}
	return out
}

type harness struct {
	store    *countingStore
	prober   *scriptedProber
	notifier *recordingNotifier
	engine   *Engine
}

func newHarness(t *testing.T, opts Options, sites ...models.Site) *harness {
	t.Helper()
	h := &harness{
		store:    &countingStore{Store: storage.New(memory.New())},
		prober:   &scriptedProber{},
		notifier: &recordingNotifier{},
	}
	if sites != nil {
		st := NewState(t0, time.UTC)
		st.Sites = sites
		st.Config.Notifications.Enabled = true
		if err := h.store.Store.SaveState(context.Background(), st); err != nil {
			t.Fatalf("seed state: %v", err)
		}
	}
	opts.Store = h.store
	opts.Prober = h.prober
	opts.Notifier = h.notifier
	opts.Logger = logger.Discard()
	h.engine = NewEngine(opts)
	return h
}

func (h *harness) run(t *testing.T, at time.Time, force bool) Report {
	t.Helper()
	r, err := h.engine.RunCycle(context.Background(), at, force)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return r
}

func (h *harness) state(t *testing.T) *models.MonitorState {
	t.Helper()
	st, err := h.store.Store.LoadState(context.Background())
	if err != nil || st == nil {
		t.Fatalf("load state: %v", err)
	}
	return st
}

func TestRunCycleBootstrap(t *testing.T) {
	h := newHarness(t, Options{})
	r := h.run(t, t0, false)
	if !r.Bootstrapped || !r.Written || h.store.saves != 1 {
		t.Fatalf("unexpected bootstrap report %+v saves=%d", r, h.store.saves)
	}
	if h.prober.calls != 0 {
		t.Error("bootstrap must not probe")
	}
	st := h.state(t)
	if st.Config.StatusChangeDebounceMinutes != DefaultDebounceMinutes || st.Config.Notifications.Enabled {
		t.Errorf("unexpected default config %+v", st.Config)
	}
}

func TestRunCycleUnknownConfirmsWithoutIncident(t *testing.T) {
	h := newHarness(t, Options{}, models.Site{ID: "s1", Name: "One", Status: models.StatusUnknown})
	h.prober.set("s1", models.StatusOffline)

	r := h.run(t, t0, false)
	if !r.Written || r.Reason != WriteStatusChange {
		t.Fatalf("expected status-change write, got %+v", r)
	}
	if len(r.Incidents) != 0 || len(h.notifier.incidents) != 0 {
		t.Fatalf("first confirmation must not create incidents: %+v", r.Incidents)
	}
	st := h.state(t)
	if s := st.Site("s1"); s.Status != models.StatusOffline || s.LastCheck != t0.UnixMilli() {
		t.Errorf("unexpected site %+v", s)
	}
	if len(st.History["s1"]) != 1 || len(st.IncidentIndex) != 0 {
		t.Errorf("history=%d index=%d", len(st.History["s1"]), len(st.IncidentIndex))
	}
	if st.Stats.Writes.StatusChange != 1 || st.Stats.Checks.Total != 1 {
		t.Errorf("unexpected stats %+v", st.Stats)
	}
}

func TestRunCycleDebouncedDown(t *testing.T) {
	h := newHarness(t, Options{}, models.Site{ID: "s1", Name: "One", Status: models.StatusOnline})
	h.prober.set("s1", models.StatusOffline)

	var down []models.Incident
	for m := 0; m <= 3; m++ {
		r := h.run(t, t0.Add(time.Duration(m)*time.Minute), false)
		down = append(down, r.Incidents...)
		st := h.state(t)
		if m < 3 {
			if st.Site("s1").Status != models.StatusOnline {
				t.Fatalf("minute %d: confirmed too early", m)
			}
			if len(st.History["s1"]) != 0 {
				t.Fatalf("minute %d: history written while pending", m)
			}
		}
	}

	st := h.state(t)
	if st.Site("s1").Status != models.StatusOffline {
		t.Fatal("expected offline after the debounce window")
	}
	if len(down) != 1 || down[0].Type != models.IncidentDown || down[0].PreviousStatus != models.StatusOnline {
		t.Fatalf("expected one down incident, got %+v", down)
	}
	if len(st.Incidents["s1"]) != 1 || len(st.IncidentIndex) != 1 {
		t.Errorf("incident lists: site=%d index=%d", len(st.Incidents["s1"]), len(st.IncidentIndex))
	}
	if len(st.History["s1"]) != 1 || st.History["s1"][0].Status != models.StatusOffline {
		t.Errorf("expected one confirmed history record, got %+v", st.History["s1"])
	}
	if len(h.notifier.incidents) != 1 {
		t.Errorf("notified %d times, want 1", len(h.notifier.incidents))
	}

	h.prober.set("s1", models.StatusOnline)
	r := h.run(t, t0.Add(4*time.Minute), false)
	if len(r.Incidents) != 0 {
		t.Fatalf("recovery must be debounced too, got %+v", r.Incidents)
	}
	r = h.run(t, t0.Add(7*time.Minute), false)
	if len(r.Incidents) != 1 || r.Incidents[0].Type != models.IncidentRecovered {
		t.Fatalf("expected recovered incident, got %+v", r.Incidents)
	}
	if d := r.Incidents[0].DownDuration; d == nil || *d != (4*time.Minute).Milliseconds() {
		t.Errorf("down duration = %v", d)
	}
}

func TestRunCyclePendingStateIsPersisted(t *testing.T) {
	h := newHarness(t, Options{}, models.Site{ID: "s1", Status: models.StatusOnline})
	h.run(t, t0, false)
	saves := h.store.saves

	h.prober.set("s1", models.StatusOffline)
	r := h.run(t, t0.Add(time.Minute), false)
	if !r.Written || r.Reason != WritePendingChange || h.store.saves != saves+1 {
		t.Fatalf("pending change should be saved, got %+v", r)
	}
	if s := h.state(t).Site("s1"); s.StatusPending != models.StatusOffline || s.StatusPendingStartTime != t0.Add(time.Minute).UnixMilli() {
		t.Errorf("pending not persisted: %+v", s)
	}

	r = h.run(t, t0.Add(2*time.Minute), false)
	if r.Written {
		t.Errorf("unchanged pending should not write, got %+v", r)
	}
}

func TestRunCycleLoadFailureSkipsSave(t *testing.T) {
	h := newHarness(t, Options{}, models.Site{ID: "s1"})
	h.store.loadErr = errors.New("backend down")
	r, err := h.engine.RunCycle(context.Background(), t0, true)
	if err != nil {
		t.Fatalf("load failure must not fail the cycle: %v", err)
	}
	if r.Written || h.store.saves != 0 {
		t.Errorf("must not persist a fresh state over stored data: %+v", r)
	}
}

func TestRunCycleSaveFailure(t *testing.T) {
	h := newHarness(t, Options{}, models.Site{ID: "s1"})
	h.store.saveErr = errors.New("quota exceeded")
	if _, err := h.engine.RunCycle(context.Background(), t0, true); err == nil {
		t.Fatal("expected save error")
	}
}

func TestRunCycleMergesHeartbeats(t *testing.T) {
	h := newHarness(t, Options{}, models.Site{ID: "p1", MonitorType: models.MonitorPush, PushToken: "tok", Status: models.StatusOnline})
	h.engine.heartbeats = h.store.Store
	hb := models.Heartbeat{SiteID: "p1", ReceivedAt: t0.Add(-time.Minute).UnixMilli(), Latency: 33}
	if err := h.store.Store.RecordHeartbeat(context.Background(), hb); err != nil {
		t.Fatal(err)
	}
	h.run(t, t0, true)
	s := h.state(t).Site("p1")
	if s.LastHeartbeat != hb.ReceivedAt || s.PushLatency != 33 {
		t.Errorf("heartbeat not merged: %+v", s)
	}
}

func TestRunCycleCertificates(t *testing.T) {
	certs := fakeCerts{"a.example": {Valid: true, DaysLeft: 5, Issuer: "CA", ValidTo: "2024-03-20T00:00:00Z"}}
	h := newHarness(t, Options{Certs: certs},
		models.Site{ID: "a", URL: "https://a.example/health", Status: models.StatusOnline},
		models.Site{ID: "b", URL: "https://b.example", Status: models.StatusOnline, SSLCert: &models.CertInfo{DaysLeft: 90}},
		models.Site{ID: "d", MonitorType: models.MonitorDNS, URL: "a.example", Status: models.StatusOnline},
	)

	r := h.run(t, t0, false)
	if len(r.Incidents) != 1 || r.Incidents[0].Type != models.IncidentCertWarning || r.Incidents[0].SiteID != "a" {
		t.Fatalf("expected one cert warning for a, got %+v", r.Incidents)
	}
	st := h.state(t)
	if c := st.Site("a").SSLCert; c == nil || c.DaysLeft != 5 {
		t.Errorf("cert not stored: %+v", c)
	}
	if b := st.Site("b"); b.SSLCert != nil || b.SSLCertLastCheck != t0.UnixMilli() {
		t.Errorf("missing cert should clear and stamp: %+v", b)
	}
	if d := st.Site("d"); d.SSLCertLastCheck != 0 {
		t.Errorf("dns sites are skipped: %+v", d)
	}
	if st.LastSSLCheck != t0.UnixMilli() {
		t.Errorf("last ssl check = %d", st.LastSSLCheck)
	}

	r = h.run(t, t0.Add(30*time.Minute), false)
	if len(r.Incidents) != 0 {
		t.Errorf("certificate checks are hourly, got %+v", r.Incidents)
	}
}

func TestRunCycleCooldownThrottlesNotifications(t *testing.T) {
	h := newHarness(t, Options{}, models.Site{ID: "s1", Status: models.StatusOnline})
	st := h.state(t)
	st.Config.StatusChangeDebounceMinutes = 1
	st.Config.Notifications.Cooldown = (time.Hour).Milliseconds()
	if err := h.store.Store.SaveState(context.Background(), st); err != nil {
		t.Fatal(err)
	}

	flip := func(s models.Status, m int) {
		h.prober.set("s1", s)
		h.run(t, t0.Add(time.Duration(m)*time.Minute), false)
		h.run(t, t0.Add(time.Duration(m+1)*time.Minute), false)
	}
	flip(models.StatusOffline, 0)
	flip(models.StatusOnline, 2)
	flip(models.StatusOffline, 4)

	var downs int
	for _, inc := range h.notifier.incidents {
		if inc.Type == models.IncidentDown {
			downs++
		}
	}
	if downs != 1 {
		t.Errorf("notified %d down incidents inside cooldown, want 1", downs)
	}
	if n := len(h.state(t).Incidents["s1"]); n != 3 {
		t.Errorf("throttling must not drop incidents, got %d", n)
	}
}

func TestRunCycleRemovesOrphans(t *testing.T) {
	h := newHarness(t, Options{}, models.Site{ID: "s1", Status: models.StatusOnline})
	st := h.state(t)
	st.History["gone"] = []models.HistoryRecord{{Timestamp: 1}}
	st.IncidentIndex = append(st.IncidentIndex, models.Incident{ID: "x", SiteID: "gone"})
	if err := h.store.Store.SaveState(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	h.run(t, t0, true)
	st = h.state(t)
	if _, ok := st.History["gone"]; ok || len(st.IncidentIndex) != 0 {
		t.Errorf("orphans left: history=%v index=%+v", st.History, st.IncidentIndex)
	}
}

func TestCheckCertificatesAlwaysSaves(t *testing.T) {
	certs := fakeCerts{"a.example": {Valid: true, DaysLeft: 60}}
	h := newHarness(t, Options{Certs: certs}, models.Site{ID: "a", URL: "https://a.example"})
	r, err := h.engine.CheckCertificates(context.Background(), t0)
	if err != nil || !r.Written || h.store.saves != 1 {
		t.Fatalf("got %+v err=%v saves=%d", r, err, h.store.saves)
	}
	if c := h.state(t).Site("a").SSLCert; c == nil || c.DaysLeft != 60 {
		t.Errorf("cert not stored: %+v", c)
	}
}

func TestSeedCreatesState(t *testing.T) {
	h := newHarness(t, Options{})
	res, err := h.engine.Seed(context.Background(), t0, []models.Site{{ID: "s1", MonitorType: models.MonitorHTTP, URL: "https://a.example"}},
		func(c *models.MonitorConfig) { c.CheckInterval = 5 })
	if err != nil || res.Added != 1 {
		t.Fatalf("got %+v err=%v", res, err)
	}
	st := h.state(t)
	if len(st.Sites) != 1 || st.Config.CheckInterval != 5 || st.Sites[0].Status != models.StatusUnknown {
		t.Errorf("unexpected seeded state %+v", st)
	}
}

func TestSeedDeletesStaleHeartbeats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{},
		models.Site{ID: "agent", MonitorType: models.MonitorPush, PushToken: "tok-a"},
		models.Site{ID: "moved", MonitorType: models.MonitorPush, PushToken: "tok-m"},
		models.Site{ID: "kept", MonitorType: models.MonitorPush, PushToken: "tok-k"},
	)
	engine := NewEngine(Options{Store: h.store, Prober: h.prober, Heartbeats: h.store, Logger: logger.Discard()})
	for _, id := range []string{"agent", "moved", "kept"} {
		if err := h.store.RecordHeartbeat(ctx, models.Heartbeat{SiteID: id, ReceivedAt: t0.UnixMilli()}); err != nil {
			t.Fatal(err)
		}
	}

	defs := []models.Site{
		{ID: "moved", MonitorType: models.MonitorHTTP, URL: "https://moved.example"},
		{ID: "kept", MonitorType: models.MonitorPush, PushToken: "tok-k"},
	}
	if _, err := engine.Seed(ctx, t0, defs, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	beats, err := h.store.LatestHeartbeats(ctx, []string{"agent", "moved", "kept"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := beats["kept"]; !ok || len(beats) != 1 {
		t.Errorf("heartbeats after seeding = %v, want only kept", beats)
	}
}

func TestProbePoolRunsConcurrently(t *testing.T) {
	slow := proberFunc(func(ctx context.Context, site models.Site, now time.Time) models.ProbeResult {
		time.Sleep(200 * time.Millisecond)
		return models.ProbeResult{Status: models.StatusOnline}
	})
	pool := NewProbePool(slow, 0, nil, logger.Discard())
	sites := make([]models.Site, 5)
	start := time.Now()
	results := pool.Run(context.Background(), sites, t0)
	if elapsed := time.Since(start); elapsed > 800*time.Millisecond {
		t.Errorf("probes ran serially: %s", elapsed)
	}
	for _, r := range results {
		if r.Status != models.StatusOnline || r.Timestamp != t0.UnixMilli() {
			t.Errorf("unexpected result %+v", r)
		}
	}
}

func TestProbePoolRecoversPanics(t *testing.T) {
	boom := proberFunc(func(ctx context.Context, site models.Site, now time.Time) models.ProbeResult {
		if site.ID == "bad" {
			panic("boom")
		}
		return models.ProbeResult{Status: models.StatusOnline}
	})
	results := NewProbePool(boom, 1, nil, logger.Discard()).Run(context.Background(), []models.Site{{ID: "bad"}, {ID: "good"}}, t0)
	if results[0].Status != models.StatusOffline || results[1].Status != models.StatusOnline {
		t.Errorf("got %+v", results)
	}
}

type proberFunc func(ctx context.Context, site models.Site, now time.Time) models.ProbeResult

func (f proberFunc) Probe(ctx context.Context, site models.Site, now time.Time) models.ProbeResult {
	return f(ctx, site, now)
}

func TestRunCycleCanceledDiscardsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Recovered for real, but an offline candidate is old enough to confirm.
	site := models.Site{
		ID: "web", Name: "Web", MonitorType: models.MonitorHTTP, URL: srv.URL,
		Status: models.StatusOnline, StatusPending: models.StatusOffline, StatusPendingStartTime: t0.UnixMilli(),
	}
	h := newHarness(t, Options{}, site)
	engine := NewEngine(Options{
		Store:    h.store,
		Prober:   probe.NewRegistry(time.Second),
		Notifier: h.notifier,
		Logger:   logger.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.RunCycle(ctx, t0.Add(3*time.Minute), true)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := len(h.notifier.incidents); n != 0 {
		t.Errorf("dispatched %d incidents from a canceled cycle", n)
	}
	if h.store.saves != 0 {
		t.Errorf("canceled cycle saved state %d times", h.store.saves)
	}
	st := h.state(t)
	if got := st.Site("web"); got.Status != models.StatusOnline || len(st.Incidents["web"]) != 0 {
		t.Errorf("stored state changed: %+v", got)
	}
}

type canceledCerts struct{ cancel context.CancelFunc }

func (c canceledCerts) Fetch(context.Context, []string) map[string]models.CertInfo {
	c.cancel()
	return nil
}

func TestCheckCertificatesCanceledKeepsCerts(t *testing.T) {
	cert := &models.CertInfo{Valid: true, DaysLeft: 60}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, Options{Certs: canceledCerts{cancel}},
		models.Site{ID: "s1", MonitorType: models.MonitorHTTP, URL: "https://a.example", SSLCert: cert})

	if _, err := h.engine.CheckCertificates(ctx, t0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.store.saves != 0 {
		t.Error("interrupted certificate pass saved state")
	}
	if h.state(t).Site("s1").SSLCert == nil {
		t.Error("stored certificate was dropped")
	}
}
