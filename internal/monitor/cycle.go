package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sitewatch/internal/logger"
	"sitewatch/internal/metrics"
	"sitewatch/internal/models"
	"sitewatch/internal/urlutil"
)

const (
	DefaultCleanupInterval   = time.Hour
	DefaultCertCheckInterval = time.Hour
)

// StateStore loads and saves the monitor state. LoadState returns a nil
// state and nil error when nothing is stored yet.
type StateStore interface {
	LoadState(ctx context.Context) (*models.MonitorState, error)
	SaveState(ctx context.Context, state *models.MonitorState) error
}

// HeartbeatSource returns the latest heartbeat recorded for each push site.
type HeartbeatSource interface {
	LatestHeartbeats(ctx context.Context, siteIDs []string) (map[string]models.Heartbeat, error)
}

// HeartbeatPruner drops the stored heartbeat of a site.
type HeartbeatPruner interface {
	DeleteHeartbeat(ctx context.Context, siteID string) error
}

// Notifier delivers an incident to the configured channels. Dispatch must
// not block on delivery.
type Notifier interface {
	Dispatch(inc models.Incident, site models.Site, cfg models.NotificationConfig)
}

// CertFetcher returns certificate details keyed by hostname. Hosts that
// could not be checked are absent from the result.
type CertFetcher interface {
	Fetch(ctx context.Context, hosts []string) map[string]models.CertInfo
}

// Observer receives cycle events for live consumers. Calls happen on the
// cycle goroutine and must not block.
type Observer interface {
	IncidentRecorded(inc models.Incident)
	CycleCompleted(r Report)
}

// StatusChange is one confirmed status transition in a cycle.
type StatusChange struct {
	SiteID string        `json:"siteId"`
	Name   string        `json:"name"`
	From   models.Status `json:"from"`
	To     models.Status `json:"to"`
}

// Report summarizes one cycle.
type Report struct {
	StartedAt    time.Time         `json:"startedAt"`
	Duration     time.Duration     `json:"duration"`
	Forced       bool              `json:"forced"`
	Bootstrapped bool              `json:"bootstrapped"`
	Checked      int               `json:"checked"`
	Changes      []StatusChange    `json:"changes,omitempty"`
	Incidents    []models.Incident `json:"incidents,omitempty"`
	Pending      int               `json:"pending"`
	Written      bool              `json:"written"`
	Reason       WriteReason       `json:"reason,omitempty"`
	NextDueAt    int64             `json:"nextDueAt"`
	Sites        models.SiteStats  `json:"sites"`
}

// Options configures an Engine. Store and Prober are required.
type Options struct {
	Store          StateStore
	Prober         Prober
	Heartbeats     HeartbeatSource
	Notifier       Notifier
	Certs          CertFetcher
	Observer       Observer
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Location       *time.Location
	MaxConcurrency int
	// CertCheckInterval and CleanupInterval default to one hour.
	CertCheckInterval time.Duration
	CleanupInterval   time.Duration
}

// Engine runs monitoring cycles. It holds no monitor state between cycles;
// every cycle loads the state, mutates it, and decides whether to save it.
// Overlapping cycles are not prevented here; the Scheduler serializes them.
type Engine struct {
	store         StateStore
	heartbeats    HeartbeatSource
	pool          *ProbePool
	notifier      Notifier
	certs         CertFetcher
	observer      Observer
	metrics       *metrics.Metrics
	log           *slog.Logger
	loc           *time.Location
	certInterval  time.Duration
	cleanInterval time.Duration
}

// NewEngine creates an Engine from opts.
func NewEngine(opts Options) *Engine {
	log := logger.OrDefault(opts.Logger).With("component", "monitor")
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{
		store:         opts.Store,
		heartbeats:    opts.Heartbeats,
		pool:          NewProbePool(opts.Prober, opts.MaxConcurrency, opts.Metrics, log),
		notifier:      opts.Notifier,
		certs:         opts.Certs,
		observer:      opts.Observer,
		metrics:       opts.Metrics,
		log:           log,
		loc:           loc,
		certInterval:  opts.CertCheckInterval,
		cleanInterval: opts.CleanupInterval,
	}
	if e.certInterval <= 0 {
		e.certInterval = DefaultCertCheckInterval
	}
	if e.cleanInterval <= 0 {
		e.cleanInterval = DefaultCleanupInterval
	}
	return e
}

// Location is the timezone used for daily stats and monthly counts.
func (e *Engine) Location() *time.Location { return e.loc }

// RunCycle runs one monitoring pass at now. Probe and notification failures
// never fail the cycle; only a failed save is returned.
func (e *Engine) RunCycle(ctx context.Context, now time.Time, force bool) (Report, error) {
	start := time.Now()
	report := Report{StartedAt: now, Forced: force}
	e.log.Info("cycle started", "forced", force)

	state, err := e.store.LoadState(ctx)
	persist := true
	switch {
	case err != nil:
		e.log.Error("load state failed, running on fresh state without saving", "error", err)
		state = NewState(now, e.loc)
		persist = false
	case state == nil:
		e.log.Info("no stored state, initializing")
		state = NewState(now, e.loc)
		if err := e.store.SaveState(ctx, state); err != nil {
			e.metrics.ObserveCycle("error", time.Since(start))
			return report, fmt.Errorf("saving initial state: %w", err)
		}
		report.Bootstrapped = true
		report.Written = true
		report.Duration = time.Since(start)
		e.metrics.ObserveCycle("bootstrap", report.Duration)
		return report, nil
	}

	if Normalize(state) {
		e.log.Info("config migrated", "debounceMinutes", state.Config.StatusChangeDebounceMinutes)
	}
	cfg := state.Config
	e.log.Debug("effective config",
		"checkInterval", cfg.CheckInterval,
		"debounceMinutes", cfg.StatusChangeDebounceMinutes,
		"retentionHours", cfg.RetentionHours)

	if ResetDailyStats(state, now, e.loc) {
		e.log.Info("daily stats reset", "date", state.Stats.Writes.LastResetDate)
	}

	e.mergeHeartbeats(ctx, state)

	results := e.pool.Run(ctx, state.Sites, now)
	// Probes cut short by cancellation read as offline; discard the pass.
	if err := ctx.Err(); err != nil {
		e.metrics.ObserveCycle("canceled", time.Since(start))
		e.log.Warn("cycle interrupted, results discarded", "error", err)
		return report, fmt.Errorf("cycle interrupted: %w", err)
	}
	report.Checked = len(results)

	statusChanged, pendingChanged := false, false
	for i := range state.Sites {
		site := &state.Sites[i]
		res := results[i]

		t := Debounce(site, res.Status, now, cfg.StatusChangeDebounceMinutes)
		pendingChanged = pendingChanged || t.PendingChanged
		if t.StatusChanged {
			statusChanged = true
			report.Changes = append(report.Changes, StatusChange{
				SiteID: site.ID, Name: site.Name, From: t.Previous, To: site.Status,
			})
			e.log.Info("status confirmed", "site", site.ID, "from", t.Previous, "to", site.Status)
			if inc := transitionIncident(state, site, t.Previous, res, now, e.loc); inc != nil {
				e.incident(state, site, *inc, now, &report)
			}
		} else if t.PendingChanged && site.HasPending() {
			e.log.Debug("status pending", "site", site.ID, "confirmed", site.Status, "candidate", site.StatusPending)
		}

		site.ResponseTime = res.ResponseTime
		site.LastCheck = now.UnixMilli()

		if site.HasPending() {
			report.Pending++
			continue
		}
		UpdateHistory(state, site, res)
	}

	if now.UnixMilli()-state.LastCleanup >= e.cleanInterval.Milliseconds() {
		for _, s := range state.Sites {
			CleanupOldData(state, s.ID, now)
		}
		state.LastCleanup = now.UnixMilli()
		e.log.Debug("retention cleanup done")
	}

	if force || now.UnixMilli()-state.LastSSLCheck >= e.certInterval.Milliseconds() {
		if err := e.checkCertificates(ctx, state, now, &report); err != nil {
			e.metrics.ObserveCycle("canceled", time.Since(start))
			return report, err
		}
	}

	if n := CleanupOrphanedData(state); n > 0 {
		e.log.Info("orphaned data removed", "entries", n)
	}
	CleanupIncidentIndex(state, now)

	state.Stats.Checks.Total++
	state.Stats.Checks.Today++
	report.Sites = CountSites(state)

	// Incidents carry alert flags and cooldown marks that must not be lost.
	write, reason := PlanWrite(state, now, force, statusChanged || len(report.Incidents) > 0, pendingChanged)
	if write && persist {
		CommitWrite(state, now, reason)
		if err := e.store.SaveState(ctx, state); err != nil {
			e.metrics.ObserveCycle("error", time.Since(start))
			return report, fmt.Errorf("saving state: %w", err)
		}
		report.Written = true
		report.Reason = reason
		e.metrics.IncWrite(string(reason))
		e.log.Info("state written", "reason", reason, "changes", len(report.Changes), "pending", report.Pending)
	} else {
		e.log.Debug("write skipped",
			"nextWriteIn", untilNextWrite(state, now).Round(time.Second).String(),
			"checkInterval", cfg.CheckInterval)
	}
	report.NextDueAt = state.MonitorNextDueAt
	report.Duration = time.Since(start)

	e.metrics.SetSites(map[string]int{
		string(models.StatusOnline):  report.Sites.Online,
		string(models.StatusOffline): report.Sites.Offline,
	})
	e.metrics.ObserveCycle("ok", report.Duration)
	if e.observer != nil {
		e.observer.CycleCompleted(report)
	}
	e.log.Info("cycle finished", "sites", report.Checked, "duration", report.Duration.String())
	return report, nil
}

// CheckCertificates runs a certificate pass outside the regular cycle and
// always saves the result.
func (e *Engine) CheckCertificates(ctx context.Context, now time.Time) (Report, error) {
	report := Report{StartedAt: now, Forced: true}
	state, err := e.store.LoadState(ctx)
	if err != nil {
		return report, fmt.Errorf("loading state: %w", err)
	}
	if state == nil || len(state.Sites) == 0 {
		return report, nil
	}
	Normalize(state)
	if err := e.checkCertificates(ctx, state, now, &report); err != nil {
		return report, err
	}
	state.LastUpdate = now.UnixMilli()
	if err := e.store.SaveState(ctx, state); err != nil {
		return report, fmt.Errorf("saving state: %w", err)
	}
	report.Written = true
	report.Reason = WriteForced
	return report, nil
}

// Seed merges site definitions and monitor settings into the stored state,
// creating it when absent, and saves the result. Heartbeats of removed or
// retargeted sites are deleted when the heartbeat source supports it.
func (e *Engine) Seed(ctx context.Context, now time.Time, defs []models.Site, apply func(*models.MonitorConfig)) (SeedResult, error) {
	state, err := e.store.LoadState(ctx)
	if err != nil {
		return SeedResult{}, fmt.Errorf("loading state: %w", err)
	}
	if state == nil {
		state = NewState(now, e.loc)
	}
	Normalize(state)
	if apply != nil {
		apply(&state.Config)
		Normalize(state)
	}
	res := SeedSites(state, defs, now)
	CountSites(state)
	if err := e.store.SaveState(ctx, state); err != nil {
		return res, fmt.Errorf("saving state: %w", err)
	}
	e.pruneHeartbeats(ctx, res.Stale)
	e.log.Info("sites seeded", "added", res.Added, "updated", res.Updated, "removed", res.Removed)
	return res, nil
}

func (e *Engine) pruneHeartbeats(ctx context.Context, siteIDs []string) {
	p, ok := e.heartbeats.(HeartbeatPruner)
	if !ok {
		return
	}
	for _, id := range siteIDs {
		if err := p.DeleteHeartbeat(ctx, id); err != nil {
			e.log.Warn("deleting heartbeat failed", "site", id, "error", err)
		}
	}
}

func (e *Engine) mergeHeartbeats(ctx context.Context, state *models.MonitorState) {
	if e.heartbeats == nil {
		return
	}
	var ids []string
	for _, s := range state.Sites {
		if s.MonitorType == models.MonitorPush {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	beats, err := e.heartbeats.LatestHeartbeats(ctx, ids)
	if err != nil {
		e.log.Warn("loading heartbeats failed", "error", err)
		return
	}
	for i := range state.Sites {
		s := &state.Sites[i]
		hb, ok := beats[s.ID]
		if !ok || hb.ReceivedAt <= s.LastHeartbeat {
			continue
		}
		s.LastHeartbeat = hb.ReceivedAt
		s.PushLatency = hb.Latency
	}
}

func (e *Engine) checkCertificates(ctx context.Context, state *models.MonitorState, now time.Time, report *Report) error {
	if e.certs == nil {
		return nil
	}
	hostOf := make(map[int]string)
	seen := make(map[string]struct{})
	var hosts []string
	for i, s := range state.Sites {
		if s.MonitorType == models.MonitorDNS || s.URL == "" || strings.HasPrefix(strings.ToLower(s.URL), "http://") {
			continue
		}
		host, err := urlutil.TLSAddress(s.URL)
		if err != nil {
			e.log.Warn("certificate check skipped, bad url", "site", s.ID, "url", s.URL)
			continue
		}
		hostOf[i] = host
		if _, ok := seen[host]; !ok {
			seen[host] = struct{}{}
			hosts = append(hosts, host)
		}
	}
	if len(hosts) == 0 {
		state.LastSSLCheck = now.UnixMilli()
		return nil
	}

	certs := e.certs.Fetch(ctx, hosts)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("certificate check interrupted: %w", err)
	}
	for i := range state.Sites {
		host, ok := hostOf[i]
		if !ok {
			continue
		}
		site := &state.Sites[i]
		site.SSLCertLastCheck = now.UnixMilli()
		cert, ok := certs[host]
		if !ok {
			site.SSLCert = nil
			continue
		}
		next := cert
		site.SSLCert = &next
		if inc := HandleCertAlert(state, site, &next, now); inc != nil {
			e.incident(state, site, *inc, now, report)
		}
	}
	state.LastSSLCheck = now.UnixMilli()
	e.log.Info("certificate check done", "hosts", len(hosts), "found", len(certs))
	return nil
}

// incident reports a recorded incident and dispatches its notification
// unless the event is disabled or still in cooldown.
func (e *Engine) incident(state *models.MonitorState, site *models.Site, inc models.Incident, now time.Time, report *Report) {
	report.Incidents = append(report.Incidents, inc)
	e.metrics.IncIncident(string(inc.Type))
	e.log.Info("incident recorded", "site", site.ID, "type", inc.Type, "id", inc.ID)
	if e.observer != nil {
		e.observer.IncidentRecorded(inc)
	}

	cfg := state.Config.Notifications
	if e.notifier == nil || !cfg.AllowsEvent(inc.Type) {
		return
	}
	if ShouldThrottleAndMark(state, inc, cfg.Cooldown, now) {
		e.log.Info("notification throttled", "site", site.ID, "type", inc.Type)
		return
	}
	e.notifier.Dispatch(inc, *site, cfg)
}
