package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitewatch/internal/logger"
	"sitewatch/internal/metrics"
	"sitewatch/internal/models"
	"sitewatch/internal/monitor"
	"sitewatch/internal/storage"
)

// AdminSecretKey names the stored admin token used when none is configured.
const AdminSecretKey = "api_token"

// Store is the slice of storage the handlers read and write.
type Store interface {
	LoadState(ctx context.Context) (*models.MonitorState, error)
	GetAdminSecret(ctx context.Context, key string) (string, error)
	RecordHeartbeat(ctx context.Context, hb models.Heartbeat) error
}

// Cycles runs on-demand work serialized with the scheduler.
type Cycles interface {
	Trigger(ctx context.Context, force bool) (monitor.Report, error)
	CheckCertificates(ctx context.Context) (monitor.Report, error)
}

var errUnauthorized = errors.New("unauthorized")

// Handlers holds dependencies for the API handlers.
type Handlers struct {
	store      Store
	cycles     Cycles
	metrics    *metrics.Metrics
	adminToken string
	now        func() time.Time
	log        *slog.Logger
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(d Deps) *Handlers {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Handlers{
		store:      d.Store,
		cycles:     d.Cycles,
		metrics:    d.Metrics,
		adminToken: d.AdminToken,
		now:        now,
		log:        logger.OrDefault(d.Logger).With("component", "api"),
	}
}

type siteView struct {
	models.Site
	Uptime monitor.UptimeStats `json:"uptime"`
}

type statusResponse struct {
	SiteName             string            `json:"siteName,omitempty"`
	LastUpdate           int64             `json:"lastUpdate"`
	NextDueAt            int64             `json:"nextDueAt"`
	HistoryHours         int               `json:"historyHours"`
	CheckInterval        int               `json:"checkInterval"`
	DebounceMinutes      int               `json:"debounceMinutes"`
	EstimatedDailyWrites int               `json:"estimatedDailyWrites"`
	Stats                models.Stats      `json:"stats"`
	Sites                []siteView        `json:"sites"`
	Incidents            []models.Incident `json:"incidents"`
}

// Status returns every site with its uptime over the history window.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	state, err := h.loadState(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	now := h.now()
	since := now.Add(-time.Duration(state.Config.HistoryHours) * time.Hour)

	resp := statusResponse{
		SiteName:             state.Config.SiteName,
		LastUpdate:           state.LastUpdate,
		NextDueAt:            state.MonitorNextDueAt,
		HistoryHours:         state.Config.HistoryHours,
		CheckInterval:        state.Config.CheckInterval,
		DebounceMinutes:      state.Config.StatusChangeDebounceMinutes,
		EstimatedDailyWrites: monitor.EstimatedDailyWrites(state.Config),
		Stats:                state.Stats,
		Sites:                make([]siteView, 0, len(state.Sites)),
		Incidents:            monitor.LatestIncidents(state, 10),
	}
	for _, s := range state.Sites {
		s.PushToken = ""
		resp.Sites = append(resp.Sites, siteView{
			Site:   s,
			Uptime: monitor.CalculateStats(monitor.HistorySince(state, s.ID, since)),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// SiteHistory returns the history of one site over ?hours (default: the
// configured history window).
func (h *Handlers) SiteHistory(w http.ResponseWriter, r *http.Request) {
	siteID := r.PathValue("site_id")
	state, err := h.loadState(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if state.Site(siteID) == nil {
		h.writeError(w, fmt.Errorf("site %q: %w", siteID, storage.ErrNotFound))
		return
	}

	hours := state.Config.HistoryHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = min(n, state.Config.RetentionHours)
	}
	since := h.now().Add(-time.Duration(hours) * time.Hour)
	items := monitor.HistorySince(state, siteID, since)
	if items == nil {
		items = []models.HistoryRecord{}
	}

	writeJSON(w, http.StatusOK, struct {
		SiteID string                 `json:"siteId"`
		Hours  int                    `json:"hours"`
		Stats  monitor.UptimeStats    `json:"stats"`
		Items  []models.HistoryRecord `json:"items"`
	}{siteID, hours, monitor.CalculateStats(items), items})
}

// Incidents lists the newest incidents across all sites.
func (h *Handlers) Incidents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	state, err := h.loadState(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := monitor.LatestIncidents(state, limit)
	if items == nil {
		items = []models.Incident{}
	}
	writeJSON(w, http.StatusOK, struct {
		Items []models.Incident `json:"items"`
	}{items})
}

// RunCycle triggers a monitoring cycle; ?force=true writes unconditionally.
func (h *Handlers) RunCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		h.writeError(w, err)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	report, err := h.cycles.Trigger(r.Context(), force)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CheckCertificates runs a certificate pass immediately.
func (h *Handlers) CheckCertificates(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		h.writeError(w, err)
		return
	}
	report, err := h.cycles.CheckCertificates(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// pushBody accepts the metric names reporting agents commonly send.
type pushBody struct {
	CPU         *float64 `json:"cpu"`
	Memory      *float64 `json:"memory"`
	Mem         *float64 `json:"mem"`
	RAM         *float64 `json:"ram"`
	Disk        *float64 `json:"disk"`
	Load        *float64 `json:"load"`
	Temperature *float64 `json:"temperature"`
	Temp        *float64 `json:"temp"`
	Latency     float64  `json:"latency"`
}

// Push records a heartbeat for the push site owning the token. The cycle
// picks it up on its next run.
func (h *Handlers) Push(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := uuid.Parse(token); err != nil {
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}
	state, err := h.loadState(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	site := monitor.FindPushSite(state, token)
	if site == nil {
		h.writeError(w, fmt.Errorf("push token: %w", storage.ErrNotFound))
		return
	}

	var body pushBody
	if r.Method == http.MethodPost && strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		// A malformed body still counts as a heartbeat.
		if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			h.log.Debug("ignoring unreadable push body", "site", site.ID, "error", err)
			body = pushBody{}
		}
	}

	now := h.now()
	hb := models.Heartbeat{
		SiteID:      site.ID,
		ReceivedAt:  now.UnixMilli(),
		Latency:     int64(body.Latency),
		CPU:         body.CPU,
		Memory:      firstSet(body.Memory, body.Mem, body.RAM),
		Disk:        body.Disk,
		Load:        body.Load,
		Temperature: firstSet(body.Temperature, body.Temp),
	}
	if err := h.store.RecordHeartbeat(r.Context(), hb); err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.IncHeartbeat()
	h.log.Info("heartbeat received", "site", site.ID)

	writeJSON(w, http.StatusOK, struct {
		Success   bool   `json:"success"`
		Timestamp int64  `json:"timestamp"`
		SiteID    string `json:"siteId"`
		SiteName  string `json:"siteName"`
	}{true, hb.ReceivedAt, site.ID, site.Name})
}

// Healthz is a simple health check endpoint.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// loadState returns the stored state, or an empty one before the first
// cycle.
func (h *Handlers) loadState(ctx context.Context) (*models.MonitorState, error) {
	state, err := h.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = monitor.NewState(h.now(), time.UTC)
	}
	monitor.Normalize(state)
	return state, nil
}

// authorize accepts the configured admin token, or the stored admin secret
// when none is configured.
func (h *Handlers) authorize(r *http.Request) error {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || got == "" {
		return errUnauthorized
	}
	want := h.adminToken
	if want == "" {
		secret, err := h.store.GetAdminSecret(r.Context(), AdminSecretKey)
		if errors.Is(err, storage.ErrNotFound) {
			return errUnauthorized
		}
		if err != nil {
			return err
		}
		want = secret
	}
	if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return errUnauthorized
	}
	return nil
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, errUnauthorized):
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, monitor.ErrSchedulerStopped):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	default:
		h.log.Error("request failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func firstSet(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
