package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"sitewatch/internal/logger"
	"sitewatch/internal/metrics"
	"sitewatch/internal/models"
)

// Prober runs one probe. Implementations fold every failure into an
// offline result.
type Prober interface {
	Probe(ctx context.Context, site models.Site, now time.Time) models.ProbeResult
}

// ProbePool fans probes out over the sites of a cycle. Each probe is bounded
// by its own timeout; one slow site never cancels another.
type ProbePool struct {
	prober  Prober
	limit   int
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewProbePool creates a pool running at most limit probes at once.
// A non-positive limit runs every probe concurrently.
func NewProbePool(prober Prober, limit int, m *metrics.Metrics, log *slog.Logger) *ProbePool {
	return &ProbePool{prober: prober, limit: limit, metrics: m, log: logger.OrDefault(log)}
}

// Run probes every site and returns the results in site order.
func (p *ProbePool) Run(ctx context.Context, sites []models.Site, now time.Time) []models.ProbeResult {
	results := make([]models.ProbeResult, len(sites))
	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i := range sites {
		g.Go(func() error {
			results[i] = p.probe(ctx, sites[i], now)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *ProbePool) probe(ctx context.Context, site models.Site, now time.Time) (res models.ProbeResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("probe panicked", "site", site.ID, "panic", r)
			res = models.ProbeResult{
				Timestamp: now.UnixMilli(),
				Status:    models.StatusOffline,
				Message:   fmt.Sprintf("probe failed: %v", r),
			}
		}
		p.metrics.ObserveProbe(string(site.MonitorType), string(res.Status), time.Since(start))
	}()

	res = p.prober.Probe(ctx, site, now)
	if res.Timestamp == 0 {
		res.Timestamp = now.UnixMilli()
	}
	return res
}
