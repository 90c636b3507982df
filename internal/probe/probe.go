// Package probe implements one checker per monitor type. Every probe folds
// its failures into an offline models.ProbeResult; none returns an error.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"sitewatch/internal/models"
)

const (
	// DefaultTimeout bounds a single probe exchange.
	DefaultTimeout = 15 * time.Second

	// Latency bands. Both slow bands map to models.StatusSlow.
	SlowThreshold     = 1000 * time.Millisecond
	VerySlowThreshold = 3000 * time.Millisecond
)

// ErrTimeout is reported when an exchange does not finish within its timeout.
var ErrTimeout = errors.New("probe timed out")

// Prober checks one site. Implementations must be safe for concurrent use
// and must not retain the site.
type Prober interface {
	Probe(ctx context.Context, site models.Site, now time.Time) models.ProbeResult
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, site models.Site, now time.Time) models.ProbeResult

func (f ProberFunc) Probe(ctx context.Context, site models.Site, now time.Time) models.ProbeResult {
	return f(ctx, site, now)
}

// Registry selects a Prober by monitor type. Unknown types use the HTTP prober.
type Registry struct {
	probers  map[models.MonitorType]Prober
	fallback models.MonitorType
}

// NewRegistry returns a registry with every built-in prober using timeout
// per exchange. A non-positive timeout selects DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Registry{probers: make(map[models.MonitorType]Prober), fallback: models.MonitorHTTP}
	r.Register(models.MonitorHTTP, NewHTTP(timeout))
	r.Register(models.MonitorTCP, NewTCP(timeout))
	r.Register(models.MonitorDNS, NewDNS(timeout, nil))
	r.Register(models.MonitorSMTP, NewSMTP(timeout))
	r.Register(models.MonitorMySQL, NewMySQL(timeout))
	r.Register(models.MonitorPostgres, NewPostgres(timeout))
	r.Register(models.MonitorMongoDB, NewMongoDB(timeout))
	r.Register(models.MonitorMQTT, NewMQTT(timeout))
	r.Register(models.MonitorPush, Push{})
	return r
}

// Register installs or replaces the prober for a monitor type.
func (r *Registry) Register(t models.MonitorType, p Prober) {
	r.probers[t] = p
}

// For returns the prober responsible for site.
func (r *Registry) For(site models.Site) Prober {
	if p, ok := r.probers[site.MonitorType]; ok {
		return p
	}
	return r.probers[r.fallback]
}

// Probe runs the prober selected for site.
func (r *Registry) Probe(ctx context.Context, site models.Site, now time.Time) models.ProbeResult {
	return r.For(site).Probe(ctx, site, now)
}

// Classify maps a successful exchange's latency to online or slow.
func Classify(elapsed time.Duration) models.Status {
	if elapsed > SlowThreshold {
		return models.StatusSlow
	}
	return models.StatusOnline
}

// outcome is what an exchange reports back to run.
type outcome struct {
	code int
	msg  string
	err  error
}

// run executes exchange under a deadline and converts the outcome into a
// ProbeResult. The exchange receives a context that is cancelled at the
// deadline; run returns at the deadline even if the exchange ignores it.
func run(ctx context.Context, timeout time.Duration, now time.Time, exchange func(ctx context.Context) outcome) models.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() { done <- exchange(ctx) }()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ErrTimeout, msg: fmt.Sprintf("timed out after %s", timeout)}
	}
	elapsed := time.Since(start)

	res := models.ProbeResult{
		Timestamp:    now.UnixMilli(),
		StatusCode:   out.code,
		ResponseTime: elapsed.Milliseconds(),
		Message:      out.msg,
	}
	if out.err != nil {
		res.Status = models.StatusOffline
		if res.Message == "" {
			res.Message = out.err.Error()
		}
		return res
	}
	res.Status = Classify(elapsed)
	return res
}

// offline builds an immediate failure result without running an exchange.
func offline(now time.Time, msg string) models.ProbeResult {
	return models.ProbeResult{
		Timestamp: now.UnixMilli(),
		Status:    models.StatusOffline,
		Message:   msg,
	}
}

// describeNetError renders a dial or I/O error for the result message.
func describeNetError(proto, addr string, err error) string {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Sprintf("%s connection timed out (%s)", proto, addr)
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return fmt.Sprintf("%s connection refused (%s)", proto, addr)
	case errors.As(err, &dnsErr):
		return fmt.Sprintf("dns lookup failed for %s", dnsErr.Name)
	}
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return fmt.Sprintf("%s check failed: %s", proto, msg)
}

// hostPort joins host and port, applying def when port is unset.
func hostPort(host string, port, def int) string {
	if port <= 0 {
		port = def
	}
	return net.JoinHostPort(strings.TrimSpace(host), fmt.Sprint(port))
}
