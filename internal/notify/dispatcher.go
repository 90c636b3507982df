package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"sitewatch/internal/logger"
	"sitewatch/internal/metrics"
	"sitewatch/internal/models"
)

const DefaultTimeout = 10 * time.Second

// Channel delivers incidents to one destination.
type Channel interface {
	Name() string
	// Enabled reports whether cfg turns the channel on with enough settings
	// to send.
	Enabled(cfg models.NotificationConfig) bool
	Send(ctx context.Context, n Notification) error
}

// Notification is what a channel renders.
type Notification struct {
	Incident models.Incident
	Site     models.Site
	Config   models.NotificationConfig
	// Brand names the monitor in message headers.
	Brand    string
	Location *time.Location
}

// Options configures a Dispatcher.
type Options struct {
	Channels []Channel
	Timeout  time.Duration
	Brand    string
	Location *time.Location
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Dispatcher fans incidents out to channels in the background. Each channel
// send runs on its own goroutine with its own timeout, so one failing
// channel never delays another or the caller.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	brand    string
	loc      *time.Location
	metrics  *metrics.Metrics
	log      *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		channels: opts.Channels,
		timeout:  opts.Timeout,
		brand:    opts.Brand,
		loc:      opts.Location,
		metrics:  opts.Metrics,
		log:      logger.OrDefault(opts.Logger).With("component", "notify"),
		ctx:      ctx,
		cancel:   cancel,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.brand == "" {
		d.brand = "Sitewatch"
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	return d
}

// DefaultChannels returns the webhook, WeCom and email channels sharing
// client.
func DefaultChannels(client *http.Client) []Channel {
	return []Channel{NewWebhook(client), NewWeCom(client), NewEmail(client, "")}
}

// Dispatch starts delivery of inc and returns immediately.
func (d *Dispatcher) Dispatch(inc models.Incident, site models.Site, cfg models.NotificationConfig) {
	if !cfg.AllowsEvent(inc.Type) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Warn("dispatcher closed, dropping notification", "incident", inc.ID)
		return
	}

	n := Notification{Incident: inc, Site: site, Config: cfg, Brand: d.brand, Location: d.loc}
	for _, ch := range d.channels {
		if !ch.Enabled(cfg) {
			continue
		}
		d.wg.Add(1)
		go d.send(ch, n)
	}
}

func (d *Dispatcher) send(ch Channel, n Notification) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notification channel panicked", "channel", ch.Name(), "panic", r)
			d.metrics.IncNotification(ch.Name(), "error")
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	if err := ch.Send(ctx, n); err != nil {
		d.log.Error("notification failed", "channel", ch.Name(), "incident", n.Incident.ID, "error", err)
		d.metrics.IncNotification(ch.Name(), "error")
		return
	}
	d.log.Info("notification sent", "channel", ch.Name(), "incident", n.Incident.ID)
	d.metrics.IncNotification(ch.Name(), "ok")
}

// Wait blocks until every started send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting notifications and waits for in-flight sends until
// ctx is done, then cancels whatever is left.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// postJSON sends body as JSON and fails on a non-2xx reply. The reply body
// is returned for channels that report errors in it.
func postJSON(ctx context.Context, client *http.Client, url string, body any, header http.Header) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post: %w", err)
	}
	defer resp.Body.Close()
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return reply, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return reply, nil
}
