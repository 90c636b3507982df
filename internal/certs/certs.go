// Package certs reads the TLS leaf certificate a host presents.
package certs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sitewatch/internal/logger"
	"sitewatch/internal/models"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultPort    = 443
	DefaultLimit   = 8
)

var errNoCertificate = errors.New("peer presented no certificate")

// Fetcher dials hosts over TLS and reports their certificates. A host may
// carry its own port as "host:port"; Port applies to the rest.
type Fetcher struct {
	Timeout time.Duration
	Port    int
	// Limit bounds concurrent handshakes; 0 means DefaultLimit.
	Limit int
	// Roots verifies chains; nil uses the system pool.
	Roots *x509.CertPool
	Now   func() time.Time

	log *slog.Logger
}

// NewFetcher returns a Fetcher defaulting to port 443.
func NewFetcher(timeout time.Duration, log *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		Timeout: timeout,
		Port:    DefaultPort,
		Limit:   DefaultLimit,
		Now:     time.Now,
		log:     logger.OrDefault(log).With("component", "certs"),
	}
}

// Fetch inspects every host concurrently. Hosts whose handshake fails are
// left out of the result.
func (f *Fetcher) Fetch(ctx context.Context, hosts []string) map[string]models.CertInfo {
	out := make(map[string]models.CertInfo, len(hosts))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	g.SetLimit(limit)
	for _, host := range hosts {
		g.Go(func() error {
			info, err := f.Inspect(ctx, host)
			if err != nil {
				f.logger().Warn("certificate fetch failed", "host", host, "error", err)
				return nil
			}
			mu.Lock()
			out[host] = info
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Inspect performs one handshake with host, or host:port, and describes the
// leaf certificate.
func (f *Fetcher) Inspect(ctx context.Context, target string) (models.CertInfo, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	host, port := f.split(target)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Verification happens below so an expired or mismatched certificate
	// is still reported.
	d := tls.Dialer{Config: &tls.Config{ServerName: host, InsecureSkipVerify: true}}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return models.CertInfo{}, fmt.Errorf("tls dial: %w", err)
	}
	defer conn.Close()

	chain := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(chain) == 0 {
		return models.CertInfo{}, errNoCertificate
	}
	return f.describe(host, chain), nil
}

func (f *Fetcher) split(target string) (host, port string) {
	if h, p, err := net.SplitHostPort(target); err == nil {
		return h, p
	}
	n := f.Port
	if n <= 0 {
		n = DefaultPort
	}
	return target, strconv.Itoa(n)
}

func (f *Fetcher) describe(host string, chain []*x509.Certificate) models.CertInfo {
	now := f.now()
	leaf := chain[0]

	opts := x509.VerifyOptions{
		DNSName:       host,
		Roots:         f.Roots,
		CurrentTime:   now,
		Intermediates: x509.NewCertPool(),
	}
	for _, c := range chain[1:] {
		opts.Intermediates.AddCert(c)
	}
	_, verr := leaf.Verify(opts)

	issuer := leaf.Issuer.CommonName
	if issuer == "" && len(leaf.Issuer.Organization) > 0 {
		issuer = leaf.Issuer.Organization[0]
	}
	return models.CertInfo{
		Valid:     verr == nil,
		DaysLeft:  DaysLeft(leaf.NotAfter, now),
		Issuer:    issuer,
		ValidFrom: leaf.NotBefore.UTC().Format(time.RFC3339),
		ValidTo:   leaf.NotAfter.UTC().Format(time.RFC3339),
		Algorithm: leaf.SignatureAlgorithm.String(),
	}
}

// DaysLeft counts whole days until notAfter, negative once it has passed.
func DaysLeft(notAfter, now time.Time) int {
	return int(math.Floor(notAfter.Sub(now).Hours() / 24))
}

func (f *Fetcher) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

func (f *Fetcher) logger() *slog.Logger {
	return logger.OrDefault(f.log)
}
