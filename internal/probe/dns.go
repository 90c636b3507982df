package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"sitewatch/internal/models"
)

// Resolver is the subset of *net.Resolver the DNS prober uses.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// DNS resolves the configured record type for the site's domain and, when
// an expected value is set, requires one of the answers to match it.
type DNS struct {
	Timeout  time.Duration
	Resolver Resolver
}

// NewDNS returns a DNS prober; a nil resolver uses net.DefaultResolver.
func NewDNS(timeout time.Duration, r Resolver) *DNS {
	if r == nil {
		r = net.DefaultResolver
	}
	return &DNS{Timeout: timeout, Resolver: r}
}

var errDNSMismatch = errors.New("dns answer mismatch")

func (p *DNS) Probe(ctx context.Context, site models.Site, now time.Time) models.ProbeResult {
	domain := dnsDomain(site.URL)
	if domain == "" {
		return offline(now, "domain not configured")
	}
	rtype := strings.ToUpper(site.DNSRecordType)
	if rtype == "" {
		rtype = "A"
	}
	return run(ctx, p.Timeout, now, func(ctx context.Context) outcome {
		answers, err := p.lookup(ctx, domain, rtype)
		if err != nil {
			return outcome{err: err, msg: fmt.Sprintf("%s lookup for %s failed: %s", rtype, domain, lookupReason(err))}
		}
		if len(answers) == 0 {
			return outcome{err: errDNSMismatch, msg: fmt.Sprintf("no %s records for %s", rtype, domain)}
		}
		summary := strings.Join(answers, ", ")
		if len(summary) > 120 {
			summary = summary[:120]
		}
		if want := normalizeAnswer(site.DNSExpectedValue); want != "" {
			for _, a := range answers {
				if normalizeAnswer(a) == want {
					return outcome{msg: fmt.Sprintf("%s %s", rtype, summary)}
				}
			}
			return outcome{err: errDNSMismatch, msg: fmt.Sprintf("expected %s, got %s", site.DNSExpectedValue, summary)}
		}
		return outcome{msg: fmt.Sprintf("%s %s", rtype, summary)}
	})
}

func (p *DNS) lookup(ctx context.Context, domain, rtype string) ([]string, error) {
	switch rtype {
	case "A", "AAAA":
		addrs, err := p.Resolver.LookupIPAddr(ctx, domain)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, a := range addrs {
			isV4 := a.IP.To4() != nil
			if (rtype == "A") == isV4 {
				out = append(out, a.IP.String())
			}
		}
		return out, nil
	case "CNAME":
		c, err := p.Resolver.LookupCNAME(ctx, domain)
		if err != nil {
			return nil, err
		}
		return []string{c}, nil
	case "MX":
		mx, err := p.Resolver.LookupMX(ctx, domain)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(mx))
		for _, m := range mx {
			out = append(out, m.Host)
		}
		return out, nil
	case "TXT":
		return p.Resolver.LookupTXT(ctx, domain)
	case "NS":
		ns, err := p.Resolver.LookupNS(ctx, domain)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(ns))
		for _, n := range ns {
			out = append(out, n.Host)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported record type %s", rtype)
}

// dnsDomain accepts either a bare domain or a URL.
func dnsDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil {
			return u.Hostname()
		}
		return ""
	}
	if i := strings.IndexAny(raw, "/:"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

func normalizeAnswer(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}

func lookupReason(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return "no such host"
		case dnsErr.IsTimeout:
			return "timeout"
		}
		return dnsErr.Err
	}
	return err.Error()
}
