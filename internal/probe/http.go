package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"sitewatch/internal/models"
)

const maxBodyBytes = 1 << 20

// HTTP issues the configured request and validates status code and body
// keywords.
type HTTP struct {
	Timeout time.Duration
	Client  *http.Client
}

// NewHTTP returns an HTTP prober. Certificate validity is tracked separately,
// so TLS verification is skipped here.
func NewHTTP(timeout time.Duration) *HTTP {
	return &HTTP{
		Timeout: timeout,
		Client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (p *HTTP) Probe(ctx context.Context, site models.Site, now time.Time) models.ProbeResult {
	if site.URL == "" {
		return offline(now, "url not configured")
	}
	method := site.Method
	if method == "" {
		method = http.MethodGet
	}
	return run(ctx, p.Timeout, now, func(ctx context.Context) outcome {
		var body io.Reader
		if site.Body != "" && method != http.MethodGet && method != http.MethodHead {
			body = strings.NewReader(site.Body)
		}
		req, err := http.NewRequestWithContext(ctx, method, site.URL, body)
		if err != nil {
			return outcome{err: err, msg: "invalid request: " + err.Error()}
		}
		req.Header.Set("User-Agent", "sitewatch/1.0")
		for k, v := range site.Headers {
			req.Header.Set(k, v)
		}

		resp, err := p.Client.Do(req)
		if err != nil {
			return outcome{err: err, msg: describeNetError("HTTP", req.URL.Host, err)}
		}
		defer resp.Body.Close()

		if !codeExpected(resp.StatusCode, site.ExpectedCodes) {
			return outcome{code: resp.StatusCode, err: errUnexpectedStatus, msg: fmt.Sprintf("HTTP %d", resp.StatusCode)}
		}
		if (site.ResponseKeyword == "" && site.ResponseForbiddenKeyword == "") || method == http.MethodHead {
			return outcome{code: resp.StatusCode, msg: "OK"}
		}

		text, err := readBody(resp)
		if err != nil {
			return outcome{code: resp.StatusCode, err: err, msg: "failed to read body: " + err.Error()}
		}
		if kw := site.ResponseKeyword; kw != "" && !strings.Contains(text, kw) {
			return outcome{code: resp.StatusCode, err: errKeyword, msg: fmt.Sprintf("keyword %q not found", kw)}
		}
		if kw := site.ResponseForbiddenKeyword; kw != "" && strings.Contains(text, kw) {
			return outcome{code: resp.StatusCode, err: errKeyword, msg: fmt.Sprintf("forbidden keyword %q found", kw)}
		}
		return outcome{code: resp.StatusCode, msg: "OK"}
	})
}

var (
	errUnexpectedStatus = errors.New("unexpected status code")
	errKeyword          = errors.New("keyword check failed")
)

// codeExpected treats an empty list as "any 2xx".
func codeExpected(code int, expected []int) bool {
	if len(expected) == 0 {
		return code >= 200 && code < 300
	}
	for _, c := range expected {
		if c == code {
			return true
		}
	}
	return false
}

// readBody reads up to maxBodyBytes and decodes it to UTF-8 using the
// charset from Content-Type or the document's meta tags.
func readBody(resp *http.Response) (string, error) {
	r, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		r = io.LimitReader(resp.Body, maxBodyBytes)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
