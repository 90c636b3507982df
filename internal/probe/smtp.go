package probe

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"sitewatch/internal/models"
)

// NewSMTP waits for the server greeting and requires a 220 banner. Host and
// port come from tcpHost/tcpPort, falling back to the url host.
func NewSMTP(timeout time.Duration) *Handshake {
	return &Handshake{
		Proto:       "SMTP",
		DefaultPort: 25,
		Timeout:     timeout,
		MinReply:    3,
		Target:      smtpTarget,
		Verify:      verifySMTP,
	}
}

func smtpTarget(s models.Site) (string, int) {
	host, port := tcpTarget(s)
	if host == "" {
		host = strings.TrimPrefix(strings.TrimPrefix(s.URL, "smtp://"), "smtps://")
		if i := strings.IndexAny(host, ":/"); i >= 0 {
			host = host[:i]
		}
	}
	return host, port
}

func verifySMTP(b []byte) (int, string, error) {
	if !bytes.HasPrefix(b, []byte("220")) {
		return 0, "", errors.New("unexpected SMTP greeting")
	}
	line := b
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	banner := strings.TrimSpace(string(line))
	if len(banner) > 100 {
		banner = banner[:100]
	}
	return 220, banner, nil
}
