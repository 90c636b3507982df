package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"time"

	"sitewatch/internal/models"
)

// TCP succeeds when a connection to tcpHost:tcpPort is established.
type TCP struct {
	Timeout time.Duration
}

func NewTCP(timeout time.Duration) *TCP { return &TCP{Timeout: timeout} }

func (p *TCP) Probe(ctx context.Context, site models.Site, now time.Time) models.ProbeResult {
	host, port := site.TCPHost, site.TCPPort
	if host == "" && site.URL != "" {
		if u, err := url.Parse(site.URL); err == nil {
			host = u.Hostname()
		}
	}
	if host == "" || port <= 0 {
		return offline(now, "tcp host or port not configured")
	}
	addr := hostPort(host, port, 0)
	return run(ctx, p.Timeout, now, func(ctx context.Context) outcome {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return outcome{err: err, msg: describeNetError("TCP", addr, err)}
		}
		conn.Close()
		return outcome{msg: "TCP port open"}
	})
}

// errShortReply marks a peer that closed before sending a full greeting.
var errShortReply = errors.New("short reply")

// exchangeFirstReply dials addr, optionally writes req, and reads the peer's
// first reply of at least minLen bytes. The connection deadline follows ctx.
func exchangeFirstReply(ctx context.Context, addr string, req []byte, minLen int) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	if len(req) > 0 {
		if _, err := conn.Write(req); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, 4096)
	n, err := io.ReadAtLeast(conn, buf, minLen)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return buf[:n], errShortReply
	}
	if err != nil {
		return buf[:n], err
	}
	return buf[:n], nil
}
