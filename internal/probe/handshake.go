package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sitewatch/internal/models"
)

// Handshake is a prober that opens a TCP connection, optionally sends a
// greeting, and validates the peer's first reply. It confirms the peer
// speaks the expected protocol without authenticating.
type Handshake struct {
	Proto       string
	DefaultPort int
	Timeout     time.Duration
	// MinReply is the number of bytes that must arrive before Verify runs.
	MinReply int
	// Target extracts host and port from the site definition.
	Target func(models.Site) (string, int)
	// Request builds the bytes written after connecting; nil means the
	// server speaks first.
	Request func() []byte
	// Verify inspects the reply and returns the status code and message to
	// report, or an error when the reply is not the expected protocol.
	Verify func(reply []byte) (int, string, error)
}

func (h *Handshake) Probe(ctx context.Context, site models.Site, now time.Time) models.ProbeResult {
	host, port := h.Target(site)
	if host == "" {
		return offline(now, fmt.Sprintf("%s host not configured", h.Proto))
	}
	addr := hostPort(host, port, h.DefaultPort)
	return run(ctx, h.Timeout, now, func(ctx context.Context) outcome {
		var req []byte
		if h.Request != nil {
			req = h.Request()
		}
		reply, err := exchangeFirstReply(ctx, addr, req, h.MinReply)
		if errors.Is(err, errShortReply) {
			return outcome{err: err, msg: fmt.Sprintf("invalid %s handshake response", h.Proto)}
		}
		if err != nil {
			return outcome{err: err, msg: describeNetError(h.Proto, addr, err)}
		}
		code, msg, err := h.Verify(reply)
		if err != nil {
			return outcome{code: code, err: err, msg: err.Error()}
		}
		return outcome{code: code, msg: msg}
	})
}

func dbTarget(s models.Site) (string, int)   { return s.DBHost, s.DBPort }
func tcpTarget(s models.Site) (string, int)  { return s.TCPHost, s.TCPPort }
func mqttTarget(s models.Site) (string, int) { return s.MQTTHost, s.MQTTPort }
