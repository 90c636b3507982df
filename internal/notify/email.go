package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"sitewatch/internal/models"
)

const (
	ResendEndpoint     = "https://api.resend.com/emails"
	defaultEmailSender = "onboarding@resend.dev"
)

var errNoAPIKey = errors.New("resend api key not configured")

// Email sends incidents through the Resend HTTP API.
type Email struct {
	client   *http.Client
	endpoint string
}

// NewEmail creates the email channel. An empty endpoint uses Resend's.
func NewEmail(client *http.Client, endpoint string) *Email {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if endpoint == "" {
		endpoint = ResendEndpoint
	}
	return &Email{client: client, endpoint: endpoint}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Enabled(cfg models.NotificationConfig) bool {
	return cfg.Channels.Email.Enabled && cfg.Channels.Email.To != ""
}

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (e *Email) Send(ctx context.Context, n Notification) error {
	ec := n.Config.Channels.Email
	if ec.ResendAPIKey == "" {
		return errNoAPIKey
	}
	from := ec.From
	if !strings.Contains(from, "@") {
		from = defaultEmailSender
	}
	var to []string
	for _, addr := range strings.Split(ec.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	msg := resendEmail{
		From:    from,
		To:      to,
		Subject: emailSubject(n),
		HTML:    emailHTML(n),
	}
	header := http.Header{"Authorization": {"Bearer " + ec.ResendAPIKey}}
	if _, err := postJSON(ctx, e.client, e.endpoint, msg, header); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

func emailSubject(n Notification) string {
	return fmt.Sprintf("[%s] %s: %s", n.Brand, headline(n.Incident.Type), n.Site.Name)
}

func emailHTML(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2><table>", html.EscapeString(headline(n.Incident.Type)))
	for _, f := range details(n) {
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>",
			html.EscapeString(f.Label), html.EscapeString(f.Value))
	}
	fmt.Fprintf(&b, "</table><p>%s</p>", html.EscapeString(n.Brand))
	return b.String()
}
