package notify

import (
	"context"
	"net/http"
	"time"

	"sitewatch/internal/models"
)

// Webhook posts a JSON document describing the incident.
type Webhook struct {
	client *http.Client
}

func NewWebhook(client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Webhook{client: client}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Enabled(cfg models.NotificationConfig) bool {
	return cfg.Channels.Webhook.Enabled && cfg.Channels.Webhook.URL != ""
}

type webhookSite struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	URL    string        `json:"url,omitempty"`
	Status models.Status `json:"status"`
}

type webhookPayload struct {
	Event    models.IncidentType `json:"event"`
	Title    string              `json:"title"`
	Source   string              `json:"source"`
	Incident models.Incident     `json:"incident"`
	Site     webhookSite         `json:"site"`
	SentAt   int64               `json:"sentAt"`
}

func (w *Webhook) Send(ctx context.Context, n Notification) error {
	body := webhookPayload{
		Event:    n.Incident.Type,
		Title:    headline(n.Incident.Type),
		Source:   n.Brand,
		Incident: n.Incident,
		Site: webhookSite{
			ID:     n.Site.ID,
			Name:   n.Site.Name,
			URL:    n.Site.URL,
			Status: n.Site.Status,
		},
		SentAt: time.Now().UnixMilli(),
	}
	_, err := postJSON(ctx, w.client, n.Config.Channels.Webhook.URL, body, nil)
	return err
}
