package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"sitewatch/internal/models"
)

// WeCom posts a markdown message to a WeCom group robot webhook.
type WeCom struct {
	client *http.Client
}

func NewWeCom(client *http.Client) *WeCom {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &WeCom{client: client}
}

func (w *WeCom) Name() string { return "wecom" }

func (w *WeCom) Enabled(cfg models.NotificationConfig) bool {
	return cfg.Channels.WeCom.Enabled && cfg.Channels.WeCom.Webhook != ""
}

type wecomMessage struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Content string `json:"content"`
	} `json:"markdown"`
}

type wecomReply struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (w *WeCom) Send(ctx context.Context, n Notification) error {
	var msg wecomMessage
	msg.MsgType = "markdown"
	msg.Markdown.Content = wecomMarkdown(n)

	reply, err := postJSON(ctx, w.client, n.Config.Channels.WeCom.Webhook, msg, nil)
	if err != nil {
		return err
	}
	var r wecomReply
	if len(reply) > 0 && json.Unmarshal(reply, &r) == nil && r.ErrCode != 0 {
		return fmt.Errorf("wecom rejected message: %d %s", r.ErrCode, r.ErrMsg)
	}
	return nil
}

func wecomMarkdown(n Notification) string {
	color := "warning"
	if n.Incident.Type == models.IncidentRecovered {
		color = "info"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<font color=\"%s\">%s</font>\n", color, headline(n.Incident.Type))
	for _, f := range details(n) {
		fmt.Fprintf(&b, "\n> **%s**: %s", f.Label, f.Value)
	}
	return b.String()
}
