package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier は人間向け通知をWebhookに送信する。
// 配送失敗はログに残すのみで呼び出し元には伝播しない。URL未設定時は何もしない。
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier は新しいWebhookNotifierを生成する。
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify は通知メッセージをWebhookにPOSTする。
func (n *WebhookNotifier) Notify(ctx context.Context, message string) {
	if n.url == "" {
		return
	}

	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		slog.WarnContext(ctx, "failed to encode notification", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		slog.WarnContext(ctx, "failed to create notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "failed to deliver notification", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.WarnContext(ctx, "notification webhook returned error status", "status", resp.StatusCode)
	}
}
