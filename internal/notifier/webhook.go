package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"feed_relay/internal/domain"
)

// Webhook posts login alerts as JSON to an operator endpoint. Without a
// URL the alert is only logged.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "notifier"),
	}
}

type alertPayload struct {
	Text           string `json:"text"`
	CredentialID   string `json:"credentialId"`
	CredentialName string `json:"credentialName"`
	ScanURL        string `json:"scanUrl"`
	QRImage        []byte `json:"qrImage,omitempty"`
}

// Notify sends alert and logs any delivery failure.
func (w *Webhook) Notify(ctx context.Context, alert domain.LoginAlert) {
	logger := w.logger.With("credential_id", alert.CredentialID)

	if w.url == "" {
		logger.Warn("credential needs login, no webhook configured", "scan_url", alert.ScanURL)
		return
	}

	if err := w.post(ctx, alert); err != nil {
		logger.Error("deliver login alert failed", "scan_url", alert.ScanURL, "error", err)
		return
	}

	logger.Info("login alert delivered")
}

func (w *Webhook) post(ctx context.Context, alert domain.LoginAlert) error {
	name := alert.CredentialName
	if name == "" {
		name = alert.CredentialID
	}

	body, err := json.Marshal(alertPayload{
		Text:           fmt.Sprintf("Credential %s was rejected upstream. Scan to log in again: %s", name, alert.ScanURL),
		CredentialID:   alert.CredentialID,
		CredentialName: alert.CredentialName,
		ScanURL:        alert.ScanURL,
		QRImage:        alert.QRImage,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook error: %s", resp.Status)
	}

	return nil
}
