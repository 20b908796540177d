//go:generate mockgen -source ./notify.go -destination=./mocks/notify.go -package=mock_notify
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/utils"
)

// Notifier delivers a short text message to a phone number.
type Notifier interface {
	Send(ctx context.Context, phone, message string) error
}

// WhatsApp sends messages through an HTTP WhatsApp gateway that accepts
// {"phone": ..., "message": ...} with a bearer token.
type WhatsApp struct {
	log    *logger.Logger
	url    string
	token  string
	client *http.Client
}

// New returns a WhatsApp notifier, or a no-op one when the gateway is not
// configured.
func New(log *logger.Logger, url, token string) Notifier {
	if url == "" || token == "" {
		log.Info("WhatsApp gateway not configured, notifications disabled")
		return Nop{}
	}
	return &WhatsApp{
		log:    log.With("service", "WhatsApp"),
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WhatsApp) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(map[string]string{
		"phone":   utils.WhatsAppNumber(phone),
		"message": message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		w.log.Warn("WhatsApp gateway rejected message",
			"status", resp.StatusCode,
			"phone", utils.MaskPhone(phone),
			"body", string(body),
		)
		return fmt.Errorf("whatsapp send failed (status %d)", resp.StatusCode)
	}
	return nil
}

type Nop struct{}

func (Nop) Send(context.Context, string, string) error { return nil }
