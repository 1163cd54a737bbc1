// Package mailer sends transactional email through Brevo. Delivery is
// best-effort: booking flows log failures but never abort on them.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sattva/config"

	"github.com/sirupsen/logrus"
)

// Sender is the surface the rest of the service depends on.
type Sender interface {
	Send(ctx context.Context, toEmail, toName, subject, htmlBody string) error
}

type BrevoClient struct {
	apiKey      string
	senderEmail string
	senderName  string
	httpc       *http.Client
}

func NewBrevoClient(cfg config.BrevoConfig) *BrevoClient {
	return &BrevoClient{
		apiKey:      cfg.APIKey,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
		httpc:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BrevoClient) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) error {
	payload := map[string]interface{}{
		"sender": map[string]string{
			"email": b.senderEmail,
			"name":  b.senderName,
		},
		"to": []map[string]string{
			{"email": toEmail, "name": toName},
		},
		"subject":     subject,
		"htmlContent": htmlBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.brevo.com/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("brevo: status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// ConsoleSender logs mail instead of sending it. Used in development and
// whenever no API key is configured.
type ConsoleSender struct{}

func (ConsoleSender) Send(_ context.Context, toEmail, _, subject, _ string) error {
	logrus.WithFields(logrus.Fields{"to": toEmail, "subject": subject}).Info("mail (console)")
	return nil
}
