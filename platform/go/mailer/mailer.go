// Package mailer sends transactional email for claim decisions and
// labor-request notifications. Delivery is always best-effort: callers log
// failures and never let them change the outcome of the primary operation.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Email is one outgoing message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// NewSender picks a delivery backend from configuration.
// An empty or "log" kind writes the message to the logger, which is the
// default for local development. "webhook" posts to an HTTP relay.
func NewSender(kind, webhookURL, webhookToken string, logger *zap.Logger) (Sender, error) {
	switch kind {
	case "", "log":
		return &logSender{logger: logger}, nil
	case "noop":
		return noopSender{}, nil
	case "webhook":
		if strings.TrimSpace(webhookURL) == "" {
			return nil, errors.New("webhook mailer requires a url")
		}
		return &webhookSender{
			url:    webhookURL,
			token:  webhookToken,
			client: &http.Client{Timeout: 5 * time.Second},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported mailer kind %q", kind)
	}
}

type logSender struct {
	logger *zap.Logger
}

func (s *logSender) Send(ctx context.Context, email Email) error {
	s.logger.Info("email delivered to log sink",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
	)
	return nil
}

type noopSender struct{}

func (noopSender) Send(ctx context.Context, email Email) error { return nil }

type webhookSender struct {
	url    string
	token  string
	client *http.Client
}

func (s *webhookSender) Send(ctx context.Context, email Email) error {
	payload := map[string]string{
		"to":      email.To,
		"subject": email.Subject,
		"body":    email.Body,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail relay rejected request: %s", resp.Status)
	}

	return nil
}
