package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"techcare/internal/config"

	"github.com/rs/zerolog"
)

var (
	ErrUnknownTemplate = errors.New("unknown email template")
	ErrNoRecipient     = errors.New("email recipient is required")
)

type Message struct {
	To       string
	Subject  string
	HTML     string
	Template string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns the HTTP provider sender when an API key is configured and a
// logging sender otherwise.
func NewSender(cfg config.EmailConfig, logger *zerolog.Logger) Sender {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APIURL) == "" {
		logger.Warn().Msg("email provider not configured, emails will be logged")
		return NewLogSender(logger)
	}
	return NewHTTPSender(cfg, nil)
}

// HTTPSender posts messages to a transactional email provider's JSON API.
type HTTPSender struct {
	url    string
	apiKey string
	from   string
	client *http.Client
}

func NewHTTPSender(cfg config.EmailConfig, client *http.Client) *HTTPSender {
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSender{url: cfg.APIURL, apiKey: cfg.APIKey, from: cfg.From, client: client}
}

type providerRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct {
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("email provider rejected message: status %d: %s", e.StatusCode, e.Body)
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	body, err := json.Marshal(providerRequest{From: s.from, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return &PermanentError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	return fmt.Errorf("email provider error: status %d: %s", resp.StatusCode, snippet)
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	s.logger.Info().
		Str("to", msg.To).
		Str("template", msg.Template).
		Str("subject", msg.Subject).
		Msg("email (not sent: provider not configured)")
	return nil
}

func isPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	return isPermanent(err) || errors.Is(err, ErrNoRecipient) || errors.Is(err, ErrUnknownTemplate)
}
