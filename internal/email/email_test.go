package email

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"techcare/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAllTemplates(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := map[string]any{
		"name":        "Dana",
		"device_type": "laptop",
		"amount":      129.5,
		"currency":    "usd",
		"status":      "confirmed",
		"rating":      5,
		"comment":     "Fast and friendly",
		"reward_name": "10% off",
		"code":        "TC-ABC123",
		"expires_at":  "2024-06-01",
		"link":        "https://techcare.app/bookings/1",
	}
	for key := range sources {
		t.Run(key, func(t *testing.T) {
			msg, err := r.Render(key, "dana@example.com", data)
			require.NoError(t, err)
			assert.Equal(t, "dana@example.com", msg.To)
			assert.NotEmpty(t, msg.Subject)
			assert.Contains(t, msg.HTML, "Dana")
			assert.Equal(t, key, msg.Template)
		})
	}
}

func TestRenderFormatsMoneyAndEscapes(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render(TemplateBidReceived, "a@example.com", map[string]any{
		"name":        "<script>",
		"amount":      1234.5,
		"currency":    "usd",
		"device_type": "phone",
	})
	require.NoError(t, err)
	assert.Equal(t, "New bid of $1,234.50 on your booking", msg.Subject)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render("nope", "a@example.com", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestHTTPSender(t *testing.T) {
	var got providerRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(config.EmailConfig{APIURL: srv.URL, APIKey: "key-123", From: "TechCare <noreply@techcare.app>"}, srv.Client())
	err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "Hello", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer key-123", auth)
	assert.Equal(t, []string{"a@example.com"}, got.To)
	assert.Equal(t, "Hello", got.Subject)
	assert.Equal(t, "TechCare <noreply@techcare.app>", got.From)

	assert.ErrorIs(t, s.Send(context.Background(), Message{}), ErrNoRecipient)
}

func TestHTTPSenderErrors(t *testing.T) {
	status := http.StatusUnprocessableEntity
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	s := NewHTTPSender(config.EmailConfig{APIURL: srv.URL, APIKey: "k"}, srv.Client())

	err := s.Send(context.Background(), Message{To: "a@example.com"})
	var permanent *PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.Equal(t, http.StatusUnprocessableEntity, permanent.StatusCode)

	status = http.StatusServiceUnavailable
	err = s.Send(context.Background(), Message{To: "a@example.com"})
	require.Error(t, err)
	assert.False(t, isPermanent(err))
}

func TestNewSenderFallsBackToLog(t *testing.T) {
	logger := zerolog.New(io.Discard)
	s := NewSender(config.EmailConfig{}, &logger)
	require.IsType(t, &LogSender{}, s)
	assert.NoError(t, s.Send(context.Background(), Message{To: "a@example.com"}))

	s = NewSender(config.EmailConfig{APIURL: "http://localhost", APIKey: "k"}, &logger)
	assert.IsType(t, &HTTPSender{}, s)
}
