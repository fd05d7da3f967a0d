package payment

import (
	"context"
	"io"
	"strings"
	"testing"

	"techcare/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsGateway(t *testing.T) {
	logger := zerolog.New(io.Discard)

	gw := New(config.PaymentsConfig{}, &logger)
	assert.True(t, gw.Simulated())

	gw = New(config.PaymentsConfig{SecretKey: "sk_test_123"}, &logger)
	assert.False(t, gw.Simulated())
	assert.IsType(t, &StripeGateway{}, gw)
}

func TestSimulatedGateway(t *testing.T) {
	gw := NewSimulatedGateway()
	ctx := context.Background()

	intent, err := gw.CreateIntent(ctx, 12050, "USD", map[string]string{"booking_id": "b-1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(intent.ID, "sim_"))
	assert.True(t, intent.Succeeded())
	assert.Equal(t, int64(12050), intent.Amount)
	assert.Equal(t, "usd", intent.Currency)
	assert.Equal(t, "b-1", intent.BookingID)

	got, err := gw.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.True(t, got.Succeeded())

	_, err = gw.GetIntent(ctx, "pi_real")
	assert.ErrorIs(t, err, ErrIntentNotFound)

	_, err = gw.ParseWebhook([]byte(`{}`), "sig")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeGatewayRejectsUnsignedWebhook(t *testing.T) {
	logger := zerolog.New(io.Discard)

	gw := NewStripeGateway("sk_test_123", "", &logger)
	_, err := gw.ParseWebhook([]byte(`{"id":"evt_1"}`), "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	gw = NewStripeGateway("sk_test_123", "whsec_test", &logger)
	_, err = gw.ParseWebhook([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
