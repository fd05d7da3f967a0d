package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"techcare/internal/config"
	"techcare/internal/database"
	"techcare/internal/events"
	"techcare/internal/metrics"
	"techcare/internal/models"
	"techcare/internal/payment"
	"techcare/internal/repository"
	"techcare/internal/service"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-jwt-secret-with-enough-bytes!"
	testIssuer = "https://auth.techcare.test"
)

var testRewards = []models.Reward{
	{ID: "discount-10", Name: "10% off", PointsCost: 50, RewardType: "discount_percent", Value: 10, ValidDays: 30, IsActive: true},
}

type testEnv struct {
	t      *testing.T
	server *Server
	ts     *httptest.Server
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewSQLite(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		App:      config.AppConfig{Version: "test"},
		Auth:     config.AuthConfig{JWTSecret: testSecret, Issuer: testIssuer},
		Throttle: config.ThrottleConfig{BidsPerHour: 100, BookingsPerDay: 100, ReviewsPerDay: 100},
		Loyalty:  config.LoyaltyConfig{PointsPerUnit: 1, SignupBonus: 100, Tiers: config.DefaultTiers()},
	}
	for _, m := range mutate {
		m(cfg)
	}

	bus := events.NewEventBus(&logger)
	guard := repository.NewMemoryGuard()
	loyalty := service.NewLoyaltyService(db, bus, cfg.Loyalty, testRewards, &logger)
	svc := Services{
		Accounts:      service.NewAccountService(db, loyalty, &logger),
		Technicians:   service.NewTechnicianService(db, &logger),
		Bookings:      service.NewBookingService(db, guard, bus, loyalty, cfg.Throttle, &logger),
		Bids:          service.NewBidService(db, guard, bus, cfg.Throttle, &logger),
		Reviews:       service.NewReviewService(db, guard, bus, cfg.Throttle, &logger),
		Loyalty:       loyalty,
		Notifications: service.NewNotificationService(db, nil, "usd", "https://techcare.test", &logger),
		Payments:      service.NewPaymentService(db, payment.NewSimulatedGateway(), guard, bus, "usd", &logger),
	}
	svc.Notifications.Subscribe(bus)

	s := NewServer(cfg, svc, db, &logger)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{t: t, server: s, ts: ts}
}

type caller struct {
	id    string
	token string
}

func signClaims(t *testing.T, c jwt.Claims, extra map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(testSecret)},
		(&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)

	raw, err := jwt.Signed(signer).Claims(c).Claims(extra).Serialize()
	require.NoError(t, err)
	return raw
}

// signToken issues a token whose admin role, if any, is granted by the provider.
func signToken(t *testing.T, c jwt.Claims, role, name, email string) string {
	t.Helper()
	claims := map[string]any{
		"email":         email,
		"user_metadata": map[string]string{"role": role, "full_name": name},
	}
	if role == models.RoleAdmin {
		claims["app_metadata"] = map[string]string{"role": role}
	}
	return signClaims(t, c, claims)
}

func newCaller(t *testing.T, role string) caller {
	t.Helper()
	id := uuid.NewString()
	token := signToken(t, jwt.Claims{
		Subject:  id,
		Issuer:   testIssuer,
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Expiry:   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, role, gofakeit.Name(), gofakeit.Email())
	return caller{id: id, token: token}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *testEnv) do(method, path string, who *caller, body any) (*http.Response, apiResponse) {
	e.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+who.token)
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	var out apiResponse
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func decodeData[T any](t *testing.T, r apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(http.MethodGet, "/api/profile", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)

	bogus := caller{token: "not-a-jwt"}
	resp, _ = env.do(http.MethodGet, "/api/profile", &bogus, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired := caller{token: signToken(t, jwt.Claims{
		Subject: uuid.NewString(),
		Issuer:  testIssuer,
		Expiry:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}, models.RoleCustomer, "x", "x@example.com")}
	resp, _ = env.do(http.MethodGet, "/api/profile", &expired, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	wrongIssuer := caller{token: signToken(t, jwt.Claims{
		Subject: uuid.NewString(),
		Issuer:  "https://elsewhere.test",
		Expiry:  jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, models.RoleCustomer, "x", "x@example.com")}
	resp, _ = env.do(http.MethodGet, "/api/profile", &wrongIssuer, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfileProvisionedFromToken(t *testing.T) {
	env := newTestEnv(t)
	customer := newCaller(t, models.RoleCustomer)

	resp, body := env.do(http.MethodGet, "/api/profile", &customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decodeData[models.Profile](t, body)
	assert.Equal(t, customer.id, p.ID)
	assert.Equal(t, models.RoleCustomer, p.Role)

	resp, body = env.do(http.MethodGet, "/api/loyalty", &customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeData[service.LoyaltySummary](t, body)
	assert.EqualValues(t, 100, summary.Account.CurrentPoints)

	resp, body = env.do(http.MethodPut, "/api/profile", &customer, map[string]string{"full_name": "Ada Lovelace"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ada Lovelace", decodeData[models.Profile](t, body).FullName)

	resp, _ = env.do(http.MethodPut, "/api/profile", &customer, map[string]string{"nickname": "ada"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	customer := newCaller(t, models.RoleCustomer)
	tech := newCaller(t, models.RoleTechnician)

	resp, _ := env.do(http.MethodPut, "/api/technicians/me", &tech, service.TechnicianProfile{
		Specializations: []string{"phone"},
		City:            "Lisbon",
		HourlyRate:      35,
		YearsExperience: 4,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(http.MethodPost, "/api/bookings", &customer, service.NewBooking{
		DeviceType:       "phone",
		DeviceBrand:      "Acme",
		DeviceModel:      "X1",
		IssueDescription: "battery drains fast",
		ServiceAddress:   "Rua Augusta 1",
		EstimatedCost:    80,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	booking := decodeData[models.Booking](t, body)
	assert.Equal(t, models.StatusPending, booking.Status)

	resp, body = env.do(http.MethodGet, "/api/bookings/open", &tech, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]models.Booking](t, body), 1)

	resp, body = env.do(http.MethodPost, "/api/bookings/"+booking.ID+"/bids", &tech, service.NewBid{Amount: 75, Message: "same day", EstimatedDays: 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bid := decodeData[models.Bid](t, body)

	resp, _ = env.do(http.MethodPost, "/api/bookings/"+booking.ID+"/bids", &tech, service.NewBid{Amount: 70})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(http.MethodPost, "/api/bids/"+bid.ID+"/accept", &tech, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = env.do(http.MethodPost, "/api/bids/"+bid.ID+"/accept", &customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accepted := decodeData[struct {
		Booking models.Booking `json:"booking"`
	}](t, body).Booking
	assert.Equal(t, models.StatusBidAccepted, accepted.Status)
	assert.Equal(t, 75.0, accepted.Price)

	status := func(who *caller, to string, version int64) (*http.Response, models.Booking) {
		resp, body := env.do(http.MethodPatch, "/api/bookings/"+booking.ID+"/status", who, map[string]any{"status": to, "version": version})
		var b models.Booking
		if resp.StatusCode == http.StatusOK {
			b = decodeData[models.Booking](t, body)
		}
		return resp, b
	}

	resp, _ = status(&customer, models.StatusCompleted, 0)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = status(&tech, models.StatusCompleted, 0)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = status(&customer, models.StatusConfirmed, accepted.Version+10)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, current := status(&customer, models.StatusConfirmed, accepted.Version)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, current = status(&tech, models.StatusInProgress, current.Version)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, current = status(&tech, models.StatusCompleted, current.Version)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusCompleted, current.Status)

	resp, body = env.do(http.MethodPost, "/api/payments/intents", &customer, map[string]string{"booking_id": booking.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	intent := decodeData[models.PaymentIntent](t, body)
	assert.EqualValues(t, 7500, intent.Amount)

	resp, body = env.do(http.MethodPost, "/api/payments/confirm", &customer, map[string]string{
		"booking_id":        booking.ID,
		"payment_intent_id": intent.ID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PaymentPaid, decodeData[models.Booking](t, body).PaymentStatus)

	resp, _ = env.do(http.MethodPost, "/api/payments/intents", &customer, map[string]string{"booking_id": booking.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = env.do(http.MethodPost, "/api/reviews", &customer, service.NewReview{BookingID: booking.ID, Rating: 5, Comment: "great"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = env.do(http.MethodGet, "/api/technicians/"+tech.id, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	technician := decodeData[models.Technician](t, body)
	assert.Equal(t, 5.0, technician.Rating)
	assert.Equal(t, 1, technician.ReviewCount)

	resp, body = env.do(http.MethodGet, "/api/loyalty", &customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 175, decodeData[service.LoyaltySummary](t, body).Account.CurrentPoints)

	resp, body = env.do(http.MethodGet, "/api/notifications/unread-count", &tech, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Positive(t, decodeData[map[string]int64](t, body)["count"])
}

func TestBookingValidationAndNotFound(t *testing.T) {
	env := newTestEnv(t)
	customer := newCaller(t, models.RoleCustomer)

	resp, body := env.do(http.MethodPost, "/api/bookings", &customer, service.NewBooking{DeviceType: "phone"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, body.Success)

	resp, _ = env.do(http.MethodGet, "/api/bookings/"+uuid.NewString(), &customer, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(http.MethodGet, "/api/bookings?limit=abc", &customer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSelfClaimedAdminIsCustomer(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.NewString()
	who := caller{id: id, token: signClaims(t, jwt.Claims{
		Subject: id,
		Issuer:  testIssuer,
		Expiry:  jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, map[string]any{"user_metadata": map[string]string{"role": models.RoleAdmin}})}

	resp, _ := env.do(http.MethodGet, "/api/admin/users", &who, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := env.do(http.MethodGet, "/api/profile", &who, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.RoleCustomer, decodeData[models.Profile](t, body).Role)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	admin := newCaller(t, models.RoleAdmin)
	customer := newCaller(t, models.RoleCustomer)
	tech := newCaller(t, models.RoleTechnician)

	resp, _ := env.do(http.MethodGet, "/api/admin/stats", &customer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(http.MethodPut, "/api/technicians/me", &tech, service.TechnicianProfile{Specializations: []string{"laptop"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(http.MethodPost, "/api/bookings", &customer, service.NewBooking{
		DeviceType:       "laptop",
		DeviceBrand:      "Acme",
		DeviceModel:      "Book",
		IssueDescription: "no power",
		ServiceAddress:   "Main St 5",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	booking := decodeData[models.Booking](t, body)

	resp, body = env.do(http.MethodGet, "/api/admin/stats", &admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeData[models.AdminStats](t, body)
	assert.EqualValues(t, 1, stats.TotalBookings)

	resp, body = env.do(http.MethodGet, "/api/admin/users?role=customer", &admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]models.Profile](t, body), 1)

	resp, _ = env.do(http.MethodPatch, "/api/admin/technicians/"+tech.id+"/verify", &admin, map[string]bool{"verified": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(http.MethodGet, "/api/technicians?verified=true", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]models.Technician](t, body), 1)

	resp, body = env.do(http.MethodPost, "/api/admin/bookings/"+booking.ID+"/assign", &admin, map[string]string{"technician_id": tech.id})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusConfirmed, decodeData[models.Booking](t, body).Status)

	resp, body = env.do(http.MethodGet, "/api/admin/bookings?status=confirmed", &admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]models.Booking](t, body), 1)

	resp, _ = env.do(http.MethodGet, "/api/admin/bookings?from=yesterday", &admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(http.MethodGet, "/api/admin/emails/failed", &customer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, body = env.do(http.MethodGet, "/api/admin/emails/failed", &admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeData[[]models.EmailTask](t, body))

	resp, _ = env.do(http.MethodDelete, "/api/admin/users/"+customer.id, &admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(http.MethodDelete, "/api/admin/users/"+customer.id, &admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportBookings(t *testing.T) {
	env := newTestEnv(t)
	admin := newCaller(t, models.RoleAdmin)

	from := time.Now().UTC().AddDate(0, 0, -7).Format(dayLayout)
	to := time.Now().UTC().Format(dayLayout)

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/admin/bookings/export?from=%s&to=%s", env.ts.URL, from, to), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+admin.token)
	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), fmt.Sprintf("bookings_%s_to_%s.xlsx", from, to))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("PK")))

	resp2, _ := env.do(http.MethodGet, "/api/admin/bookings/export?from="+to+"&to="+from, &admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestWebhookRejectedWithoutSignature(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(http.MethodPost, "/api/payments/webhook", nil, map[string]string{"type": "payment_intent.succeeded"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid webhook signature", body.Error)
}

// requestsWithCode sums the HTTP request counter across routes for one status code.
func requestsWithCode(t *testing.T, code string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != "techcare_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "code" && label.GetValue() == code {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func TestRateLimit(t *testing.T) {
	metrics.Register()
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 2}
	})
	before := requestsWithCode(t, "429")

	for i := 0; i < 2; i++ {
		resp, _ := env.do(http.MethodGet, "/health", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := env.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.False(t, body.Success)
	assert.Equal(t, before+1, requestsWithCode(t, "429"), "rejected requests are counted")
}

func TestRateLimiterCleanup(t *testing.T) {
	l := newRateLimiter(config.RateLimitConfig{RPS: 1})
	l.getLimiter("a")
	l.getLimiter("b")
	assert.Equal(t, 0, l.cleanup(time.Hour))
	assert.Equal(t, 2, l.cleanup(0))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.HTTP.CORSOrigins = []string{"https://app.techcare.test"}
	})

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/api/bookings", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.techcare.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.techcare.test", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := zerolog.Nop()
	h := recoveryMiddleware(&logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
