package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"techcare/internal/config"
	"techcare/internal/database"
	"techcare/internal/email"
	"techcare/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (s *fakeSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewSQLite(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestWorker(t *testing.T, sender email.Sender, client *redis.Client, cfg config.WorkerConfig) (*EmailWorker, *database.DB) {
	t.Helper()
	db := newTestDB(t)
	renderer, err := email.NewRenderer()
	require.NoError(t, err)
	return NewEmailWorker(db, sender, renderer, client, cfg, nil), db
}

var bookingData = map[string]any{"name": "Sam", "device_type": "phone", "link": "https://techcare.app/bookings/1"}

func TestProcessTaskSuccess(t *testing.T) {
	sender := &fakeSender{}
	w, db := newTestWorker(t, sender, nil, config.WorkerConfig{})
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, email.TemplateBookingCreated, "sam@example.com", bookingData))

	task, ok := w.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	w.processTask(ctx, &task)

	stored, err := db.GetEmailTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Nil(t, stored.NextRetryAt)
	assert.NotNil(t, stored.ProcessedAt)

	require.Equal(t, 1, sender.count())
	assert.Equal(t, "sam@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Subject, "phone")

	// A second delivery of the same task is ignored once claimed.
	w.processTask(ctx, &task)
	assert.Equal(t, 1, sender.count())
}

func TestProcessTaskRetry(t *testing.T) {
	sender := &fakeSender{err: errors.New("provider unavailable")}
	w, db := newTestWorker(t, sender, nil, config.WorkerConfig{MaxRetries: 3, InitialDelay: time.Second})
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, email.TemplateBookingCreated, "sam@example.com", bookingData))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)

	before := time.Now()
	w.processTask(ctx, &task)

	stored, err := db.GetEmailTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRetry, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.NextRetryAt)
	assert.True(t, stored.NextRetryAt.After(before))
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "provider unavailable", *stored.LastError)
}

func TestProcessTaskFailsAfterMaxRetries(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	sender := &fakeSender{err: errors.New("provider unavailable")}
	w, db := newTestWorker(t, sender, client, config.WorkerConfig{MaxRetries: 2})
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, email.TemplateBookingCreated, "sam@example.com", bookingData))
	task, ok := w.tryRedis(ctx)
	require.True(t, ok, "expected task in redis queue")

	task.RetryCount = 1
	require.NoError(t, db.UpdateEmailTaskStatus(ctx, task.ID, models.TaskRetry, "earlier", nil))
	w.processTask(ctx, &task)

	stored, err := db.GetEmailTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, stored.Status)

	dead, err := client.LRange(ctx, emailDeadLetterKey, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, dead, 1)
	var deadTask models.EmailTask
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &deadTask))
	assert.Equal(t, task.ID, deadTask.ID)
}

func TestProcessTaskPermanentFailure(t *testing.T) {
	sender := &fakeSender{err: &email.PermanentError{StatusCode: 422, Body: "invalid address"}}
	w, db := newTestWorker(t, sender, nil, config.WorkerConfig{MaxRetries: 5})
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, email.TemplateBookingCreated, "bad@example.com", bookingData))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	stored, err := db.GetEmailTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, stored.Status)
}

func TestProcessTaskUnknownTemplate(t *testing.T) {
	sender := &fakeSender{}
	w, db := newTestWorker(t, sender, nil, config.WorkerConfig{})
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, "no_such_template", "sam@example.com", nil))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	stored, err := db.GetEmailTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, stored.Status)
	assert.Zero(t, sender.count())
}

// cancelOnSend cancels the worker context once the message is handed over.
type cancelOnSend struct {
	fakeSender
	cancel context.CancelFunc
}

func (s *cancelOnSend) Send(ctx context.Context, msg email.Message) error {
	s.cancel()
	return s.fakeSender.Send(ctx, msg)
}

func TestProcessTaskRecordsStatusAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &cancelOnSend{cancel: cancel}
	w, db := newTestWorker(t, sender, nil, config.WorkerConfig{})

	require.NoError(t, w.Enqueue(ctx, email.TemplateBookingCreated, "sam@example.com", bookingData))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	stored, err := db.GetEmailTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, stored.Status)
}

func TestDrainPendingReclaimsExpiredLease(t *testing.T) {
	sender := &fakeSender{}
	w, db := newTestWorker(t, sender, nil, config.WorkerConfig{})
	ctx := context.Background()

	task := &models.EmailTask{Template: email.TemplateBookingCreated, Recipient: "stuck@example.com", Payload: `{"device_type":"laptop"}`}
	require.NoError(t, db.CreateEmailTask(ctx, task))

	// Claimed by a worker that never finished.
	claimed, err := db.ClaimEmailTask(ctx, task.ID, time.Now().Add(-time.Second))
	require.NoError(t, err)
	require.True(t, claimed)

	processed, err := w.drainPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, sender.count())

	stored, err := db.GetEmailTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, stored.Status)
}

func TestEnqueueValidation(t *testing.T) {
	w, _ := newTestWorker(t, &fakeSender{}, nil, config.WorkerConfig{})
	ctx := context.Background()

	assert.Error(t, w.Enqueue(ctx, "", "a@example.com", nil))
	assert.ErrorIs(t, w.Enqueue(ctx, email.TemplateBookingCreated, "", nil), email.ErrNoRecipient)
}

func TestStartDrainsPolledTasks(t *testing.T) {
	sender := &fakeSender{}
	w, db := newTestWorker(t, sender, nil, config.WorkerConfig{PollInterval: 10 * time.Millisecond})

	// Tasks written straight to the table are only reachable through polling.
	for i := 0; i < 3; i++ {
		require.NoError(t, db.CreateEmailTask(context.Background(), &models.EmailTask{
			Template:  email.TemplateBookingCreated,
			Recipient: "poll@example.com",
			Payload:   `{"device_type":"tablet"}`,
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sender.count() == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestRetryPolicy(t *testing.T) {
	p := PolicyFromConfig(config.WorkerConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2})
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 5*time.Second, p.NextDelay(4))
	assert.False(t, p.Exhausted(4))
	assert.True(t, p.Exhausted(5))
}
