package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"techcare/internal/config"
	"techcare/internal/database"
	"techcare/internal/email"
	"techcare/internal/metrics"
	"techcare/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	emailQueueKey      = "techcare:email:queue"
	emailDeadLetterKey = "techcare:email:deadletter"

	// claimLease bounds how long a claimed task stays invisible to other pollers.
	claimLease         = 5 * time.Minute
	statusWriteTimeout = 5 * time.Second
)

// EmailWorker delivers queued transactional emails. Tasks are persisted in the
// email_queue table and handed to the loop through Redis or an in-memory channel,
// with database polling picking up anything either path missed.
type EmailWorker struct {
	db           *database.DB
	sender       email.Sender
	renderer     *email.Renderer
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.EmailTask
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

func NewEmailWorker(
	db *database.DB,
	sender email.Sender,
	renderer *email.Renderer,
	redisClient *redis.Client,
	cfg config.WorkerConfig,
	logger *zerolog.Logger,
) *EmailWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	return &EmailWorker{
		db:           db,
		sender:       sender,
		renderer:     renderer,
		redis:        redisClient,
		retryPolicy:  PolicyFromConfig(cfg),
		queue:        make(chan models.EmailTask, models.WorkerQueueSize),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Enqueue persists an email task and schedules it via Redis or the in-memory queue.
func (w *EmailWorker) Enqueue(ctx context.Context, template, recipient string, data map[string]any) error {
	if template == "" {
		return errors.New("template is required")
	}
	if recipient == "" {
		return email.ErrNoRecipient
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.EmailTask{
		Template:  template,
		Recipient: recipient,
		Payload:   string(payload),
		Status:    models.TaskPending,
	}
	if err := w.db.CreateEmailTask(ctx, &task); err != nil {
		return fmt.Errorf("persist email task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, emailQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Str("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *EmailWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("email worker started")
	defer w.logger.Info().Msg("email worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		processed, err := w.drainPending(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending email tasks")
		}
		if processed == 0 {
			w.sleep(ctx)
		}
	}
}

// drainPending processes one batch of due tasks from the database.
func (w *EmailWorker) drainPending(ctx context.Context) (int, error) {
	tasks, err := w.db.GetPendingEmailTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *EmailWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *EmailWorker) tryLocalQueue() (models.EmailTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.EmailTask{}, false
	}
}

func (w *EmailWorker) tryRedis(ctx context.Context) (models.EmailTask, bool) {
	if w.redis == nil {
		return models.EmailTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, emailQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("redis BRPOP error")
		}
		return models.EmailTask{}, false
	}
	if len(res) != 2 {
		return models.EmailTask{}, false
	}
	var task models.EmailTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("decode redis task")
		return models.EmailTask{}, false
	}
	return task, true
}

func (w *EmailWorker) processTask(ctx context.Context, task *models.EmailTask) {
	claimed, err := w.db.ClaimEmailTask(ctx, task.ID, time.Now().Add(claimLease))
	if err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("claim email task")
		return
	}
	if !claimed {
		return
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(task.Payload), &data); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	msg, err := w.renderer.Render(task.Template, task.Recipient, data)
	if err != nil {
		w.failTask(ctx, task, err)
		return
	}

	if err := w.sender.Send(ctx, msg); err != nil {
		if email.IsPermanent(err) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncEmail(task.Template, "sent")
	if err := w.setStatus(ctx, task.ID, models.TaskCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("mark email completed")
	}
}

// setStatus records the outcome of a delivery even when ctx was cancelled mid-send.
func (w *EmailWorker) setStatus(ctx context.Context, id, status, errMsg string, nextRetryAt *time.Time) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	return w.db.UpdateEmailTaskStatus(ctx, id, status, errMsg, nextRetryAt)
}

func (w *EmailWorker) retryOrFail(ctx context.Context, task *models.EmailTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncEmail(task.Template, "retry")
	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.setStatus(ctx, task.ID, models.TaskRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("mark email retry")
	}
}

func (w *EmailWorker) failTask(ctx context.Context, task *models.EmailTask, cause error) {
	metrics.IncEmail(task.Template, "failed")
	w.logger.Warn().Err(cause).Str("task_id", task.ID).Str("template", task.Template).Msg("email delivery failed")
	if err := w.setStatus(ctx, task.ID, models.TaskFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("mark email failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *EmailWorker) pushRedis(ctx context.Context, key string, task models.EmailTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *EmailWorker) pushDeadLetter(ctx context.Context, task *models.EmailTask) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, emailDeadLetterKey, *task); err != nil {
		w.logger.Warn().Err(err).Str("task_id", task.ID).Msg("deadletter push")
	}
}
