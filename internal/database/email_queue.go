package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"techcare/internal/models"

	"github.com/google/uuid"
)

const emailTaskColumns = `id, template, recipient, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func scanEmailTasks(rows *sql.Rows) ([]models.EmailTask, error) {
	defer rows.Close()

	var tasks []models.EmailTask
	for rows.Next() {
		var t models.EmailTask
		err := rows.Scan(&t.ID, &t.Template, &t.Recipient, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) CreateEmailTask(ctx context.Context, task *models.EmailTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	task.CreatedAt = now()

	_, err := db.exec(ctx, `
		INSERT INTO email_queue (id, template, recipient, payload, status, retry_count, last_error, created_at, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Template, task.Recipient, task.Payload, task.Status, task.RetryCount,
		task.LastError, task.CreatedAt, task.NextRetryAt)
	if err != nil {
		return fmt.Errorf("failed to create email task: %w", err)
	}
	return nil
}

// GetPendingEmailTasks returns pending and due retry tasks, plus processing tasks
// whose claim lease has run out, oldest first.
func (db *DB) GetPendingEmailTasks(ctx context.Context, limit int) ([]models.EmailTask, error) {
	ts := now()
	rows, err := db.query(ctx, `SELECT `+emailTaskColumns+` FROM email_queue
		WHERE (status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?))
			OR (status = ? AND next_retry_at <= ?)
		ORDER BY created_at ASC LIMIT ?`,
		models.TaskPending, models.TaskRetry, ts, models.TaskProcessing, ts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending email tasks: %w", err)
	}
	return scanEmailTasks(rows)
}

// ClaimEmailTask moves a pending or retry task to processing until leaseUntil. A
// processing task whose lease expired can be claimed again. It reports false when
// another consumer holds the task.
func (db *DB) ClaimEmailTask(ctx context.Context, id string, leaseUntil time.Time) (bool, error) {
	res, err := db.exec(ctx, `UPDATE email_queue SET status = ?, next_retry_at = ?
		WHERE id = ? AND (status IN (?, ?) OR (status = ? AND next_retry_at <= ?))`,
		models.TaskProcessing, leaseUntil.UTC(), id, models.TaskPending, models.TaskRetry, models.TaskProcessing, now())
	if err != nil {
		return false, fmt.Errorf("failed to claim email task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (db *DB) UpdateEmailTaskStatus(ctx context.Context, id, status, errMsg string, nextRetryAt *time.Time) error {
	var (
		query string
		args  []any
	)
	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}
	if nextRetryAt != nil {
		utc := nextRetryAt.UTC()
		nextRetryAt = &utc
	}

	switch status {
	case models.TaskRetry:
		query = `UPDATE email_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, lastErr, nextRetryAt, id}
	case models.TaskCompleted, models.TaskFailed:
		ts := now()
		query = `UPDATE email_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, lastErr, nextRetryAt, &ts, id}
	default:
		query = `UPDATE email_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, lastErr, nextRetryAt, id}
	}

	res, err := db.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update email task status: %w", err)
	}
	return expectOne(res, "email task")
}

func (db *DB) GetFailedEmailTasks(ctx context.Context) ([]models.EmailTask, error) {
	rows, err := db.query(ctx, `SELECT `+emailTaskColumns+` FROM email_queue WHERE status = ? ORDER BY created_at DESC`,
		models.TaskFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed email tasks: %w", err)
	}
	return scanEmailTasks(rows)
}

func (db *DB) GetEmailTask(ctx context.Context, id string) (*models.EmailTask, error) {
	rows, err := db.query(ctx, `SELECT `+emailTaskColumns+` FROM email_queue WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get email task: %w", err)
	}
	tasks, err := scanEmailTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("email task: %w", ErrNotFound)
	}
	return &tasks[0], nil
}
