package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"techcare/internal/domain"

	"github.com/rs/zerolog"
)

var (
	ErrForbidden           = errors.New("you are not allowed to perform this action")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidTransition   = errors.New("invalid booking status transition")
	ErrBookingNotCompleted = errors.New("booking is not completed")
	ErrThrottled           = errors.New("too many requests, try again later")
	ErrAlreadyPaid         = errors.New("booking is already paid")
	ErrPaymentIncomplete   = errors.New("payment has not succeeded")
	ErrTierTooLow          = errors.New("loyalty tier too low for this reward")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// throttle consumes one slot of a per-user action budget. Guard failures let the
// request through.
func throttle(ctx context.Context, guard domain.Guard, logger *zerolog.Logger, key string, limit int, window time.Duration) error {
	if guard == nil || limit <= 0 {
		return nil
	}
	ok, err := guard.Allow(ctx, key, limit, window)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("throttle check failed")
		return nil
	}
	if !ok {
		return ErrThrottled
	}
	return nil
}

func publish(ctx context.Context, bus domain.EventPublisher, logger *zerolog.Logger, eventType string, payload any) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
