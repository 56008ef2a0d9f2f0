package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

// SQLSTATE, после которых транзакцию можно выполнить заново целиком.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// RetryConfig: сколько раз и с какими паузами повторять транзакцию.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig: до 5 попыток, паузы от 20мс до 500мс.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 20 * time.Millisecond,
		MaxBackoff:  500 * time.Millisecond,
	}
}

// IsRetryable: ошибка означает конфликт блокировок (deadlock)
// или сериализации, а не ошибку в данных.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateDeadlockDetected || pgErr.Code == sqlStateSerializationFailure
}

// WithTxRetry работает как WithTx, но при deadlock или serialization failure
// откатывает транзакцию и выполняет fn заново. fn должна быть готова
// к повторному вызову: всё, что она накопила в памяти, сбрасывается в её начале.
func WithTxRetry(ctx context.Context, db DBTX, cfg RetryConfig, fn func(tx pgx.Tx) error) error {
	return retry(ctx, cfg, func() error {
		return WithTx(ctx, db, fn)
	})
}

func retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		log.WithError(err).WithFields(log.Fields{
			"attempt":      attempt,
			"max_attempts": cfg.MaxAttempts,
		}).Warn("Конфликт транзакции, повтор")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1)), ctx))
}
