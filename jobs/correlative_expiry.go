package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servihogar/servihogar/internal/invoicing"
	jobmetrics "github.com/servihogar/servihogar/internal/jobs"
)

// CorrelativeExpiryJob flips ACTIVE correlatives whose expiration date has
// passed to EXPIRED, so the allocator stops issuing numbers under a lapsed
// authorization.
type CorrelativeExpiryJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCorrelativeExpiryJob initialises the expiry scan handler.
func NewCorrelativeExpiryJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *CorrelativeExpiryJob {
	return &CorrelativeExpiryJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the expiry scan.
func (j *CorrelativeExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("correlative expiry: handler not configured")
	}

	tracker := j.Metrics.Track(TaskCorrelativeExpiry)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	tag, err := j.Pool.Exec(ctx, `
		UPDATE invoice_correlatives
		SET state = $1
		WHERE state = $2 AND expiration_date < $3
	`, invoicing.CorrelativeExpired, invoicing.CorrelativeActive, j.clock())
	if err != nil {
		resultErr = err
		j.Logger.Error("correlative expiry scan failed", slog.Any("error", err))
		return resultErr
	}

	expired := tag.RowsAffected()
	if expired > 0 {
		j.Metrics.AddExpiredCorrelatives(expired)
		j.Logger.Warn("correlatives expired", slog.Int64("count", expired))
	} else {
		j.Logger.Info("correlative expiry scan completed", slog.Int64("count", 0))
	}
	return resultErr
}
