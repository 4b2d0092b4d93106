package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/servihogar/servihogar/internal/jobs"
	"github.com/servihogar/servihogar/internal/ledger"
)

// LedgerIntegrityJob scans the movement ledger for duplicate completed
// commission postings. The partial unique index prevents new duplicates;
// this scan surfaces any row predating it or inserted around it.
type LedgerIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob initialises the integrity scan handler.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

type duplicateCommission struct {
	UserID      int64
	QuotationID int64
	Count       int
}

// Handle executes the integrity scan.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = 90
	}

	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	duplicates, err := j.scan(ctx, payload.WindowDays)
	if err != nil {
		resultErr = err
		j.Logger.Error("ledger integrity scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, d := range duplicates {
		j.Logger.Warn("duplicate completed commission",
			slog.Int64("user_id", d.UserID),
			slog.Int64("quotation_id", d.QuotationID),
			slog.Int("count", d.Count),
		)
	}
	j.Metrics.AddDuplicateCommissions(len(duplicates))
	j.Logger.Info("ledger integrity scan completed",
		slog.Int("duplicates", len(duplicates)),
		slog.Int("window_days", payload.WindowDays),
	)
	return resultErr
}

func (j *LedgerIntegrityJob) scan(ctx context.Context, windowDays int) ([]duplicateCommission, error) {
	from := time.Now().UTC().AddDate(0, 0, -windowDays)
	rows, err := j.Pool.Query(ctx, `
		SELECT user_id, quotation_id, COUNT(*)
		FROM movements
		WHERE type = $1 AND state = $2 AND quotation_id IS NOT NULL AND created_at >= $3
		GROUP BY user_id, quotation_id
		HAVING COUNT(*) > 1
	`, ledger.TypeReferralIncome, ledger.StateCompleted, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []duplicateCommission
	for rows.Next() {
		var d duplicateCommission
		if err := rows.Scan(&d.UserID, &d.QuotationID, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
