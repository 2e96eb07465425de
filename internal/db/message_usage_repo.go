package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vega/internal/types"
)

// MessageUsageRepository tracks the per-user daily message counter. One row
// exists per user and UTC day.
type MessageUsageRepository struct {
	db DBTX
}

// NewMessageUsageRepository creates a MessageUsageRepository backed by db.
func NewMessageUsageRepository(db DBTX) *MessageUsageRepository {
	return &MessageUsageRepository{db: db}
}

func usageLockKey(userID string) string {
	return "message_usage:" + userID
}

// dayBounds returns the UTC midnight starting day and the next midnight.
func dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// GetDailyMessageCount returns the number of messages counted for the day
// containing day. A user without a row has sent none.
func (r *MessageUsageRepository) GetDailyMessageCount(ctx context.Context, userID string, day time.Time) (int, error) {
	start, end := dayBounds(day)
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT message_count FROM message_usage
		 WHERE user_id = $1 AND date >= $2 AND date < $3
		 ORDER BY date DESC LIMIT 1`,
		userID,
		start,
		end,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to get message usage", err)
	}
	return count, nil
}

// IncrementDailyMessageCount adds one message to the day's counter, creating
// the row on the first message, and returns the new count.
//
// It first takes a transaction-scoped advisory lock on the user, so it must
// run inside a transaction; UsageCounter does that.
func (r *MessageUsageRepository) IncrementDailyMessageCount(ctx context.Context, userID string, day time.Time) (int, error) {
	start, end := dayBounds(day)

	if _, err := r.db.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		usageLockKey(userID),
	); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to lock message usage", err)
	}

	var count int
	err := r.db.QueryRow(ctx,
		`UPDATE message_usage
		 SET message_count = message_count + 1, updated_at = NOW()
		 WHERE user_id = $1 AND date >= $2 AND date < $3
		 RETURNING message_count`,
		userID,
		start,
		end,
	).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to increment message usage", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO message_usage (id, user_id, message_count, date, reset_at, created_at, updated_at)
		 VALUES ($1, $2, 1, $3, $4, NOW(), NOW())`,
		uuid.NewString(),
		userID,
		start,
		end,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to create message usage", err)
	}
	return 1, nil
}

// UsageCounter serves the usage gate. Reads go straight to the pool; each
// increment runs in its own transaction so the per-user lock is held until
// the day's row exists.
type UsageCounter struct {
	*MessageUsageRepository
	tm *TxManager
}

// NewUsageCounter creates a UsageCounter over pool.
func NewUsageCounter(pool DBTX, tm *TxManager) *UsageCounter {
	return &UsageCounter{MessageUsageRepository: NewMessageUsageRepository(pool), tm: tm}
}

// IncrementDailyMessageCount implements the usage gate's store.
func (c *UsageCounter) IncrementDailyMessageCount(ctx context.Context, userID string, day time.Time) (int, error) {
	var count int
	err := c.tm.RunInTx(ctx, func(ctx context.Context, tx DBTX) error {
		var err error
		count, err = NewMessageUsageRepository(tx).IncrementDailyMessageCount(ctx, userID, day)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
