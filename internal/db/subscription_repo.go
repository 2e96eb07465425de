package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"vega/internal/types"
)

// SubscriptionRepository manages the subscription table. Column names keep
// the camelCase of the original schema and must be quoted.
//
// Concurrent deliveries for the same subscription serialise on the primary
// key through ON CONFLICT DO UPDATE; the last write wins.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a SubscriptionRepository backed by db.
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `s.id, s."createdAt", s."modifiedAt", s."updatedAt", s.amount, s.currency,
	s."recurringInterval", s.status, s."currentPeriodStart", s."currentPeriodEnd",
	s."cancelAtPeriodEnd", s."canceledAt", s."startedAt", s."endedAt",
	COALESCE(s."customerId", ''), s."productId", COALESCE(s."checkoutId", ''), s.metadata,
	COALESCE(s.cloudpayments_subscription_id, ''), COALESCE(s.cloudpayments_account_id, ''),
	s.payment_provider, s.max_periods,
	COALESCE(s.successful_transactions, 0), COALESCE(s.failed_transactions, 0),
	s.last_transaction_date, s.next_transaction_date, s.paused_until, COALESCE(s."userId", '')`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(
		&s.ID,
		&s.CreatedAt,
		&s.ModifiedAt,
		&s.UpdatedAt,
		&s.Amount,
		&s.Currency,
		&s.RecurringInterval,
		&s.Status,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.CanceledAt,
		&s.StartedAt,
		&s.EndedAt,
		&s.CustomerID,
		&s.ProductID,
		&s.CheckoutID,
		&s.Metadata,
		&s.CloudPaymentsSubscriptionID,
		&s.CloudPaymentsAccountID,
		&s.PaymentProvider,
		&s.MaxPeriods,
		&s.SuccessfulTransactions,
		&s.FailedTransactions,
		&s.LastTransactionDate,
		&s.NextTransactionDate,
		&s.PausedUntil,
		&s.UserID,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) querySubscriptions(ctx context.Context, op string, sql string, args ...any) ([]*types.Subscription, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to "+op, err)
	}
	defer rows.Close()

	var subs []*types.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to "+op, err)
	}
	return subs, nil
}

// UpsertSubscription records a successful recurring payment. A new row is
// created active; an existing row is reactivated with the new period and
// its successful transaction counter incremented. Reactivation clears any
// earlier cancellation, pause or expiry and takes the charged product.
func (r *SubscriptionRepository) UpsertSubscription(ctx context.Context, u types.SubscriptionUpsert) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscription (
			id, "createdAt", "modifiedAt", "updatedAt", amount, currency, "recurringInterval",
			status, "currentPeriodStart", "currentPeriodEnd", "cancelAtPeriodEnd", "startedAt",
			"customerId", "productId", metadata, cloudpayments_subscription_id,
			cloudpayments_account_id, payment_provider, successful_transactions,
			failed_transactions, last_transaction_date, "userId"
		) VALUES (
			$1, $2, $2, $2, $3, $4, 'month',
			'active', $5, $6, false, $5,
			$7, $8, $9, $1,
			$7, 'cloudpayments', 1,
			0, $2, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			status = 'active',
			"cancelAtPeriodEnd" = false,
			"canceledAt" = NULL,
			"endedAt" = NULL,
			paused_until = NULL,
			"productId" = EXCLUDED."productId",
			"currentPeriodStart" = EXCLUDED."currentPeriodStart",
			"currentPeriodEnd" = EXCLUDED."currentPeriodEnd",
			"modifiedAt" = EXCLUDED."modifiedAt",
			"updatedAt" = EXCLUDED."updatedAt",
			successful_transactions = COALESCE(subscription.successful_transactions, 0) + 1,
			last_transaction_date = EXCLUDED.last_transaction_date`,
		u.ID,
		u.TransactionAt,
		u.Amount,
		u.Currency,
		u.PeriodStart,
		u.PeriodEnd,
		u.AccountID,
		u.ProductID,
		u.Metadata,
		u.UserID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}
	return nil
}

// ListSubscriptionsByUser returns the user's subscriptions, newest first.
func (r *SubscriptionRepository) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*types.Subscription, error) {
	return r.querySubscriptions(ctx, "list subscriptions",
		`SELECT `+subscriptionColumns+`
		 FROM subscription s
		 WHERE s."userId" = $1
		 ORDER BY s."createdAt" DESC`,
		userID,
	)
}

// GetSubscriptionForUser finds a subscription by its provider id, scoped to
// its owner. A subscription owned by someone else is reported as not found.
func (r *SubscriptionRepository) GetSubscriptionForUser(ctx context.Context, userID, providerSubscriptionID string) (*types.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscription s
		 WHERE s."userId" = $1 AND s.cloudpayments_subscription_id = $2`,
		userID,
		providerSubscriptionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get subscription", err)
	}
	return s, nil
}

// UpdateSubscriptionPeriod applies a management action to a row. Nil
// fields in u leave their column unchanged.
func (r *SubscriptionRepository) UpdateSubscriptionPeriod(ctx context.Context, id string, u types.SubscriptionPeriodUpdate) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscription
		 SET status = $2,
		     "currentPeriodEnd" = COALESCE($3, "currentPeriodEnd"),
		     "cancelAtPeriodEnd" = COALESCE($4, "cancelAtPeriodEnd"),
		     "canceledAt" = COALESCE($5, "canceledAt"),
		     paused_until = CASE WHEN $7 THEN NULL ELSE COALESCE($6, paused_until) END,
		     "modifiedAt" = NOW(),
		     "updatedAt" = NOW()
		 WHERE id = $1`,
		id,
		u.Status,
		u.CurrentPeriodEnd,
		u.CancelAtPeriodEnd,
		u.CanceledAt,
		u.PausedUntil,
		u.ClearPausedUntil,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}

// ExpireLapsedSubscriptions marks every active, canceled or paused row whose
// period ended before now as expired. It returns the distinct owners of the
// rows it changed.
func (r *SubscriptionRepository) ExpireLapsedSubscriptions(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE subscription
		 SET status = 'expired', "endedAt" = $1, "updatedAt" = $1
		 WHERE status IN ('active', 'canceled', 'paused')
		   AND "currentPeriodEnd" < $1
		 RETURNING COALESCE("userId", '')`,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to expire subscriptions", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan expired subscription", err)
		}
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to expire subscriptions", err)
	}
	return userIDs, nil
}

// ListSubscriptionsDueForSync returns active provider subscriptions whose
// next charge should already have happened.
func (r *SubscriptionRepository) ListSubscriptionsDueForSync(ctx context.Context, now time.Time, limit int) ([]*types.Subscription, error) {
	return r.querySubscriptions(ctx, "list subscriptions due for sync",
		`SELECT `+subscriptionColumns+`
		 FROM subscription s
		 WHERE s.status = 'active'
		   AND s.payment_provider = 'cloudpayments'
		   AND s.cloudpayments_subscription_id IS NOT NULL
		   AND (s.next_transaction_date < $1
		        OR (s.next_transaction_date IS NULL AND s."currentPeriodEnd" < $1))
		 ORDER BY s."currentPeriodEnd"
		 LIMIT $2`,
		now,
		limit,
	)
}

// ApplyProviderState copies the provider's transaction counters and dates.
func (r *SubscriptionRepository) ApplyProviderState(ctx context.Context, id string, st types.ProviderSubscriptionState) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscription
		 SET successful_transactions = $2,
		     failed_transactions = $3,
		     last_transaction_date = COALESCE($4, last_transaction_date),
		     next_transaction_date = $5,
		     "updatedAt" = NOW()
		 WHERE id = $1`,
		id,
		st.SuccessfulTransactions,
		st.FailedTransactions,
		st.LastTransactionDate,
		st.NextTransactionDate,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply provider state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}
