package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"vega/internal/types"
)

// PaymentRepository stores provider transactions. Rows are keyed by the
// provider transaction id and are never deleted.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a PaymentRepository backed by db.
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// nullIfEmpty stores empty optional strings as SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UpsertPayment inserts the transaction or, on redelivery, overwrites its
// outcome. Repeated calls with the same payment leave one identical row.
func (r *PaymentRepository) UpsertPayment(ctx context.Context, p *types.Payment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payment (
			id, created_at, updated_at, currency, status, total_amount,
			payment_method, payment_method_type, card_last_four, card_type,
			card_first_six, card_exp_date, error_code, error_message,
			subscription_id, cloudpayments_transaction_id, cloudpayments_invoice_id,
			cloudpayments_subscription_id, payment_provider, test_mode,
			description, metadata, user_id
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $1, $16,
			$15, 'cloudpayments', $17,
			$18, $19, $20
		)
		ON CONFLICT (id) DO UPDATE SET
			updated_at = EXCLUDED.updated_at,
			status = EXCLUDED.status,
			total_amount = EXCLUDED.total_amount,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			subscription_id = COALESCE(EXCLUDED.subscription_id, payment.subscription_id),
			metadata = EXCLUDED.metadata,
			user_id = COALESCE(EXCLUDED.user_id, payment.user_id)`,
		p.ID,
		p.CreatedAt,
		p.UpdatedAt,
		p.Currency,
		p.Status,
		p.TotalAmount,
		nullIfEmpty(p.PaymentMethod),
		nullIfEmpty(p.PaymentMethodType),
		nullIfEmpty(p.CardLastFour),
		nullIfEmpty(p.CardType),
		nullIfEmpty(p.CardFirstSix),
		nullIfEmpty(p.CardExpDate),
		nullIfEmpty(p.ErrorCode),
		nullIfEmpty(p.ErrorMessage),
		nullIfEmpty(p.SubscriptionID),
		nullIfEmpty(p.InvoiceID),
		p.TestMode,
		nullIfEmpty(p.Description),
		p.Metadata,
		nullIfEmpty(p.UserID),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert payment", err)
	}
	return nil
}

// GetPaymentByID returns the payment or not_found_payment.
func (r *PaymentRepository) GetPaymentByID(ctx context.Context, id string) (*types.Payment, error) {
	var p types.Payment
	err := r.db.QueryRow(ctx,
		`SELECT id, created_at, COALESCE(updated_at, created_at), currency, COALESCE(status, ''),
		        total_amount, COALESCE(error_code, ''), COALESCE(error_message, ''),
		        COALESCE(subscription_id, ''), COALESCE(test_mode, false), metadata,
		        COALESCE(user_id, '')
		 FROM payment WHERE id = $1`,
		id,
	).Scan(
		&p.ID,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Currency,
		&p.Status,
		&p.TotalAmount,
		&p.ErrorCode,
		&p.ErrorMessage,
		&p.SubscriptionID,
		&p.TestMode,
		&p.Metadata,
		&p.UserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPayment, "payment not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get payment", err)
	}
	return &p, nil
}
