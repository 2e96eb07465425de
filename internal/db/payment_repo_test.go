package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vega/internal/types"
)

func TestPaymentRepository_UpsertPayment(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPaymentRepository(db)

	now := time.Now().UTC()
	p := &types.Payment{
		ID:            "1001",
		UserID:        "user_1",
		CreatedAt:     now,
		UpdatedAt:     now,
		Currency:      "RUB",
		Status:        types.PaymentSucceeded,
		TotalAmount:   99000,
		PaymentMethod: "card",
		CardLastFour:  "4242",
		Metadata:      types.Metadata{"testMode": true},
	}

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.UpsertPayment(context.Background(), p))

	args := db.Calls[0].Arguments.Get(2).([]any)
	require.Len(t, args, 20)
	assert.Equal(t, "1001", args[0])
	assert.Equal(t, types.PaymentSucceeded, args[4])
	assert.Equal(t, "card", *args[6].(*string))
	assert.Nil(t, args[12], "empty error code is stored as NULL")
	assert.Equal(t, "user_1", *args[19].(*string))
	db.AssertExpectations(t)
}

func TestPaymentRepository_UpsertPayment_Idempotent(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPaymentRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Twice()

	p := &types.Payment{ID: "1001", Status: types.PaymentFailed, ErrorCode: "5051", ErrorMessage: "Insufficient funds"}
	require.NoError(t, repo.UpsertPayment(context.Background(), p))
	require.NoError(t, repo.UpsertPayment(context.Background(), p))

	first := db.Calls[0].Arguments.Get(2).([]any)
	second := db.Calls[1].Arguments.Get(2).([]any)
	assert.Equal(t, first, second)
	db.AssertExpectations(t)
}

func TestPaymentRepository_UpsertPayment_DBError(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := NewPaymentRepository(db).UpsertPayment(context.Background(), &types.Payment{ID: "1"})
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestPaymentRepository_GetPaymentByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db := new(mockDBTX)
		now := time.Now().UTC()
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"1001"}).
			Return(rowOf("1001", now, now, "RUB", types.PaymentSucceeded, int64(99000), "", "", "sc_1", false, types.Metadata{"a": "b"}, "user_1"))

		p, err := NewPaymentRepository(db).GetPaymentByID(context.Background(), "1001")
		require.NoError(t, err)
		assert.Equal(t, int64(99000), p.TotalAmount)
		assert.Equal(t, "sc_1", p.SubscriptionID)
		assert.Equal(t, "b", p.Metadata["a"])
	})

	t.Run("not found", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})

		_, err := NewPaymentRepository(db).GetPaymentByID(context.Background(), "missing")
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeNotFoundPayment, appErr.Code)
	})
}

func TestWebhookEventRepository_ClaimEvent(t *testing.T) {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	args := []any{"1001:Completed", "1001", "Completed", at}

	t.Run("first claim", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), args).
			Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

		claimed, err := NewWebhookEventRepository(db).ClaimEvent(context.Background(), "1001:Completed", "1001", "Completed", at)
		require.NoError(t, err)
		assert.True(t, claimed)
		db.AssertExpectations(t)
	})

	t.Run("already claimed", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), args).
			Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

		claimed, err := NewWebhookEventRepository(db).ClaimEvent(context.Background(), "1001:Completed", "1001", "Completed", at)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("db error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.CommandTag{}, errors.New("timeout"))

		_, err := NewWebhookEventRepository(db).ClaimEvent(context.Background(), "k", "1", "Completed", at)
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	})
}
