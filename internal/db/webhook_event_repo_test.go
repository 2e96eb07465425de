package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vega/internal/types"
)

func TestWebhookEventRepository_ClaimEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first claim wins", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"42:Completed", "42", "Completed", at}).
			Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

		claimed, err := NewWebhookEventRepository(db).ClaimEvent(context.Background(), "42:Completed", "42", "Completed", at)
		require.NoError(t, err)
		assert.True(t, claimed)
		db.AssertExpectations(t)
	})

	t.Run("already recorded", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

		claimed, err := NewWebhookEventRepository(db).ClaimEvent(context.Background(), "42:Completed", "42", "Completed", at)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("db failure", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.CommandTag{}, errors.New("deadlock detected"))

		claimed, err := NewWebhookEventRepository(db).ClaimEvent(context.Background(), "42:Completed", "42", "Completed", at)
		assert.False(t, claimed)
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	})
}
