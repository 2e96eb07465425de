package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"vega/internal/types"
)

// UserRepository reads the identity table owned by the auth provider. The
// table name is a reserved word and must stay quoted.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by db (pool or tx).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `u.id, u.name, u.email, u.email_verified, u.image, u.created_at, u.updated_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var image *string
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.EmailVerified,
		&image,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if image != nil {
		u.Image = *image
	}
	return &u, nil
}

// GetUserByID returns the user or not_found_user.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM "user" u WHERE u.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return u, nil
}

// FindUserIDByEmail returns the id of the user with the given email, or ""
// when no user matches. Email comparison is case-insensitive.
func (r *UserRepository) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM "user" WHERE lower(email) = lower($1) LIMIT 1`,
		email,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to look up user by email", err)
	}
	return id, nil
}
