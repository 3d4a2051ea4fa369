package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore backed by the given pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new account with the given starting balance. A duplicate
// email fails with domain.ErrAlreadyExists.
func (s *UserStore) Create(ctx context.Context, email, passwordHash string, initial fixed.Money) (domain.User, error) {
	const insert = `
		INSERT INTO users (id, email, password, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password, balance, created_at`

	u, err := s.scanUser(s.pool.QueryRow(ctx, insert, uuid.NewString(), email, passwordHash, int64(initial)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, domain.ErrAlreadyExists
		}
		return domain.User{}, fmt.Errorf("postgres: create user: %w", err)
	}
	return u, nil
}

// GetByEmail looks up an account by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `
		SELECT id, email, password, balance, created_at
		FROM users WHERE email = $1`

	u, err := s.scanUser(s.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user by email: %w", err)
	}
	return u, nil
}

// GetByID looks up an account by id.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, email, password, balance, created_at
		FROM users WHERE id = $1`

	u, err := s.scanUser(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user by id: %w", err)
	}
	return u, nil
}

// DebitBalance subtracts amount from the user's balance. The guard in the
// WHERE clause keeps the balance from going negative under concurrent debits;
// when it blocks the update the call fails with domain.ErrInsufficient. An
// unknown id fails with domain.ErrNotFound instead: zero rows affected is
// ambiguous between the guard and a missing row, so it is disambiguated with
// an existence check.
func (s *UserStore) DebitBalance(ctx context.Context, id string, amount fixed.Money) error {
	const update = `
		UPDATE users SET balance = balance - $2
		WHERE id = $1 AND balance >= $2`

	tag, err := s.pool.Exec(ctx, update, id, int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit balance for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		const check = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
		if err := s.pool.QueryRow(ctx, check, id).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: debit balance for %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInsufficient
	}
	return nil
}

// CreditBalance adds amount to the user's balance.
func (s *UserStore) CreditBalance(ctx context.Context, id string, amount fixed.Money) error {
	const update = `UPDATE users SET balance = balance + $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, update, id, int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: credit balance for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UserStore) scanUser(row pgx.Row) (domain.User, error) {
	var (
		u       domain.User
		balance int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &balance, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	u.Balance = fixed.Money(balance)
	return u, nil
}

var _ domain.UserStore = (*UserStore)(nil)
