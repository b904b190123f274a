package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/blindbox-shop/internal/model"
)

const userColumns = `id, login, password_hash, is_admin, spin_count, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.IsAdmin, &u.BlindBoxSpinCount, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// EnsureAdmin создаёт администратора или повышает существующего пользователя до администратора.
// Пароль существующего пользователя не меняется.
func (r *PostgresRepository) EnsureAdmin(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, is_admin) VALUES ($1, $2, TRUE)
		 ON CONFLICT (login) DO UPDATE SET is_admin = TRUE
		 RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure admin: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE login = $1`,
		login,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers возвращает страницу пользователей в порядке регистрации.
func (r *PostgresRepository) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GrantSpins атомарно добавляет пользователю прокруты и возвращает новое значение счётчика.
func (r *PostgresRepository) GrantSpins(ctx context.Context, userID int64, count int) (int, error) {
	return grantSpins(ctx, r.pool, userID, count)
}

func grantSpins(ctx context.Context, q querier, userID int64, count int) (int, error) {
	var spins int
	err := q.QueryRow(ctx,
		`UPDATE users SET spin_count = spin_count + $2 WHERE id = $1 RETURNING spin_count`,
		userID, count,
	).Scan(&spins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("grant spins: %w", err)
	}
	return spins, nil
}
