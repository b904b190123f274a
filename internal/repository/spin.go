package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/blindbox-shop/internal/model"
)

// SpinInput описывает уже выбранный приз, который нужно записать.
type SpinInput struct {
	UserID     int64
	BlindBoxID int64
	ProductID  int64
	RequestID  *uuid.UUID
}

// SpinOutcome: результат записи прокрута.
type SpinOutcome struct {
	Record         model.SpinRecord
	RemainingSpins int
	// Replayed выставляется, если прокрут с тем же RequestID уже был записан.
	Replayed bool
}

const spinColumns = `id, user_id, blind_box_id, product_id, success, request_id, created_at`

func scanSpin(row pgx.Row) (*model.SpinRecord, error) {
	var s model.SpinRecord
	if err := row.Scan(&s.ID, &s.UserID, &s.BlindBoxID, &s.ProductID, &s.Success, &s.RequestID, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplySpin в одной транзакции списывает прокрут, пишет запись аудита,
// кладёт приз в корзину и увеличивает счётчик открытий коробки.
// Условное списание: окончательная проверка остатка прокрутов.
func (r *PostgresRepository) ApplySpin(ctx context.Context, in SpinInput) (*SpinOutcome, error) {
	var out *SpinOutcome
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if in.RequestID != nil {
			prev, err := findSpinByRequest(ctx, tx, in.UserID, *in.RequestID)
			if err != nil {
				return err
			}
			if prev != nil {
				out, err = replayed(ctx, tx, prev)
				return err
			}
		}

		var remaining int
		err := tx.QueryRow(ctx,
			`UPDATE users SET spin_count = spin_count - 1
			 WHERE id = $1 AND spin_count > 0
			 RETURNING spin_count`,
			in.UserID,
		).Scan(&remaining)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return noSpinsReason(ctx, tx, in.UserID)
			}
			return fmt.Errorf("decrement spins: %w", err)
		}

		rec, err := scanSpin(tx.QueryRow(ctx,
			`INSERT INTO spin_records (user_id, blind_box_id, product_id, success, request_id)
			 VALUES ($1, $2, $3, TRUE, $4)
			 RETURNING `+spinColumns,
			in.UserID, in.BlindBoxID, in.ProductID, in.RequestID,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return errSpinRace
			}
			if isForeignKeyViolation(err) {
				return ErrNotFound
			}
			return fmt.Errorf("insert spin record: %w", err)
		}

		_, err = upsertCartItem(ctx, tx, in.UserID, model.CartItem{
			Type:      model.ItemTypeBlindBoxProduct,
			ProductID: in.ProductID,
			Quantity:  1,
		})
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`UPDATE blind_boxes SET total_opens = total_opens + 1 WHERE id = $1`,
			in.BlindBoxID,
		)
		if err != nil {
			return fmt.Errorf("increment opens: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		out = &SpinOutcome{Record: *rec, RemainingSpins: remaining}
		return nil
	})

	// Параллельный запрос с тем же RequestID успел записать прокрут первым.
	if errors.Is(err, errSpinRace) {
		prev, ferr := findSpinByRequest(ctx, r.pool, in.UserID, *in.RequestID)
		if ferr != nil {
			return nil, ferr
		}
		if prev == nil {
			return nil, fmt.Errorf("spin record for request %s vanished", in.RequestID)
		}
		return replayed(ctx, r.pool, prev)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

var errSpinRace = errors.New("spin request already recorded")

func findSpinByRequest(ctx context.Context, q querier, userID int64, requestID uuid.UUID) (*model.SpinRecord, error) {
	rec, err := scanSpin(q.QueryRow(ctx,
		`SELECT `+spinColumns+` FROM spin_records WHERE user_id = $1 AND request_id = $2`,
		userID, requestID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find spin: %w", err)
	}
	return rec, nil
}

func replayed(ctx context.Context, q querier, rec *model.SpinRecord) (*SpinOutcome, error) {
	var remaining int
	err := q.QueryRow(ctx, `SELECT spin_count FROM users WHERE id = $1`, rec.UserID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get spin count: %w", err)
	}
	return &SpinOutcome{Record: *rec, RemainingSpins: remaining, Replayed: true}, nil
}

// noSpinsReason различает исчерпанные прокруты и удалённого пользователя.
func noSpinsReason(ctx context.Context, q querier, userID int64) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return ErrNoSpinsRemaining
}

// ListSpinsByUser возвращает историю прокрутов пользователя, новые первыми.
func (r *PostgresRepository) ListSpinsByUser(ctx context.Context, userID int64, limit int) ([]model.SpinRecord, error) {
	return r.listSpins(ctx,
		`SELECT `+spinColumns+` FROM spin_records WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
}

// ListSpins возвращает журнал прокрутов. Нулевой blindBoxID означает все коробки.
func (r *PostgresRepository) ListSpins(ctx context.Context, blindBoxID int64, limit int) ([]model.SpinRecord, error) {
	return r.listSpins(ctx,
		`SELECT `+spinColumns+` FROM spin_records
		 WHERE ($1::bigint = 0 OR blind_box_id = $1)
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		blindBoxID, limit,
	)
}

func (r *PostgresRepository) listSpins(ctx context.Context, query string, args ...any) ([]model.SpinRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select spins: %w", err)
	}
	defer rows.Close()

	var res []model.SpinRecord
	for rows.Next() {
		s, err := scanSpin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spin: %w", err)
		}
		res = append(res, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
