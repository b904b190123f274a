package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/blindbox-shop/internal/model"
)

const blindBoxColumns = `id, name, slug, description, image, price_cents, total_opens, created_at, updated_at`

func scanBlindBox(row pgx.Row) (*model.BlindBox, error) {
	var b model.BlindBox
	err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.Description, &b.Image, &b.PriceCents,
		&b.TotalOpens, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBlindBox сохраняет коробку вместе с составом призов.
func (r *PostgresRepository) CreateBlindBox(ctx context.Context, b *model.BlindBox) (*model.BlindBox, error) {
	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO blind_boxes (name, slug, description, image, price_cents)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			b.Name, b.Slug, b.Description, b.Image, b.PriceCents,
		).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrSlugExists, b.Slug)
			}
			return fmt.Errorf("insert blind box: %w", err)
		}

		return insertEntries(ctx, tx, id, b.Products)
	})
	if err != nil {
		return nil, err
	}

	return r.GetBlindBoxByID(ctx, id)
}

// UpdateBlindBox обновляет коробку и полностью заменяет состав призов.
func (r *PostgresRepository) UpdateBlindBox(ctx context.Context, b *model.BlindBox) (*model.BlindBox, error) {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE blind_boxes
			 SET name = $2, slug = $3, description = $4, image = $5, price_cents = $6, updated_at = NOW()
			 WHERE id = $1`,
			b.ID, b.Name, b.Slug, b.Description, b.Image, b.PriceCents,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrSlugExists, b.Slug)
			}
			return fmt.Errorf("update blind box: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM blind_box_products WHERE blind_box_id = $1`, b.ID); err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}

		return insertEntries(ctx, tx, b.ID, b.Products)
	})
	if err != nil {
		return nil, err
	}

	return r.GetBlindBoxByID(ctx, b.ID)
}

func insertEntries(ctx context.Context, tx pgx.Tx, boxID int64, entries []model.BlindBoxEntry) error {
	batch := &pgx.Batch{}
	for i, e := range entries {
		batch.Queue(
			`INSERT INTO blind_box_products (blind_box_id, position, product_id, probability) VALUES ($1, $2, $3, $4)`,
			boxID, i, e.ProductID, e.Probability,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: product in blind box", ErrNotFound)
			}
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return nil
}

// DeleteBlindBox удаляет коробку и её непроданные строки в корзинах.
// Коробки с историей прокрутов удалить нельзя.
func (r *PostgresRepository) DeleteBlindBox(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM cart_items WHERE item_type = $2 AND blind_box_id = $1`,
			id, string(model.ItemTypeBlindBox),
		)
		if err != nil {
			return fmt.Errorf("delete cart lines: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM blind_boxes WHERE id = $1`, id)
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrInUse
			}
			return fmt.Errorf("delete blind box: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetBlindBoxByID возвращает коробку с заполненным составом призов.
func (r *PostgresRepository) GetBlindBoxByID(ctx context.Context, id int64) (*model.BlindBox, error) {
	return r.getBlindBox(ctx, `WHERE id = $1`, id)
}

// GetBlindBoxBySlug возвращает коробку по slug с заполненным составом призов.
func (r *PostgresRepository) GetBlindBoxBySlug(ctx context.Context, slug string) (*model.BlindBox, error) {
	return r.getBlindBox(ctx, `WHERE slug = $1`, slug)
}

func (r *PostgresRepository) getBlindBox(ctx context.Context, where string, arg any) (*model.BlindBox, error) {
	b, err := scanBlindBox(r.pool.QueryRow(ctx, `SELECT `+blindBoxColumns+` FROM blind_boxes `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blind box: %w", err)
	}

	entries, err := r.loadEntries(ctx, []int64{b.ID})
	if err != nil {
		return nil, err
	}
	b.Products = entries[b.ID]

	return b, nil
}

// ListBlindBoxes возвращает все коробки с составом призов.
func (r *PostgresRepository) ListBlindBoxes(ctx context.Context) ([]model.BlindBox, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+blindBoxColumns+` FROM blind_boxes ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select blind boxes: %w", err)
	}
	defer rows.Close()

	var res []model.BlindBox
	var ids []int64
	for rows.Next() {
		b, err := scanBlindBox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blind box: %w", err)
		}
		res = append(res, *b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(ids) == 0 {
		return res, nil
	}

	entries, err := r.loadEntries(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Products = entries[res[i].ID]
	}

	return res, nil
}

func (r *PostgresRepository) loadEntries(ctx context.Context, boxIDs []int64) (map[int64][]model.BlindBoxEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.blind_box_id, e.probability, `+prefixed("p", productColumns)+`
		 FROM blind_box_products e
		 JOIN products p ON p.id = e.product_id
		 WHERE e.blind_box_id = ANY($1)
		 ORDER BY e.blind_box_id, e.position`,
		boxIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	res := make(map[int64][]model.BlindBoxEntry, len(boxIDs))
	for rows.Next() {
		var (
			boxID       int64
			probability int
			p           model.Product
		)
		err := rows.Scan(&boxID, &probability, &p.ID, &p.Name, &p.Slug, &p.Description, &p.PriceCents,
			&p.Images, &p.Category, &p.InStock, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		res[boxID] = append(res[boxID], model.BlindBoxEntry{
			ProductID:   p.ID,
			Probability: probability,
			Product:     &p,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
