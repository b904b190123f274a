package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/blindbox-shop/internal/model"
)

// ProductFilter задаёт выборку товаров витрины.
type ProductFilter struct {
	Category    string
	OnlyInStock bool
	Limit       int
	Offset      int
}

const productColumns = `id, name, slug, description, price_cents, images, category, in_stock, created_at, updated_at`

// prefixed добавляет псевдоним таблицы к каждому столбцу списка.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.PriceCents, &p.Images,
		&p.Category, &p.InStock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func images(p *model.Product) []string {
	if p.Images == nil {
		return []string{}
	}
	return p.Images
}

// CreateProduct сохраняет новый товар и возвращает его с присвоенным идентификатором.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) (*model.Product, error) {
	created, err := scanProduct(r.pool.QueryRow(ctx,
		`INSERT INTO products (name, slug, description, price_cents, images, category, in_stock)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+productColumns,
		p.Name, p.Slug, p.Description, p.PriceCents, images(p), p.Category, p.InStock,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrSlugExists, p.Slug)
		}
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return created, nil
}

// UpdateProduct перезаписывает редактируемые поля товара.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p *model.Product) (*model.Product, error) {
	updated, err := scanProduct(r.pool.QueryRow(ctx,
		`UPDATE products
		 SET name = $2, slug = $3, description = $4, price_cents = $5, images = $6,
		     category = $7, in_stock = $8, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+productColumns,
		p.ID, p.Name, p.Slug, p.Description, p.PriceCents, images(p), p.Category, p.InStock,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrSlugExists, p.Slug)
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return updated, nil
}

// DeleteProduct удаляет товар. Товары из состава коробок и истории прокрутов удалить нельзя.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInUse
		}
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListProducts возвращает страницу товаров, новые первыми.
func (r *PostgresRepository) ListProducts(ctx context.Context, f ProductFilter) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+`
		 FROM products
		 WHERE ($1 = '' OR category = $1) AND (NOT $2 OR in_stock)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		f.Category, f.OnlyInStock, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListCategories возвращает непустые категории товаров по алфавиту.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}

	res, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect categories: %w", err)
	}
	return res, nil
}
