package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/blindbox-shop/internal/model"
)

// GetCart возвращает корзину пользователя. Отсутствующая корзина возвращается пустой.
func (r *PostgresRepository) GetCart(ctx context.Context, userID int64) (*model.Cart, error) {
	cart, err := loadCart(ctx, r.pool, userID, false)
	if errors.Is(err, ErrNotFound) {
		return &model.Cart{UserID: userID}, nil
	}
	return cart, err
}

// UpsertCartItem добавляет строку в корзину или увеличивает количество существующей.
func (r *PostgresRepository) UpsertCartItem(ctx context.Context, userID int64, item model.CartItem) (*model.Cart, error) {
	var cart *model.Cart
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		cart, err = upsertCartItem(ctx, tx, userID, item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// upsertCartItem работает внутри транзакции вызывающего: корзина создаётся при
// отсутствии и блокируется до конца транзакции.
func upsertCartItem(ctx context.Context, q querier, userID int64, item model.CartItem) (*model.Cart, error) {
	_, err := q.Exec(ctx,
		`INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("ensure cart: %w", err)
	}

	cart, err := loadCart(ctx, q, userID, true)
	if err != nil {
		return nil, err
	}

	line, err := cart.Upsert(item)
	if err != nil {
		return nil, err
	}

	_, err = q.Exec(ctx,
		`INSERT INTO cart_items (cart_id, item_type, product_id, blind_box_id, quantity, price_cents)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (cart_id, item_type, ref_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		cart.ID, string(line.Type), nullID(line.ProductID), nullID(line.BlindBoxID), line.Quantity, line.PriceCents,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}

	if err := storeTotal(ctx, q, cart.ID, cart.TotalPriceCents); err != nil {
		return nil, err
	}

	return loadCart(ctx, q, userID, false)
}

// SetCartItemQuantity задаёт количество покупаемой строки. Выигранные строки не меняются.
func (r *PostgresRepository) SetCartItemQuantity(ctx context.Context, userID int64, key model.ItemKey, quantity int) (*model.Cart, error) {
	var cart *model.Cart
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		cartID, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`UPDATE cart_items SET quantity = $4
			 WHERE cart_id = $1 AND item_type = $2 AND ref_id = $3 AND item_type <> $5`,
			cartID, string(key.Type), key.Ref, quantity, string(model.ItemTypeBlindBoxProduct),
		)
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCartItemNotFound
		}

		cart, err = recomputeCart(ctx, tx, cartID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveCartItem удаляет покупаемую строку корзины.
func (r *PostgresRepository) RemoveCartItem(ctx context.Context, userID int64, key model.ItemKey) (*model.Cart, error) {
	var cart *model.Cart
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		cartID, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM cart_items
			 WHERE cart_id = $1 AND item_type = $2 AND ref_id = $3 AND item_type <> $4`,
			cartID, string(key.Type), key.Ref, string(model.ItemTypeBlindBoxProduct),
		)
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCartItemNotFound
		}

		cart, err = recomputeCart(ctx, tx, cartID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// ClearCart удаляет все покупаемые строки. Выигранные товары остаются в корзине.
func (r *PostgresRepository) ClearCart(ctx context.Context, userID int64) (*model.Cart, error) {
	var cart *model.Cart
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		cartID, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1 AND item_type <> $2`,
			cartID, string(model.ItemTypeBlindBoxProduct),
		)
		if err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		cart, err = recomputeCart(ctx, tx, cartID, userID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return &model.Cart{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func lockCart(ctx context.Context, q querier, userID int64) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lock cart: %w", err)
	}
	return id, nil
}

func recomputeCart(ctx context.Context, q querier, cartID, userID int64) (*model.Cart, error) {
	cart, err := loadCart(ctx, q, userID, false)
	if err != nil {
		return nil, err
	}
	if err := storeTotal(ctx, q, cartID, cart.RecomputeTotal()); err != nil {
		return nil, err
	}
	return cart, nil
}

func storeTotal(ctx context.Context, q querier, cartID, total int64) error {
	_, err := q.Exec(ctx,
		`UPDATE carts SET total_price_cents = $2, updated_at = NOW() WHERE id = $1`,
		cartID, total,
	)
	if err != nil {
		return fmt.Errorf("update cart total: %w", err)
	}
	return nil
}

// settleCart вычитает из корзины оплаченные позиции заказа. Строки, добавленные
// или выигранные после оформления, остаются.
func settleCart(ctx context.Context, q querier, userID, orderID int64) error {
	cartID, err := lockCart(ctx, q, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	const paid = `WITH paid AS (
		SELECT item_type, COALESCE(product_id, blind_box_id) AS ref_id, SUM(quantity) AS quantity
		FROM order_items
		WHERE order_id = $2
		GROUP BY item_type, COALESCE(product_id, blind_box_id)
	) `

	_, err = q.Exec(ctx, paid+
		`DELETE FROM cart_items ci USING paid
		 WHERE ci.cart_id = $1 AND ci.item_type = paid.item_type
		   AND ci.ref_id = paid.ref_id AND ci.quantity <= paid.quantity`,
		cartID, orderID,
	)
	if err != nil {
		return fmt.Errorf("remove paid cart items: %w", err)
	}

	_, err = q.Exec(ctx, paid+
		`UPDATE cart_items ci SET quantity = ci.quantity - paid.quantity
		 FROM paid
		 WHERE ci.cart_id = $1 AND ci.item_type = paid.item_type
		   AND ci.ref_id = paid.ref_id AND ci.quantity > paid.quantity`,
		cartID, orderID,
	)
	if err != nil {
		return fmt.Errorf("reduce paid cart items: %w", err)
	}

	_, err = recomputeCart(ctx, q, cartID, userID)
	return err
}

func deleteCart(ctx context.Context, q querier, userID int64) error {
	if _, err := q.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// loadCart читает корзину со строками. Имя и картинка строки берутся из каталога.
func loadCart(ctx context.Context, q querier, userID int64, forUpdate bool) (*model.Cart, error) {
	query := `SELECT id, user_id, total_price_cents, updated_at FROM carts WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var c model.Cart
	err := q.QueryRow(ctx, query, userID).Scan(&c.ID, &c.UserID, &c.TotalPriceCents, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT ci.item_type, COALESCE(ci.product_id, 0), COALESCE(ci.blind_box_id, 0),
		        ci.quantity, ci.price_cents,
		        COALESCE(CASE WHEN ci.item_type = 'blindbox' THEN b.name ELSE p.name END, ''),
		        COALESCE(CASE WHEN ci.item_type = 'blindbox' THEN b.image ELSE p.images[1] END, ''),
		        ci.added_at
		 FROM cart_items ci
		 LEFT JOIN products p ON p.id = ci.product_id
		 LEFT JOIN blind_boxes b ON b.id = ci.blind_box_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.added_at, ci.id`,
		c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it       model.CartItem
			itemType string
		)
		err := rows.Scan(&itemType, &it.ProductID, &it.BlindBoxID, &it.Quantity, &it.PriceCents,
			&it.Name, &it.Image, &it.AddedAt)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if it.Type, err = model.ParseItemType(itemType); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	// Строки могли исчезнуть каскадом при удалении товара, поэтому
	// сохранённой сумме не доверяем.
	c.RecomputeTotal()
	return &c, nil
}
