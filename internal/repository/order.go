package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/blindbox-shop/internal/model"
)

// CreateOrderInput описывает оформление корзины в заказ.
type CreateOrderInput struct {
	UserID         int64
	Number         string
	Method         model.PaymentMethod
	Shipping       model.ShippingInfo
	TransactionRef string
}

// OrderForPayment описывает заказ, ожидающий подтверждения оплаты от шлюза.
type OrderForPayment struct {
	Number     string
	TotalCents int64
}

const orderColumns = `id, number, user_id, status, payment_method, total_cents,
	full_name, phone, address, transaction_ref, created_at, paid_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
		method string
	)
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &status, &method, &o.TotalCents,
		&o.Shipping.FullName, &o.Shipping.Phone, &o.Shipping.Address, &o.TransactionRef,
		&o.CreatedAt, &o.PaidAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	o.PaymentMethod = model.PaymentMethod(method)
	return &o, nil
}

// CreateOrder оформляет корзину пользователя в заказ. При оплате наличными
// корзина удаляется в той же транзакции, при оплате через шлюз остаётся до подтверждения.
func (r *PostgresRepository) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	var order *model.Order
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		cart, err := loadCart(ctx, tx, in.UserID, true)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrEmptyCart
			}
			return err
		}
		if cart.IsEmpty() {
			return ErrEmptyCart
		}

		status := model.OrderStatusPendingPayment
		if in.Method == model.PaymentMethodCOD {
			status = model.OrderStatusPlaced
		}

		order, err = scanOrder(tx.QueryRow(ctx,
			`INSERT INTO orders (number, user_id, status, payment_method, total_cents,
			                     full_name, phone, address, transaction_ref)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING `+orderColumns,
			in.Number, in.UserID, string(status), string(in.Method), cart.RecomputeTotal(),
			in.Shipping.FullName, in.Shipping.Phone, in.Shipping.Address, in.TransactionRef,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrOrderNumberTaken
			}
			return fmt.Errorf("insert order: %w", err)
		}

		order.Items = model.OrderItemsFromCart(cart)
		if err := insertOrderItems(ctx, tx, order.ID, order.Items); err != nil {
			return err
		}

		if in.Method == model.PaymentMethodCOD {
			return deleteCart(ctx, tx, in.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func insertOrderItems(ctx context.Context, tx pgx.Tx, orderID int64, items []model.OrderItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO order_items (order_id, item_type, product_id, blind_box_id, name, quantity, price_cents)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, string(it.Type), nullID(it.ProductID), nullID(it.BlindBoxID), it.Name, it.Quantity, it.PriceCents,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func loadOrderItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	rows, err := q.Query(ctx,
		`SELECT order_id, item_type, COALESCE(product_id, 0), COALESCE(blind_box_id, 0), name, quantity, price_cents
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, id`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	res := make(map[int64][]model.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID  int64
			itemType string
			it       model.OrderItem
		)
		err := rows.Scan(&orderID, &itemType, &it.ProductID, &it.BlindBoxID, &it.Name, &it.Quantity, &it.PriceCents)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Type = model.ItemType(itemType)
		res[orderID] = append(res[orderID], it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrderByNumber возвращает заказ вместе с позициями.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	return getOrder(ctx, r.pool, number, false)
}

func getOrder(ctx context.Context, q querier, number string, forUpdate bool) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(q.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := loadOrderItems(ctx, q, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]

	return o, nil
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
}

// ListOrders возвращает страницу всех заказов для администратора.
func (r *PostgresRepository) ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
}

func (r *PostgresRepository) listOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var (
		res []model.Order
		ids []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(ids) == 0 {
		return res, nil
	}

	items, err := loadOrderItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Items = items[res[i].ID]
	}

	return res, nil
}

// MarkOrderPaid переводит заказ в PAID, начисляет покупателю прокруты за купленные
// коробки и, для оплаты через шлюз, вычитает оплаченные позиции из корзины.
// Повторный вызов для оплаченного заказа ничего не меняет и возвращает alreadyPaid.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, number, transactionRef string) (*model.Order, bool, error) {
	var (
		order       *model.Order
		alreadyPaid bool
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		o, err := getOrder(ctx, tx, number, true)
		if err != nil {
			return err
		}

		switch o.Status {
		case model.OrderStatusPaid:
			order, alreadyPaid = o, true
			return nil
		case model.OrderStatusCancelled:
			return ErrOrderClosed
		}

		err = tx.QueryRow(ctx,
			`UPDATE orders
			 SET status = $2, paid_at = NOW(),
			     transaction_ref = CASE WHEN $3 = '' THEN transaction_ref ELSE $3 END
			 WHERE id = $1
			 RETURNING transaction_ref, paid_at`,
			o.ID, string(model.OrderStatusPaid), transactionRef,
		).Scan(&o.TransactionRef, &o.PaidAt)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		o.Status = model.OrderStatusPaid

		if spins := o.SpinsGranted(); spins > 0 {
			if _, err := grantSpins(ctx, tx, o.UserID, spins); err != nil {
				return err
			}
		}

		if o.PaymentMethod == model.PaymentMethodGateway {
			if err := settleCart(ctx, tx, o.UserID, o.ID); err != nil {
				return err
			}
		}

		order, alreadyPaid = o, false
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, alreadyPaid, nil
}

// SetOrderStatus меняет статус заказа. Оплаченный заказ изменить нельзя.
func (r *PostgresRepository) SetOrderStatus(ctx context.Context, number string, status model.OrderStatus) (*model.Order, error) {
	var order *model.Order
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		o, err := getOrder(ctx, tx, number, true)
		if err != nil {
			return err
		}
		if o.Status == model.OrderStatusPaid {
			return ErrOrderClosed
		}

		if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, o.ID, string(status)); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		o.Status = status
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrdersPendingPayment возвращает заказы, ожидающие ответа платёжного шлюза.
func (r *PostgresRepository) GetOrdersPendingPayment(ctx context.Context, limit int) ([]OrderForPayment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT number, total_cents
		 FROM orders
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		string(model.OrderStatusPendingPayment),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders for payment: %w", err)
	}
	defer rows.Close()

	var res []OrderForPayment
	for rows.Next() {
		var o OrderForPayment
		if err := rows.Scan(&o.Number, &o.TotalCents); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
