package model

import (
	"fmt"
	"time"
)

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "PLACED"
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusFailed         OrderStatus = "FAILED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

// ParseOrderStatus разбирает статус заказа.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPlaced, OrderStatusPendingPayment, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown order status %q", s)
	}
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "cod"
	PaymentMethodGateway PaymentMethod = "gateway"
)

// ParsePaymentMethod разбирает способ оплаты.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodCOD, PaymentMethodGateway:
		return m, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", s)
	}
}

// OrderItem: снимок строки корзины на момент оформления.
type OrderItem struct {
	Type       ItemType
	ProductID  int64
	BlindBoxID int64
	Name       string
	Quantity   int
	PriceCents int64
}

// ShippingInfo содержит данные доставки.
type ShippingInfo struct {
	FullName string
	Phone    string
	Address  string
}

// Order описывает заказ покупателя.
type Order struct {
	ID             int64
	Number         string
	UserID         int64
	Status         OrderStatus
	PaymentMethod  PaymentMethod
	Items          []OrderItem
	TotalCents     int64
	Shipping       ShippingInfo
	TransactionRef string
	CreatedAt      time.Time
	PaidAt         *time.Time
}

// SpinsGranted возвращает число прокрутов, которое даёт оплаченный заказ:
// по одному на каждую купленную коробку.
func (o *Order) SpinsGranted() int {
	n := 0
	for _, it := range o.Items {
		if it.Type == ItemTypeBlindBox {
			n += it.Quantity
		}
	}
	return n
}

// OrderItemsFromCart снимает строки корзины в позиции заказа.
func OrderItemsFromCart(c *Cart) []OrderItem {
	items := make([]OrderItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, OrderItem{
			Type:       it.Type,
			ProductID:  it.ProductID,
			BlindBoxID: it.BlindBoxID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			PriceCents: it.PriceCents,
		})
	}
	return items
}
