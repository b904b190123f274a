package model

import (
	"errors"
	"fmt"
	"time"
)

// ItemType: закрытое множество вариантов позиции корзины.
type ItemType string

const (
	ItemTypeProduct         ItemType = "product"
	ItemTypeBlindBox        ItemType = "blindbox"
	ItemTypeBlindBoxProduct ItemType = "blindboxProduct"
)

// ErrUnknownItemType возвращается для значений вне множества ItemType.
var ErrUnknownItemType = errors.New("unknown cart item type")

// ParseItemType разбирает строковое представление типа позиции.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate проверяет, что тип входит в закрытое множество.
func (t ItemType) Validate() error {
	switch t {
	case ItemTypeProduct, ItemTypeBlindBox, ItemTypeBlindBoxProduct:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownItemType, string(t))
	}
}

// UserMutable сообщает, может ли покупатель менять или удалять позицию этого типа.
// Выигранные товары изменяет только прокрут.
func (t ItemType) UserMutable() (bool, error) {
	switch t {
	case ItemTypeProduct, ItemTypeBlindBox:
		return true, nil
	case ItemTypeBlindBoxProduct:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownItemType, string(t))
	}
}

// CartItem: строка корзины.
type CartItem struct {
	Type       ItemType
	ProductID  int64
	BlindBoxID int64
	Quantity   int
	PriceCents int64
	Name       string
	Image      string
	AddedAt    time.Time
}

// ItemKey идентифицирует строку корзины: тип плюс ссылка на товар или коробку.
type ItemKey struct {
	Type ItemType
	Ref  int64
}

// Key возвращает идентичность строки корзины.
func (i CartItem) Key() (ItemKey, error) {
	switch i.Type {
	case ItemTypeProduct, ItemTypeBlindBoxProduct:
		return ItemKey{Type: i.Type, Ref: i.ProductID}, nil
	case ItemTypeBlindBox:
		return ItemKey{Type: i.Type, Ref: i.BlindBoxID}, nil
	default:
		return ItemKey{}, fmt.Errorf("%w: %q", ErrUnknownItemType, string(i.Type))
	}
}

// LineTotalCents возвращает стоимость строки.
func (i CartItem) LineTotalCents() int64 {
	return i.PriceCents * int64(i.Quantity)
}

// Cart: корзина пользователя. TotalPriceCents всегда пересчитывается после изменения.
type Cart struct {
	ID              int64
	UserID          int64
	Items           []CartItem
	TotalPriceCents int64
	UpdatedAt       time.Time
}

// Find возвращает индекс строки с указанным ключом или -1.
func (c *Cart) Find(key ItemKey) int {
	for i, it := range c.Items {
		k, err := it.Key()
		if err != nil {
			continue
		}
		if k == key {
			return i
		}
	}
	return -1
}

// Upsert добавляет строку или увеличивает количество существующей с тем же ключом.
// Возвращает получившуюся строку.
func (c *Cart) Upsert(item CartItem) (CartItem, error) {
	key, err := item.Key()
	if err != nil {
		return CartItem{}, err
	}
	if item.Quantity <= 0 {
		return CartItem{}, fmt.Errorf("quantity must be positive, got %d", item.Quantity)
	}
	if item.Type == ItemTypeBlindBoxProduct {
		item.PriceCents = 0
	}

	var line CartItem
	if idx := c.Find(key); idx >= 0 {
		c.Items[idx].Quantity += item.Quantity
		line = c.Items[idx]
	} else {
		c.Items = append(c.Items, item)
		line = item
	}

	c.RecomputeTotal()
	return line, nil
}

// RemoveOrdered вычитает из корзины позиции оплаченного заказа. Строки, которых
// в заказе не было, не трогаются.
func (c *Cart) RemoveOrdered(items []OrderItem) {
	ordered := make(map[ItemKey]int, len(items))
	for _, it := range items {
		key, err := CartItem{Type: it.Type, ProductID: it.ProductID, BlindBoxID: it.BlindBoxID}.Key()
		if err != nil {
			continue
		}
		ordered[key] += it.Quantity
	}

	kept := c.Items[:0]
	for _, it := range c.Items {
		key, err := it.Key()
		if err == nil {
			it.Quantity -= ordered[key]
		}
		if it.Quantity > 0 {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	c.RecomputeTotal()
}

// RecomputeTotal пересчитывает сумму корзины как Σ price × quantity.
func (c *Cart) RecomputeTotal() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.LineTotalCents()
	}
	c.TotalPriceCents = total
	return total
}

// IsEmpty сообщает, пуста ли корзина.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}
