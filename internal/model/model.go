// Package model содержит доменные сущности магазина с блайндбоксами.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User представляет зарегистрированного покупателя или администратора.
type User struct {
	ID                int64
	Login             string
	PasswordHash      []byte
	IsAdmin           bool
	BlindBoxSpinCount int
	CreatedAt         time.Time
}

// Product описывает товар каталога.
type Product struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	PriceCents  int64
	Images      []string
	Category    string
	InStock     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BlindBoxEntry связывает блайндбокс с возможным призом и его вероятностью в процентах.
type BlindBoxEntry struct {
	ProductID   int64
	Probability int
	Product     *Product
}

// BlindBox описывает "коробку-сюрприз" с взвешенным набором товаров.
type BlindBox struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	Image       string
	PriceCents  int64
	Products    []BlindBoxEntry
	TotalOpens  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProbabilityTotal возвращает сумму вероятностей всех товаров коробки.
func (b *BlindBox) ProbabilityTotal() int {
	total := 0
	for _, e := range b.Products {
		total += e.Probability
	}
	return total
}

// EntryIndex возвращает позицию товара в списке коробки или -1.
func (b *BlindBox) EntryIndex(productID int64) int {
	for i, e := range b.Products {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

// SpinRecord: неизменяемая запись аудита об одном прокруте.
type SpinRecord struct {
	ID         int64
	UserID     int64
	BlindBoxID int64
	ProductID  int64
	Success    bool
	RequestID  *uuid.UUID
	CreatedAt  time.Time
}

// SpinResult возвращается клиенту после успешного прокрута.
type SpinResult struct {
	PrizeIndex     int
	PrizeProduct   Product
	SpinID         int64
	RemainingSpins int
	Replayed       bool
}
