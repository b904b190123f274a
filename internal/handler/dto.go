package handler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/blindbox-shop/internal/model"
)

// money: сумма в копейках, в JSON выводится числом с двумя знаками после точки.
type money int64

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.New(int64(m), -2).StringFixed(2)), nil
}

func (m *money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	cents, err := toCents(d)
	if err != nil {
		return err
	}
	*m = money(cents)
	return nil
}

// entityID: идентификатор из запроса, клиент присылает его числом или строкой.
type entityID int64

func (id *entityID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("id %q is not a number", s)
		}
		*id = entityID(v)
		return nil
	}

	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*id = entityID(v)
	return nil
}

// toCents переводит сумму из запроса в копейки. Дробные копейки и отрицательные суммы отклоняются.
func toCents(d decimal.Decimal) (int64, error) {
	cents := d.Shift(2)
	if cents.IsNegative() {
		return 0, fmt.Errorf("price must not be negative")
	}
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("price has more than two decimal places")
	}
	return cents.IntPart(), nil
}

type userResponse struct {
	ID                int64     `json:"id"`
	Login             string    `json:"login"`
	IsAdmin           bool      `json:"isAdmin"`
	BlindBoxSpinCount int       `json:"blindboxSpinCount"`
	CreatedAt         time.Time `json:"createdAt,omitzero"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:                u.ID,
		Login:             u.Login,
		IsAdmin:           u.IsAdmin,
		BlindBoxSpinCount: u.BlindBoxSpinCount,
		CreatedAt:         u.CreatedAt,
	}
}

type productResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	Price       money    `json:"price"`
	Images      []string `json:"images"`
	Category    string   `json:"category"`
	InStock     bool     `json:"inStock"`
}

func newProductResponse(p *model.Product) productResponse {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       money(p.PriceCents),
		Images:      images,
		Category:    p.Category,
		InStock:     p.InStock,
	}
}

func newProductsResponse(products []model.Product) []productResponse {
	res := make([]productResponse, 0, len(products))
	for i := range products {
		res = append(res, newProductResponse(&products[i]))
	}
	return res
}

type blindBoxEntryResponse struct {
	Product     *productResponse `json:"product,omitempty"`
	ProductID   int64            `json:"productId"`
	Probability int              `json:"probability"`
}

type blindBoxResponse struct {
	ID          int64                   `json:"id"`
	Name        string                  `json:"name"`
	Slug        string                  `json:"slug"`
	Description string                  `json:"description"`
	Image       string                  `json:"image"`
	Price       money                   `json:"price"`
	Products    []blindBoxEntryResponse `json:"products"`
	TotalOpens  int64                   `json:"totalOpens"`
}

func newBlindBoxResponse(b *model.BlindBox) blindBoxResponse {
	entries := make([]blindBoxEntryResponse, 0, len(b.Products))
	for _, e := range b.Products {
		entry := blindBoxEntryResponse{ProductID: e.ProductID, Probability: e.Probability}
		if e.Product != nil {
			p := newProductResponse(e.Product)
			entry.Product = &p
		}
		entries = append(entries, entry)
	}
	return blindBoxResponse{
		ID:          b.ID,
		Name:        b.Name,
		Slug:        b.Slug,
		Description: b.Description,
		Image:       b.Image,
		Price:       money(b.PriceCents),
		Products:    entries,
		TotalOpens:  b.TotalOpens,
	}
}

func newBlindBoxesResponse(boxes []model.BlindBox) []blindBoxResponse {
	res := make([]blindBoxResponse, 0, len(boxes))
	for i := range boxes {
		res = append(res, newBlindBoxResponse(&boxes[i]))
	}
	return res
}

type cartItemResponse struct {
	Type       string `json:"type"`
	RefID      int64  `json:"refId"`
	ProductID  int64  `json:"productId,omitempty"`
	BlindBoxID int64  `json:"blindboxId,omitempty"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
	Quantity   int    `json:"quantity"`
	Price      money  `json:"price"`
	LineTotal  money  `json:"lineTotal"`
}

type cartResponse struct {
	Items      []cartItemResponse `json:"items"`
	TotalPrice money              `json:"totalPrice"`
}

func newCartResponse(c *model.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, it := range c.Items {
		key, err := it.Key()
		if err != nil {
			continue
		}
		items = append(items, cartItemResponse{
			Type:       string(it.Type),
			RefID:      key.Ref,
			ProductID:  it.ProductID,
			BlindBoxID: it.BlindBoxID,
			Name:       it.Name,
			Image:      it.Image,
			Quantity:   it.Quantity,
			Price:      money(it.PriceCents),
			LineTotal:  money(it.LineTotalCents()),
		})
	}
	return cartResponse{Items: items, TotalPrice: money(c.TotalPriceCents)}
}

type spinResponse struct {
	PrizeIndex     int             `json:"prizeIndex"`
	PrizeProduct   productResponse `json:"prizeProduct"`
	SpinID         int64           `json:"spinId"`
	RemainingSpins int             `json:"remainingSpins"`
	Replayed       bool            `json:"replayed,omitempty"`
}

type spinRecordResponse struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	BlindBoxID int64     `json:"blindboxId"`
	ProductID  int64     `json:"productId"`
	Success    bool      `json:"success"`
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newSpinRecordsResponse(spins []model.SpinRecord) []spinRecordResponse {
	res := make([]spinRecordResponse, 0, len(spins))
	for _, s := range spins {
		rec := spinRecordResponse{
			ID:         s.ID,
			UserID:     s.UserID,
			BlindBoxID: s.BlindBoxID,
			ProductID:  s.ProductID,
			Success:    s.Success,
			CreatedAt:  s.CreatedAt,
		}
		if s.RequestID != nil {
			rec.RequestID = s.RequestID.String()
		}
		res = append(res, rec)
	}
	return res
}

type orderItemResponse struct {
	Type       string `json:"type"`
	ProductID  int64  `json:"productId,omitempty"`
	BlindBoxID int64  `json:"blindboxId,omitempty"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Price      money  `json:"price"`
}

type orderResponse struct {
	Number         string              `json:"number"`
	Status         string              `json:"status"`
	PaymentMethod  string              `json:"paymentMethod"`
	Items          []orderItemResponse `json:"items"`
	Total          money               `json:"total"`
	FullName       string              `json:"fullName"`
	Phone          string              `json:"phone"`
	Address        string              `json:"address"`
	TransactionRef string              `json:"transactionRef,omitempty"`
	CreatedAt      string              `json:"createdAt"`
	PaidAt         string              `json:"paidAt,omitempty"`
	PaymentURL     string              `json:"paymentUrl,omitempty"`
}

func newOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			Type:       string(it.Type),
			ProductID:  it.ProductID,
			BlindBoxID: it.BlindBoxID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			Price:      money(it.PriceCents),
		})
	}

	resp := orderResponse{
		Number:         o.Number,
		Status:         string(o.Status),
		PaymentMethod:  string(o.PaymentMethod),
		Items:          items,
		Total:          money(o.TotalCents),
		FullName:       o.Shipping.FullName,
		Phone:          o.Shipping.Phone,
		Address:        o.Shipping.Address,
		TransactionRef: o.TransactionRef,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
	}
	if o.PaidAt != nil {
		resp.PaidAt = o.PaidAt.Format(time.RFC3339)
	}
	return resp
}

func newOrdersResponse(orders []model.Order) []orderResponse {
	res := make([]orderResponse, 0, len(orders))
	for i := range orders {
		res = append(res, newOrderResponse(&orders[i]))
	}
	return res
}
