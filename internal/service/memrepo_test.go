package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/repository"
)

// memRepo: репозиторий в памяти с теми же гарантиями, что и PostgreSQL-реализация:
// каждая операция атомарна под общим мьютексом.
type memRepo struct {
	mu sync.Mutex

	nextID   int64
	users    map[int64]*model.User
	products map[int64]*model.Product
	boxes    map[int64]*model.BlindBox
	spins    []model.SpinRecord
	carts    map[int64]*model.Cart
	orders   map[string]*model.Order

	applySpinErr error
	takenNumbers int
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    map[int64]*model.User{},
		products: map[int64]*model.Product{},
		boxes:    map[int64]*model.BlindBox{},
		carts:    map[int64]*model.Cart{},
		orders:   map[string]*model.Order{},
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) addUser(login string, spins int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.users[id] = &model.User{ID: id, Login: login, BlindBoxSpinCount: spins}
	return id
}

func (m *memRepo) addProduct(name string, priceCents int64) *model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &model.Product{ID: m.id(), Name: name, Slug: name, PriceCents: priceCents, InStock: true}
	m.products[p.ID] = p
	return p
}

func (m *memRepo) addBox(priceCents int64, entries ...model.BlindBoxEntry) *model.BlindBox {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range entries {
		entries[i].Product = m.products[entries[i].ProductID]
	}
	b := &model.BlindBox{ID: m.id(), Name: "box", Slug: "box", PriceCents: priceCents, Products: entries}
	m.boxes[b.ID] = b
	return b
}

func (m *memRepo) spinCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].BlindBoxSpinCount
}

func (m *memRepo) spinRecords() []model.SpinRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SpinRecord(nil), m.spins...)
}

func (m *memRepo) totalOpens(boxID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boxes[boxID].TotalOpens
}

func copyCart(c *model.Cart) *model.Cart {
	cp := *c
	cp.Items = append([]model.CartItem(nil), c.Items...)
	return &cp
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Login == login {
			return 0, repository.ErrUserExists
		}
	}
	id := m.id()
	m.users[id] = &model.User{ID: id, Login: login, PasswordHash: passwordHash}
	return id, nil
}

func (m *memRepo) EnsureAdmin(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Login == login {
			u.IsAdmin = true
			return u.ID, nil
		}
	}
	id := m.id()
	m.users[id] = &model.User{ID: id, Login: login, PasswordHash: passwordHash, IsAdmin: true}
	return id, nil
}

func (m *memRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Login == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.User
	for _, u := range m.users {
		res = append(res, *u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *memRepo) GrantSpins(ctx context.Context, userID int64, count int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	u.BlindBoxSpinCount += count
	return u.BlindBoxSpinCount, nil
}

func (m *memRepo) CreateProduct(ctx context.Context, p *model.Product) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.products {
		if other.Slug == p.Slug {
			return nil, repository.ErrSlugExists
		}
	}
	cp := *p
	cp.ID = m.id()
	m.products[cp.ID] = &cp
	return &cp, nil
}

func (m *memRepo) UpdateProduct(ctx context.Context, p *model.Product) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	m.products[p.ID] = &cp
	return &cp, nil
}

func (m *memRepo) DeleteProduct(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrNotFound
	}
	for _, b := range m.boxes {
		if b.EntryIndex(id) >= 0 {
			return repository.ErrInUse
		}
	}
	delete(m.products, id)
	return nil
}

func (m *memRepo) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.Product
	for _, p := range m.products {
		if f.Category == "" || p.Category == f.Category {
			res = append(res, *p)
		}
	}
	return res, nil
}

func (m *memRepo) ListCategories(ctx context.Context) ([]string, error) { return nil, nil }

func (m *memRepo) CreateBlindBox(ctx context.Context, b *model.BlindBox) (*model.BlindBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	cp.ID = m.id()
	for i := range cp.Products {
		p, ok := m.products[cp.Products[i].ProductID]
		if !ok {
			return nil, repository.ErrNotFound
		}
		cp.Products[i].Product = p
	}
	m.boxes[cp.ID] = &cp
	return &cp, nil
}

func (m *memRepo) UpdateBlindBox(ctx context.Context, b *model.BlindBox) (*model.BlindBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boxes[b.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	m.boxes[b.ID] = &cp
	return &cp, nil
}

func (m *memRepo) DeleteBlindBox(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boxes[id]; !ok {
		return repository.ErrNotFound
	}
	for _, s := range m.spins {
		if s.BlindBoxID == id {
			return repository.ErrInUse
		}
	}
	delete(m.boxes, id)
	return nil
}

func (m *memRepo) GetBlindBoxByID(ctx context.Context, id int64) (*model.BlindBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memRepo) GetBlindBoxBySlug(ctx context.Context, slug string) (*model.BlindBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.boxes {
		if b.Slug == slug {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRepo) ListBlindBoxes(ctx context.Context) ([]model.BlindBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.BlindBox
	for _, b := range m.boxes {
		res = append(res, *b)
	}
	return res, nil
}

func (m *memRepo) ApplySpin(ctx context.Context, in repository.SpinInput) (*repository.SpinOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applySpinErr != nil {
		return nil, m.applySpinErr
	}

	u, ok := m.users[in.UserID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	if in.RequestID != nil {
		for _, s := range m.spins {
			if s.UserID == in.UserID && s.RequestID != nil && *s.RequestID == *in.RequestID {
				return &repository.SpinOutcome{Record: s, RemainingSpins: u.BlindBoxSpinCount, Replayed: true}, nil
			}
		}
	}

	if u.BlindBoxSpinCount <= 0 {
		return nil, repository.ErrNoSpinsRemaining
	}
	box, ok := m.boxes[in.BlindBoxID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	cart := m.cartLocked(in.UserID)
	next := copyCart(cart)
	if _, err := next.Upsert(model.CartItem{Type: model.ItemTypeBlindBoxProduct, ProductID: in.ProductID, Quantity: 1}); err != nil {
		return nil, err
	}

	u.BlindBoxSpinCount--
	rec := model.SpinRecord{
		ID:         m.id(),
		UserID:     in.UserID,
		BlindBoxID: in.BlindBoxID,
		ProductID:  in.ProductID,
		Success:    true,
		RequestID:  in.RequestID,
		CreatedAt:  time.Now(),
	}
	m.spins = append(m.spins, rec)
	m.carts[in.UserID] = next
	box.TotalOpens++

	return &repository.SpinOutcome{Record: rec, RemainingSpins: u.BlindBoxSpinCount}, nil
}

func (m *memRepo) ListSpinsByUser(ctx context.Context, userID int64, limit int) ([]model.SpinRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.SpinRecord
	for _, s := range m.spins {
		if s.UserID == userID {
			res = append(res, s)
		}
	}
	return res, nil
}

func (m *memRepo) ListSpins(ctx context.Context, blindBoxID int64, limit int) ([]model.SpinRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.SpinRecord
	for _, s := range m.spins {
		if blindBoxID == 0 || s.BlindBoxID == blindBoxID {
			res = append(res, s)
		}
	}
	return res, nil
}

func (m *memRepo) cartLocked(userID int64) *model.Cart {
	c, ok := m.carts[userID]
	if !ok {
		c = &model.Cart{ID: m.id(), UserID: userID}
		m.carts[userID] = c
	}
	return c
}

func (m *memRepo) GetCart(ctx context.Context, userID int64) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return &model.Cart{UserID: userID}, nil
	}
	return copyCart(c), nil
}

func (m *memRepo) UpsertCartItem(ctx context.Context, userID int64, item model.CartItem) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cartLocked(userID)
	if _, err := c.Upsert(item); err != nil {
		return nil, err
	}
	return copyCart(c), nil
}

func (m *memRepo) SetCartItemQuantity(ctx context.Context, userID int64, key model.ItemKey, quantity int) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	idx := c.Find(key)
	if idx < 0 || c.Items[idx].Type == model.ItemTypeBlindBoxProduct {
		return nil, repository.ErrCartItemNotFound
	}
	c.Items[idx].Quantity = quantity
	c.RecomputeTotal()
	return copyCart(c), nil
}

func (m *memRepo) RemoveCartItem(ctx context.Context, userID int64, key model.ItemKey) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	idx := c.Find(key)
	if idx < 0 || c.Items[idx].Type == model.ItemTypeBlindBoxProduct {
		return nil, repository.ErrCartItemNotFound
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.RecomputeTotal()
	return copyCart(c), nil
}

func (m *memRepo) ClearCart(ctx context.Context, userID int64) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return &model.Cart{UserID: userID}, nil
	}
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.Type == model.ItemTypeBlindBoxProduct {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	c.RecomputeTotal()
	return copyCart(c), nil
}

func (m *memRepo) CreateOrder(ctx context.Context, in repository.CreateOrderInput) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takenNumbers > 0 {
		m.takenNumbers--
		return nil, repository.ErrOrderNumberTaken
	}
	c, ok := m.carts[in.UserID]
	if !ok || c.IsEmpty() {
		return nil, repository.ErrEmptyCart
	}

	status := model.OrderStatusPendingPayment
	if in.Method == model.PaymentMethodCOD {
		status = model.OrderStatusPlaced
	}
	o := &model.Order{
		ID:             m.id(),
		Number:         in.Number,
		UserID:         in.UserID,
		Status:         status,
		PaymentMethod:  in.Method,
		Items:          model.OrderItemsFromCart(c),
		TotalCents:     c.RecomputeTotal(),
		Shipping:       in.Shipping,
		TransactionRef: in.TransactionRef,
		CreatedAt:      time.Now(),
	}
	m.orders[o.Number] = o
	if in.Method == model.PaymentMethodCOD {
		delete(m.carts, in.UserID)
	}
	cp := *o
	return &cp, nil
}

func (m *memRepo) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[number]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memRepo) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (m *memRepo) ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.Order
	for _, o := range m.orders {
		res = append(res, *o)
	}
	return res, nil
}

func (m *memRepo) MarkOrderPaid(ctx context.Context, number, transactionRef string) (*model.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[number]
	if !ok {
		return nil, false, repository.ErrOrderNotFound
	}
	switch o.Status {
	case model.OrderStatusPaid:
		cp := *o
		return &cp, true, nil
	case model.OrderStatusCancelled:
		return nil, false, repository.ErrOrderClosed
	}

	now := time.Now()
	o.Status = model.OrderStatusPaid
	o.PaidAt = &now
	if transactionRef != "" {
		o.TransactionRef = transactionRef
	}
	if u, ok := m.users[o.UserID]; ok {
		u.BlindBoxSpinCount += o.SpinsGranted()
	}
	if c, ok := m.carts[o.UserID]; ok && o.PaymentMethod == model.PaymentMethodGateway {
		next := copyCart(c)
		next.RemoveOrdered(o.Items)
		m.carts[o.UserID] = next
	}
	cp := *o
	return &cp, false, nil
}

func (m *memRepo) SetOrderStatus(ctx context.Context, number string, status model.OrderStatus) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[number]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if o.Status == model.OrderStatusPaid {
		return nil, repository.ErrOrderClosed
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (m *memRepo) GetOrdersPendingPayment(ctx context.Context, limit int) ([]repository.OrderForPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []repository.OrderForPayment
	for _, o := range m.orders {
		if o.Status == model.OrderStatusPendingPayment {
			res = append(res, repository.OrderForPayment{Number: o.Number, TotalCents: o.TotalCents})
		}
	}
	return res, nil
}
