package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/repository"
	"github.com/mmeshcher/blindbox-shop/internal/slug"
	"github.com/mmeshcher/blindbox-shop/internal/validation"
)

// ProductInput: редактируемые поля товара.
type ProductInput struct {
	Name        string
	Slug        string
	Description string
	PriceCents  int64
	Images      []string
	Category    string
	InStock     bool
}

// BlindBoxInput: редактируемые поля коробки и её состав.
type BlindBoxInput struct {
	Name        string
	Slug        string
	Description string
	Image       string
	PriceCents  int64
	Entries     []model.BlindBoxEntry
}

func makeSlug(explicit, name string) (string, error) {
	s := slug.Make(explicit)
	if s == "" {
		s = slug.Make(name)
	}
	if s == "" {
		return "", fmt.Errorf("%w: slug is empty", ErrInvalidInput)
	}
	return s, nil
}

func (in ProductInput) product(id int64) (*model.Product, error) {
	if in.PriceCents < 0 {
		return nil, fmt.Errorf("%w: negative price", ErrInvalidInput)
	}
	s, err := makeSlug(in.Slug, in.Name)
	if err != nil {
		return nil, err
	}
	return &model.Product{
		ID:          id,
		Name:        in.Name,
		Slug:        s,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Images:      in.Images,
		Category:    in.Category,
		InStock:     in.InStock,
	}, nil
}

func (in BlindBoxInput) blindBox(id int64) (*model.BlindBox, error) {
	if in.PriceCents < 0 {
		return nil, fmt.Errorf("%w: negative price", ErrInvalidInput)
	}
	if err := validation.BlindBoxEntries(in.Entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlindBox, err)
	}
	s, err := makeSlug(in.Slug, in.Name)
	if err != nil {
		return nil, err
	}
	return &model.BlindBox{
		ID:          id,
		Name:        in.Name,
		Slug:        s,
		Description: in.Description,
		Image:       in.Image,
		PriceCents:  in.PriceCents,
		Products:    in.Entries,
	}, nil
}

func adminError(err error, notFound error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrSlugExists):
		return ErrSlugExists
	case errors.Is(err, repository.ErrInUse):
		return ErrInUse
	default:
		return err
	}
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	p, err := in.product(0)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return nil, adminError(err, ErrProductNotFound)
	}
	return created, nil
}

// UpdateProduct перезаписывает товар.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*model.Product, error) {
	p, err := in.product(id)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateProduct(ctx, p)
	if err != nil {
		return nil, adminError(err, ErrProductNotFound)
	}
	return updated, nil
}

// DeleteProduct удаляет товар, если он не входит в коробки и историю прокрутов.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return adminError(s.repo.DeleteProduct(ctx, id), ErrProductNotFound)
}

// CreateBlindBox создаёт коробку. Сумма вероятностей должна быть ровно 100.
func (s *Service) CreateBlindBox(ctx context.Context, in BlindBoxInput) (*model.BlindBox, error) {
	b, err := in.blindBox(0)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CreateBlindBox(ctx, b)
	if err != nil {
		return nil, adminError(err, fmt.Errorf("%w: unknown product", ErrInvalidBlindBox))
	}
	return created, nil
}

// UpdateBlindBox перезаписывает коробку вместе с составом.
func (s *Service) UpdateBlindBox(ctx context.Context, id int64, in BlindBoxInput) (*model.BlindBox, error) {
	b, err := in.blindBox(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetBlindBoxByID(ctx, id); err != nil {
		return nil, adminError(err, ErrBlindBoxNotFound)
	}
	updated, err := s.repo.UpdateBlindBox(ctx, b)
	if err != nil {
		return nil, adminError(err, fmt.Errorf("%w: unknown product", ErrInvalidBlindBox))
	}
	return updated, nil
}

// DeleteBlindBox удаляет коробку без истории прокрутов.
func (s *Service) DeleteBlindBox(ctx context.Context, id int64) error {
	return adminError(s.repo.DeleteBlindBox(ctx, id), ErrBlindBoxNotFound)
}

// ListUsers возвращает страницу пользователей.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListUsers(ctx, limit, offset)
}

// GrantSpins начисляет пользователю прокруты и возвращает новый остаток.
func (s *Service) GrantSpins(ctx context.Context, userID int64, count int) (int, error) {
	if count < 1 {
		return 0, fmt.Errorf("%w: count must be at least 1", ErrInvalidInput)
	}
	spins, err := s.repo.GrantSpins(ctx, userID, count)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	s.logger.Info("spins granted", zap.Int64("user_id", userID), zap.Int("count", count), zap.Int("balance", spins))
	return spins, nil
}

// ListOrders возвращает страницу всех заказов.
func (s *Service) ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListOrders(ctx, limit, offset)
}

// SetOrderStatus меняет статус заказа. Перевод в PAID начисляет прокруты как при оплате.
func (s *Service) SetOrderStatus(ctx context.Context, number string, status model.OrderStatus) (*model.Order, error) {
	if status == model.OrderStatusPaid {
		return s.markPaid(ctx, number, "")
	}
	return s.setStatus(ctx, number, status)
}

// ListSpins возвращает журнал прокрутов. Нулевой blindBoxID: все коробки.
func (s *Service) ListSpins(ctx context.Context, blindBoxID int64, limit int) ([]model.SpinRecord, error) {
	limit, _ = clampPage(limit, 0)
	return s.repo.ListSpins(ctx, blindBoxID, limit)
}
