package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/repository"
)

// CartItemInput описывает строку корзины, которую меняет покупатель.
type CartItemInput struct {
	Type     model.ItemType
	RefID    int64
	Quantity int
}

func (in CartItemInput) key() model.ItemKey {
	return model.ItemKey{Type: in.Type, Ref: in.RefID}
}

// checkMutable отбрасывает неизвестные типы и выигранные товары.
func checkMutable(t model.ItemType) error {
	ok, err := t.UserMutable()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !ok {
		return ErrImmutableItem
	}
	return nil
}

// GetCart возвращает корзину пользователя.
func (s *Service) GetCart(ctx context.Context, userID int64) (*model.Cart, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	return s.repo.GetCart(ctx, userID)
}

// AddToCart добавляет товар или коробку в корзину по текущей цене каталога.
func (s *Service) AddToCart(ctx context.Context, userID int64, in CartItemInput) (*model.Cart, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if err := checkMutable(in.Type); err != nil {
		return nil, err
	}
	if in.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	item := model.CartItem{Type: in.Type, Quantity: in.Quantity}

	switch in.Type {
	case model.ItemTypeProduct:
		p, err := s.GetProduct(ctx, in.RefID)
		if err != nil {
			return nil, err
		}
		if !p.InStock {
			return nil, ErrOutOfStock
		}
		item.ProductID = p.ID
		item.PriceCents = p.PriceCents
	case model.ItemTypeBlindBox:
		b, err := s.repo.GetBlindBoxByID(ctx, in.RefID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrBlindBoxNotFound
			}
			return nil, err
		}
		item.BlindBoxID = b.ID
		item.PriceCents = b.PriceCents
	case model.ItemTypeBlindBoxProduct:
		return nil, ErrImmutableItem
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, model.ErrUnknownItemType)
	}

	cart, err := s.repo.UpsertCartItem(ctx, userID, item)
	if err != nil {
		// Товар или коробку удалили между чтением каталога и записью.
		if errors.Is(err, repository.ErrNotFound) {
			if in.Type == model.ItemTypeBlindBox {
				return nil, ErrBlindBoxNotFound
			}
			return nil, ErrProductNotFound
		}
		return nil, cartError(err)
	}
	return cart, nil
}

// UpdateCartItem задаёт количество покупаемой строки.
func (s *Service) UpdateCartItem(ctx context.Context, userID int64, in CartItemInput) (*model.Cart, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if err := checkMutable(in.Type); err != nil {
		return nil, err
	}
	if in.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	cart, err := s.repo.SetCartItemQuantity(ctx, userID, in.key(), in.Quantity)
	if err != nil {
		return nil, cartError(err)
	}
	return cart, nil
}

// RemoveCartItem удаляет покупаемую строку корзины.
func (s *Service) RemoveCartItem(ctx context.Context, userID int64, t model.ItemType, refID int64) (*model.Cart, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if err := checkMutable(t); err != nil {
		return nil, err
	}

	cart, err := s.repo.RemoveCartItem(ctx, userID, model.ItemKey{Type: t, Ref: refID})
	if err != nil {
		return nil, cartError(err)
	}
	return cart, nil
}

// ClearCart удаляет из корзины всё, кроме выигранных товаров.
func (s *Service) ClearCart(ctx context.Context, userID int64) (*model.Cart, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	return s.repo.ClearCart(ctx, userID)
}

func cartError(err error) error {
	switch {
	case errors.Is(err, repository.ErrCartItemNotFound), errors.Is(err, repository.ErrNotFound):
		return ErrCartItemNotFound
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUnauthorized
	default:
		return err
	}
}
