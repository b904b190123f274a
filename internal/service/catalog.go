package service

import (
	"context"
	"errors"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/repository"
)

// ProductQuery задаёт выборку витрины.
type ProductQuery struct {
	Category string
	Limit    int
	Offset   int
}

// ListProducts возвращает страницу товаров каталога.
func (s *Service) ListProducts(ctx context.Context, q ProductQuery) ([]model.Product, error) {
	limit, offset := clampPage(q.Limit, q.Offset)
	return s.repo.ListProducts(ctx, repository.ProductFilter{
		Category: q.Category,
		Limit:    limit,
		Offset:   offset,
	})
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListCategories возвращает список категорий.
func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}

// ListBlindBoxes возвращает все коробки.
func (s *Service) ListBlindBoxes(ctx context.Context) ([]model.BlindBox, error) {
	return s.repo.ListBlindBoxes(ctx)
}

// GetBlindBoxBySlug возвращает коробку со списком возможных призов.
func (s *Service) GetBlindBoxBySlug(ctx context.Context, slug string) (*model.BlindBox, error) {
	b, err := s.repo.GetBlindBoxBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBlindBoxNotFound
		}
		return nil, err
	}
	return b, nil
}
