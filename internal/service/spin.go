package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/prize"
	"github.com/mmeshcher/blindbox-shop/internal/repository"
	"github.com/mmeshcher/blindbox-shop/internal/validation"
)

// SpinRequest описывает запрос на прокрут коробки.
// RequestID делает повтор запроса безопасным: повтор вернёт уже записанный результат.
type SpinRequest struct {
	BlindBoxID int64
	RequestID  *uuid.UUID
}

// Spin прокручивает коробку: выбирает приз и атомарно списывает прокрут,
// пишет аудит, кладёт приз в корзину и увеличивает счётчик открытий.
func (s *Service) Spin(ctx context.Context, userID int64, req SpinRequest) (*model.SpinResult, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	// Повтор с RequestID должен вернуть записанный результат и при нулевом остатке.
	// Окончательно остаток проверяет условное списание в ApplySpin.
	if req.RequestID == nil && u.BlindBoxSpinCount <= 0 {
		return nil, ErrNoSpinsRemaining
	}

	box, err := s.repo.GetBlindBoxByID(ctx, req.BlindBoxID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBlindBoxNotFound
		}
		return nil, err
	}

	if err := validation.SpinnableBox(box); err != nil {
		s.logger.Error("blindbox probabilities are broken",
			zap.Int64("blindbox_id", box.ID), zap.Int("total", box.ProbabilityTotal()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrMisconfiguredBox, err)
	}

	entries := make([]prize.Entry, len(box.Products))
	for i, e := range box.Products {
		entries[i] = prize.Entry{Ref: e.ProductID, Weight: e.Probability}
	}

	won, err := prize.Select(s.source, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfiguredBox, err)
	}

	out, err := s.repo.ApplySpin(ctx, repository.SpinInput{
		UserID:     userID,
		BlindBoxID: box.ID,
		ProductID:  won.Ref,
		RequestID:  req.RequestID,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNoSpinsRemaining):
			return nil, ErrNoSpinsRemaining
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUnauthorized
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrBlindBoxNotFound
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		}
		s.logger.Error("spin transaction failed",
			zap.Int64("user_id", userID), zap.Int64("blindbox_id", box.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSpinPersistence, err)
	}

	if out.Replayed && out.Record.BlindBoxID != box.ID {
		return nil, fmt.Errorf("%w: request id already used for another blindbox", ErrInvalidInput)
	}

	res := &model.SpinResult{
		SpinID:         out.Record.ID,
		RemainingSpins: out.RemainingSpins,
		Replayed:       out.Replayed,
		PrizeIndex:     won.Index,
	}

	if out.Replayed {
		res.PrizeIndex = box.EntryIndex(out.Record.ProductID)
	}

	if res.PrizeIndex >= 0 && box.Products[res.PrizeIndex].Product != nil {
		res.PrizeProduct = *box.Products[res.PrizeIndex].Product
	} else {
		// Состав коробки изменился после записанного прокрута.
		p, err := s.GetProduct(ctx, out.Record.ProductID)
		if err != nil {
			return nil, err
		}
		res.PrizeProduct = *p
	}

	s.logger.Info("blindbox opened",
		zap.Int64("user_id", userID),
		zap.Int64("blindbox_id", box.ID),
		zap.Int64("product_id", out.Record.ProductID),
		zap.Bool("replayed", out.Replayed),
	)

	return res, nil
}

// ListUserSpins возвращает историю прокрутов пользователя.
func (s *Service) ListUserSpins(ctx context.Context, userID int64) ([]model.SpinRecord, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	return s.repo.ListSpinsByUser(ctx, userID, 100)
}
