package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/payment"
)

// Размер пачки заказов, опрашиваемых за один тик.
const paymentBatchSize = 100

// RunPaymentUpdates опрашивает шлюз о заказах, ожидающих оплаты, пока не отменён ctx.
// Без настроенного шлюза возвращается сразу.
func (s *Service) RunPaymentUpdates(ctx context.Context) {
	if s.gateway == nil || !s.gateway.Configured() {
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processPaymentBatch(ctx)
		}
	}
}

func (s *Service) processPaymentBatch(ctx context.Context) {
	orders, err := s.repo.GetOrdersPendingPayment(ctx, paymentBatchSize)
	if err != nil {
		s.logger.Error("load pending orders", zap.Error(err))
		return
	}

	for _, o := range orders {
		resp, statusCode, retryAfter, err := s.gateway.GetPaymentStatus(ctx, o.Number)
		if err != nil {
			s.logger.Warn("payment status request failed", zap.String("number", o.Number), zap.Error(err))
			continue
		}

		if statusCode == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if resp == nil {
			continue
		}

		switch resp.Status {
		case payment.StatusPaid:
			if resp.Amount != o.TotalCents {
				s.logger.Warn("payment amount mismatch",
					zap.String("number", o.Number), zap.Int64("amount", resp.Amount), zap.Int64("total_cents", o.TotalCents))
				continue
			}
			if _, err := s.markPaid(ctx, o.Number, resp.TransactionRef); err != nil {
				s.logger.Error("mark order paid", zap.String("number", o.Number), zap.Error(err))
			}
		case payment.StatusFailed, payment.StatusExpired:
			if _, err := s.setStatus(ctx, o.Number, model.OrderStatusFailed); err != nil {
				s.logger.Error("mark order failed", zap.String("number", o.Number), zap.Error(err))
			}
		default:
			continue
		}
	}
}
