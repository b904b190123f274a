package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/payment"
	"github.com/mmeshcher/blindbox-shop/internal/repository"
	"github.com/mmeshcher/blindbox-shop/internal/validation"
)

// Код успешной оплаты в обратном вызове шлюза.
const responseCodeSuccess = "00"

// Число попыток подобрать свободный номер заказа.
const orderNumberAttempts = 5

// CheckoutInput описывает оформление заказа.
type CheckoutInput struct {
	Method   model.PaymentMethod
	Shipping model.ShippingInfo
}

// CheckoutResult: созданный заказ и, для оплаты через шлюз, ссылка на оплату.
type CheckoutResult struct {
	Order      *model.Order
	PaymentURL string
}

// Checkout оформляет корзину пользователя в заказ.
func (s *Service) Checkout(ctx context.Context, userID int64, in CheckoutInput) (*CheckoutResult, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	var txRef string
	switch in.Method {
	case model.PaymentMethodCOD:
	case model.PaymentMethodGateway:
		if s.gateway == nil || !s.gateway.Configured() {
			return nil, ErrPaymentDisabled
		}
		txRef = uuid.NewString()
	default:
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, in.Method)
	}

	var order *model.Order
	for attempt := 0; attempt < orderNumberAttempts && order == nil; attempt++ {
		number, err := validation.GenerateOrderNumber()
		if err != nil {
			return nil, err
		}

		order, err = s.repo.CreateOrder(ctx, repository.CreateOrderInput{
			UserID:         userID,
			Number:         number,
			Method:         in.Method,
			Shipping:       in.Shipping,
			TransactionRef: txRef,
		})
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrOrderNumberTaken):
			s.logger.Warn("order number collision", zap.String("number", number))
		case errors.Is(err, repository.ErrEmptyCart):
			return nil, ErrEmptyCart
		default:
			return nil, err
		}
	}
	if order == nil {
		return nil, ErrOrderNumberFailed
	}

	s.logger.Info("order created",
		zap.String("number", order.Number),
		zap.Int64("user_id", userID),
		zap.String("method", string(order.PaymentMethod)),
		zap.Int64("total_cents", order.TotalCents),
	)

	res := &CheckoutResult{Order: order}
	if order.PaymentMethod != model.PaymentMethodGateway {
		return res, nil
	}

	// Заказ только из выигранных товаров платить нечем.
	if order.TotalCents == 0 {
		paid, err := s.markPaid(ctx, order.Number, order.TransactionRef)
		if err != nil {
			return nil, err
		}
		res.Order = paid
		return res, nil
	}

	link, err := s.gateway.PaymentURL(order.Number, order.TotalCents, order.TransactionRef, s.returnURL)
	if err != nil {
		return nil, err
	}
	res.PaymentURL = link
	return res, nil
}

// PaymentQR возвращает PNG с QR-кодом ссылки на оплату заказа пользователя.
func (s *Service) PaymentQR(ctx context.Context, userID int64, number string) ([]byte, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if s.gateway == nil || !s.gateway.Configured() {
		return nil, ErrPaymentDisabled
	}

	order, err := s.getOrder(ctx, number)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if order.PaymentMethod != model.PaymentMethodGateway || order.Status != model.OrderStatusPendingPayment {
		return nil, ErrOrderClosed
	}

	link, err := s.gateway.PaymentURL(order.Number, order.TotalCents, order.TransactionRef, s.returnURL)
	if err != nil {
		return nil, err
	}
	return payment.QRCode(link, payment.DefaultQRSize)
}

// HandlePaymentCallback обрабатывает подписанный обратный вызов шлюза.
func (s *Service) HandlePaymentCallback(ctx context.Context, params url.Values) (*model.Order, error) {
	if s.verifier == nil {
		return nil, ErrPaymentDisabled
	}
	if err := s.verifier.Verify(params); err != nil {
		s.logger.Warn("payment callback rejected", zap.Error(err))
		return nil, ErrInvalidSignature
	}

	number := params.Get("orderNumber")
	if !validation.IsValidOrderNumber(number) {
		return nil, fmt.Errorf("%w: order number", ErrInvalidInput)
	}

	order, err := s.getOrder(ctx, number)
	if err != nil {
		return nil, err
	}

	amount, err := strconv.ParseInt(params.Get("amount"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount", ErrInvalidInput)
	}
	if amount != order.TotalCents {
		s.logger.Warn("payment amount mismatch",
			zap.String("number", number), zap.Int64("amount", amount), zap.Int64("total_cents", order.TotalCents))
		return nil, ErrAmountMismatch
	}

	if params.Get("responseCode") == responseCodeSuccess {
		return s.markPaid(ctx, number, params.Get("transactionRef"))
	}

	if order.Status != model.OrderStatusPendingPayment {
		return order, nil
	}
	return s.setStatus(ctx, number, model.OrderStatusFailed)
}

// ListUserOrders возвращает заказы пользователя.
func (s *Service) ListUserOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	return s.repo.ListOrdersByUser(ctx, userID)
}

func (s *Service) getOrder(ctx context.Context, number string) (*model.Order, error) {
	order, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// markPaid подтверждает оплату. Повторное подтверждение ничего не меняет.
func (s *Service) markPaid(ctx context.Context, number, transactionRef string) (*model.Order, error) {
	order, alreadyPaid, err := s.repo.MarkOrderPaid(ctx, number, transactionRef)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return nil, ErrOrderNotFound
		case errors.Is(err, repository.ErrOrderClosed):
			return nil, ErrOrderClosed
		}
		return nil, err
	}

	if !alreadyPaid {
		s.logger.Info("order paid",
			zap.String("number", number),
			zap.Int64("user_id", order.UserID),
			zap.Int("spins_granted", order.SpinsGranted()),
		)
	}
	return order, nil
}

func (s *Service) setStatus(ctx context.Context, number string, status model.OrderStatus) (*model.Order, error) {
	order, err := s.repo.SetOrderStatus(ctx, number, status)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return nil, ErrOrderNotFound
		case errors.Is(err, repository.ErrOrderClosed):
			return nil, ErrOrderClosed
		}
		return nil, err
	}
	return order, nil
}
