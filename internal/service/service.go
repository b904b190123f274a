// Package service реализует бизнес-логику магазина с блайндбоксами.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/payment"
	"github.com/mmeshcher/blindbox-shop/internal/prize"
	"github.com/mmeshcher/blindbox-shop/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	EnsureAdmin(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]model.User, error)
	GrantSpins(ctx context.Context, userID int64, count int) (int, error)

	CreateProduct(ctx context.Context, p *model.Product) (*model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) (*model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error)
	ListCategories(ctx context.Context) ([]string, error)

	CreateBlindBox(ctx context.Context, b *model.BlindBox) (*model.BlindBox, error)
	UpdateBlindBox(ctx context.Context, b *model.BlindBox) (*model.BlindBox, error)
	DeleteBlindBox(ctx context.Context, id int64) error
	GetBlindBoxByID(ctx context.Context, id int64) (*model.BlindBox, error)
	GetBlindBoxBySlug(ctx context.Context, slug string) (*model.BlindBox, error)
	ListBlindBoxes(ctx context.Context) ([]model.BlindBox, error)

	ApplySpin(ctx context.Context, in repository.SpinInput) (*repository.SpinOutcome, error)
	ListSpinsByUser(ctx context.Context, userID int64, limit int) ([]model.SpinRecord, error)
	ListSpins(ctx context.Context, blindBoxID int64, limit int) ([]model.SpinRecord, error)

	GetCart(ctx context.Context, userID int64) (*model.Cart, error)
	UpsertCartItem(ctx context.Context, userID int64, item model.CartItem) (*model.Cart, error)
	SetCartItemQuantity(ctx context.Context, userID int64, key model.ItemKey, quantity int) (*model.Cart, error)
	RemoveCartItem(ctx context.Context, userID int64, key model.ItemKey) (*model.Cart, error)
	ClearCart(ctx context.Context, userID int64) (*model.Cart, error)

	CreateOrder(ctx context.Context, in repository.CreateOrderInput) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error)
	MarkOrderPaid(ctx context.Context, number, transactionRef string) (*model.Order, bool, error)
	SetOrderStatus(ctx context.Context, number string, status model.OrderStatus) (*model.Order, error)
	GetOrdersPendingPayment(ctx context.Context, limit int) ([]repository.OrderForPayment, error)
}

// PaymentGateway описывает обращения к платёжному шлюзу.
type PaymentGateway interface {
	Configured() bool
	PaymentURL(orderNumber string, amountCents int64, transactionRef, returnURL string) (string, error)
	GetPaymentStatus(ctx context.Context, number string) (*payment.Status, int, time.Duration, error)
}

// CallbackVerifier проверяет подпись обратного вызова шлюза.
type CallbackVerifier interface {
	Verify(params url.Values) error
}

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Gateway      PaymentGateway
	Verifier     CallbackVerifier
	Source       prize.Source
	Logger       *zap.Logger
	ReturnURL    string
	PollInterval time.Duration
}

// Service содержит бизнес-логику магазина.
type Service struct {
	repo         Repository
	gateway      PaymentGateway
	verifier     CallbackVerifier
	source       prize.Source
	logger       *zap.Logger
	returnURL    string
	pollInterval time.Duration
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:         repo,
		gateway:      opts.Gateway,
		verifier:     opts.Verifier,
		source:       opts.Source,
		logger:       opts.Logger,
		returnURL:    opts.ReturnURL,
		pollInterval: opts.PollInterval,
	}
	if s.source == nil {
		s.source = prize.CryptoSource{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.pollInterval <= 0 {
		s.pollInterval = time.Second
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (*model.User, error) {
	hashed, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return &model.User{ID: id, Login: login}, nil
}

// AuthenticateUser проверяет логин и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUser возвращает профиль пользователя.
func (s *Service) GetUser(ctx context.Context, userID int64) (*model.User, error) {
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
	return u, nil
}

// EnsureAdmin создаёт администратора из конфигурации, если он ещё не существует.
func (s *Service) EnsureAdmin(ctx context.Context, login, password string) error {
	if login == "" || password == "" {
		return nil
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}

	id, err := s.repo.EnsureAdmin(ctx, login, hashed)
	if err != nil {
		return err
	}

	s.logger.Info("admin account ready", zap.String("login", login), zap.Int64("user_id", id))
	return nil
}

func hashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hashed, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
