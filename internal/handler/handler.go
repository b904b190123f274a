// Package handler содержит HTTP-обработчики API магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/blindbox-shop/internal/middleware"
	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/service"
	"github.com/mmeshcher/blindbox-shop/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (*model.User, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	ListUserSpins(ctx context.Context, userID int64) ([]model.SpinRecord, error)
	ListUserOrders(ctx context.Context, userID int64) ([]model.Order, error)

	ListProducts(ctx context.Context, q service.ProductQuery) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListBlindBoxes(ctx context.Context) ([]model.BlindBox, error)
	GetBlindBoxBySlug(ctx context.Context, slug string) (*model.BlindBox, error)

	Spin(ctx context.Context, userID int64, req service.SpinRequest) (*model.SpinResult, error)

	GetCart(ctx context.Context, userID int64) (*model.Cart, error)
	AddToCart(ctx context.Context, userID int64, in service.CartItemInput) (*model.Cart, error)
	UpdateCartItem(ctx context.Context, userID int64, in service.CartItemInput) (*model.Cart, error)
	RemoveCartItem(ctx context.Context, userID int64, t model.ItemType, refID int64) (*model.Cart, error)
	ClearCart(ctx context.Context, userID int64) (*model.Cart, error)

	Checkout(ctx context.Context, userID int64, in service.CheckoutInput) (*service.CheckoutResult, error)
	PaymentQR(ctx context.Context, userID int64, number string) ([]byte, error)
	HandlePaymentCallback(ctx context.Context, params url.Values) (*model.Order, error)

	CreateProduct(ctx context.Context, in service.ProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, id int64, in service.ProductInput) (*model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	CreateBlindBox(ctx context.Context, in service.BlindBoxInput) (*model.BlindBox, error)
	UpdateBlindBox(ctx context.Context, id int64, in service.BlindBoxInput) (*model.BlindBox, error)
	DeleteBlindBox(ctx context.Context, id int64) error
	ListUsers(ctx context.Context, limit, offset int) ([]model.User, error)
	GrantSpins(ctx context.Context, userID int64, count int) (int, error)
	ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error)
	SetOrderStatus(ctx context.Context, number string, status model.OrderStatus) (*model.Order, error)
	ListSpins(ctx context.Context, blindBoxID int64, limit int) ([]model.SpinRecord, error)
}

// Handler реализует HTTP-обработчики API магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// errorStatuses сопоставляет ошибки сервиса со статусами ответа.
var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrUnauthorized, http.StatusUnauthorized},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrNoSpinsRemaining, http.StatusBadRequest},
	{service.ErrImmutableItem, http.StatusBadRequest},
	{service.ErrOutOfStock, http.StatusBadRequest},
	{service.ErrEmptyCart, http.StatusBadRequest},
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrInvalidSignature, http.StatusBadRequest},
	{service.ErrAmountMismatch, http.StatusBadRequest},
	{service.ErrBlindBoxNotFound, http.StatusNotFound},
	{service.ErrProductNotFound, http.StatusNotFound},
	{service.ErrCartItemNotFound, http.StatusNotFound},
	{service.ErrOrderNotFound, http.StatusNotFound},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrUserExists, http.StatusConflict},
	{service.ErrSlugExists, http.StatusConflict},
	{service.ErrInUse, http.StatusConflict},
	{service.ErrOrderClosed, http.StatusConflict},
	{service.ErrInvalidBlindBox, http.StatusUnprocessableEntity},
	{service.ErrPaymentDisabled, http.StatusServiceUnavailable},
	{service.ErrMisconfiguredBox, http.StatusInternalServerError},
	{service.ErrSpinPersistence, http.StatusInternalServerError},
}

// writeServiceError переводит ошибку сервиса в ответ. Ошибки 5xx пишутся в лог,
// клиент получает только текст известной ошибки.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, e := range errorStatuses {
		if !errors.Is(err, e.err) {
			continue
		}
		if e.status >= http.StatusInternalServerError {
			h.logger.Error(op+" error", zap.Error(err), zap.String("path", r.URL.Path))
			writeMessage(w, e.status, e.err.Error())
			return
		}
		writeMessage(w, e.status, err.Error())
		return
	}

	if errors.Is(err, context.Canceled) {
		return
	}

	h.logger.Error(op+" error", zap.Error(err), zap.String("path", r.URL.Path))
	writeMessage(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// decodeJSON читает тело запроса и проверяет теги validate.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	if err := validation.Struct(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func currentUser(r *http.Request) int64 {
	id, _ := middleware.GetUserIDFromContext(r.Context())
	return id
}

func pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Register обрабатывает регистрацию нового пользователя и сразу открывает сессию.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "register user", err)
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, u.ID, u.IsAdmin); err != nil {
		h.writeServiceError(w, r, "issue session", err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "login user", err)
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, u.ID, u.IsAdmin); err != nil {
		h.writeServiceError(w, r, "issue session", err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// Logout закрывает сессию.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me возвращает профиль текущего пользователя с остатком прокрутов.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetUser(r.Context(), currentUser(r))
	if err != nil {
		h.writeServiceError(w, r, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// MySpins возвращает историю прокрутов текущего пользователя.
func (h *Handler) MySpins(w http.ResponseWriter, r *http.Request) {
	spins, err := h.service.ListUserSpins(r.Context(), currentUser(r))
	if err != nil {
		h.writeServiceError(w, r, "list user spins", err)
		return
	}
	writeJSON(w, http.StatusOK, newSpinRecordsResponse(spins))
}

// MyOrders возвращает заказы текущего пользователя.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListUserOrders(r.Context(), currentUser(r))
	if err != nil {
		h.writeServiceError(w, r, "list user orders", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(orders))
}
