package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/blindbox-shop/internal/middleware"
	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/service"
)

// stubService реализует только нужные тестам методы; остальные паникуют через nil Service.
type stubService struct {
	Service

	user    *model.User
	userErr error

	ordersResp []model.Order
	ordersErr  error

	spinReq  service.SpinRequest
	spinResp *model.SpinResult
	spinErr  error

	cartResp *model.Cart
	cartErr  error
	removed  model.ItemType

	checkoutIn   service.CheckoutInput
	checkoutResp *service.CheckoutResult
	checkoutErr  error

	callbackResp *model.Order
	callbackErr  error

	createdBox service.BlindBoxInput
	boxErr     error
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubService) ListUserOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) Spin(ctx context.Context, userID int64, req service.SpinRequest) (*model.SpinResult, error) {
	s.spinReq = req
	return s.spinResp, s.spinErr
}

func (s *stubService) GetCart(ctx context.Context, userID int64) (*model.Cart, error) {
	return s.cartResp, s.cartErr
}

func (s *stubService) RemoveCartItem(ctx context.Context, userID int64, t model.ItemType, refID int64) (*model.Cart, error) {
	s.removed = t
	return s.cartResp, s.cartErr
}

func (s *stubService) Checkout(ctx context.Context, userID int64, in service.CheckoutInput) (*service.CheckoutResult, error) {
	s.checkoutIn = in
	return s.checkoutResp, s.checkoutErr
}

func (s *stubService) HandlePaymentCallback(ctx context.Context, params url.Values) (*model.Order, error) {
	return s.callbackResp, s.callbackErr
}

func (s *stubService) CreateBlindBox(ctx context.Context, in service.BlindBoxInput) (*model.BlindBox, error) {
	s.createdBox = in
	if s.boxErr != nil {
		return nil, s.boxErr
	}
	return &model.BlindBox{ID: 1, Name: in.Name, Slug: "box", PriceCents: in.PriceCents, Products: in.Entries}, nil
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret", time.Hour)

	return NewHandler(svc, logger, auth)
}

func sessionCookie(t *testing.T, h *Handler, userID int64, admin bool) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	require.NoError(t, h.authMiddleware.SetAuthCookie(rec, userID, admin))
	return rec.Result().Cookies()[0]
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		user: &model.User{ID: 42, Login: "user"},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "password",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("session cookie was not set")
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/user/register",
		credentialsRequest{Login: "user", Password: "123"}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Password(min)")
}

func TestRegister_Conflict(t *testing.T) {
	h := newTestHandler(t, &stubService{userErr: service.ErrUserExists})

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/user/register",
		credentialsRequest{Login: "user", Password: "password"}, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin_UnauthorizedOnError(t *testing.T) {
	svc := &stubService{
		userErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestMe_ReturnsSpinCount(t *testing.T) {
	svc := &stubService{user: &model.User{ID: 3, Login: "ann", BlindBoxSpinCount: 2}}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/user/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/user/me", nil, sessionCookie(t, h, 3, false))
	require.Equal(t, http.StatusOK, rec.Code)

	var got userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.BlindBoxSpinCount)
	assert.Equal(t, "ann", got.Login)
}

func TestGetOrders_NoContent(t *testing.T) {
	svc := &stubService{
		ordersResp: []model.Order{},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/user/orders", nil)
	req.AddCookie(sessionCookie(t, h, 1, false))
	respRec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.MyOrders))
	handlerWithAuth.ServeHTTP(respRec, req)

	res := respRec.Result()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestSpin_Success(t *testing.T) {
	svc := &stubService{
		spinResp: &model.SpinResult{
			PrizeIndex:     1,
			PrizeProduct:   model.Product{ID: 12, Name: "P2", PriceCents: 2000},
			SpinID:         77,
			RemainingSpins: 2,
		},
	}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/spin",
		map[string]any{"blindboxId": 5, "requestId": "6f1c1f2a-3f1e-4a5b-9c7d-1e2f3a4b5c6d"},
		sessionCookie(t, h, 1, false))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"prizeIndex": 1,
		"prizeProduct": {"id": 12, "name": "P2", "slug": "", "description": "", "price": 20.00,
			"images": [], "category": "", "inStock": false},
		"spinId": 77,
		"remainingSpins": 2
	}`, rec.Body.String())

	assert.Equal(t, int64(5), svc.spinReq.BlindBoxID)
	require.NotNil(t, svc.spinReq.RequestID)
	assert.Equal(t, "6f1c1f2a-3f1e-4a5b-9c7d-1e2f3a4b5c6d", svc.spinReq.RequestID.String())
}

func TestSpin_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"no spins", service.ErrNoSpinsRemaining, http.StatusBadRequest, "no spins remaining"},
		{"unauthorized", service.ErrUnauthorized, http.StatusUnauthorized, ""},
		{"unknown box", service.ErrBlindBoxNotFound, http.StatusNotFound, ""},
		{"misconfigured", service.ErrMisconfiguredBox, http.StatusInternalServerError, service.ErrMisconfiguredBox.Error()},
		{
			"persistence failure hides cause",
			errors.Join(service.ErrSpinPersistence, errors.New("pq: connection reset")),
			http.StatusInternalServerError,
			service.ErrSpinPersistence.Error(),
		},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{spinErr: tt.err})

			rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/spin",
				map[string]any{"blindboxId": 5}, sessionCookie(t, h, 1, false))

			assert.Equal(t, tt.status, rec.Code)
			if tt.message != "" {
				var got messageResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, tt.message, got.Message)
			}
		})
	}
}

func TestSpin_BadRequest(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()
	cookie := sessionCookie(t, h, 1, false)

	tests := []struct {
		name string
		body any
	}{
		{"missing box", map[string]any{}},
		{"malformed request id", map[string]any{"blindboxId": 5, "requestId": "not-a-uuid"}},
		{"negative box", map[string]any{"blindboxId": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/spin", tt.body, cookie)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSpin_BlindBoxIDAsString(t *testing.T) {
	svc := &stubService{spinResp: &model.SpinResult{PrizeProduct: model.Product{ID: 12}, SpinID: 1}}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/spin",
		map[string]any{"blindboxId": "5"}, sessionCookie(t, h, 1, false))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), svc.spinReq.BlindBoxID)
	assert.Nil(t, svc.spinReq.RequestID)

	for _, body := range []map[string]any{{"blindboxId": "five"}, {"blindboxId": "0"}, {"blindboxId": ""}} {
		rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/spin", body, sessionCookie(t, h, 1, false))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
	}
}

func TestSpin_RequiresSession(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/spin", map[string]any{"blindboxId": 5}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRemoveCartItem_ImmutableWonItem(t *testing.T) {
	svc := &stubService{cartErr: service.ErrImmutableItem}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h.SetupRouter(), http.MethodDelete, "/api/cart/items/blindboxProduct/12", nil,
		sessionCookie(t, h, 1, false))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ItemTypeBlindBoxProduct, svc.removed)
}

func TestGetCart_RendersMoney(t *testing.T) {
	svc := &stubService{cartResp: &model.Cart{
		Items: []model.CartItem{
			{Type: model.ItemTypeProduct, ProductID: 1, Quantity: 2, PriceCents: 1050, Name: "Mug"},
			{Type: model.ItemTypeBlindBoxProduct, ProductID: 2, Quantity: 1, Name: "Prize"},
		},
		TotalPriceCents: 2100,
	}}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h.SetupRouter(), http.MethodGet, "/api/cart", nil, sessionCookie(t, h, 1, false))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"totalPrice":21.00`)
	assert.Contains(t, body, `"lineTotal":21.00`)
	assert.Contains(t, body, `"type":"blindboxProduct"`)
	assert.Contains(t, body, `"price":0.00`)
}

func TestCheckout_Gateway(t *testing.T) {
	svc := &stubService{checkoutResp: &service.CheckoutResult{
		Order: &model.Order{
			Number:        "79927398713",
			Status:        model.OrderStatusPendingPayment,
			PaymentMethod: model.PaymentMethodGateway,
			TotalCents:    500,
			CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		PaymentURL: "https://pay.example/checkout?orderNumber=79927398713",
	}}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/checkout", map[string]any{
		"paymentMethod": "gateway",
		"fullName":      "Ann Lee",
		"phone":         "+84901234567",
		"address":       "1 Main St",
	}, sessionCookie(t, h, 1, false))

	require.Equal(t, http.StatusCreated, rec.Code)
	var got orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "PENDING_PAYMENT", got.Status)
	assert.Equal(t, money(500), got.Total)
	assert.Equal(t, "https://pay.example/checkout?orderNumber=79927398713", got.PaymentURL)
	assert.Equal(t, model.PaymentMethodGateway, svc.checkoutIn.Method)
	assert.Equal(t, "Ann Lee", svc.checkoutIn.Shipping.FullName)
}

func TestCheckout_Validation(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/checkout", map[string]any{
		"paymentMethod": "barter",
		"fullName":      "Ann Lee",
		"phone":         "+84901234567",
		"address":       "1 Main St",
	}, sessionCookie(t, h, 1, false))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PaymentMethod(oneof)")
}

func TestPaymentCallback(t *testing.T) {
	tests := []struct {
		name   string
		svc    *stubService
		status int
	}{
		{"paid", &stubService{callbackResp: &model.Order{Number: "79927398713", Status: model.OrderStatusPaid}}, http.StatusOK},
		{"bad signature", &stubService{callbackErr: service.ErrInvalidSignature}, http.StatusBadRequest},
		{"unknown order", &stubService{callbackErr: service.ErrOrderNotFound}, http.StatusNotFound},
		{"disabled", &stubService{callbackErr: service.ErrPaymentDisabled}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)
			rec := doJSON(t, h.SetupRouter(), http.MethodGet,
				"/api/payment/callback?orderNumber=79927398713&amount=500&responseCode=00&signature=x", nil, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAdmin_Guard(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()
	body := map[string]any{"name": "Box", "price": "5.00", "products": []map[string]any{{"productId": 1, "probability": 100}}}

	rec := doJSON(t, router, http.MethodPost, "/api/admin/blindboxes", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/admin/blindboxes", body, sessionCookie(t, h, 1, false))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdmin_CreateBlindBox(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/admin/blindboxes", map[string]any{
		"name":  "Mystery",
		"price": 12.5,
		"products": []map[string]any{
			{"productId": 1, "probability": 70},
			{"productId": 2, "probability": 30},
		},
	}, sessionCookie(t, h, 1, true))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(1250), svc.createdBox.PriceCents)
	require.Len(t, svc.createdBox.Entries, 2)
	assert.Equal(t, 70, svc.createdBox.Entries[0].Probability)
	assert.Contains(t, rec.Body.String(), `"price":12.50`)
}

func TestAdmin_CreateBlindBoxErrors(t *testing.T) {
	tests := []struct {
		name   string
		svc    *stubService
		price  any
		status int
	}{
		{"invalid composition", &stubService{boxErr: service.ErrInvalidBlindBox}, 10, http.StatusUnprocessableEntity},
		{"slug taken", &stubService{boxErr: service.ErrSlugExists}, 10, http.StatusConflict},
		{"fractional cents", &stubService{}, "1.005", http.StatusBadRequest},
		{"negative price", &stubService{}, -1, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)
			rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/admin/blindboxes", map[string]any{
				"name":     "Mystery",
				"price":    tt.price,
				"products": []map[string]any{{"productId": 1, "probability": 100}},
			}, sessionCookie(t, h, 1, true))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := doJSON(t, h.SetupRouter(), http.MethodGet, "/api/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}

func TestMoney_MarshalJSON(t *testing.T) {
	tests := []struct {
		in   money
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{1250, "12.50"},
		{-199, "-1.99"},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(b))
	}
}

func TestMoney_UnmarshalJSON(t *testing.T) {
	var m money
	require.NoError(t, json.Unmarshal([]byte(`12.5`), &m))
	assert.Equal(t, money(1250), m)

	require.NoError(t, json.Unmarshal([]byte(`"0.05"`), &m))
	assert.Equal(t, money(5), m)

	assert.Error(t, json.Unmarshal([]byte(`1.001`), &m))
}

func TestEntityID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    entityID
		wantErr bool
	}{
		{`5`, 5, false},
		{`"42"`, 42, false},
		{`"4x"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		var id entityID
		err := json.Unmarshal([]byte(tt.in), &id)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, id)
	}
}
