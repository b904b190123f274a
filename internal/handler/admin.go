package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/service"
)

type productRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Slug        string          `json:"slug" validate:"max=200"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images" validate:"dive,url"`
	Category    string          `json:"category" validate:"max=100"`
	InStock     *bool           `json:"inStock"`
}

func (req productRequest) input() (service.ProductInput, error) {
	cents, err := toCents(req.Price)
	if err != nil {
		return service.ProductInput{}, err
	}
	inStock := true
	if req.InStock != nil {
		inStock = *req.InStock
	}
	return service.ProductInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		PriceCents:  cents,
		Images:      req.Images,
		Category:    req.Category,
		InStock:     inStock,
	}, nil
}

type blindBoxEntryRequest struct {
	ProductID   int64 `json:"productId" validate:"required,gt=0"`
	Probability int   `json:"probability"`
}

type blindBoxRequest struct {
	Name        string                 `json:"name" validate:"required,max=200"`
	Slug        string                 `json:"slug" validate:"max=200"`
	Description string                 `json:"description"`
	Image       string                 `json:"image" validate:"omitempty,url"`
	Price       decimal.Decimal        `json:"price"`
	Products    []blindBoxEntryRequest `json:"products" validate:"required,dive"`
}

func (req blindBoxRequest) input() (service.BlindBoxInput, error) {
	cents, err := toCents(req.Price)
	if err != nil {
		return service.BlindBoxInput{}, err
	}
	entries := make([]model.BlindBoxEntry, 0, len(req.Products))
	for _, e := range req.Products {
		entries = append(entries, model.BlindBoxEntry{ProductID: e.ProductID, Probability: e.Probability})
	}
	return service.BlindBoxInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Image:       req.Image,
		PriceCents:  cents,
		Entries:     entries,
	}, nil
}

func (h *Handler) decodeProduct(w http.ResponseWriter, r *http.Request) (service.ProductInput, bool) {
	var req productRequest
	if !decodeJSON(w, r, &req) {
		return service.ProductInput{}, false
	}
	in, err := req.input()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return service.ProductInput{}, false
	}
	return in, true
}

func (h *Handler) decodeBlindBox(w http.ResponseWriter, r *http.Request) (service.BlindBoxInput, bool) {
	var req blindBoxRequest
	if !decodeJSON(w, r, &req) {
		return service.BlindBoxInput{}, false
	}
	in, err := req.input()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return service.BlindBoxInput{}, false
	}
	return in, true
}

// AdminCreateProduct добавляет товар в каталог.
func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	p, err := h.service.CreateProduct(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, newProductResponse(p))
}

func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, "update product", err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(p))
}

func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminCreateBlindBox создаёт коробку. Состав проверяется сервисом: сумма вероятностей ровно 100.
func (h *Handler) AdminCreateBlindBox(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeBlindBox(w, r)
	if !ok {
		return
	}

	b, err := h.service.CreateBlindBox(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "create blindbox", err)
		return
	}
	writeJSON(w, http.StatusCreated, newBlindBoxResponse(b))
}

// AdminUpdateBlindBox заменяет поля и состав коробки.
func (h *Handler) AdminUpdateBlindBox(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.decodeBlindBox(w, r)
	if !ok {
		return
	}

	b, err := h.service.UpdateBlindBox(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, "update blindbox", err)
		return
	}
	writeJSON(w, http.StatusOK, newBlindBoxResponse(b))
}

func (h *Handler) AdminDeleteBlindBox(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteBlindBox(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "delete blindbox", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.writeServiceError(w, r, "list users", err)
		return
	}

	res := make([]userResponse, 0, len(users))
	for i := range users {
		res = append(res, newUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, res)
}

type grantSpinsRequest struct {
	Count int `json:"count" validate:"required,gte=1,lte=1000"`
}

type grantSpinsResponse struct {
	UserID            int64 `json:"userId"`
	BlindBoxSpinCount int   `json:"blindboxSpinCount"`
}

// AdminGrantSpins начисляет пользователю прокруты.
func (h *Handler) AdminGrantSpins(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	var req grantSpinsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	spins, err := h.service.GrantSpins(r.Context(), userID, req.Count)
	if err != nil {
		h.writeServiceError(w, r, "grant spins", err)
		return
	}
	writeJSON(w, http.StatusOK, grantSpinsResponse{UserID: userID, BlindBoxSpinCount: spins})
}

func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.writeServiceError(w, r, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(orders))
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminSetOrderStatus меняет статус заказа.
func (h *Handler) AdminSetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := model.ParseOrderStatus(req.Status)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.service.SetOrderStatus(r.Context(), chi.URLParam(r, "number"), status)
	if err != nil {
		h.writeServiceError(w, r, "set order status", err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

// AdminListSpins отдаёт журнал прокрутов, новые первыми.
func (h *Handler) AdminListSpins(w http.ResponseWriter, r *http.Request) {
	spins, err := h.service.ListSpins(r.Context(), int64(queryInt(r, "blindboxId")), queryInt(r, "limit"))
	if err != nil {
		h.writeServiceError(w, r, "list spins", err)
		return
	}
	writeJSON(w, http.StatusOK, newSpinRecordsResponse(spins))
}
