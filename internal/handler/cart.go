package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/service"
)

type cartItemRequest struct {
	Type     string `json:"type" validate:"required"`
	RefID    int64  `json:"refId" validate:"required,gt=0"`
	Quantity int    `json:"quantity" validate:"required,gt=0,lte=1000"`
}

func (req cartItemRequest) input() service.CartItemInput {
	return service.CartItemInput{
		Type:     model.ItemType(req.Type),
		RefID:    req.RefID,
		Quantity: req.Quantity,
	}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCart(r.Context(), currentUser(r))
	if err != nil {
		h.writeServiceError(w, r, "get cart", err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// AddCartItem добавляет товар или коробку в корзину либо увеличивает количество.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.AddToCart(r.Context(), currentUser(r), req.input())
	if err != nil {
		h.writeServiceError(w, r, "add cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// UpdateCartItem задаёт количество строки корзины.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.UpdateCartItem(r.Context(), currentUser(r), req.input())
	if err != nil {
		h.writeServiceError(w, r, "update cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	refID, err := strconv.ParseInt(chi.URLParam(r, "refId"), 10, 64)
	if err != nil || refID <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid refId")
		return
	}

	c, err := h.service.RemoveCartItem(r.Context(), currentUser(r), model.ItemType(chi.URLParam(r, "type")), refID)
	if err != nil {
		h.writeServiceError(w, r, "remove cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// ClearCart убирает покупаемые позиции, выигранные остаются.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.ClearCart(r.Context(), currentUser(r))
	if err != nil {
		h.writeServiceError(w, r, "clear cart", err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

type spinRequest struct {
	BlindBoxID entityID `json:"blindboxId" validate:"required,gt=0"`
	RequestID  string   `json:"requestId,omitempty" validate:"omitempty,uuid"`
}

// Spin прокручивает коробку за один прокрут пользователя.
func (h *Handler) Spin(w http.ResponseWriter, r *http.Request) {
	var req spinRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := service.SpinRequest{BlindBoxID: int64(req.BlindBoxID)}
	if req.RequestID != "" {
		id, err := uuid.Parse(req.RequestID)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid requestId")
			return
		}
		in.RequestID = &id
	}

	res, err := h.service.Spin(r.Context(), currentUser(r), in)
	if err != nil {
		h.writeServiceError(w, r, "spin", err)
		return
	}

	writeJSON(w, http.StatusOK, spinResponse{
		PrizeIndex:     res.PrizeIndex,
		PrizeProduct:   newProductResponse(&res.PrizeProduct),
		SpinID:         res.SpinID,
		RemainingSpins: res.RemainingSpins,
		Replayed:       res.Replayed,
	})
}
