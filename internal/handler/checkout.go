package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/blindbox-shop/internal/model"
	"github.com/mmeshcher/blindbox-shop/internal/service"
)

type checkoutRequest struct {
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=cod gateway"`
	FullName      string `json:"fullName" validate:"required,max=200"`
	Phone         string `json:"phone" validate:"required,min=6,max=32"`
	Address       string `json:"address" validate:"required,max=500"`
}

// Checkout оформляет корзину в заказ. Для оплаты через шлюз в ответе есть paymentUrl.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Checkout(r.Context(), currentUser(r), service.CheckoutInput{
		Method: model.PaymentMethod(req.PaymentMethod),
		Shipping: model.ShippingInfo{
			FullName: req.FullName,
			Phone:    req.Phone,
			Address:  req.Address,
		},
	})
	if err != nil {
		h.writeServiceError(w, r, "checkout", err)
		return
	}

	resp := newOrderResponse(res.Order)
	resp.PaymentURL = res.PaymentURL
	writeJSON(w, http.StatusCreated, resp)
}

// OrderQR отдаёт PNG с QR-кодом ссылки на оплату.
func (h *Handler) OrderQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.service.PaymentQR(r.Context(), currentUser(r), chi.URLParam(r, "number"))
	if err != nil {
		h.writeServiceError(w, r, "order qr", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type paymentCallbackResponse struct {
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}

// PaymentCallback принимает подписанный обратный вызов платёжного шлюза.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.HandlePaymentCallback(r.Context(), r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, "payment callback", err)
		return
	}
	writeJSON(w, http.StatusOK, paymentCallbackResponse{
		OrderNumber: order.Number,
		Status:      string(order.Status),
	})
}
