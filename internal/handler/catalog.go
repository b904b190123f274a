package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/blindbox-shop/internal/service"
)

// ListProducts отдаёт страницу витрины с фильтром по категории.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), service.ProductQuery{
		Category: r.URL.Query().Get("category"),
		Limit:    queryInt(r, "limit"),
		Offset:   queryInt(r, "offset"),
	})
	if err != nil {
		h.writeServiceError(w, r, "list products", err)
		return
	}
	writeJSON(w, http.StatusOK, newProductsResponse(products))
}

// GetProduct отдаёт карточку товара.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(p))
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list categories", err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) ListBlindBoxes(w http.ResponseWriter, r *http.Request) {
	boxes, err := h.service.ListBlindBoxes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list blindboxes", err)
		return
	}
	writeJSON(w, http.StatusOK, newBlindBoxesResponse(boxes))
}

// GetBlindBox отдаёт коробку по slug вместе с возможными призами и их вероятностями.
func (h *Handler) GetBlindBox(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetBlindBoxBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeServiceError(w, r, "get blindbox", err)
		return
	}
	writeJSON(w, http.StatusOK, newBlindBoxResponse(b))
}
