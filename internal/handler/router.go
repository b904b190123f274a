package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/blindbox-shop/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/me", h.Me)
				r.Get("/spins", h.MySpins)
				r.Get("/orders", h.MyOrders)
			})
		})

		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/categories", h.ListCategories)
		r.Get("/blindboxes", h.ListBlindBoxes)
		r.Get("/blindboxes/{slug}", h.GetBlindBox)

		r.Get("/payment/callback", h.PaymentCallback)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/spin", h.Spin)

			r.Get("/cart", h.GetCart)
			r.Delete("/cart", h.ClearCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Patch("/cart/items", h.UpdateCartItem)
			r.Delete("/cart/items/{type}/{refId}", h.RemoveCartItem)

			r.Post("/checkout", h.Checkout)
			r.Get("/orders/{number}/qr", h.OrderQR)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(custommiddleware.AdminOnly)

			r.Get("/products", h.ListProducts)
			r.Post("/products", h.AdminCreateProduct)
			r.Put("/products/{id}", h.AdminUpdateProduct)
			r.Delete("/products/{id}", h.AdminDeleteProduct)

			r.Get("/blindboxes", h.ListBlindBoxes)
			r.Post("/blindboxes", h.AdminCreateBlindBox)
			r.Put("/blindboxes/{id}", h.AdminUpdateBlindBox)
			r.Delete("/blindboxes/{id}", h.AdminDeleteBlindBox)

			r.Get("/users", h.AdminListUsers)
			r.Post("/users/{id}/spins", h.AdminGrantSpins)

			r.Get("/orders", h.AdminListOrders)
			r.Patch("/orders/{number}", h.AdminSetOrderStatus)

			r.Get("/spins", h.AdminListSpins)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
