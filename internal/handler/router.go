package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/storefront-payouts/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware API выплат.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/fees/sale", h.SaleFee)
		r.Get("/withdrawals/quote", h.QuoteWithdrawal)

		r.Route("/stores/{storeID}", func(r chi.Router) {
			r.Post("/orders", h.CreateOrder)
			r.Post("/orders/{orderID}/status", h.UpdateOrderStatus)

			r.Get("/wallet", h.GetWallet)

			r.Get("/withdrawals", h.ListWithdrawals)
			r.Post("/withdrawals", h.RequestWithdrawal)
		})

		r.Get("/actors/{actorID}/goals", h.GoalBoard)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/withdrawals", h.ListWithdrawalsByStatus)
			r.Post("/withdrawals/{id}/approve", h.ApproveWithdrawal)
			r.Post("/withdrawals/{id}/complete", h.CompleteWithdrawal)
			r.Post("/withdrawals/{id}/reject", h.RejectWithdrawal)

			r.Post("/wallets/{storeID}/approve", h.ApproveWallet)

			r.Post("/goals", h.CreateGoal)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
