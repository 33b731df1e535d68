package handler

import "github.com/go-chi/chi/v5"

// RegisterTrading mounts the trading endpoints. Callers mount r under /v1
// behind admission.
func (h *Handler) RegisterTrading(r chi.Router) {
	r.Get("/tokens", h.Tokens)

	r.Post("/swap/quote", h.SwapQuote)
	r.Post("/swap/calldata", h.SwapCalldata)

	r.Post("/order/dca", h.DeployDCAOrder)
	r.Post("/order/solver", h.DeploySolverOrder)
	r.Post("/order/cancel", h.CancelOrder)
	r.Get("/order/{orderHash}", h.Order)

	r.Get("/orders/tx/{txHash}", h.OrdersByTx)
	r.Get("/orders/{address}", h.OrdersByAddress)

	r.Get("/trades/tx/{txHash}", h.TradesByTx)
	r.Get("/trades/{address}", h.TradesByAddress)
}
