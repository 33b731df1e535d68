// Package handler implements the HTTP endpoints behind the admission layer.
// Trading endpoints validate their input and answer 501 until the trading
// backend is wired in.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tradegate/internal/httperr"
)

// Handler serves the API endpoints.
type Handler struct{}

// New returns a Handler.
func New() *Handler {
	return &Handler{}
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("status")
	e.Str("ok")
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Bytes())
}

// NotFound is the router fallback.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	zctx.From(r.Context()).Warn("Route not found")
	httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "The requested resource was not found")
}

// MethodNotAllowed is the router fallback for known paths.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	zctx.From(r.Context()).Warn("Method not allowed")
	httperr.Write(w, http.StatusMethodNotAllowed, httperr.CodeMethodNotAllowed, "The request method is not supported for this resource")
}

// Tokens lists tradable tokens.
func (h *Handler) Tokens(w http.ResponseWriter, r *http.Request) {
	notImplemented(w, r)
}

// SwapQuote quotes a swap.
func (h *Handler) SwapQuote(w http.ResponseWriter, r *http.Request) {
	h.withBody(w, r)
}

// SwapCalldata builds swap calldata.
func (h *Handler) SwapCalldata(w http.ResponseWriter, r *http.Request) {
	h.withBody(w, r)
}

// DeployDCAOrder deploys a DCA order.
func (h *Handler) DeployDCAOrder(w http.ResponseWriter, r *http.Request) {
	h.withBody(w, r)
}

// DeploySolverOrder deploys a solver order.
func (h *Handler) DeploySolverOrder(w http.ResponseWriter, r *http.Request) {
	h.withBody(w, r)
}

// CancelOrder cancels an order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.withBody(w, r)
}

// Order returns one order by hash.
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	h.withParam(w, r, "orderHash", parseHash)
}

// OrdersByTx lists orders created by a transaction.
func (h *Handler) OrdersByTx(w http.ResponseWriter, r *http.Request) {
	h.withParam(w, r, "txHash", parseHash)
}

// OrdersByAddress lists orders owned by an address.
func (h *Handler) OrdersByAddress(w http.ResponseWriter, r *http.Request) {
	h.withParam(w, r, "address", parseAddress)
}

// TradesByTx lists trades settled by a transaction.
func (h *Handler) TradesByTx(w http.ResponseWriter, r *http.Request) {
	h.withParam(w, r, "txHash", parseHash)
}

// TradesByAddress lists trades of an address.
func (h *Handler) TradesByAddress(w http.ResponseWriter, r *http.Request) {
	h.withParam(w, r, "address", parseAddress)
}

func (h *Handler) withParam(w http.ResponseWriter, r *http.Request, name string, parse func(string) ([]byte, error)) {
	raw := chi.URLParam(r, name)
	if _, err := parse(raw); err != nil {
		zctx.From(r.Context()).Warn("Invalid path parameter",
			zap.String("param", name),
			zap.String("input", raw),
			zap.Error(err),
		)
		httperr.Write(w, http.StatusBadRequest, httperr.CodeBadRequest, "Invalid "+name+": "+err.Error())
		return
	}
	notImplemented(w, r)
}

func (h *Handler) withBody(w http.ResponseWriter, r *http.Request) {
	if err := readJSONObject(r); err != nil {
		zctx.From(r.Context()).Warn("Unprocessable request body", zap.Error(err))
		httperr.Write(w, http.StatusUnprocessableEntity, httperr.CodeUnprocessableEntity, "Request body could not be parsed")
		return
	}
	notImplemented(w, r)
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	zctx.From(r.Context()).Info("Request received")
	httperr.Write(w, http.StatusNotImplemented, httperr.CodeNotImplemented, "This endpoint is not implemented yet")
}
