package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/service"
)

// maxWait bounds the ?wait= parameter of write routes. It stays below the
// server write timeout.
const maxWait = 25 * time.Second

// TxWriter submits contract writes.
type TxWriter interface {
	Create(ctx context.Context, in service.CreateInput) (*service.Pending, error)
	Bet(ctx context.Context, in service.BetInput) (*service.Pending, error)
	RequestSettlement(ctx context.Context, id uint64) (*service.Pending, error)
	FinalizeSettlement(ctx context.Context, id uint64) (*service.Pending, error)
	Withdraw(ctx context.Context) (*service.Pending, error)
	Approve(ctx context.Context, in service.ApproveInput) (*service.Pending, error)
}

// WriteHandler serves the write routes. Each answers 202 with the
// operation record once the write is accepted; the transaction continues
// after the response. With ?wait=<duration> the handler holds the response
// until the operation finishes or the wait elapses.
type WriteHandler struct {
	tx     TxWriter
	logger *slog.Logger
}

// NewWriteHandler creates a WriteHandler.
func NewWriteHandler(tx TxWriter, logger *slog.Logger) *WriteHandler {
	return &WriteHandler{tx: tx, logger: logHandler(logger, "writes")}
}

// Create submits a new alpha.
// POST /api/alphas
func (h *WriteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create alpha")
		return
	}
	p, err := h.tx.Create(r.Context(), in)
	h.respond(w, r, p, err, "failed to create alpha")
}

// Bet places a bet against an alpha.
// POST /api/alphas/{id}/bets
func (h *WriteHandler) Bet(w http.ResponseWriter, r *http.Request) {
	id, err := alphaID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to place bet")
		return
	}
	var body struct {
		FID uint64 `json:"fid"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to place bet")
		return
	}
	p, err := h.tx.Bet(r.Context(), service.BetInput{AlphaID: id, FID: body.FID})
	h.respond(w, r, p, err, "failed to place bet")
}

// RequestSettlement asks the oracle for the settlement price.
// POST /api/alphas/{id}/settlement/request
func (h *WriteHandler) RequestSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := alphaID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to request settlement")
		return
	}
	p, err := h.tx.RequestSettlement(r.Context(), id)
	h.respond(w, r, p, err, "failed to request settlement")
}

// FinalizeSettlement settles an alpha once its price is available.
// POST /api/alphas/{id}/settlement/finalize
func (h *WriteHandler) FinalizeSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := alphaID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to finalize settlement")
		return
	}
	p, err := h.tx.FinalizeSettlement(r.Context(), id)
	h.respond(w, r, p, err, "failed to finalize settlement")
}

// Withdraw pulls the wallet's withdrawable balance.
// POST /api/withdrawals
func (h *WriteHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	p, err := h.tx.Withdraw(r.Context())
	h.respond(w, r, p, err, "failed to withdraw")
}

// Approve lets the market spend stake tokens.
// POST /api/approvals
func (h *WriteHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var in service.ApproveInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to approve")
		return
	}
	p, err := h.tx.Approve(r.Context(), in)
	h.respond(w, r, p, err, "failed to approve")
}

func (h *WriteHandler) respond(w http.ResponseWriter, r *http.Request, p *service.Pending, err error, fallback string) {
	if err != nil {
		writeServiceError(w, r, h.logger, err, fallback)
		return
	}

	wait, err := parseWait(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, fallback)
		return
	}
	w.Header().Set("Location", "/api/operations/"+p.ID())
	if wait <= 0 {
		writeJSON(w, http.StatusAccepted, p.Operation())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	op, _ := p.Wait(ctx)
	status := http.StatusAccepted
	if op.State.Terminal() {
		status = http.StatusOK
	}
	writeJSON(w, status, op)
}

func parseWait(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: wait must be a duration such as 30s", domain.ErrInvalidInput)
	}
	return min(d, maxWait), nil
}
