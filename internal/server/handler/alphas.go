package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/service"
	"github.com/alanyoungcy/alphamarket/internal/view"
	"github.com/ethereum/go-ethereum/common"
)

// AlphaReader is the read side the alpha endpoints need.
type AlphaReader interface {
	List(ctx context.Context, f view.Filter, start, count uint64) (service.Listing, error)
	Mine(ctx context.Context, creator common.Address, f view.Filter) (service.Listing, error)
	Detail(ctx context.Context, id uint64, caller common.Address, loc *time.Location) (view.Detail, error)
	LiveStats(ctx context.Context, id uint64) (domain.LiveStats, error)
	NextAlphaID(ctx context.Context) (uint64, error)
}

// AlphaHandler serves the listing and detail views.
type AlphaHandler struct {
	alphas AlphaReader
	loc    *time.Location
	logger *slog.Logger
}

// NewAlphaHandler creates an AlphaHandler rendering timestamps in loc.
func NewAlphaHandler(alphas AlphaReader, loc *time.Location, logger *slog.Logger) *AlphaHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AlphaHandler{alphas: alphas, loc: loc, logger: logHandler(logger, "alphas")}
}

// List returns one page of alpha cards.
// GET /api/alphas?filter=active&start=0&count=20
func (h *AlphaHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := view.ParseFilter(r.URL.Query().Get("filter"), view.FilterActive)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list alphas")
		return
	}
	start, err := queryUint(r, "start", 0)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list alphas")
		return
	}
	count, err := queryUint(r, "count", service.MaxListingPage)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list alphas")
		return
	}

	listing, err := h.alphas.List(r.Context(), f, start, count)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list alphas")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Mine returns the alphas created by an address.
// GET /api/alphas/mine?address=0x...&filter=all
func (h *AlphaHandler) Mine(w http.ResponseWriter, r *http.Request) {
	creator, err := queryAddress(r, "address")
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list alphas")
		return
	}
	if creator == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	f, err := view.ParseFilter(r.URL.Query().Get("filter"), view.FilterAll)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list alphas")
		return
	}

	listing, err := h.alphas.Mine(r.Context(), creator, f)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list alphas")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Get returns the detail view of one alpha, personalised when an address
// is given. Placeholder slots are 404.
// GET /api/alphas/{id}?address=0x...
func (h *AlphaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := alphaID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load alpha")
		return
	}
	caller, err := queryAddress(r, "address")
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load alpha")
		return
	}

	d, err := h.alphas.Detail(r.Context(), id, caller, h.loc)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load alpha")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Stats returns the live pool of one alpha.
// GET /api/alphas/{id}/stats
func (h *AlphaHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := alphaID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load live stats")
		return
	}
	st, err := h.alphas.LiveStats(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load live stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             id,
		"creatorStake":   st.CreatorStake.String(),
		"totalOpponents": st.TotalOpponents.String(),
		"totalStaked":    st.TotalStaked.String(),
		"opponentCount":  st.OpponentCount,
	})
}

// NextID returns the id the next created alpha will receive.
// GET /api/alphas/next-id
func (h *AlphaHandler) NextID(w http.ResponseWriter, r *http.Request) {
	id, err := h.alphas.NextAlphaID(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read next alpha id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"nextId": id})
}
