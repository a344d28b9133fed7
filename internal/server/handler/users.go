package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/alphamarket/internal/domain"
)

const (
	msgIdentityKeyMissing = "Neynar API key is not configured. Please add NEYNAR_API_KEY to your environment variables."
	msgUsersParamRequired = "Either 'fids' or 'addresses' parameter is required"
	msgUsersFetchFailed   = "Failed to fetch users. Please check your Neynar API key and try again."
)

// IdentityService is the identity lookup used by the users endpoint.
type IdentityService interface {
	Configured() bool
	UsersByFIDs(ctx context.Context, fids []uint64) ([]domain.Profile, error)
	UsersByAddresses(ctx context.Context, addrs []string) (map[string][]domain.Profile, error)
}

// UsersHandler serves identity profiles.
type UsersHandler struct {
	identity IdentityService
	logger   *slog.Logger
}

// NewUsersHandler creates a UsersHandler.
func NewUsersHandler(identity IdentityService, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{identity: identity, logger: logHandler(logger, "users")}
}

// GetUsers resolves profiles by FID or by address. The key check runs
// before parameter validation, and fids wins when both are given.
// GET /api/users?fids=1,2,3
// GET /api/users?addresses=0xabc,0xdef
func (h *UsersHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	if !h.identity.Configured() {
		writeError(w, http.StatusInternalServerError, msgIdentityKeyMissing)
		return
	}

	q := r.URL.Query()
	if raw := q.Get("fids"); raw != "" {
		fids := parseFIDs(raw)
		if len(fids) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"users": []domain.Profile{}})
			return
		}
		users, err := h.identity.UsersByFIDs(r.Context(), fids)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if users == nil {
			users = []domain.Profile{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
		return
	}

	if raw := q.Get("addresses"); raw != "" {
		addrs := parseAddresses(raw)
		if len(addrs) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"usersByAddress": map[string][]domain.Profile{}})
			return
		}
		byAddr, err := h.identity.UsersByAddresses(r.Context(), addrs)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if byAddr == nil {
			byAddr = map[string][]domain.Profile{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"usersByAddress": byAddr})
		return
	}

	writeError(w, http.StatusBadRequest, msgUsersParamRequired)
}

func (h *UsersHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "handler: fetch users failed",
		slog.String("error", err.Error()),
	)
	if errors.Is(err, domain.ErrIdentityKeyMissing) {
		writeError(w, http.StatusInternalServerError, msgIdentityKeyMissing)
		return
	}
	writeError(w, http.StatusInternalServerError, msgUsersFetchFailed)
}

// parseFIDs keeps the positive integers of a comma-separated list.
func parseFIDs(raw string) []uint64 {
	var out []uint64
	for _, part := range strings.Split(raw, ",") {
		fid, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err == nil && fid > 0 {
			out = append(out, fid)
		}
	}
	return out
}

// parseAddresses keeps the lowercased 0x-prefixed entries of a
// comma-separated list.
func parseAddresses(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		addr := strings.ToLower(strings.TrimSpace(part))
		if strings.HasPrefix(addr, "0x") {
			out = append(out, addr)
		}
	}
	return out
}
