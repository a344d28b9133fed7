package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/alphamarket/internal/service"
	"github.com/ethereum/go-ethereum/common"
)

// AccountReader reads the stake token position of an address.
type AccountReader interface {
	Account(ctx context.Context, addr common.Address) (service.Account, error)
}

// WalletSource reports the service wallet, if one is loaded.
type WalletSource interface {
	Wallet() (common.Address, bool)
}

// WalletHandler serves account summaries.
type WalletHandler struct {
	accounts AccountReader
	wallet   WalletSource
	logger   *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(accounts AccountReader, wallet WalletSource, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{accounts: accounts, wallet: wallet, logger: logHandler(logger, "wallet")}
}

type walletResponse struct {
	Connected bool             `json:"connected"`
	Account   *service.Account `json:"account,omitempty"`
}

// Get returns the account of ?address=, defaulting to the service wallet.
// Without either the response reports connected=false.
// GET /api/wallet
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, err := queryAddress(r, "address")
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load wallet")
		return
	}
	if addr == (common.Address{}) && h.wallet != nil {
		addr, _ = h.wallet.Wallet()
	}
	if addr == (common.Address{}) {
		writeJSON(w, http.StatusOK, walletResponse{})
		return
	}

	acct, err := h.accounts.Account(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load wallet")
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{Connected: true, Account: &acct})
}
