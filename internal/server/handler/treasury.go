package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// TreasuryService defines the escrow book operations the handler requires.
type TreasuryService interface {
	RegisterToken(ctx context.Context, caller domain.Caller, token common.Address, multi bool) error
	Mint(ctx context.Context, caller domain.Caller, token common.Address, tokenID *big.Int, owner common.Address, amount uint64) error
	Deposit(ctx context.Context, caller domain.Caller, account common.Address, amount *big.Int) error
	SetApproval(ctx context.Context, caller domain.Caller, token common.Address, approved bool) error
	Balance(account common.Address) *big.Int
}

// TreasuryHandler serves funding, minting and approvals for the in-process
// escrow book.
type TreasuryHandler struct {
	treasury TreasuryService
	logger   *slog.Logger
}

// NewTreasuryHandler creates a TreasuryHandler.
func NewTreasuryHandler(treasury TreasuryService, logger *slog.Logger) *TreasuryHandler {
	return &TreasuryHandler{treasury: treasury, logger: logHandler(logger, "treasury")}
}

// RegisterToken declares a token's standard.
// PUT /api/treasury/tokens/{token}
func (h *TreasuryHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	caller, token, ok := h.callerAndToken(w, r)
	if !ok {
		return
	}
	var req struct {
		Multi bool `json:"multi"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.treasury.RegisterToken(r.Context(), caller, token, req.Multi); err != nil {
		writeDomainError(w, r, h.logger, "register token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token.Hex(), "multi": req.Multi})
}

type mintRequest struct {
	Token   common.Address `json:"token_address"`
	TokenID *big.Int       `json:"token_id"`
	Owner   common.Address `json:"owner"`
	Amount  uint64         `json:"amount"`
}

// Mint credits token units to an owner.
// POST /api/treasury/mint
func (h *TreasuryHandler) Mint(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.treasury.Mint(r.Context(), caller, req.Token, req.TokenID, req.Owner, req.Amount); err != nil {
		writeDomainError(w, r, h.logger, "mint", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token_address": req.Token.Hex(),
		"token_id":      req.TokenID,
		"owner":         req.Owner.Hex(),
		"amount":        req.Amount,
	})
}

// Deposit funds an account.
// POST /api/treasury/deposits
func (h *TreasuryHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req struct {
		Account common.Address `json:"account"`
		Amount  *big.Int       `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.treasury.Deposit(r.Context(), caller, req.Account, req.Amount); err != nil {
		writeDomainError(w, r, h.logger, "deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"account": req.Account.Hex(),
		"balance": h.treasury.Balance(req.Account),
	})
}

// SetApproval lets the escrow operator move the caller's units of a token.
// PUT /api/treasury/approvals/{token}
func (h *TreasuryHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	caller, token, ok := h.callerAndToken(w, r)
	if !ok {
		return
	}
	var req struct {
		Approved bool `json:"approved"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.treasury.SetApproval(r.Context(), caller, token, req.Approved); err != nil {
		writeDomainError(w, r, h.logger, "set approval", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token.Hex(),
		"owner":    caller.Sender.Hex(),
		"approved": req.Approved,
	})
}

// GetBalance returns an account's funds outside escrow.
// GET /api/treasury/balances/{account}
func (h *TreasuryHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account.Hex(),
		"balance": h.treasury.Balance(account),
	})
}

func (h *TreasuryHandler) callerAndToken(w http.ResponseWriter, r *http.Request) (domain.Caller, common.Address, bool) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return domain.Caller{}, common.Address{}, false
	}
	token, err := parseAddress(pathParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.Caller{}, common.Address{}, false
	}
	return caller, token, true
}
