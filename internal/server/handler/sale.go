package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/service"
)

// SaleService defines the sale engine operations the handler requires.
type SaleService interface {
	GetSale(ctx context.Context, consignmentID uint64) (domain.Sale, error)
	CreatePrimarySale(ctx context.Context, caller domain.Caller, consignmentID uint64, req service.SaleRequest) (domain.Sale, error)
	CreateSecondarySale(ctx context.Context, caller domain.Caller, token common.Address, tokenID *big.Int, supply uint64, req service.SaleRequest) (domain.Sale, error)
	ChangeSaleAudience(ctx context.Context, caller domain.Caller, consignmentID uint64, audience domain.Audience) error
	Buy(ctx context.Context, caller domain.Caller, consignmentID uint64, amount uint64, value *big.Int) (domain.Sale, error)
	CloseSale(ctx context.Context, caller domain.Caller, consignmentID uint64) (domain.Sale, domain.Settlement, error)
	CancelSale(ctx context.Context, caller domain.Caller, consignmentID uint64) (domain.Sale, error)
}

// SaleHandler serves fixed-price sale endpoints.
type SaleHandler struct {
	sales  SaleService
	logger *slog.Logger
}

// NewSaleHandler creates a SaleHandler.
func NewSaleHandler(sales SaleService, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{sales: sales, logger: logHandler(logger, "sale")}
}

// GetSale returns the sale attached to a consignment.
// GET /api/sales/{id}
func (h *SaleHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, err := consignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.sales.GetSale(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get sale", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type primarySaleRequest struct {
	ConsignmentID uint64 `json:"consignment_id"`
	service.SaleRequest
}

// CreatePrimary lists a registered consignment at a fixed price.
// POST /api/sales/primary
func (h *SaleHandler) CreatePrimary(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req primarySaleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.sales.CreatePrimarySale(r.Context(), caller, req.ConsignmentID, req.SaleRequest)
	if err != nil {
		writeDomainError(w, r, h.logger, "create primary sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

type secondarySaleRequest struct {
	Token   common.Address `json:"token_address"`
	TokenID *big.Int       `json:"token_id"`
	Supply  uint64         `json:"supply"`
	service.SaleRequest
}

// CreateSecondary consigns the caller's tokens and lists them.
// POST /api/sales/secondary
func (h *SaleHandler) CreateSecondary(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req secondarySaleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TokenID == nil {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	s, err := h.sales.CreateSecondarySale(r.Context(), caller, req.Token, req.TokenID, req.Supply, req.SaleRequest)
	if err != nil {
		writeDomainError(w, r, h.logger, "create secondary sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

type buyRequest struct {
	Amount uint64   `json:"amount"`
	Value  *big.Int `json:"value"`
}

// Buy purchases units at the listed price.
// POST /api/sales/{id}/buy
func (h *SaleHandler) Buy(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.sales.Buy(r.Context(), caller, id, req.Amount, req.Value)
	if err != nil {
		writeDomainError(w, r, h.logger, "buy", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type closeSaleResponse struct {
	Sale       domain.Sale       `json:"sale"`
	Settlement domain.Settlement `json:"settlement"`
}

// Close ends a sold-out sale and settles its proceeds.
// POST /api/sales/{id}/close
func (h *SaleHandler) Close(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	s, st, err := h.sales.CloseSale(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "close sale", err)
		return
	}
	writeJSON(w, http.StatusOK, closeSaleResponse{Sale: s, Settlement: st})
}

// Cancel ends a sale early, settling collected proceeds.
// POST /api/sales/{id}/cancel
func (h *SaleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	s, err := h.sales.CancelSale(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "cancel sale", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ChangeAudience restricts who may buy.
// PUT /api/sales/{id}/audience
func (h *SaleHandler) ChangeAudience(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	var req audienceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.sales.ChangeSaleAudience(r.Context(), caller, id, req.Audience); err != nil {
		writeDomainError(w, r, h.logger, "change sale audience", err)
		return
	}
	s, err := h.sales.GetSale(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get sale", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
