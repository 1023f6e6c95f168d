package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/service"
)

// ConsignmentService defines the registry operations the consignment
// handler requires.
type ConsignmentService interface {
	RegisterConsignment(ctx context.Context, caller domain.Caller, req service.RegisterRequest) (domain.Consignment, error)
	GetConsignment(ctx context.Context, id uint64) (domain.Consignment, error)
	GetUnreleasedSupply(ctx context.Context, id uint64) (uint64, error)
	GetNextConsignment(ctx context.Context) (uint64, error)
	SetCustomFee(ctx context.Context, caller domain.Caller, id uint64, bps uint64) error
	SetConsignmentTicketer(ctx context.Context, caller domain.Caller, id uint64, t domain.TicketerType) error
	ReleaseConsignment(ctx context.Context, caller domain.Caller, id uint64, amount uint64, recipient common.Address) error
}

// SettlementLister lists the settlements recorded for a consignment.
type SettlementLister interface {
	ListSettlements(ctx context.Context, consignmentID uint64) ([]domain.Settlement, error)
}

// ConsignmentHandler serves consignment registry endpoints.
type ConsignmentHandler struct {
	registry    ConsignmentService
	settlements SettlementLister
	logger      *slog.Logger
}

// NewConsignmentHandler creates a ConsignmentHandler.
func NewConsignmentHandler(registry ConsignmentService, settlements SettlementLister, logger *slog.Logger) *ConsignmentHandler {
	return &ConsignmentHandler{
		registry:    registry,
		settlements: settlements,
		logger:      logHandler(logger, "consignment"),
	}
}

// NextConsignment returns the id the next registration will receive.
// GET /api/consignments/next
func (h *ConsignmentHandler) NextConsignment(w http.ResponseWriter, r *http.Request) {
	next, err := h.registry.GetNextConsignment(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "next consignment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"next_consignment": next})
}

// GetConsignment returns one consignment.
// GET /api/consignments/{id}
func (h *ConsignmentHandler) GetConsignment(w http.ResponseWriter, r *http.Request) {
	id, err := consignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.registry.GetConsignment(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get consignment", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetSupply returns the escrowed units not yet released.
// GET /api/consignments/{id}/supply
func (h *ConsignmentHandler) GetSupply(w http.ResponseWriter, r *http.Request) {
	id, err := consignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	supply, err := h.registry.GetUnreleasedSupply(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get supply", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{
		"consignment_id":    id,
		"unreleased_supply": supply,
	})
}

// ListSettlements returns the settlements recorded for a consignment.
// GET /api/consignments/{id}/settlements
func (h *ConsignmentHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	id, err := consignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.settlements.ListSettlements(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "list settlements", err)
		return
	}
	if list == nil {
		list = []domain.Settlement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": list})
}

// Register records a new consignment.
// POST /api/consignments
func (h *ConsignmentHandler) Register(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req service.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.registry.RegisterConsignment(r.Context(), caller, req)
	if err != nil {
		writeDomainError(w, r, h.logger, "register consignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type setFeeRequest struct {
	FeeBps uint64 `json:"fee_bps"`
}

// SetFee overrides the consignment's fee. Zero restores the market default.
// PUT /api/consignments/{id}/fee
func (h *ConsignmentHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	var req setFeeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.registry.SetCustomFee(r.Context(), caller, id, req.FeeBps); err != nil {
		writeDomainError(w, r, h.logger, "set fee", err)
		return
	}
	h.respondConsignment(w, r, id)
}

type setTicketerRequest struct {
	Ticketer domain.TicketerType `json:"ticketer"`
}

// SetTicketer overrides the escrow ticketer used for the consignment.
// PUT /api/consignments/{id}/ticketer
func (h *ConsignmentHandler) SetTicketer(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	var req setTicketerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.registry.SetConsignmentTicketer(r.Context(), caller, id, req.Ticketer); err != nil {
		writeDomainError(w, r, h.logger, "set ticketer", err)
		return
	}
	h.respondConsignment(w, r, id)
}

type releaseRequest struct {
	Amount    uint64         `json:"amount"`
	Recipient common.Address `json:"recipient"`
}

// Release moves escrowed units to a recipient.
// POST /api/consignments/{id}/release
func (h *ConsignmentHandler) Release(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	var req releaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.registry.ReleaseConsignment(r.Context(), caller, id, req.Amount, req.Recipient); err != nil {
		writeDomainError(w, r, h.logger, "release consignment", err)
		return
	}
	h.respondConsignment(w, r, id)
}

func (h *ConsignmentHandler) respondConsignment(w http.ResponseWriter, r *http.Request, id uint64) {
	c, err := h.registry.GetConsignment(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get consignment", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
