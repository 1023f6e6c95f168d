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

// AuctionService defines the auction engine operations the handler requires.
type AuctionService interface {
	GetAuction(ctx context.Context, consignmentID uint64) (domain.Auction, error)
	CreatePrimaryAuction(ctx context.Context, caller domain.Caller, consignmentID uint64, req service.AuctionRequest) (domain.Auction, error)
	CreateSecondaryAuction(ctx context.Context, caller domain.Caller, token common.Address, tokenID *big.Int, req service.AuctionRequest) (domain.Auction, error)
	ChangeAuctionAudience(ctx context.Context, caller domain.Caller, consignmentID uint64, audience domain.Audience) error
	Bid(ctx context.Context, caller domain.Caller, consignmentID uint64, value *big.Int) (domain.Auction, error)
	CloseAuction(ctx context.Context, consignmentID uint64) (domain.Auction, domain.Settlement, error)
	CancelAuction(ctx context.Context, caller domain.Caller, consignmentID uint64) (domain.Auction, error)
}

// AuctionHandler serves auction endpoints.
type AuctionHandler struct {
	auctions AuctionService
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(auctions AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{auctions: auctions, logger: logHandler(logger, "auction")}
}

// GetAuction returns the auction attached to a consignment.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := consignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get auction", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type primaryAuctionRequest struct {
	ConsignmentID uint64 `json:"consignment_id"`
	service.AuctionRequest
}

// CreatePrimary opens an auction over a registered consignment.
// POST /api/auctions/primary
func (h *AuctionHandler) CreatePrimary(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req primaryAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.auctions.CreatePrimaryAuction(r.Context(), caller, req.ConsignmentID, req.AuctionRequest)
	if err != nil {
		writeDomainError(w, r, h.logger, "create primary auction", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type secondaryAuctionRequest struct {
	Token   common.Address `json:"token_address"`
	TokenID *big.Int       `json:"token_id"`
	service.AuctionRequest
}

// CreateSecondary consigns the caller's token and opens an auction over it.
// POST /api/auctions/secondary
func (h *AuctionHandler) CreateSecondary(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req secondaryAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TokenID == nil {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	a, err := h.auctions.CreateSecondaryAuction(r.Context(), caller, req.Token, req.TokenID, req.AuctionRequest)
	if err != nil {
		writeDomainError(w, r, h.logger, "create secondary auction", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type bidRequest struct {
	Value *big.Int `json:"value"`
}

// Bid places a bid.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) Bid(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	var req bidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.auctions.Bid(r.Context(), caller, id, req.Value)
	if err != nil {
		writeDomainError(w, r, h.logger, "bid", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type closeAuctionResponse struct {
	Auction    domain.Auction    `json:"auction"`
	Settlement domain.Settlement `json:"settlement"`
}

// Close ends an elapsed auction and settles the winning bid. Anyone may
// call it, so no caller is required.
// POST /api/auctions/{id}/close
func (h *AuctionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := consignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, s, err := h.auctions.CloseAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "close auction", err)
		return
	}
	writeJSON(w, http.StatusOK, closeAuctionResponse{Auction: a, Settlement: s})
}

// Cancel cancels an auction.
// POST /api/auctions/{id}/cancel
func (h *AuctionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	a, err := h.auctions.CancelAuction(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "cancel auction", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type audienceRequest struct {
	Audience domain.Audience `json:"audience"`
}

// ChangeAudience restricts who may bid.
// PUT /api/auctions/{id}/audience
func (h *AuctionHandler) ChangeAudience(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := mutation(w, r)
	if !ok {
		return
	}
	var req audienceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.auctions.ChangeAuctionAudience(r.Context(), caller, id, req.Audience); err != nil {
		writeDomainError(w, r, h.logger, "change auction audience", err)
		return
	}
	a, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get auction", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
