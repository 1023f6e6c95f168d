package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/service"
)

// MarketConfigService defines the configuration operations the handler
// requires.
type MarketConfigService interface {
	Snapshot() domain.MarketConfiguration
	Update(ctx context.Context, caller domain.Caller, patch service.MarketConfigPatch) (domain.MarketConfiguration, error)
}

// RoleService defines the access control operations the handler requires.
type RoleService interface {
	Members(role domain.Role) []common.Address
	GrantRole(ctx context.Context, caller domain.Caller, role domain.Role, account common.Address) error
	RevokeRole(ctx context.Context, caller domain.Caller, role domain.Role, account common.Address) error
}

// MarketConfigHandler serves market configuration and role administration.
type MarketConfigHandler struct {
	config MarketConfigService
	roles  RoleService
	logger *slog.Logger
}

// NewMarketConfigHandler creates a MarketConfigHandler.
func NewMarketConfigHandler(config MarketConfigService, roles RoleService, logger *slog.Logger) *MarketConfigHandler {
	return &MarketConfigHandler{config: config, roles: roles, logger: logHandler(logger, "market_config")}
}

// GetConfig returns the current market configuration.
// GET /api/market/config
func (h *MarketConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Snapshot())
}

// UpdateConfig applies a partial update. Omitted fields are unchanged.
// PUT /api/market/config
func (h *MarketConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var patch service.MarketConfigPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := h.config.Update(r.Context(), caller, patch)
	if err != nil {
		writeDomainError(w, r, h.logger, "update market config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

var knownRoles = map[domain.Role]bool{
	domain.RoleAdmin:         true,
	domain.RoleEscrowAgent:   true,
	domain.RoleSeller:        true,
	domain.RoleMinter:        true,
	domain.RoleMarketHandler: true,
}

// ListRole returns the members of a role.
// GET /api/roles/{role}
func (h *MarketConfigHandler) ListRole(w http.ResponseWriter, r *http.Request) {
	role := domain.Role(pathParam(r, "role"))
	if !knownRoles[role] {
		writeError(w, http.StatusNotFound, "unknown role")
		return
	}
	members := make([]string, 0)
	for _, m := range h.roles.Members(role) {
		members = append(members, m.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": role, "members": members})
}

// GrantRole adds an account to a role.
// PUT /api/roles/{role}/{account}
func (h *MarketConfigHandler) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.roles.GrantRole, "granted")
}

// RevokeRole removes an account from a role.
// DELETE /api/roles/{role}/{account}
func (h *MarketConfigHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.roles.RevokeRole, "revoked")
}

func (h *MarketConfigHandler) changeRole(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, domain.Caller, domain.Role, common.Address) error,
	status string,
) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	role := domain.Role(pathParam(r, "role"))
	if !knownRoles[role] {
		writeError(w, http.StatusNotFound, "unknown role")
		return
	}
	account, err := parseAddress(pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := apply(r.Context(), caller, role, account); err != nil {
		writeDomainError(w, r, h.logger, "change role", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"role":    string(role),
		"account": account.Hex(),
	})
}
