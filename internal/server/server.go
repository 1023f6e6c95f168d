// Package server exposes the market over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/server/handler"
	"github.com/alanyoungcy/auctionhouse/internal/server/middleware"
	"github.com/alanyoungcy/auctionhouse/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit requests per RateWindow per client IP; zero disables it.
	RateLimit  int
	RateWindow time.Duration

	// SignatureSkew enables request signatures when positive.
	SignatureSkew time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health       *handler.HealthHandler
	Status       *handler.StatusHandler
	Consignments *handler.ConsignmentHandler
	Auctions     *handler.AuctionHandler
	Sales        *handler.SaleHandler
	MarketConfig *handler.MarketConfigHandler
	Audit        *handler.AuditHandler
	Archive      *handler.ArchiveHandler  // nil without archive storage
	Treasury     *handler.TreasuryHandler // nil unless custody is in-process
}

// Server is the headless HTTP + WebSocket API server for the market.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (signatures, auth, rate limit, logging, CORS) and
// attaches the WebSocket hub and the Prometheus endpoint.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	Routes(mux, handlers)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Signatures(cfg.SignatureSkew, nil)(h)
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Routes registers the market API on mux.
func Routes(mux *http.ServeMux, h Handlers) {
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	if h.Status != nil {
		mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	}

	// Consignments.
	mux.HandleFunc("GET /api/consignments/next", h.Consignments.NextConsignment)
	mux.HandleFunc("GET /api/consignments/{id}", h.Consignments.GetConsignment)
	mux.HandleFunc("GET /api/consignments/{id}/supply", h.Consignments.GetSupply)
	mux.HandleFunc("GET /api/consignments/{id}/settlements", h.Consignments.ListSettlements)
	mux.HandleFunc("POST /api/consignments", h.Consignments.Register)
	mux.HandleFunc("PUT /api/consignments/{id}/fee", h.Consignments.SetFee)
	mux.HandleFunc("PUT /api/consignments/{id}/ticketer", h.Consignments.SetTicketer)
	mux.HandleFunc("POST /api/consignments/{id}/release", h.Consignments.Release)

	// Auctions.
	mux.HandleFunc("GET /api/auctions/{id}", h.Auctions.GetAuction)
	mux.HandleFunc("POST /api/auctions/primary", h.Auctions.CreatePrimary)
	mux.HandleFunc("POST /api/auctions/secondary", h.Auctions.CreateSecondary)
	mux.HandleFunc("POST /api/auctions/{id}/bids", h.Auctions.Bid)
	mux.HandleFunc("POST /api/auctions/{id}/close", h.Auctions.Close)
	mux.HandleFunc("POST /api/auctions/{id}/cancel", h.Auctions.Cancel)
	mux.HandleFunc("PUT /api/auctions/{id}/audience", h.Auctions.ChangeAudience)

	// Sales.
	mux.HandleFunc("GET /api/sales/{id}", h.Sales.GetSale)
	mux.HandleFunc("POST /api/sales/primary", h.Sales.CreatePrimary)
	mux.HandleFunc("POST /api/sales/secondary", h.Sales.CreateSecondary)
	mux.HandleFunc("POST /api/sales/{id}/buy", h.Sales.Buy)
	mux.HandleFunc("POST /api/sales/{id}/close", h.Sales.Close)
	mux.HandleFunc("POST /api/sales/{id}/cancel", h.Sales.Cancel)
	mux.HandleFunc("PUT /api/sales/{id}/audience", h.Sales.ChangeAudience)

	// Market configuration and roles.
	mux.HandleFunc("GET /api/market/config", h.MarketConfig.GetConfig)
	mux.HandleFunc("PUT /api/market/config", h.MarketConfig.UpdateConfig)
	mux.HandleFunc("GET /api/roles/{role}", h.MarketConfig.ListRole)
	mux.HandleFunc("PUT /api/roles/{role}/{account}", h.MarketConfig.GrantRole)
	mux.HandleFunc("DELETE /api/roles/{role}/{account}", h.MarketConfig.RevokeRole)

	// Audit log.
	mux.HandleFunc("GET /api/audit", h.Audit.ListAudit)

	if h.Archive != nil {
		mux.HandleFunc("GET /api/archive/{kind}", h.Archive.ListArchive)
		mux.HandleFunc("GET /api/archive/{kind}/{month}", h.Archive.GetArchive)
	}

	if h.Treasury != nil {
		mux.HandleFunc("PUT /api/treasury/tokens/{token}", h.Treasury.RegisterToken)
		mux.HandleFunc("POST /api/treasury/mint", h.Treasury.Mint)
		mux.HandleFunc("POST /api/treasury/deposits", h.Treasury.Deposit)
		mux.HandleFunc("PUT /api/treasury/approvals/{token}", h.Treasury.SetApproval)
		mux.HandleFunc("GET /api/treasury/balances/{account}", h.Treasury.GetBalance)
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
