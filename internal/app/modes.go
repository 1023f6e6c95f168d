package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/auctionhouse/internal/server"
	"github.com/alanyoungcy/auctionhouse/internal/server/handler"
	"github.com/alanyoungcy/auctionhouse/internal/server/ws"
)

// ServerMode serves the market API and runs the background workers: the
// auction close sweeper, the notification queue and, when enabled, the
// periodic archive export. The memory mode runs the same loop on in-process
// collaborators.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.String("operator", deps.Operator.Hex()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Queue.Run(ctx)
	})

	g.Go(func() error {
		return a.closeLoop(ctx, deps)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// ArchiveMode exports settlements and ended auctions older than the retention
// window once, then returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archive storage is not configured")
	}
	return a.archiveOnce(ctx, deps)
}

// closeLoop sweeps auctions whose window has passed so bidders are settled
// even when nobody calls close.
func (a *App) closeLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Market.CloseInterval.Duration
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			closed, err := deps.Market.Auctions.CloseExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.ErrorContext(ctx, "close sweep failed", slog.String("error", err.Error()))
				continue
			}
			if closed > 0 {
				a.logger.InfoContext(ctx, "closed expired auctions", slog.Int("count", closed))
			}
		}
	}
}

func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.archiveOnce(ctx, deps); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) error {
	before := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	settlements, err := deps.Archiver.ArchiveSettlements(ctx, before)
	if err != nil {
		return fmt.Errorf("archive settlements: %w", err)
	}
	auctions, err := deps.Archiver.ArchiveAuctions(ctx, before)
	if err != nil {
		return fmt.Errorf("archive auctions: %w", err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Time("before", before),
		slog.Int64("settlements", settlements),
		slog.Int64("auctions", auctions),
	)
	return nil
}

// startHTTPServer adds the API server and the WebSocket hub to the errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	m := deps.Market

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:       handler.NewHealthHandler(deps.Health, a.logger),
		Status:       handler.NewStatusHandler(a.cfg.Mode, a.cfg.Store, a.cfg.Lock, m.Config),
		Consignments: handler.NewConsignmentHandler(m.Registry, m.Settlement, a.logger),
		Auctions:     handler.NewAuctionHandler(m.Auctions, a.logger),
		Sales:        handler.NewSaleHandler(m.Sales, a.logger),
		MarketConfig: handler.NewMarketConfigHandler(m.Config, m.Access, a.logger),
		Audit:        handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}
	if m.Treasury != nil {
		handlers.Treasury = handler.NewTreasuryHandler(m.Treasury, a.logger)
	}

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}
	if a.cfg.Server.RequireSignatures {
		srvCfg.SignatureSkew = a.cfg.Server.SignatureSkew.Duration
	}
	srv := server.NewServer(srvCfg, handlers, hub, deps.RateLimiter, deps.Registry, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
