package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradecore/internal/engine"
	"github.com/alanyoungcy/tradecore/internal/feed"
	"github.com/alanyoungcy/tradecore/internal/fixed"
	"github.com/alanyoungcy/tradecore/internal/gateway"
	"github.com/alanyoungcy/tradecore/internal/gateway/handler"
	"github.com/alanyoungcy/tradecore/internal/quotews"
)

// shutdownGrace is how long outward-facing servers get to finish in-flight
// requests after ctx is cancelled.
const shutdownGrace = 10 * time.Second

// EngineMode runs the matching engine: recovery, the command consumption
// loop, and the periodic checkpoint writer.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, deps)
	return ignoreCancel(g.Wait())
}

// GatewayMode runs the public HTTP API and the reply waiter.
func (a *App) GatewayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting gateway mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startGateway(ctx, g, deps)
	return ignoreCancel(g.Wait())
}

// PriceFeedMode runs the market-data ingest loop.
func (a *App) PriceFeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting pricefeed mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	return ignoreCancel(g.Wait())
}

// QuoteServerMode runs the public websocket quote server.
func (a *App) QuoteServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting quoteserver mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startQuoteServer(ctx, g, deps)
	return ignoreCancel(g.Wait())
}

// FullMode runs every component in one process. Useful for development and
// small deployments.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, deps)
	a.startGateway(ctx, g, deps)
	a.startFeed(ctx, g, deps)
	a.startQuoteServer(ctx, g, deps)
	return ignoreCancel(g.Wait())
}

func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	opts := []engine.Option{}
	if deps.CheckpointArchiver != nil {
		opts = append(opts, engine.WithCheckpointArchiver(deps.CheckpointArchiver))
	}
	if deps.Notifier != nil {
		opts = append(opts, engine.WithNotifier(deps.Notifier))
	}

	eng := engine.New(engine.Config{
		CommandStream:       a.cfg.Engine.CommandStream,
		ReplyStream:         a.cfg.Engine.ReplyStream,
		ReadBatch:           a.cfg.Engine.ReadBatch,
		ReadBlock:           a.cfg.Engine.ReadBlock.Duration,
		SnapshotInterval:    a.cfg.Engine.SnapshotInterval.Duration,
		CheckpointRetention: a.cfg.Engine.CheckpointRetention,
	}, deps.EventLog, deps.OrderArchive, deps.CheckpointStore, a.logger, opts...)

	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		return eng.RunSnapshots(ctx)
	})
}

func (a *App) startGateway(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	waiter := gateway.NewWaiter(deps.EventLog, a.cfg.Engine.ReplyStream, a.logger)
	g.Go(func() error {
		return waiter.Run(ctx)
	})

	handlers := gateway.Handlers{
		Health: handler.NewHealthHandler(),
		Auth: handler.NewAuthHandler(
			deps.UserStore,
			[]byte(a.cfg.Gateway.JWTSecret),
			fixed.MoneyFromFloat(a.cfg.Gateway.InitialBalance),
			a.logger,
		),
		Trade: handler.NewTradeHandler(
			deps.EventLog,
			waiter,
			deps.UserStore,
			deps.OrderArchive,
			a.cfg.Engine.CommandStream,
			a.cfg.Gateway.ReplyWait.Duration,
			a.logger,
		),
	}

	srv := gateway.NewServer(gateway.Config{
		Port:        a.cfg.Gateway.Port,
		CORSOrigins: a.cfg.Gateway.CORSOrigins,
		JWTSecret:   a.cfg.Gateway.JWTSecret,
		RateLimit:   a.cfg.Gateway.RateLimit,
		RateWindow:  a.cfg.Gateway.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	f := feed.New(feed.Config{
		URL:     a.cfg.Feed.URL,
		Symbols: a.cfg.Feed.Symbols,
		Stream:  a.cfg.Engine.CommandStream,
	}, deps.EventLog, deps.Bus, a.logger)

	g.Go(func() error {
		return f.Run(ctx)
	})
}

func (a *App) startQuoteServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := quotews.NewHub(deps.Bus, a.cfg.QuoteWS.Assets, a.logger)
	srv := quotews.NewServer(a.cfg.QuoteWS.Port, hub, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// ignoreCancel hides the context cancellation that every run group reports on
// a clean shutdown.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
