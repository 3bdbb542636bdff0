// Command coordinator runs the order saga as a single process: the
// four saga consumers (E-H), the create-order / transition HTTP
// handlers (I, J), the outbox relay, and the inventory TTL sweeper,
// all sharing one RabbitMQ connection and one Postgres pool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/config"
	"github.com/timour/order-saga/internal/handler"
	"github.com/timour/order-saga/internal/httpapi"
	"github.com/timour/order-saga/internal/idempotency"
	"github.com/timour/order-saga/internal/inventory"
	"github.com/timour/order-saga/internal/logging"
	"github.com/timour/order-saga/internal/metrics"
	"github.com/timour/order-saga/internal/orderstore"
	"github.com/timour/order-saga/internal/outbox"
	"github.com/timour/order-saga/internal/saga"
)

// stockCacheTTL is how long a cached stock reading is trusted before
// the next admin read falls through to the engine, mirroring the
// fixed TTL the source cache-aside layer uses.
const stockCacheTTL = 5 * time.Second

// App owns every long-lived resource the coordinator process holds:
// the bus connection, the DB pool (when hosted services aren't
// disabled), the inventory engine, and the HTTP/metrics servers.
type App struct {
	cfg config.Config

	zapLog  *zap.Logger
	sagaLog *slog.Logger

	b    *bus.Bus
	pool *pgxpool.Pool

	inventory  *inventory.Engine
	stockCache *inventory.StockCache
	orders     orderstore.Store
	idem       idempotency.Store

	outboxRelay *outbox.Relay
	outboxRepo  outbox.Repository

	consumers  []consumer
	httpSrv    *http.Server
	metricsSrv *http.Server
}

type consumer interface {
	Start(ctx context.Context, b *bus.Bus)
}

// NewApp builds every dependency but does not start anything yet.
func NewApp(cfg config.Config) (*App, error) {
	zapLog := logging.NewZap("order-saga-coordinator")
	sagaLog := logging.NewSlog("order-saga-coordinator")

	b, err := bus.Connect(bus.ConnConfig{
		User:  cfg.RabbitMQUser,
		Pass:  cfg.RabbitMQPass,
		Host:  cfg.RabbitMQHost,
		Port:  cfg.RabbitMQPort,
		VHost: cfg.RabbitMQVHost,
	}, zapLog)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	invEngine := inventory.New(zapLog)

	httpMetrics := metrics.NewHTTPMetrics("order_saga")
	sagaMetrics := metrics.NewSagaMetrics("order_saga")
	invEngine.SetMetrics(sagaMetrics)

	app := &App{
		cfg:       cfg,
		zapLog:    zapLog,
		sagaLog:   sagaLog,
		b:         b,
		inventory: invEngine,
	}

	var adminInventory httpapi.InventoryAdmin = invEngine
	if stockCache, cacheErr := inventory.NewStockCache(cfg.RedisAddr, stockCacheTTL); cacheErr != nil {
		zapLog.Warn("stock cache unavailable, admin reads will hit the engine directly", zap.Error(cacheErr))
	} else {
		app.stockCache = stockCache
		adminInventory = inventory.NewCachedEngine(invEngine, stockCache)
	}

	if cfg.DisableHostedServices {
		zapLog.Warn("DISABLE_HOSTED_SERVICES set, using in-memory order store and idempotency store")
		app.orders = orderstore.NewMemStore()
		app.idem = idempotency.NewMemStore()
	} else {
		pool, err := pgxpool.New(context.Background(), cfg.OrdersConn)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		app.pool = pool
		app.orders = orderstore.NewPostgresStore(pool, zapLog)
		app.idem = idempotency.NewPostgresStore(pool, zapLog)

		outboxRepo := outbox.NewPostgresRepository(pool, zapLog)
		app.outboxRelay = outbox.NewRelay(outboxRepo, b, zapLog)
		app.outboxRepo = outboxRepo
	}

	orderHandler := handler.NewOrderHandler(app.orders, app.idem, b, sagaMetrics)
	if app.outboxRepo != nil {
		orderHandler.SetOutbox(app.outboxRepo)
	}

	app.consumers = []consumer{
		saga.NewReservationConsumer(invEngine, b, sagaLog, cfg.InventoryTTL, sagaMetrics),
		saga.NewPaymentConsumer(app.orders, b, sagaLog, sagaMetrics),
		saga.NewStatusUpdaterConsumer(app.orders, b, sagaLog),
		saga.NewRefundConsumer(b, sagaLog, sagaMetrics),
	}

	httpServer := httpapi.NewServer(orderHandler, adminInventory, httpMetrics, sagaLog)
	app.httpSrv = &http.Server{
		Addr:    cfg.AdminHTTPAddr,
		Handler: httpServer.Mux(),
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	app.metricsSrv = &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	return app, nil
}

// Start launches the TTL sweeper, every saga consumer, the outbox
// relay (if hosted services are enabled), and the admin HTTP server.
// It blocks serving HTTP until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.inventory.StartSweeper(ctx)

	for _, c := range a.consumers {
		c.Start(ctx, a.b)
	}

	if a.outboxRelay != nil {
		go a.outboxRelay.Start(ctx)
	}

	go func() {
		a.zapLog.Info("starting metrics server", zap.String("addr", a.cfg.MetricsAddr))
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.zapLog.Error("metrics server error", zap.Error(err))
		}
	}()

	a.zapLog.Info("starting admin http server", zap.String("addr", a.cfg.AdminHTTPAddr))
	if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin http server: %w", err)
	}
	return nil
}

// Shutdown drains the HTTP server and closes the bus and DB pool.
// Consumer goroutines observe ctx cancellation themselves; in-flight
// handlers are allowed to finish, the outer consume loop just stops
// starting new ones.
func (a *App) Shutdown(ctx context.Context) error {
	a.zapLog.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.zapLog.Error("error shutting down http server", zap.Error(err))
	}
	if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
		a.zapLog.Error("error shutting down metrics server", zap.Error(err))
	}

	if err := a.b.Close(); err != nil {
		a.zapLog.Error("error closing bus connection", zap.Error(err))
	}

	if a.pool != nil {
		a.pool.Close()
	}

	if a.stockCache != nil {
		if err := a.stockCache.Close(); err != nil {
			a.zapLog.Error("error closing stock cache", zap.Error(err))
		}
	}

	_ = a.zapLog.Sync()
	return nil
}
