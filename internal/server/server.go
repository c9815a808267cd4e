package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/N1K0LAAAA/ImsBridgeServer/internal/auth"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/directory"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/registry"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/router"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/server/middleware"
	syncer "github.com/N1K0LAAAA/ImsBridgeServer/internal/sync"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/telemetry"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/config"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/dedup"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/member"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/ratelimit"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/transport"
)

type App struct {
	logger        *slog.Logger
	registry      *registry.Registry
	authenticator *auth.Authenticator
	bridgeRouter  *router.Router
	synchronizer  *syncer.Synchronizer
	keys          *auth.KeyStore
	store         *member.Store
	wg            sync.WaitGroup
	http          *http.Server
	config        *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, events router.Events) (*App, error) {
	if cfg.Server.MetricsEnabled {
		telemetry.Init()
	}

	store := member.NewStore(cfg.Storage.MemberFile, cfg.Guilds)
	keys := auth.NewKeyStore()
	records, err := store.Load()
	if err != nil {
		return nil, err
	}
	keys.Reload(records)
	telemetry.SetKnownMembers(len(records))
	logger.Info("Loaded bridge keys", slog.Int("members", len(records)), slog.Int("keys", keys.Len()))

	reg := registry.New(logger, cfg.Guilds)
	authenticator := auth.New(logger, keys, reg, cfg.Server.HandshakeTimeout)
	bridgeRouter := router.New(logger, reg, authenticator, dedup.New(), events)

	dirClient := &directory.Client{
		BaseURL:    cfg.Directory.BaseURL,
		APIKey:     cfg.Directory.APIKey,
		HTTPClient: &http.Client{Timeout: cfg.Directory.Timeout},
		Limiter: ratelimit.New(
			cfg.Directory.RateLimit.MaxCalls,
			cfg.Directory.RateLimit.Window,
			cfg.Directory.RateLimit.SafetyBuffer,
		),
	}
	synchronizer := syncer.New(logger, store, dirClient, keys, bridgeRouter, cfg.Guilds)

	app := &App{
		logger:        logger,
		registry:      reg,
		authenticator: authenticator,
		bridgeRouter:  bridgeRouter,
		synchronizer:  synchronizer,
		keys:          keys,
		store:         store,
		config:        cfg,
		ctx:           rootCtx,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewConnectionLimiter(logger, reg.Count, cfg.Server.ConnectionLimit),
		),
	)

	admin := &adminAPI{
		logger: logger.With(slog.String("component", "admin_api")),
		store:  store,
		keys:   keys,
		router: bridgeRouter,
		sync:   synchronizer,
	}
	adminChain := func(h http.Handler) http.Handler {
		return middleware.Chain(h,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAdminAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
		)
	}
	admin.register(mux, adminChain)

	if cfg.Server.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return rootCtx
		},
	}
	return app, nil
}

// Router exposes the fan-out primitive for the embedding chat adapter.
func (a *App) Router() *router.Router {
	return a.bridgeRouter
}

// Synchronizer exposes on-demand resync for the embedding adapter.
func (a *App) Synchronizer() *syncer.Synchronizer {
	return a.synchronizer
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	if a.config.Sync.Interval > 0 {
		go a.synchronizer.Run(a.ctx, a.config.Sync.Interval)
	}

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout: a.config.Transport.ReadTimeout,
			SendBuffer:  a.config.Transport.SendBuffer,
		},
		a.bridgeRouter.HandleMessage,
		nil,
		a.logger,
	)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		a.authenticator.Cancel(id)
		a.registry.Remove(id)
		telemetry.SetActiveConnections(a.registry.Count())
		connLogger.Info("Connection cleaned up", slog.String("connID", id.String()))
	})

	// The handshake window opens at accept, before the pumps start.
	a.authenticator.Begin(conn)
	connLogger.Info("Client connected, awaiting authentication", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, entry := range a.registry.Snapshot() {
		entry.Conn.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
