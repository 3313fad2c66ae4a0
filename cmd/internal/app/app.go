// Package app wires the session service runtime: config, logging, the
// Postgres stores, the wgctl client, the background reconcilers, and the
// HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"wgsd/cmd/identity"
	"wgsd/cmd/internal/audit"
	"wgsd/cmd/internal/auth"
	authapi "wgsd/cmd/internal/auth/api"
	"wgsd/cmd/internal/auth/challenge"
	"wgsd/cmd/internal/metrics"
	vpnapi "wgsd/cmd/internal/vpn/api"
	"wgsd/cmd/internal/vpn/ippool"
	"wgsd/cmd/internal/vpn/reconcile"
	"wgsd/cmd/internal/vpn/session"
	"wgsd/cmd/internal/vpn/wgctl"
	"wgsd/cmd/security/token"
	"wgsd/db"
)

// App is the service runtime. It owns the pool, the HTTP server, and the
// reconciler goroutines.
type App struct {
	cfg     Config
	log     Logger
	dbPool  *pgxpool.Pool
	metrics *metrics.Collector

	authHandler *authapi.Handler
	vpnHandler  *vpnapi.Handler

	revoker  *reconcile.Revoker
	releaser *reconcile.Releaser
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("app: WG_DATABASE_URL is required")
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a, err := wire(ctx, cfg, log, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, cfg Config, log Logger, pool *pgxpool.Pool) (*App, error) {
	if err := db.Migrate(ctx, pool); err != nil {
		return nil, err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	challenges, err := challenge.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	ips, err := ippool.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	rec, err := audit.NewRecorder(pool, log)
	if err != nil {
		return nil, err
	}

	// The pool rows are reconciled against the configured CIDR under an
	// advisory lock, so parallel replicas converge on the same pool.
	if err := ips.Sync(ctx, cfg.NetworkCIDR, cfg.ReservedIPs, cfg.ProjectName+"-ippool", log); err != nil {
		return nil, err
	}

	if cfg.SeedDefaultUser {
		created, err := users.EnsureDemoUser(ctx)
		if err != nil {
			return nil, err
		}
		if created {
			log.Info("identity.seed.demo_user_created")
		}
	}

	tokens, err := token.NewManager(cfg.JWTSecretKey, cfg.JWTAlgorithm, cfg.AccessTokenTTL, cfg.ProofTokenTTL)
	if err != nil {
		return nil, err
	}
	authn, err := auth.NewAuthenticator(tokens, users, cfg.AdminToken)
	if err != nil {
		return nil, err
	}

	peers, err := wgctl.NewClient(cfg.WGCtlSocket, cfg.WGCtlToken, log)
	if err != nil {
		return nil, err
	}

	allowedIPs := cfg.AllowedIPs
	if len(allowedIPs) == 0 {
		allowedIPs = []string{"0.0.0.0/0"}
	}

	sessionSvc, err := session.NewService(session.Config{
		TTLMax:              cfg.TTLMax,
		TTLStepDefault:      cfg.TTLStepDefault,
		AllowMultipleActive: cfg.AllowMultipleActiveSessions,
		QuarantineDuration:  cfg.QuarantineDuration,
		DNS:                 cfg.DNS,
		Endpoint:            cfg.Endpoint,
		GatewayPubkey:       cfg.GatewayPubkey,
		AllowedIPs:          allowedIPs,
	}, log, sessions, ips, peers, rec, m)
	if err != nil {
		return nil, err
	}

	authHandler, err := authapi.NewHandler(log, authapi.Config{
		MaxBodyBytes:   1 << 20,
		ChallengeTTL:   cfg.ChallengeTTL,
		AccessTokenTTL: cfg.AccessTokenTTL,
		ProofTokenTTL:  cfg.ProofTokenTTL,
	}, users, challenges, tokens, authn, rec)
	if err != nil {
		return nil, err
	}

	vpnHandler, err := vpnapi.NewHandler(log, vpnapi.Config{MaxBodyBytes: 1 << 20}, sessionSvc, authn, rec)
	if err != nil {
		return nil, err
	}

	revoker, err := reconcile.NewRevoker(log, sessions, ips, peers, rec, cfg.QuarantineDuration, cfg.RevokerInterval, m)
	if err != nil {
		return nil, err
	}
	releaser, err := reconcile.NewReleaser(log, ips, cfg.ReleaserInterval, m)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:         cfg,
		log:         log,
		dbPool:      pool,
		metrics:     m,
		authHandler: authHandler,
		vpnHandler:  vpnHandler,
		revoker:     revoker,
		releaser:    releaser,
	}, nil
}

// Run starts the reconcilers and the HTTP server and blocks until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.revoker.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		a.releaser.Run(workerCtx)
	}()

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.dbPool, a.authHandler, a.vpnHandler)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithRequestMetrics(mux, a.metrics), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "environment", a.cfg.Environment)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		stopWorkers()
		wg.Wait()
		a.dbPool.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}

	stopWorkers()
	wg.Wait()
	a.dbPool.Close()

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
