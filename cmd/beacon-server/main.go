// Command beacon-server starts the safety-beacon record store: a JSON/HTTP API
// backed by PostgreSQL plus a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/and161185/safety-beacon/internal/config"
	"github.com/and161185/safety-beacon/internal/limiter"
	"github.com/and161185/safety-beacon/internal/migrate"
	"github.com/and161185/safety-beacon/internal/repository"
	"github.com/and161185/safety-beacon/internal/repository/memory"
	"github.com/and161185/safety-beacon/internal/repository/postgres"
	"github.com/and161185/safety-beacon/internal/server/grpcops"
	"github.com/and161185/safety-beacon/internal/server/httpapi"
	"github.com/and161185/safety-beacon/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownGrace = 5 * time.Second

// main loads configuration, runs migrations, and serves until SIGINT/SIGTERM.
func main() {
	// .env is optional; real environment wins
	_ = godotenv.Load()

	configFile := flag.String("config", "", "config file (TOML); default beacon.toml if present")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	opsAddr := flag.String("ops-addr", "", "gRPC health listen address (overrides config)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
	jwtKey := flag.String("jwt-key", "", "HS256 signing key (overrides config)")
	accessTTL := flag.Duration("access-ttl", 0, "access token TTL (overrides config)")
	dev := flag.Bool("dev", false, "enable gRPC server reflection (dev only)")
	inMemory := flag.Bool("memory", false, "keep all state in process memory instead of PostgreSQL (dev only)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(viper.New(), *configFile)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	sc := cfg.Server
	override(&sc.HTTPAddr, *addr)
	override(&sc.GRPCAddr, *opsAddr)
	override(&sc.DSN, *dsn)
	override(&sc.JWTKey, *jwtKey)
	if *accessTTL > 0 {
		sc.AccessTTL = *accessTTL
	}
	if *inMemory && sc.DSN == "" {
		sc.DSN = "memory"
	}
	if err := sc.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", sc.HTTPAddr),
		zap.String("opsAddr", sc.GRPCAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		accountRepo  repository.AccountRepository
		bookmarkRepo repository.BookmarkRepository
		lim          limiter.Limiter
		pinger       grpcops.Pinger
	)
	if *inMemory {
		logger.Warn("in-memory mode: state is lost on exit")
		mem := memory.New()
		accountRepo, bookmarkRepo = mem.Accounts(), mem.Bookmarks()
		ml, err := limiter.NewMemory(sc.Limiter, 0)
		if err != nil {
			logger.Fatal("limiter", zap.Error(err))
		}
		lim, pinger = ml, alwaysUp{}
	} else {
		if err := migrate.Up(ctx, sc.DSN, logger); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		pool, err := pgxpool.New(ctx, sc.DSN)
		if err != nil {
			logger.Fatal("pgxpool.New", zap.Error(err))
		}
		defer pool.Close()

		// Repositories
		db := &postgres.DB{Pool: pool}
		accountRepo = postgres.NewAccountRepo(db)
		bookmarkRepo = postgres.NewBookmarkRepo(db)
		lim = limiter.NewPG(pool, sc.Limiter)
		pinger = pool
	}

	// Services
	authSvc := service.NewAuthService(accountRepo, []byte(sc.JWTKey), sc.AccessTTL, lim)
	accountSvc := service.NewAccountService(accountRepo)
	bookmarkSvc := service.NewBookmarkService(accountRepo, bookmarkRepo)
	querySvc := service.NewQueryService(accountSvc, bookmarkSvc)

	api := httpapi.New(authSvc, accountSvc, bookmarkSvc, querySvc, logger, httpapi.WithPinger(pinger))
	httpSrv := &http.Server{
		Addr:              sc.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcOpts []grpc.ServerOption
	if sc.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(sc.TLSCert, sc.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		grpcOpts = append(grpcOpts, grpc.Creds(creds))
	}
	ops := grpcops.New(pinger, sc.HealthInterval, logger, grpcOpts...)
	if *dev {
		ops.EnableReflection()
	}
	go ops.Watch(ctx)

	lis, err := net.Listen("tcp", sc.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("ops listening", zap.String("addr", sc.GRPCAddr))
		errCh <- ops.Server().Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", sc.HTTPAddr), zap.Bool("tls", sc.TLSCert != ""))
		var err error
		if sc.TLSCert != "" {
			err = httpSrv.ListenAndServeTLS(sc.TLSCert, sc.TLSKey)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		ops.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		done := make(chan struct{})
		go func() {
			ops.Server().GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			ops.Server().Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

type alwaysUp struct{}

func (alwaysUp) Ping(context.Context) error { return nil }

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
