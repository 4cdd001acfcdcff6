// Command authd serves the account authentication API over HTTP:
// password and TOTP login, refresh token rotation, session management,
// and the operational endpoints around them.
//
// Usage:
//
//	authd -config authd.yaml
//	authd -config authd.yaml -genkeys
//
// Configuration comes from the YAML file plus AUTHD_* environment
// overrides; see config.go for the full set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/horizonsync/authcore"
	"github.com/horizonsync/authcore/httpapi"
	"github.com/horizonsync/authcore/obs"
	"github.com/horizonsync/authcore/pgstore"
	"github.com/horizonsync/authcore/ratelimit"
)

var version = "0.4.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	genKeys := flag.Bool("genkeys", false, "generate an ed25519 signing key pair at the configured paths and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}

	if *genKeys {
		if err := generateKeyFiles(cfg.Auth.PrivateKeyFile, cfg.Auth.PublicKeyFile); err != nil {
			fmt.Fprintln(os.Stderr, "authd:", err)
			os.Exit(1)
		}
		fmt.Println("wrote", cfg.Auth.PrivateKeyFile)
		if cfg.Auth.PublicKeyFile != "" {
			fmt.Println("wrote", cfg.Auth.PublicKeyFile)
		}
		return
	}

	logger := obs.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("authd failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config, log *slog.Logger) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	priv, pub, err := loadSigningKeys(cfg.Auth)
	if err != nil {
		return err
	}
	ecfg, err := engineConfig(cfg, priv, pub)
	if err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := pgstore.Open(startCtx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if cfg.Database.Migrate {
		if err := pgstore.Migrate(store.DB()); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database migrations applied")
	}

	builder := authcore.New().
		WithConfig(ecfg).
		WithStore(store).
		WithRoleResolver(pgstore.NewRoles(store.DB())).
		WithAuditSink(&authcore.SlogSink{Logger: log})

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(startCtx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		defer rdb.Close()
		builder = builder.WithRateLimiter(ratelimit.NewRedisLimiter(rdb, throttleConfig(cfg)))
		log.Info("login throttle backed by redis", "addr", cfg.Redis.Addr)
	} else {
		// Server restarts forget in-process windows; acceptable for a
		// single instance, not for a fleet.
		builder = builder.WithRateLimiter(ratelimit.NewLocalLimiter(throttleConfig(cfg)))
		log.Info("login throttle running in process")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	obs.Init()
	prometheus.MustRegister(obs.NewEngineCollector(engine))

	api := httpapi.New(engine, httpapi.Options{
		Logger:     log,
		Ready:      func(ctx context.Context) error { return store.DB().PingContext(ctx) },
		Metrics:    obs.Handler(),
		Instrument: obs.Instrument,
		RateRPS:    cfg.Limits.HTTPRPS,
		RateBurst:  cfg.Limits.HTTPBurst,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.Handler(),
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout),
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.Info("authd listening", "addr", srv.Addr, "version", version)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
