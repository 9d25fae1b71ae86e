package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quic-go/quic-go/http3"
	"golang.org/x/net/netutil"

	"github.com/sydlexius/camwatch/internal/api"
	"github.com/sydlexius/camwatch/internal/asset"
	"github.com/sydlexius/camwatch/internal/auth"
	"github.com/sydlexius/camwatch/internal/backup"
	"github.com/sydlexius/camwatch/internal/camera"
	"github.com/sydlexius/camwatch/internal/config"
	"github.com/sydlexius/camwatch/internal/database"
	"github.com/sydlexius/camwatch/internal/event"
	"github.com/sydlexius/camwatch/internal/logging"
	"github.com/sydlexius/camwatch/internal/maintenance"
	"github.com/sydlexius/camwatch/internal/metrics"
	"github.com/sydlexius/camwatch/internal/scanner"
	"github.com/sydlexius/camwatch/internal/upstream"
	"github.com/sydlexius/camwatch/internal/version"
	"github.com/sydlexius/camwatch/internal/watcher"
	"github.com/sydlexius/camwatch/internal/webhook"
)

func runServe(parent context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging via the logging Manager
	logManager, logger := logging.NewManager(loggingConfig(cfg.Logging))
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	// Open database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// Persisted logging settings override the config file.
	loadDBLoggingConfig(db, logManager, logger)

	placeholder, err := asset.Load(cfg.Proxy.PlaceholderPath)
	if err != nil {
		return fmt.Errorf("loading placeholder image: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := camera.NewStore(db)

	if cfg.Metadata.SeedPath != "" {
		if err := importSeed(ctx, store, cfg.Metadata.SeedPath, cfg.Metadata.SeedOverwrite, logger); err != nil {
			logger.Warn("seed import failed, continuing with stored metadata", "error", err)
		}
	}

	client := upstream.New(upstream.Options{
		BaseURL:       cfg.Upstream.BaseURL,
		ImagePath:     cfg.Upstream.ImagePath,
		UserAgent:     cfg.Upstream.UserAgent,
		Timeout:       cfg.Upstream.RequestTimeout,
		FetchTimeout:  cfg.Proxy.Timeout,
		MinImageBytes: int64(cfg.Upstream.MinImageSizeKB) * 1024,
		MaxProbeBytes: cfg.Upstream.MaxProbeBytes,
		MaxRPS:        cfg.Upstream.MaxRPS,
	}, logger)

	scannerService := scanner.NewService(client, store, scanner.Options{
		Codes:       camera.Range(cfg.Scanner.CodeStart, cfg.Scanner.CodeEnd),
		Concurrency: cfg.Scanner.ConcurrencyLimit,
		ScanTimeout: cfg.Scanner.ScanTimeout,
	}, logger)

	// Initialize event bus
	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	scannerService.SetEventBus(eventBus)

	// A failed load leaves an empty metadata set; records use defaults.
	if err := scannerService.ReloadMetadata(ctx); err != nil {
		logger.Warn("starting without camera metadata", "error", err)
	}

	registry := webhook.NewRegistry(webhooksFromConfig(cfg.Webhooks))
	dispatcher := webhook.NewDispatcher(registry, logger)
	defer func() {
		eventBus.Stop()
		eventBus.Wait()
		dispatcher.Wait()
	}()
	if registry.Len() > 0 {
		eventBus.SubscribeAll(dispatcher.HandleEvent)
		logger.Info("webhooks configured", slog.Int("count", registry.Len()))
	}

	verifier, err := buildVerifier(ctx, cfg.Auth, logger)
	if err != nil {
		return fmt.Errorf("configuring authentication: %w", err)
	}

	recorder := metrics.NewRecorder()
	promRegistry := metrics.NewRegistry(metrics.NewCollector(scannerService, recorder))

	maintenanceService := maintenance.NewService(db, cfg.Database.Path, cfg.Database.MaintenanceInterval, logger)
	maintenanceService.SetAuditRetention(cfg.Database.AuditRetention)
	backupService := backup.NewService(db, backup.Options{
		Dir:       cfg.Backup.Dir,
		Interval:  cfg.Backup.Interval,
		Retention: cfg.Backup.Retention,
		MaxAge:    cfg.Backup.MaxAge,
	}, logger)

	logger.Info("starting camwatch",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.Int("cameras", len(scannerService.Codes())),
	)

	router := api.NewRouter(api.RouterDeps{
		Scanner:        scannerService,
		Store:          store,
		Upstream:       client,
		Placeholder:    placeholder,
		Verifier:       verifier,
		Recorder:       recorder,
		Gatherer:       promRegistry,
		EventBus:       eventBus,
		LogManager:     logManager,
		Maintenance:    maintenanceService,
		Backup:         backupService,
		DB:             db,
		Logger:         logger,
		BasePath:       cfg.Server.BasePath,
		PublicDir:      cfg.Server.PublicDir,
		PublicURL:      cfg.Server.PublicURL,
		UpdateInterval: cfg.Scanner.UpdateInterval,
		AdminEmails:    cfg.Auth.AdminEmails,
		Proxy:          cfg.Proxy,
		AppLinks:       cfg.AppLinks,
	})

	go scanner.NewScheduler(scannerService, cfg.Scanner.UpdateInterval, cfg.Scanner.RetryDelay, logger).Start(ctx)
	go maintenanceService.StartScheduler(ctx)
	go backupService.StartScheduler(ctx)

	if cfg.Metadata.SeedPath != "" && cfg.Metadata.WatchSeed {
		reload := func(ctx context.Context, path string) error {
			if err := importSeed(ctx, store, path, cfg.Metadata.SeedOverwrite, logger); err != nil {
				return err
			}
			return scannerService.ReloadMetadata(ctx)
		}
		go watcher.NewService(cfg.Metadata.SeedPath, reload, logger).Start(ctx)
	}

	return serveHTTP(ctx, cfg.Server, router.Handler(ctx), logger)
}

// serveHTTP runs the TCP listener, plus HTTP/3 when enabled, until ctx is
// canceled, then shuts both down gracefully.
func serveHTTP(ctx context.Context, sc config.ServerConfig, handler http.Handler, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", sc.Port)

	var h3 *http3.Server
	if sc.TLSEnabled() && sc.HTTP3 {
		h3 = &http3.Server{
			Addr:    addr,
			Handler: handler,
		}
		next := handler
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := h3.SetQUICHeaders(w.Header()); err != nil {
				logger.Debug("setting Alt-Svc header", "error", err)
			}
			next.ServeHTTP(w, r)
		})
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if sc.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, sc.MaxConnections)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("base_path", sc.BasePath),
			slog.Bool("tls", sc.TLSEnabled()),
			slog.Int("max_connections", sc.MaxConnections))
		var err error
		if sc.TLSEnabled() {
			err = srv.ServeTLS(ln, sc.TLSCertFile, sc.TLSKeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if h3 != nil {
		go func() {
			logger.Info("http/3 listener starting", slog.String("addr", addr))
			if err := h3.ListenAndServeTLS(sc.TLSCertFile, sc.TLSKeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http/3: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("server error", "error", serveErr)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if h3 != nil {
		if err := h3.Close(); err != nil {
			logger.Warn("closing http/3 listener", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return serveErr
}

func loggingConfig(c config.LoggingConfig) logging.Config {
	return logging.Config{
		Level:          c.Level,
		Format:         c.Format,
		FilePath:       c.FilePath,
		FileMaxSizeMB:  c.FileMaxSizeMB,
		FileMaxFiles:   c.FileMaxFiles,
		FileMaxAgeDays: c.FileMaxAgeDays,
	}
}

// loadDBLoggingConfig applies persisted logging settings, if any.
func loadDBLoggingConfig(db *sql.DB, mgr *logging.Manager, logger *slog.Logger) {
	cfg, found, err := logging.LoadSettings(context.Background(), db, mgr.Config())
	if err != nil {
		logger.Warn("loading logging settings", "error", err)
		return
	}
	if !found {
		return
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("ignoring invalid persisted logging settings", "error", err)
		return
	}
	mgr.Reconfigure(cfg)
	logger.Info("logging settings loaded from database", "config", cfg.String())
}

// seedAuthor prefixes updated_by on rows written by a seed import.
const seedAuthor = "seed:"

// importSeed loads the seed file into store. Unless overwrite is set, rows
// last written by someone other than a seed import are left untouched.
func importSeed(ctx context.Context, store *camera.Store, path string, overwrite bool, logger *slog.Logger) error {
	f, err := os.Open(path) //nolint:gosec // operator-supplied seed path
	if err != nil {
		return fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	opts := camera.ImportOptions{By: seedAuthor + path}
	if !overwrite {
		opts.Owner = seedAuthor
	}
	res, err := store.ImportJSON(ctx, f, opts)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		logger.Warn("seed import", "warning", w)
	}
	logger.Info("seed file imported",
		slog.String("path", path),
		slog.Int("imported", res.Imported),
		slog.Int("skipped", res.Skipped),
		slog.Int("kept", res.Kept))
	return nil
}

func webhooksFromConfig(hooks []config.WebhookConfig) []webhook.Webhook {
	out := make([]webhook.Webhook, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, webhook.Webhook{Name: h.Name, URL: h.URL, Type: h.Type, Events: h.Events})
	}
	return out
}

// buildVerifier chains the configured token verifiers: OIDC ID tokens
// first, then static service tokens.
func buildVerifier(ctx context.Context, ac config.AuthConfig, logger *slog.Logger) (auth.Verifier, error) {
	admins := auth.NewAdminSet(ac.AdminEmails)
	var chain auth.Chain

	if ac.OIDCEnabled() {
		v, err := auth.NewOIDCVerifier(ctx, auth.OIDCOptions{
			Issuer:   ac.OIDCIssuer,
			Audience: ac.OIDCAudience,
			JWKSURL:  ac.OIDCJWKSURL,
			Admins:   admins,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
		logger.Info("oidc verification enabled", slog.String("issuer", ac.OIDCIssuer))
	}

	tokens := make([]auth.StaticToken, 0, len(ac.StaticTokens))
	for _, t := range ac.StaticTokens {
		tokens = append(tokens, auth.StaticToken{Name: t.Name, Email: t.Email, Hash: t.Hash, Admin: t.Admin})
	}
	if sv := auth.NewStaticVerifier(tokens); sv.Len() > 0 {
		chain = append(chain, sv)
		logger.Info("static service tokens enabled", slog.Int("count", sv.Len()))
	}

	if len(chain) == 0 {
		logger.Warn("no token verifier configured; admin endpoints are unavailable")
		return nil, nil
	}
	return chain, nil
}
