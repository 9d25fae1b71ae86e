package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sydlexius/camwatch/internal/api/middleware"
	"github.com/sydlexius/camwatch/internal/asset"
	"github.com/sydlexius/camwatch/internal/auth"
	"github.com/sydlexius/camwatch/internal/backup"
	"github.com/sydlexius/camwatch/internal/camera"
	"github.com/sydlexius/camwatch/internal/config"
	"github.com/sydlexius/camwatch/internal/event"
	"github.com/sydlexius/camwatch/internal/logging"
	"github.com/sydlexius/camwatch/internal/maintenance"
	"github.com/sydlexius/camwatch/internal/metrics"
	"github.com/sydlexius/camwatch/internal/scanner"
	"github.com/sydlexius/camwatch/internal/upstream"
)

// ImageFetcher opens a streaming upstream image.
type ImageFetcher interface {
	Fetch(ctx context.Context, code camera.Code) (*upstream.Image, error)
}

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Scanner     *scanner.Service
	Store       *camera.Store
	Upstream    ImageFetcher
	Placeholder *asset.Placeholder
	Verifier    auth.Verifier
	Recorder    *metrics.Recorder
	Gatherer    prometheus.Gatherer
	EventBus    *event.Bus
	LogManager  *logging.Manager
	Maintenance *maintenance.Service
	Backup      *backup.Service
	DB          *sql.DB
	Logger      *slog.Logger

	BasePath       string
	PublicDir      string
	PublicURL      string
	UpdateInterval time.Duration
	AdminEmails    []string
	Proxy          config.ProxyConfig
	AppLinks       config.AppLinksConfig
}

// Router sets up all HTTP routes for the application.
type Router struct {
	scanner     *scanner.Service
	store       *camera.Store
	upstream    ImageFetcher
	placeholder *asset.Placeholder
	verifier    auth.Verifier
	recorder    *metrics.Recorder
	gatherer    prometheus.Gatherer
	eventBus    *event.Bus
	logManager  *logging.Manager
	maintenance *maintenance.Service
	backup      *backup.Service
	db          *sql.DB
	logger      *slog.Logger
	staticFiles *StaticFiles

	basePath       string
	publicURL      string
	updateInterval time.Duration
	adminEmails    []string
	proxy          config.ProxyConfig
	appLinks       config.AppLinksConfig
	startedAt      time.Time
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	placeholder := deps.Placeholder
	if placeholder == nil {
		placeholder = asset.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	if deps.Proxy.MaxBytes <= 0 {
		deps.Proxy.MaxBytes = 10 << 20
	}
	return &Router{
		scanner:        deps.Scanner,
		store:          deps.Store,
		upstream:       deps.Upstream,
		placeholder:    placeholder,
		verifier:       deps.Verifier,
		recorder:       recorder,
		gatherer:       deps.Gatherer,
		eventBus:       deps.EventBus,
		logManager:     deps.LogManager,
		maintenance:    deps.Maintenance,
		backup:         deps.Backup,
		db:             deps.DB,
		logger:         deps.Logger.With(slog.String("component", "api")),
		staticFiles:    NewStaticFiles(deps.PublicDir, deps.Logger),
		basePath:       deps.BasePath,
		publicURL:      deps.PublicURL,
		updateInterval: deps.UpdateInterval,
		adminEmails:    deps.AdminEmails,
		proxy:          deps.Proxy,
		appLinks:       deps.AppLinks,
		startedAt:      time.Now(),
	}
}

// Handler returns the fully configured HTTP handler with middleware
// applied. ctx bounds the background cleanup of the rate limiters.
func (r *Router) Handler(ctx context.Context) http.Handler {
	optional := middleware.OptionalAuth(r.verifier)
	admin := middleware.RequireAdmin(r.verifier)
	proxyLimit := middleware.NewRateLimiter(ctx, r.proxy.RatePerSecond, r.proxy.RateBurst)
	writeLimit := middleware.NewRateLimiter(ctx, 1, 10)

	adminWrite := func(fn http.HandlerFunc) http.Handler {
		return writeLimit.Middleware(admin(fn))
	}

	mux := http.NewServeMux()
	bp := r.basePath

	// Fleet status and relay
	mux.Handle("GET "+bp+"/status-cameras", optional(http.HandlerFunc(r.handleStatusCameras)))
	mux.Handle("GET "+bp+"/proxy/camera", proxyLimit.Middleware(http.HandlerFunc(r.handleProxyCamera)))
	mux.HandleFunc("GET "+bp+"/api/sync-info", r.handleSyncInfo)
	mux.HandleFunc("GET "+bp+"/api/config", r.handleClientConfig)

	// Monitoring
	mux.HandleFunc("GET "+bp+"/health", r.handleHealth)
	mux.HandleFunc("GET "+bp+"/metrics", r.handleMetrics)
	if r.gatherer != nil {
		mux.Handle("GET "+bp+"/metrics/prometheus", r.prometheusHandler())
	}

	// Admin
	mux.Handle("POST "+bp+"/api/update-camera-info", adminWrite(r.handleUpdateCameraInfo))
	mux.Handle("GET "+bp+"/api/cameras/{code}/history", admin(http.HandlerFunc(r.handleCameraHistory)))
	mux.Handle("POST "+bp+"/api/scan", adminWrite(r.handleScanRun))
	mux.Handle("GET "+bp+"/api/scan", admin(http.HandlerFunc(r.handleScanStatus)))
	mux.Handle("GET "+bp+"/api/logging", admin(http.HandlerFunc(r.handleGetLogging)))
	mux.Handle("PUT "+bp+"/api/logging", adminWrite(r.handleUpdateLogging))
	mux.Handle("GET "+bp+"/api/maintenance", admin(http.HandlerFunc(r.handleMaintenanceStatus)))
	mux.Handle("POST "+bp+"/api/maintenance/optimize", adminWrite(r.handleMaintenanceOptimize))
	mux.Handle("GET "+bp+"/api/backups", admin(http.HandlerFunc(r.handleBackupList)))
	mux.Handle("POST "+bp+"/api/backups", adminWrite(r.handleBackupCreate))
	mux.Handle("DELETE "+bp+"/api/backups/{filename}", adminWrite(r.handleBackupDelete))

	// Discovery and docs
	mux.HandleFunc("GET "+bp+"/sitemap.xml", r.handleSitemap)
	mux.HandleFunc("GET "+bp+"/.well-known/assetlinks.json", r.handleAssetLinks)
	mux.HandleFunc("GET "+bp+"/apple-app-site-association", r.handleAppleAppSiteAssociation)
	mux.HandleFunc("GET "+bp+"/.well-known/apple-app-site-association", r.handleAppleAppSiteAssociation)
	mux.HandleFunc("GET "+bp+"/api/docs", r.handleAPIDocs)
	mux.HandleFunc("GET "+bp+"/api/docs/openapi.yaml", r.handleOpenAPISpec)

	// Everything else comes from the public directory.
	mux.Handle("GET "+bp+"/", r.staticFiles.Handler(bp))

	var h http.Handler = mux
	h = middleware.CORS(h)
	h = middleware.Logging(r.logger, r.recorder)(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.Recover(r.logger)(h)
	return h
}
