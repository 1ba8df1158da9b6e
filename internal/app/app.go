// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ch2church/worship-storyboard/internal/api"
	"github.com/ch2church/worship-storyboard/internal/auth"
	"github.com/ch2church/worship-storyboard/internal/config"
	"github.com/ch2church/worship-storyboard/internal/di"
	"github.com/ch2church/worship-storyboard/internal/document"
	"github.com/ch2church/worship-storyboard/internal/services"
	"github.com/ch2church/worship-storyboard/internal/storage"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

const (
	sessionTTL        = 12 * time.Hour
	sweepInterval     = 10 * time.Minute
	metricsInterval   = 5 * time.Minute
	verseCacheSize    = 500
	verseCacheTTL     = 30 * time.Minute
	statsSaveInterval = 30 * time.Second
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App owns the configured services and the HTTP server.
type App struct {
	config    *config.Config
	container *di.Container
	router    http.Handler
	server    httpServer
	stopChan  chan os.Signal
	cancel    context.CancelFunc
	logger    *utils.Logger
}

var (
	instance      *App
	instanceMutex sync.Mutex
)

// GetApp returns the process-wide application.
func GetApp() *App {
	instanceMutex.Lock()
	defer instanceMutex.Unlock()

	if instance == nil {
		instance = &App{
			container: di.GetContainer(),
			stopChan:  make(chan os.Signal, 1),
			logger:    utils.GetLogger(),
		}
	}
	return instance
}

// Initialize prepares directories, settings, logging, services and routes.
func Initialize(cfg *config.Config) error {
	a := GetApp()
	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := config.InitConfig(cfg.DataDir, cfg); err != nil {
		return fmt.Errorf("init runtime settings: %w", err)
	}
	if err := initLogger(cfg.LogDir, cfg.LogLevel); err != nil {
		return err
	}
	a.config = cfg

	if err := InitServices(cfg, a.container); err != nil {
		return err
	}
	handler, err := NewHandler(a.container)
	if err != nil {
		return err
	}
	a.router = api.SetupRouter(handler, cfg.DebugMode)
	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	handler.Metrics.StartMetricsCollection(ctx, metricsInterval)
	go sweepSessions(ctx, handler.Sessions, sweepInterval)

	a.logger.Info("application initialized", map[string]interface{}{
		"port":     cfg.Port,
		"backend":  cfg.StoreBackend,
		"base_dir": cfg.StoreBaseDir,
		"locale":   cfg.DocLocale,
		"debug":    cfg.DebugMode,
		"services": a.container.GetNames(),
	})
	return nil
}

func initLogger(logDir, level string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	if err := utils.InitLogger(utils.DailyLogFile(logDir)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	utils.GetLogger().SetLogLevel(utils.ParseLogLevel(level))
	return nil
}

// OpenStore connects the configured blob store backend.
func OpenStore(cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.StoreBackend {
	case config.BackendGitHub:
		return storage.NewGitHubStore(storage.GitHubConfig{
			Owner:   cfg.GitHubOwner,
			Repo:    cfg.GitHubRepo,
			Branch:  cfg.GitHubBranch,
			Token:   cfg.GitHubToken,
			BaseURL: cfg.GitHubAPIURL,
		})
	case config.BackendPostgres:
		return storage.ConnectPostgres(cfg.DatabaseURL)
	case config.BackendLocal, "":
		return storage.NewFileStorage(filepath.Join(cfg.DataDir, "store"))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// InitServices builds every service in dependency order and registers it.
func InitServices(cfg *config.Config, c *di.Container) error {
	metrics := utils.NewAPIMetrics()
	c.Register(di.Metrics, metrics)

	inner, err := OpenStore(cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	backend := cfg.StoreBackend
	if backend == "" {
		backend = config.BackendLocal
	}
	store := storage.Instrument(inner, backend, metrics)
	c.Register(di.Store, store)

	verseStore := storage.NewCachedStore(store, verseCacheSize, verseCacheTTL)
	c.Register(di.VerseStore, verseStore)
	verses, err := services.NewVerseService(verseStore, cfg.VersePrefix)
	if err != nil {
		return fmt.Errorf("load book catalog: %w", err)
	}
	c.Register(di.Verses, verses)

	reviews := api.NewReviewHub()
	c.Register(di.Reviews, reviews)

	c.Register(di.Submissions, services.NewSubmissionService(store, cfg.StoreBaseDir, reviews, metrics))
	c.Register(di.Export, services.NewExportService(store, document.NewDocxEncoder("", 0), document.LabelsFor(cfg.DocLocale), metrics))
	c.Register(di.Sessions, services.NewSessionService(sessionTTL))

	gate, err := auth.NewAccessGate(cfg.AccessCode)
	if err != nil {
		return fmt.Errorf("access gate: %w", err)
	}
	c.Register(di.Gate, gate)

	tokens, err := api.NewTokenConfig(cfg)
	if err != nil {
		return fmt.Errorf("token config: %w", err)
	}
	c.Register(di.Tokens, tokens)

	stats, err := services.NewStatsService(filepath.Join(cfg.DataDir, "stats"), statsSaveInterval)
	if err != nil {
		return err
	}
	c.Register(di.Stats, stats)
	return nil
}

// NewHandler assembles the API handler from registered services.
func NewHandler(c *di.Container) (*api.Handler, error) {
	sessions, err := di.Resolve[*services.SessionService](c, di.Sessions)
	if err != nil {
		return nil, err
	}
	submissions, err := di.Resolve[*services.SubmissionService](c, di.Submissions)
	if err != nil {
		return nil, err
	}
	export, err := di.Resolve[*services.ExportService](c, di.Export)
	if err != nil {
		return nil, err
	}
	verses, err := di.Resolve[*services.VerseService](c, di.Verses)
	if err != nil {
		return nil, err
	}
	gate, err := di.Resolve[*auth.AccessGate](c, di.Gate)
	if err != nil {
		return nil, err
	}
	tokens, err := di.Resolve[*auth.TokenConfig](c, di.Tokens)
	if err != nil {
		return nil, err
	}
	reviews, err := di.Resolve[*api.ReviewHub](c, di.Reviews)
	if err != nil {
		return nil, err
	}
	metrics, err := di.Resolve[*utils.APIMetrics](c, di.Metrics)
	if err != nil {
		return nil, err
	}
	h := api.NewHandler(sessions, submissions, export, verses, gate, tokens, reviews, metrics)
	if stats, err := di.Resolve[*services.StatsService](c, di.Stats); err == nil {
		h.Stats = stats
	}
	return h, nil
}

func sweepSessions(ctx context.Context, sessions *services.SessionService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.CleanupExpired(); n > 0 {
				utils.GetLogger().Info("expired sessions removed", map[string]interface{}{"count": n})
			}
		}
	}
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func Run() error {
	a := GetApp()
	if a.server == nil {
		return fmt.Errorf("application not initialized")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.stopChan)

	select {
	case sig := <-a.stopChan:
		a.logger.Info("shutting down", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		a.cleanup()
		return fmt.Errorf("server stopped: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := a.server.Shutdown(ctx)
	a.cleanup()
	if err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	a.logger.Info("server stopped", nil)
	return nil
}

func (a *App) cleanup() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.container != nil {
		if err := a.container.Close(); err != nil {
			a.logger.Warn("service shutdown", map[string]interface{}{"error": err.Error()})
		}
	}
	_ = utils.GetLogger().Close()
}

// GetConfig returns the base configuration.
func (a *App) GetConfig() *config.Config {
	return a.config
}

// Router exposes the HTTP handler.
func (a *App) Router() http.Handler {
	return a.router
}

// GetDIContainer returns the application's service container.
func GetDIContainer() *di.Container {
	return GetApp().container
}

// IsDebugMode reports whether the running app was configured for debugging.
func IsDebugMode() bool {
	instanceMutex.Lock()
	a := instance
	instanceMutex.Unlock()
	return a != nil && a.config != nil && a.config.DebugMode
}
