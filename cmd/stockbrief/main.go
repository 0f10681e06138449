// Package main implements the stockbrief CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stockbrief/internal/action"
	"stockbrief/internal/browser"
	"stockbrief/internal/cache"
	"stockbrief/internal/config"
	"stockbrief/internal/deliver"
	"stockbrief/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration
	jsonOut    bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stockbrief",
	Short: "Extract Groww stock pages and hand them to a chat assistant",
	Long: `stockbrief reads a Groww stock detail page through a real Chrome instance,
turns it into a structured record, caches it, and delivers it to a chat
assistant as an analysis prompt.

Typical flow:
  stockbrief extract https://groww.in/stocks/<name>
  stockbrief preview
  stockbrief analyze https://groww.in/stocks/<name>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("File logging disabled", zap.Error(err))
		}

		path := configPath
		if path == "" {
			path = config.DefaultPath(ws)
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		resolvePaths(cfg, ws)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", path, err)
		}
		logging.Boot("Loaded config from %s (deliver mode %s, cache %s)", path, cfg.Deliver.Mode, cfg.Cache.Driver)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.stockbrief/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")

	rootCmd.AddCommand(extractCmd, analyzeCmd, deliverCmd, infoCmd)
	rootCmd.AddCommand(previewCmd, storedCmd, clearCmd, prefsCmd, exportCmd)
	rootCmd.AddCommand(serveCmd, browserCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

// resolvePaths anchors relative file paths in cfg at the workspace.
func resolvePaths(c *config.Config, ws string) {
	for _, p := range []*string{&c.Cache.Path, &c.Browser.SessionStore, &c.Browser.ControlFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(ws, *p)
		}
	}
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT or SIGTERM.
func commandContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		cancel()
		stop()
	}
}

// app bundles the components a command needs.
type app struct {
	store   cache.Store
	bridge  *cache.Bridge
	browser *browser.Manager
	svc     *action.Service
}

// openApp wires the cache, and the browser and deliverer when withBrowser
// is set. Close releases everything.
func openApp(ctx context.Context, withBrowser bool) (*app, error) {
	store, err := cache.Open(cfg.Cache)
	if err != nil {
		return nil, err
	}
	a := &app{store: store, bridge: cache.NewBridge(store)}

	if first, err := a.bridge.Init(ctx, cfg.Version); err != nil {
		logger.Warn("Cache init failed", zap.Error(err))
	} else if first {
		logger.Info("Initialized cache", zap.String("path", cfg.Cache.Path))
	}

	var pages action.Pages
	var opener deliver.Opener
	if withBrowser {
		a.browser = browser.NewManager(cfg.Browser)
		pages = action.BrowserPages{Manager: a.browser}
		opener = a.browser
	}

	var d deliver.Deliverer
	if withBrowser || cfg.Deliver.Mode == "gemini" {
		d, err = action.NewDeliverer(ctx, cfg, a.bridge, opener)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.svc, err = action.New(cfg, a.bridge, pages, d)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close shuts the browser connection and the cache. A browser this process
// launched keeps running only while the process does.
func (a *app) Close() {
	if a.browser != nil {
		if err := a.browser.Shutdown(context.Background()); err != nil {
			logger.Debug("Browser shutdown", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close cache", zap.Error(err))
	}
}
