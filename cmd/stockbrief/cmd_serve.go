package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockbrief/internal/browser"
	"stockbrief/internal/logging"
	"stockbrief/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the actions over a local HTTP API",
	Long: `Starts the local API used by bookmarklets and scripts. Chrome is started
or reconnected on the first request that needs a page.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(0)
		defer cancel()

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		sc := cfg.Server
		if serveAddr != "" {
			sc.Addr = serveAddr
		}
		srv := server.New(sc, a.svc, verbose)
		logger.Info("Serving", zap.String("addr", sc.Addr))
		fmt.Println(infoStyle.Render("Listening on http://" + sc.Addr + " (Ctrl+C to stop)"))
		return srv.Run(ctx)
	},
}

var browserCmd = &cobra.Command{
	Use:   "browser",
	Short: "Manage the Chrome instance used for pages and delivery",
}

var browserLaunchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch Chrome and keep it running for other commands",
	Args:  cobra.NoArgs,
	RunE:  browserLaunch,
}

var browserSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded browser sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := browser.NewManager(cfg.Browser)
		if err := mgr.LoadSessions(); err != nil {
			return fmt.Errorf("failed to read sessions: %w", err)
		}
		sessions := mgr.List()
		if jsonOut {
			printJSON(os.Stdout, sessions)
			return nil
		}
		if len(sessions) == 0 {
			fmt.Println(infoStyle.Render("No sessions recorded"))
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-9s %s  %s\n", s.ID, s.Status, s.LastActive.Format(time.DateTime), s.URL)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	browserCmd.AddCommand(browserLaunchCmd, browserSessionsCmd)
}

func browserLaunch(cmd *cobra.Command, args []string) error {
	logger.Info("Launching browser")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	mgr := browser.NewManager(cfg.Browser)
	err := mgr.Start(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	if !mgr.Launched() {
		fmt.Printf("Browser already running. Control URL: %s\n", mgr.ControlURL())
		return mgr.Shutdown(context.Background())
	}

	fmt.Printf("Browser launched. Control URL: %s\n", mgr.ControlURL())
	fmt.Printf("Control file: %s\n", cfg.Browser.ControlFile)
	fmt.Println("Press Ctrl+C to shutdown")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := mgr.Shutdown(context.Background()); err != nil {
		logging.BrowserWarn("failed to shutdown browser: %v", err)
	}
	return nil
}
