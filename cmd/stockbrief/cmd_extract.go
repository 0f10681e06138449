package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stockbrief/internal/action"
	"stockbrief/internal/extract"
	"stockbrief/internal/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	extractFile  string
	extractWatch bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [url]",
	Short: "Extract a stock page into the cache",
	Long: `Reads the stock page at url through Chrome and stores the record.

With --file the page is read from a saved HTML file instead; url is then
only used as the record's address. --watch re-extracts whenever the file
changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Extract a stock page and send it to the assistant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(timeout)
		defer cancel()

		a, err := openApp(ctx, cfg.Deliver.Mode != "gemini")
		if err != nil {
			return err
		}
		defer a.Close()

		logger.Info("Analyzing", zap.String("url", args[0]))
		st := a.svc.Analyze(ctx, args[0])
		printStatus(os.Stdout, st)
		printOutcome(st)
		return statusError(st)
	},
}

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Deliver the cached record if analysis was requested",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(timeout)
		defer cancel()

		a, err := openApp(ctx, cfg.Deliver.Mode != "gemini")
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.svc.DeliverPending(ctx)
		printStatus(os.Stdout, st)
		printOutcome(st)
		return statusError(st)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "Show name, price and change for a stock page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(timeout)
		defer cancel()

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.svc.BasicInfo(ctx, args[0])
		if jsonOut || !st.OK() {
			printStatus(os.Stdout, st)
			return statusError(st)
		}
		printField(os.Stdout, "name", st.Info.Name)
		printField(os.Stdout, "price", st.Info.Price)
		change := st.Info.Change
		switch st.Info.Direction {
		case "positive":
			change = successStyle.Render(change)
		case "negative":
			change = errorStyle.Render(change)
		}
		printField(os.Stdout, "change", change)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractFile, "file", "f", "", "Read the page from a saved HTML file")
	extractCmd.Flags().BoolVar(&extractWatch, "watch", false, "Re-extract when --file changes")
}

func runExtract(cmd *cobra.Command, args []string) error {
	url := ""
	if len(args) > 0 {
		url = args[0]
	}
	if extractFile == "" && url == "" {
		return fmt.Errorf("either a url or --file is required")
	}
	if extractWatch && extractFile == "" {
		return fmt.Errorf("--watch requires --file")
	}

	if extractWatch {
		ctx, cancel := commandContext(0)
		defer cancel()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		return watchFile(ctx, a.svc, extractFile, url)
	}

	ctx, cancel := commandContext(timeout)
	defer cancel()

	a, err := openApp(ctx, extractFile == "")
	if err != nil {
		return err
	}
	defer a.Close()

	var st action.Status
	if extractFile != "" {
		st, err = extractFromFile(ctx, a.svc, extractFile, url)
		if err != nil {
			return err
		}
	} else {
		logger.Info("Extracting", zap.String("url", url))
		st = a.svc.Extract(ctx, url)
	}
	printStatus(os.Stdout, st)
	return statusError(st)
}

func extractFromFile(ctx context.Context, svc *action.Service, path, url string) (action.Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return action.Status{}, fmt.Errorf("failed to read page: %w", err)
	}
	if url == "" {
		abs, _ := filepath.Abs(path)
		url = "file://" + filepath.ToSlash(abs)
	}
	return svc.ExtractSource(ctx, extract.StaticSource{Address: url, Markup: string(data)}), nil
}

// watchFile extracts path once, then again after every write until ctx is
// done. Editors often save through rename, so the directory is watched.
func watchFile(ctx context.Context, svc *action.Service, path, url string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	run := func() {
		st, err := extractFromFile(ctx, svc, abs, url)
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			return
		}
		printStatus(os.Stdout, st)
	}
	run()
	fmt.Println(infoStyle.Render(fmt.Sprintf("Watching %s (Ctrl+C to stop)", path)))

	// Debounce bursts of events from a single save.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			logging.ExtractDebug("watch event %s", ev)
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error", zap.Error(err))
		case <-pending:
			pending = nil
			run()
		}
	}
}

func printOutcome(st action.Status) {
	if jsonOut || st.Outcome == nil {
		return
	}
	o := st.Outcome
	printField(os.Stdout, "state", string(o.State))
	printField(os.Stdout, "url", o.URL)
	printField(os.Stdout, "submit", o.SubmitSelector)
	for _, w := range o.Warnings {
		printField(os.Stdout, "warning", w)
	}
	if o.Response != "" {
		fmt.Println()
		fmt.Println(headerStyle.Render("Response"))
		fmt.Println(o.Response)
	}
}
