package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"stockbrief/internal/cache"
	"stockbrief/internal/config"
	"stockbrief/internal/export"
	"stockbrief/internal/render"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	previewRaw   bool
	previewCheck bool
	exportOut    string
	initForce    bool
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the cached record as the assistant will receive it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(timeout)
		defer cancel()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.svc.Preview(ctx)
		if !st.OK() || st.Preview == "" || jsonOut {
			printStatus(os.Stdout, st)
			return statusError(st)
		}

		if previewCheck {
			if _, err := render.Parse(st.Preview); err != nil {
				return fmt.Errorf("preview does not parse back: %w", err)
			}
			logger.Debug("Preview parses back", zap.Int("bytes", len(st.Preview)))
		}

		fmt.Println(infoStyle.Render(st.Message))
		if previewRaw {
			fmt.Println(st.Preview)
			return nil
		}
		fmt.Print(renderYAML(st.Preview))
		return nil
	},
}

var storedCmd = &cobra.Command{
	Use:   "stored",
	Short: "Show what is cached",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(timeout)
		defer cancel()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.svc.Stored(ctx)
		printStatus(os.Stdout, st)
		if st.Record != nil && !jsonOut {
			rec := st.Record
			printField(os.Stdout, "url", rec.URL)
			printField(os.Stdout, "price", rec.CurrentPrice)
			printField(os.Stdout, "tables", strconv.Itoa(len(rec.AllTables)))
			if rec.FinancialCharts != nil {
				printField(os.Stdout, "charts", strconv.Itoa(len(rec.FinancialCharts.Series)))
			}
		}
		return statusError(st)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(timeout)
		defer cancel()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.svc.Clear(ctx)
		printStatus(os.Stdout, st)
		return statusError(st)
	},
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show the preference toggles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(timeout)
		defer cancel()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.svc.Preferences(ctx)
		if jsonOut || !st.OK() {
			printStatus(os.Stdout, st)
			return statusError(st)
		}
		printPreferences(st.Preferences)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:       "set <key> <true|false>",
	Short:     "Change a preference toggle",
	Args:      cobra.ExactArgs(2),
	ValidArgs: cache.PreferenceKeys,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}

		ctx, cancel := commandContext(timeout)
		defer cancel()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.svc.SetPreference(ctx, args[0], value)
		printStatus(os.Stdout, st)
		return statusError(st)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the cached record to an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(timeout)
		defer cancel()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.svc.Stored(ctx)
		if st.Record == nil {
			printStatus(os.Stdout, st)
			return statusError(st)
		}

		path := exportOut
		if path == "" {
			path = export.FileName(st.Record)
		} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = filepath.Join(path, export.FileName(st.Record))
		}
		if err := export.WriteFile(st.Record, path); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Exported " + st.Record.StockName + " to " + path))
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config to the workspace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		path := configPath
		if path == "" {
			path = config.DefaultPath(ws)
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			fmt.Println(infoStyle.Render("Config already exists: " + path))
			return nil
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Wrote " + path))
		return nil
	},
}

func init() {
	previewCmd.Flags().BoolVar(&previewRaw, "raw", false, "Print the block without terminal styling")
	previewCmd.Flags().BoolVar(&previewCheck, "check", false, "Verify the block parses back before printing")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file or directory")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config")
	prefsCmd.AddCommand(prefsSetCmd)
}

func printPreferences(p *cache.Preferences) {
	if p == nil {
		return
	}
	onOff := func(b bool) string {
		if b {
			return successStyle.Render("on")
		}
		return infoStyle.Render("off")
	}
	printField(os.Stdout, cache.KeyAutoSubmit, onOff(p.AutoSubmit))
	printField(os.Stdout, cache.KeyTempChat, onOff(p.TempChat))
	printField(os.Stdout, cache.KeyExtractCharts, onOff(p.ExtractCharts))
}
