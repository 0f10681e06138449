package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"stockbrief/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const stockPage = `<html><body>
<h1 class="usph14Head">Acme Corp</h1>
<span class="uht141Pri">₹1,234.50</span>
</body></html>`

// setupCLI points the globals at a fresh workspace with a sqlite cache.
func setupCLI(t *testing.T) string {
	t.Helper()
	ws := t.TempDir()
	logger = zap.NewNop()
	workspace = ws
	configPath = ""
	jsonOut = false
	extractFile, extractWatch = "", false
	previewRaw, previewCheck = false, false
	exportOut = ""

	cfg = config.DefaultConfig()
	resolvePaths(cfg, ws)
	return ws
}

func writePage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "acme.html")
	require.NoError(t, os.WriteFile(path, []byte(stockPage), 0o644))
	return path
}

func TestResolvePaths(t *testing.T) {
	c := config.DefaultConfig()
	c.Browser.ControlFile = "/abs/control.txt"
	resolvePaths(c, "/ws")

	assert.Equal(t, filepath.Join("/ws", config.DirName, "cache.db"), c.Cache.Path)
	assert.Equal(t, filepath.Join("/ws", config.DirName, "browser", "sessions.json"), c.Browser.SessionStore)
	assert.Equal(t, "/abs/control.txt", c.Browser.ControlFile)
}

func TestExtract_RequiresInput(t *testing.T) {
	setupCLI(t)
	err := runExtract(&cobra.Command{}, nil)
	require.Error(t, err)

	extractWatch = true
	err = runExtract(&cobra.Command{}, []string{"https://groww.in/stocks/acme-corp"})
	assert.ErrorContains(t, err, "--watch requires --file")
}

func TestExtractFileThenInspect(t *testing.T) {
	ws := setupCLI(t)
	extractFile = writePage(t, ws)

	output := captureOutput(t, func() {
		require.NoError(t, runExtract(&cobra.Command{}, []string{"https://groww.in/stocks/acme-corp"}))
	})
	assert.Contains(t, output, "Data extracted for Acme Corp")

	output = captureOutput(t, func() {
		require.NoError(t, storedCmd.RunE(storedCmd, nil))
	})
	assert.Contains(t, output, "Stored data for Acme Corp")
	assert.Contains(t, output, "https://groww.in/stocks/acme-corp")

	previewCheck = true
	output = captureOutput(t, func() {
		require.NoError(t, previewCmd.RunE(previewCmd, nil))
	})
	assert.Contains(t, output, "stockName: Acme Corp")

	output = captureOutput(t, func() {
		require.NoError(t, clearCmd.RunE(clearCmd, nil))
	})
	assert.Contains(t, output, "Stored data cleared")

	output = captureOutput(t, func() {
		require.NoError(t, previewCmd.RunE(previewCmd, nil))
	})
	assert.Contains(t, output, "No stored data")
}

func TestExtractFile_Failure(t *testing.T) {
	ws := setupCLI(t)
	extractFile = filepath.Join(ws, "empty.html")
	require.NoError(t, os.WriteFile(extractFile, []byte("<p>nothing</p>"), 0o644))

	var err error
	output := captureOutput(t, func() {
		err = runExtract(&cobra.Command{}, []string{"https://groww.in/stocks/acme-corp"})
	})
	require.Error(t, err)
	assert.Contains(t, output, "stockName")
}

func TestExport(t *testing.T) {
	ws := setupCLI(t)
	extractFile = writePage(t, ws)
	captureOutput(t, func() {
		require.NoError(t, runExtract(&cobra.Command{}, []string{"https://groww.in/stocks/acme-corp"}))
	})

	exportOut = filepath.Join(ws, "exports")
	require.NoError(t, os.MkdirAll(exportOut, 0o755))
	output := captureOutput(t, func() {
		require.NoError(t, exportCmd.RunE(exportCmd, nil))
	})
	assert.Contains(t, output, "Exported Acme Corp")

	files, err := filepath.Glob(filepath.Join(exportOut, "*.xlsx"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestPreferences(t *testing.T) {
	setupCLI(t)

	output := captureOutput(t, func() {
		require.NoError(t, prefsSetCmd.RunE(prefsSetCmd, []string{"tempChat", "true"}))
	})
	assert.Contains(t, output, "Temporary chat enabled")

	jsonOut = true
	output = captureOutput(t, func() {
		require.NoError(t, prefsCmd.RunE(prefsCmd, nil))
	})
	assert.Contains(t, output, `"tempChat": true`)

	err := prefsSetCmd.RunE(prefsSetCmd, []string{"tempChat", "maybe"})
	assert.ErrorContains(t, err, "invalid value")

	captureOutput(t, func() {
		err = prefsSetCmd.RunE(prefsSetCmd, []string{"darkMode", "true"})
	})
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	ws := setupCLI(t)

	output := captureOutput(t, func() {
		require.NoError(t, initCmd.RunE(initCmd, nil))
	})
	assert.Contains(t, output, "Wrote")
	_, err := os.Stat(config.DefaultPath(ws))
	require.NoError(t, err)

	output = captureOutput(t, func() {
		require.NoError(t, initCmd.RunE(initCmd, nil))
	})
	assert.Contains(t, output, "already exists")
}

func TestBrowserSessions_Empty(t *testing.T) {
	setupCLI(t)
	output := captureOutput(t, func() {
		require.NoError(t, browserSessionsCmd.RunE(browserSessionsCmd, nil))
	})
	assert.Contains(t, output, "No sessions recorded")
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	defer func() {
		_ = wOut.Close()
		_ = wErr.Close()
		os.Stdout = origOut
		os.Stderr = origErr
	}()
	fn()
	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
