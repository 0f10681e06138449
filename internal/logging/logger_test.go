package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetState() {
	CloseAll()
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	logLevel = LevelDebug
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, ".stockbrief")
	require.NoError(t, os.MkdirAll(cfgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(content), 0644))
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
`)
	require.NoError(t, Initialize(tempDir))
	require.True(t, IsDebugMode())

	for _, cat := range AllCategories {
		assert.True(t, IsCategoryEnabled(cat), "category %s", cat)
		logger := Get(cat)
		logger.Info("info for %s", cat)
		logger.Debug("debug for %s", cat)
	}
	Extract("convenience extract")
	Deliver("convenience deliver")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".stockbrief", "logs"))
	require.NoError(t, err)

	for _, cat := range AllCategories {
		found := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(tempDir, ".stockbrief", "logs", entry.Name()))
				require.NoError(t, err)
				assert.NotEmpty(t, content, "log file for %s", cat)
			}
		}
		assert.True(t, found, "no log file for %s", cat)
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: false
`)
	require.NoError(t, Initialize(tempDir))
	assert.False(t, IsDebugMode())

	Get(CategoryExtract).Info("should not be written")
	_, err := os.Stat(filepath.Join(tempDir, ".stockbrief", "logs"))
	assert.True(t, os.IsNotExist(err))
}

func TestCategoryFilter(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  categories:
    cache: false
`)
	require.NoError(t, Initialize(tempDir))
	assert.False(t, IsCategoryEnabled(CategoryCache))
	assert.True(t, IsCategoryEnabled(CategoryExtract))
}

func TestRequestLoggerJSON(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: info
  json_format: true
`)
	require.NoError(t, Initialize(tempDir))

	WithRequestID(CategoryAction, "req-42").WithField("url", "https://groww.in/stocks/acme").Info("extract started")
	Get(CategoryAction).Debug("filtered by level")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".stockbrief", "logs"))
	require.NoError(t, err)

	var actionLog string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_action.log") {
			data, err := os.ReadFile(filepath.Join(tempDir, ".stockbrief", "logs", e.Name()))
			require.NoError(t, err)
			actionLog = string(data)
		}
	}
	require.NotEmpty(t, actionLog)
	assert.NotContains(t, actionLog, "filtered by level")

	line := actionLog[strings.Index(actionLog, "{"):]
	line = strings.TrimSpace(strings.SplitN(line, "\n", 2)[0])
	var entry StructuredLogEntry
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "req-42", entry.RequestID)
	assert.Equal(t, "action", entry.Category)
	assert.Equal(t, "extract started", entry.Message)
}

func TestNoopLoggerWithoutInitialize(t *testing.T) {
	resetState()
	l := Get(CategoryBrowser)
	assert.NotPanics(t, func() {
		l.Info("nothing")
		StartTimer(CategoryBrowser, "op").Stop()
	})
}
