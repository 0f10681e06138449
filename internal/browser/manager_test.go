package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stockbrief/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBrowserConfig(t *testing.T) config.BrowserConfig {
	dir := t.TempDir()
	return config.BrowserConfig{
		SessionStore: filepath.Join(dir, "browser", "sessions.json"),
		ControlFile:  filepath.Join(dir, "browser", "control.txt"),
	}
}

func TestManager_SessionsRoundTrip(t *testing.T) {
	cfg := testBrowserConfig(t)
	m := NewManager(cfg)

	created := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	m.sessions["a"] = &sessionRecord{meta: Session{ID: "a", URL: "https://groww.in/stocks/acme", Status: StatusActive, CreatedAt: created}}
	m.sessions["b"] = &sessionRecord{meta: Session{ID: "b", URL: "https://chatgpt.com/", Status: StatusClosed, CreatedAt: created.Add(time.Minute)}}
	require.NoError(t, m.persistSessions())

	reloaded := NewManager(cfg)
	require.NoError(t, reloaded.LoadSessions())
	assert.False(t, reloaded.Launched())

	list := reloaded.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, StatusDetached, list[0].Status, "live sessions come back detached")
	assert.Equal(t, StatusClosed, list[1].Status)
}

func TestManager_LoadSessionsMissingFile(t *testing.T) {
	m := NewManager(testBrowserConfig(t))
	require.NoError(t, m.loadSessionsLocked())
	assert.Empty(t, m.List())
}

func TestManager_LoadSessionsCorrupt(t *testing.T) {
	cfg := testBrowserConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.SessionStore), 0o755))
	require.NoError(t, os.WriteFile(cfg.SessionStore, []byte("{not json"), 0o644))

	m := NewManager(cfg)
	assert.Error(t, m.loadSessionsLocked())
}

func TestManager_NoSessionStore(t *testing.T) {
	m := NewManager(config.BrowserConfig{})
	m.sessions["a"] = &sessionRecord{meta: Session{ID: "a"}}
	assert.NoError(t, m.persistSessions())
	assert.NoError(t, m.loadSessionsLocked())
}

func TestManager_ControlFile(t *testing.T) {
	cfg := testBrowserConfig(t)
	m := NewManager(cfg)

	assert.Empty(t, m.readControlFile())

	m.writeControlFile("ws://127.0.0.1:9222/devtools/browser/abc")
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", m.readControlFile())

	m.removeControlFile()
	assert.Empty(t, m.readControlFile())
	m.removeControlFile()
}

func TestManager_TouchAndClosed(t *testing.T) {
	m := NewManager(testBrowserConfig(t))
	m.sessions["a"] = &sessionRecord{meta: Session{ID: "a", URL: "https://chatgpt.com/?groww_analysis=true", Status: StatusActive}}

	m.touch("a", "https://chatgpt.com/")
	meta, ok := m.GetSession("a")
	require.True(t, ok)
	assert.Equal(t, "https://chatgpt.com/", meta.URL)
	assert.False(t, meta.LastActive.IsZero())

	m.touch("missing", "x")
	m.closed("a")
	meta, _ = m.GetSession("a")
	assert.Equal(t, StatusClosed, meta.Status)
	assert.False(t, m.IsConnected())
	assert.Empty(t, m.ControlURL())
}
