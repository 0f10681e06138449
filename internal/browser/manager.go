// Package browser drives Chrome through rod. It connects to a running
// instance or launches one, tracks the pages it opens, and adapts those pages
// to the extraction and delivery interfaces.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"stockbrief/internal/config"
	"stockbrief/internal/deliver"
	"stockbrief/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// Session statuses.
const (
	StatusActive   = "active"
	StatusAttached = "attached"
	StatusClosed   = "closed"
	StatusDetached = "detached"
)

// ErrNoMatchingPage is returned by Attach when no open tab matches.
var ErrNoMatchingPage = errors.New("no open tab matches")

// Session describes the public metadata for a tracked page.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	Incognito  bool      `json:"incognito,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type sessionRecord struct {
	meta Session
	page *rod.Page
}

// Manager owns the Chrome connection and the pages opened through it.
type Manager struct {
	cfg        config.BrowserConfig
	mu         sync.RWMutex
	browser    *rod.Browser
	launched   bool
	sessions   map[string]*sessionRecord
	controlURL string
}

// NewManager creates a manager. Nothing is started until first use.
func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one. The debugger
// URL from config wins, then the control file left by a previous launch.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("Stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.sessions = make(map[string]*sessionRecord)
	}

	if err := m.loadSessionsLocked(); err != nil {
		logging.BrowserWarn("Ignoring unreadable session store %s: %v", m.cfg.SessionStore, err)
	}

	for _, candidate := range []string{m.cfg.DebuggerURL, m.readControlFile()} {
		if candidate == "" {
			continue
		}
		b := rod.New().ControlURL(candidate)
		if err := b.Connect(); err != nil {
			if candidate == m.cfg.DebuggerURL {
				return fmt.Errorf("connect to chrome at %s: %w", candidate, err)
			}
			logging.BrowserDebug("Control file endpoint %s unreachable: %v", candidate, err)
			continue
		}
		m.browser = b
		m.controlURL = candidate
		logging.Browser("Connected to running chrome at %s", candidate)
		return nil
	}

	controlURL, err := m.launch()
	if err != nil {
		return err
	}

	// The connection outlives the starting call; per-call contexts are
	// applied to pages instead.
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	m.browser = b
	m.controlURL = controlURL
	m.launched = true
	m.writeControlFile(controlURL)
	logging.Browser("Launched chrome (headless=%v) at %s", m.cfg.Headless, controlURL)
	return nil
}

// launch starts Chrome from the configured command line, falling back to
// rod's managed binary.
func (m *Manager) launch() (string, error) {
	if len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		l := launcher.New().Bin(bin).Headless(m.cfg.Headless)
		for _, rawFlag := range m.cfg.Launch[1:] {
			name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		u, err := l.Launch()
		if err == nil {
			return u, nil
		}
		alt, altErr := launcher.New().Bin(bin).Headless(m.cfg.Headless).Launch()
		if altErr != nil {
			return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
		}
		return alt, nil
	}

	u, err := launcher.New().Headless(m.cfg.Headless).Launch()
	if err != nil {
		return "", fmt.Errorf("no debugger_url and failed to launch: %w", err)
	}
	return u, nil
}

func (m *Manager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	started := m.browser != nil
	m.mu.RUnlock()
	if started {
		return nil
	}
	return m.Start(ctx)
}

// ControlURL returns the DevTools WebSocket URL.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected reports whether a browser is attached.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes the pages opened by this manager. Chrome itself is only
// closed when this manager launched it.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, rec := range m.sessions {
		if rec.page != nil && rec.meta.Status == StatusActive {
			_ = rec.page.Close()
			rec.meta.Status = StatusClosed
		}
		rec.page = nil
	}

	var err error
	if m.browser != nil && m.launched {
		err = m.browser.Close()
		m.removeControlFile()
	}
	m.browser = nil
	m.launched = false
	m.controlURL = ""
	m.mu.Unlock()

	if perr := m.persistSessions(); perr != nil {
		logging.BrowserWarn("Failed to persist sessions: %v", perr)
	}
	return err
}

// Launched reports whether this manager started the Chrome it is using.
func (m *Manager) Launched() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.launched
}

// LoadSessions reads the session store without connecting to Chrome.
func (m *Manager) LoadSessions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadSessionsLocked()
}

// List returns metadata for all known sessions, oldest first.
func (m *Manager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, rec.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// OpenPage opens url in a new tab, in a fresh incognito context when asked,
// and waits for it to load.
func (m *Manager) OpenPage(ctx context.Context, url string, incognito bool) (*Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, errors.New("browser not connected")
	}

	if incognito {
		inc, err := b.Incognito()
		if err != nil {
			return nil, fmt.Errorf("incognito context: %w", err)
		}
		b = inc
	}

	rp, err := b.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if m.cfg.ViewportWidth > 0 && m.cfg.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             m.cfg.ViewportWidth,
			Height:            m.cfg.ViewportHeight,
			DeviceScaleFactor: 1.0,
		}).Call(rp); err != nil {
			logging.BrowserWarn("Failed to set viewport: %v", err)
		}
	}

	if err := rp.Context(ctx).Timeout(m.cfg.GetNavigationTimeout()).WaitLoad(); err != nil {
		logging.BrowserWarn("Page %s did not finish loading: %v", url, err)
	}

	return m.track(rp, url, StatusActive, incognito), nil
}

// Attach binds to an already open tab whose URL matches pattern, so the
// tab the user is looking at can be read without reloading it.
func (m *Manager) Attach(ctx context.Context, pattern *regexp.Regexp) (*Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, errors.New("browser not connected")
	}

	pages, err := b.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	for _, rp := range pages {
		info, err := rp.Info()
		if err != nil || !pattern.MatchString(info.URL) {
			continue
		}
		logging.BrowserDebug("Attaching to open tab %s", info.URL)
		return m.track(rp, info.URL, StatusAttached, false), nil
	}
	return nil, fmt.Errorf("%w %s", ErrNoMatchingPage, pattern)
}

// Open implements deliver.Opener. The destination opens in the default
// context so the user's chat login is reused.
func (m *Manager) Open(ctx context.Context, url string) (deliver.Surface, error) {
	return m.OpenPage(ctx, url, false)
}

// GetSession returns session metadata.
func (m *Manager) GetSession(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

func (m *Manager) track(rp *rod.Page, url, status string, incognito bool) *Page {
	now := time.Now()
	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(rp.TargetID),
		URL:        url,
		Status:     status,
		Incognito:  incognito,
		CreatedAt:  now,
		LastActive: now,
	}

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: rp}
	m.mu.Unlock()

	if err := m.persistSessions(); err != nil {
		logging.BrowserWarn("Failed to persist sessions: %v", err)
	}
	logging.Browser("Session %s %s %s", meta.ID, status, url)
	return &Page{id: meta.ID, url: url, page: rp, mgr: m}
}

// touch records activity on a session, optionally updating its URL.
func (m *Manager) touch(id, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return
	}
	rec.meta.LastActive = time.Now()
	if url != "" {
		rec.meta.URL = url
	}
}

func (m *Manager) closed(id string) {
	m.mu.Lock()
	if rec, ok := m.sessions[id]; ok {
		rec.meta.Status = StatusClosed
		rec.page = nil
	}
	m.mu.Unlock()
	if err := m.persistSessions(); err != nil {
		logging.BrowserWarn("Failed to persist sessions: %v", err)
	}
}

func (m *Manager) persistSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	m.mu.RLock()
	sessions := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		sessions = append(sessions, rec.meta)
	}
	m.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.SessionStore), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.cfg.SessionStore, data, 0o644)
}

// loadSessionsLocked loads persisted metadata. Caller must hold lock.
func (m *Manager) loadSessionsLocked() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	data, err := os.ReadFile(m.cfg.SessionStore)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return err
	}
	for _, s := range sessions {
		if _, live := m.sessions[s.ID]; live {
			continue
		}
		if s.Status != StatusClosed {
			s.Status = StatusDetached
		}
		m.sessions[s.ID] = &sessionRecord{meta: s}
	}
	return nil
}

func (m *Manager) readControlFile() string {
	if m.cfg.ControlFile == "" {
		return ""
	}
	data, err := os.ReadFile(m.cfg.ControlFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (m *Manager) writeControlFile(u string) {
	if m.cfg.ControlFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.ControlFile), 0o755); err != nil {
		logging.BrowserWarn("Failed to create control file directory: %v", err)
		return
	}
	if err := os.WriteFile(m.cfg.ControlFile, []byte(u+"\n"), 0o644); err != nil {
		logging.BrowserWarn("Failed to write control file: %v", err)
	}
}

func (m *Manager) removeControlFile() {
	if m.cfg.ControlFile == "" {
		return
	}
	if err := os.Remove(m.cfg.ControlFile); err != nil && !os.IsNotExist(err) {
		logging.BrowserWarn("Failed to remove control file: %v", err)
	}
}
