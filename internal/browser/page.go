package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"stockbrief/internal/deliver"
	"stockbrief/internal/extract"
	"stockbrief/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// tabSelector lists the elements a chart tab label can live in.
const tabSelector = `[role="tab"], button, li, span, div`

// tabWait bounds the lookup of a chart tab that may not exist.
const tabWait = 3 * time.Second

// stableWindow is how long the DOM must stay quiet before a snapshot.
const stableWindow = 300 * time.Millisecond

// Page is a tracked tab. It serves as the extraction source, the chart
// driver and the delivery surface.
type Page struct {
	id   string
	url  string
	page *rod.Page
	mgr  *Manager
}

var (
	_ extract.PageSource  = (*Page)(nil)
	_ extract.ChartDriver = (*Page)(nil)
	_ deliver.Surface     = (*Page)(nil)
)

// ID returns the session id.
func (p *Page) ID() string { return p.id }

// URL returns the URL the page was opened or attached at.
func (p *Page) URL() string { return p.url }

// HTML waits for the page to settle and returns its outer HTML.
func (p *Page) HTML(ctx context.Context) (string, error) {
	stable := p.mgr.cfg.GetStablePageTimeout()
	if err := p.page.Context(ctx).Timeout(stable).WaitStable(stableWindow); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.BrowserDebug("Page %s not stable after %v, reading anyway", p.id, stable)
	}
	return p.Snapshot(ctx)
}

// Snapshot returns the current outer HTML without waiting.
func (p *Page) Snapshot(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", p.url, err)
	}
	p.mgr.touch(p.id, "")
	return html, nil
}

// ActivateTab clicks the innermost element whose whole text is label.
func (p *Page) ActivateTab(ctx context.Context, label string) error {
	tctx, cancel := context.WithTimeout(ctx, tabWait)
	defer cancel()

	pattern := `^\s*` + regexp.QuoteMeta(label) + `\s*$`
	el, err := p.page.Context(tctx).ElementR(tabSelector, pattern)
	if err != nil {
		return fmt.Errorf("chart tab %q: %w", label, err)
	}
	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click chart tab %q: %w", label, err)
	}
	logging.BrowserDebug("Activated chart tab %q on %s", label, p.id)
	return nil
}

// WaitForInput races the selectors until one matches or ctx ends. When
// several match in the same poll the earliest selector wins.
func (p *Page) WaitForInput(ctx context.Context, selectors []string) (string, error) {
	if len(selectors) == 0 {
		return "", errors.New("no input selectors")
	}

	var matched string
	race := p.page.Context(ctx).Race()
	for _, sel := range selectors {
		sel := sel
		race = race.Element(sel).Handle(func(*rod.Element) error {
			matched = sel
			return nil
		})
	}
	if _, err := race.Do(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("wait for input: %w", err)
	}
	return matched, nil
}

// fillScript sets a textarea's value, or a contenteditable's text, and
// fires the events frameworks listen for.
const fillScript = `(text) => {
	this.focus();
	if ('value' in this) {
		const proto = Object.getPrototypeOf(this);
		const setter = Object.getOwnPropertyDescriptor(proto, 'value');
		if (setter && setter.set) { setter.set.call(this, text); } else { this.value = text; }
	} else {
		this.textContent = text;
	}
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
}`

// Fill replaces the input's content with text.
func (p *Page) Fill(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	if _, err := el.Eval(fillScript, text); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	p.mgr.touch(p.id, "")
	return nil
}

// Submit clicks the first usable control. It does not wait for controls to
// appear; a page without one returns "".
func (p *Page) Submit(ctx context.Context, selectors []string) (string, error) {
	pg := p.page.Context(ctx)
	for _, sel := range selectors {
		els, err := pg.Elements(sel)
		if err != nil {
			return "", fmt.Errorf("query %s: %w", sel, err)
		}
		for _, el := range els {
			state, err := inspectControl(el)
			if err != nil {
				logging.BrowserDebug("Skipping %s: %v", sel, err)
				continue
			}
			if !state.usable() {
				logging.BrowserDebug("Skipping %s: %s", sel, state.reason())
				continue
			}
			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				return "", fmt.Errorf("click %s: %w", sel, err)
			}
			return sel, nil
		}
	}
	return "", nil
}

// PressEnter focuses the input and sends Enter.
func (p *Page) PressEnter(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	if err := el.Focus(); err != nil {
		return fmt.Errorf("focus %s: %w", selector, err)
	}
	return el.Type(input.Enter)
}

const cleanupScript = `() => {
	const u = new URL(window.location.href);
	u.searchParams.delete('` + deliver.FlagAnalysis + `');
	u.searchParams.delete('` + deliver.FlagTempChat + `');
	window.history.replaceState({}, document.title, u.pathname + u.search + u.hash);
	return window.location.href;
}`

// CleanupURL removes the delivery flags from the address bar without a
// navigation.
func (p *Page) CleanupURL(ctx context.Context) error {
	res, err := p.page.Context(ctx).Eval(cleanupScript)
	if err != nil {
		return fmt.Errorf("cleanup url: %w", err)
	}
	p.mgr.touch(p.id, res.Value.String())
	return nil
}

// Close closes a tab this manager opened. Attached tabs belong to the user
// and are only released.
func (p *Page) Close() error {
	defer p.mgr.closed(p.id)
	if meta, ok := p.mgr.GetSession(p.id); ok && meta.Status == StatusAttached {
		return nil
	}
	return p.page.Close()
}
