package action

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"stockbrief/internal/browser"
	"stockbrief/internal/cache"
	"stockbrief/internal/config"
	"stockbrief/internal/deliver"
	"stockbrief/internal/extract"
	"stockbrief/internal/logging"
	"stockbrief/internal/render"
	"stockbrief/internal/stock"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ErrNotStockPage is returned for URLs outside the stock page pattern.
var ErrNotStockPage = errors.New("not a stock detail page")

// Source is a readable page that must be released after use.
type Source interface {
	extract.PageSource
	Close() error
}

// Pages acquires the page to read for a URL.
type Pages interface {
	Acquire(ctx context.Context, url string) (Source, error)
}

// BrowserPages reads from the user's open tab when one shows the URL and
// opens a new tab otherwise.
type BrowserPages struct {
	Manager *browser.Manager
}

// Acquire implements Pages.
func (b BrowserPages) Acquire(ctx context.Context, url string) (Source, error) {
	page, err := b.Manager.Attach(ctx, regexp.MustCompile(`^`+regexp.QuoteMeta(url)))
	if err == nil {
		return page, nil
	}
	if !errors.Is(err, browser.ErrNoMatchingPage) {
		return nil, err
	}
	opened, err := b.Manager.OpenPage(ctx, url, false)
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// Service runs user actions.
type Service struct {
	cfg       *config.Config
	bridge    *cache.Bridge
	extractor *extract.Extractor
	pages     Pages
	deliverer deliver.Deliverer
	stockPage *regexp.Regexp
	flight    singleflight.Group
	now       func() time.Time
}

// New creates a service. pages and deliverer may be nil for callers that
// only read the cache.
func New(cfg *config.Config, bridge *cache.Bridge, pages Pages, deliverer deliver.Deliverer) (*Service, error) {
	re, err := regexp.Compile(cfg.Extract.StockPagePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid stock page pattern: %w", err)
	}
	return &Service{
		cfg:       cfg,
		bridge:    bridge,
		extractor: extract.New(cfg.Extract),
		pages:     pages,
		deliverer: deliverer,
		stockPage: re,
		now:       time.Now,
	}, nil
}

// NewDeliverer picks the delivery path configured by deliver.mode.
func NewDeliverer(ctx context.Context, cfg *config.Config, bridge *cache.Bridge, opener deliver.Opener) (deliver.Deliverer, error) {
	switch cfg.Deliver.Mode {
	case "gemini":
		return deliver.NewGeminiDeliverer(ctx, cfg.Gemini, cfg.Deliver.Preprompt, bridge)
	case "browser", "":
		if opener == nil {
			return nil, errors.New("browser delivery needs a browser")
		}
		return deliver.NewTrigger(opener, bridge, cfg.Deliver), nil
	}
	return nil, fmt.Errorf("invalid deliver mode: %s", cfg.Deliver.Mode)
}

// IsStockPage reports whether url is a stock detail page.
func (s *Service) IsStockPage(url string) bool {
	return s.stockPage.MatchString(url)
}

// Extract reads the stock page at url and caches the record without
// requesting analysis.
func (s *Service) Extract(ctx context.Context, url string) (st Status) {
	defer recoverStatus(&st)
	if st, ok := s.guard(url); !ok {
		return st
	}
	rec, st, ok := s.extractURL(ctx, url, false)
	if !ok {
		return st
	}
	st = success(fmt.Sprintf("Data extracted for %s", rec.StockName))
	st.Record = rec
	return st
}

// ExtractSource runs the same pipeline over an already captured page.
func (s *Service) ExtractSource(ctx context.Context, src extract.PageSource) (st Status) {
	defer recoverStatus(&st)
	rec, st, ok := s.extractAndStore(ctx, src, false)
	if !ok {
		return st
	}
	st = success(fmt.Sprintf("Data extracted for %s", rec.StockName))
	st.Record = rec
	return st
}

// Analyze extracts the page at url, caches the record with the analysis
// flag set and hands it to the deliverer.
func (s *Service) Analyze(ctx context.Context, url string) (st Status) {
	defer recoverStatus(&st)
	if st, ok := s.guard(url); !ok {
		return st
	}
	if s.deliverer == nil {
		return failure("No delivery path configured", errors.New("no deliverer"))
	}
	rec, st, ok := s.extractURL(ctx, url, true)
	if !ok {
		return st
	}

	st = s.deliver(ctx)
	st.Record = rec
	return st
}

// DeliverPending delivers the cached record when analysis was requested.
func (s *Service) DeliverPending(ctx context.Context) (st Status) {
	defer recoverStatus(&st)
	if s.deliverer == nil {
		return failure("No delivery path configured", errors.New("no deliverer"))
	}
	return s.deliver(ctx)
}

// Preview renders the cached record as the block the assistant receives.
func (s *Service) Preview(ctx context.Context) (st Status) {
	defer recoverStatus(&st)
	pending, err := s.bridge.LoadPending(ctx)
	if err != nil {
		return failure("Failed to read stored data", err)
	}
	if pending == nil {
		return info("No stored data. Extract a stock page first.")
	}
	st = success(fmt.Sprintf("Preview of %s", pending.Record.StockName))
	st.Record = pending.Record
	st.Preview = render.Render(render.Record(pending.Record), 0)
	return st
}

// Clear removes the cached record and analysis flag.
func (s *Service) Clear(ctx context.Context) (st Status) {
	defer recoverStatus(&st)
	if err := s.bridge.ClearPending(ctx); err != nil {
		return failure("Failed to clear stored data", err)
	}
	logging.Action("Cleared stored data")
	return success("Stored data cleared")
}

// Stored returns the cached record.
func (s *Service) Stored(ctx context.Context) (st Status) {
	defer recoverStatus(&st)
	pending, err := s.bridge.LoadPending(ctx)
	if err != nil {
		return failure("Failed to read stored data", err)
	}
	if pending == nil {
		return info("No stored data")
	}
	msg := fmt.Sprintf("Stored data for %s", pending.Record.StockName)
	if !pending.ExtractedAt.IsZero() {
		msg += fmt.Sprintf(" (extracted %s)", pending.ExtractedAt.Format("2006-01-02 15:04:05"))
	}
	st = success(msg)
	st.Record = pending.Record
	return st
}

// BasicInfo returns the quick look for the page at url.
func (s *Service) BasicInfo(ctx context.Context, url string) (st Status) {
	defer recoverStatus(&st)
	if st, ok := s.guard(url); !ok {
		return st
	}
	if s.pages == nil {
		return failure("No browser available", errors.New("no page source"))
	}
	src, err := s.pages.Acquire(ctx, url)
	if err != nil {
		return failure("Failed to open the stock page", err)
	}
	defer closeSource(src)

	bi, err := s.extractor.BasicInfo(ctx, src)
	if err != nil {
		return failure("Failed to read stock info", err)
	}
	st = success(fmt.Sprintf("%s %s %s", bi.Name, bi.Price, bi.Change))
	st.Info = &bi
	st.Cached = s.autoCache(ctx, src)
	return st
}

// autoCache re-extracts and stores the page when the stored record is older
// than the configured interval. The analysis flag is left as it is and
// failures only log, so a quick look never disturbs a pending request.
func (s *Service) autoCache(ctx context.Context, src extract.PageSource) bool {
	interval := s.cfg.Extract.GetAutoCacheInterval()
	if interval <= 0 {
		return false
	}
	last, err := s.bridge.LastExtracted(ctx)
	if err != nil {
		logging.ActionError("Auto-cache skipped: %v", err)
		return false
	}
	if !last.IsZero() && s.now().Sub(last) <= interval {
		return false
	}

	rec, err := s.extractor.Extract(ctx, src, extract.Options{RequestID: uuid.NewString()})
	if err != nil {
		logging.Action("Auto-cache of %s failed: %v", src.URL(), err)
		return false
	}
	if err := s.bridge.StoreRecord(ctx, rec, false); err != nil {
		logging.ActionError("Auto-cache of %s not stored: %v", src.URL(), err)
		return false
	}
	logging.Action("Auto-cached %s", rec.StockName)
	return true
}

// Preferences returns the current toggles.
func (s *Service) Preferences(ctx context.Context) (st Status) {
	defer recoverStatus(&st)
	prefs, err := s.bridge.Preferences(ctx)
	if err != nil {
		return failure("Failed to read preferences", err)
	}
	st = success("Preferences")
	st.Preferences = &prefs
	return st
}

// SetPreference persists one toggle and describes its effect.
func (s *Service) SetPreference(ctx context.Context, key string, value bool) (st Status) {
	defer recoverStatus(&st)
	if err := s.bridge.SetPreference(ctx, key, value); err != nil {
		return failure(err.Error(), err)
	}
	st = info(preferenceMessage(key, value))
	if prefs, err := s.bridge.Preferences(ctx); err == nil {
		st.Preferences = &prefs
	}
	return st
}

func preferenceMessage(key string, on bool) string {
	switch {
	case key == cache.KeyAutoSubmit && on:
		return "Auto-submit enabled - the assistant will send the prompt"
	case key == cache.KeyAutoSubmit:
		return "Auto-submit disabled - you can review before sending"
	case key == cache.KeyTempChat && on:
		return "Temporary chat enabled - conversation won't be saved"
	case key == cache.KeyTempChat:
		return "Normal chat mode - conversation will be saved"
	case key == cache.KeyExtractCharts && on:
		return "Financial charts enabled - extraction will take a few seconds longer"
	default:
		return "Financial charts disabled - faster extraction"
	}
}

func (s *Service) guard(url string) (Status, bool) {
	if s.IsStockPage(url) {
		return Status{}, true
	}
	logging.Action("Rejected non-stock page %s", url)
	return failure("Please open a stock detail page first", fmt.Errorf("%w: %s", ErrNotStockPage, url)), false
}

func (s *Service) extractURL(ctx context.Context, url string, requested bool) (*stock.StockRecord, Status, bool) {
	if s.pages == nil {
		return nil, failure("No browser available", errors.New("no page source")), false
	}
	src, err := s.pages.Acquire(ctx, url)
	if err != nil {
		return nil, failure("Failed to open the stock page", err), false
	}
	defer closeSource(src)
	return s.extractAndStore(ctx, src, requested)
}

// extractAndStore clears the previous record, extracts and stores the new
// one. Concurrent calls for the same page share one extraction.
func (s *Service) extractAndStore(ctx context.Context, src extract.PageSource, requested bool) (*stock.StockRecord, Status, bool) {
	v, err, shared := s.flight.Do(src.URL(), func() (any, error) {
		if err := s.bridge.ClearPending(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear stored data: %w", err)
		}
		prefs, err := s.bridge.Preferences(ctx)
		if err != nil {
			return nil, err
		}
		return s.extractor.Extract(ctx, src, extract.Options{
			IncludeCharts: prefs.ExtractCharts,
			RequestID:     uuid.NewString(),
		})
	})
	if shared {
		logging.Action("Joined in-flight extraction of %s", src.URL())
	}

	var failed *stock.ExtractionFailure
	switch {
	case errors.As(err, &failed):
		logging.ActionError("Extraction of %s failed: missing %v", src.URL(), failed.Missing)
		st := failure(failed.Message, err)
		st.Missing = failed.Missing
		st.Partial = failed.Partial
		return nil, st, false
	case err != nil:
		logging.ActionError("Extraction of %s failed: %v", src.URL(), err)
		return nil, failure("Failed to extract data. Please try again.", err), false
	}

	rec := v.(*stock.StockRecord)
	if err := s.bridge.StoreRecord(ctx, rec, requested); err != nil {
		return nil, failure("Failed to store extracted data", err), false
	}
	logging.Action("Extracted %s (%s), analysis requested=%v", rec.StockName, rec.Symbol, requested)
	return rec, Status{}, true
}

func (s *Service) deliver(ctx context.Context) Status {
	out, err := s.deliverer.Deliver(ctx)
	switch {
	case errors.Is(err, deliver.ErrNothingPending):
		st := info("No analysis requested")
		st.Outcome = out
		return st
	case errors.Is(err, deliver.ErrDeliveryTimeout):
		st := failure("The chat input never appeared. Is the assistant page logged in?", err)
		st.Outcome = out
		return st
	case err != nil:
		st := failure("Failed to deliver the analysis prompt. Please try again.", err)
		st.Outcome = out
		return st
	}

	var st Status
	switch {
	case out.State == deliver.StateSubmitted && out.Response != "":
		st = success(fmt.Sprintf("Analysis of %s received", out.Stock))
	case out.State == deliver.StateSubmitted:
		st = success(fmt.Sprintf("Prompt for %s submitted", out.Stock))
	case out.State == deliver.StateGaveUpReview:
		st = success(fmt.Sprintf("Prompt for %s filled in - review before sending", out.Stock))
	case out.SubmitErr != nil:
		st = info(out.SubmitErr.Error())
		st.Err = out.SubmitErr
	default:
		st = info(fmt.Sprintf("Delivery ended in state %s", out.State))
	}
	st.Outcome = out
	return st
}

func closeSource(src Source) {
	if err := src.Close(); err != nil {
		logging.ActionError("Failed to release page %s: %v", src.URL(), err)
	}
}

func recoverStatus(st *Status) {
	if r := recover(); r != nil {
		logging.ActionError("Recovered from panic: %v", r)
		*st = failure("Unexpected error. Please try again.", fmt.Errorf("panic: %v", r))
	}
}
