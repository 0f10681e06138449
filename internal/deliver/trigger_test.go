package deliver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"stockbrief/internal/cache"
	"stockbrief/internal/config"
	"stockbrief/internal/stock"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose stats worker starts at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// fakeSurface records what the trigger did to the destination page.
type fakeSurface struct {
	inputReady  bool
	submitUsing string
	submitErr   error
	enterErr    error

	fillErr     error

	waited    bool
	filled    string
	fillCount int
	submitted bool
	entered   bool
	cleaned   bool
}

func (f *fakeSurface) WaitForInput(ctx context.Context, selectors []string) (string, error) {
	f.waited = true
	if f.inputReady {
		return selectors[0], nil
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func (f *fakeSurface) Fill(ctx context.Context, selector, text string) error {
	f.fillCount++
	if f.fillErr != nil {
		return f.fillErr
	}
	f.filled = text
	return nil
}

func (f *fakeSurface) Submit(ctx context.Context, selectors []string) (string, error) {
	f.submitted = true
	return f.submitUsing, f.submitErr
}

func (f *fakeSurface) PressEnter(ctx context.Context, selector string) error {
	f.entered = true
	return f.enterErr
}

func (f *fakeSurface) CleanupURL(ctx context.Context) error {
	f.cleaned = true
	return nil
}

type fakeOpener struct {
	surface *fakeSurface
	opened  []string
	err     error
}

func (o *fakeOpener) Open(ctx context.Context, url string) (Surface, error) {
	o.opened = append(o.opened, url)
	if o.err != nil {
		return nil, o.err
	}
	return o.surface, nil
}

func testConfig() config.DeliverConfig {
	cfg := config.DefaultConfig().Deliver
	cfg.InputTimeout = "50ms"
	cfg.FillSettle = "1ms"
	cfg.SubmitSettle = "1ms"
	return cfg
}

func pendingBridge(t *testing.T, requested bool) *cache.Bridge {
	t.Helper()
	b := cache.NewBridge(cache.NewMemoryStore())
	rec := stock.New("https://groww.in/stocks/acme", time.Now())
	rec.StockName = "Acme Corp"
	rec.CurrentPrice = "₹1,234.50"
	require.NoError(t, b.StoreRecord(context.Background(), rec, requested))
	return b
}

func flagSet(t *testing.T, b *cache.Bridge) bool {
	t.Helper()
	p, err := b.LoadPending(context.Background())
	require.NoError(t, err)
	return p != nil && p.Requested
}

func TestDestinationURL(t *testing.T) {
	u, err := DestinationURL("https://chatgpt.com/", false)
	require.NoError(t, err)
	assert.Equal(t, "https://chatgpt.com/?groww_analysis=true", u)

	u, err = DestinationURL("https://chatgpt.com/", true)
	require.NoError(t, err)
	assert.Equal(t, "https://chatgpt.com/?groww_analysis=true&temporary-chat=true", u)

	assert.Equal(t, "https://chatgpt.com/c/1", CleanURL("https://chatgpt.com/c/1?groww_analysis=true#x"))
}

func TestDeliver_Submitted(t *testing.T) {
	b := pendingBridge(t, true)
	surface := &fakeSurface{inputReady: true, submitUsing: DefaultSubmitSelectors[0]}
	opener := &fakeOpener{surface: surface}

	out, err := NewTrigger(opener, b, testConfig()).Deliver(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateSubmitted, out.State)
	assert.Equal(t, []State{StateIdle, StateArmed, StateWaitingForInput, StateFilled, StateSubmitted}, out.Transitions)
	assert.Equal(t, []string{"https://chatgpt.com/?groww_analysis=true"}, opener.opened)
	assert.Equal(t, DefaultInputSelectors[0], out.InputSelector)
	assert.Equal(t, DefaultSubmitSelectors[0], out.SubmitSelector)
	assert.Equal(t, "Acme Corp", out.Stock)

	assert.True(t, strings.HasPrefix(surface.filled, "You are an AI equity analyst."))
	assert.Contains(t, surface.filled, "stockName: Acme Corp")
	assert.Equal(t, len(surface.filled), out.PromptLength)
	assert.False(t, surface.entered)
	assert.True(t, surface.cleaned)
	assert.False(t, flagSet(t, b), "flag cleared after fill")
}

func TestDeliver_TempChatFlag(t *testing.T) {
	b := pendingBridge(t, true)
	require.NoError(t, b.SetPreference(context.Background(), cache.KeyTempChat, true))
	opener := &fakeOpener{surface: &fakeSurface{inputReady: true, submitUsing: "button"}}

	_, err := NewTrigger(opener, b, testConfig()).Deliver(context.Background())
	require.NoError(t, err)
	assert.Contains(t, opener.opened[0], "temporary-chat=true")
}

func TestDeliver_TimeoutPerformsNoFill(t *testing.T) {
	b := pendingBridge(t, true)
	surface := &fakeSurface{inputReady: false}

	out, err := NewTrigger(&fakeOpener{surface: surface}, b, testConfig()).Deliver(context.Background())
	require.ErrorIs(t, err, ErrDeliveryTimeout)

	assert.Equal(t, StateFailed, out.State)
	assert.True(t, surface.waited)
	assert.Zero(t, surface.fillCount)
	assert.False(t, surface.submitted)
	assert.False(t, flagSet(t, b), "no armed state left behind")
}

func TestDeliver_FillErrorClearsFlag(t *testing.T) {
	b := pendingBridge(t, true)
	surface := &fakeSurface{inputReady: true, fillErr: errors.New("editor detached")}

	out, err := NewTrigger(&fakeOpener{surface: surface}, b, testConfig()).Deliver(context.Background())
	require.Error(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.False(t, surface.submitted)
	assert.False(t, flagSet(t, b), "no armed state left behind")
}

func TestDeliver_CancelledSettleFails(t *testing.T) {
	b := pendingBridge(t, true)
	surface := &fakeSurface{inputReady: true, submitUsing: "button"}
	trig := NewTrigger(&fakeOpener{surface: surface}, b, testConfig())
	trig.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	out, err := trig.Deliver(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []State{StateIdle, StateArmed, StateWaitingForInput, StateFilled, StateFailed}, out.Transitions)
	assert.False(t, surface.submitted)
	assert.False(t, flagSet(t, b))
}

func TestDeliver_EnterFallback(t *testing.T) {
	b := pendingBridge(t, true)
	surface := &fakeSurface{inputReady: true, submitErr: errors.New("detached")}

	out, err := NewTrigger(&fakeOpener{surface: surface}, b, testConfig()).Deliver(context.Background())
	require.NoError(t, err)

	assert.True(t, surface.submitted)
	assert.True(t, surface.entered)
	assert.Equal(t, StateSubmitted, out.State)
	assert.Equal(t, EnterSelector, out.SubmitSelector)
	assert.NoError(t, out.SubmitErr)
}

func TestDeliver_SubmitFailureIsNotFatal(t *testing.T) {
	b := pendingBridge(t, true)
	surface := &fakeSurface{inputReady: true, enterErr: errors.New("input gone")}

	out, err := NewTrigger(&fakeOpener{surface: surface}, b, testConfig()).Deliver(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateFilled, out.State)
	assert.ErrorIs(t, out.SubmitErr, ErrSubmitFailed)
	assert.Equal(t, 1, surface.fillCount, "payload stays filled")
	assert.False(t, flagSet(t, b))
}

func TestDeliver_GaveUpReview(t *testing.T) {
	b := pendingBridge(t, true)
	require.NoError(t, b.SetPreference(context.Background(), cache.KeyAutoSubmit, false))
	surface := &fakeSurface{inputReady: true, submitUsing: "button"}

	out, err := NewTrigger(&fakeOpener{surface: surface}, b, testConfig()).Deliver(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateGaveUpReview, out.State)
	assert.False(t, surface.submitted)
	assert.False(t, surface.entered)
	assert.Equal(t, 1, surface.fillCount)
}

func TestDeliver_NothingPending(t *testing.T) {
	b := pendingBridge(t, false)
	surface := &fakeSurface{inputReady: true}

	out, err := NewTrigger(&fakeOpener{surface: surface}, b, testConfig()).Deliver(context.Background())
	require.ErrorIs(t, err, ErrNothingPending)
	assert.Equal(t, StateFailed, out.State)
	assert.False(t, surface.waited)
	assert.Zero(t, surface.fillCount)
}

func TestDeliver_OpenFailure(t *testing.T) {
	b := pendingBridge(t, true)
	out, err := NewTrigger(&fakeOpener{err: errors.New("no browser")}, b, testConfig()).Deliver(context.Background())
	require.Error(t, err)
	assert.Equal(t, []State{StateIdle, StateFailed}, out.Transitions)
	assert.True(t, flagSet(t, b), "flag untouched when nothing was opened")
}

func TestDeliver_CustomPreprompt(t *testing.T) {
	b := pendingBridge(t, true)
	cfg := testConfig()
	cfg.Preprompt = "Summarize in three bullets:"
	surface := &fakeSurface{inputReady: true, submitUsing: "button"}

	_, err := NewTrigger(&fakeOpener{surface: surface}, b, cfg).Deliver(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(surface.filled, "Summarize in three bullets:\n\n```yaml\n"))
}

func TestGeminiDeliverer(t *testing.T) {
	b := pendingBridge(t, true)
	var sent string
	g := &GeminiDeliverer{
		bridge:  b,
		model:   "test-model",
		timeout: time.Second,
		generate: func(ctx context.Context, prompt string) (string, error) {
			sent = prompt
			return "  Acme looks fairly valued.  ", nil
		},
	}

	out, err := g.Deliver(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, out.State)
	assert.Equal(t, "Acme looks fairly valued.", out.Response)
	assert.Contains(t, sent, "stockName: Acme Corp")
	assert.False(t, flagSet(t, b))

	_, err = g.Deliver(context.Background())
	assert.ErrorIs(t, err, ErrNothingPending)
}

func TestGeminiDeliverer_Error(t *testing.T) {
	b := pendingBridge(t, true)
	g := &GeminiDeliverer{
		bridge:  b,
		timeout: time.Second,
		generate: func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("quota exceeded")
		},
	}
	out, err := g.Deliver(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, out.State)
}

func TestNewGeminiDelivererRequiresKey(t *testing.T) {
	_, err := NewGeminiDeliverer(context.Background(), config.GeminiConfig{}, "", pendingBridge(t, true))
	assert.Error(t, err)
}
