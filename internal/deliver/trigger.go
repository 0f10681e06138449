package deliver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockbrief/internal/cache"
	"stockbrief/internal/config"
	"stockbrief/internal/logging"
	"stockbrief/internal/render"
)

// State is a step of the delivery state machine.
type State string

const (
	StateIdle            State = "idle"
	StateArmed           State = "armed"
	StateWaitingForInput State = "waiting_for_input"
	StateFilled          State = "filled"
	StateSubmitted       State = "submitted"
	StateGaveUpReview    State = "gave_up_review"
	StateFailed          State = "failed"
)

// Outcome reports how a delivery ended.
type Outcome struct {
	State          State    `json:"state"`
	URL            string   `json:"url,omitempty"`
	InputSelector  string   `json:"inputSelector,omitempty"`
	SubmitSelector string   `json:"submitSelector,omitempty"`
	PromptLength   int      `json:"promptLength"`
	Response       string   `json:"response,omitempty"`
	SubmitErr      error    `json:"-"`
	Transitions    []State  `json:"transitions"`
	Stock          string   `json:"stock,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

func (o *Outcome) to(s State, log *logging.RequestLogger) {
	log.Info("delivery %s -> %s", o.State, s)
	o.State = s
	o.Transitions = append(o.Transitions, s)
}

func (o *Outcome) reached(s State) bool {
	for _, seen := range o.Transitions {
		if seen == s {
			return true
		}
	}
	return false
}

// Deliverer hands the pending record to an assistant.
type Deliverer interface {
	Deliver(ctx context.Context) (*Outcome, error)
}

// Trigger delivers through a browser-opened chat page.
type Trigger struct {
	opener  Opener
	bridge  *cache.Bridge
	cfg     config.DeliverConfig
	inputs  []string
	submits []string
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewTrigger creates a browser delivery trigger.
func NewTrigger(opener Opener, bridge *cache.Bridge, cfg config.DeliverConfig) *Trigger {
	return &Trigger{
		opener:  opener,
		bridge:  bridge,
		cfg:     cfg,
		inputs:  DefaultInputSelectors,
		submits: DefaultSubmitSelectors,
		sleep:   sleep,
	}
}

// Deliver runs one cycle: open the destination, wait for its input, fill
// in the prompt for the pending record and, when auto-submit is on, send
// it. A timeout leaves the page untouched and clears the analysis flag.
// A failed submit is recorded on the Outcome and is not an error.
func (t *Trigger) Deliver(ctx context.Context) (*Outcome, error) {
	log := logging.WithRequestID(logging.CategoryDeliver, uuid.NewString())
	out := &Outcome{State: StateIdle, Transitions: []State{StateIdle}}

	prefs, err := t.bridge.Preferences(ctx)
	if err != nil {
		return t.fail(out, log, err)
	}
	dest, err := DestinationURL(t.cfg.Destination, prefs.TempChat)
	if err != nil {
		return t.fail(out, log, fmt.Errorf("invalid destination: %w", err))
	}
	out.URL = dest

	surface, err := t.opener.Open(ctx, dest)
	if err != nil {
		return t.fail(out, log, fmt.Errorf("failed to open destination: %w", err))
	}
	out.to(StateArmed, log)

	pending, err := t.bridge.LoadPending(ctx)
	if err != nil {
		return t.fail(out, log, err)
	}
	if pending == nil || !pending.Requested {
		log.Info("no analysis request pending, leaving destination alone")
		return t.fail(out, log, ErrNothingPending)
	}
	out.Stock = pending.Record.StockName
	log.WithField("stock", out.Stock)

	out.to(StateWaitingForInput, log)
	waitCtx, cancel := context.WithTimeout(ctx, t.cfg.GetInputTimeout())
	selector, err := surface.WaitForInput(waitCtx, t.inputs)
	cancel()
	if err != nil {
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDeliveryTimeout)) {
			err = ErrDeliveryTimeout
		}
		return t.fail(out, log, err)
	}
	out.InputSelector = selector
	log.Debug("input found: %s", selector)

	prompt := render.AnalysisPrompt(pending.Record, t.cfg.Preprompt)
	out.PromptLength = len(prompt)
	if err := surface.Fill(ctx, selector, prompt); err != nil {
		return t.fail(out, log, fmt.Errorf("failed to fill prompt: %w", err))
	}
	out.to(StateFilled, log)

	if err := t.sleep(ctx, t.cfg.GetFillSettle()); err != nil {
		return t.fail(out, log, err)
	}

	// Re-read so a toggle flipped while the page loaded still applies.
	if prefs, err = t.bridge.Preferences(ctx); err != nil {
		out.Warnings = append(out.Warnings, err.Error())
	}
	if prefs.AutoSubmit {
		t.submit(ctx, surface, out, log)
	} else {
		out.to(StateGaveUpReview, log)
	}

	if err := t.bridge.MarkDelivered(ctx); err != nil {
		out.Warnings = append(out.Warnings, err.Error())
		log.Warn("failed to clear analysis flag: %v", err)
	}
	if err := surface.CleanupURL(ctx); err != nil {
		log.Debug("could not clean destination URL: %v", err)
	}
	return out, nil
}

func (t *Trigger) submit(ctx context.Context, surface Surface, out *Outcome, log *logging.RequestLogger) {
	if err := t.sleep(ctx, t.cfg.GetSubmitSettle()); err != nil {
		out.SubmitErr = err
		return
	}

	used, err := surface.Submit(ctx, t.submits)
	if err != nil {
		log.Debug("submit controls failed: %v", err)
	}
	if used == "" {
		log.Debug("no usable submit control, pressing Enter")
		if err := surface.PressEnter(ctx, out.InputSelector); err != nil {
			out.SubmitErr = fmt.Errorf("%w: %v", ErrSubmitFailed, err)
			log.Warn("submit failed: %v", err)
			return
		}
		used = EnterSelector
	}
	out.SubmitSelector = used
	out.to(StateSubmitted, log)
}

// fail ends the cycle. Once a pending request was picked up its analysis
// flag is cleared, so no armed state outlives a failed delivery.
func (t *Trigger) fail(out *Outcome, log *logging.RequestLogger, err error) (*Outcome, error) {
	log.Error("delivery failed in %s: %v", out.State, err)
	if out.reached(StateWaitingForInput) {
		// The caller's ctx may be the reason for failing.
		clearCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if clearErr := t.bridge.MarkDelivered(clearCtx); clearErr != nil {
			log.Warn("failed to clear analysis flag: %v", clearErr)
		}
		cancel()
	}
	out.to(StateFailed, log)
	return out, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
