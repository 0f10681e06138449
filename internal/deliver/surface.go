// Package deliver hands a cached StockRecord to the chat assistant: it opens
// the destination, waits for its input, injects the prompt and optionally
// submits it.
package deliver

import (
	"context"
	"errors"
	"net/url"
)

// Query flags carried by the destination URL.
const (
	FlagAnalysis  = "groww_analysis"
	FlagTempChat  = "temporary-chat"
	EnterSelector = "Enter"
)

var (
	// ErrDeliveryTimeout means the destination input never appeared.
	ErrDeliveryTimeout = errors.New("timed out waiting for the chat input")
	// ErrSubmitFailed means the prompt was filled but could not be sent.
	ErrSubmitFailed = errors.New("could not submit the prompt; it is filled in for manual sending")
	// ErrNothingPending means no record is waiting for analysis.
	ErrNothingPending = errors.New("no analysis requested")
)

// DefaultInputSelectors locate the chat input, most specific first.
var DefaultInputSelectors = []string{
	`#prompt-textarea`,
	`textarea[placeholder*="Message"]`,
	`textarea[placeholder*="Send a message"]`,
	`textarea[data-id="root"]`,
	`textarea`,
	`[contenteditable="true"][role="textbox"]`,
	`div[contenteditable="true"]`,
}

// DefaultSubmitSelectors locate the send control.
var DefaultSubmitSelectors = []string{
	`button[data-testid="send-button"]`,
	`button[aria-label*="Send"]`,
	`button[type="submit"]`,
	`form button[type="button"]`,
}

// Opener opens the destination page.
type Opener interface {
	Open(ctx context.Context, url string) (Surface, error)
}

// Surface is the opened destination page.
type Surface interface {
	// WaitForInput blocks until an element matching one of the selectors
	// exists and returns the selector that matched. It honours ctx.
	WaitForInput(ctx context.Context, selectors []string) (string, error)
	// Fill replaces the input's content with text and notifies the page.
	Fill(ctx context.Context, selector, text string) error
	// Submit clicks the first enabled, visible control matching one of the
	// selectors. It returns the selector clicked, or "" when none was usable.
	Submit(ctx context.Context, selectors []string) (string, error)
	// PressEnter sends an Enter key press to the input.
	PressEnter(ctx context.Context, selector string) error
	// CleanupURL strips the query flags from the page URL.
	CleanupURL(ctx context.Context) error
}

// DestinationURL adds the analysis flag, and the temporary chat flag when
// ephemeral, to base.
func DestinationURL(base string, ephemeral bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(FlagAnalysis, "true")
	if ephemeral {
		q.Set(FlagTempChat, "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CleanURL drops the query and fragment from raw.
func CleanURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
