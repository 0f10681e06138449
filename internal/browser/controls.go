package browser

import (
	"strconv"
	"strings"

	"github.com/go-rod/rod"
)

// controlState is what the page reports about a candidate submit control.
type controlState struct {
	Display       string
	Visibility    string
	Opacity       string
	PointerEvents string
	Width         float64
	Height        float64
	Disabled      bool
	AriaDisabled  bool
	AriaHidden    bool
}

const controlScript = `() => {
	const styles = window.getComputedStyle(this);
	const rect = this.getBoundingClientRect();
	return {
		display: styles.display,
		visibility: styles.visibility,
		opacity: styles.opacity,
		pointerEvents: styles.pointerEvents,
		width: String(rect.width),
		height: String(rect.height),
		disabled: String(!!this.disabled),
		ariaDisabled: String(this.getAttribute('aria-disabled') === 'true'),
		ariaHidden: String(this.closest('[aria-hidden="true"]') !== null)
	};
}`

func inspectControl(el *rod.Element) (controlState, error) {
	res, err := el.Eval(controlScript)
	if err != nil {
		return controlState{}, err
	}

	raw := make(map[string]string)
	for k, v := range res.Value.Map() {
		raw[k] = v.String()
	}
	width, _ := strconv.ParseFloat(raw["width"], 64)
	height, _ := strconv.ParseFloat(raw["height"], 64)

	return controlState{
		Display:       raw["display"],
		Visibility:    raw["visibility"],
		Opacity:       raw["opacity"],
		PointerEvents: raw["pointerEvents"],
		Width:         width,
		Height:        height,
		Disabled:      raw["disabled"] == "true",
		AriaDisabled:  raw["ariaDisabled"] == "true",
		AriaHidden:    raw["ariaHidden"] == "true",
	}, nil
}

// reason names the first check the control fails, or "".
func (s controlState) reason() string {
	switch {
	case s.Disabled || s.AriaDisabled:
		return "disabled"
	case s.Display == "none":
		return "hidden via display:none"
	case s.Visibility == "hidden" || s.Visibility == "collapse":
		return "hidden via visibility"
	case isZeroOpacity(s.Opacity):
		return "hidden via opacity:0"
	case s.Width < 1 || s.Height < 1:
		return "zero size"
	case s.AriaHidden:
		return "aria-hidden"
	case s.PointerEvents == "none":
		return "pointer events disabled"
	}
	return ""
}

func (s controlState) usable() bool { return s.reason() == "" }

func isZeroOpacity(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && f == 0
}
