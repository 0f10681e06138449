package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControlState_Reason(t *testing.T) {
	visible := controlState{Display: "block", Visibility: "visible", Opacity: "1", PointerEvents: "auto", Width: 32, Height: 32}

	tests := []struct {
		name   string
		mutate func(*controlState)
		reason string
	}{
		{"visible enabled", func(*controlState) {}, ""},
		{"disabled", func(s *controlState) { s.Disabled = true }, "disabled"},
		{"aria disabled", func(s *controlState) { s.AriaDisabled = true }, "disabled"},
		{"display none", func(s *controlState) { s.Display = "none" }, "hidden via display:none"},
		{"visibility hidden", func(s *controlState) { s.Visibility = "hidden" }, "hidden via visibility"},
		{"opacity zero", func(s *controlState) { s.Opacity = "0" }, "hidden via opacity:0"},
		{"opacity partial", func(s *controlState) { s.Opacity = "0.5" }, ""},
		{"zero size", func(s *controlState) { s.Width = 0 }, "zero size"},
		{"aria hidden", func(s *controlState) { s.AriaHidden = true }, "aria-hidden"},
		{"pointer events", func(s *controlState) { s.PointerEvents = "none" }, "pointer events disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := visible
			tt.mutate(&s)
			assert.Equal(t, tt.reason, s.reason())
			assert.Equal(t, tt.reason == "", s.usable())
		})
	}
}

func TestControlState_DisabledWinsOverHidden(t *testing.T) {
	s := controlState{Display: "none", Disabled: true}
	assert.Equal(t, "disabled", s.reason())
}
