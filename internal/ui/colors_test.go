package ui

import (
	"strings"
	"testing"
)

func TestPalette(t *testing.T) {
	p := NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

	t.Run("renders text", func(t *testing.T) {
		for name, render := range map[string]func(string) string{
			"title": p.Title,
			"rule":  p.Rule,
			"ok":    p.OK,
			"err":   p.Err,
			"warn":  p.Warn,
			"help":  p.Help,
		} {
			if got := render("hello"); !strings.Contains(got, "hello") {
				t.Errorf("%s: expected rendered text to contain input, got %q", name, got)
			}
		}
	})

	t.Run("state keeps name", func(t *testing.T) {
		tests := []struct {
			state  string
			failed bool
		}{
			{"done", false},
			{"failed", true},
			{"sync_approved_groups", false},
		}
		for _, tt := range tests {
			if got := p.State(tt.state, tt.failed); !strings.Contains(got, tt.state) {
				t.Errorf("State(%q, %v) = %q", tt.state, tt.failed, got)
			}
		}
	})
}
