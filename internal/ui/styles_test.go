package ui

import (
	"strings"
	"testing"
)

func TestRender_NoColor(t *testing.T) {
	prev := ColorEnabled()
	SetColor(false)
	defer SetColor(prev)

	for name, fn := range map[string]func(string) string{
		"pass":   RenderPass,
		"warn":   RenderWarn,
		"fail":   RenderFail,
		"accent": RenderAccent,
		"muted":  RenderMuted,
		"bold":   RenderBold,
	} {
		if got := fn("text"); got != "text" {
			t.Errorf("%s: got %q, want plain text", name, got)
		}
	}
}

func TestTable(t *testing.T) {
	prev := ColorEnabled()
	SetColor(false)
	defer SetColor(prev)

	out := Table([]string{"ID", "Name"}, [][]string{{"1", "Mission Chinese Food"}, {"2", "Emily"}})
	for _, want := range []string{"ID", "Name", "Mission Chinese Food", "Emily"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestStars(t *testing.T) {
	tests := []struct {
		rating int
		want   string
	}{
		{0, "☆☆☆☆☆"},
		{3, "★★★☆☆"},
		{5, "★★★★★"},
		{9, "★★★★★"},
		{-1, "☆☆☆☆☆"},
	}
	for _, tt := range tests {
		if got := Stars(tt.rating); got != tt.want {
			t.Errorf("Stars(%d) = %q, want %q", tt.rating, got, tt.want)
		}
	}
}
