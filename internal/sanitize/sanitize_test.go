package sanitize

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Panel 3", "Panel 3"},
		{"tags stripped", "<b>Panel</b> A", "Panel A"},
		{"ampersand kept once", "A & B", "A & B"},
		{"script removed", "<script>alert(1)</script>Door", "Door"},
		{"trimmed", "  Riser  ", "Riser"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestText_Capped(t *testing.T) {
	got := Text(strings.Repeat("é", MaxTextLength+20))
	if n := len([]rune(got)); n != MaxTextLength {
		t.Errorf("expected %d runes, got %d", MaxTextLength, n)
	}
}

func TestTextPtr(t *testing.T) {
	if TextPtr(nil) != nil {
		t.Error("nil stays nil")
	}
	blank := "<i></i>"
	if TextPtr(&blank) != nil {
		t.Error("markup-only input should become nil")
	}
	s := "<em>North</em> wall"
	if got := TextPtr(&s); got == nil || *got != "North wall" {
		t.Errorf("unexpected %v", got)
	}
}

func TestComment(t *testing.T) {
	got := Comment(`<p onclick="steal()">check <script>bad()</script><b>conduit</b></p>`)
	if strings.Contains(got, "script") || strings.Contains(got, "onclick") {
		t.Errorf("dangerous markup kept: %q", got)
	}
	if !strings.Contains(got, "<b>conduit</b>") {
		t.Errorf("expected inline formatting kept: %q", got)
	}
}
