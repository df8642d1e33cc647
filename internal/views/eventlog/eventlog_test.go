package eventlog

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

var t0 = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func TestAddNewestFirst(t *testing.T) {
	m := New()
	m.Add(t0, KindInfo, "first")
	m.Add(t0.Add(time.Second), KindNet, "second")

	if len(m.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m.Entries))
	}
	if m.Entries[0].Message != "second" {
		t.Errorf("newest entry should be first, got %q", m.Entries[0].Message)
	}
}

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add(t0, KindInfo, "msg")
	}
	if len(m.Entries) != maxEntries {
		t.Errorf("expected %d entries, got %d", maxEntries, len(m.Entries))
	}
}

func TestLineFormat(t *testing.T) {
	e := Entry{Time: t0.Add(123 * time.Millisecond), Message: "Started sharing."}
	if got, want := e.Line(), "[2025-05-06T07:08:09.123Z] Started sharing."; got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestPlain(t *testing.T) {
	m := New()
	m.Add(t0, KindInfo, "a")
	m.Add(t0, KindInfo, "b")
	lines := strings.Split(m.Plain(), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], " b") {
		t.Errorf("Plain() = %q", m.Plain())
	}
}

func TestScroll(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.Add(t0, KindInfo, "msg")
	}
	m.ScrollDown(4)
	if m.Offset != 4 {
		t.Errorf("offset = %d, want 4", m.Offset)
	}
	m.ScrollDown(100)
	if m.Offset != 9 {
		t.Errorf("offset = %d, want capped at 9", m.Offset)
	}
	m.ScrollUp(100)
	if m.Offset != 0 {
		t.Errorf("offset = %d, want 0", m.Offset)
	}
	m.ScrollDown(3)
	m.Add(t0, KindInfo, "new")
	if m.Offset != 0 {
		t.Error("adding entry should reset scroll")
	}
}

func TestView(t *testing.T) {
	m := New()
	if v := m.View(80, 10); !strings.Contains(v, "No events") {
		t.Error("empty view should say so")
	}
	m.Add(t0, KindError, "Error sending location: boom")
	if v := m.View(100, 10); !strings.Contains(v, "Error sending location") {
		t.Errorf("view missing entry: %q", v)
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		width int
		want  string
	}{
		{"fits", "short", 10, "short"},
		{"ascii", "abcdefghij", 8, "abcde..."},
		{"multibyte", "Geolocation error: ↓↓↓↓↓↓", 22, "Geolocation error: ..."},
		{"tiny width", "abcdef", 3, "abcdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clip(tt.msg, tt.width)
			if !utf8.ValidString(got) {
				t.Fatalf("clip split a rune: %q", got)
			}
			if got != tt.want {
				t.Errorf("clip(%q, %d) = %q, want %q", tt.msg, tt.width, got, tt.want)
			}
			if tt.width > 3 && lipgloss.Width(got) > tt.width {
				t.Errorf("width %d exceeds %d", lipgloss.Width(got), tt.width)
			}
		})
	}
}

func TestClipRuneBoundary(t *testing.T) {
	msg := strings.Repeat("é", 40)
	got := clip(msg, 11)
	if !utf8.ValidString(got) || got != strings.Repeat("é", 8)+"..." {
		t.Errorf("clip = %q", got)
	}
}
