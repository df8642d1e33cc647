package consent

import (
	"strings"
	"testing"

	"github.com/lifeline-share/lifeline/internal/session"
)

func TestMarkdownIncludesConsentText(t *testing.T) {
	md := Markdown("https://lifeline.example.org")
	if !strings.Contains(md, session.ConsentText) {
		t.Error("terms must quote the consent statement")
	}
	if !strings.Contains(md, "https://lifeline.example.org") {
		t.Error("terms should name the server")
	}
}

func TestMarkdownWithoutServer(t *testing.T) {
	if md := Markdown("  "); !strings.Contains(md, "the configured server") {
		t.Errorf("unexpected fallback: %q", md)
	}
}

func TestViewRenders(t *testing.T) {
	v := View("http://x", 80)
	if !strings.Contains(v, "Retention") {
		t.Errorf("rendered terms missing consent text: %q", v)
	}
}
