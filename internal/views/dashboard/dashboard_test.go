package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/lifeline-share/lifeline/internal/location"
	"github.com/lifeline-share/lifeline/internal/session"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m05s"},
		{62 * time.Minute, "1h02m"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestViewEmpty(t *testing.T) {
	m := New()
	m.Width = 100
	v := m.View()
	if !strings.Contains(v, "Incident: none") || !strings.Contains(v, "No fixes yet") {
		t.Errorf("unexpected empty view: %q", v)
	}
}

func TestViewSharing(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	m := New()
	m.Width = 120
	m.now = func() time.Time { return start.Add(90 * time.Second) }
	m.SetSnapshot(session.Snapshot{
		Phase:      session.Sharing,
		IncidentID: "inc-42",
		Stats: session.Stats{
			FixesSeen:     3,
			UpdatesSent:   2,
			UpdatesFailed: 1,
			StartedAt:     start,
			LastFix:       &location.Fix{Latitude: 1.5, Longitude: 2.25, Accuracy: 7, Timestamp: start},
		},
	})

	v := m.View()
	for _, want := range []string{"inc-42", "Fixes: 3", "Sent: 2", "Failed: 1", "Elapsed: 1m30s", "1.50000, 2.25000", "±7m"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q: %q", want, v)
		}
	}
}
