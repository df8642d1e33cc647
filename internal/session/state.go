// Package session holds the single in-memory sharing session and the
// controller that drives consent, incident start, location relay and stop.
package session

import (
	"time"

	"github.com/lifeline-share/lifeline/internal/location"
)

// ConsentText is the fixed statement submitted with every consent
// registration.
const ConsentText = "User consents to emergency location sharing while active. Retention 30 days."

// Phase is the user-visible stage of the session.
type Phase int

const (
	Idle           Phase = iota // no credential held
	ConsentGranted              // credential held, not sharing
	Sharing                     // an incident is open; Snapshot.Watching tells whether fixes flow
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ConsentGranted:
		return "consent granted"
	case Sharing:
		return "sharing"
	default:
		return "unknown"
	}
}

// Session is the mutable per-process state. The controller owns it
// exclusively and never persists it.
type Session struct {
	AuthToken  string
	IncidentID string
	watch      *location.Watch
}

// Stats counts relay activity for the current process.
type Stats struct {
	FixesSeen     int
	UpdatesSent   int
	UpdatesFailed int
	LastFix       *location.Fix
	StartedAt     time.Time
}

// Snapshot is a copy of the session taken under the controller lock.
type Snapshot struct {
	Phase      Phase
	HasToken   bool
	IncidentID string
	Watching   bool
	Stats      Stats
}

// Event reports one observable side effect of a controller action. Message
// is a log line; Status, when non-empty, replaces the status text; Notice is
// a message the user must acknowledge.
type Event struct {
	Time    time.Time
	Message string
	Status  string
	Notice  string
	Phase   Phase
	Fix     *location.Fix
	Err     error
}

// Observer receives controller events. It is called from the goroutine that
// produced the event, possibly concurrently, and must not block for long.
type Observer func(Event)
