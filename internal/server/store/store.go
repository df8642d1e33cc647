// Package store persists consents, incidents, locations and emergency
// contacts for the incident server.
package store

import (
	"context"
	"time"
)

// Consent is one recorded consent statement.
type Consent struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	ConsentText string    `db:"consent_text"`
	RecordedAt  time.Time `db:"ts"`
}

// Incident is a sharing episode. StoppedAt is nil while it is active.
type Incident struct {
	IncidentID string     `db:"incident_id"`
	UserID     string     `db:"user_id"`
	StartedAt  time.Time  `db:"started_at"`
	StoppedAt  *time.Time `db:"stopped_at"`
}

// Location is one stored fix. Timestamp is kept as the client sent it.
type Location struct {
	IncidentID string  `db:"incident_id"`
	Lat        float64 `db:"lat"`
	Lon        float64 `db:"lon"`
	Accuracy   float64 `db:"accuracy"`
	Timestamp  string  `db:"ts"`
}

// Contact is notified when an incident of UserID reports its first location.
type Contact struct {
	UserID string `db:"user_id"`
	Name   string `db:"name"`
	Phone  string `db:"phone"`
	Email  string `db:"email"`
}

// Store is implemented by Memory and Postgres.
type Store interface {
	RecordConsent(ctx context.Context, c Consent) error
	// StartIncident inserts the incident or replaces one with the same id.
	StartIncident(ctx context.Context, inc Incident) error
	// SaveLocation appends loc and returns how many locations its incident
	// now holds.
	SaveLocation(ctx context.Context, loc Location) (int, error)
	// StopIncident marks the incident stopped. Unknown ids are not an error.
	StopIncident(ctx context.Context, incidentID string, at time.Time) error
	GetIncident(ctx context.Context, incidentID string) (Incident, bool, error)
	// Report returns the incident's locations in insertion order.
	Report(ctx context.Context, incidentID string) ([]Location, error)
	// AddContact ignores a contact identical to one already stored.
	AddContact(ctx context.Context, c Contact) error
	Contacts(ctx context.Context, userID string) ([]Contact, error)
	Close()
}
