package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Every read returns copies.
type Memory struct {
	mu        sync.RWMutex
	consents  []Consent
	incidents map[string]*Incident
	locations map[string][]Location
	contacts  map[string][]Contact
}

func NewMemory() *Memory {
	return &Memory{
		incidents: make(map[string]*Incident),
		locations: make(map[string][]Location),
		contacts:  make(map[string][]Contact),
	}
}

func (m *Memory) RecordConsent(_ context.Context, c Consent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consents = append(m.consents, c)
	return nil
}

// Consents returns every recorded consent in order.
func (m *Memory) Consents() []Consent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Consent(nil), m.consents...)
}

func (m *Memory) StartIncident(_ context.Context, inc Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := inc
	copy.StoppedAt = nil
	m.incidents[inc.IncidentID] = &copy
	return nil
}

func (m *Memory) SaveLocation(_ context.Context, loc Location) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[loc.IncidentID] = append(m.locations[loc.IncidentID], loc)
	return len(m.locations[loc.IncidentID]), nil
}

func (m *Memory) StopIncident(_ context.Context, incidentID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inc, ok := m.incidents[incidentID]; ok {
		stopped := at
		inc.StoppedAt = &stopped
	}
	return nil
}

func (m *Memory) GetIncident(_ context.Context, incidentID string) (Incident, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc, ok := m.incidents[incidentID]
	if !ok {
		return Incident{}, false, nil
	}
	copy := *inc
	if inc.StoppedAt != nil {
		stopped := *inc.StoppedAt
		copy.StoppedAt = &stopped
	}
	return copy, true, nil
}

func (m *Memory) Report(_ context.Context, incidentID string) ([]Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Location{}, m.locations[incidentID]...), nil
}

func (m *Memory) AddContact(_ context.Context, c Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.contacts[c.UserID] {
		if existing == c {
			return nil
		}
	}
	m.contacts[c.UserID] = append(m.contacts[c.UserID], c)
	return nil
}

func (m *Memory) Contacts(_ context.Context, userID string) ([]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Contact(nil), m.contacts[userID]...), nil
}

func (m *Memory) Close() {}
