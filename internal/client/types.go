// Package client provides the HTTP client for the Lifeline consent and
// incident endpoints. Types mirror the server wire protocol without importing
// server packages.
package client

import "time"

// TimestampLayout is the ISO-8601 form used for every timestamp on the wire:
// UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ConsentRecord is the body of POST /v1/consent/register.
type ConsentRecord struct {
	UserID      string `json:"user_id"`
	ConsentText string `json:"consent_text"`
}

// ConsentResponse is returned by a successful consent registration.
type ConsentResponse struct {
	Status string `json:"status,omitempty"`
	Token  string `json:"token"`
}

// IncidentStart is the body of POST /v1/incident/start.
type IncidentStart struct {
	UserID     string `json:"user_id"`
	IncidentID string `json:"incident_id"`
	Timestamp  string `json:"timestamp"`
}

// IncidentUpdate is the body of POST /v1/incident/update.
type IncidentUpdate struct {
	UserID     string  `json:"user_id"`
	IncidentID string  `json:"incident_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Accuracy   float64 `json:"accuracy"`
	Timestamp  string  `json:"timestamp"`
}

// IncidentStop is the body of POST /v1/incident/stop.
type IncidentStop struct {
	IncidentID string `json:"incident_id"`
}

// ReportEntry is one stored location in an incident report.
type ReportEntry struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy float64 `json:"accuracy"`
	TS       string  `json:"ts"`
}

// StopResponse is returned by POST /v1/incident/stop.
type StopResponse struct {
	Status string        `json:"status"`
	Report []ReportEntry `json:"report"`
}

// ReportResponse is returned by GET /v1/incident/{id}/report.
type ReportResponse struct {
	IncidentID string        `json:"incident_id"`
	Report     []ReportEntry `json:"report"`
}

// StatusResponse is the generic acknowledgement body.
type StatusResponse struct {
	Status string `json:"status"`
}
