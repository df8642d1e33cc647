package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"googlemaps.github.io/maps"

	"github.com/lifeline-share/lifeline/internal/server/store"
)

// Alert is sent to a user's contacts when an incident reports its first
// location.
type Alert struct {
	UserID     string
	IncidentID string
	Lat        float64
	Lon        float64
	Address    string
	Contacts   []store.Contact
}

// MapsLink returns a Google Maps search link for the alert position.
func (a Alert) MapsLink() string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%v,%v", a.Lat, a.Lon)
}

// Text is the message body delivered to each contact.
func (a Alert) Text() string {
	text := fmt.Sprintf("EMERGENCY: %s triggered an incident. Location: %s", a.UserID, a.MapsLink())
	if a.Address != "" {
		text += " (near " + a.Address + ")"
	}
	return text
}

// Notifier delivers alerts to contacts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes one log record per reachable contact. It stands in for
// an SMS or email gateway.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, a Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, c := range a.Contacts {
		if c.Phone == "" && c.Email == "" {
			continue
		}
		logger.Info("contact notified",
			"incident_id", a.IncidentID,
			"contact", c.Name,
			"phone", c.Phone,
			"email", c.Email,
			"message", a.Text(),
		)
	}
	return nil
}

// messageCreator is the part of the Twilio REST API used for SMS.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier texts every contact that has a phone number. Contacts with
// only an email are skipped.
type TwilioNotifier struct {
	from   string
	api    messageCreator
	logger *slog.Logger
}

func NewTwilioNotifier(accountSID, authToken, from string, logger *slog.Logger) *TwilioNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &TwilioNotifier{from: from, api: client.Api, logger: logger}
}

// Notify sends one SMS per contact. A failed message does not stop the
// others; all failures are returned together.
func (n *TwilioNotifier) Notify(_ context.Context, a Alert) error {
	var result *multierror.Error
	for _, c := range a.Contacts {
		if c.Phone == "" {
			continue
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(c.Phone)
		params.SetFrom(n.from)
		params.SetBody(a.Text())

		msg, err := n.api.CreateMessage(params)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("twilio sms to %s: %w", c.Name, err))
			continue
		}
		sid := ""
		if msg != nil && msg.Sid != nil {
			sid = *msg.Sid
		}
		n.logger.Info("contact notified by sms", "incident_id", a.IncidentID, "contact", c.Name, "sid", sid)
	}
	return result.ErrorOrNil()
}

// Geocoder resolves a position to a human-readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// MapsGeocoder reverse-geocodes with the Google Maps Geocoding API.
type MapsGeocoder struct {
	client *maps.Client
}

func NewMapsGeocoder(apiKey string) (*MapsGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("error creating Google Maps client: %w", err)
	}
	return &MapsGeocoder{client: client}, nil
}

func (g *MapsGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lon},
	})
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].FormattedAddress, nil
}
