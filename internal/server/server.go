// Package server implements the demo incident server: consent registration,
// incident lifecycle, location storage, contact alerts and a live feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lifeline-share/lifeline/internal/client"
	"github.com/lifeline-share/lifeline/internal/server/api"
	"github.com/lifeline-share/lifeline/internal/server/live"
	"github.com/lifeline-share/lifeline/internal/server/store"
)

const maxBody = 1 << 20

// Options configures a Server.
type Options struct {
	Store    store.Store
	Tokens   *Tokens
	Notifier Notifier
	// Geocoder is optional; alerts then carry no address.
	Geocoder Geocoder
	Hub      *live.Hub
	Logger   *slog.Logger
	Now      func() time.Time
}

type Server struct {
	store    store.Store
	tokens   *Tokens
	notifier Notifier
	geocoder Geocoder
	hub      *live.Hub
	logger   *slog.Logger
	now      func() time.Time
}

func New(opts Options) *Server {
	s := &Server{
		store:    opts.Store,
		tokens:   opts.Tokens,
		notifier: opts.Notifier,
		geocoder: opts.Geocoder,
		hub:      opts.Hub,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	if s.hub == nil {
		s.hub = live.NewHub()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Routes returns the router for every endpoint.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle(client.PathConsentRegister, api.HTTPHandler(s.RegisterConsent)).Methods(http.MethodPost)
	r.Handle(client.PathIncidentStart, api.HTTPHandler(s.StartIncident)).Methods(http.MethodPost)
	r.Handle(client.PathIncidentUpdate, api.HTTPHandler(s.UpdateIncident)).Methods(http.MethodPost)
	r.Handle(client.PathIncidentStop, api.HTTPHandler(s.StopIncident)).Methods(http.MethodPost)
	r.Handle("/v1/incident/{incident_id}/report", api.HTTPHandler(s.GetReport)).Methods(http.MethodGet)
	r.HandleFunc("/v1/incident/{incident_id}/live", s.handleLive).Methods(http.MethodGet)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// decodeObject reads a JSON object body. Fields are checked by the caller.
func decodeObject(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func missing(fields ...string) error {
	return fmt.Errorf("missing %s", strings.Join(fields, ", "))
}

type consentRequest struct {
	UserID      *string `json:"user_id"`
	ConsentText *string `json:"consent_text"`
}

func (s *Server) RegisterConsent(w http.ResponseWriter, r *http.Request) api.Response {
	var data consentRequest
	if err := decodeObject(w, r, &data); err != nil {
		return api.BadPayload(fmt.Errorf("register consent: %w", err))
	}
	if data.UserID == nil || data.ConsentText == nil {
		return api.BadPayload(fmt.Errorf("register consent: %w", missing("user_id", "consent_text")))
	}

	consent := store.Consent{
		ID:          uuid.New().String(),
		UserID:      *data.UserID,
		ConsentText: *data.ConsentText,
		RecordedAt:  s.now().UTC(),
	}
	if err := s.store.RecordConsent(r.Context(), consent); err != nil {
		return api.Internal(fmt.Errorf("register consent: %w", err))
	}

	token, err := s.tokens.Issue(consent.UserID)
	if err != nil {
		return api.Internal(fmt.Errorf("register consent: issue token: %w", err))
	}

	s.logger.Info("consent recorded", "user_id", consent.UserID, "consent_id", consent.ID)
	return api.Response{
		Code: http.StatusCreated,
		Data: client.ConsentResponse{Status: "consent_recorded", Token: token},
	}
}

type startRequest struct {
	IncidentID *string `json:"incident_id"`
	UserID     *string `json:"user_id"`
}

func (s *Server) StartIncident(w http.ResponseWriter, r *http.Request) api.Response {
	if _, err := s.authorize(r, false); err != nil {
		return api.Unauthorized(fmt.Errorf("start incident: %w", err))
	}

	var data startRequest
	if err := decodeObject(w, r, &data); err != nil {
		return api.BadPayload(fmt.Errorf("start incident: %w", err))
	}
	if data.IncidentID == nil || data.UserID == nil {
		return api.BadPayload(fmt.Errorf("start incident: %w", missing("incident_id", "user_id")))
	}

	inc := store.Incident{
		IncidentID: *data.IncidentID,
		UserID:     *data.UserID,
		StartedAt:  s.now().UTC(),
	}
	if err := s.store.StartIncident(r.Context(), inc); err != nil {
		return api.Internal(fmt.Errorf("start incident: %w", err))
	}

	s.logger.Info("incident started", "incident_id", inc.IncidentID, "user_id", inc.UserID)
	return api.Response{Code: http.StatusCreated, Message: "incident_started"}
}

type updateRequest struct {
	IncidentID *string  `json:"incident_id"`
	UserID     *string  `json:"user_id"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Accuracy   *float64 `json:"accuracy"`
	Timestamp  *string  `json:"timestamp"`
}

func (d updateRequest) missingFields() []string {
	var fields []string
	if d.IncidentID == nil {
		fields = append(fields, "incident_id")
	}
	if d.UserID == nil {
		fields = append(fields, "user_id")
	}
	if d.Lat == nil {
		fields = append(fields, "lat")
	}
	if d.Lon == nil {
		fields = append(fields, "lon")
	}
	if d.Timestamp == nil {
		fields = append(fields, "timestamp")
	}
	return fields
}

func (s *Server) UpdateIncident(w http.ResponseWriter, r *http.Request) api.Response {
	if _, err := s.authorize(r, false); err != nil {
		return api.Unauthorized(fmt.Errorf("update incident: %w", err))
	}

	var data updateRequest
	if err := decodeObject(w, r, &data); err != nil {
		return api.BadPayload(fmt.Errorf("update incident: %w", err))
	}
	if fields := data.missingFields(); len(fields) > 0 {
		return api.BadPayload(fmt.Errorf("update incident: %w", missing(fields...)))
	}

	loc := store.Location{
		IncidentID: *data.IncidentID,
		Lat:        *data.Lat,
		Lon:        *data.Lon,
		Timestamp:  *data.Timestamp,
	}
	if data.Accuracy != nil {
		loc.Accuracy = *data.Accuracy
	}

	count, err := s.store.SaveLocation(r.Context(), loc)
	if err != nil {
		return api.Internal(fmt.Errorf("update incident: %w", err))
	}

	s.hub.Publish(loc.IncidentID, live.Message{Type: live.MsgLocation, Payload: reportEntry(loc)})

	if count == 1 {
		s.alertContacts(r.Context(), *data.UserID, loc)
	}

	return api.Response{Code: http.StatusCreated, Message: "location_saved"}
}

// alertContacts notifies the user's contacts of the first location of an
// incident. Failures are logged and never fail the update.
func (s *Server) alertContacts(ctx context.Context, userID string, loc store.Location) {
	contacts, err := s.store.Contacts(ctx, userID)
	if err != nil {
		s.logger.Error("load contacts", "user_id", userID, "err", err)
		return
	}
	if len(contacts) == 0 {
		return
	}

	alert := Alert{
		UserID:     userID,
		IncidentID: loc.IncidentID,
		Lat:        loc.Lat,
		Lon:        loc.Lon,
		Contacts:   contacts,
	}
	if s.geocoder != nil {
		addr, err := s.geocoder.ReverseGeocode(ctx, loc.Lat, loc.Lon)
		if err != nil {
			s.logger.Warn("reverse geocode", "incident_id", loc.IncidentID, "err", err)
		}
		alert.Address = addr
	}

	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.logger.Error("notify contacts", "incident_id", loc.IncidentID, "err", err)
	}
}

type stopRequest struct {
	IncidentID *string `json:"incident_id"`
}

func (s *Server) StopIncident(w http.ResponseWriter, r *http.Request) api.Response {
	if _, err := s.authorize(r, false); err != nil {
		return api.Unauthorized(fmt.Errorf("stop incident: %w", err))
	}

	var data stopRequest
	if err := decodeObject(w, r, &data); err != nil {
		return api.BadPayload(fmt.Errorf("stop incident: %w", err))
	}
	if data.IncidentID == nil {
		return api.BadPayload(fmt.Errorf("stop incident: %w", missing("incident_id")))
	}

	id := *data.IncidentID
	if err := s.store.StopIncident(r.Context(), id, s.now().UTC()); err != nil {
		return api.Internal(fmt.Errorf("stop incident: %w", err))
	}
	report, err := s.report(r.Context(), id)
	if err != nil {
		return api.Internal(fmt.Errorf("stop incident: %w", err))
	}

	s.hub.Publish(id, live.Message{Type: live.MsgStopped, Payload: client.StatusResponse{Status: "stopped"}})
	s.logger.Info("incident stopped", "incident_id", id, "locations", len(report))
	return api.Response{
		Code: http.StatusOK,
		Data: client.StopResponse{Status: "stopped", Report: report},
	}
}

func (s *Server) GetReport(w http.ResponseWriter, r *http.Request) api.Response {
	if _, err := s.authorize(r, false); err != nil {
		return api.Unauthorized(fmt.Errorf("get report: %w", err))
	}

	id := mux.Vars(r)["incident_id"]
	report, err := s.report(r.Context(), id)
	if err != nil {
		return api.Internal(fmt.Errorf("get report: %w", err))
	}
	return api.Response{
		Code: http.StatusOK,
		Data: client.ReportResponse{IncidentID: id, Report: report},
	}
}

func (s *Server) report(ctx context.Context, incidentID string) ([]client.ReportEntry, error) {
	locs, err := s.store.Report(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	report := make([]client.ReportEntry, len(locs))
	for i, loc := range locs {
		report[i] = reportEntry(loc)
	}
	return report, nil
}

func reportEntry(loc store.Location) client.ReportEntry {
	return client.ReportEntry{Lat: loc.Lat, Lon: loc.Lon, Accuracy: loc.Accuracy, TS: loc.Timestamp}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r, true); err != nil {
		api.Unauthorized(err).Encode(w)
		return
	}

	id := mux.Vars(r)["incident_id"]
	report, err := s.report(r.Context(), id)
	if err != nil {
		s.logger.Error("live snapshot", "incident_id", id, "err", err)
		api.Internal(err).Encode(w)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("live upgrade", "err", err)
		return
	}

	s.logger.Info("live watcher connected", "incident_id", id, "remote", r.RemoteAddr)
	c := s.hub.Subscribe(conn, id, live.Message{
		Type:    live.MsgSnapshot,
		Payload: client.ReportResponse{IncidentID: id, Report: report},
	})

	go func() {
		defer func() {
			s.hub.Unsubscribe(c)
			s.logger.Info("live watcher disconnected", "incident_id", id, "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// checkOrigin accepts requests without an Origin, same-host origins and
// loopback origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ErrStoreRequired is returned by Run when no store is configured.
var ErrStoreRequired = errors.New("server: store is required")

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if s.store == nil {
		return ErrStoreRequired
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info(fmt.Sprintf("Starting server on %s", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
