package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lifeline-share/lifeline/internal/client"
	"github.com/lifeline-share/lifeline/internal/location"
)

// Reporter issues the consent and incident calls against one server.
type Reporter interface {
	RegisterConsent(ctx context.Context, rec client.ConsentRecord) (*client.ConsentResponse, error)
	StartIncident(ctx context.Context, body client.IncidentStart) error
	UpdateIncident(ctx context.Context, body client.IncidentUpdate) error
	StopIncident(ctx context.Context, body client.IncidentStop) (*client.StopResponse, error)
}

// ReporterFactory builds a Reporter for a server URL and bearer token.
type ReporterFactory func(serverURL, token string) Reporter

// HTTPReporters is the default factory, backed by client.HTTPClient.
func HTTPReporters(serverURL, token string) Reporter {
	return client.NewHTTPClient(serverURL, token)
}

// Options configures a Controller.
type Options struct {
	Source    location.Source
	Watch     location.Options
	Reporters ReporterFactory
	Observer  Observer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller owns the Session and mediates the three user actions. All
// methods are safe for concurrent use; state is guarded by mu and network
// calls are made outside it.
type Controller struct {
	source    location.Source
	watchOpts location.Options
	reporters ReporterFactory
	observe   Observer
	now       func() time.Time

	// ctx outlives individual watches so in-flight sends finish after stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	sess       Session
	phase      Phase
	starting   bool
	generation uint64
	lastMillis int64
	stats      Stats

	inflight sync.WaitGroup
}

// NewController creates a controller in the Idle phase.
func NewController(opts Options) *Controller {
	if opts.Reporters == nil {
		opts.Reporters = HTTPReporters
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Observer == nil {
		opts.Observer = func(Event) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		source:    opts.Source,
		watchOpts: opts.Watch,
		reporters: opts.Reporters,
		observe:   opts.Observer,
		now:       opts.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// CanStart reports whether the start action is enabled.
func (c *Controller) CanStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == ConsentGranted && !c.starting
}

// CanStop reports whether the stop action is enabled.
func (c *Controller) CanStop() bool {
	return c.Phase() == Sharing
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	if st.LastFix != nil {
		f := *st.LastFix
		st.LastFix = &f
	}
	return Snapshot{
		Phase:      c.phase,
		HasToken:   c.sess.AuthToken != "",
		IncidentID: c.sess.IncidentID,
		Watching:   c.sess.watch != nil,
		Stats:      st,
	}
}

// RegisterConsent submits the consent record and stores the returned token.
func (c *Controller) RegisterConsent(ctx context.Context, userID, serverURL string) error {
	userID = strings.TrimSpace(userID)
	serverURL = strings.TrimSpace(serverURL)
	if userID == "" || serverURL == "" {
		c.emit(Event{Notice: "Please set user id and server URL"})
		return fmt.Errorf("%w: user id and server URL are required", ErrValidation)
	}

	c.emit(Event{Message: "Sending consent to server..."})
	resp, err := c.reporters(serverURL, "").RegisterConsent(ctx, client.ConsentRecord{
		UserID:      userID,
		ConsentText: ConsentText,
	})
	if err == nil && resp.Token == "" {
		err = fmt.Errorf("%w: consent response carried no token", client.ErrNetwork)
	}
	if err != nil {
		log.Printf("consent registration failed: %v", err)
		c.emit(Event{
			Message: "Failed to register consent: " + err.Error(),
			Status:  "Consent registration failed.",
			Err:     err,
		})
		return err
	}

	c.mu.Lock()
	c.sess.AuthToken = resp.Token
	if c.phase == Idle {
		c.phase = ConsentGranted
	}
	c.mu.Unlock()

	c.emit(Event{
		Message: "Consent registered. Received auth token.",
		Status:  "Consent granted. Ready to share.",
	})
	return nil
}

// StartIncident creates a new incident and begins relaying location fixes.
// A failed start request is logged and sharing proceeds anyway. Once the
// start request has been sent the session counts as sharing, even when the
// location source refuses, so the incident can still be stopped.
func (c *Controller) StartIncident(ctx context.Context, userID, serverURL string) error {
	userID = strings.TrimSpace(userID)
	serverURL = strings.TrimSpace(serverURL)

	c.mu.Lock()
	if c.sess.AuthToken == "" {
		c.mu.Unlock()
		c.emit(Event{Notice: "Please register consent first"})
		return fmt.Errorf("%w: consent has not been registered", ErrPrecondition)
	}
	if c.phase == Sharing || c.starting {
		c.mu.Unlock()
		return fmt.Errorf("%w: an incident is already active", ErrPrecondition)
	}
	c.starting = true
	token := c.sess.AuthToken
	incidentID := c.nextIncidentIDLocked()
	c.sess.IncidentID = incidentID
	gen := c.generation
	c.mu.Unlock()

	rep := c.reporters(serverURL, token)
	// A stop that arrives while starting leaves the stop request to us, so it
	// always follows the start request.
	stopped := func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation == gen {
			return false
		}
		c.starting = false
		return true
	}
	finish := func(w *location.Watch) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != gen {
			c.starting = false
			return false
		}
		c.starting = false
		c.sess.watch = w
		c.phase = Sharing
		c.stats.StartedAt = c.now()
		return true
	}

	err := rep.StartIncident(ctx, client.IncidentStart{
		UserID:     userID,
		IncidentID: incidentID,
		Timestamp:  client.FormatTimestamp(c.now()),
	})
	if err != nil {
		log.Printf("incident start failed: %v", err)
		c.emit(Event{Message: "Failed to create incident: " + err.Error(), Err: err})
	}
	if stopped() {
		c.notifyStop(ctx, rep, incidentID)
		return nil
	}

	if c.source == nil {
		err := fmt.Errorf("%w: no location source configured", location.ErrUnsupported)
		if !finish(nil) {
			c.notifyStop(ctx, rep, incidentID)
			return err
		}
		c.emit(Event{
			Message: "Geolocation error: " + err.Error(),
			Status:  "Geolocation error or permission denied.",
			Notice:  "Geolocation not supported by your system.",
			Err:     err,
		})
		return err
	}

	c.emit(Event{Status: "Requesting location permission..."})
	w, err := c.source.Watch(c.ctx, c.watchOpts)
	if err != nil {
		log.Printf("location watch failed: %v", err)
		if !finish(nil) {
			c.notifyStop(ctx, rep, incidentID)
			return err
		}
		ev := Event{
			Message: "Geolocation error: " + err.Error(),
			Status:  "Geolocation error or permission denied.",
			Err:     err,
		}
		if errors.Is(err, location.ErrUnsupported) {
			ev.Notice = "Geolocation not supported by your system."
		}
		c.emit(ev)
		return err
	}

	if !finish(w) {
		w.Stop()
		c.notifyStop(ctx, rep, incidentID)
		return nil
	}

	go c.relay(w, rep, userID, incidentID)

	c.emit(Event{Message: "Started sharing."})
	return nil
}

// StopIncident cancels the active watch and notifies the server. It is
// idempotent: with no active incident it only reports so.
func (c *Controller) StopIncident(ctx context.Context, serverURL string) error {
	serverURL = strings.TrimSpace(serverURL)

	c.mu.Lock()
	c.generation++
	if c.sess.watch != nil {
		c.sess.watch.Stop()
		c.sess.watch = nil
	}
	token := c.sess.AuthToken
	incidentID := c.sess.IncidentID
	starting := c.starting
	c.sess.IncidentID = ""
	if c.phase == Sharing {
		c.phase = ConsentGranted
	}
	c.mu.Unlock()

	if token == "" || incidentID == "" {
		c.emit(Event{Message: "No active incident.", Status: "Stopped sharing."})
		return nil
	}
	if starting {
		// The pending StartIncident sends the stop once its start request
		// has completed.
		c.emit(Event{Status: "Stopped sharing."})
		return nil
	}
	c.notifyStop(ctx, c.reporters(serverURL, token), incidentID)
	return nil
}

func (c *Controller) notifyStop(ctx context.Context, rep Reporter, incidentID string) {
	_, err := rep.StopIncident(ctx, client.IncidentStop{IncidentID: incidentID})
	if err != nil {
		log.Printf("incident stop failed: %v", err)
		c.emit(Event{Message: "Error stopping incident: " + err.Error(), Status: "Stopped sharing.", Err: err})
		return
	}
	c.emit(Event{Message: "Notified server to stop incident.", Status: "Stopped sharing."})
}

// Wait blocks until every in-flight update send has finished.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close stops any active watch, waits for in-flight sends and releases the
// controller. It does not notify the server.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.sess.watch != nil {
		c.sess.watch.Stop()
		c.sess.watch = nil
	}
	c.mu.Unlock()
	c.inflight.Wait()
	c.cancel()
}

// nextIncidentIDLocked returns "inc-<unix millis>", strictly increasing
// within the process even when two starts share a millisecond.
func (c *Controller) nextIncidentIDLocked() string {
	ms := c.now().UnixMilli()
	if ms <= c.lastMillis {
		ms = c.lastMillis + 1
	}
	c.lastMillis = ms
	return "inc-" + strconv.FormatInt(ms, 10)
}

func (c *Controller) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = c.now()
	}
	c.mu.Lock()
	ev.Phase = c.phase
	c.mu.Unlock()
	c.observe(ev)
}
