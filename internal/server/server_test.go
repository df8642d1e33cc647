package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lifeline-share/lifeline/internal/client"
	"github.com/lifeline-share/lifeline/internal/server/store"
)

const testSecret = "test-secret"

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) Alerts() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.alerts...)
}

type fakeGeocoder struct {
	addr string
	err  error
}

func (g fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return g.addr, g.err
}

type testServer struct {
	*httptest.Server
	store    *store.Memory
	notifier *recordingNotifier
	tokens   *Tokens
}

func newTestServer(t *testing.T, geocoder Geocoder) *testServer {
	t.Helper()
	ts := &testServer{
		store:    store.NewMemory(),
		notifier: &recordingNotifier{},
		tokens:   NewTokens(testSecret, time.Hour),
	}
	srv := New(Options{
		Store:    ts.store,
		Tokens:   ts.tokens,
		Notifier: ts.notifier,
		Geocoder: geocoder,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts.Server = httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) post(t *testing.T, path, token, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.send(t, req)
}

func (ts *testServer) get(t *testing.T, path, token string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("decode %s: %v", req.URL.Path, err)
	}
	return resp.StatusCode, body
}

func (ts *testServer) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := ts.tokens.Issue(user)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	code, body := ts.get(t, "/health", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", code, body)
	}
}

func TestRegisterConsent(t *testing.T) {
	ts := newTestServer(t, nil)

	code, body := ts.post(t, client.PathConsentRegister, "", `{"user_id":"alice","consent_text":"I agree"}`)
	if code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", code)
	}
	if body["status"] != "consent_recorded" {
		t.Errorf("status field = %v", body["status"])
	}
	tok, _ := body["token"].(string)
	sub, err := ts.tokens.Verify(tok)
	if err != nil || sub != "alice" {
		t.Errorf("Verify(token) = %q, %v", sub, err)
	}

	consents := ts.store.Consents()
	if len(consents) != 1 || consents[0].ConsentText != "I agree" || consents[0].ID == "" {
		t.Errorf("consents = %+v", consents)
	}
}

func TestBadPayload(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, "alice")

	tests := []struct {
		name string
		path string
		body string
	}{
		{"consent empty body", client.PathConsentRegister, ""},
		{"consent invalid json", client.PathConsentRegister, "{"},
		{"consent missing text", client.PathConsentRegister, `{"user_id":"alice"}`},
		{"start missing user", client.PathIncidentStart, `{"incident_id":"inc-1"}`},
		{"start null body", client.PathIncidentStart, `null`},
		{"update missing lat", client.PathIncidentUpdate, `{"incident_id":"inc-1","user_id":"alice","lon":1,"timestamp":"t"}`},
		{"update missing timestamp", client.PathIncidentUpdate, `{"incident_id":"inc-1","user_id":"alice","lat":1,"lon":1}`},
		{"update wrong type", client.PathIncidentUpdate, `{"incident_id":"inc-1","user_id":"alice","lat":"north","lon":1,"timestamp":"t"}`},
		{"stop missing id", client.PathIncidentStop, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := ts.post(t, tt.path, tok, tt.body)
			if code != http.StatusBadRequest || body["error"] != "bad_payload" {
				t.Errorf("got %d %v, want 400 bad_payload", code, body)
			}
		})
	}
}

func TestUnauthorized(t *testing.T) {
	ts := newTestServer(t, nil)

	expired := NewTokens(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredTok, _ := expired.Issue("alice")

	foreignTok, _ := NewTokens("other-secret", time.Hour).Issue("alice")

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expiredTok},
		{"wrong secret", foreignTok},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{client.PathIncidentStart, client.PathIncidentUpdate, client.PathIncidentStop} {
				code, body := ts.post(t, path, tt.token, `{"incident_id":"inc-1","user_id":"alice"}`)
				if code != http.StatusUnauthorized || body["error"] != "unauthorized" {
					t.Errorf("%s: got %d %v, want 401", path, code, body)
				}
			}
			if code, _ := ts.get(t, "/v1/incident/inc-1/report", tt.token); code != http.StatusUnauthorized {
				t.Errorf("report: got %d, want 401", code)
			}
		})
	}
}

func TestIncidentLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, "alice")

	code, body := ts.post(t, client.PathIncidentStart, tok, `{"incident_id":"inc-1","user_id":"alice","timestamp":"2025-01-01T00:00:00.000Z"}`)
	if code != http.StatusCreated || body["status"] != "incident_started" {
		t.Fatalf("start = %d %v", code, body)
	}

	updates := []string{
		`{"incident_id":"inc-1","user_id":"alice","lat":1.5,"lon":2.5,"accuracy":7,"timestamp":"2025-01-01T00:00:01.000Z"}`,
		`{"incident_id":"inc-1","user_id":"alice","lat":1.6,"lon":2.6,"timestamp":"2025-01-01T00:00:02.000Z"}`,
	}
	for _, u := range updates {
		code, body := ts.post(t, client.PathIncidentUpdate, tok, u)
		if code != http.StatusCreated || body["status"] != "location_saved" {
			t.Fatalf("update = %d %v", code, body)
		}
	}

	code, body = ts.post(t, client.PathIncidentStop, tok, `{"incident_id":"inc-1"}`)
	if code != http.StatusOK || body["status"] != "stopped" {
		t.Fatalf("stop = %d %v", code, body)
	}
	report, _ := body["report"].([]interface{})
	if len(report) != 2 {
		t.Fatalf("report = %v", body["report"])
	}
	first := report[0].(map[string]interface{})
	second := report[1].(map[string]interface{})
	if first["lat"] != 1.5 || first["accuracy"] != 7.0 || first["ts"] != "2025-01-01T00:00:01.000Z" {
		t.Errorf("first entry = %v", first)
	}
	if second["accuracy"] != 0.0 {
		t.Errorf("missing accuracy should default to 0, got %v", second["accuracy"])
	}

	inc, ok, _ := ts.store.GetIncident(context.Background(), "inc-1")
	if !ok || inc.StoppedAt == nil {
		t.Errorf("incident not stopped: %+v", inc)
	}

	code, body = ts.get(t, "/v1/incident/inc-1/report", tok)
	if code != http.StatusOK || body["incident_id"] != "inc-1" {
		t.Fatalf("report = %d %v", code, body)
	}
	if got := body["report"].([]interface{}); len(got) != 2 {
		t.Errorf("report length = %d", len(got))
	}
}

func TestStopUnknownIncident(t *testing.T) {
	ts := newTestServer(t, nil)
	code, body := ts.post(t, client.PathIncidentStop, ts.token(t, "alice"), `{"incident_id":"inc-missing"}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if report, ok := body["report"].([]interface{}); !ok || len(report) != 0 {
		t.Errorf("report = %#v, want empty list", body["report"])
	}
}

func TestFirstLocationAlertsContacts(t *testing.T) {
	ts := newTestServer(t, fakeGeocoder{addr: "10 Downing St"})
	ctx := context.Background()
	ts.store.AddContact(ctx, store.Contact{UserID: "alice", Name: "Bob", Phone: "+15550100"})
	tok := ts.token(t, "alice")

	for i := 0; i < 3; i++ {
		ts.post(t, client.PathIncidentUpdate, tok, `{"incident_id":"inc-1","user_id":"alice","lat":51.5,"lon":-0.12,"timestamp":"t"}`)
	}

	alerts := ts.notifier.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly one", len(alerts))
	}
	a := alerts[0]
	if a.IncidentID != "inc-1" || a.Address != "10 Downing St" || len(a.Contacts) != 1 {
		t.Errorf("alert = %+v", a)
	}
	if want := "https://www.google.com/maps/search/?api=1&query=51.5,-0.12"; a.MapsLink() != want {
		t.Errorf("link = %q, want %q", a.MapsLink(), want)
	}

	// A different incident alerts again.
	ts.post(t, client.PathIncidentUpdate, tok, `{"incident_id":"inc-2","user_id":"alice","lat":1,"lon":2,"timestamp":"t"}`)
	if got := len(ts.notifier.Alerts()); got != 2 {
		t.Errorf("alerts after second incident = %d, want 2", got)
	}
}

func TestNoContactsNoAlert(t *testing.T) {
	ts := newTestServer(t, fakeGeocoder{err: errors.New("quota")})
	ts.post(t, client.PathIncidentUpdate, ts.token(t, "carol"), `{"incident_id":"inc-1","user_id":"carol","lat":1,"lon":2,"timestamp":"t"}`)
	if got := len(ts.notifier.Alerts()); got != 0 {
		t.Errorf("alerts = %d, want 0", got)
	}
}

func TestAlertText(t *testing.T) {
	a := Alert{UserID: "alice", Lat: 1.25, Lon: -2.5}
	want := "EMERGENCY: alice triggered an incident. Location: https://www.google.com/maps/search/?api=1&query=1.25,-2.5"
	if got := a.Text(); got != want {
		t.Errorf("Text() = %q", got)
	}
	a.Address = "Main St"
	if !strings.HasSuffix(a.Text(), "(near Main St)") {
		t.Errorf("Text() = %q", a.Text())
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	err := n.Notify(context.Background(), Alert{
		UserID:     "alice",
		IncidentID: "inc-1",
		Contacts: []store.Contact{
			{Name: "Bob", Phone: "+15550100"},
			{Name: "Nobody"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Bob") || strings.Contains(out, "Nobody") {
		t.Errorf("unexpected log output: %s", out)
	}
}

type liveMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func TestLiveFeed(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, "alice")

	ts.post(t, client.PathIncidentUpdate, tok, `{"incident_id":"inc-1","user_id":"alice","lat":1,"lon":2,"timestamp":"t1"}`)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/incident/inc-1/live?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg liveMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap client.ReportResponse
	json.Unmarshal(msg.Payload, &snap)
	if msg.Type != "snapshot" || len(snap.Report) != 1 || snap.Report[0].TS != "t1" {
		t.Fatalf("snapshot = %s %s", msg.Type, msg.Payload)
	}

	ts.post(t, client.PathIncidentUpdate, tok, `{"incident_id":"inc-1","user_id":"alice","lat":3,"lon":4,"accuracy":9,"timestamp":"t2"}`)
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read location: %v", err)
	}
	var entry client.ReportEntry
	json.Unmarshal(msg.Payload, &entry)
	if msg.Type != "location" || entry.Lat != 3 || entry.Accuracy != 9 || entry.TS != "t2" {
		t.Errorf("location = %s %s", msg.Type, msg.Payload)
	}

	ts.post(t, client.PathIncidentStop, tok, `{"incident_id":"inc-1"}`)
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read stopped: %v", err)
	}
	if msg.Type != "stopped" {
		t.Errorf("type = %s, want stopped", msg.Type)
	}
}

func TestLiveFeedRequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/incident/inc-1/live"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.org", true},
		{"http://example.org", "example.org", true},
		{"http://localhost:3000", "example.org", true},
		{"http://127.0.0.1:8080", "example.org", true},
		{"http://evil.test", "example.org", false},
		{"::not a url", "example.org", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://"+tt.host+"/", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestRunShutsDown(t *testing.T) {
	srv := New(Options{
		Store:  store.NewMemory(),
		Tokens: NewTokens(testSecret, time.Hour),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRequiresStore(t *testing.T) {
	if err := New(Options{}).Run(context.Background(), "127.0.0.1:0"); !errors.Is(err, ErrStoreRequired) {
		t.Errorf("Run() = %v, want ErrStoreRequired", err)
	}
}
