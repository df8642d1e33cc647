package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lifeline-share/lifeline/internal/location"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
user_id: u1
server_url: https://lifeline.example.org
location:
  source: gpsd
  gpsd_addr: 10.0.0.5:2947
  maximum_age: 5s
server:
  port: 9090
contacts:
  u1:
    - name: Sam
      phone: "+15550100"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.UserID != "u1" || cfg.ServerURL != "https://lifeline.example.org" {
		t.Errorf("identity = %q %q", cfg.UserID, cfg.ServerURL)
	}
	if cfg.Location.Source != SourceGPSD || cfg.Location.GPSDAddr != "10.0.0.5:2947" {
		t.Errorf("location = %+v", cfg.Location)
	}
	if cfg.Location.MaximumAge != 5*time.Second {
		t.Errorf("maximum_age = %v, want 5s", cfg.Location.MaximumAge)
	}
	// Unset keys keep their defaults.
	if cfg.Location.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want default 10s", cfg.Location.Timeout)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if got := cfg.Contacts["u1"]; len(got) != 1 || got[0].Phone != "+15550100" {
		t.Errorf("contacts = %+v", cfg.Contacts)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Location.Source != SourceSimulator {
		t.Errorf("default source = %q", cfg.Location.Source)
	}
	if cfg.WatchOptions() != location.DefaultOptions() {
		t.Errorf("default watch options = %+v", cfg.WatchOptions())
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateClientAggregates(t *testing.T) {
	cfg := Default()
	cfg.ServerURL = "ftp://nowhere"
	cfg.Location.Origin.Lat = 123
	cfg.Location.Timeout = -time.Second

	err := cfg.ValidateClient()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"server_url", "origin.lat", "timeout"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidateClientSources(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"gpsd without addr", func(c *Config) { c.Location.Source = SourceGPSD; c.Location.GPSDAddr = "" }, true},
		{"replay without file", func(c *Config) { c.Location.Source = SourceReplay }, true},
		{"replay with file", func(c *Config) { c.Location.Source = SourceReplay; c.Location.ReplayFile = "walk.jsonl" }, false},
		{"unknown source", func(c *Config) { c.Location.Source = "compass" }, true},
		{"empty server url allowed", func(c *Config) { c.ServerURL = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.ValidateClient(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateClient() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Store.Driver = DriverPostgres
	cfg.Auth.JWTSecret = ""
	cfg.Contacts = map[string][]ContactSpec{"u1": {{Name: "nobody"}}}
	cfg.Twilio = TwilioConfig{AccountSID: "AC123", AuthToken: "secret"}
	err := cfg.ValidateServer()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"store.dsn", "jwt_secret", "contacts.u1[0]", "twilio.from"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestNewSource(t *testing.T) {
	cfg := Default()
	for _, name := range []string{SourceSimulator, SourceGPSD, SourceReplay} {
		cfg.Location.Source = name
		if _, err := cfg.NewSource(); err != nil {
			t.Errorf("NewSource(%s): %v", name, err)
		}
	}
	cfg.Location.Source = SourceReplay
	cfg.Location.ReplayLoop = true
	src, _ := cfg.NewSource()
	if r, ok := src.(*location.Replay); !ok || !r.Loop {
		t.Errorf("replay source = %#v, want looping replay", src)
	}

	cfg.Location.Source = "compass"
	if _, err := cfg.NewSource(); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestReadAndApplyEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("JWT_SECRET=from-file\nDATABASE_URL=postgres://db/lifeline\nPORT=7000\nTW_SID=AC123\nTW_TOKEN=tw-secret\nTW_FROM=+15550199\n"), 0o644)
	t.Setenv(EnvMapsAPIKey, "maps-key")

	env, err := ReadEnv(path)
	if err != nil {
		t.Fatalf("ReadEnv: %v", err)
	}

	cfg := Default()
	cfg.ApplyEnv(env)
	if cfg.Auth.JWTSecret != "from-file" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Store.Driver != DriverPostgres || cfg.Store.DSN != "postgres://db/lifeline" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Maps.APIKey != "maps-key" {
		t.Errorf("maps key = %q", cfg.Maps.APIKey)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if !cfg.Twilio.Enabled() || cfg.Twilio.From != "+15550199" {
		t.Errorf("twilio = %+v", cfg.Twilio)
	}
}

func TestReadEnvMissingFile(t *testing.T) {
	if _, err := ReadEnv(filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatalf("missing dotenv should be ignored, got %v", err)
	}
}
