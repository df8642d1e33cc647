package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/lifeline-share/lifeline/internal/location"
)

// Location source names.
const (
	SourceSimulator = "simulator"
	SourceGPSD      = "gpsd"
	SourceReplay    = "replay"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is shared by the terminal client and the demo server; each reads
// the sections it needs.
type Config struct {
	UserID    string                   `yaml:"user_id"`
	ServerURL string                   `yaml:"server_url"`
	LogFile   string                   `yaml:"log_file"`
	Location  LocationConfig           `yaml:"location"`
	Server    ServerConfig             `yaml:"server"`
	Auth      AuthConfig               `yaml:"auth"`
	Store     StoreConfig              `yaml:"store"`
	Maps      MapsConfig               `yaml:"maps"`
	Twilio    TwilioConfig             `yaml:"twilio"`
	Contacts  map[string][]ContactSpec `yaml:"contacts"`
}

type LocationConfig struct {
	Source       string        `yaml:"source"`
	HighAccuracy bool          `yaml:"high_accuracy"`
	MaximumAge   time.Duration `yaml:"maximum_age"`
	Timeout      time.Duration `yaml:"timeout"`
	Interval     time.Duration `yaml:"interval"`
	Origin       Origin        `yaml:"origin"`
	GPSDAddr     string        `yaml:"gpsd_addr"`
	ReplayFile   string        `yaml:"replay_file"`
	ReplayLoop   bool          `yaml:"replay_loop"`
}

type Origin struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type MapsConfig struct {
	APIKey string `yaml:"api_key"`
}

// TwilioConfig enables SMS alerts when both credentials are set.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
}

// Enabled reports whether SMS alerts are configured.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != ""
}

// ContactSpec is an emergency contact notified when an incident reports its
// first location.
type ContactSpec struct {
	Name  string `yaml:"name"`
	Phone string `yaml:"phone"`
	Email string `yaml:"email"`
}

func defaultConfig() *Config {
	opts := location.DefaultOptions()
	return &Config{
		Location: LocationConfig{
			Source:       SourceSimulator,
			HighAccuracy: opts.HighAccuracy,
			MaximumAge:   opts.MaximumAge,
			Timeout:      opts.Timeout,
			Interval:     2 * time.Second,
			Origin:       Origin{Lat: 51.5072, Lon: -0.1276},
			GPSDAddr:     location.DefaultGPSDAddr,
		},
		Server: ServerConfig{
			Port: 5000,
			Host: "0.0.0.0",
		},
		Auth: AuthConfig{
			JWTSecret: "dev-secret",
			TokenTTL:  24 * time.Hour,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// WatchOptions converts the location section for location.Source.Watch.
func (c *Config) WatchOptions() location.Options {
	return location.Options{
		HighAccuracy: c.Location.HighAccuracy,
		MaximumAge:   c.Location.MaximumAge,
		Timeout:      c.Location.Timeout,
	}
}

// NewSource builds the configured location source.
func (c *Config) NewSource() (location.Source, error) {
	l := c.Location
	switch l.Source {
	case SourceSimulator, "":
		return location.NewSimulator(l.Origin.Lat, l.Origin.Lon, l.Interval), nil
	case SourceGPSD:
		return location.NewGPSD(l.GPSDAddr), nil
	case SourceReplay:
		r := location.NewReplay(l.ReplayFile, l.Interval)
		r.Loop = l.ReplayLoop
		return r, nil
	default:
		return nil, fmt.Errorf("unknown location source %q", l.Source)
	}
}

// ValidateClient reports every problem with the client sections. The user
// id and server URL may be left empty since they can be typed in the UI.
func (c *Config) ValidateClient() error {
	var result *multierror.Error

	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("server_url %q must be an http(s) URL", c.ServerURL))
		}
	}

	l := c.Location
	switch l.Source {
	case SourceSimulator, "":
		if l.Origin.Lat < -90 || l.Origin.Lat > 90 {
			result = multierror.Append(result, fmt.Errorf("location.origin.lat %v out of range", l.Origin.Lat))
		}
		if l.Origin.Lon < -180 || l.Origin.Lon > 180 {
			result = multierror.Append(result, fmt.Errorf("location.origin.lon %v out of range", l.Origin.Lon))
		}
	case SourceGPSD:
		if l.GPSDAddr == "" {
			result = multierror.Append(result, errors.New("location.gpsd_addr is required for the gpsd source"))
		}
	case SourceReplay:
		if l.ReplayFile == "" {
			result = multierror.Append(result, errors.New("location.replay_file is required for the replay source"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("location.source %q is not one of simulator, gpsd, replay", l.Source))
	}
	if l.MaximumAge < 0 {
		result = multierror.Append(result, errors.New("location.maximum_age must not be negative"))
	}
	if l.Timeout < 0 {
		result = multierror.Append(result, errors.New("location.timeout must not be negative"))
	}

	return result.ErrorOrNil()
}

// ValidateServer reports every problem with the server sections.
func (c *Config) ValidateServer() error {
	var result *multierror.Error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Auth.JWTSecret == "" {
		result = multierror.Append(result, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		result = multierror.Append(result, errors.New("auth.token_ttl must be positive"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			result = multierror.Append(result, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("store.driver %q is not one of memory, postgres", c.Store.Driver))
	}
	if c.Twilio.Enabled() && c.Twilio.From == "" {
		result = multierror.Append(result, errors.New("twilio.from is required when twilio credentials are set"))
	}
	for user, contacts := range c.Contacts {
		for i, ct := range contacts {
			if ct.Phone == "" && ct.Email == "" {
				result = multierror.Append(result, fmt.Errorf("contacts.%s[%d] needs a phone or email", user, i))
			}
		}
	}

	return result.ErrorOrNil()
}
