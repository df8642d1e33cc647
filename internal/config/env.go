package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by the server.
const (
	EnvJWTSecret   = "JWT_SECRET"
	EnvDatabaseURL = "DATABASE_URL"
	EnvMapsAPIKey  = "MAPS_API_KEY"
	EnvPort        = "PORT"
	EnvTwilioSID   = "TW_SID"
	EnvTwilioToken = "TW_TOKEN"
	EnvTwilioFrom  = "TW_FROM"
)

// ReadEnv returns the variables of the dotenv file at path overlaid with the
// process environment. A missing file is not an error.
func ReadEnv(path string) (map[string]string, error) {
	env := map[string]string{}
	if path != "" {
		fileEnv, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for _, k := range []string{EnvJWTSecret, EnvDatabaseURL, EnvMapsAPIKey, EnvPort, EnvTwilioSID, EnvTwilioToken, EnvTwilioFrom} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv overrides server settings from env. DATABASE_URL switches the
// store to postgres.
func (c *Config) ApplyEnv(env map[string]string) {
	if v := env[EnvJWTSecret]; v != "" {
		c.Auth.JWTSecret = v
	}
	if v := env[EnvDatabaseURL]; v != "" {
		c.Store.Driver = DriverPostgres
		c.Store.DSN = v
	}
	if v := env[EnvMapsAPIKey]; v != "" {
		c.Maps.APIKey = v
	}
	if v := env[EnvTwilioSID]; v != "" {
		c.Twilio.AccountSID = v
	}
	if v := env[EnvTwilioToken]; v != "" {
		c.Twilio.AuthToken = v
	}
	if v := env[EnvTwilioFrom]; v != "" {
		c.Twilio.From = v
	}
	if v := env[EnvPort]; v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}
