package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lifeline-share/lifeline/internal/config"
	"github.com/lifeline-share/lifeline/internal/server"
	"github.com/lifeline-share/lifeline/internal/server/store"
)

func main() {
	configPath := flag.String("config", "lifeline-server.yaml", "Path to config file")
	envPath := flag.String("env", ".env", "Path to dotenv file")
	port := flag.Int("port", 0, "Override server port")
	host := flag.String("host", "", "Override listen host")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, *envPath, *host, *port, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(configPath, envPath, host string, port int, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env, err := config.ReadEnv(envPath)
	if err != nil {
		return fmt.Errorf("read env: %w", err)
	}
	cfg.ApplyEnv(env)

	if port > 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	for userID, contacts := range cfg.Contacts {
		for _, c := range contacts {
			if err := st.AddContact(ctx, store.Contact{UserID: userID, Name: c.Name, Phone: c.Phone, Email: c.Email}); err != nil {
				return fmt.Errorf("seed contacts: %w", err)
			}
		}
	}

	opts := server.Options{
		Store:  st,
		Tokens: server.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Logger: logger,
	}
	if cfg.Twilio.Enabled() {
		opts.Notifier = server.NewTwilioNotifier(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, logger)
		logger.Info("SMS alerts enabled", "from", cfg.Twilio.From)
	}
	if cfg.Maps.APIKey != "" {
		geocoder, err := server.NewMapsGeocoder(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		opts.Geocoder = geocoder
	}
	if cfg.Auth.JWTSecret == "dev-secret" {
		logger.Warn("using the development JWT secret; set JWT_SECRET in production")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := server.New(opts).Run(ctx, addr); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("Shut down")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		slog.Info("Using postgres store")
		return pg, nil
	default:
		slog.Info("Using in-memory store")
		return store.NewMemory(), nil
	}
}
