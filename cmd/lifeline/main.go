package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lifeline-share/lifeline/internal/app"
	"github.com/lifeline-share/lifeline/internal/config"
	"github.com/lifeline-share/lifeline/internal/session"
)

const defaultServerURL = "http://127.0.0.1:5000"

func main() {
	configPath := flag.String("config", "lifeline.yaml", "Path to config file")
	userID := flag.String("user", "", "User id (overrides config)")
	serverURL := flag.String("server", "", "Incident server URL (overrides config)")
	source := flag.String("source", "", "Location source: simulator, gpsd or replay (overrides config)")
	logFile := flag.String("log", "", "Debug log file (overrides config)")
	flag.Parse()

	opts := overrides{
		userID:    *userID,
		serverURL: *serverURL,
		source:    *source,
		logFile:   *logFile,
	}
	if err := run(*configPath, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type overrides struct {
	userID, serverURL, source, logFile string
}

// run returns instead of exiting so the log file is closed on every path.
func run(configPath string, o overrides) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if o.userID != "" {
		cfg.UserID = o.userID
	}
	if o.serverURL != "" {
		cfg.ServerURL = o.serverURL
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	if o.source != "" {
		cfg.Location.Source = o.source
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "lifeline.log"
	}

	if err := cfg.ValidateClient(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// The TUI owns the terminal, so diagnostics go to a file.
	f, err := tea.LogToFile(cfg.LogFile, "lifeline")
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := cfg.NewSource()
	if err != nil {
		// The controller reports a missing source when sharing starts.
		log.Printf("location source: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan session.Event, 256)
	ctrl := session.NewController(session.Options{
		Source: src,
		Watch:  cfg.WatchOptions(),
		Observer: func(ev session.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		},
	})

	log.Printf("starting: user=%q server=%s source=%s", cfg.UserID, cfg.ServerURL, cfg.Location.Source)

	m := app.New(ctrl, events, cfg.UserID, cfg.ServerURL)
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, runErr := p.Run()

	// Unblock observers before waiting for in-flight sends.
	cancel()
	ctrl.Close()

	if runErr != nil {
		log.Printf("program: %v", runErr)
	}
	return runErr
}
