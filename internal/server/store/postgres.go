package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS consents (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	consent_text TEXT NOT NULL,
	ts           TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS incidents (
	incident_id TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	stopped_at  TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS locations (
	id          BIGSERIAL PRIMARY KEY,
	incident_id TEXT NOT NULL,
	lat         DOUBLE PRECISION NOT NULL,
	lon         DOUBLE PRECISION NOT NULL,
	accuracy    DOUBLE PRECISION NOT NULL DEFAULT 0,
	ts          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS locations_incident_id ON locations (incident_id, id);
CREATE TABLE IF NOT EXISTS contacts (
	user_id TEXT NOT NULL,
	name    TEXT NOT NULL,
	phone   TEXT,
	email   TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS contacts_identity
	ON contacts (user_id, name, COALESCE(phone, ''), COALESCE(email, ''));
`

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	querier *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{querier: pool}, nil
}

func (p *Postgres) RecordConsent(ctx context.Context, c Consent) error {
	query := `INSERT INTO consents (id, user_id, consent_text, ts) VALUES ($1, $2, $3, $4)`
	if _, err := p.querier.Exec(ctx, query, c.ID, c.UserID, c.ConsentText, c.RecordedAt); err != nil {
		return fmt.Errorf("record consent: %w", err)
	}
	return nil
}

func (p *Postgres) StartIncident(ctx context.Context, inc Incident) error {
	query := `
		INSERT INTO incidents (incident_id, user_id, started_at, stopped_at)
		VALUES ($1, $2, $3, NULL)
		ON CONFLICT (incident_id) DO UPDATE
			SET user_id = EXCLUDED.user_id,
				started_at = EXCLUDED.started_at,
				stopped_at = NULL`
	if _, err := p.querier.Exec(ctx, query, inc.IncidentID, inc.UserID, inc.StartedAt); err != nil {
		return fmt.Errorf("start incident: %w", err)
	}
	return nil
}

func (p *Postgres) SaveLocation(ctx context.Context, loc Location) (int, error) {
	tx, err := p.querier.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("save location: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO locations (incident_id, lat, lon, accuracy, ts) VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, query, loc.IncidentID, loc.Lat, loc.Lon, loc.Accuracy, loc.Timestamp); err != nil {
		return 0, fmt.Errorf("save location: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM locations WHERE incident_id = $1`, loc.IncidentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count locations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("save location: %w", err)
	}
	return count, nil
}

func (p *Postgres) StopIncident(ctx context.Context, incidentID string, at time.Time) error {
	query := `UPDATE incidents SET stopped_at = $1 WHERE incident_id = $2`
	if _, err := p.querier.Exec(ctx, query, at, incidentID); err != nil {
		return fmt.Errorf("stop incident: %w", err)
	}
	return nil
}

func (p *Postgres) GetIncident(ctx context.Context, incidentID string) (Incident, bool, error) {
	query := `SELECT incident_id, user_id, started_at, stopped_at FROM incidents WHERE incident_id = $1`
	rows, err := p.querier.Query(ctx, query, incidentID)
	if err != nil {
		return Incident{}, false, fmt.Errorf("get incident: %w", err)
	}

	inc, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Incident])
	if errors.Is(err, pgx.ErrNoRows) {
		return Incident{}, false, nil
	}
	if err != nil {
		return Incident{}, false, fmt.Errorf("get incident: %w", err)
	}
	return inc, true, nil
}

func (p *Postgres) Report(ctx context.Context, incidentID string) ([]Location, error) {
	query := `
		SELECT incident_id, lat, lon, accuracy, ts
		FROM locations
		WHERE incident_id = $1
		ORDER BY id ASC`
	rows, err := p.querier.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	locs, err := pgx.CollectRows(rows, pgx.RowToStructByName[Location])
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	if locs == nil {
		locs = []Location{}
	}
	return locs, nil
}

func (p *Postgres) AddContact(ctx context.Context, c Contact) error {
	query := `INSERT INTO contacts (user_id, name, phone, email) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT DO NOTHING`
	if _, err := p.querier.Exec(ctx, query, c.UserID, c.Name, c.Phone, c.Email); err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	return nil
}

func (p *Postgres) Contacts(ctx context.Context, userID string) ([]Contact, error) {
	query := `
		SELECT user_id, name, COALESCE(phone, '') AS phone, COALESCE(email, '') AS email
		FROM contacts
		WHERE user_id = $1`
	rows, err := p.querier.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("contacts: %w", err)
	}

	contacts, err := pgx.CollectRows(rows, pgx.RowToStructByName[Contact])
	if err != nil {
		return nil, fmt.Errorf("contacts: %w", err)
	}
	return contacts, nil
}

func (p *Postgres) Close() {
	p.querier.Close()
}
