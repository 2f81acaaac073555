package engine

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDraftNotFound is returned by Get lookups that match no row.
var ErrDraftNotFound = errors.New("engine: draft not found")

// SQL statements for draft repository operations.
const (
	sqlDraftColumns = `client_draft_id, emergency_report_id, status, updated_at,
		synced, last_sync_error, submitted_at, internal_report_id,
		patients_payload, incident_payload, injury_payload, notes, revision`

	sqlGetDraft = `SELECT ` + sqlDraftColumns + ` FROM drafts WHERE client_draft_id = ?`

	sqlGetDraftByIncident = `SELECT ` + sqlDraftColumns +
		` FROM drafts WHERE emergency_report_id = ? LIMIT 1`

	sqlListDrafts = `SELECT ` + sqlDraftColumns + ` FROM drafts ORDER BY rowid`

	sqlUpsertDraft = `INSERT INTO drafts (` + sqlDraftColumns + `, row_created_at, row_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_draft_id) DO UPDATE SET
			emergency_report_id = excluded.emergency_report_id,
			status              = excluded.status,
			updated_at          = excluded.updated_at,
			synced              = excluded.synced,
			last_sync_error     = excluded.last_sync_error,
			submitted_at        = excluded.submitted_at,
			internal_report_id  = excluded.internal_report_id,
			patients_payload    = excluded.patients_payload,
			incident_payload    = excluded.incident_payload,
			injury_payload      = excluded.injury_payload,
			notes               = excluded.notes,
			revision            = excluded.revision,
			row_updated_at      = excluded.row_updated_at`

	sqlDeleteDraft = `DELETE FROM drafts WHERE client_draft_id = ?`
)

// SQLiteStore implements Store on an embedded SQLite database in WAL mode.
// The database is a durable offline cache of draft state, keyed by
// client_draft_id.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// NewSQLiteStore opens the database at dbPath, runs migrations, and returns
// a ready store. Use a path under t.TempDir() for tests.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("draft repository ready", slog.String("db_path", dbPath))

	return &SQLiteStore{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("engine: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("engine: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("engine: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetDraft returns the draft with the given client id, or ErrDraftNotFound.
func (s *SQLiteStore) GetDraft(ctx context.Context, clientDraftID string) (*Draft, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, sqlGetDraft, clientDraftID))
}

// GetDraftByIncident returns the draft backing the given incident, or
// ErrDraftNotFound. The merge invariant keeps this at most one row.
func (s *SQLiteStore) GetDraftByIncident(ctx context.Context, emergencyReportID string) (*Draft, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, sqlGetDraftByIncident, emergencyReportID))
}

// ListDrafts returns every stored draft in insertion order.
func (s *SQLiteStore) ListDrafts(ctx context.Context) ([]Draft, error) {
	rows, err := s.db.QueryContext(ctx, sqlListDrafts)
	if err != nil {
		return nil, fmt.Errorf("engine: listing drafts: %w", err)
	}
	defer rows.Close()

	var drafts []Draft

	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}

		drafts = append(drafts, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engine: iterating drafts: %w", err)
	}

	return drafts, nil
}

// UpsertDraft inserts or replaces a draft row.
func (s *SQLiteStore) UpsertDraft(ctx context.Context, draft *Draft) error {
	patients, incident, injuries, err := encodePayloads(draft)
	if err != nil {
		return err
	}

	now := s.nowFunc().UnixNano()

	_, err = s.db.ExecContext(ctx, sqlUpsertDraft,
		draft.ClientDraftID,
		draft.EmergencyReportID,
		string(draft.Status),
		draft.UpdatedAt,
		boolToInt(draft.Synced),
		draft.LastSyncError,
		draft.SubmittedAt,
		draft.InternalReportID,
		patients,
		incident,
		injuries,
		draft.Notes,
		draft.Revision,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("engine: upserting draft %s: %w", draft.ClientDraftID, err)
	}

	return nil
}

// DeleteDraft removes a draft row. Deleting a missing row is not an error.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, clientDraftID string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteDraft, clientDraftID); err != nil {
		return fmt.Errorf("engine: deleting draft %s: %w", clientDraftID, err)
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanDraft.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*Draft, error) {
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDraftNotFound
	}

	return d, err
}

// scanDraft reads one drafts row, decoding the JSON payload columns.
func scanDraft(row rowScanner) (*Draft, error) {
	var (
		d          Draft
		status     string
		synced     int
		internalID sql.NullInt64
		patients   string
		incident   sql.NullString
		injuries   string
	)

	err := row.Scan(
		&d.ClientDraftID,
		&d.EmergencyReportID,
		&status,
		&d.UpdatedAt,
		&synced,
		&d.LastSyncError,
		&d.SubmittedAt,
		&internalID,
		&patients,
		&incident,
		&injuries,
		&d.Notes,
		&d.Revision,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("engine: scanning draft row: %w", err)
	}

	d.Status = NormalizeStatus(status)
	d.Synced = synced != 0

	if internalID.Valid {
		d.InternalReportID = &internalID.Int64
	}

	if err := json.Unmarshal([]byte(patients), &d.Patients); err != nil {
		return nil, fmt.Errorf("engine: decoding patients payload for %s: %w", d.ClientDraftID, err)
	}

	if incident.Valid && incident.String != "" {
		var det IncidentDetails
		if err := json.Unmarshal([]byte(incident.String), &det); err != nil {
			return nil, fmt.Errorf("engine: decoding incident payload for %s: %w", d.ClientDraftID, err)
		}

		d.Incident = &det
	}

	if err := json.Unmarshal([]byte(injuries), &d.Injuries); err != nil {
		return nil, fmt.Errorf("engine: decoding injury payload for %s: %w", d.ClientDraftID, err)
	}

	return &d, nil
}

// encodePayloads renders the draft's payload sections as JSON column values.
func encodePayloads(draft *Draft) (patients string, incident sql.NullString, injuries string, err error) {
	pl := draft.Patients
	if pl == nil {
		pl = PatientList{}
	}

	pb, err := json.Marshal(pl)
	if err != nil {
		return "", sql.NullString{}, "", fmt.Errorf("engine: encoding patients payload: %w", err)
	}

	if draft.Incident != nil {
		ib, err := json.Marshal(draft.Incident)
		if err != nil {
			return "", sql.NullString{}, "", fmt.Errorf("engine: encoding incident payload: %w", err)
		}

		incident = sql.NullString{String: string(ib), Valid: true}
	}

	jb, err := json.Marshal(draft.Injuries)
	if err != nil {
		return "", sql.NullString{}, "", fmt.Errorf("engine: encoding injury payload: %w", err)
	}

	return string(pb), incident, string(jb), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
