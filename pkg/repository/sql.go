package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const columns = `id, session_id, created_at, call_date, call_type, notes, participants, note_types,
	minutes_elapsed, title, transcription, note_type_responses, token_usage, audio_file_url`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS call_records (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL,
	created_at          TIMESTAMP NOT NULL,
	call_date           TIMESTAMP NOT NULL,
	call_type           TEXT NOT NULL DEFAULT '',
	notes               TEXT NOT NULL DEFAULT '',
	participants        TEXT NOT NULL,
	note_types          TEXT NOT NULL,
	minutes_elapsed     REAL NOT NULL DEFAULT 0,
	title               TEXT NOT NULL,
	transcription       TEXT NOT NULL,
	note_type_responses TEXT NOT NULL,
	token_usage         TEXT NOT NULL,
	audio_file_url      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_call_records_created_at ON call_records (created_at);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS call_records (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	call_date           TIMESTAMPTZ NOT NULL,
	call_type           TEXT NOT NULL DEFAULT '',
	notes               TEXT NOT NULL DEFAULT '',
	participants        JSONB NOT NULL,
	note_types          JSONB NOT NULL,
	minutes_elapsed     DOUBLE PRECISION NOT NULL DEFAULT 0,
	title               TEXT NOT NULL,
	transcription       JSONB NOT NULL,
	note_type_responses JSONB NOT NULL,
	token_usage         JSONB NOT NULL,
	audio_file_url      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_call_records_created_at ON call_records (created_at);`

// SQLRepository stores records in SQLite or PostgreSQL. Composite fields
// are stored as JSON text.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// Open connects with database/sql. The driver package must be linked in
// by the caller.
func Open(driver, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	repo, err := NewSQLRepository(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func NewSQLRepository(db *sql.DB, driver string) (*SQLRepository, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return &SQLRepository{db: db, driver: driver}, nil
}

// Migrate creates the schema if it does not exist.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if r.driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) Save(ctx context.Context, record *CallRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	participants, err := marshalColumn(record.Participants)
	if err != nil {
		return "", err
	}
	noteTypes, err := marshalColumn(record.NoteTypes)
	if err != nil {
		return "", err
	}
	transcription, err := marshalColumn(record.Transcription)
	if err != nil {
		return "", err
	}
	responses, err := marshalColumn(record.NoteTypeResponses)
	if err != nil {
		return "", err
	}
	usage, err := marshalColumn(record.TokenUsage)
	if err != nil {
		return "", err
	}

	query := r.rebind(`INSERT INTO call_records (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.SessionID, record.CreatedAt, record.Date, record.CallType, record.Notes,
		participants, noteTypes, record.MinutesElapsed, record.Title, transcription, responses,
		usage, record.AudioFileURL)
	if err != nil {
		return "", fmt.Errorf("insert call record: %w", err)
	}
	return record.ID, nil
}

func (r *SQLRepository) Get(ctx context.Context, id string) (*CallRecord, error) {
	query := r.rebind(`SELECT ` + columns + ` FROM call_records WHERE id = ?`)
	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query call record %s: %w", id, err)
	}
	return record, nil
}

func (r *SQLRepository) List(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.rebind(`SELECT ` + columns + ` FROM call_records ORDER BY created_at DESC LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	records := make([]CallRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db scan failed: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*CallRecord, error) {
	var (
		rec                                                      CallRecord
		participants, noteTypes, transcription, responses, usage []byte
	)
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.CreatedAt, &rec.Date, &rec.CallType, &rec.Notes,
		&participants, &noteTypes, &rec.MinutesElapsed, &rec.Title, &transcription, &responses,
		&usage, &rec.AudioFileURL)
	if err != nil {
		return nil, err
	}

	for _, col := range []struct {
		name string
		data []byte
		dst  interface{}
	}{
		{"participants", participants, &rec.Participants},
		{"note_types", noteTypes, &rec.NoteTypes},
		{"transcription", transcription, &rec.Transcription},
		{"note_type_responses", responses, &rec.NoteTypeResponses},
		{"token_usage", usage, &rec.TokenUsage},
	} {
		if err := json.Unmarshal(col.data, col.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", col.name, err)
		}
	}
	return &rec, nil
}

func marshalColumn(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode column: %w", err)
	}
	return string(data), nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
