package stakingd

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ErrIdempotencyMismatch is returned when a key is reused with a different payload.
var ErrIdempotencyMismatch = errors.New("idempotency key reuse with different request body")

// AuditStore persists idempotency keys and an append-only request log.
type AuditStore struct {
	db *sql.DB
}

// StoredResponse is a response recorded for an idempotency key.
type StoredResponse struct {
	Status int
	Body   []byte
}

// AuditEntry is one mutating request and its outcome.
type AuditEntry struct {
	ID             int64     `json:"id"`
	Caller         string    `json:"caller"`
	RequestID      string    `json:"requestId"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	RequestBody    []byte    `json:"requestBody,omitempty"`
	ResponseStatus int       `json:"responseStatus"`
	ExitCode       int       `json:"exitCode"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewAuditStore(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	store := &AuditStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *AuditStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            caller TEXT NOT NULL,
            idempotency_key TEXT NOT NULL,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY(caller, idempotency_key)
        );`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            caller TEXT,
            request_id TEXT,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            request_body BLOB,
            response_status INTEGER,
            exit_code INTEGER NOT NULL DEFAULT 0
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}

// LookupIdempotency returns the stored response for (caller, key). A nil
// response with nil error means the key is unused.
func (s *AuditStore) LookupIdempotency(ctx context.Context, caller, key, requestHash string) (*StoredResponse, error) {
	const query = `SELECT response_status, response_body, request_hash FROM idempotency_keys WHERE caller = ? AND idempotency_key = ?`
	row := s.db.QueryRowContext(ctx, query, caller, key)
	var status int
	var body []byte
	var storedHash string
	err := row.Scan(&status, &body, &storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if storedHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	return &StoredResponse{Status: status, Body: body}, nil
}

func (s *AuditStore) SaveIdempotency(ctx context.Context, caller, key, requestHash string, status int, body []byte) error {
	const stmt = `INSERT OR REPLACE INTO idempotency_keys(caller, idempotency_key, request_hash, response_status, response_body, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, caller, key, requestHash, status, body, time.Now().UTC())
	return err
}

func (s *AuditStore) InsertAuditLog(ctx context.Context, entry AuditEntry) error {
	const stmt = `INSERT INTO audit_log(caller, request_id, method, path, request_body, response_status, exit_code, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, entry.Caller, entry.RequestID, entry.Method, entry.Path, entry.RequestBody, entry.ResponseStatus, entry.ExitCode, entry.Timestamp.UTC())
	return err
}

// RecentAuditLog returns up to limit entries, newest first.
func (s *AuditStore) RecentAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id, caller, request_id, method, path, request_body, response_status, exit_code, occurred_at FROM audit_log ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.ID, &entry.Caller, &entry.RequestID, &entry.Method, &entry.Path, &entry.RequestBody, &entry.ResponseStatus, &entry.ExitCode, &entry.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
