package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	sessionTableName    = "notefs_session"
	defaultSessionKey   = "default"
	sqlOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// sqlDialect holds what differs between the SQL backends.
type sqlDialect struct {
	driver      string
	placeholder func(n int) string
	timestamp   string
}

var (
	postgresDialect = sqlDialect{
		driver:      "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		timestamp:   "TIMESTAMPTZ NOT NULL DEFAULT NOW()",
	}
	sqliteDialect = sqlDialect{
		driver:      "sqlite3",
		placeholder: func(int) string { return "?" },
		timestamp:   "DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP",
	}
)

// SQLStore keeps sessions in a key/payload table, one row per session key.
type SQLStore struct {
	dsn        string
	dialect    sqlDialect
	tableName  string
	sessionKey string
	openDB     sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidDSN
	}
	return newSQLStore(dsn, postgresDialect), nil
}

// NewSQLiteStore opens path with WAL journaling and a busy timeout.
func NewSQLiteStore(path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidDSN
	}
	return newSQLStore(path+"?_journal_mode=WAL&_busy_timeout=5000", sqliteDialect), nil
}

func newSQLStore(dsn string, dialect sqlDialect) *SQLStore {
	return &SQLStore{
		dsn:        dsn,
		dialect:    dialect,
		tableName:  sessionTableName,
		sessionKey: defaultSessionKey,
		openDB:     sql.Open,
	}
}

func (s *SQLStore) Load() (*Session, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT payload FROM %s WHERE session_key = %s", quoteIdentifier(s.tableName), s.dialect.placeholder(1))
	var payload string
	err := s.db.QueryRowContext(ctx, query, s.sessionKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out Session
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("session row %s: %w", s.sessionKey, err)
	}
	return &out, nil
}

func (s *SQLStore) Save(sess *Session) error {
	if sess == nil {
		return s.Clear()
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (session_key, payload, updated_at)
		VALUES (%s, %s, CURRENT_TIMESTAMP)
		ON CONFLICT (session_key)
		DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
		quoteIdentifier(s.tableName), s.dialect.placeholder(1), s.dialect.placeholder(2))
	_, err = s.db.ExecContext(ctx, query, s.sessionKey, string(payload))
	return err
}

func (s *SQLStore) Clear() error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE session_key = %s", quoteIdentifier(s.tableName), s.dialect.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, s.sessionKey)
	return err
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB(s.dialect.driver, s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_key TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				updated_at %s
			)`, quoteIdentifier(s.tableName), s.dialect.timestamp)
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = fmt.Errorf("prepare %s session table: %w", s.dialect.driver, err)
			return
		}
		s.db = db
	})
	return s.initErr
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
