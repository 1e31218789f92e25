package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/internal/tracing"
	"github.com/harun/conflux/pkg/integrations"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNotFound is returned when a user has not connected a service
var ErrNotFound = errors.New("integration not found")

// Resolver looks up one user's credentials for one service. A service that
// is not connected reports ok=false with a nil error.
type Resolver interface {
	Credentials(ctx context.Context, userID, service string) (*integrations.ServiceConfig, bool, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS integrations (
	user_id     TEXT NOT NULL,
	service     TEXT NOT NULL,
	api_key     BLOB,
	credentials BLOB,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, service)
);
`

type integrationRow struct {
	UserID      string    `db:"user_id"`
	Service     string    `db:"service"`
	APIKey      []byte    `db:"api_key"`
	Credentials []byte    `db:"credentials"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Store keeps encrypted integration credentials in sqlite
type Store struct {
	db     *sqlx.DB
	cipher Cipher
	logger zerolog.Logger
}

// Open opens (and migrates) the sqlite database at path
func Open(path string, cipher Cipher, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("cipher is required")
	}

	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", path).Msg("Credential store opened")
	return &Store{db: db, cipher: cipher, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveIntegration encrypts and stores cfg for userID and service,
// replacing any previous entry
func (s *Store) SaveIntegration(ctx context.Context, userID, service string, cfg integrations.ServiceConfig) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if !integrations.IsSupported(service) {
		return fmt.Errorf("unsupported service: %s", service)
	}

	apiKey, err := s.encrypt([]byte(cfg.APIKey))
	if err != nil {
		return err
	}

	var creds []byte
	if len(cfg.Credentials) > 0 {
		raw, err := json.Marshal(cfg.Credentials)
		if err != nil {
			return fmt.Errorf("failed to marshal credentials: %w", err)
		}
		if creds, err = s.encrypt(raw); err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO integrations (user_id, service, api_key, credentials, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, service) DO UPDATE SET
			api_key = excluded.api_key,
			credentials = excluded.credentials,
			updated_at = excluded.updated_at`,
		userID, service, apiKey, creds, time.Now().UTC())
	if err != nil {
		observability.RecordIntegrationAudit(ctx, "save", userID, service, "failure")
		return fmt.Errorf("save integration: %w", err)
	}

	observability.RecordIntegrationAudit(ctx, "save", userID, service, "success")
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("userId", userID).
		Str("service", service).
		Msg("Integration saved")
	return nil
}

// Credentials implements Resolver
func (s *Store) Credentials(ctx context.Context, userID, service string) (*integrations.ServiceConfig, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "conflux.credentials", "credentials.resolve",
		attribute.String("service", service))
	defer span.End()

	var row integrationRow
	err := s.db.GetContext(ctx, &row,
		"SELECT user_id, service, api_key, credentials, updated_at FROM integrations WHERE user_id = ? AND service = ?",
		userID, service)
	if errors.Is(err, sql.ErrNoRows) {
		observability.RecordCredentialLookup(service, "missing")
		return nil, false, nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		observability.RecordCredentialLookup(service, "error")
		return nil, false, fmt.Errorf("get integration %s: %w", service, err)
	}

	cfg, err := s.decode(row)
	if err != nil {
		tracing.RecordError(span, err)
		observability.RecordCredentialLookup(service, "error")
		return nil, false, err
	}

	observability.RecordCredentialLookup(service, "found")
	return cfg, true, nil
}

// Services returns the services userID has connected, sorted
func (s *Store) Services(ctx context.Context, userID string) ([]string, error) {
	services := []string{}
	err := s.db.SelectContext(ctx, &services,
		"SELECT service FROM integrations WHERE user_id = ? ORDER BY service", userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	return services, nil
}

// DeleteIntegration removes a stored integration
func (s *Store) DeleteIntegration(ctx context.Context, userID, service string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM integrations WHERE user_id = ? AND service = ?", userID, service)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	observability.RecordIntegrationAudit(ctx, "delete", userID, service, "success")
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("userId", userID).
		Str("service", service).
		Msg("Integration deleted")
	return nil
}

func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	return s.cipher.Encrypt(plaintext)
}

func (s *Store) decode(row integrationRow) (*integrations.ServiceConfig, error) {
	cfg := &integrations.ServiceConfig{}

	if len(row.APIKey) > 0 {
		key, err := s.cipher.Decrypt(row.APIKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt api key for %s: %w", row.Service, err)
		}
		cfg.APIKey = string(key)
	}

	if len(row.Credentials) > 0 {
		raw, err := s.cipher.Decrypt(row.Credentials)
		if err != nil {
			return nil, fmt.Errorf("decrypt credentials for %s: %w", row.Service, err)
		}
		if err := json.Unmarshal(raw, &cfg.Credentials); err != nil {
			return nil, fmt.Errorf("decode credentials for %s: %w", row.Service, err)
		}
	}

	return cfg, nil
}
