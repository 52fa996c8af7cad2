package keystore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tandemhq/aigate/pkg/models"
)

var (
	// ErrInvalidFormat is returned when a secret does not match the
	// provider's expected key shape.
	ErrInvalidFormat = errors.New("invalid API key format")
	// ErrValidationFailed is returned when the provider rejects the secret
	// during the live validation call.
	ErrValidationFailed = errors.New("API key validation failed")
	// ErrNotFound is returned when a provider has no active credential.
	ErrNotFound = errors.New("no active API key found")
)

// Validator performs a live check of a secret against its provider before the
// credential is persisted.
type Validator interface {
	Validate(ctx context.Context, provider models.Provider, secret string) error
}

// Store manages provider credentials. Secrets are stored base64-encoded: a
// convenience obfuscation against casual inspection, not a security boundary.
type Store interface {
	// Save validates and persists a new credential. It deactivates no
	// existing credential.
	Save(ctx context.Context, provider models.Provider, secret, name string, monthlyBudget float64) (models.Credential, error)
	// GetActive returns the decoded secret of the provider's active credential.
	GetActive(ctx context.Context, provider models.Provider) (string, error)
	// Active returns the provider's active credential without its secret.
	Active(ctx context.Context, provider models.Provider) (models.Credential, error)
	// List returns all active credentials.
	List(ctx context.Context) ([]models.Credential, error)
	// Deactivate soft-deletes a credential by ID. Usage records stay attributable.
	Deactivate(ctx context.Context, id string) error
	// MarkUsed updates a credential's last-used timestamp.
	MarkUsed(ctx context.Context, id string) error
	// Close releases resources.
	Close() error
}

// SQLiteStore implements Store with a SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	validator Validator
}

const createTable = `
CREATE TABLE IF NOT EXISTS credentials (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	name TEXT NOT NULL,
	secret_encoded TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	monthly_budget_usd REAL NOT NULL,
	created_at DATETIME NOT NULL,
	last_used_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_credentials_provider ON credentials(provider, active);
`

// New creates a SQLiteStore and runs auto-migration. The validator is called
// on every Save; pass nil to skip live validation (tests only).
func New(dbPath string, validator Validator) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open keystore db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate keystore db: %w", err)
	}

	return &SQLiteStore{db: db, validator: validator}, nil
}

// Save validates the secret's format and liveness, then persists it encoded.
func (s *SQLiteStore) Save(ctx context.Context, provider models.Provider, secret, name string, monthlyBudget float64) (models.Credential, error) {
	if !checkFormat(provider, secret) {
		return models.Credential{}, ErrInvalidFormat
	}
	if s.validator != nil {
		if err := s.validator.Validate(ctx, provider, secret); err != nil {
			return models.Credential{}, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}

	cred := models.Credential{
		ID:            uuid.NewString(),
		Provider:      provider,
		Name:          name,
		Active:        true,
		MonthlyBudget: monthlyBudget,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, provider, name, secret_encoded, active, monthly_budget_usd, created_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		cred.ID, string(cred.Provider), cred.Name, encode(secret), cred.MonthlyBudget, cred.CreatedAt,
	)
	if err != nil {
		return models.Credential{}, fmt.Errorf("save credential: %w", err)
	}
	return cred, nil
}

// GetActive returns the decoded secret of the newest active credential.
func (s *SQLiteStore) GetActive(ctx context.Context, provider models.Provider) (string, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		`SELECT secret_encoded FROM credentials
		 WHERE provider = ? AND active = 1 ORDER BY created_at DESC LIMIT 1`,
		string(provider),
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get active credential: %w", err)
	}
	return decode(encoded)
}

// Active returns the newest active credential for a provider, secret excluded.
func (s *SQLiteStore) Active(ctx context.Context, provider models.Provider) (models.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider, name, active, monthly_budget_usd, created_at, last_used_at
		 FROM credentials WHERE provider = ? AND active = 1 ORDER BY created_at DESC LIMIT 1`,
		string(provider),
	)
	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Credential{}, ErrNotFound
	}
	if err != nil {
		return models.Credential{}, fmt.Errorf("active credential: %w", err)
	}
	return cred, nil
}

// List returns all active credentials, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]models.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider, name, active, monthly_budget_usd, created_at, last_used_at
		 FROM credentials WHERE active = 1 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Deactivate soft-deletes a credential. Ledger records are untouched.
func (s *SQLiteStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkUsed stamps the credential's last-used time.
func (s *SQLiteStore) MarkUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET last_used_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark credential used: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (models.Credential, error) {
	var c models.Credential
	var prov string
	var lastUsed sql.NullTime
	if err := row.Scan(&c.ID, &prov, &c.Name, &c.Active, &c.MonthlyBudget, &c.CreatedAt, &lastUsed); err != nil {
		return models.Credential{}, err
	}
	c.Provider = models.Provider(prov)
	if lastUsed.Valid {
		c.LastUsedAt = lastUsed.Time
	}
	return c, nil
}

// checkFormat applies the provider's expected key prefix. Anthropic keys also
// begin with "sk-", so its check runs on the longer prefix.
func checkFormat(provider models.Provider, secret string) bool {
	switch provider {
	case models.ProviderAnthropic:
		return strings.HasPrefix(secret, "sk-ant-") && len(secret) > 20
	case models.ProviderOpenAI:
		return strings.HasPrefix(secret, "sk-") && len(secret) > 20
	default:
		return false
	}
}

func encode(secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(secret))
}

func decode(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode credential secret: %w", err)
	}
	return string(raw), nil
}
