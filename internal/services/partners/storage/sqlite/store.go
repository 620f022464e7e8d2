// Package sqlite provides the SQLite-backed partners storage implementation.
//
// One store serves the three persistence contracts of the service: account
// lookup, partnership edges and the durable invitation table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/partnerhub/partnerhub/internal/platform/storage/sqlitemigrate"
	"github.com/partnerhub/partnerhub/internal/services/partners/storage"
	"github.com/partnerhub/partnerhub/internal/services/partners/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists partners state in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite partners store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

// EnsureAccount returns the account for username, creating it when absent.
func (s *Store) EnsureAccount(ctx context.Context, username string) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Account{}, fmt.Errorf("storage is not configured")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return storage.Account{}, fmt.Errorf("username is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO accounts (username, created_at) VALUES (?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		username,
		toMillis(s.now()),
	)
	if err != nil {
		return storage.Account{}, fmt.Errorf("ensure account: %w", err)
	}
	return s.GetAccount(ctx, username)
}

// GetAccount returns the account for username together with its persisted
// partner set, or storage.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, username string) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Account{}, fmt.Errorf("storage is not configured")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return storage.Account{}, fmt.Errorf("username is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT username, created_at FROM accounts WHERE username = ?`,
		username,
	)
	var account storage.Account
	var createdAt int64
	if err := row.Scan(&account.Username, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	account.CreatedAt = fromMillis(createdAt)

	partners, err := s.ListPartners(ctx, username)
	if err != nil {
		return storage.Account{}, err
	}
	account.Partners = make(map[string]bool, len(partners))
	for _, partner := range partners {
		account.Partners[partner] = true
	}
	return account, nil
}

// CreatePartnership records the symmetric edge between userA and userB.
// The insert is idempotent under the canonical pair ordering.
func (s *Store) CreatePartnership(ctx context.Context, userA, userB string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return fmt.Errorf("both usernames are required")
	}
	if userA == userB {
		return fmt.Errorf("partnership requires two distinct users")
	}
	first, second := storage.CanonicalPair(userA, userB)

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO partnerships (user_a, user_b, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_a, user_b) DO NOTHING`,
		first,
		second,
		toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("create partnership: %w", err)
	}
	return nil
}

// HasPartnership reports whether the edge between userA and userB exists.
func (s *Store) HasPartnership(ctx context.Context, userA, userB string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	first, second := storage.CanonicalPair(strings.TrimSpace(userA), strings.TrimSpace(userB))

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM partnerships WHERE user_a = ? AND user_b = ?`,
		first,
		second,
	)
	var found int
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("has partnership: %w", err)
	}
	return true, nil
}

// ListPartners returns the usernames partnered with username, sorted.
func (s *Store) ListPartners(ctx context.Context, username string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT CASE WHEN user_a = ? THEN user_b ELSE user_a END AS partner
		 FROM partnerships
		 WHERE user_a = ? OR user_b = ?
		 ORDER BY partner`,
		username,
		username,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()

	var partners []string
	for rows.Next() {
		var partner string
		if err := rows.Scan(&partner); err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		partners = append(partners, partner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partners: %w", err)
	}
	return partners, nil
}

// Put records an invitation from addresser to addressee.
func (s *Store) Put(ctx context.Context, addressee, addresser, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	addressee = strings.TrimSpace(addressee)
	addresser = strings.TrimSpace(addresser)
	if addressee == "" || addresser == "" {
		return fmt.Errorf("addressee and addresser are required")
	}
	if addressee == addresser {
		return fmt.Errorf("addressee must differ from addresser")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO invitations (addressee, addresser, message, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(addressee, addresser) DO UPDATE SET
		   message = excluded.message`,
		addressee,
		addresser,
		message,
		toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("put invitation: %w", err)
	}
	return nil
}

// Get returns the invitation message for the pair and whether one exists.
func (s *Store) Get(ctx context.Context, addressee, addresser string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if s == nil || s.sqlDB == nil {
		return "", false, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT message FROM invitations WHERE addressee = ? AND addresser = ?`,
		strings.TrimSpace(addressee),
		strings.TrimSpace(addresser),
	)
	var message string
	if err := row.Scan(&message); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get invitation: %w", err)
	}
	return message, true, nil
}

// GetAll returns every pending invitation addressed to addressee.
func (s *Store) GetAll(ctx context.Context, addressee string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT addresser, message FROM invitations WHERE addressee = ?`,
		strings.TrimSpace(addressee),
	)
	if err != nil {
		return nil, fmt.Errorf("get all invitations: %w", err)
	}
	defer rows.Close()

	inbox := make(map[string]string)
	for rows.Next() {
		var addresser, message string
		if err := rows.Scan(&addresser, &message); err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		inbox[addresser] = message
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return inbox, nil
}

// Delete removes the invitation for the pair. Absent pairs are a no-op.
func (s *Store) Delete(ctx context.Context, addressee, addresser string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM invitations WHERE addressee = ? AND addresser = ?`,
		strings.TrimSpace(addressee),
		strings.TrimSpace(addresser),
	)
	if err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}
