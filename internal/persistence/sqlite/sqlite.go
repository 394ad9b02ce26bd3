package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	*UserRepository
	*ClassSessionRepository
	*BookingRepository
	*SessionRepository

	pool *ConnectionPool
}

// Open connects to the database file at path (or ":memory:").
func Open(path string) (*Storage, error) {
	cfg := DefaultConfig(path)
	if path == ":memory:" {
		cfg = InMemoryConfig()
	}
	return OpenWithConfig(cfg)
}

// OpenWithConfig connects using explicit settings.
func OpenWithConfig(cfg Config) (*Storage, error) {
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{
		UserRepository:         NewUserRepository(pool),
		ClassSessionRepository: NewClassSessionRepository(pool),
		BookingRepository:      NewBookingRepository(pool),
		SessionRepository:      NewSessionRepository(pool),
		pool:                   pool,
	}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the underlying connection pool.
func (s *Storage) Pool() *ConnectionPool {
	return s.pool
}

// Migrate applies every pending embedded migration.
func (s *Storage) Migrate(ctx context.Context) error {
	provider, err := s.migrationProvider()
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Storage) MigrateDown(ctx context.Context) error {
	provider, err := s.migrationProvider()
	if err != nil {
		return err
	}
	if _, err := provider.Down(ctx); err != nil {
		return fmt.Errorf("sqlite: roll back migration: %w", err)
	}
	return nil
}

// MigrationStatus describes one embedded migration.
type MigrationStatus struct {
	Version int64
	Path    string
	Applied bool
}

// MigrationStatus lists the embedded migrations and whether each is applied.
func (s *Storage) MigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	provider, err := s.migrationProvider()
	if err != nil {
		return nil, err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: migration status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, MigrationStatus{
			Version: st.Source.Version,
			Path:    st.Source.Path,
			Applied: st.State == goose.StateApplied,
		})
	}
	return out, nil
}

func (s *Storage) migrationProvider() (*goose.Provider, error) {
	fsys, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.pool.DB(), fsys)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create migration provider: %w", err)
	}
	return provider, nil
}
