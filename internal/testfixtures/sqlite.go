package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/class-booking/internal/persistence"
	"github.com/example/class-booking/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style persistence tests.
type SQLiteHarness struct {
	Storage       *sqlite.Storage
	Users         persistence.UserRepository
	ClassSessions persistence.ClassSessionRepository
	Bookings      persistence.BookingRepository
	Sessions      persistence.SessionRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	path := filepath.Join(dir, "booking.db")

	storage, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:       storage,
		Users:         storage,
		ClassSessions: storage,
		Bookings:      storage,
		Sessions:      storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedUsers inserts the fixtures or fails the test.
func (h *SQLiteHarness) SeedUsers(tb testing.TB, users ...UserFixture) {
	tb.Helper()
	for _, u := range users {
		if err := h.Users.CreateUser(context.Background(), u.Persistence()); err != nil {
			tb.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
}

// SeedClassSessions inserts the fixtures or fails the test.
func (h *SQLiteHarness) SeedClassSessions(tb testing.TB, sessions ...ClassSessionFixture) {
	tb.Helper()
	rows := make([]persistence.ClassSession, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, s.Persistence())
	}
	if err := h.ClassSessions.CreateClassSessions(context.Background(), rows); err != nil {
		tb.Fatalf("seed class sessions: %v", err)
	}
}
