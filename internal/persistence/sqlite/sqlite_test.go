package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/example/class-booking/internal/persistence"
)

var errFullForTest = errors.New("full")

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dir := t.TempDir()
	storage, err := Open(filepath.Join(dir, "booking.db"))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}

	t.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return storage
}

// admitForTest mirrors the booking rules without depending on the domain package.
func admitForTest(state persistence.SeatState) (persistence.SeatAction, error) {
	if state.Active >= state.Capacity {
		return 0, errFullForTest
	}
	if state.Existing != nil {
		if state.Existing.Status == persistence.BookingStatusActive {
			return 0, persistence.ErrDuplicate
		}
		return persistence.SeatReactivate, nil
	}
	return persistence.SeatInsert, nil
}

func seedUser(t *testing.T, s *Storage, id, email string, now time.Time) persistence.User {
	t.Helper()
	user := persistence.User{
		ID:        id,
		Email:     email,
		Role:      "CLIENT",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", id, err)
	}
	return user
}

func seedSession(t *testing.T, s *Storage, id string, start time.Time, capacity int) persistence.ClassSession {
	t.Helper()
	session := persistence.ClassSession{
		ID:        id,
		Title:     "Pilates " + id,
		Type:      "COLLECTIVE",
		StartsAt:  start,
		EndsAt:    start.Add(time.Hour),
		Capacity:  capacity,
		CreatedAt: start.Add(-48 * time.Hour),
		UpdatedAt: start.Add(-48 * time.Hour),
	}
	if err := s.CreateClassSessions(context.Background(), []persistence.ClassSession{session}); err != nil {
		t.Fatalf("CreateClassSessions(%s) failed: %v", id, err)
	}
	return session
}

func TestStorage_MigrationStatus(t *testing.T) {
	storage := newTestStorage(t)

	statuses, err := storage.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if len(statuses) == 0 {
		t.Fatal("expected at least one migration")
	}
	for _, st := range statuses {
		if !st.Applied {
			t.Fatalf("migration %d (%s) not applied", st.Version, st.Path)
		}
	}

	if err := storage.MigrateDown(context.Background()); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	statuses, err = storage.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus after down failed: %v", err)
	}
	if statuses[0].Applied {
		t.Fatal("expected first migration to be rolled back")
	}
}

func TestOpen_InMemory(t *testing.T) {
	storage, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	if err := storage.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := storage.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	name := "Alice"
	user := persistence.User{
		ID:               "user-1",
		Email:            "Alice@Example.com",
		Name:             &name,
		Role:             "ADMIN",
		AvailableClasses: 4,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := storage.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	fetched, err := storage.GetUserByEmail(ctx, "alice@example.COM")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if fetched.Email != "alice@example.com" || fetched.Name == nil || *fetched.Name != "Alice" {
		t.Fatalf("unexpected user: %#v", fetched)
	}
	if fetched.AvailableClasses != 4 || !fetched.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user fields: %#v", fetched)
	}

	dup := user
	dup.ID = "user-2"
	dup.Email = "ALICE@example.com"
	if err := storage.CreateUser(ctx, dup); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	verified := now.Add(time.Hour)
	fetched.EmailVerifiedAt = &verified
	fetched.Disabled = true
	fetched.UpdatedAt = verified
	if err := storage.UpdateUser(ctx, fetched); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	fetched, err = storage.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !fetched.Disabled || fetched.EmailVerifiedAt == nil || !fetched.EmailVerifiedAt.Equal(verified) {
		t.Fatalf("update not persisted: %#v", fetched)
	}

	missing := fetched
	missing.ID = "ghost"
	if err := storage.UpdateUser(ctx, missing); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := storage.GetUser(ctx, "ghost"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_ListUsers(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seedUser(t, storage, "u1", "ana@example.com", base)
	bob := seedUser(t, storage, "u2", "bob@example.com", base.Add(time.Minute))
	carla := seedUser(t, storage, "u3", "carla@example.com", base.Add(2*time.Minute))

	bob.Role = "ADMIN"
	if err := storage.UpdateUser(ctx, bob); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	carla.Deleted = true
	deletedAt := base.Add(time.Hour)
	carla.DeletedAt = &deletedAt
	if err := storage.UpdateUser(ctx, carla); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	tests := []struct {
		name   string
		filter persistence.UserFilter
		want   []string
	}{
		{name: "default hides deleted", filter: persistence.UserFilter{}, want: []string{"u2", "u1"}},
		{name: "include deleted", filter: persistence.UserFilter{IncludeDeleted: true}, want: []string{"u3", "u2", "u1"}},
		{name: "role", filter: persistence.UserFilter{Role: "ADMIN"}, want: []string{"u2"}},
		{name: "search", filter: persistence.UserFilter{Search: "ANA"}, want: []string{"u1"}},
		{name: "no match", filter: persistence.UserFilter{Search: "zzz"}, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			users, err := storage.ListUsers(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListUsers failed: %v", err)
			}
			var ids []string
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, ids)
			}
		})
	}
}

func TestClassSessionRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	start := time.Date(2026, 4, 6, 7, 0, 0, 0, time.UTC)

	sessions := make([]persistence.ClassSession, 0, 3)
	for i := 0; i < 3; i++ {
		at := start.AddDate(0, 0, 7*i)
		sessions = append(sessions, persistence.ClassSession{
			ID:        fmt.Sprintf("cs-%d", i),
			Title:     "Yoga",
			Type:      "COLLECTIVE",
			StartsAt:  at,
			EndsAt:    at.Add(time.Hour),
			Capacity:  2,
			CreatedAt: start,
			UpdatedAt: start,
		})
	}
	if err := storage.CreateClassSessions(ctx, sessions); err != nil {
		t.Fatalf("CreateClassSessions failed: %v", err)
	}

	t.Run("batch is all or nothing", func(t *testing.T) {
		batch := []persistence.ClassSession{sessions[0], sessions[0]}
		batch[0].ID = "fresh"
		batch[1].ID = "cs-1"
		if err := storage.CreateClassSessions(ctx, batch); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		if _, err := storage.GetClassSession(ctx, "fresh"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected rollback of partial batch, got %v", err)
		}
	})

	t.Run("end must follow start", func(t *testing.T) {
		bad := sessions[0]
		bad.ID = "bad"
		bad.EndsAt = bad.StartsAt
		if err := storage.CreateClassSessions(ctx, []persistence.ClassSession{bad}); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
	})

	t.Run("list with range and counts", func(t *testing.T) {
		seedUser(t, storage, "viewer", "viewer@example.com", start)
		booking, err := storage.ReserveSeat(ctx, persistence.SeatRequest{
			BookingID: "b-1", SessionID: "cs-1", UserID: "viewer", Now: start,
		}, admitForTest)
		if err != nil {
			t.Fatalf("ReserveSeat failed: %v", err)
		}

		views, err := storage.ListClassSessions(ctx, persistence.ClassSessionFilter{
			From:     start.AddDate(0, 0, 1),
			To:       start.AddDate(0, 0, 14),
			ViewerID: "viewer",
		})
		if err != nil {
			t.Fatalf("ListClassSessions failed: %v", err)
		}
		if len(views) != 2 || views[0].ID != "cs-1" || views[1].ID != "cs-2" {
			t.Fatalf("unexpected sessions: %#v", views)
		}
		if views[0].BookedCount != 1 || views[0].MyBookingID == nil || *views[0].MyBookingID != booking.ID {
			t.Fatalf("unexpected view for cs-1: %#v", views[0])
		}
		if views[1].BookedCount != 0 || views[1].MyBookingID != nil {
			t.Fatalf("unexpected view for cs-2: %#v", views[1])
		}

		anonymous, err := storage.ListClassSessions(ctx, persistence.ClassSessionFilter{})
		if err != nil {
			t.Fatalf("ListClassSessions failed: %v", err)
		}
		if len(anonymous) != 3 || anonymous[1].MyBookingID != nil {
			t.Fatalf("unexpected anonymous listing: %#v", anonymous)
		}
	})

	t.Run("update and delete cascade", func(t *testing.T) {
		updated := sessions[1]
		notes := "bring a mat"
		updated.Notes = &notes
		updated.Capacity = 5
		if err := storage.UpdateClassSession(ctx, updated); err != nil {
			t.Fatalf("UpdateClassSession failed: %v", err)
		}
		got, err := storage.GetClassSession(ctx, "cs-1")
		if err != nil {
			t.Fatalf("GetClassSession failed: %v", err)
		}
		if got.Capacity != 5 || got.Notes == nil || *got.Notes != notes {
			t.Fatalf("update not persisted: %#v", got)
		}

		if err := storage.DeleteClassSession(ctx, "cs-1"); err != nil {
			t.Fatalf("DeleteClassSession failed: %v", err)
		}
		if _, err := storage.GetBooking(ctx, "b-1"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected bookings to cascade, got %v", err)
		}
		if err := storage.DeleteClassSession(ctx, "cs-1"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBookingRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	seedUser(t, storage, "u1", "one@example.com", now)
	seedUser(t, storage, "u2", "two@example.com", now)
	seedSession(t, storage, "s1", now.AddDate(0, 0, 2), 1)

	first, err := storage.ReserveSeat(ctx, persistence.SeatRequest{BookingID: "b1", SessionID: "s1", UserID: "u1", Now: now}, admitForTest)
	if err != nil {
		t.Fatalf("ReserveSeat failed: %v", err)
	}
	if first.Status != persistence.BookingStatusActive || first.ID != "b1" {
		t.Fatalf("unexpected booking: %#v", first)
	}

	if _, err := storage.ReserveSeat(ctx, persistence.SeatRequest{BookingID: "b2", SessionID: "s1", UserID: "u2", Now: now}, admitForTest); !errors.Is(err, errFullForTest) {
		t.Fatalf("expected decider error to surface, got %v", err)
	}
	if _, err := storage.ReserveSeat(ctx, persistence.SeatRequest{BookingID: "b3", SessionID: "missing", UserID: "u2", Now: now}, admitForTest); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	attended, err := storage.SetAttendance(ctx, "b1", true, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SetAttendance failed: %v", err)
	}
	if !attended.Attended || attended.AttendedAt == nil {
		t.Fatalf("attendance not stored: %#v", attended)
	}

	canceled, err := storage.CancelBooking(ctx, "b1", now.Add(2*time.Hour), false)
	if err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}
	if canceled.Status != persistence.BookingStatusCanceled || canceled.CanceledAt == nil || !canceled.Attended {
		t.Fatalf("unexpected canceled booking: %#v", canceled)
	}

	again, err := storage.CancelBooking(ctx, "b1", now.Add(3*time.Hour), true)
	if err != nil {
		t.Fatalf("second CancelBooking failed: %v", err)
	}
	if !again.CanceledAt.Equal(*canceled.CanceledAt) || !again.Attended {
		t.Fatalf("second cancel must not modify the row: %#v", again)
	}

	reactivated, err := storage.ReserveSeat(ctx, persistence.SeatRequest{BookingID: "b4", SessionID: "s1", UserID: "u1", Now: now}, admitForTest)
	if err != nil {
		t.Fatalf("reactivation failed: %v", err)
	}
	if reactivated.ID != "b1" || reactivated.Status != persistence.BookingStatusActive || reactivated.CanceledAt != nil {
		t.Fatalf("expected original row reactivated, got %#v", reactivated)
	}

	cleared, err := storage.CancelBooking(ctx, "b1", now.Add(4*time.Hour), true)
	if err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}
	if cleared.Attended || cleared.AttendedAt != nil {
		t.Fatalf("expected attendance cleared: %#v", cleared)
	}

	if _, err := storage.CancelBooking(ctx, "ghost", now, false); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := storage.SetAttendance(ctx, "ghost", true, now); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingRepository_Listings(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	seedUser(t, storage, "u1", "one@example.com", now)
	seedUser(t, storage, "u2", "two@example.com", now)
	seedSession(t, storage, "s1", now.AddDate(0, 0, 1), 5)
	seedSession(t, storage, "s2", now.AddDate(0, 0, 2), 5)

	reserve := func(id, session, user string, at time.Time) {
		t.Helper()
		if _, err := storage.ReserveSeat(ctx, persistence.SeatRequest{BookingID: id, SessionID: session, UserID: user, Now: at}, admitForTest); err != nil {
			t.Fatalf("ReserveSeat(%s) failed: %v", id, err)
		}
	}
	reserve("b1", "s1", "u1", now)
	reserve("b2", "s1", "u2", now.Add(time.Minute))
	reserve("b3", "s2", "u1", now.Add(2*time.Minute))
	if _, err := storage.CancelBooking(ctx, "b1", now.Add(time.Hour), false); err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}

	roster, err := storage.ListSessionBookings(ctx, "s1")
	if err != nil {
		t.Fatalf("ListSessionBookings failed: %v", err)
	}
	if len(roster) != 2 || roster[0].ID != "b2" || roster[1].ID != "b1" {
		t.Fatalf("expected active rows first, got %#v", roster)
	}
	if roster[0].UserEmail != "two@example.com" || roster[0].Session.Title != "Pilates s1" {
		t.Fatalf("unexpected joined fields: %#v", roster[0])
	}

	all, err := storage.ListUserBookings(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListUserBookings failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "b3" {
		t.Fatalf("expected newest first, got %#v", all)
	}

	active, err := storage.ListUserBookings(ctx, "u1", persistence.BookingStatusActive)
	if err != nil {
		t.Fatalf("ListUserBookings failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "b3" {
		t.Fatalf("unexpected active bookings: %#v", active)
	}
}

func TestBookingRepository_ReserveSeatConcurrent(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	const contenders = 8
	for i := 0; i < contenders; i++ {
		seedUser(t, storage, fmt.Sprintf("u%d", i), fmt.Sprintf("u%d@example.com", i), now)
	}
	seedSession(t, storage, "s1", now.AddDate(0, 0, 1), 1)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		fulls     int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := storage.ReserveSeat(ctx, persistence.SeatRequest{
				BookingID: fmt.Sprintf("b%d", i),
				SessionID: "s1",
				UserID:    fmt.Sprintf("u%d", i),
				Now:       now,
			}, admitForTest)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, errFullForTest):
				fulls++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 || fulls != contenders-1 {
		t.Fatalf("expected exactly one seat granted, got %d successes and %d full", successes, fulls)
	}

	roster, err := storage.ListSessionBookings(ctx, "s1")
	if err != nil {
		t.Fatalf("ListSessionBookings failed: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("expected one stored booking, got %d", len(roster))
	}
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	seedUser(t, storage, "u1", "one@example.com", now)

	created, err := storage.CreateSession(ctx, persistence.Session{
		ID:          "sess-1",
		UserID:      "u1",
		Token:       " token-1 ",
		Fingerprint: "fp",
		ExpiresAt:   now.Add(time.Hour),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if created.Token != "token-1" || created.RevokedAt != nil {
		t.Fatalf("unexpected session: %#v", created)
	}

	if _, err := storage.CreateSession(ctx, persistence.Session{
		ID: "sess-2", UserID: "u1", Token: "token-2", ExpiresAt: now.Add(-time.Minute), CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	revoked, err := storage.RevokeSession(ctx, "token-1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Fatal("expected revoked_at to be set")
	}
	again, err := storage.RevokeSession(ctx, "token-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second RevokeSession failed: %v", err)
	}
	if !again.RevokedAt.Equal(*revoked.RevokedAt) {
		t.Fatal("revocation timestamp must not move")
	}

	if err := storage.DeleteExpiredSessions(ctx, now); err != nil {
		t.Fatalf("DeleteExpiredSessions failed: %v", err)
	}
	if _, err := storage.GetSession(ctx, "token-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected expired session removed, got %v", err)
	}
	if _, err := storage.RevokeSession(ctx, "nope", now); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
