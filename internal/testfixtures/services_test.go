package testfixtures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/class-booking/internal/application"
	"github.com/example/class-booking/internal/recurrence"
	"github.com/example/class-booking/internal/roles"
)

type capturingUserRepo struct {
	created application.UserCredentials
}

func (c *capturingUserRepo) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	c.created = creds
	return creds.User, nil
}

func (c *capturingUserRepo) GetUserCredentials(ctx context.Context, id string) (application.UserCredentials, error) {
	return application.UserCredentials{}, application.ErrNotFound
}

func (c *capturingUserRepo) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	return application.UserCredentials{}, application.ErrNotFound
}

func (c *capturingUserRepo) UpdateUserCredentials(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	return creds.User, nil
}

func (c *capturingUserRepo) ListUsers(ctx context.Context, filter application.UserFilter) ([]application.User, error) {
	return nil, nil
}

func TestServiceFactoryNewUserService(t *testing.T) {
	factory := NewServiceFactory()
	repo := &capturingUserRepo{}

	svc := factory.NewUserService(UserServiceDeps{
		Users: repo,
		Hash:  func(p string) (string, error) { return "h:" + p, nil },
	})
	admin := NewUserFixture(WithUserRole(roles.Admin))

	user, err := svc.CreateUser(context.Background(), application.CreateUserParams{
		Principal: admin.Principal(),
		Email:     "user@example.com",
		Password:  "long-enough",
		Role:      "CLIENT",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	if user.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", user.ID)
	}
	if repo.created.User.ID != user.ID || repo.created.PasswordHash != "h:long-enough" {
		t.Fatalf("repository received unexpected credentials: %#v", repo.created)
	}
	if !user.CreatedAt.Equal(factory.Clock.Current()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Current(), user.CreatedAt)
	}
}

func TestServiceFactoryNewAccountService(t *testing.T) {
	factory := NewServiceFactory()
	repo := &capturingUserRepo{}

	svc := factory.NewAccountService(AccountServiceDeps{
		Users: repo,
		Codes: func() (string, error) { return "123456", nil },
		Hash:  func(p string) (string, error) { return "h:" + p, nil },
	})

	if _, err := svc.Register(context.Background(), application.RegisterParams{Email: "new@example.com", Password: "long-enough"}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if !repo.created.User.Disabled || repo.created.VerifyCodeHash == "" {
		t.Fatalf("expected disabled account with a pending code, got %#v", repo.created)
	}
	want := factory.Clock.Current().Add(application.DefaultCodeTTL)
	if repo.created.VerifyCodeExpiresAt == nil || !repo.created.VerifyCodeExpiresAt.Equal(want) {
		t.Fatalf("expected code expiry %v, got %v", want, repo.created.VerifyCodeExpiresAt)
	}
}

type capturingSessionRepo struct {
	created []application.ClassSession
}

func (c *capturingSessionRepo) CreateClassSessions(_ context.Context, sessions []application.ClassSession) error {
	c.created = append(c.created, sessions...)
	return nil
}

func (c *capturingSessionRepo) UpdateClassSession(context.Context, application.ClassSession) error {
	return nil
}

func (c *capturingSessionRepo) GetClassSession(context.Context, string) (application.ClassSession, error) {
	return application.ClassSession{}, application.ErrNotFound
}

func (c *capturingSessionRepo) ListClassSessions(context.Context, application.ClassSessionQuery) ([]application.ClassSessionListing, error) {
	return nil, nil
}

func (c *capturingSessionRepo) DeleteClassSession(context.Context, string) error {
	return nil
}

func TestServiceFactoryNewClassService_UsesLocalDay(t *testing.T) {
	clock := NewClock(time.Time{})
	clock.SetLocal(2026, time.March, 10, 23, 30)
	ids := NewIDGenerator("class")
	factory := NewServiceFactory(WithClock(clock), WithIDGenerator(ids))
	repo := &capturingSessionRepo{}
	svc := factory.NewClassService(ClassServiceDeps{
		Sessions: repo,
		Engine:   recurrence.NewEngine(clock.Location()),
	})
	admin := NewUserFixture(WithUserRole(roles.Admin)).Principal()

	// A start earlier today is accepted, yesterday is not.
	start := clock.LocalAt(0, 8, 0)
	wantID := ids.Peek()
	created, err := svc.CreateClassSession(context.Background(), application.CreateClassSessionParams{
		Principal: admin,
		Title:     "Morning stretch",
		Type:      application.ClassTypePrivate,
		StartsAt:  start,
		EndsAt:    start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateClassSession returned error: %v", err)
	}
	if len(created) != 1 || created[0].ID != wantID {
		t.Fatalf("expected one session with id %s, got %#v", wantID, created)
	}

	start = clock.LocalAt(-1, 20, 0)
	_, err = svc.CreateClassSession(context.Background(), application.CreateClassSessionParams{
		Principal: admin,
		Title:     "Late yoga",
		Type:      application.ClassTypePrivate,
		StartsAt:  start,
		EndsAt:    start.Add(time.Hour),
	})
	if !errors.Is(err, application.ErrPastDay) {
		t.Fatalf("expected ErrPastDay, got %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected only the first session stored, got %d", len(repo.created))
	}
}
