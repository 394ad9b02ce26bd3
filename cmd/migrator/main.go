package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/example/class-booking/internal/config"
	"github.com/example/class-booking/internal/persistence"
	"github.com/example/class-booking/internal/persistence/sqlite"
	"github.com/example/class-booking/internal/roles"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := config.LoadEnvFile(); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error("migrator failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("migrator", flag.ContinueOnError)
	fs.SetOutput(out)
	dbPath := fs.String("db", "", "SQLite database path (defaults to BOOKING_SQLITE_DSN or booking.db)")
	fs.Usage = func() {
		fmt.Fprintln(out, "usage: migrator [-db path] <command>")
		fmt.Fprintln(out, "commands:")
		fmt.Fprintln(out, "  up                      apply all pending migrations")
		fmt.Fprintln(out, "  down                    roll back the latest migration")
		fmt.Fprintln(out, "  status                  list migrations and whether they are applied")
		fmt.Fprintln(out, "  grant-superadmin EMAIL  promote an existing account to SUPERADMIN")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("BOOKING_SQLITE_DSN"))
	}
	if path == "" {
		path = "booking.db"
	}

	storage, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	logger = logger.With("database_path", path)
	command := fs.Arg(0)
	switch command {
	case "up":
		if err := storage.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	case "down":
		if err := storage.MigrateDown(ctx); err != nil {
			return err
		}
		logger.Info("latest migration rolled back")
	case "status":
		statuses, err := storage.MigrationStatus(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			state := "pending"
			if st.Applied {
				state = "applied"
			}
			fmt.Fprintf(out, "%05d  %-8s %s\n", st.Version, state, st.Path)
		}
	case "grant-superadmin":
		if fs.NArg() < 2 {
			return errors.New("grant-superadmin requires an email")
		}
		if err := storage.Migrate(ctx); err != nil {
			return err
		}
		if err := grantSuperAdmin(ctx, storage, fs.Arg(1), time.Now().UTC()); err != nil {
			return err
		}
		logger.Info("account promoted", "email", strings.ToLower(fs.Arg(1)), "role", string(roles.SuperAdmin))
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

// grantSuperAdmin promotes an existing, non-deleted account and enables it.
func grantSuperAdmin(ctx context.Context, users persistence.UserRepository, email string, now time.Time) error {
	user, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("no account registered for %s", email)
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if user.Deleted {
		return fmt.Errorf("account %s is deleted", email)
	}
	user.Role = string(roles.SuperAdmin)
	user.Disabled = false
	if user.EmailVerifiedAt == nil {
		user.EmailVerifiedAt = &now
	}
	user.UpdatedAt = now
	if err := users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}
