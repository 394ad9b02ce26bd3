package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/example/class-booking/internal/persistence"
)

const userColumns = `id, email, name, password_hash, role, disabled, deleted, deleted_at,
	available_classes, email_verified_at, verify_code_hash, verify_code_expires_at,
	reset_code_hash, reset_code_expires_at, created_at, updated_at`

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateUser inserts a new user. The email is stored lower-cased.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query,
		user.ID,
		normalizeEmail(user.Email),
		nullString(user.Name),
		nullString(user.PasswordHash),
		user.Role,
		user.Disabled,
		user.Deleted,
		nullTime(user.DeletedAt),
		user.AvailableClasses,
		nullTime(user.EmailVerifiedAt),
		nullString(user.VerifyCodeHash),
		nullTime(user.VerifyCodeExpiresAt),
		nullString(user.ResetCodeHash),
		nullTime(user.ResetCodeExpiresAt),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// UpdateUser overwrites every mutable column of an existing user.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		UPDATE users
		SET email = ?, name = ?, password_hash = ?, role = ?, disabled = ?, deleted = ?,
			deleted_at = ?, available_classes = ?, email_verified_at = ?,
			verify_code_hash = ?, verify_code_expires_at = ?,
			reset_code_hash = ?, reset_code_expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.helper.Exec(ctx, query,
		normalizeEmail(user.Email),
		nullString(user.Name),
		nullString(user.PasswordHash),
		user.Role,
		user.Disabled,
		user.Deleted,
		nullTime(user.DeletedAt),
		user.AvailableClasses,
		nullTime(user.EmailVerifiedAt),
		nullString(user.VerifyCodeHash),
		nullTime(user.VerifyCodeExpiresAt),
		nullString(user.ResetCodeHash),
		nullTime(user.ResetCodeExpiresAt),
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanUser(row)
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalized)
	return r.scanUser(row)
}

// ListUsers returns users ordered by creation time, newest first. Search
// matches email or name as a case-insensitive substring.
func (r *UserRepository) ListUsers(ctx context.Context, filter persistence.UserFilter) ([]persistence.User, error) {
	builder := sq.Select(userColumns).From("users").OrderBy("created_at DESC", "id ASC")
	if !filter.IncludeDeleted {
		builder = builder.Where(sq.Eq{"deleted": false})
	}
	if role := strings.TrimSpace(filter.Role); role != "" {
		builder = builder.Where(sq.Eq{"role": role})
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + search + "%"
		builder = builder.Where(sq.Or{
			sq.Like{"email": pattern},
			sq.Like{"LOWER(COALESCE(name, ''))": pattern},
		})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                                             persistence.User
		name, passwordHash, verifyHash, resetHash        sql.NullString
		deletedAt, verifiedAt, verifyExpiry, resetExpiry sql.NullString
		createdAt, updatedAt                             string
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&name,
		&passwordHash,
		&user.Role,
		&user.Disabled,
		&user.Deleted,
		&deletedAt,
		&user.AvailableClasses,
		&verifiedAt,
		&verifyHash,
		&verifyExpiry,
		&resetHash,
		&resetExpiry,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, r.mapper.MapError(err)
	}

	user.Name = stringPtr(name)
	user.PasswordHash = stringPtr(passwordHash)
	user.VerifyCodeHash = stringPtr(verifyHash)
	user.ResetCodeHash = stringPtr(resetHash)

	if user.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return persistence.User{}, err
	}
	if user.EmailVerifiedAt, err = parseNullTime(verifiedAt); err != nil {
		return persistence.User{}, err
	}
	if user.VerifyCodeExpiresAt, err = parseNullTime(verifyExpiry); err != nil {
		return persistence.User{}, err
	}
	if user.ResetCodeExpiresAt, err = parseNullTime(resetExpiry); err != nil {
		return persistence.User{}, err
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}
