package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type UserFilter struct {
	CompanyID string
	ExcludeID string
	// Roles limits the result to these roles; an empty slice matches nothing.
	Roles     []string
	Role      string
	IsActive  *bool
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

var userSortColumns = map[string]string{
	"created_at": "u.created_at",
	"full_name":  "u.full_name",
	"last_login": "u.last_login",
	"email":      "u.email",
}

const userColumns = `u.id, u.company_id, u.email, u.hashed_password, u.full_name, u.role, u.is_active,
	u.can_authenticate, u.specialization, u.settings, u.last_login, u.created_at, u.updated_at`

func scanUser(row rowScanner, extra ...any) (User, error) {
	var (
		item     User
		settings []byte
	)
	dest := []any{&item.ID, &item.CompanyID, &item.Email, &item.PasswordHash, &item.FullName, &item.Role,
		&item.IsActive, &item.CanAuthenticate, &item.Specialization, &settings, &item.LastLogin,
		&item.CreatedAt, &item.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return User{}, err
	}
	item.Settings = json.RawMessage(settings)
	return item, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE LOWER(u.email) = LOWER($1)`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, userID))
}

// GetCompanyUser returns a user only when it belongs to companyID.
func (s *PostgresStore) GetCompanyUser(ctx context.Context, companyID, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1 AND u.company_id = $2`, userID, companyID))
}

func (s *PostgresStore) HasUserWithRole(ctx context.Context, role string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)`, role).Scan(&exists); err != nil {
		return false, fmt.Errorf("check users by role: %w", err)
	}
	return exists, nil
}

func insertUser(ctx context.Context, q queryer, item User) (User, error) {
	settings := item.Settings
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}
	created, err := scanUser(q.QueryRowContext(ctx, `
		INSERT INTO users (company_id, email, hashed_password, full_name, role, is_active, can_authenticate, specialization, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+strings.ReplaceAll(userColumns, "u.", ""),
		item.CompanyID, strings.ToLower(strings.TrimSpace(item.Email)), item.PasswordHash, item.FullName, item.Role,
		item.IsActive, item.CanAuthenticate, item.Specialization, []byte(settings),
	))
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, item User) (User, error) {
	return insertUser(ctx, s.db, item)
}

func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error) {
	page, limit := NormalizePage(filter.Page, filter.Limit, DefaultPageSize)

	b := &whereBuilder{}
	b.add("u.company_id = %s", filter.CompanyID)
	b.add("u.role = ANY(%s)", filter.Roles)
	if filter.ExcludeID != "" {
		b.add("u.id <> %s", filter.ExcludeID)
	}
	if filter.Role != "" {
		b.add("u.role = %s", filter.Role)
	}
	if filter.IsActive != nil {
		b.add("u.is_active = %s", *filter.IsActive)
	}
	if v := strings.TrimSpace(filter.Search); v != "" {
		p := b.bind(likePattern(v))
		b.conds = append(b.conds, fmt.Sprintf("(u.full_name ILIKE %[1]s OR u.email ILIKE %[1]s)", p))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u WHERE `+b.sql(), b.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	column, ok := userSortColumns[filter.SortBy]
	if !ok {
		column = "u.created_at"
	}
	args := append([]any(nil), b.args...)
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`
		SELECT %s,
			(SELECT COUNT(*) FROM cases c WHERE c.assigned_user_id = u.id AND c.deleted_at IS NULL)
		FROM users u
		WHERE %s
		ORDER BY %s %s NULLS LAST, u.id
		LIMIT $%d OFFSET $%d`, userColumns, b.sql(), column, sortDirection(filter.SortOrder), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var count int
		item, err := scanUser(rows, &count)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		item.CaseCount = count
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return items, total, nil
}

// UpdateUser writes the editable profile and access columns.
func (s *PostgresStore) UpdateUser(ctx context.Context, item User) (User, error) {
	settings := item.Settings
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}
	updated, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users u SET full_name=$2, role=$3, can_authenticate=$4, specialization=$5, settings=$6, updated_at=NOW()
		WHERE u.id=$1
		RETURNING `+userColumns,
		item.ID, item.FullName, item.Role, item.CanAuthenticate, item.Specialization, []byte(settings),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, err
	}
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

// MarkLogin flags the user online and stamps last_login.
func (s *PostgresStore) MarkLogin(ctx context.Context, userID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET is_active=TRUE, last_login=$2 WHERE id=$1`, userID, at); err != nil {
		return fmt.Errorf("mark login: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkLogout(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET is_active=FALSE WHERE id=$1`, userID); err != nil {
		return fmt.Errorf("mark logout: %w", err)
	}
	return nil
}

func (s *PostgresStore) SuggestUsers(ctx context.Context, companyID, q string, limit int) ([]UserShort, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, full_name
		FROM users
		WHERE company_id = $1 AND full_name ILIKE $2
		ORDER BY (full_name ILIKE $3) DESC, full_name
		LIMIT $4
	`, companyID, likePattern(q), prefixPattern(q), limit)
	if err != nil {
		return nil, fmt.Errorf("suggest users: %w", err)
	}
	defer rows.Close()
	return scanUserShorts(rows)
}

// ListCompanyUsers returns the subset of ids that belong to companyID.
func (s *PostgresStore) ListCompanyUsers(ctx context.Context, companyID string, ids []string) ([]UserShort, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, full_name FROM users WHERE company_id = $1 AND id::text = ANY($2) ORDER BY full_name
	`, companyID, ids)
	if err != nil {
		return nil, fmt.Errorf("list company users: %w", err)
	}
	defer rows.Close()
	return scanUserShorts(rows)
}

func scanUserShorts(rows *sql.Rows) ([]UserShort, error) {
	items := make([]UserShort, 0)
	for rows.Next() {
		var item UserShort
		if err := rows.Scan(&item.ID, &item.Email, &item.FullName); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}
