package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/kalentivan/tg/internal/model"
	"github.com/kalentivan/tg/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// CreateTx inserts a user inside an existing transaction and fills in the
// generated id. The email must already be normalized by the caller.
// Duplicate email or username surfaces as ErrConflict.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, u *model.User, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.PasswordHash = hash
	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password_hash, is_admin) VALUES (?,?,?,?,?)",
		u.ID, u.Username, u.Email, u.PasswordHash, u.IsAdmin)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,username,email,password_hash,is_admin,created_at FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,username,email,password_hash,is_admin,created_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// List returns all users ordered by creation time.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,username,email,password_hash,is_admin,created_at FROM users ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUsername performs a partial update of the username column.
func (r *UserRepo) UpdateUsername(ctx context.Context, id, username string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET username=? WHERE id=?", username, id)
	if isDuplicate(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// RowsAffected is also 0 when the value did not change; confirm the
		// user exists before reporting ErrNotFound.
		var one int
		if err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", id).Scan(&one); err == sql.ErrNoRows {
			return ErrNotFound
		}
	}
	return nil
}

// Delete removes a user. Tokens and memberships cascade via foreign keys.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByIDs returns how many of the given ids exist. Used to validate
// member lists on chat creation without N queries.
func (r *UserRepo) CountByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := "SELECT COUNT(*) FROM users WHERE id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// isDuplicate reports whether err is a MySQL duplicate-entry error (1062).
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}
