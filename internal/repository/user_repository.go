package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/insuratrack/insuratrack/internal/model"
	"github.com/insuratrack/insuratrack/internal/utils"
)

// UserRepo provides data access to the users table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userCols = "id,username,name,email,password_hash,role,phone,reset_token_hash,reset_token_expires_at,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var hash sql.NullString
	var exp sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.PasswordHash, &u.Role,
		&u.Phone, &hash, &exp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if hash.Valid {
		h := hash.String
		u.ResetTokenHash = &h
	}
	if exp.Valid {
		t := exp.Time
		u.ResetTokenExpires = &t
	}
	return u, nil
}

// CreateTx inserts a user within the provided transaction, hashing the
// password with the given bcrypt cost. Duplicate username and email are
// reported as distinct sentinel errors so registration can tell the caller
// which field clashed.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, username, name, email, password, role, phone string, cost int) (uint64, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username=?)", username).Scan(&exists); err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrUsernameExists
	}
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email=?)", email).Scan(&exists); err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrEmailExists
	}

	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (username, name, email, password_hash, role, phone) VALUES (?,?,?,?,?,?)",
		username, name, email, hash, role, phone)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByUsername fetches a user by login name.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE username=? LIMIT 1", strings.TrimSpace(username)))
}

// UsernameExists reports whether a username is already taken.
func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username=?)", strings.TrimSpace(username)).Scan(&exists)
	return exists, err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", strings.ToLower(strings.TrimSpace(email))))
}

// UpdatePassword replaces the stored hash for a user.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	return err
}

// UpdateProfile merges the supplied non-empty fields into the user row. If
// the email changes it must not belong to another account.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name, email, phone *string) (model.User, error) {
	if email != nil {
		norm := strings.ToLower(strings.TrimSpace(*email))
		var exists bool
		err := r.DB.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE email=? AND id<>?)", norm, id).Scan(&exists)
		if err != nil {
			return model.User{}, err
		}
		if exists {
			return model.User{}, ErrEmailExists
		}
		email = &norm
	}

	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if name != nil {
		sets = append(sets, "name=?")
		args = append(args, *name)
	}
	if email != nil {
		sets = append(sets, "email=?")
		args = append(args, *email)
	}
	if phone != nil {
		sets = append(sets, "phone=?")
		args = append(args, *phone)
	}
	if len(sets) > 0 {
		args = append(args, id)
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?", args...); err != nil {
			return model.User{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// SetResetToken stores the digest of a freshly issued reset token and its
// expiry on the user row.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_token_expires_at=? WHERE id=?",
		tokenHash, expiresAt.UTC(), id)
	return err
}

// ClearResetToken drops the reset token, e.g. after a failed mail send.
func (r *UserRepo) ClearResetToken(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=NULL, reset_token_expires_at=NULL WHERE id=?", id)
	return err
}

// GetByResetToken fetches the user holding the given token digest, but
// only while the token is still valid. Expired or unknown tokens surface
// as sql.ErrNoRows.
func (r *UserRepo) GetByResetToken(ctx context.Context, tokenHash string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE reset_token_hash=? AND reset_token_expires_at > UTC_TIMESTAMP() LIMIT 1",
		tokenHash))
}

// ResetPassword stores a new hash and clears the reset token in one
// statement so a token cannot be replayed.
func (r *UserRepo) ResetPassword(ctx context.Context, id uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_token_expires_at=NULL WHERE id=?",
		hash, id)
	return err
}
