package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("username or email already taken")
)

// Store is the persistence the Service needs; Repository is the Postgres one.
type Store interface {
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id int) (*User, error)
	SetStatus(ctx context.Context, id int, status Status, at time.Time) error
	SearchUsers(ctx context.Context, query string) ([]User, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	query := `INSERT INTO users (username, email, password) VALUES ($1, $2, $3)
		RETURNING id, status, created_at`

	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.Password).
		Scan(&user.ID, &user.Status, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

const selectUser = `SELECT id, username, email, password, status, last_login, created_at FROM users`

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectUser+" WHERE username = $1", username))
}

func (r *Repository) GetUserByID(ctx context.Context, id int) (*User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectUser+" WHERE id = $1", id))
}

func (r *Repository) scanOne(row *sql.Row) (*User, error) {
	u := &User{}
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Status, &lastLogin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return u, nil
}

// SetStatus records online/offline. Going online also stamps last_login.
func (r *Repository) SetStatus(ctx context.Context, id int, status Status, at time.Time) error {
	query := `UPDATE users SET status = $2::text,
		last_login = CASE WHEN $2::text = 'online' THEN $3::timestamptz ELSE last_login END
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(status), at)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, username, status FROM users WHERE username ILIKE $1 ORDER BY username LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Status); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
