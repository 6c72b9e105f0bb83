package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/orderhub/pkg/migration"
)

var (
	// ErrUserNotFound はユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("ユーザーが見つかりません")
	// ErrDuplicateUser はユーザー名またはメールアドレスが登録済みであることを表す。
	ErrDuplicateUser = errors.New("ユーザー名またはメールアドレスはすでに登録されています")
)

// user はusersテーブルの1行。
type user struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// userStore はusersテーブルへのクエリを実行する。
type userStore struct {
	db *sql.DB
}

// Create はユーザーを保存する。一意制約に違反した場合はErrDuplicateUserを返す。
func (s *userStore) Create(ctx context.Context, u user) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if migration.IsUniqueViolation(err) {
		return ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}
	return nil
}

// FindByUsername はユーザー名でユーザーを取得する。
func (s *userStore) FindByUsername(ctx context.Context, username string) (user, error) {
	return s.findOne(ctx, `SELECT id, username, email, password_hash, role, created_at FROM users WHERE username = ?`, username)
}

// FindByID はIDでユーザーを取得する。
func (s *userStore) FindByID(ctx context.Context, id string) (user, error) {
	return s.findOne(ctx, `SELECT id, username, email, password_hash, role, created_at FROM users WHERE id = ?`, id)
}

func (s *userStore) findOne(ctx context.Context, query string, arg string) (user, error) {
	var (
		u         user
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user{}, ErrUserNotFound
	}
	if err != nil {
		return user{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return user{}, fmt.Errorf("登録日時の解析に失敗: %w", err)
	}
	return u, nil
}
