package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
)

type sqliteUserRepository struct {
	q querier
}

func NewUserRepository(store *Store) repository.UserRepository {
	return &sqliteUserRepository{q: store.DB()}
}

func (r *sqliteUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	// user.Password ở đây là password hash (bcrypt)
	query := `INSERT INTO users (username, password, role) VALUES (?, ?, ?)`
	result, err := r.q.ExecContext(ctx, query, user.Username, user.Password, user.Role)
	if err != nil {
		// go-sqlite3 trả lỗi UNIQUE constraint dưới dạng chuỗi
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			return nil, fmt.Errorf("%w: tên người dùng '%s' đã tồn tại", repository.ErrDuplicateEntry, user.Username)
		}
		return nil, fmt.Errorf("UserRepository.Create: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("UserRepository.Create (last insert id): %w", err)
	}
	user.ID = int(id)
	return user, nil
}

func (r *sqliteUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	user := &domain.User{}
	query := `SELECT id, username, password, role, created_at FROM users WHERE username = ?`
	err := r.q.QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.Password, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("UserRepository.FindByUsername: %w", err)
	}
	return user, nil
}

func (r *sqliteUserRepository) FindByID(ctx context.Context, id int) (*domain.User, error) {
	user := &domain.User{}
	query := `SELECT id, username, password, role, created_at FROM users WHERE id = ?`
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Password, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("UserRepository.FindByID: %w", err)
	}
	return user, nil
}
