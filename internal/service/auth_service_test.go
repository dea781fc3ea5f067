package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository/sqlite"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("không mở được store test: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewAuthService(sqlite.NewUserRepository(store), "test-secret", time.Hour)
}

func TestRegisterAndLogin(t *testing.T) {
	as := newAuthService(t)
	ctx := context.Background()

	user, err := as.Register(ctx, domain.RegisterUserDTO{Username: "operador1", Password: "secreto123"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != "operator" {
		t.Errorf("vai trò mặc định phải là operator, got %s", user.Role)
	}
	if user.Password != "" {
		t.Error("Register không được trả về password hash")
	}

	// Username trùng
	if _, err := as.Register(ctx, domain.RegisterUserDTO{Username: "operador1", Password: "otro"}); !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("muốn ErrUserAlreadyExists, got %v", err)
	}

	resp, err := as.Login(ctx, domain.LoginUserDTO{Username: "operador1", Password: "secreto123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("Login phải trả về token")
	}

	_, claims, err := as.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims["username"] != "operador1" || claims["role"] != "operator" {
		t.Fatalf("claims sai: %v", claims)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	as := newAuthService(t)
	ctx := context.Background()

	if _, err := as.Register(ctx, domain.RegisterUserDTO{Username: "admin2", Password: "correcta", Role: "admin"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := as.Login(ctx, domain.LoginUserDTO{Username: "admin2", Password: "incorrecta"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("muốn ErrInvalidCredentials, got %v", err)
	}
	if _, err := as.Login(ctx, domain.LoginUserDTO{Username: "nadie", Password: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("user không tồn tại cũng phải ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	as := newAuthService(t)
	if _, _, err := as.ValidateToken("không-phải-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("muốn ErrTokenInvalid, got %v", err)
	}
}
