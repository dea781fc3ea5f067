package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

// Store bọc kết nối SQLite cục bộ, nguồn dữ liệu gốc của toàn hệ thống.
// SQLite chỉ cho một writer tại một thời điểm; writeMu tuần tự hóa các
// transaction ghi để thao tác vào/ra của ledger và việc cập nhật cờ của
// reconciler không bao giờ chạy đua trên cùng một dòng (xem WithTx).
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewStore mở (hoặc tạo) file DB cục bộ, bật WAL và tự migrate schema.
func NewStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("lỗi mở database cục bộ: %w", err)
	}
	// go-sqlite3 không an toàn với nhiều kết nối ghi đồng thời trên cùng file
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("lỗi ping database cục bộ: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS parking_slots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number INTEGER UNIQUE NOT NULL,
		occupied BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS vehicle_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plate TEXT NOT NULL,
		vehicle_type TEXT NOT NULL,
		driver TEXT,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP,
		slot_id INTEGER NOT NULL REFERENCES parking_slots(id),
		status TEXT NOT NULL DEFAULT 'active',
		elapsed_minutes REAL,
		hourly_rate REAL,
		amount_due REAL,
		pending_sync BOOLEAN NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_plate_status ON vehicle_sessions(plate, status);
	CREATE INDEX IF NOT EXISTS idx_sessions_pending_sync ON vehicle_sessions(pending_sync);

	CREATE TABLE IF NOT EXISTS daily_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		entries_count INTEGER NOT NULL DEFAULT 0,
		exits_count INTEGER NOT NULL DEFAULT 0,
		total_collected REAL NOT NULL DEFAULT 0,
		pending_sync BOOLEAN NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS pending_operations (
		id TEXT PRIMARY KEY,
		seq INTEGER UNIQUE NOT NULL,
		kind TEXT NOT NULL,
		plate TEXT NOT NULL,
		ts TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("lỗi migrate schema cục bộ: %w", err)
	}
	return nil
}

// SeedSlots tạo các chỗ đỗ 1..capacity nếu bảng còn trống. Chạy một lần
// khi khởi động; thay đổi capacity sau đó chỉ thêm chỗ mới, không xóa.
func (s *Store) SeedSlots(ctx context.Context, capacity int) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parking_slots`).Scan(&count); err != nil {
		return fmt.Errorf("lỗi đếm chỗ đỗ: %w", err)
	}
	if count >= capacity {
		return nil
	}
	for n := count + 1; n <= capacity; n++ {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO parking_slots (number, occupied) VALUES (?, 0)`, n); err != nil {
			return fmt.Errorf("lỗi tạo chỗ đỗ số %d: %w", n, err)
		}
	}
	log.Printf("Store: Đã tạo %d chỗ đỗ (tổng sức chứa %d).", capacity-count, capacity)
	return nil
}

// SeedAdminUser tạo tài khoản admin mặc định nếu chưa có người dùng nào.
func (s *Store) SeedAdminUser(ctx context.Context, username, password string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("lỗi đếm người dùng: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("lỗi hash mật khẩu admin mặc định: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password, role) VALUES (?, ?, 'admin')`, username, string(hash)); err != nil {
		return fmt.Errorf("lỗi tạo tài khoản admin mặc định: %w", err)
	}
	log.Printf("Store: Đã tạo tài khoản admin mặc định '%s'.", username)
	return nil
}

// WithTx chạy fn trong một transaction ghi duy nhất, commit khi fn trả về
// nil và rollback khi có lỗi. Mọi hiệu ứng của một thao tác vào/ra phải
// nằm trong cùng một lần gọi WithTx để crash giữa chừng không để lại chỗ
// đỗ bị chiếm mà không có phiên sở hữu (hoặc ngược lại).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lỗi mở transaction cục bộ: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("Store: Lỗi rollback transaction: %v (lỗi gốc: %v)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lỗi commit transaction cục bộ: %w", err)
	}
	return nil
}

// querier là phần chung của *sql.DB và *sql.Tx mà các repo sử dụng,
// cho phép cùng một repo chạy ngoài hoặc trong transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
