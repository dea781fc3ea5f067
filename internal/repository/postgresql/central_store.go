package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/config"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// CentralStore là bản sao (mirror) của ledger trên Postgres trung tâm.
// Nó KHÔNG phải nguồn dữ liệu gốc (store SQLite cục bộ mới là) và có
// thể không truy cập được bất kỳ lúc nào; mọi lỗi ở đây để reconciler
// xử lý bằng cách giữ thao tác trong queue và thử lại chu kỳ sau.
type CentralStore struct {
	db *sql.DB
}

func NewCentralStore(cfg *config.Config) (*CentralStore, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.CentralDBHost, cfg.CentralDBPort, cfg.CentralDBUser, cfg.CentralDBPassword,
		cfg.CentralDBName, cfg.CentralDBSslMode)

	db, err := sql.Open("pgx", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("lỗi mở kết nối store trung tâm: %w", err)
	}
	// Không Ping ở đây: store trung tâm được phép offline lúc khởi động;
	// reconciler sẽ Ping với timeout riêng trước chu kỳ đầu tiên.
	return &CentralStore{db: db}, nil
}

func (s *CentralStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		if isAuthError(err) {
			return fmt.Errorf("%w: xác thực store trung tâm thất bại: %v", repository.ErrCentralAuth, err)
		}
		return fmt.Errorf("lỗi ping store trung tâm: %w", err)
	}
	return nil
}

// isAuthError nhận diện lỗi class 28 (invalid_authorization_specification)
// từ driver pgx. Driver trả lỗi server dạng *pgconn.PgError, phải dò bằng
// errors.As vì lỗi đã bị wrap qua database/sql.
func isAuthError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "28")
}

func (s *CentralStore) Close() error { return s.db.Close() }

// PushSession chèn hoặc cập nhật snapshot một phiên, khóa theo
// (plate, entry_time) để replay idempotent: đẩy lại một phiên đã có chỉ
// ghi đè bằng cùng dữ liệu.
func (s *CentralStore) PushSession(ctx context.Context, session *domain.VehicleSession) error {
	query := `INSERT INTO vehicle_sessions
	           (plate, vehicle_type, driver, entry_time, exit_time, slot_number, status,
	            elapsed_minutes, hourly_rate, amount_due)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	           ON CONFLICT (plate, entry_time) DO UPDATE SET
	               exit_time = EXCLUDED.exit_time,
	               status = EXCLUDED.status,
	               elapsed_minutes = EXCLUDED.elapsed_minutes,
	               hourly_rate = EXCLUDED.hourly_rate,
	               amount_due = EXCLUDED.amount_due`

	var driverVal sql.NullString
	if session.Driver.Valid {
		driverVal = sql.NullString{String: session.Driver.String, Valid: true}
	}
	var exitTimeVal sql.NullTime
	if session.ExitTime.Valid {
		exitTimeVal = sql.NullTime{Time: session.ExitTime.Time, Valid: true}
	}
	var elapsedVal sql.NullFloat64
	if session.ElapsedMinutes.Valid {
		elapsedVal = sql.NullFloat64{Float64: session.ElapsedMinutes.Float64, Valid: true}
	}
	var rateVal sql.NullFloat64
	if session.HourlyRate.Valid {
		rateVal = sql.NullFloat64{Float64: session.HourlyRate.Float64, Valid: true}
	}
	var amountVal sql.NullFloat64
	if session.AmountDue.Valid {
		amountVal = sql.NullFloat64{Float64: session.AmountDue.Float64, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		session.Plate, session.VehicleType, driverVal, session.EntryTime, exitTimeVal,
		session.SlotID, session.Status, elapsedVal, rateVal, amountVal,
	)
	if err != nil {
		// 28xxx: lỗi xác thực, cấu hình sai, không nên retry nóng
		if isAuthError(err) {
			return fmt.Errorf("%w: xác thực store trung tâm thất bại: %v", repository.ErrCentralAuth, err)
		}
		return fmt.Errorf("CentralStore.PushSession: %w", err)
	}
	return nil
}
