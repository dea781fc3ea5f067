package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gopkg.in/guregu/null.v4"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
)

type sqliteSessionRepository struct {
	q querier
}

func NewSessionRepository(store *Store) repository.SessionRepository {
	return &sqliteSessionRepository{q: store.DB()}
}

func (r *sqliteSessionRepository) WithTx(tx *sql.Tx) repository.SessionRepository {
	return &sqliteSessionRepository{q: tx}
}

const sessionColumns = `id, plate, vehicle_type, driver, entry_time, exit_time, slot_id, status,
	elapsed_minutes, hourly_rate, amount_due, pending_sync`

func (r *sqliteSessionRepository) Create(ctx context.Context, session *domain.VehicleSession) (*domain.VehicleSession, error) {
	query := `INSERT INTO vehicle_sessions (plate, vehicle_type, driver, entry_time, slot_id, status, pending_sync)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`

	var driverVal sql.NullString
	if session.Driver.Valid {
		driverVal = sql.NullString{String: session.Driver.String, Valid: true}
	}

	result, err := r.q.ExecContext(ctx, query,
		session.Plate, session.VehicleType, driverVal, session.EntryTime,
		session.SlotID, session.Status, session.PendingSync,
	)
	if err != nil {
		return nil, fmt.Errorf("SessionRepository.Create: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("SessionRepository.Create (last insert id): %w", err)
	}
	session.ID = int(id)
	return session, nil
}

func (r *sqliteSessionRepository) FindActiveByPlate(ctx context.Context, plate string) (*domain.VehicleSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM vehicle_sessions
	           WHERE plate = ? AND status = ?
	           ORDER BY entry_time DESC LIMIT 1`
	session, err := r.scanOne(ctx, query, plate, domain.SessionActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoActiveSession
		}
		return nil, fmt.Errorf("SessionRepository.FindActiveByPlate: %w", err)
	}
	return session, nil
}

func (r *sqliteSessionRepository) FindLatestClosedByPlate(ctx context.Context, plate string) (*domain.VehicleSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM vehicle_sessions
	           WHERE plate = ? AND status = ?
	           ORDER BY exit_time DESC LIMIT 1`
	session, err := r.scanOne(ctx, query, plate, domain.SessionClosed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SessionRepository.FindLatestClosedByPlate: %w", err)
	}
	return session, nil
}

func (r *sqliteSessionRepository) Close(ctx context.Context, session *domain.VehicleSession) error {
	query := `UPDATE vehicle_sessions
	           SET exit_time = ?, status = ?, elapsed_minutes = ?, hourly_rate = ?, amount_due = ?, pending_sync = ?
	           WHERE id = ? AND status = ?`

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

	result, err := r.q.ExecContext(ctx, query,
		exitTimeVal, domain.SessionClosed, elapsedVal, rateVal, amountVal, session.PendingSync,
		session.ID, domain.SessionActive,
	)
	if err != nil {
		return fmt.Errorf("SessionRepository.Close: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("SessionRepository.Close (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		// Phiên không còn active, đã bị đóng trước đó
		return repository.ErrNoActiveSession
	}
	session.Status = domain.SessionClosed
	return nil
}

func (r *sqliteSessionRepository) FindAllActive(ctx context.Context) ([]domain.VehicleSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM vehicle_sessions
	           WHERE status = ? ORDER BY entry_time ASC`
	return r.scanMany(ctx, "FindAllActive", query, domain.SessionActive)
}

func (r *sqliteSessionRepository) FindByEntryDate(ctx context.Context, date string) ([]domain.VehicleSession, error) {
	// date() chuẩn hóa timestamp có offset về UTC trước khi lấy ngày;
	// 'localtime' đưa về giờ địa phương cho khớp với khóa ngày của báo cáo
	query := `SELECT ` + sessionColumns + ` FROM vehicle_sessions
	           WHERE date(entry_time, 'localtime') = ? ORDER BY entry_time ASC`
	return r.scanMany(ctx, "FindByEntryDate", query, date)
}

func (r *sqliteSessionRepository) ClearPendingSync(ctx context.Context, sessionID int, status domain.VehicleSessionStatus) error {
	// Chỉ xóa cờ cho đúng MỘT phiên có push thành công, không bao giờ
	// UPDATE hàng loạt trên mọi dòng pending_sync = 1. Điều kiện status
	// giữ nguyên cờ cho phiên vừa bị đóng xen giữa push và clear.
	_, err := r.q.ExecContext(ctx,
		`UPDATE vehicle_sessions SET pending_sync = 0 WHERE id = ? AND status = ?`,
		sessionID, status)
	if err != nil {
		return fmt.Errorf("SessionRepository.ClearPendingSync: %w", err)
	}
	return nil
}

func (r *sqliteSessionRepository) FindPendingSync(ctx context.Context) ([]domain.VehicleSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM vehicle_sessions
	           WHERE pending_sync = 1 ORDER BY id ASC`
	return r.scanMany(ctx, "FindPendingSync", query)
}

func (r *sqliteSessionRepository) scanOne(ctx context.Context, query string, args ...any) (*domain.VehicleSession, error) {
	row := r.q.QueryRowContext(ctx, query, args...)
	return scanSession(row.Scan)
}

func (r *sqliteSessionRepository) scanMany(ctx context.Context, op string, query string, args ...any) ([]domain.VehicleSession, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SessionRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var sessions []domain.VehicleSession
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("SessionRepository.%s (scanning row): %w", op, err)
		}
		sessions = append(sessions, *session)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SessionRepository.%s (rows error): %w", op, err)
	}
	return sessions, nil
}

func scanSession(scan func(dest ...any) error) (*domain.VehicleSession, error) {
	session := &domain.VehicleSession{}
	var driver sql.NullString
	var exitTime sql.NullTime
	var elapsed, rate, amount sql.NullFloat64

	err := scan(
		&session.ID, &session.Plate, &session.VehicleType, &driver,
		&session.EntryTime, &exitTime, &session.SlotID, &session.Status,
		&elapsed, &rate, &amount, &session.PendingSync,
	)
	if err != nil {
		return nil, err
	}
	if driver.Valid {
		session.Driver = null.StringFrom(driver.String)
	}
	if exitTime.Valid {
		session.ExitTime = null.TimeFrom(exitTime.Time)
	}
	if elapsed.Valid {
		session.ElapsedMinutes = null.FloatFrom(elapsed.Float64)
	}
	if rate.Valid {
		session.HourlyRate = null.FloatFrom(rate.Float64)
	}
	if amount.Valid {
		session.AmountDue = null.FloatFrom(amount.Float64)
	}
	return session, nil
}
