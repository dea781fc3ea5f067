package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
)

type sqliteReportRepository struct {
	q querier
}

func NewReportRepository(store *Store) repository.ReportRepository {
	return &sqliteReportRepository{q: store.DB()}
}

func (r *sqliteReportRepository) WithTx(tx *sql.Tx) repository.ReportRepository {
	return &sqliteReportRepository{q: tx}
}

func (r *sqliteReportRepository) IncrementEntries(ctx context.Context, date string) error {
	// Upsert: dòng báo cáo của một ngày được tạo lazy ở lần vào/ra đầu tiên,
	// sau đó chỉ tăng dần, không bao giờ tính lại từ bảng phiên.
	query := `INSERT INTO daily_reports (date, entries_count, pending_sync) VALUES (?, 1, 1)
	           ON CONFLICT(date) DO UPDATE SET entries_count = entries_count + 1, pending_sync = 1`
	if _, err := r.q.ExecContext(ctx, query, date); err != nil {
		return fmt.Errorf("ReportRepository.IncrementEntries: %w", err)
	}
	return nil
}

func (r *sqliteReportRepository) IncrementExits(ctx context.Context, date string, amount float64) error {
	query := `INSERT INTO daily_reports (date, exits_count, total_collected, pending_sync) VALUES (?, 1, ?, 1)
	           ON CONFLICT(date) DO UPDATE SET exits_count = exits_count + 1,
	               total_collected = total_collected + excluded.total_collected, pending_sync = 1`
	if _, err := r.q.ExecContext(ctx, query, date, amount); err != nil {
		return fmt.Errorf("ReportRepository.IncrementExits: %w", err)
	}
	return nil
}

func (r *sqliteReportRepository) FindByDate(ctx context.Context, date string) (*domain.DailyReport, error) {
	report := &domain.DailyReport{}
	query := `SELECT id, date, entries_count, exits_count, total_collected, pending_sync
	           FROM daily_reports WHERE date = ?`
	err := r.q.QueryRowContext(ctx, query, date).Scan(
		&report.ID, &report.Date, &report.EntriesCount, &report.ExitsCount,
		&report.TotalCollected, &report.PendingSync,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ReportRepository.FindByDate: %w", err)
	}
	return report, nil
}

func (r *sqliteReportRepository) FindRange(ctx context.Context, startDate, endDate string) ([]domain.DailyReport, error) {
	query := `SELECT id, date, entries_count, exits_count, total_collected, pending_sync
	           FROM daily_reports WHERE date BETWEEN ? AND ? ORDER BY date ASC`
	rows, err := r.q.QueryContext(ctx, query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("ReportRepository.FindRange: %w", err)
	}
	defer rows.Close()

	var reports []domain.DailyReport
	for rows.Next() {
		var report domain.DailyReport
		if err := rows.Scan(
			&report.ID, &report.Date, &report.EntriesCount, &report.ExitsCount,
			&report.TotalCollected, &report.PendingSync,
		); err != nil {
			return nil, fmt.Errorf("ReportRepository.FindRange (scanning row): %w", err)
		}
		reports = append(reports, report)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ReportRepository.FindRange (rows error): %w", err)
	}
	return reports, nil
}

func (r *sqliteReportRepository) ClearPendingSync(ctx context.Context, date string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE daily_reports SET pending_sync = 0 WHERE date = ?`, date)
	if err != nil {
		return fmt.Errorf("ReportRepository.ClearPendingSync: %w", err)
	}
	return nil
}

func (r *sqliteReportRepository) ClearSyncedDates(ctx context.Context) (int64, error) {
	// Chỉ clear những ngày không còn phiên pending nào chạm tới (ngày vào
	// hoặc ngày ra). Ngày có phiên chưa đẩy lên trung tâm giữ cờ nguyên vẹn.
	query := `UPDATE daily_reports SET pending_sync = 0
	           WHERE pending_sync = 1
	             AND date NOT IN (
	                 SELECT date(entry_time, 'localtime') FROM vehicle_sessions WHERE pending_sync = 1
	                 UNION
	                 SELECT date(exit_time, 'localtime') FROM vehicle_sessions
	                  WHERE pending_sync = 1 AND exit_time IS NOT NULL
	             )`
	res, err := r.q.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("ReportRepository.ClearSyncedDates: %w", err)
	}
	cleared, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ReportRepository.ClearSyncedDates (rows affected): %w", err)
	}
	return cleared, nil
}
