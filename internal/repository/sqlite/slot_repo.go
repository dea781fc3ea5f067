package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
)

type sqliteSlotRepository struct {
	q querier
}

func NewSlotRepository(store *Store) repository.SlotRepository {
	return &sqliteSlotRepository{q: store.DB()}
}

func (r *sqliteSlotRepository) WithTx(tx *sql.Tx) repository.SlotRepository {
	return &sqliteSlotRepository{q: tx}
}

func (r *sqliteSlotRepository) AcquireFree(ctx context.Context) (*domain.ParkingSlot, error) {
	slot := &domain.ParkingSlot{}
	// Tie-break xác định: luôn lấy chỗ trống có số nhỏ nhất
	query := `SELECT id, number, occupied FROM parking_slots WHERE occupied = 0 ORDER BY number ASC LIMIT 1`
	err := r.q.QueryRowContext(ctx, query).Scan(&slot.ID, &slot.Number, &slot.Occupied)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrLotFull
		}
		return nil, fmt.Errorf("SlotRepository.AcquireFree: %w", err)
	}

	result, err := r.q.ExecContext(ctx, `UPDATE parking_slots SET occupied = 1 WHERE id = ? AND occupied = 0`, slot.ID)
	if err != nil {
		return nil, fmt.Errorf("SlotRepository.AcquireFree (đánh dấu occupied): %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("SlotRepository.AcquireFree (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		// Chỗ vừa bị chiếm giữa SELECT và UPDATE, trong cùng transaction
		// điều này không xảy ra, nhưng giữ kiểm tra cho an toàn.
		return nil, repository.ErrLotFull
	}
	slot.Occupied = true
	return slot, nil
}

func (r *sqliteSlotRepository) Release(ctx context.Context, slotID int) error {
	// Idempotent: release chỗ đã trống không phải lỗi (chịu được retry)
	_, err := r.q.ExecContext(ctx, `UPDATE parking_slots SET occupied = 0 WHERE id = ?`, slotID)
	if err != nil {
		return fmt.Errorf("SlotRepository.Release: %w", err)
	}
	return nil
}

func (r *sqliteSlotRepository) FindByID(ctx context.Context, id int) (*domain.ParkingSlot, error) {
	slot := &domain.ParkingSlot{}
	err := r.q.QueryRowContext(ctx, `SELECT id, number, occupied FROM parking_slots WHERE id = ?`, id).
		Scan(&slot.ID, &slot.Number, &slot.Occupied)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SlotRepository.FindByID: %w", err)
	}
	return slot, nil
}

func (r *sqliteSlotRepository) FindAll(ctx context.Context) ([]domain.ParkingSlot, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, number, occupied FROM parking_slots ORDER BY number ASC`)
	if err != nil {
		return nil, fmt.Errorf("SlotRepository.FindAll: %w", err)
	}
	defer rows.Close()

	var slots []domain.ParkingSlot
	for rows.Next() {
		var slot domain.ParkingSlot
		if err := rows.Scan(&slot.ID, &slot.Number, &slot.Occupied); err != nil {
			return nil, fmt.Errorf("SlotRepository.FindAll (scanning row): %w", err)
		}
		slots = append(slots, slot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SlotRepository.FindAll (rows error): %w", err)
	}
	return slots, nil
}

func (r *sqliteSlotRepository) CountAvailable(ctx context.Context) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM parking_slots WHERE occupied = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("SlotRepository.CountAvailable: %w", err)
	}
	return count, nil
}
