package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
)

type sqlitePendingOperationRepository struct {
	q querier
}

func NewPendingOperationRepository(store *Store) repository.PendingOperationRepository {
	return &sqlitePendingOperationRepository{q: store.DB()}
}

func (r *sqlitePendingOperationRepository) WithTx(tx *sql.Tx) repository.PendingOperationRepository {
	return &sqlitePendingOperationRepository{q: tx}
}

func (r *sqlitePendingOperationRepository) Append(ctx context.Context, op *domain.PendingOperation) error {
	// seq giữ thứ tự enqueue xuyên restart (uuid không có thứ tự)
	query := `INSERT INTO pending_operations (id, seq, kind, plate, ts)
	           VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM pending_operations), ?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, query, op.ID, op.Kind, op.Plate, op.Timestamp); err != nil {
		return fmt.Errorf("PendingOperationRepository.Append: %w", err)
	}
	return nil
}

func (r *sqlitePendingOperationRepository) FindAll(ctx context.Context) ([]domain.PendingOperation, error) {
	query := `SELECT id, kind, plate, ts FROM pending_operations ORDER BY seq ASC`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("PendingOperationRepository.FindAll: %w", err)
	}
	defer rows.Close()

	var ops []domain.PendingOperation
	for rows.Next() {
		var op domain.PendingOperation
		if err := rows.Scan(&op.ID, &op.Kind, &op.Plate, &op.Timestamp); err != nil {
			return nil, fmt.Errorf("PendingOperationRepository.FindAll (scanning row): %w", err)
		}
		ops = append(ops, op)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("PendingOperationRepository.FindAll (rows error): %w", err)
	}
	return ops, nil
}

func (r *sqlitePendingOperationRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("PendingOperationRepository.Remove: %w", err)
	}
	return nil
}

func (r *sqlitePendingOperationRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("PendingOperationRepository.Count: %w", err)
	}
	return count, nil
}

func (r *sqlitePendingOperationRepository) ExistsForPlate(ctx context.Context, kind domain.PendingOperationKind, plate string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM pending_operations WHERE kind = ? AND plate = ?`
	if err := r.q.QueryRowContext(ctx, query, kind, plate).Scan(&count); err != nil {
		return false, fmt.Errorf("PendingOperationRepository.ExistsForPlate: %w", err)
	}
	return count > 0, nil
}
