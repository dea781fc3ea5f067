package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/service"
)

// Reconciler replay queue thao tác chờ đồng bộ lên store trung tâm theo
// chu kỳ. Mỗi thao tác được xử lý riêng lẻ theo đúng thứ tự enqueue: push
// thành công thì xóa thao tác và cờ pending_sync của đúng phiên đó; push
// thất bại thì dừng cả batch, các thao tác còn lại giữ nguyên cho chu kỳ
// sau, không bao giờ clear cờ kiểu "quét sạch".
type Reconciler struct {
	store       repository.TxRunner
	sessionRepo repository.SessionRepository
	reportRepo  repository.ReportRepository
	pendingRepo repository.PendingOperationRepository
	central     repository.CentralStore
	conn        *service.Connectivity
	interval    time.Duration
	timeout     time.Duration
	trigger     chan struct{}
	// onCycleEnd (nếu được đặt) nhận số thao tác đã đồng bộ sau mỗi chu kỳ
	// có tiến triển, bảng trạng thái dùng để cập nhật bộ đếm pending.
	onCycleEnd func(synced int)
}

func NewReconciler(
	store repository.TxRunner,
	sessionRepo repository.SessionRepository,
	reportRepo repository.ReportRepository,
	pendingRepo repository.PendingOperationRepository,
	central repository.CentralStore,
	conn *service.Connectivity,
	interval time.Duration,
	timeout time.Duration,
) *Reconciler {
	return &Reconciler{
		store:       store,
		sessionRepo: sessionRepo,
		reportRepo:  reportRepo,
		pendingRepo: pendingRepo,
		central:     central,
		conn:        conn,
		interval:    interval,
		timeout:     timeout,
		trigger:     make(chan struct{}, 1),
	}
}

// SetOnCycleEnd đăng ký callback chạy sau mỗi chu kỳ có ít nhất một thao
// tác được đồng bộ.
func (r *Reconciler) SetOnCycleEnd(fn func(synced int)) {
	r.onCycleEnd = fn
}

// Trigger yêu cầu chạy một chu kỳ đồng bộ ngay (không chặn). Được nối vào
// cạnh chuyển offline -> online của Connectivity.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Start chạy vòng lặp đồng bộ cho tới khi context bị hủy. Gọi trong một
// goroutine riêng.
func (r *Reconciler) Start(ctx context.Context) {
	log.Printf("Reconciler: bắt đầu, chu kỳ %v", r.interval)

	if !r.conn.IsOffline() {
		pingCtx, cancel := context.WithTimeout(ctx, r.timeout)
		if err := r.central.Ping(pingCtx); err != nil {
			log.Printf("Reconciler: store trung tâm chưa truy cập được: %v", err)
		}
		cancel()
	}

	// Dựng lại queue từ cờ pending_sync trước khi vào vòng lặp: queue có
	// thể đã mất (crash giữa commit cục bộ và ghi queue) nhưng cờ thì không.
	if err := r.RebuildQueue(ctx); err != nil {
		log.Printf("Reconciler: lỗi dựng lại queue từ cờ pending_sync: %v", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reconciler: context cancelled, dừng.")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		case <-r.trigger:
			r.runCycle(ctx)
		}
	}
}

// RebuildQueue quét các phiên còn cờ pending_sync và nối lại thao tác
// tương ứng nếu queue chưa có. Phiên active sinh thao tác "entry", phiên
// closed sinh thao tác "exit".
func (r *Reconciler) RebuildQueue(ctx context.Context) error {
	sessions, err := r.sessionRepo.FindPendingSync(ctx)
	if err != nil {
		return fmt.Errorf("lỗi quét phiên pending_sync: %w", err)
	}
	if len(sessions) == 0 {
		return nil
	}

	rebuilt := 0
	err = r.store.WithTx(ctx, func(tx *sql.Tx) error {
		pending := r.pendingRepo.WithTx(tx)
		for _, session := range sessions {
			kind := domain.PendingEntry
			ts := session.EntryTime
			if session.Status == domain.SessionClosed {
				kind = domain.PendingExit
				if session.ExitTime.Valid {
					ts = session.ExitTime.Time
				}
			}
			exists, err := pending.ExistsForPlate(ctx, kind, session.Plate)
			if err != nil {
				return fmt.Errorf("lỗi kiểm tra queue cho biển số '%s': %w", session.Plate, err)
			}
			if exists {
				continue
			}
			op := &domain.PendingOperation{
				ID:        uuid.NewString(),
				Kind:      kind,
				Plate:     session.Plate,
				Timestamp: ts,
			}
			if err := pending.Append(ctx, op); err != nil {
				return fmt.Errorf("lỗi nối lại thao tác cho biển số '%s': %w", session.Plate, err)
			}
			rebuilt++
		}
		return nil
	})
	if err != nil {
		return err
	}
	if rebuilt > 0 {
		log.Printf("Reconciler: đã dựng lại %d thao tác từ cờ pending_sync.", rebuilt)
	}
	return nil
}

// runCycle xử lý queue hiện tại một lượt. Offline thì bỏ qua chu kỳ.
func (r *Reconciler) runCycle(ctx context.Context) {
	if synced := r.drain(ctx); synced > 0 && r.onCycleEnd != nil {
		r.onCycleEnd(synced)
	}
}

func (r *Reconciler) drain(ctx context.Context) int {
	if r.conn.IsOffline() {
		return 0
	}

	ops, err := r.pendingRepo.FindAll(ctx)
	if err != nil {
		log.Printf("Reconciler: lỗi đọc queue: %v", err)
		return 0
	}
	if len(ops) == 0 {
		return 0
	}

	log.Printf("Reconciler: bắt đầu chu kỳ đồng bộ, %d thao tác trong queue.", len(ops))
	synced := 0
	for _, op := range ops {
		// Người vận hành có thể chuyển offline giữa batch: dừng ngay,
		// phần còn lại đợi chu kỳ sau.
		if r.conn.IsOffline() {
			log.Printf("Reconciler: đã chuyển offline giữa batch, dừng sau %d thao tác.", synced)
			return synced
		}
		if err := r.syncOne(ctx, op); err != nil {
			if errors.Is(err, repository.ErrCentralAuth) {
				log.Printf("Reconciler: lỗi xác thực store trung tâm: %v. Chuyển về chế độ offline, cần kiểm tra cấu hình.", err)
				if !r.conn.IsOffline() {
					r.conn.Toggle()
				}
				return synced
			}
			// Thất bại dừng cả batch: thao tác này và mọi thao tác sau nó
			// giữ nguyên trong queue, bảo toàn thứ tự theo biển số.
			log.Printf("Reconciler: push thất bại cho thao tác %s ('%s' %s): %v. Dừng batch, còn %d thao tác chờ.",
				op.ID, op.Plate, op.Kind, err, len(ops)-synced)
			return synced
		}
		synced++
	}

	// Cả batch thành công: những ngày không còn phiên pending nào được
	// phép xóa cờ trên báo cáo.
	cleared, err := r.reportRepo.ClearSyncedDates(ctx)
	if err != nil {
		log.Printf("Reconciler: lỗi xóa cờ báo cáo đã đồng bộ: %v", err)
	} else if cleared > 0 {
		log.Printf("Reconciler: đã xóa cờ pending_sync cho %d báo cáo ngày.", cleared)
	}
	log.Printf("Reconciler: chu kỳ hoàn tất, đã đồng bộ %d thao tác.", synced)
	return synced
}

// syncOne replay một thao tác: đọc lại trạng thái phiên MỚI NHẤT từ store
// cục bộ (không phải snapshot lúc enqueue) rồi đẩy lên trung tâm.
func (r *Reconciler) syncOne(ctx context.Context, op domain.PendingOperation) error {
	session, err := r.resolveSession(ctx, op)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrNoActiveSession) {
			// Thao tác mồ côi (phiên đã bị xóa tay khỏi store cục bộ):
			// loại khỏi queue để không chặn các thao tác phía sau.
			log.Printf("Reconciler: không tìm thấy phiên cho thao tác %s ('%s' %s), loại khỏi queue.", op.ID, op.Plate, op.Kind)
			return r.pendingRepo.Remove(ctx, op.ID)
		}
		return err
	}

	pushCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.central.PushSession(pushCtx, session); err != nil {
		return err
	}

	// Push thành công: xóa thao tác và cờ của đúng phiên này trong CÙNG
	// một giao dịch. Clear có điều kiện theo trạng thái đã push: một exit
	// commit xen giữa push và clear đổi status sang closed, cờ mới của nó
	// được giữ nguyên cho lần replay sau.
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.pendingRepo.WithTx(tx).Remove(ctx, op.ID); err != nil {
			return fmt.Errorf("lỗi xóa thao tác %s khỏi queue: %w", op.ID, err)
		}
		if err := r.sessionRepo.WithTx(tx).ClearPendingSync(ctx, session.ID, session.Status); err != nil {
			return fmt.Errorf("lỗi xóa cờ pending_sync cho phiên %d: %w", session.ID, err)
		}
		return nil
	})
}

func (r *Reconciler) resolveSession(ctx context.Context, op domain.PendingOperation) (*domain.VehicleSession, error) {
	switch op.Kind {
	case domain.PendingEntry:
		session, err := r.sessionRepo.FindActiveByPlate(ctx, op.Plate)
		if err == nil {
			return session, nil
		}
		if errors.Is(err, repository.ErrNoActiveSession) {
			// Xe đã ra trước khi thao tác "entry" được đồng bộ: đẩy trạng
			// thái closed mới nhất, thao tác "exit" phía sau trở thành no-op
			// nhờ upsert phía trung tâm.
			return r.sessionRepo.FindLatestClosedByPlate(ctx, op.Plate)
		}
		return nil, err
	case domain.PendingExit:
		return r.sessionRepo.FindLatestClosedByPlate(ctx, op.Plate)
	default:
		return nil, fmt.Errorf("loại thao tác không hợp lệ: %q", op.Kind)
	}
}
