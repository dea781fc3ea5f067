package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository/sqlite"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/service"
)

// fakeCentral ghi lại thứ tự push và có thể thất bại cho một biển số cụ thể.
// onPush (nếu đặt) chạy trong lúc push đang bay, trước khi push được tính
// là thành công; dùng để giả lập ghi cục bộ xen giữa push và clear.
type fakeCentral struct {
	pushed    []string
	failPlate string
	err       error
	onPush    func(plate string)
}

func (f *fakeCentral) PushSession(ctx context.Context, session *domain.VehicleSession) error {
	if f.err != nil {
		return f.err
	}
	if f.failPlate != "" && session.Plate == f.failPlate {
		return fmt.Errorf("store trung tâm không phản hồi")
	}
	if f.onPush != nil {
		f.onPush(session.Plate)
	}
	f.pushed = append(f.pushed, session.Plate)
	return nil
}

func (f *fakeCentral) Ping(ctx context.Context) error { return nil }

type reconcilerFixture struct {
	store       *sqlite.Store
	sessionRepo repository.SessionRepository
	reportRepo  repository.ReportRepository
	pendingRepo repository.PendingOperationRepository
	central     *fakeCentral
	conn        *service.Connectivity
	reconciler  *Reconciler
}

func newReconcilerFixture(t *testing.T, startOffline bool) *reconcilerFixture {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("không mở được store test: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SeedSlots(context.Background(), 10); err != nil {
		t.Fatalf("không seed được chỗ đỗ: %v", err)
	}

	sessionRepo := sqlite.NewSessionRepository(store)
	reportRepo := sqlite.NewReportRepository(store)
	pendingRepo := sqlite.NewPendingOperationRepository(store)
	central := &fakeCentral{}
	conn := service.NewConnectivity(startOffline)

	r := NewReconciler(store, sessionRepo, reportRepo, pendingRepo, central, conn,
		time.Minute, time.Second)

	return &reconcilerFixture{
		store:       store,
		sessionRepo: sessionRepo,
		reportRepo:  reportRepo,
		pendingRepo: pendingRepo,
		central:     central,
		conn:        conn,
		reconciler:  r,
	}
}

// seedPendingEntry tạo một phiên active còn cờ pending_sync kèm thao tác
// "entry" trong queue.
func (f *reconcilerFixture) seedPendingEntry(t *testing.T, plate string, slotID int) *domain.VehicleSession {
	t.Helper()
	ctx := context.Background()
	session, err := f.sessionRepo.Create(ctx, &domain.VehicleSession{
		Plate:       plate,
		VehicleType: "auto",
		EntryTime:   time.Now().Add(-time.Hour),
		SlotID:      slotID,
		Status:      domain.SessionActive,
		PendingSync: true,
	})
	if err != nil {
		t.Fatalf("seed phiên '%s': %v", plate, err)
	}
	err = f.pendingRepo.Append(ctx, &domain.PendingOperation{
		ID:        uuid.NewString(),
		Kind:      domain.PendingEntry,
		Plate:     plate,
		Timestamp: session.EntryTime,
	})
	if err != nil {
		t.Fatalf("seed thao tác '%s': %v", plate, err)
	}
	return session
}

func TestRunCycleStopsAtFirstFailure(t *testing.T) {
	f := newReconcilerFixture(t, false)
	ctx := context.Background()

	f.seedPendingEntry(t, "AAA-111", 1)
	f.seedPendingEntry(t, "BBB-222", 2)
	f.seedPendingEntry(t, "CCC-333", 3)
	f.central.failPlate = "BBB-222"

	f.reconciler.runCycle(ctx)

	// Chỉ thao tác trước điểm lỗi được đồng bộ
	if len(f.central.pushed) != 1 || f.central.pushed[0] != "AAA-111" {
		t.Fatalf("pushed = %v, muốn [AAA-111]", f.central.pushed)
	}

	ops, err := f.pendingRepo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("queue phải còn 2 thao tác, got %d", len(ops))
	}
	if ops[0].Plate != "BBB-222" || ops[1].Plate != "CCC-333" {
		t.Fatalf("thứ tự queue bị phá: %s, %s", ops[0].Plate, ops[1].Plate)
	}

	// Cờ của phiên đã push được xóa, phiên sau điểm lỗi giữ nguyên
	pending, err := f.sessionRepo.FindPendingSync(ctx)
	if err != nil {
		t.Fatalf("FindPendingSync: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("phải còn 2 phiên pending, got %d", len(pending))
	}

	// Trung tâm hồi phục: chu kỳ sau replay đúng phần còn lại, đúng thứ tự
	f.central.failPlate = ""
	f.reconciler.runCycle(ctx)
	want := []string{"AAA-111", "BBB-222", "CCC-333"}
	if len(f.central.pushed) != 3 {
		t.Fatalf("pushed = %v, muốn %v", f.central.pushed, want)
	}
	for i, plate := range want {
		if f.central.pushed[i] != plate {
			t.Fatalf("pushed[%d] = %s, muốn %s", i, f.central.pushed[i], plate)
		}
	}
	if count, _ := f.pendingRepo.Count(ctx); count != 0 {
		t.Fatalf("queue phải rỗng sau khi đồng bộ hết, got %d", count)
	}
}

func TestRunCycleSkipsWhenOffline(t *testing.T) {
	f := newReconcilerFixture(t, true)
	ctx := context.Background()

	f.seedPendingEntry(t, "AAA-111", 1)
	f.reconciler.runCycle(ctx)

	if len(f.central.pushed) != 0 {
		t.Fatalf("offline không được push, pushed = %v", f.central.pushed)
	}
	if count, _ := f.pendingRepo.Count(ctx); count != 1 {
		t.Fatalf("queue phải giữ nguyên, got %d", count)
	}
}

func TestRunCycleClearsReportFlagsAfterFullDrain(t *testing.T) {
	f := newReconcilerFixture(t, false)
	ctx := context.Background()

	session := f.seedPendingEntry(t, "AAA-111", 1)
	date := session.EntryTime.Format(domain.ReportDateLayout)
	if err := f.reportRepo.IncrementEntries(ctx, date); err != nil {
		t.Fatalf("IncrementEntries: %v", err)
	}

	f.reconciler.runCycle(ctx)

	report, err := f.reportRepo.FindByDate(ctx, date)
	if err != nil {
		t.Fatalf("FindByDate: %v", err)
	}
	if report.PendingSync {
		t.Fatal("cờ báo cáo phải được xóa sau khi mọi phiên của ngày đã đồng bộ")
	}
}

func TestRunCycleAuthFailureSwitchesOffline(t *testing.T) {
	f := newReconcilerFixture(t, false)
	ctx := context.Background()

	f.seedPendingEntry(t, "AAA-111", 1)
	f.central.err = fmt.Errorf("%w: sai mật khẩu", repository.ErrCentralAuth)

	f.reconciler.runCycle(ctx)

	if !f.conn.IsOffline() {
		t.Fatal("lỗi xác thực trung tâm phải chuyển hệ thống về offline")
	}
	if count, _ := f.pendingRepo.Count(ctx); count != 1 {
		t.Fatalf("queue phải giữ nguyên sau lỗi xác thực, got %d", count)
	}
}

func TestRunCycleKeepsFlagWhenExitCommitsMidPush(t *testing.T) {
	f := newReconcilerFixture(t, false)
	ctx := context.Background()

	session := f.seedPendingEntry(t, "AAA-111", 1)

	// Xe ra đúng lúc push "entry" đang bay: phiên chuyển sang closed với cờ
	// pending mới và thao tác "exit" nối vào queue trước khi clear chạy.
	f.central.onPush = func(plate string) {
		closed := *session
		closed.ExitTime = null.TimeFrom(time.Now())
		closed.Status = domain.SessionClosed
		closed.ElapsedMinutes = null.FloatFrom(60)
		closed.HourlyRate = null.FloatFrom(1.00)
		closed.AmountDue = null.FloatFrom(1.00)
		closed.PendingSync = true
		if err := f.sessionRepo.Close(ctx, &closed); err != nil {
			t.Fatalf("đóng phiên xen giữa: %v", err)
		}
		err := f.pendingRepo.Append(ctx, &domain.PendingOperation{
			ID:        uuid.NewString(),
			Kind:      domain.PendingExit,
			Plate:     plate,
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("nối thao tác exit xen giữa: %v", err)
		}
	}

	f.reconciler.runCycle(ctx)

	// Thao tác "entry" đã xong, nhưng cờ pending của trạng thái closed chưa
	// được đẩy phải còn nguyên cùng thao tác "exit" trong queue.
	ops, err := f.pendingRepo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != domain.PendingExit {
		t.Fatalf("queue phải còn đúng thao tác exit, got %+v", ops)
	}
	pending, err := f.sessionRepo.FindPendingSync(ctx)
	if err != nil {
		t.Fatalf("FindPendingSync: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("cờ pending của trạng thái closed phải còn nguyên, got %d phiên", len(pending))
	}

	// Chu kỳ sau replay "exit": đẩy trạng thái closed rồi mới được xóa cờ.
	f.central.onPush = nil
	f.reconciler.runCycle(ctx)

	if len(f.central.pushed) != 2 {
		t.Fatalf("pushed = %v, muốn 2 lần push cho AAA-111", f.central.pushed)
	}
	if count, _ := f.pendingRepo.Count(ctx); count != 0 {
		t.Fatalf("queue phải rỗng sau khi replay exit, got %d", count)
	}
	pending, err = f.sessionRepo.FindPendingSync(ctx)
	if err != nil {
		t.Fatalf("FindPendingSync lần hai: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("cờ phải được xóa sau khi trạng thái closed đã lên trung tâm, got %d phiên", len(pending))
	}
}

func TestRebuildQueueFromSessionFlags(t *testing.T) {
	f := newReconcilerFixture(t, true)
	ctx := context.Background()

	// Phiên active còn cờ nhưng queue rỗng (mất queue sau crash)
	active, err := f.sessionRepo.Create(ctx, &domain.VehicleSession{
		Plate:       "AAA-111",
		VehicleType: "auto",
		EntryTime:   time.Now().Add(-2 * time.Hour),
		SlotID:      1,
		Status:      domain.SessionActive,
		PendingSync: true,
	})
	if err != nil {
		t.Fatalf("seed phiên active: %v", err)
	}

	// Phiên closed còn cờ
	closed, err := f.sessionRepo.Create(ctx, &domain.VehicleSession{
		Plate:       "BBB-222",
		VehicleType: "moto",
		EntryTime:   time.Now().Add(-3 * time.Hour),
		SlotID:      2,
		Status:      domain.SessionActive,
		PendingSync: true,
	})
	if err != nil {
		t.Fatalf("seed phiên closed: %v", err)
	}
	closed.ExitTime = null.TimeFrom(time.Now().Add(-time.Hour))
	closed.Status = domain.SessionClosed
	closed.ElapsedMinutes = null.FloatFrom(120)
	closed.HourlyRate = null.FloatFrom(1.00)
	closed.AmountDue = null.FloatFrom(2.00)
	closed.PendingSync = true
	if err := f.sessionRepo.Close(ctx, closed); err != nil {
		t.Fatalf("đóng phiên seed: %v", err)
	}

	if err := f.reconciler.RebuildQueue(ctx); err != nil {
		t.Fatalf("RebuildQueue: %v", err)
	}

	ops, err := f.pendingRepo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("queue phải có 2 thao tác dựng lại, got %d", len(ops))
	}
	kinds := map[string]domain.PendingOperationKind{}
	for _, op := range ops {
		kinds[op.Plate] = op.Kind
	}
	if kinds[active.Plate] != domain.PendingEntry {
		t.Errorf("phiên active phải sinh thao tác entry, got %s", kinds[active.Plate])
	}
	if kinds["BBB-222"] != domain.PendingExit {
		t.Errorf("phiên closed phải sinh thao tác exit, got %s", kinds["BBB-222"])
	}

	// Gọi lại không được nhân đôi queue
	if err := f.reconciler.RebuildQueue(ctx); err != nil {
		t.Fatalf("RebuildQueue lần hai: %v", err)
	}
	if count, _ := f.pendingRepo.Count(ctx); count != 2 {
		t.Fatalf("RebuildQueue phải idempotent, queue = %d", count)
	}
}
