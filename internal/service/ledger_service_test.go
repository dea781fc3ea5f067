package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository/sqlite"
)

// fakeCentral đếm số lần push và có thể được cấu hình để luôn thất bại.
type fakeCentral struct {
	pushed []string
	err    error
}

func (f *fakeCentral) PushSession(ctx context.Context, session *domain.VehicleSession) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, session.Plate)
	return nil
}

func (f *fakeCentral) Ping(ctx context.Context) error { return f.err }

type ledgerFixture struct {
	store       *sqlite.Store
	sessionRepo repository.SessionRepository
	reportRepo  repository.ReportRepository
	pendingRepo repository.PendingOperationRepository
	slotRepo    repository.SlotRepository
	central     *fakeCentral
	conn        *Connectivity
	ledger      *LedgerService
}

func newLedgerFixture(t *testing.T, capacity int, startOffline bool) *ledgerFixture {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("không mở được store test: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.SeedSlots(context.Background(), capacity); err != nil {
		t.Fatalf("không seed được chỗ đỗ: %v", err)
	}

	slotRepo := sqlite.NewSlotRepository(store)
	sessionRepo := sqlite.NewSessionRepository(store)
	reportRepo := sqlite.NewReportRepository(store)
	pendingRepo := sqlite.NewPendingOperationRepository(store)
	central := &fakeCentral{}
	conn := NewConnectivity(startOffline)
	tariff := NewTariffCalculator(map[string]float64{
		"auto":      2.00,
		"moto":      1.00,
		"camioneta": 3.00,
	}, 2.00)

	ledger := NewLedgerService(store, slotRepo, sessionRepo, reportRepo, pendingRepo,
		central, tariff, conn, time.Second)

	return &ledgerFixture{
		store:       store,
		sessionRepo: sessionRepo,
		reportRepo:  reportRepo,
		pendingRepo: pendingRepo,
		slotRepo:    slotRepo,
		central:     central,
		conn:        conn,
		ledger:      ledger,
	}
}

func TestRegisterEntryAssignsLowestFreeSlot(t *testing.T) {
	f := newLedgerFixture(t, 2, true)
	ctx := context.Background()

	first, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "ABC-123", VehicleType: "auto"})
	if err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}
	if first.SlotNumber != 1 {
		t.Fatalf("xe đầu tiên phải vào chỗ 1, got %d", first.SlotNumber)
	}

	second, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "XYZ-789", VehicleType: "moto"})
	if err != nil {
		t.Fatalf("RegisterEntry thứ hai: %v", err)
	}
	if second.SlotNumber != 2 {
		t.Fatalf("xe thứ hai phải vào chỗ 2, got %d", second.SlotNumber)
	}

	// Bãi đầy
	_, err = f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "QRS-456", VehicleType: "auto"})
	if !errors.Is(err, repository.ErrLotFull) {
		t.Fatalf("muốn ErrLotFull, got %v", err)
	}

	// Một biển số chỉ được một phiên active
	_, err = f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "ABC-123", VehicleType: "auto"})
	if !errors.Is(err, repository.ErrDuplicateEntry) {
		t.Fatalf("muốn ErrDuplicateEntry, got %v", err)
	}
}

func TestRegisterExitBillsMinimumOneHour(t *testing.T) {
	f := newLedgerFixture(t, 2, true)
	ctx := context.Background()

	entryTime := time.Date(2026, 3, 10, 8, 0, 0, 0, time.Local)
	f.ledger.now = func() time.Time { return entryTime }

	if _, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "ABC-123", VehicleType: "auto"}); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}

	// Ra sau 10 phút: vẫn tính tròn một giờ
	f.ledger.now = func() time.Time { return entryTime.Add(10 * time.Minute) }
	billing, err := f.ledger.RegisterExit(ctx, domain.RegisterExitDTO{Plate: "ABC-123"})
	if err != nil {
		t.Fatalf("RegisterExit: %v", err)
	}
	if billing.BilledHours != 1 {
		t.Fatalf("BilledHours = %d, muốn 1", billing.BilledHours)
	}
	if billing.AmountDue != 2.00 {
		t.Fatalf("AmountDue = %v, muốn 2.00", billing.AmountDue)
	}
	if billing.ReceiptNumber == "" {
		t.Fatal("thiếu số biên lai")
	}

	// Chỗ 1 được giải phóng và tái sử dụng cho xe kế tiếp
	next, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "XYZ-789", VehicleType: "moto"})
	if err != nil {
		t.Fatalf("RegisterEntry sau khi xe ra: %v", err)
	}
	if next.SlotNumber != 1 {
		t.Fatalf("chỗ 1 phải được tái sử dụng, got %d", next.SlotNumber)
	}

	// Xe đã ra không thể ra lần hai
	if _, err := f.ledger.RegisterExit(ctx, domain.RegisterExitDTO{Plate: "ABC-123"}); !errors.Is(err, repository.ErrNoActiveSession) {
		t.Fatalf("muốn ErrNoActiveSession cho lần ra thứ hai, got %v", err)
	}
}

func TestRegisterExitRoundsUpHours(t *testing.T) {
	f := newLedgerFixture(t, 2, true)
	ctx := context.Background()

	entryTime := time.Date(2026, 3, 10, 8, 0, 0, 0, time.Local)
	f.ledger.now = func() time.Time { return entryTime }
	if _, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "AB-1234", VehicleType: "camioneta"}); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}

	// 95 phút -> 2 giờ, camioneta 3.00/giờ
	f.ledger.now = func() time.Time { return entryTime.Add(95 * time.Minute) }
	billing, err := f.ledger.RegisterExit(ctx, domain.RegisterExitDTO{Plate: "AB-1234"})
	if err != nil {
		t.Fatalf("RegisterExit: %v", err)
	}
	if billing.BilledHours != 2 {
		t.Fatalf("BilledHours = %d, muốn 2", billing.BilledHours)
	}
	if billing.AmountDue != 6.00 {
		t.Fatalf("AmountDue = %v, muốn 6.00", billing.AmountDue)
	}
}

func TestDailyReportAggregation(t *testing.T) {
	f := newLedgerFixture(t, 5, true)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	f.ledger.now = func() time.Time { return now }
	date := now.Format(domain.ReportDateLayout)

	plates := []string{"ABC-123", "XYZ-789", "QRS-456"}
	for _, plate := range plates {
		if _, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: plate, VehicleType: "auto"}); err != nil {
			t.Fatalf("RegisterEntry %s: %v", plate, err)
		}
	}

	f.ledger.now = func() time.Time { return now.Add(30 * time.Minute) }
	for _, plate := range plates[:2] {
		if _, err := f.ledger.RegisterExit(ctx, domain.RegisterExitDTO{Plate: plate}); err != nil {
			t.Fatalf("RegisterExit %s: %v", plate, err)
		}
	}

	report, err := f.ledger.GetReportByDate(ctx, date)
	if err != nil {
		t.Fatalf("GetReportByDate: %v", err)
	}
	if report.EntriesCount != 3 {
		t.Errorf("EntriesCount = %d, muốn 3", report.EntriesCount)
	}
	if report.ExitsCount != 2 {
		t.Errorf("ExitsCount = %d, muốn 2", report.ExitsCount)
	}
	// Hai xe auto, mỗi xe một giờ tối thiểu
	if report.TotalCollected != 4.00 {
		t.Errorf("TotalCollected = %v, muốn 4.00", report.TotalCollected)
	}
	if !report.PendingSync {
		t.Error("báo cáo vừa ghi phải còn cờ pending_sync")
	}

	sessions, err := f.ledger.GetSessionsForDate(ctx, date)
	if err != nil {
		t.Fatalf("GetSessionsForDate: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("số phiên trong ngày = %d, muốn 3", len(sessions))
	}
}

func TestOfflineEntriesEnqueuePendingOperations(t *testing.T) {
	f := newLedgerFixture(t, 5, true)
	ctx := context.Background()

	if _, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "ABC-123", VehicleType: "auto"}); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}
	if _, err := f.ledger.RegisterExit(ctx, domain.RegisterExitDTO{Plate: "ABC-123"}); err != nil {
		t.Fatalf("RegisterExit: %v", err)
	}

	ops, err := f.pendingRepo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("queue phải có 2 thao tác, got %d", len(ops))
	}
	if ops[0].Kind != domain.PendingEntry || ops[1].Kind != domain.PendingExit {
		t.Fatalf("thứ tự queue sai: %s, %s", ops[0].Kind, ops[1].Kind)
	}

	// Offline: không push gì lên trung tâm
	if len(f.central.pushed) != 0 {
		t.Fatalf("offline không được push, đã push %v", f.central.pushed)
	}
}

func TestOnlineEntryMirrorsToCentral(t *testing.T) {
	f := newLedgerFixture(t, 5, false)
	ctx := context.Background()

	if _, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "ABC-123", VehicleType: "auto"}); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}
	if len(f.central.pushed) != 1 || f.central.pushed[0] != "ABC-123" {
		t.Fatalf("online phải mirror ngay, pushed = %v", f.central.pushed)
	}

	// Push thành công: cờ pending_sync được xóa, queue rỗng
	pending, err := f.sessionRepo.FindPendingSync(ctx)
	if err != nil {
		t.Fatalf("FindPendingSync: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("phiên đã mirror không được giữ cờ, còn %d phiên pending", len(pending))
	}
	count, err := f.pendingRepo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("queue phải rỗng, got %d", count)
	}
}

func TestOnlineEntryWithCentralDownFallsBackToQueue(t *testing.T) {
	f := newLedgerFixture(t, 5, false)
	f.central.err = fmt.Errorf("store trung tâm không phản hồi")
	ctx := context.Background()

	// Lỗi trung tâm không bao giờ nổi lên người gọi
	if _, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "ABC-123", VehicleType: "auto"}); err != nil {
		t.Fatalf("RegisterEntry phải thành công dù trung tâm chết: %v", err)
	}

	count, err := f.pendingRepo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("push thất bại phải rơi vào queue, got %d thao tác", count)
	}
	pending, err := f.sessionRepo.FindPendingSync(ctx)
	if err != nil {
		t.Fatalf("FindPendingSync: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("phiên phải giữ cờ pending_sync, got %d", len(pending))
	}
}

func TestGetReportRangeValidation(t *testing.T) {
	f := newLedgerFixture(t, 2, true)
	ctx := context.Background()

	if _, err := f.ledger.GetReportRange(ctx, "2026-03-10", "2026-03-01"); !errors.Is(err, repository.ErrInvalidDateRange) {
		t.Fatalf("khoảng ngược phải trả ErrInvalidDateRange, got %v", err)
	}
	if _, err := f.ledger.GetReportRange(ctx, "10/03/2026", "2026-03-11"); !errors.Is(err, repository.ErrInvalidDateRange) {
		t.Fatalf("ngày sai định dạng phải trả ErrInvalidDateRange, got %v", err)
	}
	reports, err := f.ledger.GetReportRange(ctx, "2026-03-01", "2026-03-10")
	if err != nil {
		t.Fatalf("khoảng hợp lệ: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("chưa có dữ liệu, muốn 0 báo cáo, got %d", len(reports))
	}
}

func TestLotStatus(t *testing.T) {
	f := newLedgerFixture(t, 3, true)
	ctx := context.Background()

	if _, err := f.ledger.RegisterEntry(ctx, domain.RegisterEntryDTO{Plate: "ABC-123", VehicleType: "auto"}); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}

	status, err := f.ledger.GetLotStatus(ctx)
	if err != nil {
		t.Fatalf("GetLotStatus: %v", err)
	}
	if status.Mode != "offline" {
		t.Errorf("Mode = %s, muốn offline", status.Mode)
	}
	if status.TotalSlots != 3 {
		t.Errorf("TotalSlots = %d, muốn 3", status.TotalSlots)
	}
	if status.AvailableSlots != 2 {
		t.Errorf("AvailableSlots = %d, muốn 2", status.AvailableSlots)
	}
	if status.PendingOperations != 1 {
		t.Errorf("PendingOperations = %d, muốn 1", status.PendingOperations)
	}

	if mode := f.ledger.ToggleMode(); mode != "online" {
		t.Fatalf("ToggleMode = %s, muốn online", mode)
	}
}
