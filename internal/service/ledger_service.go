package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
)

// LedgerService là nghiệp vụ trung tâm của bãi xe: ghi nhận xe vào/ra trên
// store cục bộ trước, mirror lên store trung tâm sau. Store cục bộ luôn là
// nguồn sự thật, mất kết nối trung tâm không bao giờ chặn thao tác tại quầy.
type LedgerService struct {
	store          repository.TxRunner
	slotRepo       repository.SlotRepository
	sessionRepo    repository.SessionRepository
	reportRepo     repository.ReportRepository
	pendingRepo    repository.PendingOperationRepository
	central        repository.CentralStore
	tariff         *TariffCalculator
	conn           *Connectivity
	centralTimeout time.Duration
	now            func() time.Time
}

func NewLedgerService(
	store repository.TxRunner,
	slotRepo repository.SlotRepository,
	sessionRepo repository.SessionRepository,
	reportRepo repository.ReportRepository,
	pendingRepo repository.PendingOperationRepository,
	central repository.CentralStore,
	tariff *TariffCalculator,
	conn *Connectivity,
	centralTimeout time.Duration,
) *LedgerService {
	return &LedgerService{
		store:          store,
		slotRepo:       slotRepo,
		sessionRepo:    sessionRepo,
		reportRepo:     reportRepo,
		pendingRepo:    pendingRepo,
		central:        central,
		tariff:         tariff,
		conn:           conn,
		centralTimeout: centralTimeout,
		now:            time.Now,
	}
}

// RegisterEntry ghi nhận một xe vào bãi: chiếm chỗ trống số nhỏ nhất, tạo
// phiên active và tăng báo cáo ngày, tất cả trong một transaction cục bộ.
func (s *LedgerService) RegisterEntry(ctx context.Context, dto domain.RegisterEntryDTO) (*domain.EntryResult, error) {
	log.Printf("Service: Ghi nhận xe vào bãi: Biển số='%s', Loại xe='%s'", dto.Plate, dto.VehicleType)

	entryTime := s.now()
	offline := s.conn.IsOffline()

	var created *domain.VehicleSession
	var slot *domain.ParkingSlot
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		sessions := s.sessionRepo.WithTx(tx)
		slots := s.slotRepo.WithTx(tx)
		reports := s.reportRepo.WithTx(tx)

		// 1. Một biển số chỉ được có đúng một phiên active
		existing, err := sessions.FindActiveByPlate(ctx, dto.Plate)
		if err != nil && !errors.Is(err, repository.ErrNoActiveSession) {
			return fmt.Errorf("lỗi kiểm tra phiên hoạt động: %w", err)
		}
		if existing != nil {
			log.Printf("Xe '%s' đã có phiên đang hoạt động (ID: %d).", dto.Plate, existing.ID)
			return fmt.Errorf("%w: xe '%s' đang ở trong bãi", repository.ErrDuplicateEntry, dto.Plate)
		}

		// 2. Chiếm chỗ trống có số nhỏ nhất
		slot, err = slots.AcquireFree(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrLotFull) {
				return repository.ErrLotFull
			}
			return fmt.Errorf("lỗi chiếm chỗ đỗ: %w", err)
		}

		// 3. Tạo phiên mới, cờ pending_sync bật cho tới khi push thành công
		session := &domain.VehicleSession{
			Plate:       dto.Plate,
			VehicleType: dto.VehicleType,
			Driver:      null.NewString(dto.Driver, dto.Driver != ""),
			EntryTime:   entryTime,
			SlotID:      slot.ID,
			Status:      domain.SessionActive,
			PendingSync: true,
		}
		created, err = sessions.Create(ctx, session)
		if err != nil {
			return fmt.Errorf("lỗi tạo phiên gửi xe: %w", err)
		}

		// 4. Tăng bộ đếm xe vào của báo cáo ngày
		if err := reports.IncrementEntries(ctx, entryTime.Format(domain.ReportDateLayout)); err != nil {
			return fmt.Errorf("lỗi cập nhật báo cáo ngày: %w", err)
		}

		// 5. Offline: nối thao tác vào queue chờ đồng bộ
		if offline {
			op := &domain.PendingOperation{
				ID:        uuid.NewString(),
				Kind:      domain.PendingEntry,
				Plate:     dto.Plate,
				Timestamp: entryTime,
			}
			if err := s.pendingRepo.WithTx(tx).Append(ctx, op); err != nil {
				return fmt.Errorf("lỗi ghi thao tác chờ đồng bộ: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Đã tạo phiên gửi xe ID: %d cho xe '%s' tại chỗ %d", created.ID, created.Plate, slot.Number)

	// Online: thử mirror ngay lên trung tâm; thất bại không ảnh hưởng thao
	// tác tại quầy, phiên chỉ đơn giản ở lại queue chờ reconciler.
	if !offline {
		s.mirrorToCentral(ctx, created, domain.PendingEntry)
	}

	return &domain.EntryResult{
		SessionID:  created.ID,
		Plate:      created.Plate,
		SlotNumber: slot.Number,
		EntryTime:  created.EntryTime,
	}, nil
}

// RegisterExit đóng phiên active của biển số, tính tiền theo giờ (làm tròn
// lên, tối thiểu một giờ), trả chỗ đỗ và cộng tiền vào báo cáo ngày.
func (s *LedgerService) RegisterExit(ctx context.Context, dto domain.RegisterExitDTO) (*domain.BillingDetails, error) {
	log.Printf("Service: Ghi nhận xe ra bãi: Biển số='%s'", dto.Plate)

	exitTime := s.now()
	offline := s.conn.IsOffline()

	var closed *domain.VehicleSession
	var billing *domain.BillingDetails
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		sessions := s.sessionRepo.WithTx(tx)
		slots := s.slotRepo.WithTx(tx)
		reports := s.reportRepo.WithTx(tx)

		// 1. Tìm phiên đang active cho biển số
		session, err := sessions.FindActiveByPlate(ctx, dto.Plate)
		if err != nil {
			if errors.Is(err, repository.ErrNoActiveSession) {
				return fmt.Errorf("%w: không có xe '%s' đang đỗ trong bãi", repository.ErrNoActiveSession, dto.Plate)
			}
			return fmt.Errorf("lỗi tìm phiên gửi xe đang hoạt động: %w", err)
		}

		// 2. Tính thời gian đỗ và số tiền phải trả
		effectiveExit := exitTime
		if effectiveExit.Before(session.EntryTime) {
			log.Printf("Thời gian ra (%v) sớm hơn thời gian vào (%v) của phiên %d. Dùng thời gian vào làm thời gian ra.",
				effectiveExit, session.EntryTime, session.ID)
			effectiveExit = session.EntryTime
		}
		elapsed := effectiveExit.Sub(session.EntryTime)
		rate := s.tariff.RateFor(session.VehicleType)
		billedHours := BilledHours(elapsed)
		amount := float64(billedHours) * rate

		session.ExitTime = null.TimeFrom(effectiveExit)
		session.Status = domain.SessionClosed
		session.ElapsedMinutes = null.FloatFrom(elapsed.Minutes())
		session.HourlyRate = null.FloatFrom(rate)
		session.AmountDue = null.FloatFrom(amount)
		session.PendingSync = true

		// 3. Đóng phiên, phiên đã closed không bao giờ đóng lần hai
		if err := sessions.Close(ctx, session); err != nil {
			return fmt.Errorf("lỗi đóng phiên gửi xe: %w", err)
		}

		// 4. Trả chỗ đỗ về trạng thái trống
		if err := slots.Release(ctx, session.SlotID); err != nil {
			return fmt.Errorf("lỗi trả chỗ đỗ %d: %w", session.SlotID, err)
		}

		// 5. Cộng tiền thu vào báo cáo của ngày ra
		if err := reports.IncrementExits(ctx, effectiveExit.Format(domain.ReportDateLayout), amount); err != nil {
			return fmt.Errorf("lỗi cập nhật báo cáo ngày: %w", err)
		}

		// 6. Offline: nối thao tác "exit" vào queue chờ đồng bộ
		if offline {
			op := &domain.PendingOperation{
				ID:        uuid.NewString(),
				Kind:      domain.PendingExit,
				Plate:     dto.Plate,
				Timestamp: effectiveExit,
			}
			if err := s.pendingRepo.WithTx(tx).Append(ctx, op); err != nil {
				return fmt.Errorf("lỗi ghi thao tác chờ đồng bộ: %w", err)
			}
		}

		closed = session
		billing = &domain.BillingDetails{
			ReceiptNumber:  uuid.NewString(),
			Plate:          session.Plate,
			VehicleType:    session.VehicleType,
			EntryTime:      session.EntryTime,
			ExitTime:       effectiveExit,
			ElapsedMinutes: elapsed.Minutes(),
			BilledHours:    billedHours,
			HourlyRate:     rate,
			AmountDue:      amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Đã đóng phiên gửi xe ID: %d cho xe '%s'. Thời gian đỗ: %.1f phút. Thu: %.2f",
		closed.ID, closed.Plate, billing.ElapsedMinutes, billing.AmountDue)

	if !offline {
		s.mirrorToCentral(ctx, closed, domain.PendingExit)
	}

	return billing, nil
}

// mirrorToCentral thử đẩy snapshot phiên lên store trung tâm ngay sau khi
// commit cục bộ. Thành công thì xóa cờ pending_sync; thất bại thì nối thao
// tác vào queue để reconciler replay, không bao giờ trả lỗi cho người gọi.
func (s *LedgerService) mirrorToCentral(ctx context.Context, session *domain.VehicleSession, kind domain.PendingOperationKind) {
	pushCtx, cancel := context.WithTimeout(ctx, s.centralTimeout)
	defer cancel()

	if err := s.central.PushSession(pushCtx, session); err != nil {
		log.Printf("Mirror trung tâm thất bại cho phiên %d ('%s'): %v. Thao tác vào queue chờ đồng bộ.",
			session.ID, session.Plate, err)
		op := &domain.PendingOperation{
			ID:        uuid.NewString(),
			Kind:      kind,
			Plate:     session.Plate,
			Timestamp: s.now(),
		}
		if err := s.pendingRepo.Append(ctx, op); err != nil {
			// Cờ pending_sync của phiên vẫn còn, quét lại khi khởi động sẽ
			// dựng lại thao tác này.
			log.Printf("Lỗi ghi thao tác chờ đồng bộ cho phiên %d: %v", session.ID, err)
		}
		return
	}
	if err := s.sessionRepo.ClearPendingSync(ctx, session.ID, session.Status); err != nil {
		log.Printf("Lỗi xóa cờ pending_sync cho phiên %d: %v", session.ID, err)
	}
}

func (s *LedgerService) GetActiveSessions(ctx context.Context) ([]domain.VehicleSession, error) {
	return s.sessionRepo.FindAllActive(ctx)
}

// GetSessionsForDate trả về các phiên có ngày vào bằng date (định dạng 2006-01-02).
func (s *LedgerService) GetSessionsForDate(ctx context.Context, date string) ([]domain.VehicleSession, error) {
	if _, err := time.Parse(domain.ReportDateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: ngày '%s' không đúng định dạng %s", repository.ErrInvalidDateRange, date, domain.ReportDateLayout)
	}
	return s.sessionRepo.FindByEntryDate(ctx, date)
}

func (s *LedgerService) GetReportByDate(ctx context.Context, date string) (*domain.DailyReport, error) {
	if _, err := time.Parse(domain.ReportDateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: ngày '%s' không đúng định dạng %s", repository.ErrInvalidDateRange, date, domain.ReportDateLayout)
	}
	return s.reportRepo.FindByDate(ctx, date)
}

// GetReportRange trả về báo cáo ngày trong [startDate, endDate].
func (s *LedgerService) GetReportRange(ctx context.Context, startDate, endDate string) ([]domain.DailyReport, error) {
	if _, err := time.Parse(domain.ReportDateLayout, startDate); err != nil {
		return nil, fmt.Errorf("%w: ngày bắt đầu '%s' không hợp lệ", repository.ErrInvalidDateRange, startDate)
	}
	if _, err := time.Parse(domain.ReportDateLayout, endDate); err != nil {
		return nil, fmt.Errorf("%w: ngày kết thúc '%s' không hợp lệ", repository.ErrInvalidDateRange, endDate)
	}
	if endDate < startDate {
		return nil, fmt.Errorf("%w: ngày kết thúc sớm hơn ngày bắt đầu", repository.ErrInvalidDateRange)
	}
	return s.reportRepo.FindRange(ctx, startDate, endDate)
}

func (s *LedgerService) GetAllSlots(ctx context.Context) ([]domain.ParkingSlot, error) {
	return s.slotRepo.FindAll(ctx)
}

// GetLotStatus tổng hợp trạng thái bãi: chế độ kết nối, chỗ trống và số
// thao tác đang chờ đồng bộ.
func (s *LedgerService) GetLotStatus(ctx context.Context) (*domain.LotStatus, error) {
	slots, err := s.slotRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("lỗi lấy danh sách chỗ đỗ: %w", err)
	}
	available, err := s.slotRepo.CountAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("lỗi đếm chỗ trống: %w", err)
	}
	pending, err := s.pendingRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("lỗi đếm thao tác chờ đồng bộ: %w", err)
	}
	return &domain.LotStatus{
		Mode:              string(s.conn.Mode()),
		TotalSlots:        len(slots),
		AvailableSlots:    available,
		PendingOperations: pending,
	}, nil
}

// ToggleMode đảo chế độ kết nối thủ công và trả về chế độ mới.
func (s *LedgerService) ToggleMode() string {
	mode := s.conn.Toggle()
	log.Printf("Service: Chuyển chế độ kết nối sang '%s'", mode)
	return string(mode)
}
