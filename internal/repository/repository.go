package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
)

var ErrNotFound = errors.New("không tìm thấy bản ghi")
var ErrDuplicateEntry = errors.New("xe đã được đăng ký vào bãi")
var ErrNoActiveSession = errors.New("không tìm thấy phiên gửi xe đang hoạt động cho biển số cung cấp")
var ErrLotFull = errors.New("không còn chỗ trống trong bãi")
var ErrInvalidDateRange = errors.New("khoảng ngày không hợp lệ")

// ErrCentralAuth: xác thực store trung tâm thất bại, lỗi cấu hình,
// reconciler chuyển về trạng thái offline thay vì retry liên tục.
var ErrCentralAuth = errors.New("cấu hình xác thực store trung tâm không hợp lệ")

// TxRunner chạy fn trong một transaction ghi trên store cục bộ, commit
// khi fn trả về nil và rollback khi có lỗi. Store SQLite tuần tự hóa các
// writer nên ledger và reconciler không chạy đua trên cùng một dòng.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Các repository cục bộ nhận thêm biến thể WithTx để mọi hiệu ứng của một
// thao tác vào/ra (chiếm chỗ + tạo phiên + tăng báo cáo + append pending)
// commit thành một đơn vị duy nhất trên store SQLite.

type SlotRepository interface {
	// AcquireFree chọn chỗ trống có số nhỏ nhất và đánh dấu occupied.
	// Trả về ErrLotFull nếu không còn chỗ nào trống.
	AcquireFree(ctx context.Context) (*domain.ParkingSlot, error)
	// Release đánh dấu chỗ trống trở lại. Idempotent: release một chỗ đã
	// trống không phải là lỗi.
	Release(ctx context.Context, slotID int) error
	FindByID(ctx context.Context, id int) (*domain.ParkingSlot, error)
	FindAll(ctx context.Context) ([]domain.ParkingSlot, error)
	CountAvailable(ctx context.Context) (int, error)
	WithTx(tx *sql.Tx) SlotRepository
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.VehicleSession) (*domain.VehicleSession, error)
	// FindActiveByPlate trả về ErrNoActiveSession nếu biển số không có phiên active.
	FindActiveByPlate(ctx context.Context, plate string) (*domain.VehicleSession, error)
	// FindLatestClosedByPlate dùng cho reconciler khi replay thao tác "exit".
	FindLatestClosedByPlate(ctx context.Context, plate string) (*domain.VehicleSession, error)
	// Close cập nhật phiên đúng một lần sang trạng thái closed kèm dữ liệu thanh toán.
	Close(ctx context.Context, session *domain.VehicleSession) error
	FindAllActive(ctx context.Context) ([]domain.VehicleSession, error)
	// FindByEntryDate trả về các phiên có ngày vào bằng date (giờ địa phương).
	FindByEntryDate(ctx context.Context, date string) ([]domain.VehicleSession, error)
	// ClearPendingSync xóa cờ pending_sync cho đúng một phiên sau khi push
	// thành công, và chỉ khi phiên vẫn ở trạng thái status đã quan sát lúc
	// push. Phiên vừa bị đóng xen giữa giữ nguyên cờ mới của nó.
	ClearPendingSync(ctx context.Context, sessionID int, status domain.VehicleSessionStatus) error
	// FindPendingSync quét các phiên còn cờ pending_sync = 1, theo thứ tự id,
	// dùng để dựng lại queue khi khởi động.
	FindPendingSync(ctx context.Context) ([]domain.VehicleSession, error)
	WithTx(tx *sql.Tx) SessionRepository
}

type ReportRepository interface {
	// IncrementEntries tăng entries_count cho ngày date, tạo dòng mới nếu chưa có.
	IncrementEntries(ctx context.Context, date string) error
	// IncrementExits tăng exits_count và cộng amount vào total_collected cho ngày date.
	IncrementExits(ctx context.Context, date string, amount float64) error
	FindByDate(ctx context.Context, date string) (*domain.DailyReport, error)
	// FindRange trả về các dòng báo cáo trong [startDate, endDate] sắp xếp tăng dần theo ngày.
	FindRange(ctx context.Context, startDate, endDate string) ([]domain.DailyReport, error)
	ClearPendingSync(ctx context.Context, date string) error
	// ClearSyncedDates xóa cờ pending_sync cho những ngày mà toàn bộ phiên
	// liên quan đã được đẩy lên trung tâm. Không bao giờ clear kiểu "quét
	// sạch": ngày còn phiên pending giữ nguyên cờ.
	ClearSyncedDates(ctx context.Context) (int64, error)
	WithTx(tx *sql.Tx) ReportRepository
}

type PendingOperationRepository interface {
	Append(ctx context.Context, op *domain.PendingOperation) error
	// FindAll trả về toàn bộ queue theo đúng thứ tự enqueue.
	FindAll(ctx context.Context) ([]domain.PendingOperation, error)
	// Remove xóa đúng một thao tác đã replay thành công.
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	// ExistsForPlate kiểm tra đã có thao tác kind/plate trong queue chưa
	// (tránh enqueue trùng khi dựng lại từ cờ pending_sync).
	ExistsForPlate(ctx context.Context, kind domain.PendingOperationKind, plate string) (bool, error)
	WithTx(tx *sql.Tx) PendingOperationRepository
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
}

// CentralStore trừu tượng hóa khả năng duy nhất mà core cần từ store trung
// tâm: đẩy một snapshot phiên. Giao thức cụ thể (SQL qua socket mạng hay
// cách khác) là chi tiết cài đặt của package postgresql.
type CentralStore interface {
	// PushSession chèn hoặc cập nhật bản sao của phiên trên store trung tâm.
	// Caller chịu trách nhiệm đặt timeout trên ctx.
	PushSession(ctx context.Context, session *domain.VehicleSession) error
	// Ping kiểm tra kết nối/xác thực khi reconciler khởi động.
	Ping(ctx context.Context) error
}
