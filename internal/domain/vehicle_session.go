package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type VehicleSessionStatus string

const (
	SessionActive VehicleSessionStatus = "active"
	SessionClosed VehicleSessionStatus = "closed"
)

// VehicleSession là bản ghi vòng đời một lượt gửi xe: tạo khi xe vào,
// cập nhật đúng một lần khi xe ra (status=closed), không bao giờ xóa.
// Bất biến: tại mọi thời điểm, mỗi biển số có tối đa một phiên active.
type VehicleSession struct {
	ID             int                  `json:"id"`
	Plate          string               `json:"plate"`
	VehicleType    string               `json:"vehicle_type"`
	Driver         null.String          `json:"driver,omitempty"`
	EntryTime      time.Time            `json:"entry_time"`
	ExitTime       null.Time            `json:"exit_time,omitempty"`
	SlotID         int                  `json:"slot_id"`
	Status         VehicleSessionStatus `json:"status"`
	ElapsedMinutes null.Float           `json:"elapsed_minutes,omitempty"`
	HourlyRate     null.Float           `json:"hourly_rate,omitempty"`
	AmountDue      null.Float           `json:"amount_due,omitempty"`
	PendingSync    bool                 `json:"pending_sync"`
}

// DTO cho API đăng ký xe vào (frontend gửi lên, biển số đã được validate format)
type RegisterEntryDTO struct {
	Plate       string `json:"plate" binding:"required"`
	VehicleType string `json:"vehicle_type" binding:"required"`
	Driver      string `json:"driver,omitempty"`
}

type RegisterExitDTO struct {
	Plate string `json:"plate" binding:"required"`
}

// EntryResult trả về cho caller sau khi đăng ký vào thành công.
type EntryResult struct {
	SessionID  int       `json:"session_id"`
	Plate      string    `json:"plate"`
	SlotNumber int       `json:"slot_number"`
	EntryTime  time.Time `json:"entry_time"`
}

// BillingDetails là bản tóm tắt thanh toán trả về khi xe ra.
// Việc render hóa đơn (PDF...) do phía UI đảm nhiệm.
type BillingDetails struct {
	ReceiptNumber  string    `json:"receipt_number"`
	Plate          string    `json:"plate"`
	VehicleType    string    `json:"vehicle_type"`
	EntryTime      time.Time `json:"entry_time"`
	ExitTime       time.Time `json:"exit_time"`
	ElapsedMinutes float64   `json:"elapsed_minutes"`
	BilledHours    int       `json:"billed_hours"`
	HourlyRate     float64   `json:"hourly_rate"`
	AmountDue      float64   `json:"amount_due"`
}
