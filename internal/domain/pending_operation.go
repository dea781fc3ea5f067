package domain

import "time"

type PendingOperationKind string

const (
	PendingEntry PendingOperationKind = "entry"
	PendingExit  PendingOperationKind = "exit"
)

// PendingOperation là một chỉ thị replay: "mutation này chưa được đẩy lên
// central store". Chỉ được append khi đang ở chế độ offline và được
// reconciler tiêu thụ theo đúng thứ tự enqueue. Đây KHÔNG phải nguồn dữ
// liệu gốc, store cục bộ mới là nguồn gốc; mất queue vẫn khôi phục được
// từ cờ pending_sync trên các dòng phiên.
type PendingOperation struct {
	ID        string               `json:"id"` // uuid
	Kind      PendingOperationKind `json:"kind"`
	Plate     string               `json:"plate"`
	Timestamp time.Time            `json:"timestamp"`
}
