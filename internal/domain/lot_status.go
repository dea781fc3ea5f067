package domain

// LotStatus là ảnh chụp nhanh trạng thái bãi cho thanh trạng thái của UI.
type LotStatus struct {
	Mode              string `json:"mode"` // "online" | "offline"
	TotalSlots        int    `json:"total_slots"`
	AvailableSlots    int    `json:"available_slots"`
	PendingOperations int    `json:"pending_operations"`
}
