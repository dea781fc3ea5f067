package domain

type LPRRequestDTO struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
}

type LPRResponseDTO struct {
	DetectedPlate string  `json:"detected_plate"`
	Confidence    float32 `json:"confidence,omitempty"`
	ErrorMessage  string  `json:"error_message,omitempty"`
}

// LotUpdateNotification được broadcast qua WebSocket cho bảng trạng thái
// tại quầy mỗi khi có xe vào/ra, đổi chế độ kết nối hoặc hoàn tất một
// chu kỳ đồng bộ.
type LotUpdateNotification struct {
	Event             string  `json:"event"` // "entry", "exit", "mode_change", "sync"
	Plate             string  `json:"plate,omitempty"`
	SlotNumber        int     `json:"slot_number,omitempty"`
	AmountDue         float64 `json:"amount_due,omitempty"`
	Mode              string  `json:"mode"`
	AvailableSlots    int     `json:"available_slots"`
	PendingOperations int     `json:"pending_operations"`
}
