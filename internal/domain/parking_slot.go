package domain

// ParkingSlot là một chỗ đỗ vật lý trong bãi. Mỗi chỗ đúng một dòng trong DB,
// được tạo một lần khi khởi tạo store theo sức chứa cấu hình (max_spaces).
// Bất biến: Occupied == true khi và chỉ khi có đúng một VehicleSession
// đang active tham chiếu tới chỗ này.
type ParkingSlot struct {
	ID       int  `json:"id"`
	Number   int  `json:"number"`
	Occupied bool `json:"occupied"`
}
