package domain

// DailyReport là một dòng tổng hợp cho một ngày (theo giờ địa phương,
// định dạng "2006-01-02"). Tạo lazy lần đầu có xe vào/ra trong ngày,
// sau đó chỉ tăng dần, không bao giờ tính lại từ bảng phiên.
type DailyReport struct {
	ID             int     `json:"id"`
	Date           string  `json:"date"`
	EntriesCount   int     `json:"entries_count"`
	ExitsCount     int     `json:"exits_count"`
	TotalCollected float64 `json:"total_collected"`
	PendingSync    bool    `json:"pending_sync"`
}

// ReportDateLayout là định dạng khóa ngày của báo cáo.
const ReportDateLayout = "2006-01-02"
