package domain

import "time"

// User là tài khoản vận hành bãi xe. Vai trò: "admin" (cấu hình, quản lý
// người dùng) hoặc "operator" (đăng ký xe vào/ra, xem báo cáo).
type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"` // Không bao giờ trả về password hash trong JSON
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterUserDTO struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6,max=100"`
	Role     string `json:"role,omitempty"` // Mặc định là "operator" nếu bỏ trống
}

type LoginUserDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponseDTO struct {
	Token    string `json:"token"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
