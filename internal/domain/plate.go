package domain

import (
	"regexp"
	"strings"
)

// Các định dạng biển số được chấp nhận: ABC-123 (ô tô), AB-1234 (xe máy)
// và biến thể chữ-số A1B-123.
var plateRegex = regexp.MustCompile(`^([A-Z]{3}-\d{3}|[A-Z]{2}-\d{4}|[A-Z0-9]{3}-\d{3})$`)

// NormalizePlate đưa biển số về dạng chuẩn trước khi lưu: viết hoa, bỏ
// khoảng trắng thừa. Mọi thao tác so khớp biển số dùng dạng này.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// ValidPlate kiểm tra biển số đã chuẩn hóa có khớp một trong các định dạng
// được chấp nhận không.
func ValidPlate(plate string) bool {
	return plateRegex.MatchString(plate)
}
