package service

import (
	"math"
	"strings"
	"time"
)

// TariffCalculator tra giá theo loại xe từ biểu giá cấu hình. Thuần túy,
// không I/O; loại xe lạ dùng giá mặc định thay vì báo lỗi.
type TariffCalculator struct {
	rates       map[string]float64
	defaultRate float64
}

func NewTariffCalculator(rates map[string]float64, defaultRate float64) *TariffCalculator {
	normalized := make(map[string]float64, len(rates))
	for vehicleType, rate := range rates {
		normalized[strings.ToLower(vehicleType)] = rate
	}
	return &TariffCalculator{rates: normalized, defaultRate: defaultRate}
}

func (t *TariffCalculator) RateFor(vehicleType string) float64 {
	if rate, ok := t.rates[strings.ToLower(vehicleType)]; ok {
		return rate
	}
	return t.defaultRate
}

// BilledHours quy đổi thời gian đỗ sang số giờ tính tiền: làm tròn LÊN
// giờ kế tiếp, tối thiểu một giờ kể cả khi đỗ dưới một giờ.
func BilledHours(elapsed time.Duration) int {
	hours := int(math.Ceil(elapsed.Minutes() / 60.0))
	if hours < 1 {
		hours = 1
	}
	return hours
}
