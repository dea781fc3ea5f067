package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string

	// Store cục bộ (SQLite), nguồn dữ liệu gốc
	LocalDBPath string
	MaxSpaces   int

	// Biểu giá theo loại xe (đ/giờ của loại tiền cấu hình), ví dụ:
	// TARIFF_AUTO=2.00, TARIFF_MOTO=1.00, TARIFF_CAMIONETA=3.00
	Tariffs     map[string]float64
	DefaultRate float64

	// Store trung tâm (Postgres), bản sao, có thể offline
	CentralDBHost     string
	CentralDBPort     int
	CentralDBUser     string
	CentralDBPassword string
	CentralDBName     string
	CentralDBSslMode  string

	SyncInterval    time.Duration // Chu kỳ chạy reconciler
	CentralTimeout  time.Duration // Timeout cho mỗi lần push lên store trung tâm
	StartOffline    bool          // Khởi động ở chế độ offline
	AdminUsername   string        // Tài khoản admin seed lần đầu
	AdminPassword   string
	AWSRegion       string // Cho Rekognition (nhận dạng biển số)

	JWTSecret          string
	JWTExpirationHours time.Duration
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Cảnh báo: Không thể tải file .env: %v", err)
	}

	centralPort, _ := strconv.Atoi(getEnv("CENTRAL_DB_PORT", "5432"))
	maxSpaces, _ := strconv.Atoi(getEnv("MAX_SPACES", "50"))
	syncSeconds, _ := strconv.Atoi(getEnv("SYNC_INTERVAL_SECONDS", "300")) // Mặc định 5 phút
	centralTimeout, _ := strconv.Atoi(getEnv("CENTRAL_TIMEOUT_SECONDS", "10"))
	jwtExpHours, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	defaultRate, _ := strconv.ParseFloat(getEnv("TARIFF_DEFAULT", "2.00"), 64)

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		LocalDBPath: getEnv("LOCAL_DB_PATH", "parqueadero_local.db"),
		MaxSpaces:   maxSpaces,

		Tariffs:     loadTariffs(),
		DefaultRate: defaultRate,

		CentralDBHost:     getEnv("CENTRAL_DB_HOST", "localhost"),
		CentralDBPort:     centralPort,
		CentralDBUser:     getEnv("CENTRAL_DB_USER", "parqueadero"),
		CentralDBPassword: getEnv("CENTRAL_DB_PASSWORD", ""),
		CentralDBName:     getEnv("CENTRAL_DB_NAME", "parqueadero"),
		CentralDBSslMode:  getEnv("CENTRAL_DB_SSLMODE", "disable"),

		SyncInterval:   time.Duration(syncSeconds) * time.Second,
		CentralTimeout: time.Duration(centralTimeout) * time.Second,
		StartOffline:   getEnv("START_OFFLINE", "false") == "true",
		AdminUsername:  getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", "admin123"),
		AWSRegion:      getEnv("AWS_REGION", "ap-southeast-1"),

		JWTSecret:          getEnv("JWT_SECRET", "your-very-secret-key-for-jwt-!@#$"),
		JWTExpirationHours: time.Duration(jwtExpHours) * time.Hour,
	}
}

// loadTariffs đọc mọi biến TARIFF_<LOẠI_XE>, khóa được chuẩn hóa chữ thường.
// TARIFF_DEFAULT là giá fallback cho loại xe không có trong biểu giá.
func loadTariffs() map[string]float64 {
	tariffs := map[string]float64{
		"auto":      2.00,
		"moto":      1.00,
		"camioneta": 3.00,
	}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "TARIFF_") || parts[0] == "TARIFF_DEFAULT" {
			continue
		}
		rate, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			log.Printf("Cảnh báo: Giá trị biểu giá '%s' không hợp lệ, bỏ qua.", kv)
			continue
		}
		vehicleType := strings.ToLower(strings.TrimPrefix(parts[0], "TARIFF_"))
		tariffs[vehicleType] = rate
	}
	return tariffs
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
