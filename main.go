package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsgo_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/api"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/api/handler"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/api/middleware"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/config"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository/postgresql"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository/sqlite"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/service"
	syncpkg "github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/sync"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	log.Println("Cấu hình đã được tải.")

	// 2. Store cục bộ (SQLite), nguồn sự thật, luôn phải mở được
	store, err := sqlite.NewStore(cfg.LocalDBPath)
	if err != nil {
		log.Fatalf("Không thể mở store cục bộ: %v", err)
	}
	defer store.Close()
	log.Printf("Đã mở store cục bộ tại %s", cfg.LocalDBPath)

	ctx := context.Background()
	if err := store.SeedSlots(ctx, cfg.MaxSpaces); err != nil {
		log.Fatalf("Không thể seed chỗ đỗ: %v", err)
	}
	if err := store.SeedAdminUser(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Không thể seed tài khoản admin: %v", err)
	}

	// 3. Store trung tâm (Postgres), được phép chưa kết nối lúc khởi động
	centralStore, err := postgresql.NewCentralStore(cfg)
	if err != nil {
		log.Fatalf("Cấu hình store trung tâm không hợp lệ: %v", err)
	}
	defer centralStore.Close()

	// 4. AWS SDK cho Rekognition (nhận dạng biển số). Thiếu credentials thì
	// chạy không có LPR thay vì chết.
	var lprService *service.LPRService
	awsSDKCfg, err := awsgo_config.LoadDefaultConfig(ctx, awsgo_config.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Printf("CẢNH BÁO: Không thể tải AWS SDK config: %v. LPR sẽ không khả dụng.", err)
	} else {
		lprService = service.NewLPRService(rekognition.NewFromConfig(awsSDKCfg))
		log.Println("Đã khởi tạo Rekognition client cho LPR, region:", cfg.AWSRegion)
	}

	// 5. Repositories trên store cục bộ
	userRepo := sqlite.NewUserRepository(store)
	slotRepo := sqlite.NewSlotRepository(store)
	sessionRepo := sqlite.NewSessionRepository(store)
	reportRepo := sqlite.NewReportRepository(store)
	pendingRepo := sqlite.NewPendingOperationRepository(store)

	// 6. WebSocket manager cho bảng trạng thái
	webSocketManager := handler.NewWebSocketManager()
	go webSocketManager.Start()
	log.Println("WebSocket Manager đã được khởi động.")

	// 7. Services
	connectivity := service.NewConnectivity(cfg.StartOffline)
	tariff := service.NewTariffCalculator(cfg.Tariffs, cfg.DefaultRate)
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpirationHours)
	ledgerService := service.NewLedgerService(
		store, slotRepo, sessionRepo, reportRepo, pendingRepo,
		centralStore, tariff, connectivity, cfg.CentralTimeout,
	)

	// 8. Reconciler: replay queue chờ đồng bộ theo chu kỳ, chạy ngay một
	// lượt mỗi khi chuyển sang online.
	reconciler := syncpkg.NewReconciler(
		store, sessionRepo, reportRepo, pendingRepo,
		centralStore, connectivity, cfg.SyncInterval, cfg.CentralTimeout,
	)
	connectivity.SetOnOnline(reconciler.Trigger)
	reconciler.SetOnCycleEnd(func(synced int) {
		status, err := ledgerService.GetLotStatus(context.Background())
		if err != nil {
			return
		}
		webSocketManager.BroadcastLotUpdate(domain.LotUpdateNotification{
			Event:             "sync",
			Mode:              status.Mode,
			AvailableSlots:    status.AvailableSlots,
			PendingOperations: status.PendingOperations,
		})
	})

	var wg sync.WaitGroup
	reconcilerCtx, cancelReconciler := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Start(reconcilerCtx)
	}()

	// 9. HTTP Router
	authMiddleware := middleware.NewAuthMiddleware(authService)
	router := api.SetupRouter(authService, ledgerService, lprService, authMiddleware, webSocketManager)

	// 10. Start HTTP Server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server đang chạy trên port %s (chế độ %s)", cfg.ServerPort, connectivity.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Lỗi ListenAndServe(): %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Đang tắt server...")

	cancelReconciler()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server buộc phải tắt: %v", err)
	}

	log.Println("Đang chờ reconciler dừng (tối đa 5 giây)...")
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		log.Println("Reconciler đã dừng hoàn toàn.")
	case <-time.After(5 * time.Second):
		log.Println("Reconciler không dừng trong thời gian chờ.")
	}

	log.Println("Server đã tắt.")
}
