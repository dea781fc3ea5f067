package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/api/handler"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/api/middleware"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/service"
)

func SetupRouter(
	as *service.AuthService,
	ls *service.LedgerService,
	lprService *service.LPRService,
	authMw *middleware.AuthMiddleware,
	wsManager *handler.WebSocketManager,
) *gin.Engine {
	r := gin.Default()
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// WebSocket cho bảng trạng thái (không cần auth)
	wsHandler := handler.NewWebSocketHandler(wsManager)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(as)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	ledgerH := handler.NewLedgerHandler(ls, wsManager)

	v1 := r.Group("/api/v1")
	v1.Use(authMw.Authenticate())
	{
		sessionRoutes := v1.Group("/sessions")
		{
			sessionRoutes.POST("/entry", ledgerH.RegisterEntry)
			sessionRoutes.POST("/exit", ledgerH.RegisterExit)
			sessionRoutes.GET("/active", ledgerH.GetActiveSessions)
			sessionRoutes.GET("", ledgerH.GetSessionsForDate)
		}

		reportRoutes := v1.Group("/reports")
		{
			reportRoutes.GET("", ledgerH.GetReportRange)
			reportRoutes.GET("/:date", ledgerH.GetReportByDate)
		}

		v1.GET("/slots", ledgerH.GetAllSlots)
		v1.GET("/status", ledgerH.GetLotStatus)

		// Đổi chế độ online/offline: chỉ admin
		v1.POST("/mode/toggle", authMw.AuthorizeRole("admin"), ledgerH.ToggleMode)

		if lprService != nil {
			lprH := handler.NewLPRHandler(lprService)
			lprRoutes := v1.Group("/lpr")
			lprRoutes.Use(authMw.AuthorizeRole("admin", "operator"))
			{
				lprRoutes.POST("/process-image", lprH.ProcessImage)
			}
		}
	}
	return r
}
