package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/repository"
	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/service"
)

// LedgerHandler là mặt HTTP của nghiệp vụ bãi xe. Biển số được chuẩn hóa
// và validate tại đây, service nhận biển số đã sạch.
type LedgerHandler struct {
	ledgerService *service.LedgerService
	wsManager     *WebSocketManager
}

func NewLedgerHandler(ls *service.LedgerService, wsManager *WebSocketManager) *LedgerHandler {
	return &LedgerHandler{ledgerService: ls, wsManager: wsManager}
}

// POST /api/v1/sessions/entry
func (h *LedgerHandler) RegisterEntry(c *gin.Context) {
	var dto domain.RegisterEntryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu không hợp lệ: " + err.Error()})
		return
	}

	dto.Plate = domain.NormalizePlate(dto.Plate)
	if !domain.ValidPlate(dto.Plate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Biển số không đúng định dạng (ABC-123, AB-1234 hoặc A1B-123)"})
		return
	}

	result, err := h.ledgerService.RegisterEntry(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, repository.ErrLotFull) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể ghi nhận xe vào", "details": err.Error()})
		return
	}

	h.broadcastUpdate(c, "entry", result.Plate, result.SlotNumber, 0)
	c.JSON(http.StatusCreated, result)
}

// POST /api/v1/sessions/exit
func (h *LedgerHandler) RegisterExit(c *gin.Context) {
	var dto domain.RegisterExitDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu không hợp lệ: " + err.Error()})
		return
	}

	dto.Plate = domain.NormalizePlate(dto.Plate)
	if !domain.ValidPlate(dto.Plate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Biển số không đúng định dạng (ABC-123, AB-1234 hoặc A1B-123)"})
		return
	}

	billing, err := h.ledgerService.RegisterExit(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể ghi nhận xe ra", "details": err.Error()})
		return
	}

	h.broadcastUpdate(c, "exit", billing.Plate, 0, billing.AmountDue)
	c.JSON(http.StatusOK, billing)
}

// GET /api/v1/sessions/active
func (h *LedgerHandler) GetActiveSessions(c *gin.Context) {
	sessions, err := h.ledgerService.GetActiveSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lỗi lấy danh sách phiên đang hoạt động", "details": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []domain.VehicleSession{}
	}
	c.JSON(http.StatusOK, sessions)
}

// GET /api/v1/sessions?date=2006-01-02
func (h *LedgerHandler) GetSessionsForDate(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Thiếu tham số 'date'"})
		return
	}
	sessions, err := h.ledgerService.GetSessionsForDate(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidDateRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lỗi lấy danh sách phiên theo ngày", "details": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []domain.VehicleSession{}
	}
	c.JSON(http.StatusOK, sessions)
}

// GET /api/v1/reports/:date
func (h *LedgerHandler) GetReportByDate(c *gin.Context) {
	report, err := h.ledgerService.GetReportByDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidDateRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Chưa có báo cáo cho ngày này"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lỗi lấy báo cáo ngày", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/v1/reports?start=2006-01-02&end=2006-01-02
func (h *LedgerHandler) GetReportRange(c *gin.Context) {
	start := c.Query("start")
	end := c.Query("end")
	if start == "" || end == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Thiếu tham số 'start' hoặc 'end'"})
		return
	}
	reports, err := h.ledgerService.GetReportRange(c.Request.Context(), start, end)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidDateRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lỗi lấy báo cáo", "details": err.Error()})
		return
	}
	if reports == nil {
		reports = []domain.DailyReport{}
	}
	c.JSON(http.StatusOK, reports)
}

// GET /api/v1/slots
func (h *LedgerHandler) GetAllSlots(c *gin.Context) {
	slots, err := h.ledgerService.GetAllSlots(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lỗi lấy danh sách chỗ đỗ", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, slots)
}

// GET /api/v1/status
func (h *LedgerHandler) GetLotStatus(c *gin.Context) {
	status, err := h.ledgerService.GetLotStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lỗi lấy trạng thái bãi", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// POST /api/v1/mode/toggle
func (h *LedgerHandler) ToggleMode(c *gin.Context) {
	mode := h.ledgerService.ToggleMode()
	h.broadcastUpdate(c, "mode_change", "", 0, 0)
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

func (h *LedgerHandler) broadcastUpdate(c *gin.Context, event, plate string, slotNumber int, amountDue float64) {
	if h.wsManager == nil {
		return
	}
	status, err := h.ledgerService.GetLotStatus(c.Request.Context())
	if err != nil {
		return
	}
	h.wsManager.BroadcastLotUpdate(domain.LotUpdateNotification{
		Event:             event,
		Plate:             plate,
		SlotNumber:        slotNumber,
		AmountDue:         amountDue,
		Mode:              status.Mode,
		AvailableSlots:    status.AvailableSlots,
		PendingOperations: status.PendingOperations,
	})
}
