package service

import (
	"log"
	"sync"
)

type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Connectivity là trạng thái online/offline dùng chung giữa ledger và
// reconciler. Trạng thái được truyền tường minh qua constructor thay vì
// biến toàn cục để test được deterministic.
type Connectivity struct {
	mu      sync.RWMutex
	offline bool
	// onOnline được gọi (không giữ lock) mỗi khi chuyển offline -> online,
	// để reconciler chạy ngay một chu kỳ thay vì đợi hết interval.
	onOnline func()
}

func NewConnectivity(startOffline bool) *Connectivity {
	return &Connectivity{offline: startOffline}
}

func (c *Connectivity) IsOffline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offline
}

func (c *Connectivity) Mode() Mode {
	if c.IsOffline() {
		return ModeOffline
	}
	return ModeOnline
}

// Toggle đảo chế độ và trả về chế độ mới.
func (c *Connectivity) Toggle() Mode {
	c.mu.Lock()
	c.offline = !c.offline
	nowOffline := c.offline
	notify := c.onOnline
	c.mu.Unlock()

	if nowOffline {
		log.Println("Connectivity: Đã chuyển sang chế độ OFFLINE. Các thay đổi sẽ được ghi vào queue chờ đồng bộ.")
		return ModeOffline
	}
	log.Println("Connectivity: Đã chuyển sang chế độ ONLINE. Kích hoạt đồng bộ ngay.")
	if notify != nil {
		notify()
	}
	return ModeOnline
}

// SetOnOnline đăng ký callback cho cạnh offline -> online (reconciler dùng).
func (c *Connectivity) SetOnOnline(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOnline = fn
}
