package handler

import (
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/connectivity"
)

// HeartbeatResponse tells the viewer the server is alive and whether the
// server itself currently reaches the data store.
type HeartbeatResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Online    bool      `json:"online"`
}

type HeartbeatHandlerInterface interface {
	Handle() HeartbeatResponse
}

type HeartbeatHandler struct {
	monitor *connectivity.Monitor
}

func NewHeartbeatHandler(monitor *connectivity.Monitor) *HeartbeatHandler {
	return &HeartbeatHandler{
		monitor,
	}
}

func (h *HeartbeatHandler) Handle() HeartbeatResponse {
	return HeartbeatResponse{
		Timestamp: time.Now(),
		Online:    h.monitor.IsOnline(),
	}
}
