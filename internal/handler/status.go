package handler

import (
	"context"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/broadcaster"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/connectivity"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/realtime"
)

type StreamStatus struct {
	Stream     string    `json:"stream"`
	Viewers    int       `json:"viewers"`
	Refreshing bool      `json:"refreshing"`
	Pending    bool      `json:"pending"`
	LastCommit time.Time `json:"lastCommit"`
}

type StatusResponse struct {
	Connectivity connectivity.State `json:"connectivity"`
	Channels     []string           `json:"channels"`
	Streams      []StreamStatus     `json:"streams"`
}

type StatusHandlerInterface interface {
	Handle() StatusResponse
}

type StatusHandler struct {
	monitor         *connectivity.Monitor
	channelRegistry *realtime.Registry
	viewerRegistry  broadcaster.Registry
	catalog         *BoardCatalog
}

func NewStatusHandler(
	monitor *connectivity.Monitor,
	channelRegistry *realtime.Registry,
	viewerRegistry broadcaster.Registry,
	catalog *BoardCatalog,
) *StatusHandler {
	return &StatusHandler{
		monitor,
		channelRegistry,
		viewerRegistry,
		catalog,
	}
}

func (h *StatusHandler) Handle() StatusResponse {
	boards := h.catalog.Boards()
	streams := make([]StreamStatus, len(boards))

	for i, board := range boards {
		stream := board.Stream()

		streams[i] = StreamStatus{
			Stream:     board.Name(),
			Viewers:    h.viewerRegistry.Viewers(board.Name()),
			Refreshing: board.IsRefreshing(),
			Pending:    stream.Pending(),
			LastCommit: stream.LastCommit(),
		}
	}

	return StatusResponse{
		Connectivity: h.monitor.State(),
		Channels:     h.channelRegistry.Names(),
		Streams:      streams,
	}
}

type ReconnectResponse struct {
	Timestamp time.Time `json:"timestamp"`
}

type ReconnectHandlerInterface interface {
	Handle(ctx context.Context) (ReconnectResponse, error)
}

// ReconnectHandler forces the change transport to reconnect. Requests made
// before the registry's cooldown elapsed are refused.
type ReconnectHandler struct {
	channelRegistry *realtime.Registry
}

func NewReconnectHandler(channelRegistry *realtime.Registry) *ReconnectHandler {
	return &ReconnectHandler{
		channelRegistry,
	}
}

func (h *ReconnectHandler) Handle(ctx context.Context) (ReconnectResponse, error) {
	err := h.channelRegistry.ReconnectNow(ctx)
	if err != nil {
		return ReconnectResponse{}, err
	}

	return ReconnectResponse{
		Timestamp: time.Now(),
	}, nil
}
