package handler

import (
	"context"
	"time"
)

type RefreshRequest struct {
	Stream string `json:"stream"`
}

// RefreshResponse reports whether this request ran the refresh. Started is
// false when a refresh of the stream was already running.
type RefreshResponse struct {
	Started   bool           `json:"started"`
	Timestamp time.Time      `json:"timestamp"`
	Stream    StreamResponse `json:"stream"`
}

type RefreshHandlerInterface interface {
	Handle(ctx context.Context, req RefreshRequest) (RefreshResponse, error)
}

type RefreshHandler struct {
	streamNameValidator *StreamNameValidator
	catalog             *BoardCatalog
}

func NewRefreshHandler(
	streamNameValidator *StreamNameValidator,
	catalog *BoardCatalog,
) *RefreshHandler {
	return &RefreshHandler{
		streamNameValidator,
		catalog,
	}
}

func (h *RefreshHandler) Handle(ctx context.Context, req RefreshRequest) (RefreshResponse, error) {
	err := h.streamNameValidator.Validate(req.Stream)
	if err != nil {
		return RefreshResponse{}, err
	}

	board, err := h.catalog.Lookup(req.Stream)
	if err != nil {
		return RefreshResponse{}, err
	}

	started := board.Refresh(ctx)

	return RefreshResponse{
		Started:   started,
		Timestamp: time.Now(),
		Stream:    streamResponse(board),
	}, nil
}
