package handler

import (
	"context"
	"errors"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/broadcaster"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/dashboard"
)

type SubscribeRequest struct {
	Stream string `json:"stream"`
}

type SubscribeResponse struct {
	SubscriptionId string            `json:"subscriptionId,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Display        dashboard.Summary `json:"display"`
}

type SubscribeHandlerInterface interface {
	Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error)
}

type SubscribeHandler struct {
	streamNameValidator *StreamNameValidator
	catalog             *BoardCatalog
	viewerRegistry      broadcaster.Registry
}

func NewSubscribeHandler(
	streamNameValidator *StreamNameValidator,
	catalog *BoardCatalog,
	viewerRegistry broadcaster.Registry,
) *SubscribeHandler {
	return &SubscribeHandler{
		streamNameValidator,
		catalog,
		viewerRegistry,
	}
}

// Handle registers the calling connection as a viewer of the stream and
// returns what the stream currently displays.
func (h *SubscribeHandler) Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error) {
	err := h.streamNameValidator.Validate(req.Stream)
	if err != nil {
		return SubscribeResponse{}, err
	}

	board, err := h.catalog.Lookup(req.Stream)
	if err != nil {
		return SubscribeResponse{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return SubscribeResponse{}, errors.New("connection not found in context")
	}

	err = h.viewerRegistry.Register(req.Stream, *connection)
	if err != nil {
		return SubscribeResponse{}, err
	}

	return SubscribeResponse{
		SubscriptionId: connection.Id,
		Timestamp:      time.Now(),
		Display:        board.Stream().Display(),
	}, nil
}
