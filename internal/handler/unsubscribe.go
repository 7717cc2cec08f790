package handler

import (
	"context"
	"errors"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/broadcaster"
)

type UnsubscribeRequest struct {
	Stream string `json:"stream"`
}

type UnsubscribeResponse struct {
	Success bool `json:"success"`
}

type UnsubscribeHandlerInterface interface {
	Handle(ctx context.Context, req UnsubscribeRequest) (UnsubscribeResponse, error)
}

type UnsubscribeHandler struct {
	streamNameValidator *StreamNameValidator
	viewerRegistry      broadcaster.Registry
}

func NewUnsubscribeHandler(
	streamNameValidator *StreamNameValidator,
	viewerRegistry broadcaster.Registry,
) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		streamNameValidator,
		viewerRegistry,
	}
}

func (h *UnsubscribeHandler) Handle(ctx context.Context, req UnsubscribeRequest) (UnsubscribeResponse, error) {
	err := h.streamNameValidator.Validate(req.Stream)
	if err != nil {
		return UnsubscribeResponse{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return UnsubscribeResponse{}, errors.New("connection not found in context")
	}

	h.viewerRegistry.Unregister(req.Stream, connection.Id)

	return UnsubscribeResponse{
		Success: true,
	}, nil
}
