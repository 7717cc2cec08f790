package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/handler"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/ierr"
	"go.uber.org/zap"
)

type Router struct {
	logger *zap.Logger

	heartbeatHandler   handler.HeartbeatHandlerInterface
	subscribeHandler   handler.SubscribeHandlerInterface
	unsubscribeHandler handler.UnsubscribeHandlerInterface
	streamHandler      handler.StreamHandlerInterface
	refreshHandler     handler.RefreshHandlerInterface
	statusHandler      handler.StatusHandlerInterface
}

func NewRouter(
	logger *zap.Logger,
	heartbeatHandler handler.HeartbeatHandlerInterface,
	subscribeHandler handler.SubscribeHandlerInterface,
	unsubscribeHandler handler.UnsubscribeHandlerInterface,
	streamHandler handler.StreamHandlerInterface,
	refreshHandler handler.RefreshHandlerInterface,
	statusHandler handler.StatusHandlerInterface,
) *Router {
	return &Router{
		logger,
		heartbeatHandler,
		subscribeHandler,
		unsubscribeHandler,
		streamHandler,
		refreshHandler,
		statusHandler,
	}
}

func (r *Router) RouteRequest(ctx context.Context, request handler.Request) *handler.Response {
	response, err := r.Handle(ctx, request)
	if err != nil {
		if !request.ReplyExpected() {
			r.logger.Warn("notification failed",
				zap.String("method", request.Method),
				zap.Error(err))

			return nil
		}

		response := request.ReplyWithError(r.mapError(err))

		return &response
	}

	if !request.ReplyExpected() {
		return nil
	}

	rawJson, err := json.Marshal(response)
	if err != nil {
		response := request.ReplyWithError(r.mapError(err))

		return &response
	}

	payload := json.RawMessage(rawJson)
	reply := request.Reply(&payload)

	return &reply
}

func (r *Router) Handle(ctx context.Context, request handler.Request) (any, error) {
	switch request.Method {
	case "heartbeat":
		return r.heartbeatHandler.Handle(), nil
	case "subscribe":
		var subscribeReq handler.SubscribeRequest
		if err := decodeParams(request.Params, &subscribeReq); err != nil {
			return nil, err
		}

		return r.subscribeHandler.Handle(ctx, subscribeReq)
	case "unsubscribe":
		var unsubscribeReq handler.UnsubscribeRequest
		if err := decodeParams(request.Params, &unsubscribeReq); err != nil {
			return nil, err
		}

		return r.unsubscribeHandler.Handle(ctx, unsubscribeReq)
	case "stream":
		var streamReq handler.StreamRequest
		if err := decodeParams(request.Params, &streamReq); err != nil {
			return nil, err
		}

		return r.streamHandler.Handle(streamReq)
	case "refresh":
		var refreshReq handler.RefreshRequest
		if err := decodeParams(request.Params, &refreshReq); err != nil {
			return nil, err
		}

		return r.refreshHandler.Handle(ctx, refreshReq)
	case "status":
		return r.statusHandler.Handle(), nil
	default:
		return nil, ierr.New(ierr.ErrorCodeNotFound, errors.New("method not found: "+request.Method))
	}
}

func (r *Router) mapError(err error) ierr.Error {
	var handlerErr ierr.Error
	if errors.As(err, &handlerErr) {
		return handlerErr
	}

	r.logger.Error("error in rpc handler", zap.Error(err))

	return ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
}

func decodeParams(params *json.RawMessage, v any) error {
	if params == nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing params"))
	}

	if err := json.Unmarshal(*params, v); err != nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid params: "+err.Error()))
	}

	return nil
}
