package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/handler"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/ierr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RESTServer struct {
	logger *zap.Logger

	streamHandler    handler.StreamHandlerInterface
	refreshHandler   handler.RefreshHandlerInterface
	statusHandler    handler.StatusHandlerInterface
	reconnectHandler handler.ReconnectHandlerInterface
}

func NewRESTServer(
	logger *zap.Logger,
	streamHandler handler.StreamHandlerInterface,
	refreshHandler handler.RefreshHandlerInterface,
	statusHandler handler.StatusHandlerInterface,
	reconnectHandler handler.ReconnectHandlerInterface,
) *RESTServer {
	return &RESTServer{
		logger,
		streamHandler,
		refreshHandler,
		statusHandler,
		reconnectHandler,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.Use(corsMiddleware)

	router.HandleFunc("/streams/{name}", func(w http.ResponseWriter, r *http.Request) {
		response, err := s.streamHandler.Handle(handler.StreamRequest{
			Stream: mux.Vars(r)["name"],
		})
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, response)
	}).Methods("GET", "OPTIONS")

	router.HandleFunc("/refresh/{name}", func(w http.ResponseWriter, r *http.Request) {
		response, err := s.refreshHandler.Handle(r.Context(), handler.RefreshRequest{
			Stream: mux.Vars(r)["name"],
		})
		if err != nil {
			s.writeError(w, err)
			return
		}

		status := http.StatusOK
		if !response.Started {
			status = http.StatusAccepted
		}

		s.writeJSON(w, status, response)
	}).Methods("POST", "OPTIONS")

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.statusHandler.Handle())
	}).Methods("GET", "OPTIONS")

	router.HandleFunc("/reconnect", func(w http.ResponseWriter, r *http.Request) {
		response, err := s.reconnectHandler.Handle(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, response)
	}).Methods("POST", "OPTIONS")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	code := ierr.CodeOf(err)
	if code == ierr.ErrorCodeInternal {
		s.logger.Error("failed to handle request", zap.Error(err))
	}

	var body ierr.Error
	if !errors.As(err, &body) {
		body = ierr.Error{Code: code, Message: "internal error"}
	}

	s.writeJSON(w, httpStatus(code), body)
}

func httpStatus(code ierr.ErrorCode) int {
	switch code {
	case ierr.ErrorCodeInvalidArgument:
		return http.StatusBadRequest
	case ierr.ErrorCodeNotFound:
		return http.StatusNotFound
	case ierr.ErrorCodeFailedPrecondition:
		return http.StatusConflict
	case ierr.ErrorCodeResourceExhausted:
		return http.StatusTooManyRequests
	case ierr.ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}
