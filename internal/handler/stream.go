package handler

import (
	"errors"
	"regexp"
	"sort"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/dashboard"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/ierr"
)

type StreamNameValidator struct {
	streamNameRegex *regexp.Regexp
}

func NewStreamNameValidator() *StreamNameValidator {
	return &StreamNameValidator{
		streamNameRegex: regexp.MustCompile(`^([\w-]+:?)*\w$`),
	}
}

func (v *StreamNameValidator) Validate(stream string) error {
	valid := v.streamNameRegex.MatchString(stream)
	if !valid {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid stream name"))
	}

	return nil
}

// BoardCatalog resolves display stream names to the boards that feed them.
type BoardCatalog struct {
	boards map[string]*dashboard.Board
}

func NewBoardCatalog(boards ...*dashboard.Board) *BoardCatalog {
	catalog := &BoardCatalog{
		boards: make(map[string]*dashboard.Board, len(boards)),
	}

	for _, board := range boards {
		catalog.boards[board.Name()] = board
	}

	return catalog
}

func (c *BoardCatalog) Lookup(stream string) (*dashboard.Board, error) {
	board, ok := c.boards[stream]
	if !ok {
		return nil, ierr.New(ierr.ErrorCodeNotFound, errors.New("stream not found: "+stream))
	}

	return board, nil
}

func (c *BoardCatalog) Boards() []*dashboard.Board {
	boards := make([]*dashboard.Board, 0, len(c.boards))
	for _, board := range c.boards {
		boards = append(boards, board)
	}

	sort.Slice(boards, func(i, j int) bool {
		return boards[i].Name() < boards[j].Name()
	})

	return boards
}

type StreamRequest struct {
	Stream string `json:"stream"`
}

type StreamResponse struct {
	Stream     string            `json:"stream"`
	Display    dashboard.Summary `json:"display"`
	LastCommit time.Time         `json:"lastCommit"`
	Pending    bool              `json:"pending"`
	Refreshing bool              `json:"refreshing"`
}

type StreamHandlerInterface interface {
	Handle(req StreamRequest) (StreamResponse, error)
}

type StreamHandler struct {
	streamNameValidator *StreamNameValidator
	catalog             *BoardCatalog
}

func NewStreamHandler(
	streamNameValidator *StreamNameValidator,
	catalog *BoardCatalog,
) *StreamHandler {
	return &StreamHandler{
		streamNameValidator,
		catalog,
	}
}

func (h *StreamHandler) Handle(req StreamRequest) (StreamResponse, error) {
	err := h.streamNameValidator.Validate(req.Stream)
	if err != nil {
		return StreamResponse{}, err
	}

	board, err := h.catalog.Lookup(req.Stream)
	if err != nil {
		return StreamResponse{}, err
	}

	return streamResponse(board), nil
}

func streamResponse(board *dashboard.Board) StreamResponse {
	stream := board.Stream()

	return StreamResponse{
		Stream:     board.Name(),
		Display:    stream.Display(),
		LastCommit: stream.LastCommit(),
		Pending:    stream.Pending(),
		Refreshing: board.IsRefreshing(),
	}
}
