package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/casualjim/parley"
	"github.com/casualjim/parley/config"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/slogx"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/trace"
	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
)

type askRequest struct {
	Message string             `json:"message"`
	History []messages.Message `json:"history,omitempty"`
	Debug   bool               `json:"debug,omitempty"`
	Reset   bool               `json:"reset,omitempty"`
	// Stream selects a server-sent event response.
	Stream bool           `json:"stream,omitempty"`
	Preset *config.Preset `json:"preset,omitempty"`
}

type askResponse struct {
	Answer   string                 `json:"answer"`
	DebugID  *string                `json:"debug_id"`
	Usage    messages.Usage         `json:"usage"`
	Safety   messages.SafetyRatings `json:"safety,omitempty"`
	Model    string                 `json:"model"`
	Provider string                 `json:"provider"`
	Thinking string                 `json:"thinking,omitempty"`
	State    parley.State           `json:"state"`
	History  []messages.Message     `json:"history"`
}

type statusEvent struct {
	Status string       `json:"status"`
	State  parley.State `json:"state"`
}

type tokenEvent struct {
	Text string `json:"text"`
}

func newAskResponse(res parley.Result) askResponse {
	return askResponse{
		Answer:   res.Answer,
		DebugID:  res.DebugID,
		Usage:    res.Usage,
		Safety:   res.Safety,
		Model:    res.Model,
		Provider: res.Provider,
		Thinking: res.Thinking,
		State:    res.State,
		History:  res.History,
	}
}

func (r askRequest) validate() error {
	var errs []error
	for i, m := range r.History {
		if err := m.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("history[%d]: %w", i, err))
		}
	}
	if r.Preset != nil {
		if err := r.Preset.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("preset: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r askRequest) options() []parley.AskOption {
	options := []parley.AskOption{
		parley.Debug(r.Debug),
		parley.Reset(r.Reset),
		parley.History(r.History),
	}
	if r.Preset != nil {
		options = append(options, parley.PresetOverride(*r.Preset))
	}
	return options
}

func wantsStream(c echo.Context, req askRequest) bool {
	return req.Stream || strings.Contains(c.Request().Header.Get(echo.HeaderAccept), "text/event-stream")
}

func (s *Server) handleAsk(c echo.Context) error {
	var req askRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error"}
	}

	if wantsStream(c, req) {
		return s.streamAsk(c, req)
	}

	res, err := s.assistant.Ask(c.Request().Context(), req.Message, req.options()...)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, newAskResponse(res))
}

func (s *Server) streamAsk(c echo.Context, req askRequest) error {
	ctx := c.Request().Context()
	w := c.Response()

	header := w.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set(echo.HeaderCacheControl, "no-cache")
	header.Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, payload any) {
		if err := writeSSEEvent(w, event, payload); err != nil {
			s.logger.WarnContext(ctx, "failed to write event", slogx.Error(err))
			return
		}
		w.Flush()
	}

	options := append(req.options(),
		parley.OnStatus(func(status string, state parley.State) {
			send("status", statusEvent{Status: status, State: state})
		}),
		parley.OnToken(func(text string) {
			send("token", tokenEvent{Text: text})
		}),
	)

	res, err := s.assistant.Ask(ctx, req.Message, options...)
	if err != nil {
		send("error", errorPayload(toHTTPError(err)))
		return nil
	}
	send("result", newAskResponse(res))
	return nil
}

func (s *Server) handleTrace(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuidx.Parse(id); err != nil {
		return requestError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid debug id %q", id), Type: "invalid_request_error"}
	}
	rec, err := s.traces.Load(id)
	if errors.Is(err, trace.ErrNotFound) {
		return requestError{Status: http.StatusNotFound, Message: err.Error(), Type: "not_found_error"}
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{Status: http.StatusBadRequest, Message: "request body is required", Type: "invalid_request_error"}
		}
		return requestError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid JSON payload: %v", err), Type: "invalid_request_error"}
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return requestError{Status: http.StatusBadRequest, Message: "request body must contain a single JSON object", Type: "invalid_request_error"}
	}
	return nil
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorPayload(e requestError) errorBody {
	var payload errorBody
	payload.Error.Message = e.Message
	payload.Error.Type = e.Type
	return payload
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = c.JSON(reqErr.Status, errorPayload(reqErr))
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = c.JSON(he.Code, errorPayload(requestError{Message: fmt.Sprint(he.Message), Type: "invalid_request_error"}))
		return
	}

	s.logger.ErrorContext(c.Request().Context(), "unhandled error", slogx.Error(err))
	_ = c.JSON(http.StatusInternalServerError, errorPayload(requestError{Message: "internal server error", Type: "server_error"}))
}

// toHTTPError maps exchange failures to a status code.
func toHTTPError(err error) requestError {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var (
		toolErr      *parley.ToolError
		transportErr *provider.TransportError
	)
	switch {
	case errors.Is(err, parley.ErrEmptyMessage), errors.Is(err, config.ErrInvalid):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error"}
	case errors.Is(err, provider.ErrNoProvider):
		return requestError{Status: http.StatusServiceUnavailable, Message: err.Error(), Type: "provider_unavailable"}
	case errors.As(err, &toolErr):
		return requestError{Status: http.StatusInternalServerError, Message: err.Error(), Type: "tool_error"}
	case errors.As(err, &transportErr):
		return requestError{Status: http.StatusBadGateway, Message: err.Error(), Type: "upstream_error"}
	default:
		return requestError{Status: http.StatusInternalServerError, Message: err.Error(), Type: "server_error"}
	}
}
