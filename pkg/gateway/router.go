package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/harun/conflux/internal/tracing"
	"github.com/harun/conflux/pkg/chat"
	"github.com/harun/conflux/pkg/coordinator"
	"github.com/harun/conflux/pkg/events"
	"github.com/harun/conflux/pkg/integrations"
)

// ContentTypeNDJSON is the media type of the event stream
const ContentTypeNDJSON = "application/x-ndjson"

// errorBody is the JSON body of a failed request
type errorBody struct {
	Detail string `json:"detail"`
}

// traced gives every request a trace id, taken from X-Trace-Id when set
func (s *Server) traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = tracing.NewTraceID()
		}
		ctx := tracing.WithTraceID(r.Context(), traceID)
		ctx = withClientIP(ctx, clientIP(r))

		w.Header().Set("X-Trace-Id", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limited applies the per-IP rate limits and tracks in-flight turns
func (s *Server) limited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.isShuttingDown() {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "server is shutting down"})
			return
		}

		ip := clientIPFromContext(r.Context())
		limiter := s.limiters.get(ip)
		if ok, reason := limiter.Acquire(); !ok {
			logger := tracing.LoggerFromContext(r.Context(), s.logger)
			logger.Warn().
				Str("ip", ip).
				Str("reason", reason).
				Msg("Request rejected by rate limiter")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Detail: reason})
			return
		}
		defer limiter.Release()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		next(w, r)
	})
}

func decodeRequest(r io.Reader) (chat.Request, error) {
	var req chat.Request
	dec := json.NewDecoder(io.LimitReader(r, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if req.UserID == "" {
		return req, errors.New("user_id is required")
	}
	if req.Message == "" {
		return req, errors.New("message is required")
	}
	return req, nil
}

// handleChatStream writes the turn's events as NDJSON
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
		return
	}

	ctx := r.Context()
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Str("userId", req.UserID).Msg("Streaming chat request")

	w.Header().Set("Content-Type", ContentTypeNDJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writer := events.NewNDJSONWriter(w)
	for ev := range s.chat.Stream(ctx, req) {
		if err := writer.Emit(ctx, ev); err != nil {
			// Keep draining so the turn is not blocked on a gone client
			logger.Debug().Err(err).Msg("Client stopped reading event stream")
		}
	}
}

// handleChat answers with the final response only
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
		return
	}

	resp, err := s.chat.Process(r.Context(), req)
	switch {
	case chat.IsConfigError(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
	case err != nil:
		logger := tracing.LoggerFromContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("Chat request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: coordinator.ErrorMessage(err)})
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleChatWS reads one request and writes one text frame per event
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	_, data, err := conn.ReadMessage()
	if err != nil {
		logger.Debug().Err(err).Msg("WebSocket closed before request")
		return
	}

	var req chat.Request
	if err := json.Unmarshal(data, &req); err != nil {
		_ = conn.WriteJSON(events.Error(fmt.Sprintf("invalid request: %v", err)))
		return
	}

	for ev := range s.chat.Stream(ctx, req) {
		if err := conn.WriteJSON(ev); err != nil {
			logger.Debug().Err(err).Msg("Failed to write WebSocket event")
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) handleSupportedCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"commands": integrations.SupportedCommands(),
		"services": integrations.SupportedServices(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
