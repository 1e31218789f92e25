package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/conflux/pkg/chat"
	"github.com/harun/conflux/pkg/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChat struct {
	mu       sync.Mutex
	events   []events.Event
	response *chat.Response
	err      error
	requests []chat.Request
	block    chan struct{}
}

func (c *stubChat) Stream(ctx context.Context, req chat.Request) <-chan events.Event {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	ch := make(chan events.Event, len(c.events))
	for _, ev := range c.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func (c *stubChat) Process(ctx context.Context, req chat.Request) (*chat.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.block != nil {
		<-c.block
	}
	return c.response, c.err
}

func turnEvents() []events.Event {
	return []events.Event{
		events.Planning("Analyzing your request..."),
		{Type: events.TypePlan, Data: map[string]interface{}{"tasks": []interface{}{}, "total": 0}},
		events.Complete("done", nil, 0, 0, 0),
	}
}

func newTestServer(t *testing.T, c ChatService, rpm, concurrent int) *httptest.Server {
	srv, err := NewServer(Config{
		Port:              8000,
		Chat:              c,
		RequestsPerMinute: rpm,
		MaxConcurrent:     concurrent,
		Logger:            zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestNewServer(t *testing.T) {
	t.Run("should validate the port", func(t *testing.T) {
		_, err := NewServer(Config{Port: 0, Chat: &stubChat{}})
		assert.Error(t, err)
	})

	t.Run("should require a chat service", func(t *testing.T) {
		_, err := NewServer(Config{Port: 8000})
		assert.EqualError(t, err, "chat service is required")
	})
}

func TestChatStream(t *testing.T) {
	t.Run("should write one JSON line per event", func(t *testing.T) {
		c := &stubChat{events: turnEvents()}
		ts := newTestServer(t, c, 0, 0)

		resp := post(t, ts.URL+"/api/chat/stream", `{"user_id":"u1","message":"hi"}`)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, ContentTypeNDJSON, resp.Header.Get("Content-Type"))
		assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))

		var types []string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var line map[string]interface{}
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
			types = append(types, line["event_type"].(string))
			assert.Contains(t, line, "data")
		}
		assert.Equal(t, []string{"planning", "plan", "complete"}, types)
	})

	t.Run("should reject malformed requests", func(t *testing.T) {
		ts := newTestServer(t, &stubChat{}, 0, 0)

		resp := post(t, ts.URL+"/api/chat/stream", `{"user_id":"u1"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should keep a caller trace id", func(t *testing.T) {
		ts := newTestServer(t, &stubChat{events: turnEvents()}, 0, 0)

		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/chat/stream", strings.NewReader(`{"user_id":"u1","message":"hi"}`))
		require.NoError(t, err)
		req.Header.Set("X-Trace-Id", "trace-123")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "trace-123", resp.Header.Get("X-Trace-Id"))
	})
}

func TestChat(t *testing.T) {
	t.Run("should return the chat response", func(t *testing.T) {
		c := &stubChat{response: &chat.Response{
			Message:        "Posted.",
			ActionsTaken:   []events.ActionResult{{Service: "slack", Action: "slack_send_message", Success: true, Result: "ok"}},
			ConversationID: "conv-1",
		}}
		ts := newTestServer(t, c, 0, 0)

		resp := post(t, ts.URL+"/api/chat", `{"user_id":"u1","conversation_id":"conv-1","message":"hi"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Posted.", body["message"])
		assert.Len(t, body["actions_taken"], 1)

		c.mu.Lock()
		defer c.mu.Unlock()
		require.Len(t, c.requests, 1)
		assert.Equal(t, "conv-1", c.requests[0].ConversationID)
	})

	t.Run("should map configuration errors to 400", func(t *testing.T) {
		ts := newTestServer(t, &stubChat{err: chat.ErrNoTools}, 0, 0)

		resp := post(t, ts.URL+"/api/chat", `{"user_id":"u1","message":"hi"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body errorBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, chat.ErrNoTools.Message, body.Detail)
	})

	t.Run("should map other errors to 500", func(t *testing.T) {
		ts := newTestServer(t, &stubChat{err: errors.New("database is locked")}, 0, 0)

		resp := post(t, ts.URL+"/api/chat", `{"user_id":"u1","message":"hi"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestRateLimiting(t *testing.T) {
	t.Run("should reject requests over the per-minute limit", func(t *testing.T) {
		ts := newTestServer(t, &stubChat{response: &chat.Response{}}, 2, 10)

		for i := 0; i < 2; i++ {
			resp := post(t, ts.URL+"/api/chat", `{"user_id":"u1","message":"hi"}`)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}

		resp := post(t, ts.URL+"/api/chat", `{"user_id":"u1","message":"hi"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		var body errorBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, ReasonRateLimited, body.Detail)
	})

	t.Run("should reject requests over the concurrency limit", func(t *testing.T) {
		c := &stubChat{response: &chat.Response{}, block: make(chan struct{})}
		ts := newTestServer(t, c, 100, 1)

		done := make(chan int, 1)
		go func() {
			resp := post(t, ts.URL+"/api/chat", `{"user_id":"u1","message":"hi"}`)
			resp.Body.Close()
			done <- resp.StatusCode
		}()

		require.Eventually(t, func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return len(c.requests) == 1
		}, time.Second, time.Millisecond)

		resp := post(t, ts.URL+"/api/chat", `{"user_id":"u1","message":"hi"}`)
		resp.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		close(c.block)
		assert.Equal(t, http.StatusOK, <-done)
	})

	t.Run("should not limit health checks", func(t *testing.T) {
		ts := newTestServer(t, &stubChat{}, 1, 1)
		for i := 0; i < 3; i++ {
			resp, err := http.Get(ts.URL + "/healthz")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
	})
}

func TestClientRateLimiter(t *testing.T) {
	t.Run("should free the window after a minute", func(t *testing.T) {
		now := time.Now()
		limiter := NewClientRateLimiter(1, 5)
		limiter.now = func() time.Time { return now }

		ok, _ := limiter.Acquire()
		require.True(t, ok)
		limiter.Release()

		ok, reason := limiter.Acquire()
		assert.False(t, ok)
		assert.Equal(t, ReasonRateLimited, reason)

		now = now.Add(rateWindow + time.Second)
		ok, _ = limiter.Acquire()
		assert.True(t, ok)

		requests, concurrent := limiter.Stats()
		assert.Equal(t, 1, requests)
		assert.Equal(t, 1, concurrent)
	})

	t.Run("should apply defaults", func(t *testing.T) {
		limiter := NewClientRateLimiter(0, 0)
		assert.Equal(t, defaultRequestsPerMinute, limiter.requestsPerMinute)
		assert.Equal(t, defaultMaxConcurrent, limiter.maxConcurrent)
	})
}

func TestClientIP(t *testing.T) {
	t.Run("should prefer the first forwarded hop", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		assert.Equal(t, "10.0.0.1", clientIP(r))
	})

	t.Run("should fall back to the remote host", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.7:5123"
		assert.Equal(t, "192.0.2.7", clientIP(r))
	})
}

func TestChatWebSocket(t *testing.T) {
	t.Run("should send one frame per event then close", func(t *testing.T) {
		c := &stubChat{events: turnEvents()}
		ts := newTestServer(t, c, 0, 0)

		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(chat.Request{UserID: "u1", Message: "hi"}))

		var types []string
		for {
			var ev map[string]interface{}
			if err := conn.ReadJSON(&ev); err != nil {
				break
			}
			types = append(types, ev["event_type"].(string))
		}
		assert.Equal(t, []string{"planning", "plan", "complete"}, types)
	})
}

func TestSupportedCommands(t *testing.T) {
	ts := newTestServer(t, &stubChat{}, 0, 0)

	resp, err := http.Get(ts.URL + "/api/supported-commands")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "commands")
	assert.Contains(t, body["services"], "slack")
}
