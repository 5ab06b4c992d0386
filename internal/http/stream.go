package httpx

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/martijnd/featherlog/internal/broadcast"
	"github.com/martijnd/featherlog/internal/service/logs"
)

// sseWriter streams Server-Sent Events over an HTTP response writer.
type sseWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	log     *slog.Logger
	closed  bool
}

func newSSEWriter(writer io.Writer, flusher http.Flusher, logger *slog.Logger) *sseWriter {
	return &sseWriter{writer: writer, flusher: flusher, log: logger}
}

// Send emits a data event to the SSE stream.
func (c *sseWriter) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := fmt.Fprintf(c.writer, "data: %s\n\n", payload); err != nil {
		c.closed = true
		c.log.Warn("sse send failed", "error", err)
		return err
	}
	c.flusher.Flush()
	return nil
}

// Heartbeat emits a comment frame to keep the connection alive through
// proxies that reap idle streams.
func (c *sseWriter) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := fmt.Fprint(c.writer, ": ping\n\n"); err != nil {
		c.closed = true
		return err
	}
	c.flusher.Flush()
	return nil
}

// handleLogStreamSSE subscribes the connection to the broadcaster and pushes
// every event published afterwards. The subscription is released the moment
// the request context is cancelled, so a disconnected viewer never lingers.
func (r *Router) handleLogStreamSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := r.logs.Hub().Subscribe()
	defer sub.Cancel()
	r.trackSubscriber(1)
	defer r.trackSubscriber(-1)

	client := newSSEWriter(w, flusher, r.logger)
	if err := client.Send(logs.ConnectedFrame); err != nil {
		return
	}

	heartbeat := time.NewTicker(r.heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			frame, err := logs.MarshalStreamFrame(event)
			if err != nil {
				r.logger.Warn("failed to marshal stream frame", "error", err, "log_id", event.ID)
				continue
			}
			if err := client.Send(frame); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

// handleLogStreamWS serves the same event stream over a WebSocket for
// clients that prefer it to EventSource. Frames are identical to SSE data.
func (r *Router) handleLogStreamWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := r.logs.Hub().Subscribe()
	r.trackSubscriber(1)

	// Reader goroutine: its only job is to detect the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go r.pumpWebsocket(conn, sub, closed)
}

func (r *Router) pumpWebsocket(conn *websocket.Conn, sub *broadcast.Subscription, closed <-chan struct{}) {
	defer func() {
		sub.Cancel()
		r.trackSubscriber(-1)
		_ = conn.Close()
	}()

	if err := conn.WriteMessage(websocket.TextMessage, logs.ConnectedFrame); err != nil {
		return
	}

	heartbeat := time.NewTicker(r.heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			frame, err := logs.MarshalStreamFrame(event)
			if err != nil {
				r.logger.Warn("failed to marshal stream frame", "error", err, "log_id", event.ID)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-heartbeat.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (r *Router) trackSubscriber(delta float64) {
	if r.streamSubscribers != nil {
		r.streamSubscribers.Add(delta)
	}
}
