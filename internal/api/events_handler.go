package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/events"
	"github.com/phrazzld/sketchpad-api/internal/platform/logger"
)

const (
	defaultPingInterval = 30 * time.Second
	writeTimeout        = 10 * time.Second
	maxClientFrameBytes = 4096
)

// EventsHandler streams the caller's job events over a websocket. Each text
// frame is one JSON-encoded events.JobEvent.
type EventsHandler struct {
	hub          *events.Hub
	logger       *slog.Logger
	pingInterval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewEventsHandler creates a handler that subscribes to hub. A zero
// pingInterval uses 30s.
func NewEventsHandler(hub *events.Hub, pingInterval time.Duration, logger *slog.Logger) *EventsHandler {
	if hub == nil || logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("hub and logger are required for EventsHandler")
	}
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &EventsHandler{
		hub:          hub,
		logger:       logger.With(slog.String("component", "events_handler")),
		pingInterval: pingInterval,
		stop:         make(chan struct{}),
	}
}

// Close ends every open stream. Hijacked connections are not tracked by
// http.Server.Shutdown, so the server calls this on shutdown.
func (h *EventsHandler) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// ServeHTTP handles GET /jobs/events.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID, ok := getOwnerIDFromContext(r)
	if !ok {
		log.Warn("owner ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		// UpgradeHTTP has already answered the request.
		log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sub := h.hub.Subscribe(ownerID)
	defer sub.Close()

	log.Info("event stream opened")
	defer log.Info("event stream closed")

	// Only this goroutine writes to conn; the reader hands pings over.
	var src io.Reader = conn
	if rw != nil {
		src = rw.Reader
	}
	gone := make(chan struct{})
	pings := make(chan []byte, 1)
	go func() {
		defer close(gone)
		readClientFrames(src, pings)
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case event, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeEvent(conn, event); err != nil {
				log.Debug("event write failed", "error", err, "job_id", event.JobID)
				return
			}
		case <-ping.C:
			if err := writeFrame(conn, ws.OpPing, nil); err != nil {
				return
			}
		case payload := <-pings:
			if err := writeFrame(conn, ws.OpPong, payload); err != nil {
				return
			}
		case <-gone:
			_ = writeFrame(conn, ws.OpClose, nil)
			return
		case <-h.stop:
			_ = writeFrame(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, "server shutting down"))
			return
		}
	}
}

// readClientFrames consumes client frames until the connection closes or
// the client sends a close frame. Ping payloads are passed to pings.
func readClientFrames(src io.Reader, pings chan<- []byte) {
	for {
		header, err := ws.ReadHeader(src)
		if err != nil || header.Length > maxClientFrameBytes {
			return
		}
		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(src, payload); err != nil {
			return
		}
		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			select {
			case pings <- payload:
			default:
			}
		}
	}
}

func writeEvent(conn net.Conn, event *events.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return writeFrame(conn, ws.OpText, data)
}

func writeFrame(conn net.Conn, op ws.OpCode, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return wsutil.WriteServerMessage(conn, op, payload)
}
