package stakingd

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"nftstake/core/events"
	"nftstake/observability/metrics"
)

const wsWriteTimeout = 10 * time.Second

// handleEventsWS streams staking events. Clients may resume with
// ?cursor=<sequence> to receive the retained backlog after that record and
// may narrow the stream with ?type=<prefix>.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		http.Error(w, "event stream disabled", http.StatusNotFound)
		return
	}
	var cursor uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	telemetry := metrics.API()
	telemetry.SubscriberDelta(1)
	defer telemetry.SubscriberDelta(-1)

	// Reads are only needed to observe the client closing the connection.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor uint64, filter string) error {
	backlog, updates, cancel := s.broadcaster.Subscribe(cursor, s.eventBuffer)
	defer cancel()

	for _, record := range backlog {
		if err := writeRecord(ctx, conn, record, filter); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeRecord(ctx, conn, record, filter); err != nil {
				return err
			}
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, record events.Record, filter string) error {
	if record.Event == nil || (filter != "" && !strings.HasPrefix(record.Event.Type, filter)) {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// eventCounter counts every event passing through the node emitter.
type eventCounter struct{}

func (eventCounter) Emit(evt events.Event) {
	metrics.API().RecordEvent(evt.EventType())
}
