package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gmarchetti/consultsim/internal/observability"
	"github.com/gmarchetti/consultsim/internal/protocol"
)

// watchHub fans run events out to websocket watchers. Broadcasts are
// fire-and-forget: a watcher that cannot keep up is dropped rather than
// allowed to stall the step path.
type watchHub struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
	metrics  *observability.Metrics
}

type watcher struct {
	conn *websocket.Conn
	send chan any
	once sync.Once
}

func newWatchHub(metrics *observability.Metrics) *watchHub {
	return &watchHub{
		watchers: make(map[string]map[*watcher]struct{}),
		metrics:  metrics,
	}
}

func (h *watchHub) add(runID string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[runID]
	if !ok {
		set = make(map[*watcher]struct{})
		h.watchers[runID] = set
	}
	set[w] = struct{}{}
}

func (h *watchHub) remove(runID string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.watchers[runID]
	delete(set, w)
	if len(set) == 0 {
		delete(h.watchers, runID)
	}
	w.close()
}

func (h *watchHub) Broadcast(runID string, msg any) {
	h.mu.Lock()
	var stale []*watcher
	for w := range h.watchers[runID] {
		select {
		case w.send <- msg:
			if t, ok := messageTypeOf(msg); ok {
				h.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
			}
		default:
			stale = append(stale, w)
		}
	}
	h.mu.Unlock()

	for _, w := range stale {
		h.remove(runID, w)
	}
}

// WatcherCount reports how many sockets are attached to a run.
func (h *watchHub) WatcherCount(runID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[runID])
}

func (w *watcher) close() {
	w.once.Do(func() {
		close(w.send)
		_ = w.conn.Close()
	})
}

// handleWatch upgrades the request and streams run events until the client
// goes away. Watchers are read-mostly; the only accepted inbound payload is
// a keepalive ping.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	target, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	wt := &watcher{conn: conn, send: make(chan any, 64)}
	s.hub.add(target.ID, wt)
	defer s.hub.remove(target.ID, wt)

	// Give a late joiner the current picture before any live events.
	state := target.Engine.Snapshot()
	wt.send <- protocol.NewPhaseChanged(target.ID, string(state.Phase), state.Reason)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range wt.send {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			continue
		}
		if ping, ok := parsed.(protocol.ClientPing); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(ping.Type)).Inc()
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		}
	}

	s.hub.remove(target.ID, wt)
	<-writerDone
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.TurnAppended:
		return m.Type, true
	case protocol.PhaseChanged:
		return m.Type, true
	case protocol.AudioReady:
		return m.Type, true
	case protocol.RunError:
		return m.Type, true
	case protocol.ClientPing:
		return m.Type, true
	default:
		return "", false
	}
}
