// internal/events/hub.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// Subprotocol clients may request when subscribing to /ws/ratings.
	Subprotocol = "ratings"

	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
	pingInterval     = 30 * time.Second
)

// StatusSlowConsumer closes a subscriber that fell behind the event stream.
const StatusSlowConsumer websocket.StatusCode = 3008

// Hub fans rating events out to websocket subscribers. A subscriber whose
// buffer is full is disconnected rather than blocking Publish.
type Hub struct {
	logger *logrus.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	out    chan []byte
	once   sync.Once
	status websocket.StatusCode
	reason string
}

// close is safe to call more than once; the first status wins.
func (s *subscriber) close(status websocket.StatusCode, reason string) {
	s.once.Do(func() {
		s.status, s.reason = status, reason
		close(s.out)
	})
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish never blocks on a subscriber.
func (h *Hub) Publish(_ context.Context, ev models.RatingEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal rating event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.out <- data:
		default:
			delete(h.subs, s)
			s.close(StatusSlowConsumer, "subscriber too slow")
			h.logger.WithField("seq", ev.Seq).Warn("dropping slow rating subscriber")
		}
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) subscribe() (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	s := &subscriber{out: make(chan []byte, subscriberBuffer)}
	h.subs[s] = struct{}{}
	return s, true
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
	s.close(websocket.StatusNormalClosure, "")
}

// ServeHTTP upgrades the request and streams events until the client leaves.
// Messages from the client are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	s, ok := h.subscribe()
	if !ok {
		c.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unsubscribe(s)

	fields := logrus.Fields{"remote": r.RemoteAddr, "path": r.URL.Path}
	h.logger.WithFields(fields).Info("WebSocket connected")

	ctx := c.CloseRead(r.Context())
	err = h.writePump(ctx, c, s)
	if err != nil {
		fields["error"] = err
	}
	h.logger.WithFields(fields).Info("WebSocket disconnected")
}

func (h *Hub) writePump(ctx context.Context, c *websocket.Conn, s *subscriber) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-s.out:
			if !ok {
				c.Close(s.status, s.reason)
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
