package router

import (
	"log/slog"
	"sync"

	"github.com/dinehub/realtime/internal/connection"
	"github.com/dinehub/realtime/internal/model"
)

// MessageHandler receives validated chat messages.
type MessageHandler func(model.Message)

// NotificationHandler receives validated notifications.
type NotificationHandler func(model.Notification)

// Stats contains runtime routing statistics.
type Stats struct {
	Received     int64
	Routed       int64
	ParseErrors  int64
	ActiveRoutes int
}

// Router demultiplexes inbound payloads to registered handlers. Handlers
// receive payloads already validated at the parse boundary; a malformed
// payload is logged and dropped without reaching any handler.
//
// Route lifetimes are bounded by their connection handle: when the manager
// tears an endpoint down, every route on it is invalidated.
type Router struct {
	manager *connection.Manager
	logger  *slog.Logger

	mu     sync.Mutex
	routes map[*Route]struct{}

	received    int64
	routed      int64
	parseErrors int64
}

// Route is the cancellation token returned by every registration.
type Route struct {
	endpoint connection.EndpointID
	topic    string
	sub      *connection.Subscription
	router   *Router
}

// Topic returns the routed topic.
func (rt *Route) Topic() string { return rt.topic }

// Cancel unsubscribes the handler. Safe to call more than once and after
// the endpoint disconnected.
func (rt *Route) Cancel() {
	rt.router.remove(rt)
	rt.sub.Unsubscribe()
}

// NewRouter creates a router bound to a connection manager. The router
// registers itself for disconnect teardown.
func NewRouter(manager *connection.Manager, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		manager: manager,
		logger:  logger,
		routes:  make(map[*Route]struct{}),
	}
	manager.OnDisconnect(r.teardown)
	return r
}

// RoomMessages routes the per-room topic for a room key to a message
// handler.
func (r *Router) RoomMessages(endpoint connection.EndpointID, roomKey string, h MessageHandler) (*Route, error) {
	topic := model.RoomTopic(roomKey)
	return r.route(endpoint, topic, func(topic string, payload []byte) {
		switch ev := model.ParsePayload(topic, payload).(type) {
		case model.MessageEvent:
			r.count(&r.routed)
			h(ev.Message)
		case model.MalformedEvent:
			r.drop(ev)
		}
	})
}

// Notifications routes one of the notification or alert topics to a
// notification handler.
func (r *Router) Notifications(endpoint connection.EndpointID, topic string, h NotificationHandler) (*Route, error) {
	return r.route(endpoint, topic, func(topic string, payload []byte) {
		switch ev := model.ParsePayload(topic, payload).(type) {
		case model.NotificationEvent:
			r.count(&r.routed)
			h(ev.Notification)
		case model.MalformedEvent:
			r.drop(ev)
		}
	})
}

// Stats returns current routing statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Received:     r.received,
		Routed:       r.routed,
		ParseErrors:  r.parseErrors,
		ActiveRoutes: len(r.routes),
	}
}

func (r *Router) route(endpoint connection.EndpointID, topic string, raw connection.RawHandler) (*Route, error) {
	client, ok := r.manager.Client(endpoint)
	if !ok {
		return nil, connection.ErrNotConnected
	}

	sub, err := client.Subscribe(topic, func(topic string, payload []byte) {
		r.count(&r.received)
		raw(topic, payload)
	})
	if err != nil {
		return nil, err
	}

	rt := &Route{endpoint: endpoint, topic: topic, sub: sub, router: r}
	r.mu.Lock()
	r.routes[rt] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("route registered",
		"endpoint", string(endpoint),
		"topic", topic,
	)
	return rt, nil
}

// teardown invalidates all routes for a disconnected endpoint. The client
// already discarded its subscriptions; only the bookkeeping remains.
func (r *Router) teardown(id connection.EndpointID) {
	r.mu.Lock()
	removed := 0
	for rt := range r.routes {
		if rt.endpoint == id {
			delete(r.routes, rt)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Debug("routes invalidated",
			"endpoint", string(id),
			"count", removed,
		)
	}
}

func (r *Router) remove(rt *Route) {
	r.mu.Lock()
	delete(r.routes, rt)
	r.mu.Unlock()
}

func (r *Router) drop(ev model.MalformedEvent) {
	r.count(&r.parseErrors)
	r.logger.Warn("malformed payload dropped",
		"topic", ev.Topic,
		"error", ev.Err,
	)
}

func (r *Router) count(field *int64) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}
