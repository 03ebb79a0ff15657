// Package session is the in-memory state machine behind the chat rooms. A
// Coordinator owns room membership, message history, rate limiting and
// presence, and turns inbound events into outbound deliveries.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/history"
	"github.com/nfrund/chatroom/internal/metrics"
	"github.com/nfrund/chatroom/internal/presence"
	"github.com/nfrund/chatroom/internal/pubsub"
	"github.com/nfrund/chatroom/internal/ratelimit"
	"github.com/nfrund/chatroom/internal/room"
	"github.com/nfrund/chatroom/internal/scheduler"
)

// Connection is the coordinator's record of one live transport session.
type Connection struct {
	ID       string
	Username string
	// RoomKey is empty until the connection joins a room.
	RoomKey  string
	JoinedAt time.Time
}

func (c *Connection) joined() bool { return c.RoomKey != "" }

// Dispatcher hands deliveries to the transport. It is called with the
// coordinator lock held and must not block or call back into the coordinator.
type Dispatcher interface {
	Dispatch(d Delivery)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(d Delivery)

// Dispatch calls f(d).
func (f DispatcherFunc) Dispatch(d Delivery) { f(d) }

// SweepResult reports what one Tick did.
type SweepResult struct {
	EvictedRooms     []string
	StaleConnections []string
}

// Stats is a point-in-time count of coordinator state.
type Stats struct {
	Rooms       int
	Connections int
}

// Coordinator serializes every event under one lock so that a join and a
// concurrent disconnect on the same room can never interleave.
type Coordinator struct {
	mu sync.Mutex

	conns    map[string]*Connection
	rooms    *room.Registry
	history  *history.Store
	limiter  *ratelimit.Limiter
	presence *presence.Tracker
	tasks    *scheduler.Queue

	clock      func() time.Time
	newID      func() (string, error)
	dispatcher Dispatcher
	publisher  pubsub.Publisher
	metrics    *metrics.Recorder
	logger     *slog.Logger

	gracePeriod     time.Duration
	idleTimeout     time.Duration
	historyCapacity int
	rateMax         int
	rateWindow      time.Duration
}

// Option is a function that configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithIDGenerator replaces the UUIDv7 message id generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(c *Coordinator) {
		c.newID = gen
	}
}

// WithDispatcher sets where deliveries are sent once state has been committed.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) {
		c.dispatcher = d
	}
}

// WithPublisher sets the bus that lifecycle events are published on.
func WithPublisher(p pubsub.Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithGracePeriod sets how long an empty room is kept.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		c.gracePeriod = d
	}
}

// WithIdleTimeout sets how long a connection may stay silent.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.idleTimeout = d
	}
}

// WithHistoryCapacity sets how many messages each room keeps.
func WithHistoryCapacity(n int) Option {
	return func(c *Coordinator) {
		c.historyCapacity = n
	}
}

// WithRateLimit sets how many messages a connection may send per window.
func WithRateLimit(max int, window time.Duration) Option {
	return func(c *Coordinator) {
		c.rateMax = max
		c.rateWindow = window
	}
}

func newMessageID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewCoordinator creates a coordinator with empty state.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		conns:           make(map[string]*Connection),
		clock:           time.Now,
		newID:           newMessageID,
		logger:          slog.Default().With("component", "session"),
		gracePeriod:     room.DefaultGracePeriod,
		idleTimeout:     presence.DefaultIdleTimeout,
		historyCapacity: history.DefaultCapacity,
		rateMax:         ratelimit.DefaultMaxPerWindow,
		rateWindow:      ratelimit.DefaultWindow,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.tasks = scheduler.NewQueue()
	c.rooms = room.NewRegistry(c.tasks, c.gracePeriod)
	c.history = history.New(c.historyCapacity)
	c.limiter = ratelimit.New(ratelimit.WithMaxPerWindow(c.rateMax), ratelimit.WithWindow(c.rateWindow))
	c.presence = presence.NewTracker(presence.WithIdleTimeout(c.idleTimeout))
	return c
}

// Now returns the coordinator's current time.
func (c *Coordinator) Now() time.Time { return c.clock() }

// Connect registers a new live connection and starts tracking its activity.
func (c *Coordinator) Connect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.conns[connID]; !ok {
		c.conns[connID] = &Connection{ID: connID}
	}
	c.presence.Touch(connID, c.clock())
	c.updateGauges()
}

// Handle applies one inbound event from connID and returns the deliveries it
// produced. Deliveries are dispatched before the lock is released so the
// per-room delivery order matches the order events were applied in.
func (c *Coordinator) Handle(ctx context.Context, connID string, in Inbound) []Delivery {
	c.mu.Lock()
	out, events := c.apply(connID, in)
	c.dispatch(out)
	c.updateGauges()
	c.mu.Unlock()

	c.publish(ctx, events)
	return out
}

// Disconnect is shorthand for handling a disconnect event.
func (c *Coordinator) Disconnect(ctx context.Context, connID, reason string) []Delivery {
	in, _ := NewInbound(EventDisconnect, DisconnectRequest{Reason: reason})
	return c.Handle(ctx, connID, in)
}

// apply runs the handler for in and converts a failure into its deliveries.
// A panic is recovered and reported to connID as an internal error.
func (c *Coordinator) apply(connID string, in Inbound) (out []Delivery, events []busEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic while handling event",
				"event", in.Event,
				"connection_id", connID,
				"panic", r)
			c.metrics.HandlerFailed()
			out = []Delivery{errorDelivery(connID, domain.NewInternalError())}
			events = nil
		}
	}()

	res, err := c.route(connID, in, c.clock())
	if err != nil {
		return c.failure(connID, in.Event, err), nil
	}
	return res.deliveries, res.events
}

// Tick runs every room eviction due by now, re-validating that each room is
// still empty, then reports connections that have been idle for longer than
// the idle timeout on the bus.
func (c *Coordinator) Tick(ctx context.Context, now time.Time) SweepResult {
	c.mu.Lock()
	evicted := c.rooms.RunDue(now)
	events := make([]busEvent, 0, len(evicted))
	for _, key := range evicted {
		c.history.Evict(key)
		events = append(events, publishLater(TopicRoomEvicted, RoomEvent{Room: Fingerprint(key), Timestamp: now.UTC()}))
		c.logger.Info("Evicted empty room", "room", Fingerprint(key))
	}

	stale := c.presence.SweepStale(now, c.idleTimeout)
	for _, id := range stale {
		seen, _ := c.presence.LastSeen(id)
		events = append(events, publishLater(TopicConnectionStale, StaleConnectionEvent{
			ConnectionID: id,
			LastSeen:     seen.UTC(),
			Timestamp:    now.UTC(),
		}))
	}

	c.metrics.RoomsEvicted(len(evicted))
	c.metrics.StaleConnections(len(stale))
	c.updateGauges()
	c.mu.Unlock()

	if len(stale) > 0 {
		c.logger.Info("Idle sweep found stale connections", "count", len(stale))
	}
	c.publish(ctx, events)
	return SweepResult{EvictedRooms: evicted, StaleConnections: stale}
}

// NextDue returns when the earliest scheduled room eviction falls due.
func (c *Coordinator) NextDue() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks.Next()
	return task.Due, ok
}

// IsIdle reports whether connID is still silent past the idle timeout. The
// transport checks this before closing a connection named by the sweep.
func (c *Coordinator) IsIdle(connID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence.IsStale(connID, c.clock(), c.idleTimeout)
}

// Members returns the member list of roomKey.
func (c *Coordinator) Members(roomKey string) []domain.MemberView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms.Members(roomKey)
}

// History returns a copy of roomKey's message history.
func (c *Coordinator) History(roomKey string) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Get(roomKey)
}

// Stats returns current room and connection counts.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Rooms: c.rooms.Count(), Connections: len(c.conns)}
}

func (c *Coordinator) dispatch(out []Delivery) {
	if c.dispatcher == nil {
		return
	}
	for _, d := range out {
		if len(d.Recipients) == 0 {
			continue
		}
		c.dispatcher.Dispatch(d)
	}
}

func (c *Coordinator) publish(ctx context.Context, events []busEvent) {
	if c.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := ev(ctx, c.publisher); err != nil {
			c.logger.Error("Failed to publish session event", "error", err)
		}
	}
}

func (c *Coordinator) updateGauges() {
	c.metrics.SetRooms(c.rooms.Count())
	c.metrics.SetConnections(len(c.conns))
}
