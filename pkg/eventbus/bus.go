package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/harun/skillhost/internal/observability"
	"github.com/rs/zerolog"
)

// Mode selects what Publish does when a handler fails
type Mode int

const (
	// ModeSilent logs failures and keeps delivering
	ModeSilent Mode = iota
	// ModeFailFast returns the first failure and skips the remaining handlers
	ModeFailFast
	// ModeCollect delivers to every handler and keeps the failures for Errors
	ModeCollect
)

func (m Mode) String() string {
	switch m {
	case ModeFailFast:
		return "fail-fast"
	case ModeCollect:
		return "collect"
	default:
		return "silent"
	}
}

// ParseMode parses silent, fail-fast or collect. Empty means silent.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "silent":
		return ModeSilent, nil
	case "fail-fast", "failfast", "fail_fast":
		return ModeFailFast, nil
	case "collect":
		return ModeCollect, nil
	default:
		return ModeSilent, fmt.Errorf("unknown event bus mode %q", s)
	}
}

// Handler receives a published payload
type Handler func(ctx context.Context, payload any) error

// Subscription identifies one registered handler
type Subscription struct {
	ID    string
	Topic string
	Owner string
}

// Valid reports whether the subscription was accepted by the bus
func (s Subscription) Valid() bool {
	return s.ID != ""
}

type subscriber struct {
	sub     Subscription
	handler Handler
}

// Option configures a Bus
type Option func(*Bus)

// WithMode sets the failure mode
func WithMode(mode Mode) Option {
	return func(b *Bus) {
		b.mode = mode
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// Bus is a synchronous in-process publish/subscribe channel. Handlers for a
// topic run on the publishing goroutine in registration order.
type Bus struct {
	mode   Mode
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string][]subscriber

	errMu      sync.Mutex
	lastErrors []error
}

// New creates a bus
func New(opts ...Option) *Bus {
	b := &Bus{
		mode:        ModeSilent,
		logger:      zerolog.Nop(),
		subscribers: make(map[string][]subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().Str("component", "eventbus").Str("mode", b.mode.String()).Logger()
	return b
}

// Mode returns the failure mode chosen at construction
func (b *Bus) Mode() Mode {
	return b.mode
}

// Subscribe appends handler to topic's subscribers. Topics match exactly,
// whitespace included. The same handler subscribed twice is invoked twice.
func (b *Bus) Subscribe(topic string, handler Handler) Subscription {
	return b.subscribe("", topic, handler)
}

func (b *Bus) subscribe(owner, topic string, handler Handler) Subscription {
	if topic == "" || handler == nil {
		err := ErrInvalidTopic
		if handler == nil {
			err = ErrNilHandler
		}
		b.logger.Error().Err(err).Str("topic", topic).Str("owner", owner).Msg("Rejected subscription")
		return Subscription{}
	}

	sub := Subscription{
		ID:    uuid.NewString(),
		Topic: topic,
		Owner: owner,
	}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], subscriber{sub: sub, handler: handler})
	b.mu.Unlock()

	b.logger.Debug().Str("topic", topic).Str("owner", owner).Str("id", sub.ID).Msg("Subscribed")
	return sub
}

// Unsubscribe removes a subscription. It reports whether it was present.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	if !sub.Valid() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subscribers[sub.Topic]
	for i, s := range current {
		if s.sub.ID != sub.ID {
			continue
		}
		// copy so in-flight snapshots keep their own backing array
		next := make([]subscriber, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		b.setTopic(sub.Topic, next)
		return true
	}
	return false
}

// UnsubscribeOwner removes every subscription made through owner's scope
func (b *Bus) UnsubscribeOwner(owner string) int {
	if owner == "" {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for topic, current := range b.subscribers {
		next := make([]subscriber, 0, len(current))
		for _, s := range current {
			if s.sub.Owner == owner {
				removed++
				continue
			}
			next = append(next, s)
		}
		b.setTopic(topic, next)
	}
	return removed
}

// setTopic must be called with mu held
func (b *Bus) setTopic(topic string, subs []subscriber) {
	if len(subs) == 0 {
		delete(b.subscribers, topic)
		return
	}
	b.subscribers[topic] = subs
}

// Publish delivers payload to every current subscriber of topic. Only
// ModeFailFast returns a handler failure.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	b.mu.RLock()
	snapshot := append([]subscriber(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	observability.RecordPublish(topic, len(snapshot))

	var collected []error
	for _, s := range snapshot {
		err := b.invoke(ctx, s, payload)
		if err == nil {
			continue
		}

		herr := &HandlerError{
			Topic:          topic,
			SubscriptionID: s.sub.ID,
			Owner:          s.sub.Owner,
			Err:            err,
		}
		observability.RecordHandlerError(topic, b.mode.String())

		switch b.mode {
		case ModeFailFast:
			return herr
		case ModeCollect:
			collected = append(collected, herr)
		default:
			b.logger.Warn().Err(err).
				Str("topic", topic).
				Str("subscription", s.sub.ID).
				Str("owner", s.sub.Owner).
				Msg("Event handler failed")
		}
	}

	if b.mode == ModeCollect {
		b.errMu.Lock()
		b.lastErrors = collected
		b.errMu.Unlock()
	}

	return nil
}

func (b *Bus) invoke(ctx context.Context, s subscriber, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return s.handler(ctx, payload)
}

// Errors returns the failures gathered by the most recent Publish in
// ModeCollect. It is empty in the other modes.
func (b *Bus) Errors() []error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return append([]error(nil), b.lastErrors...)
}

// SubscriberCount returns the number of handlers registered for topic
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Topics returns every topic with at least one subscriber, sorted
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.subscribers))
	for topic := range b.subscribers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Clear drops every subscription and collected error
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subscribers = make(map[string][]subscriber)
	b.mu.Unlock()

	b.errMu.Lock()
	b.lastErrors = nil
	b.errMu.Unlock()
}

// Scope returns a view of the bus whose subscriptions are tagged with owner
func (b *Bus) Scope(owner string) *Scope {
	return &Scope{bus: b, owner: owner}
}

// Scope is the bus as seen by one skill
type Scope struct {
	bus   *Bus
	owner string
}

// Owner returns the owner tag
func (s *Scope) Owner() string {
	return s.owner
}

// Subscribe subscribes handler under the scope's owner
func (s *Scope) Subscribe(topic string, handler Handler) Subscription {
	return s.bus.subscribe(s.owner, topic, handler)
}

// Unsubscribe removes a subscription
func (s *Scope) Unsubscribe(sub Subscription) bool {
	return s.bus.Unsubscribe(sub)
}

// Publish publishes on the underlying bus
func (s *Scope) Publish(ctx context.Context, topic string, payload any) error {
	return s.bus.Publish(ctx, topic, payload)
}

// SubscriberCount returns the number of handlers registered for topic
func (s *Scope) SubscriberCount(topic string) int {
	return s.bus.SubscriberCount(topic)
}

// Topics returns every topic with at least one subscriber
func (s *Scope) Topics() []string {
	return s.bus.Topics()
}
