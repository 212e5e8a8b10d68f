package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Bus is an in-process event bus. Publishing never blocks on subscribers:
// events are queued and fanned out by a single processor goroutine.
type Bus struct {
	config BusConfig
	logger hclog.Logger

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	recent        []Event
	running       bool

	eventChannel chan Event
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewBus creates a new event bus instance
func NewBus(config BusConfig, logger hclog.Logger) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig().BufferSize
	}
	if config.RecentEvents <= 0 {
		config.RecentEvents = DefaultBusConfig().RecentEvents
	}
	return &Bus{
		config:        config,
		logger:        logger.Named("events"),
		subscriptions: make(map[string]*Subscription),
		recent:        make([]Event, 0, config.RecentEvents),
	}
}

// Start starts the event processor
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("event bus is already running")
	}
	b.running = true
	b.eventChannel = make(chan Event, b.config.BufferSize)
	b.stopCh = make(chan struct{})

	b.wg.Add(1)
	go b.processEvents(b.eventChannel, b.stopCh)

	b.logger.Info("event bus started", "buffer_size", b.config.BufferSize)
	return nil
}

// Stop drains queued events and stops the processor.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus stop timed out")
		return ctx.Err()
	}
}

// Publish queues an event, waiting for buffer space until ctx is done.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	event, err := b.prepare(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return fmt.Errorf("event bus is not running")
	}

	select {
	case b.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAsync queues an event without blocking. A full buffer drops it.
func (b *Bus) PublishAsync(event Event) error {
	event, err := b.prepare(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return fmt.Errorf("event bus is not running")
	}

	select {
	case b.eventChannel <- event:
		return nil
	default:
		b.logger.Warn("event channel full, dropping event", "event_type", event.Type, "event_id", event.ID)
		return fmt.Errorf("event channel full")
	}
}

// Subscribe registers handler for events matching filter.
func (b *Bus) Subscribe(subscriber string, filter EventFilter, handler EventHandler) *Subscription {
	sub := &Subscription{
		ID:         uuid.NewString(),
		Filter:     filter,
		Handler:    handler,
		Subscriber: subscriber,
		Created:    time.Now(),
	}

	b.mu.Lock()
	b.subscriptions[sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("new subscription", "subscription_id", sub.ID, "subscriber", subscriber)
	return sub
}

// Unsubscribe removes a subscription
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscriptions[id]; !ok {
		return fmt.Errorf("subscription not found: %s", id)
	}
	delete(b.subscriptions, id)
	return nil
}

// Recent returns up to limit of the most recently processed events, oldest
// first. A non-positive limit returns all retained events.
func (b *Bus) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(b.recent) {
		start = len(b.recent) - limit
	}
	out := make([]Event, len(b.recent)-start)
	copy(out, b.recent[start:])
	return out
}

func (b *Bus) prepare(event Event) (Event, error) {
	if event.Type == "" {
		return event, fmt.Errorf("invalid event: type is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event, nil
}

func (b *Bus) processEvents(events <-chan Event, stop <-chan struct{}) {
	defer b.wg.Done()

	for {
		select {
		case event := <-events:
			b.handleEvent(event)
		case <-stop:
			// deliver whatever was queued before the stop
			for {
				select {
				case event := <-events:
					b.handleEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) handleEvent(event Event) {
	b.mu.Lock()
	if len(b.recent) >= b.config.RecentEvents {
		b.recent = b.recent[1:]
	}
	b.recent = append(b.recent, event)

	matching := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if sub.Filter.Matches(event) {
			sub.TriggerCount++
			matching = append(matching, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range matching {
		b.dispatch(sub, event)
	}
}

func (b *Bus) dispatch(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "subscription_id", sub.ID, "panic", r)
		}
	}()
	if err := sub.Handler(event); err != nil {
		b.logger.Warn("event handler failed", "subscription_id", sub.ID, "event_type", event.Type, "error", err)
	}
}
