package changefeed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config tunes one subscription.
type Config struct {
	Table       string
	Types       []EventType // empty means all event types
	Filter      *Filter
	BaseDelay   time.Duration // reconnect backoff base, doubled per attempt
	MaxAttempts int           // consecutive failures before giving up
}

func DefaultConfig(table string) Config {
	return Config{
		Table:       table,
		BaseDelay:   500 * time.Millisecond,
		MaxAttempts: 5,
	}
}

// Bridge wraps one logical subscription to row-level changes of a table and
// dispatches typed callbacks. Reconnects use bounded exponential backoff;
// after MaxAttempts consecutive failures the bridge stops retrying and
// reports a terminal connection error rather than crashing, so callers keep
// functioning on their fallback poll.
type Bridge struct {
	id        string
	cfg       Config
	transport Transport
	callbacks Callbacks
	clock     clockwork.Clock

	mu       sync.Mutex
	status   Status
	lastErr  error
	attempts int

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

func NewBridge(transport Transport, cfg Config, callbacks Callbacks, clock clockwork.Clock) *Bridge {
	return &Bridge{
		// Unique per subscription so two components watching the same table
		// never collide.
		id:        subscriptionID(cfg.Table),
		cfg:       cfg,
		transport: transport,
		callbacks: callbacks,
		clock:     clock,
		status:    StatusPending,
		done:      make(chan struct{}),
	}
}

// ID is the globally unique identifier of this subscription.
func (b *Bridge) ID() string {
	return b.id
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bridge) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Start runs the subscription loop until Close is called or retries are
// exhausted. Exhaustion is reported through Status/LastError, not returned
// as an error: a dead feed degrades the UI, it does not stop the app.
func (b *Bridge) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	go b.run(ctx)
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	channel := "cdc_" + b.cfg.Table

	for {
		stream, err := b.transport.Listen(ctx, channel)
		if err != nil {
			if !b.recordFailure(err) {
				return
			}
		} else {
			b.setSubscribed()
			log.Info().Str("subscription", b.id).Str("table", b.cfg.Table).Msg("change feed subscribed")

			b.consume(ctx, stream)
			_ = stream.Close()

			if ctx.Err() != nil {
				b.setStatus(StatusClosed)
				return
			}
			streamErr := stream.Err()
			if streamErr == nil {
				streamErr = errors.New("notification stream closed")
			}
			if !b.recordFailure(streamErr) {
				return
			}
		}

		delay := b.cfg.BaseDelay * (1 << (b.attemptCount() - 1))
		select {
		case <-ctx.Done():
			b.setStatus(StatusClosed)
			return
		case <-b.clock.After(delay):
		}
	}
}

func (b *Bridge) consume(ctx context.Context, stream Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case note, ok := <-stream.Events():
			if !ok {
				return
			}
			b.dispatch(note)
		}
	}
}

func (b *Bridge) dispatch(note Notification) {
	var event Event
	if err := json.Unmarshal([]byte(note.Payload), &event); err != nil {
		log.Error().Err(err).Str("subscription", b.id).Msg("malformed change feed payload")
		return
	}
	if !b.wants(event.Type) || !b.matchesFilter(event) {
		return
	}

	switch event.Type {
	case EventInsert:
		if b.callbacks.OnInsert != nil {
			b.callbacks.OnInsert(event)
		}
	case EventUpdate:
		if b.callbacks.OnUpdate != nil {
			b.callbacks.OnUpdate(event)
		}
	case EventDelete:
		if b.callbacks.OnDelete != nil {
			b.callbacks.OnDelete(event)
		}
	}
}

func (b *Bridge) wants(t EventType) bool {
	if len(b.cfg.Types) == 0 {
		return true
	}
	for _, want := range b.cfg.Types {
		if want == t {
			return true
		}
	}
	return false
}

func (b *Bridge) matchesFilter(event Event) bool {
	if b.cfg.Filter == nil {
		return true
	}
	row := event.New
	if event.Type == EventDelete {
		row = event.Old
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	val, ok := fields[b.cfg.Filter.Column]
	if !ok {
		return false
	}
	return fmt.Sprint(val) == b.cfg.Filter.Value
}

// recordFailure bumps the consecutive-failure counter. It returns false
// once the retry budget is spent, leaving the terminal status and lastErr
// readable.
func (b *Bridge) recordFailure(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++
	b.lastErr = err
	if isTimeout(err) {
		b.status = StatusTimedOut
	} else {
		b.status = StatusChannelError
	}

	if b.attempts >= b.cfg.MaxAttempts {
		log.Error().
			Err(err).
			Str("subscription", b.id).
			Int("attempts", b.attempts).
			Msg("change feed gave up reconnecting")
		return false
	}
	log.Warn().
		Err(err).
		Str("subscription", b.id).
		Int("attempt", b.attempts).
		Msg("change feed connection lost, will retry")
	return true
}

func (b *Bridge) setSubscribed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = StatusSubscribed
	b.attempts = 0
	b.lastErr = nil
}

func (b *Bridge) setStatus(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

func (b *Bridge) attemptCount() uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint(b.attempts)
}

// Close tears the subscription down. Safe to call any number of times.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		cancel := b.cancel
		b.mu.Unlock()
		if cancel != nil {
			cancel()
			<-b.done
		}
		b.setStatus(StatusClosed)
		log.Info().Str("subscription", b.id).Msg("change feed closed")
	})
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func subscriptionID(table string) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s-%d-%s", table, time.Now().UnixNano(), hex.EncodeToString(suffix))
}
