package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PqTransport opens LISTEN streams against Postgres. Row triggers on the
// watched tables raise pg_notify('cdc_<table>', json) with the event
// envelope.
type PqTransport struct {
	dsn string
}

func NewPqTransport(dsn string) *PqTransport {
	return &PqTransport{dsn: dsn}
}

var _ Transport = (*PqTransport)(nil)

func (t *PqTransport) Listen(ctx context.Context, channel string) (Stream, error) {
	s := &pqStream{
		events: make(chan Notification),
		closed: make(chan struct{}),
	}

	listener := pq.NewListener(
		t.dsn,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("pq listener event")
			}
		},
	)
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}
	s.listener = listener

	go s.pump(ctx)
	return s, nil
}

type pqStream struct {
	listener *pq.Listener
	events   chan Notification
	closed   chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

func (s *pqStream) pump(ctx context.Context) {
	defer close(s.events)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case note := <-s.listener.Notify:
			if note == nil {
				// nil notification means the underlying connection dropped
				s.setErr(errors.New("listener connection lost"))
				return
			}
			select {
			case s.events <- Notification{Payload: note.Extra}:
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			}
		}
	}
}

func (s *pqStream) Events() <-chan Notification {
	return s.events
}

func (s *pqStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pqStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.listener.Close()
	})
	return err
}

func (s *pqStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
