// Package notify delivers operator alerts to Telegram, Discord and the log.
// Delivery is asynchronous and best-effort: callers never wait on a sender.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Config tunes the dispatcher.
type Config struct {
	// Events restricts Notify to these kinds; empty allows every kind.
	Events      []domain.EventKind
	QueueSize   int
	SendTimeout time.Duration
}

type message struct {
	kind     domain.EventKind
	title    string
	body     string
	escalate bool
}

// Notifier fans messages out to every sender from a background worker.
// Escalations use their own queue and are dispatched first.
type Notifier struct {
	senders     []Sender
	events      map[domain.EventKind]bool
	sendTimeout time.Duration
	logger      *slog.Logger

	queue   chan message
	urgent  chan message
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewNotifier starts the dispatch worker.
func NewNotifier(senders []Sender, cfg Config, logger *slog.Logger) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	allowed := make(map[domain.EventKind]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		allowed[domain.EventKind(strings.TrimSpace(string(e)))] = true
	}
	n := &Notifier{
		senders:     senders,
		events:      allowed,
		sendTimeout: cfg.SendTimeout,
		logger:      logger.With(slog.String("component", "notifier")),
		queue:       make(chan message, cfg.QueueSize),
		urgent:      make(chan message, 64),
		done:        make(chan struct{}),
	}
	go n.run()
	return n
}

// Notify queues a message if kind passes the event filter. It never blocks;
// a full queue drops the message.
func (n *Notifier) Notify(ctx context.Context, kind domain.EventKind, title, body string) {
	if len(n.events) > 0 && !n.events[kind] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", string(kind)))
		return
	}
	n.enqueue(n.queue, message{kind: kind, title: title, body: body})
}

// Escalate bypasses the event filter and jumps the queue. The message is
// also written to the error log immediately.
func (n *Notifier) Escalate(ctx context.Context, title, body string) {
	n.logger.ErrorContext(ctx, "escalation", slog.String("title", title), slog.String("message", body))
	n.enqueue(n.urgent, message{kind: domain.EventNakedPosition, title: title, body: body, escalate: true})
}

func (n *Notifier) enqueue(ch chan message, m message) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case ch <- m:
	default:
		n.dropped.Add(1)
		n.logger.Warn("notification queue full, dropping", slog.String("title", m.title))
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	queue, urgent := n.queue, n.urgent
	for queue != nil || urgent != nil {
		// Drain escalations before ordinary messages.
		select {
		case m, ok := <-urgent:
			if !ok {
				urgent = nil
				continue
			}
			n.dispatch(m)
			continue
		default:
		}
		select {
		case m, ok := <-urgent:
			if !ok {
				urgent = nil
				continue
			}
			n.dispatch(m)
		case m, ok := <-queue:
			if !ok {
				queue = nil
				continue
			}
			n.dispatch(m)
		}
	}
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(m message) {
	var errs []error
	for _, s := range n.senders {
		ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
		err := s.Send(ctx, m.title, m.body)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.Debug("notification sent", slog.String("sender", s.Name()), slog.String("title", m.title))
	}
	if err := errors.Join(errs...); err != nil {
		n.logger.Error("sender failed",
			slog.String("event", string(m.kind)),
			slog.Bool("escalation", m.escalate),
			slog.String("error", err.Error()),
		)
	}
}

// Dropped returns how many messages were discarded on a full queue.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Close stops accepting messages and waits for queued ones to be sent or
// for ctx to end.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
		close(n.urgent)
	}
	n.mu.Unlock()
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domain.Notifier = (*Notifier)(nil)
