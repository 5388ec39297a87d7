// Package worker runs dialogue turns off the request path. Messages of one
// user are processed one at a time in arrival order; different users run
// in parallel.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/superst1/chatbot-whatsapp-citas/internal/messaging"
	"github.com/superst1/chatbot-whatsapp-citas/internal/metrics"
)

var ErrClosed = errors.New("dispatcher closed")

// Handler produces the reply for one inbound message.
type Handler interface {
	Handle(ctx context.Context, in messaging.Inbound) string
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in messaging.Inbound) string

func (f HandlerFunc) Handle(ctx context.Context, in messaging.Inbound) string { return f(ctx, in) }

// RetryConfig bounds redelivery of a failed reply.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  2,
		RetryDelays: []time.Duration{500 * time.Millisecond, 2 * time.Second},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return 0
	}
	if attempt >= len(c.RetryDelays) {
		return c.RetryDelays[len(c.RetryDelays)-1]
	}
	return c.RetryDelays[attempt]
}

// Dispatcher queues inbound messages per user and sends the replies through
// the sender registered for the message channel.
type Dispatcher struct {
	handler Handler
	senders map[string]messaging.Sender
	dedupe  Deduper
	retry   RetryConfig
	timeout time.Duration
	logger  *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queues  map[string][]messaging.Inbound
	closed  bool
	running sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithDeduper(d Deduper) Option {
	return func(p *Dispatcher) { p.dedupe = d }
}

func WithRetry(c RetryConfig) Option {
	return func(p *Dispatcher) { p.retry = c }
}

// WithTurnTimeout bounds one turn including the reply delivery.
func WithTurnTimeout(d time.Duration) Option {
	return func(p *Dispatcher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewDispatcher(handler Handler, senders map[string]messaging.Sender, logger *zerolog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handler: handler,
		senders: senders,
		retry:   DefaultRetryConfig(),
		timeout: 60 * time.Second,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[string][]messaging.Inbound),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit queues a message. It returns false for redeliveries of a message
// id already seen and after Close.
func (d *Dispatcher) Submit(ctx context.Context, in messaging.Inbound) (bool, error) {
	metrics.IncMessageReceived(in.Channel)
	if d.dedupe != nil && in.MessageID != "" {
		seen, err := d.dedupe.Seen(ctx, in.Channel+":"+in.MessageID)
		if err != nil {
			// on lookup failure the message is processed
			d.logger.Warn().Err(err).Str("message_id", in.MessageID).Msg("dedupe lookup failed")
		} else if seen {
			metrics.IncDuplicate()
			d.logger.Debug().Str("message_id", in.MessageID).Msg("duplicate message dropped")
			return false, nil
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, ErrClosed
	}
	queue, active := d.queues[in.UserID]
	d.queues[in.UserID] = append(queue, in)
	if !active {
		d.running.Add(1)
		go d.drain(in.UserID)
	}
	return true, nil
}

// drain processes the user's mailbox until it is empty.
func (d *Dispatcher) drain(userID string) {
	defer d.running.Done()
	for {
		d.mu.Lock()
		queue := d.queues[userID]
		if len(queue) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		in := queue[0]
		d.queues[userID] = queue[1:]
		d.mu.Unlock()

		d.process(in)
	}
}

func (d *Dispatcher) process(in messaging.Inbound) {
	logger := d.logger.With().Str("user_id", in.UserID).Str("channel", in.Channel).Str("message_id", in.MessageID).Logger()
	ctx, cancel := context.WithTimeout(logger.WithContext(d.ctx), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("dialogue turn panicked")
		}
	}()

	reply := d.handler.Handle(ctx, in)
	if reply == "" {
		return
	}
	sender, ok := d.senders[in.Channel]
	if !ok {
		logger.Error().Msg("no sender for channel")
		return
	}
	d.send(ctx, sender, in.UserID, reply)
}

// send retries a bounded number of times and then gives up.
func (d *Dispatcher) send(ctx context.Context, sender messaging.Sender, to, text string) {
	logger := zerolog.Ctx(ctx)
	var err error
retry:
	for attempt := 0; attempt <= d.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				err = errors.Join(err, ctx.Err())
				break retry
			case <-time.After(d.retry.delay(attempt - 1)):
			}
		}
		if err = sender.Send(ctx, to, text); err == nil {
			return
		}
		logger.Warn().Err(err).Int("attempt", attempt+1).Str("provider", sender.Name()).Msg("send reply failed")
	}
	metrics.IncSendFailure(sender.Name())
	logger.Error().Err(err).Str("provider", sender.Name()).Msg("reply not delivered")
}

// Pending returns how many users have queued or running messages.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close stops accepting messages and waits for queued ones until ctx ends.
// In-flight turns are cancelled when ctx expires first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
