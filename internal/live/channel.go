// Package live is the push-notification channel a dashboard view listens on.
// Every inbound frame means "server data changed"; frame content is ignored.
package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Stream is one established connection. Receive blocks until the next frame
// arrives and returns an error once the connection is gone. Close unblocks a
// pending Receive.
type Stream interface {
	Receive() error
	Close() error
}

// Source opens connections to the push-notification endpoint.
type Source interface {
	Connect(ctx context.Context) (Stream, error)
}

// Signal asks the subscriber to refresh.
type Signal struct {
	Seq uint64
	At  time.Time
}

type Options struct {
	// Reconnect keeps the channel alive across connection loss. When false
	// the channel stops after the first close.
	Reconnect      bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Channel turns a Source into a stream of refresh signals for a single
// subscriber.
type Channel struct {
	source Source
	opts   Options
	logger observability.Logger

	state atomic.Int32

	mu         sync.Mutex
	subscribed bool
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewChannel(source Source, opts Options, logger observability.Logger) *Channel {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Channel{source: source, opts: opts, logger: logger}
}

func (c *Channel) State() State { return State(c.state.Load()) }

// Subscribe starts the connection loop. The returned channel is closed when
// the loop ends: after Close, after ctx is cancelled, or after the first
// disconnect when reconnecting is disabled.
func (c *Channel) Subscribe(ctx context.Context) (<-chan Signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed {
		return nil, domain.ErrAlreadySubscribed
	}
	c.subscribed = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	out := make(chan Signal)
	go c.run(ctx, out)
	return out, nil
}

// Close tears the channel down and waits for the loop to exit.
func (c *Channel) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Channel) run(ctx context.Context, out chan<- Signal) {
	defer close(c.done)
	defer close(out)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.InitialBackoff
	bo.MaxInterval = c.opts.MaxBackoff
	bo.MaxElapsedTime = 0

	var seq uint64
	for {
		stream, err := c.source.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.WithField("error", err.Error()).Warn("live channel connect failed")
		} else {
			bo.Reset()
			c.setState(StateOpen)
			seq = c.pump(ctx, stream, out, seq)
			c.setState(StateClosed)
		}

		if ctx.Err() != nil || !c.opts.Reconnect {
			return
		}
		wait := bo.NextBackOff()
		observability.LiveReconnects.Inc()
		c.logger.WithField("backoff", wait.String()).Info("live channel reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (c *Channel) pump(ctx context.Context, stream Stream, out chan<- Signal, seq uint64) uint64 {
	var once sync.Once
	closeStream := func() { once.Do(func() { _ = stream.Close() }) }
	stop := context.AfterFunc(ctx, closeStream)
	defer stop()
	defer closeStream()

	for {
		if err := stream.Receive(); err != nil {
			if ctx.Err() == nil {
				c.logger.WithField("error", err.Error()).Info("live channel closed")
			}
			return seq
		}
		observability.LiveMessages.Inc()
		seq++
		select {
		case out <- Signal{Seq: seq, At: time.Now()}:
		case <-ctx.Done():
			return seq
		}
	}
}

func (c *Channel) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	if s == StateOpen {
		observability.LiveOpen.Inc()
	} else {
		observability.LiveOpen.Dec()
	}
}
