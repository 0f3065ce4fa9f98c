package amqp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// ChannelPool hands out AMQP channels from a bounded pool. Channels found
// dead on checkout are replaced transparently.
type ChannelPool struct {
	manager *ConnectionManager
	maxSize int

	mu          sync.Mutex
	channels    chan *PooledChannel
	closed      bool
	activeCount int
}

// PooledChannel wraps an AMQP channel with pool bookkeeping.
type PooledChannel struct {
	*amqp091.Channel
	lastUsed time.Time
	id       string
}

// ChannelPoolOption configures the channel pool.
type ChannelPoolOption func(*ChannelPool)

// WithMaxChannels sets the maximum pool size.
func WithMaxChannels(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.maxSize = size
	}
}

// NewChannelPool creates a channel pool on top of the manager.
func NewChannelPool(manager *ConnectionManager, options ...ChannelPoolOption) (*ChannelPool, error) {
	if manager == nil {
		return nil, ErrConnectionNotReady
	}
	pool := &ChannelPool{
		manager: manager,
		maxSize: 10,
	}
	for _, opt := range options {
		opt(pool)
	}
	pool.channels = make(chan *PooledChannel, pool.maxSize)
	return pool, nil
}

// Get retrieves a channel, creating one when the pool has capacity.
func (cp *ChannelPool) Get(ctx context.Context) (*PooledChannel, error) {
	for {
		cp.mu.Lock()
		if cp.closed {
			cp.mu.Unlock()
			return nil, ErrChannelPoolClosed
		}
		cp.mu.Unlock()

		select {
		case ch := <-cp.channels:
			if ch == nil {
				return nil, ErrChannelPoolClosed
			}
			if !ch.IsClosed() {
				ch.lastUsed = time.Now()
				return ch, nil
			}
			cp.release()
			continue
		default:
		}

		// tryCreateChannel reserves a slot atomically; a nil, nil result
		// means the pool is at capacity and we wait for a return instead.
		if ch, err := cp.tryCreateChannel(); err != nil || ch != nil {
			return ch, err
		}

		select {
		case ch := <-cp.channels:
			if ch == nil {
				return nil, ErrChannelPoolClosed
			}
			if !ch.IsClosed() {
				ch.lastUsed = time.Now()
				return ch, nil
			}
			cp.release()
		case <-ctx.Done():
			return nil, &ChannelError{Op: "get channel", ChannelID: "pool", Err: ctx.Err(), Timestamp: time.Now()}
		case <-time.After(5 * time.Second):
			return nil, &ChannelError{Op: "get channel", ChannelID: "pool", Err: ErrChannelPoolExhausted, Timestamp: time.Now()}
		}
	}
}

// Put returns a channel to the pool.
func (cp *ChannelPool) Put(ch *PooledChannel) {
	if ch == nil {
		return
	}
	cp.mu.Lock()
	closed := cp.closed
	cp.mu.Unlock()
	if closed || ch.IsClosed() {
		cp.release()
		if !ch.IsClosed() {
			ch.Channel.Close()
		}
		return
	}

	ch.lastUsed = time.Now()
	select {
	case cp.channels <- ch:
	default:
		ch.Channel.Close()
		cp.release()
	}
}

// Close closes the pool and every pooled channel.
func (cp *ChannelPool) Close() error {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil
	}
	cp.closed = true
	cp.mu.Unlock()

	close(cp.channels)
	for ch := range cp.channels {
		if ch != nil && !ch.IsClosed() {
			ch.Channel.Close()
		}
	}
	return nil
}

// tryCreateChannel reserves one active slot and opens a channel on it.
// Returns nil, nil when the pool is already at capacity. The reservation
// is taken before dialing so concurrent callers can never overshoot
// maxSize, and is rolled back if opening the channel fails.
func (cp *ChannelPool) tryCreateChannel() (*PooledChannel, error) {
	cp.mu.Lock()
	if cp.activeCount >= cp.maxSize {
		cp.mu.Unlock()
		return nil, nil
	}
	cp.activeCount++
	cp.mu.Unlock()

	conn, err := cp.manager.GetConnection()
	if err != nil {
		cp.release()
		return nil, &ChannelError{Op: "create channel", ChannelID: "new", Err: err, Timestamp: time.Now()}
	}
	ch, err := conn.Channel()
	if err != nil {
		cp.release()
		return nil, &ChannelError{Op: "create channel", ChannelID: "new", Err: err, Timestamp: time.Now()}
	}
	return &PooledChannel{Channel: ch, lastUsed: time.Now(), id: uuid.NewString()}, nil
}

// release gives one reserved slot back.
func (cp *ChannelPool) release() {
	cp.mu.Lock()
	cp.activeCount--
	cp.mu.Unlock()
}
