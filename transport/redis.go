package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig configures the Redis transport.
type RedisConfig struct {
	// ReceiveTimeout bounds each blocking read on the subscriber connection
	// so the receive loop can observe context cancellation promptly.
	ReceiveTimeout time.Duration
	// ReconnectBackoff is the delay between receive-loop retries while the
	// subscriber connection is down.
	ReconnectBackoff time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		ReceiveTimeout:   5 * time.Second,
		ReconnectBackoff: 200 * time.Millisecond,
	}
}

// Redis is a Transport backed by Redis Pub/Sub. It keeps two independent
// clients (publisher, subscriber) because a connection in subscribe mode
// cannot run ordinary commands, the same way a dedicated pubsub connection keeps a
// dedicated redis.UniversalClient for its invalidation pubsub alongside the
// primary client used for GET/SET.
type Redis struct {
	cfg        RedisConfig
	publisher  redis.UniversalClient
	subscriber redis.UniversalClient
	logger     zerolog.Logger

	mu        sync.RWMutex
	connected bool
	pubsub    *redis.PubSub
	handlers  map[string]RawHandler
	onReconn  []func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedis constructs a Redis transport over the given publisher/subscriber
// clients. Passing the same client for both is valid for standalone Redis;
// cluster deployments typically want the same client too since go-redis
// multiplexes pub/sub internally.
func NewRedis(publisher, subscriber redis.UniversalClient, cfg RedisConfig, logger zerolog.Logger) *Redis {
	return &Redis{
		cfg:        cfg,
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger,
		handlers:   make(map[string]RawHandler),
	}
}

func (r *Redis) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return nil
	}
	if err := r.publisher.Ping(ctx).Err(); err != nil {
		return &Error{Code: ConnectionFailed, Retryable: true, Cause: err}
	}
	if err := r.subscriber.Ping(ctx).Err(); err != nil {
		return &Error{Code: ConnectionFailed, Retryable: true, Cause: err}
	}
	r.pubsub = r.subscriber.Subscribe(ctx)
	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.connected = true
	r.wg.Add(1)
	go r.receiveLoop(loopCtx)
	return nil
}

func (r *Redis) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return nil
	}
	r.connected = false
	cancel := r.cancel
	ps := r.pubsub
	r.pubsub = nil
	r.handlers = make(map[string]RawHandler)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	if ps != nil {
		_ = ps.Close()
	}
	return nil
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	r.mu.RLock()
	connected := r.connected
	r.mu.RUnlock()
	if !connected {
		return NotReadyError(channel)
	}
	if err := r.publisher.Publish(ctx, channel, payload).Err(); err != nil {
		return &Error{Code: PublishFailed, Channel: channel, Retryable: true, Cause: err}
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, channel string, handler RawHandler) error {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return NotReadyError(channel)
	}
	ps := r.pubsub
	r.handlers[channel] = handler
	r.mu.Unlock()

	if err := ps.Subscribe(ctx, channel); err != nil {
		r.mu.Lock()
		delete(r.handlers, channel)
		r.mu.Unlock()
		return &Error{Code: SubscribeFailed, Channel: channel, Retryable: true, Cause: err}
	}
	return nil
}

func (r *Redis) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	ps := r.pubsub
	connected := r.connected
	delete(r.handlers, channel)
	r.mu.Unlock()
	if !connected || ps == nil {
		return nil
	}
	if err := ps.Unsubscribe(ctx, channel); err != nil {
		return &Error{Code: UnsubscribeFailed, Channel: channel, Retryable: true, Cause: err}
	}
	return nil
}

func (r *Redis) OnReconnect(cb func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReconn = append(r.onReconn, cb)
}

// receiveLoop pumps messages off the shared PubSub connection and demuxes
// them by channel. go-redis's PubSub re-dials and re-subscribes internally
// on a broken connection; once a Receive call succeeds again after a prior
// failure, this loop treats it as a reconnect and fires the registered
// callbacks so the bus can re-issue its own bookkeeping subscribes.
func (r *Redis) receiveLoop(ctx context.Context) {
	defer r.wg.Done()
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.mu.RLock()
		ps := r.pubsub
		r.mu.RUnlock()
		if ps == nil {
			return
		}

		recvCtx, cancel := context.WithTimeout(ctx, r.cfg.ReceiveTimeout)
		msg, err := ps.Receive(recvCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !isTimeout(err) {
				if !failing {
					r.logger.Warn().Err(err).Msg("redis transport: subscriber connection degraded")
				}
				failing = true
				time.Sleep(r.cfg.ReconnectBackoff)
			}
			continue
		}
		if failing {
			failing = false
			r.logger.Info().Msg("redis transport: subscriber reconnected")
			r.fireReconnect()
		}

		switch m := msg.(type) {
		case *redis.Message:
			r.dispatch(m.Channel, []byte(m.Payload))
		default:
			// *redis.Subscription, *redis.Pong: bookkeeping only.
		}
	}
}

func (r *Redis) dispatch(channel string, payload []byte) {
	r.mu.RLock()
	handler, ok := r.handlers[channel]
	r.mu.RUnlock()
	if !ok {
		return
	}
	handler(channel, payload)
}

func (r *Redis) fireReconnect() {
	r.mu.RLock()
	cbs := make([]func(), len(r.onReconn))
	copy(cbs, r.onReconn)
	r.mu.RUnlock()
	for _, cb := range cbs {
		cb()
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

var _ Transport = (*Redis)(nil)

// ChannelName joins prefix and channel with ":" (or returns channel alone
// when prefix is empty). The Redis transport itself does not call it: it
// publishes and subscribes on channel names exactly as supplied.
func ChannelName(prefix, channel string) string {
	if prefix == "" {
		return channel
	}
	return fmt.Sprintf("%s:%s", prefix, channel)
}
