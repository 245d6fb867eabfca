package transport

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Memory is an in-process Transport. It owns its own handler
// table (never a process-wide map) so tests never bleed state across
// instances. Publish enqueues onto a per-channel FIFO queue drained by a
// single dedicated goroutine, so a publisher never blocks on its own
// handler but back-to-back publishes on one channel are still delivered in
// publish order.
type Memory struct {
	mu        sync.RWMutex
	connected bool
	handlers  map[string]RawHandler
	queues    map[string]*memoryQueue
	onReconn  []func()
	logger    zerolog.Logger
}

// NewMemory constructs an unconnected Memory transport.
func NewMemory(logger zerolog.Logger) *Memory {
	return &Memory{
		handlers: make(map[string]RawHandler),
		queues:   make(map[string]*memoryQueue),
		logger:   logger,
	}
}

func (m *Memory) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *Memory) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.handlers = make(map[string]RawHandler)
	for _, q := range m.queues {
		q.close()
	}
	m.queues = make(map[string]*memoryQueue)
	return nil
}

func (m *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	if !m.connected {
		m.mu.RUnlock()
		return NotReadyError(channel)
	}
	handler, ok := m.handlers[channel]
	q := m.queues[channel]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	q.push(memoryMsg{payload: payload, handler: handler})
	return nil
}

func (m *Memory) dispatch(channel string, payload []byte, handler RawHandler) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn().Interface("panic", r).Str("channel", channel).Msg("memory transport: handler panicked")
		}
	}()
	handler(channel, payload)
}

func (m *Memory) Subscribe(ctx context.Context, channel string, handler RawHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return NotReadyError(channel)
	}
	m.handlers[channel] = handler
	if _, ok := m.queues[channel]; !ok {
		q := newMemoryQueue()
		m.queues[channel] = q
		go q.run(channel, m.dispatch)
	}
	return nil
}

func (m *Memory) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, channel)
	if q, ok := m.queues[channel]; ok {
		q.close()
		delete(m.queues, channel)
	}
	return nil
}

func (m *Memory) OnReconnect(cb func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconn = append(m.onReconn, cb)
}

var _ Transport = (*Memory)(nil)

// memoryMsg is a single queued delivery: the payload plus the handler that
// was registered for the channel at publish time.
type memoryMsg struct {
	payload []byte
	handler RawHandler
}

// memoryQueue is a per-channel FIFO drained by exactly one goroutine, so
// messages published back-to-back on the same channel are always handed to
// dispatch in publish order.
type memoryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	msgs   []memoryMsg
	closed bool
}

func newMemoryQueue() *memoryQueue {
	q := &memoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *memoryQueue) push(msg memoryMsg) {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *memoryQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *memoryQueue) run(channel string, dispatch func(channel string, payload []byte, handler RawHandler)) {
	for {
		q.mu.Lock()
		for len(q.msgs) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.msgs) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		msg := q.msgs[0]
		q.msgs = q.msgs[1:]
		q.mu.Unlock()

		dispatch(channel, msg.payload, msg.handler)
	}
}
