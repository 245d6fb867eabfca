package bus

import "time"

// Hooks are optional, fire-and-forget observability callbacks. Any panic
// raised by a hook is recovered and dropped — hooks must never be able to
// destabilize bus operations.
type Hooks struct {
	OnPublish          func(channel string, duration time.Duration)
	OnSubscribe        func(channel string)
	OnUnsubscribe      func(channel string)
	OnError            func(operation string, err error)
	OnHandlerExecution func(channel string, handlerIndex int)
}

func (h Hooks) safePublish(channel string, d time.Duration) {
	if h.OnPublish == nil {
		return
	}
	defer recoverHook()
	h.OnPublish(channel, d)
}

func (h Hooks) safeSubscribe(channel string) {
	if h.OnSubscribe == nil {
		return
	}
	defer recoverHook()
	h.OnSubscribe(channel)
}

func (h Hooks) safeUnsubscribe(channel string) {
	if h.OnUnsubscribe == nil {
		return
	}
	defer recoverHook()
	h.OnUnsubscribe(channel)
}

func (h Hooks) safeError(operation string, err error) {
	if h.OnError == nil {
		return
	}
	defer recoverHook()
	h.OnError(operation, err)
}

func (h Hooks) safeHandlerExecution(channel string, idx int) {
	if h.OnHandlerExecution == nil {
		return
	}
	defer recoverHook()
	h.OnHandlerExecution(channel, idx)
}

func recoverHook() { _ = recover() }
