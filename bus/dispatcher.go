package bus

import (
	"sync"

	"github.com/lokicoule-stack/fluxcache/codec"
)

// dispatcher decodes raw bytes for a channel and fans out to every
// registered handler with error isolation: a panicking or erroring handler
// never prevents its siblings from running, and never propagates back to
// the transport.
type dispatcher struct {
	codec   codec.Codec
	onError func(channel string, err error)
	onExec  func(channel string, handlerIndex int)
}

func newDispatcher(c codec.Codec, onError func(channel string, err error), onExec func(channel string, handlerIndex int)) *dispatcher {
	return &dispatcher{codec: c, onError: onError, onExec: onExec}
}

func (d *dispatcher) dispatch(channel string, raw []byte, handlers []Handler) {
	var payload any
	if err := d.codec.Decode(raw, &payload); err != nil {
		if d.onError != nil {
			d.onError(channel, err)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for i, h := range handlers {
		i, h := i, h
		go func() {
			defer wg.Done()
			d.isolate(channel, i, h, payload)
		}()
	}
	wg.Wait()
}

func (d *dispatcher) isolate(channel string, index int, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			if d.onError != nil {
				d.onError(channel, panicToError(r))
			}
		}
	}()
	h(payload)
	if d.onExec != nil {
		d.onExec(channel, index)
	}
}
