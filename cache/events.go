package cache

import "time"

// HitEvent carries the detail emitted alongside a cache hit.
type HitEvent struct {
	Key      string
	Driver   string
	Graced   bool
	Duration time.Duration
}

// Events are optional, fire-and-forget observability callbacks mirroring
// the bus package's Hooks: any panic raised by a listener is recovered and
// dropped so a broken listener can never destabilize cache operations.
type Events struct {
	OnHit          func(HitEvent)
	OnMiss         func(key string)
	OnSet          func(key string)
	OnDelete       func(key string)
	OnClear        func()
	OnError        func(operation string, err error)
	OnBusPublished func(channel string)
	OnBusReceived  func(channel string)
}

func (e Events) safeHit(ev HitEvent) {
	if e.OnHit == nil {
		return
	}
	defer recoverEvent()
	e.OnHit(ev)
}

func (e Events) safeMiss(key string) {
	if e.OnMiss == nil {
		return
	}
	defer recoverEvent()
	e.OnMiss(key)
}

func (e Events) safeSet(key string) {
	if e.OnSet == nil {
		return
	}
	defer recoverEvent()
	e.OnSet(key)
}

func (e Events) safeDelete(key string) {
	if e.OnDelete == nil {
		return
	}
	defer recoverEvent()
	e.OnDelete(key)
}

func (e Events) safeClear() {
	if e.OnClear == nil {
		return
	}
	defer recoverEvent()
	e.OnClear()
}

func (e Events) safeError(operation string, err error) {
	if e.OnError == nil {
		return
	}
	defer recoverEvent()
	e.OnError(operation, err)
}

func (e Events) safeBusPublished(channel string) {
	if e.OnBusPublished == nil {
		return
	}
	defer recoverEvent()
	e.OnBusPublished(channel)
}

func (e Events) safeBusReceived(channel string) {
	if e.OnBusReceived == nil {
		return
	}
	defer recoverEvent()
	e.OnBusReceived(channel)
}

func recoverEvent() { _ = recover() }
