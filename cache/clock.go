package cache

import "time"

// nowFunc is indirected so tests can freeze time, using the familiar
// SetNowFunc(time.Now) pattern in cache.go.
var nowFunc = time.Now

// SetNowFunc overrides the clock used for entry lifecycle checks. Intended
// for tests.
func SetNowFunc(f func() time.Time) { nowFunc = f }

func now() time.Time { return nowFunc() }
