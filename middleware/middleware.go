// Package middleware provides Transport-shaped decorators composed
// outer-to-inner as retry(integrity(compression(base))).
package middleware

import "github.com/lokicoule-stack/fluxcache/transport"

// Chain holds the optional middleware stages, named after their fixed
// order: retry is outermost, then integrity, then compression, then the
// base transport innermost. Chain does no wrapping itself; Compose does.
type Chain struct {
	Compression transport.Transport // optional
	Integrity   transport.Transport // optional
	Retry       transport.Transport // optional
}

// Compose builds the effective transport from base given which decorators
// are requested. A nil decorator constructor for a stage skips that stage.
func Compose(base transport.Transport, withCompression, withIntegrity, withRetry func(transport.Transport) transport.Transport) transport.Transport {
	t := base
	if withCompression != nil {
		t = withCompression(t)
	}
	if withIntegrity != nil {
		t = withIntegrity(t)
	}
	if withRetry != nil {
		t = withRetry(t)
	}
	return t
}
