package cache

import "fmt"

// ErrCode enumerates the machine-readable cache error kinds.
type ErrCode string

const (
	StoreNotFound  ErrCode = "STORE_NOT_FOUND"
	DriverNotFound ErrCode = "DRIVER_NOT_FOUND"
	LoaderError    ErrCode = "LOADER_ERROR"
	NotConnected   ErrCode = "NOT_CONNECTED"
)

// Error is the cache package's error taxonomy, following the codec and
// transport packages' Error/ErrCode shape for consistency across the module.
type Error struct {
	Code    ErrCode
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cache: %s: %s: %v", e.Code, e.Context, e.Cause)
	}
	return fmt.Sprintf("cache: %s: %s", e.Code, e.Context)
}

func (e *Error) Unwrap() error { return e.Cause }

func newStoreNotFound(name string) error {
	return &Error{Code: StoreNotFound, Context: name}
}

func newDriverNotFound(name string) error {
	return &Error{Code: DriverNotFound, Context: name}
}

func newLoaderError(key string, cause error) error {
	return &Error{Code: LoaderError, Context: key, Cause: cause}
}

func newNotConnected(context string) error {
	return &Error{Code: NotConnected, Context: context}
}
