package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported signals an operation with no native equivalent on the
	// adapter's platform. Adapters report it explicitly and immediately; an
	// unsupported operation never degrades into a silent no-op or a
	// fabricated success.
	ErrNotSupported = errors.New("operation not supported on this platform")

	// ErrNotConnected signals an operation invoked before a successful
	// Connect on an adapter that requires an established native session.
	ErrNotConnected = errors.New("billing service is not connected")

	// ErrNoProductIDs signals a catalog query with an empty id set.
	ErrNoProductIDs = errors.New("at least one product id is required")

	// ErrUnknownPlatform signals an Open call for a platform no adapter
	// package has registered.
	ErrUnknownPlatform = errors.New("unknown billing platform")
)

// PurchaseError reports that a native store call itself failed before it
// could produce a purchase status. It is the only error class purchase
// operations raise: once the native service answers with a status — any
// status — the outcome is data (a Purchase with a mapped state), not an
// error. Code and Msg carry the native diagnostic payload verbatim.
type PurchaseError struct {
	Platform Platform
	Op       string
	Code     string
	Msg      string
	Err      error
}

func (e *PurchaseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s failed (%s): %s", e.Platform, e.Op, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %s failed: %s", e.Platform, e.Op, e.Msg)
}

func (e *PurchaseError) Unwrap() error {
	return e.Err
}
