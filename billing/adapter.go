// Package billing defines the cross-platform in-app purchase contract: one
// Adapter interface over heterogeneous native store services, a closed
// PurchaseState vocabulary the adapters normalize into, and an optional
// verification hook consulted before any purchase is reported as final.
//
// The package owns no transport and no persistence. Adapters hold a single
// native session per instance and rely on the native service's own request
// serialization; the core imposes no additional locking.
package billing

import (
	"context"
	"fmt"
)

// Platform identifies a native store service.
type Platform string

const (
	PlatformGooglePlay     Platform = "playstore"
	PlatformAppStore       Platform = "appstore"
	PlatformAmazon         Platform = "amazon"
	PlatformMicrosoftStore Platform = "msstore"
)

// NewPlatform validates and creates a Platform from a string.
func NewPlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformGooglePlay, PlatformAppStore, PlatformAmazon, PlatformMicrosoftStore:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
}

// Request carries the parameters of a Purchase or Consume call. ProductID
// and ItemType are always required; the rest is platform- and op-dependent.
type Request struct {
	ProductID string
	ItemType  ItemType

	// Payload is the opaque developer string forwarded to the native service.
	// Platforms give it different meanings: Google Play passes it through as
	// the developer payload, the App Store adapter reads the transaction
	// receipt from it, Amazon reads the store user id.
	Payload string

	// PurchaseToken identifies the transaction being consumed or finalized,
	// for platforms that issue one.
	PurchaseToken string

	// Verifier, when set, screens the resulting purchase before it is
	// reported. See Verifier for the rejection semantics.
	Verifier Verifier
}

// Adapter is the capability contract every platform implements. Operations a
// platform cannot support fail explicitly with ErrNotSupported; see
// Unsupported for the default behaviors.
//
// All operations may block on native I/O or pending user interaction.
// Cancellation is whatever the native service provides and surfaces as
// StateCanceled, never as a distinct control-flow error; the passed context
// bounds only the outbound native calls.
type Adapter interface {
	// Platform returns the native store this adapter fronts.
	Platform() Platform

	// Connect establishes or verifies readiness of the native billing
	// service. It is idempotent and side-effect-free on repeat calls, and
	// reports an unreachable service as false rather than an error — callers
	// must check the result.
	Connect(ctx context.Context) bool

	// Disconnect releases the native session. It is safe without a prior
	// successful Connect and safe to call repeatedly.
	Disconnect(ctx context.Context)

	// GetProductInfo queries the native catalog for exactly the requested
	// ids, restricted to kinds relevant to itemType. Ids the store does not
	// recognize are silently omitted, not errored; output order is
	// unspecified.
	GetProductInfo(ctx context.Context, itemType ItemType, productIDs []string) ([]Product, error)

	// GetPurchases returns the caller's current entitlements for itemType,
	// each independently mapped to a state. A verifier, when supplied,
	// screens every record: rejected purchases are excluded from the result.
	GetPurchases(ctx context.Context, itemType ItemType, verify Verifier) ([]Purchase, error)

	// Purchase runs a native purchase flow and maps its result code through
	// the platform's status table into one Purchase. It returns a
	// *PurchaseError only when the native call fails before producing a
	// status; every native status, including denials and infrastructure
	// failures, comes back as data.
	Purchase(ctx context.Context, req Request) (Purchase, error)

	// Consume marks a consumable as spent so it can be purchased again.
	// Platforms without a native consumption primitive fail with
	// ErrNotSupported.
	Consume(ctx context.Context, req Request) (Purchase, error)
}

// Unsupported is an embeddable default for capabilities a platform cannot
// provide: every operation fails immediately with ErrNotSupported. Adapters
// embed it and override only what their native service implements, so the
// unsupported surface stays explicit instead of inherited behavior drifting
// through a base class.
type Unsupported struct{}

func (Unsupported) GetProductInfo(ctx context.Context, itemType ItemType, productIDs []string) ([]Product, error) {
	return nil, ErrNotSupported
}

func (Unsupported) GetPurchases(ctx context.Context, itemType ItemType, verify Verifier) ([]Purchase, error) {
	return nil, ErrNotSupported
}

func (Unsupported) Purchase(ctx context.Context, req Request) (Purchase, error) {
	return Purchase{}, ErrNotSupported
}

func (Unsupported) Consume(ctx context.Context, req Request) (Purchase, error) {
	return Purchase{}, ErrNotSupported
}
