package billing

import (
	"errors"
)

var (
	ErrInvalidPurchaseState = errors.New("invalid purchase state")
)

// PurchaseState is the normalized outcome of a purchase attempt or an
// entitlement lookup. The set is closed: platform adapters map their native
// result vocabulary into it and never invent new states. A state is terminal
// for the transaction attempt that produced it.
//
// Two mapping rules bind every adapter:
//
//   - StateFailed is reserved for a definitive, user-facing denial (explicit
//     not-purchased or declined). Infrastructure-level ambiguity — network
//     errors, store server errors, unmapped native codes — maps to
//     StateUnknown, never StateFailed.
//   - StateRestored means the store attested prior ownership and no new
//     charge occurred, as opposed to a fresh StatePurchased.
type PurchaseState string

const (
	StatePurchased PurchaseState = "purchased"
	StateRestored  PurchaseState = "restored"
	StateFailed    PurchaseState = "failed"
	StateUnknown   PurchaseState = "unknown"
	StateDeferred  PurchaseState = "deferred"
	StateCanceled  PurchaseState = "canceled"
)

// NewPurchaseState creates a PurchaseState value object from its string form
func NewPurchaseState(state string) (PurchaseState, error) {
	s := PurchaseState(state)
	switch s {
	case StatePurchased, StateRestored, StateFailed, StateUnknown, StateDeferred, StateCanceled:
		return s, nil
	default:
		return "", ErrInvalidPurchaseState
	}
}

// String returns the string representation of the state
func (s PurchaseState) String() string {
	return string(s)
}

// Granted returns true if the state attests ownership (purchased or restored)
func (s PurchaseState) Granted() bool {
	return s == StatePurchased || s == StateRestored
}

// Final returns true if the state reflects a settled native outcome rather
// than one still pending user or store action
func (s PurchaseState) Final() bool {
	return s != StateDeferred
}
