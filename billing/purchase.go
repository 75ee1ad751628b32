package billing

import (
	"time"
)

// Purchase is one normalized purchase record: either a current entitlement
// returned by an entitlement query, or the outcome of a just-attempted
// purchase or consume call. It references its Product by identifier only;
// catalog data is a separate query. A Purchase is never mutated after
// creation — a new query produces a new snapshot.
type Purchase struct {
	ProductID string        `json:"product_id"`
	State     PurchaseState `json:"state"`

	// StateReason preserves the native code or diagnostic that produced the
	// state. It matters most for StateUnknown, which deliberately covers both
	// "store never attested ownership" and transient infrastructure failures:
	// callers that need to tell those apart read the reason instead of the
	// state.
	StateReason string `json:"state_reason,omitempty"`

	// ExpiresAt is set only for entitlements the store bounds in time.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// PurchaseToken is the store's opaque handle for this transaction, when
	// the platform issues one. It is what Consume and server-side receipt
	// checks key on.
	PurchaseToken string `json:"purchase_token,omitempty"`
}

// Granted reports whether this record attests ownership
func (p Purchase) Granted() bool {
	return p.State.Granted()
}
