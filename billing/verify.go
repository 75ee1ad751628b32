package billing

import (
	"context"
	"fmt"
)

const reasonVerifierRejected = "rejected by verification hook"

// Verifier is the optional external collaborator consulted after a purchase
// or entitlement lookup completes natively, before the result is reported as
// final. Implementations may perform network I/O; the call is synchronous
// relative to the billing operation that invokes it.
//
// A false verdict means the purchase must not be treated as granted. A
// verdict error is an infrastructure failure of the hook itself and follows
// the same rule as native infrastructure failures: the purchase degrades to
// StateUnknown rather than the operation erroring.
type Verifier interface {
	Verify(ctx context.Context, p Purchase) (bool, error)
}

// VerifierFunc adapts a plain function to the Verifier interface.
type VerifierFunc func(ctx context.Context, p Purchase) (bool, error)

func (f VerifierFunc) Verify(ctx context.Context, p Purchase) (bool, error) {
	return f(ctx, p)
}

// Screen applies v to a single just-completed purchase. Purchases the native
// store did not grant pass through untouched; there is nothing to verify. A
// rejected purchase comes back flagged StateFailed so the operation still
// completes with a reportable outcome, and a hook failure comes back
// StateUnknown with the cause in the reason.
func Screen(ctx context.Context, v Verifier, p Purchase) Purchase {
	if v == nil || !p.Granted() {
		return p
	}
	ok, err := v.Verify(ctx, p)
	switch {
	case err != nil:
		p.State = StateUnknown
		p.StateReason = fmt.Sprintf("verification hook failed: %v", err)
	case !ok:
		p.State = StateFailed
		p.StateReason = reasonVerifierRejected
	}
	return p
}

// Filter applies v to each record of a queried entitlement set. Rejected
// purchases are excluded from the returned slice; purchases the hook could
// not check are kept but degraded to StateUnknown. Order is otherwise
// preserved.
func Filter(ctx context.Context, v Verifier, purchases []Purchase) []Purchase {
	if v == nil {
		return purchases
	}
	kept := make([]Purchase, 0, len(purchases))
	for _, p := range purchases {
		if !p.Granted() {
			kept = append(kept, p)
			continue
		}
		ok, err := v.Verify(ctx, p)
		if err != nil {
			p.State = StateUnknown
			p.StateReason = fmt.Sprintf("verification hook failed: %v", err)
			kept = append(kept, p)
			continue
		}
		if ok {
			kept = append(kept, p)
		}
	}
	return kept
}
