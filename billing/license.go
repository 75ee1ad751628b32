package billing

import (
	"time"
)

const reasonLicenseInactive = "license inactive"

// License is one native entitlement record: the primary app license or a
// single add-on tied to it.
type License struct {
	ProductID string
	Active    bool

	// ExpiresAt is the license's own expiration when the platform reports
	// one. Add-ons without it inherit the primary's during aggregation.
	ExpiresAt *time.Time

	// Token is the store's opaque handle for the license, if issued.
	Token string
}

// LicenseSet is a platform's license container for subscription and durable
// kinds: exactly one primary app license plus its add-on licenses, kept in
// the store's native enumeration order.
type LicenseSet struct {
	App    License
	AddOns []License
}

// Purchases flattens the set into the normalized purchase list, primary
// first and add-ons in native order, with no re-sorting. Each license maps
// independently: active attests ownership (StatePurchased); inactive maps to
// StateUnknown, not StateFailed — the store reported the record without
// attesting ownership, and whether that means expired or never purchased is
// not distinguishable here, so the reason says which license was inactive.
//
// Expiration is per-license: an add-on that expires independently keeps its
// own timestamp, and only add-ons the store reports without one inherit the
// primary's.
func (s LicenseSet) Purchases() []Purchase {
	out := make([]Purchase, 0, 1+len(s.AddOns))
	out = append(out, s.App.purchase(nil))
	for _, addOn := range s.AddOns {
		out = append(out, addOn.purchase(s.App.ExpiresAt))
	}
	return out
}

func (l License) purchase(inherited *time.Time) Purchase {
	expires := l.ExpiresAt
	if expires == nil {
		expires = inherited
	}
	p := Purchase{
		ProductID:     l.ProductID,
		State:         StatePurchased,
		ExpiresAt:     expires,
		PurchaseToken: l.Token,
	}
	if !l.Active {
		p.State = StateUnknown
		p.StateReason = reasonLicenseInactive
	}
	return p
}
