package appstore

import (
	"fmt"

	"github.com/bivex/storebridge/billing"
)

// verifyReceipt status vocabulary. 0 is a valid receipt; the 21xxx codes
// split into definitive rejections of the receipt itself and server-side
// conditions the caller may retry.
const (
	statusOK                  = 0
	statusUnreadableRequest   = 21000
	statusMalformedReceipt    = 21002
	statusNotAuthenticated    = 21003
	statusSecretMismatch      = 21004
	statusServerUnavailable   = 21005
	statusSubscriptionExpired = 21006
	statusSandboxToProduction = 21007
	statusProductionToSandbox = 21008
	statusInternalError       = 21009
	statusAccountNotFound     = 21010
)

// receiptStatuses is the status mapping table. Rejections of the receipt
// (unreadable, malformed, unauthenticated, wrong secret, no such account)
// are definitive failures; server unavailability, internal errors, and
// environment mismatches are ambiguity, never failure. 21006 still carries a
// decodable receipt — the expiry itself is judged per entry, and the status
// alone proves nothing about ownership.
var receiptStatuses = map[int]billing.PurchaseState{
	statusOK:                  billing.StatePurchased,
	statusUnreadableRequest:   billing.StateFailed,
	statusMalformedReceipt:    billing.StateFailed,
	statusNotAuthenticated:    billing.StateFailed,
	statusSecretMismatch:      billing.StateFailed,
	statusServerUnavailable:   billing.StateUnknown,
	statusSubscriptionExpired: billing.StateUnknown,
	statusSandboxToProduction: billing.StateUnknown,
	statusProductionToSandbox: billing.StateUnknown,
	statusInternalError:       billing.StateUnknown,
	statusAccountNotFound:     billing.StateFailed,
}

func mapReceiptStatus(status int) (billing.PurchaseState, string) {
	if state, ok := receiptStatuses[status]; ok {
		return state, fmt.Sprintf("status %d", status)
	}
	return billing.StateUnknown, fmt.Sprintf("unmapped status %d", status)
}
