package playstore

import (
	"fmt"

	"github.com/bivex/storebridge/billing"
)

// Native purchaseState vocabulary of a Play product purchase.
const (
	purchaseStatePurchased int64 = 0
	purchaseStateCanceled  int64 = 1
	purchaseStatePending   int64 = 2
)

// acknowledgementState value for a purchase the app already finalized.
const acknowledgementStateAcknowledged int64 = 1

// productStates maps the purchaseState codes to normalized states. Pending
// means the store is waiting on the user (e.g. cash payment at a kiosk), so
// it maps to deferred, not failed. Codes outside the table map to unknown.
var productStates = map[int64]billing.PurchaseState{
	purchaseStatePurchased: billing.StatePurchased,
	purchaseStateCanceled:  billing.StateCanceled,
	purchaseStatePending:   billing.StateDeferred,
}

// Native paymentState vocabulary of a Play subscription purchase.
const (
	paymentStatePending      int64 = 0
	paymentStateReceived     int64 = 1
	paymentStateFreeTrial    int64 = 2
	paymentStateDeferredPlan int64 = 3
)

// paymentStates maps subscription paymentState codes. A free trial is an
// attested entitlement, so it maps to purchased; a pending payment or a
// deferred plan change is not settled yet.
var paymentStates = map[int64]billing.PurchaseState{
	paymentStatePending:      billing.StateDeferred,
	paymentStateReceived:     billing.StatePurchased,
	paymentStateFreeTrial:    billing.StatePurchased,
	paymentStateDeferredPlan: billing.StateDeferred,
}

func mapProductState(code int64) (billing.PurchaseState, string) {
	if state, ok := productStates[code]; ok {
		return state, fmt.Sprintf("purchaseState %d", code)
	}
	return billing.StateUnknown, fmt.Sprintf("unmapped purchaseState %d", code)
}

func mapPaymentState(code *int64) (billing.PurchaseState, string) {
	if code == nil {
		return billing.StateUnknown, "paymentState absent"
	}
	if state, ok := paymentStates[*code]; ok {
		return state, fmt.Sprintf("paymentState %d", *code)
	}
	return billing.StateUnknown, fmt.Sprintf("unmapped paymentState %d", *code)
}
