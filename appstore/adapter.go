// Package appstore implements the Apple App Store billing adapter over the
// verifyReceipt flow. The receipt issued to the device is the native session
// artifact: Purchase finalizes the transaction a receipt attests, and
// GetPurchases enumerates the entitlements the session receipt carries.
// There is no server-side catalog or consumption primitive on this platform.
package appstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/awa/go-iap/appstore"
	"go.uber.org/zap"

	"github.com/bivex/storebridge/billing"
)

// Credential keys understood by the registry factory.
const (
	CredentialSharedSecret = "shared_secret"
	CredentialReceiptData  = "receipt_data"
)

// ErrNoReceipt reports an entitlement query without a session receipt.
var ErrNoReceipt = errors.New("no session receipt: supply one at construction or complete a purchase first")

func init() {
	billing.Register(billing.PlatformAppStore, func(cfg billing.Config) (billing.Adapter, error) {
		return New(cfg), nil
	})
}

// Adapter fronts the App Store for one device session. The go-iap client is
// the session handle; the receipt data is the session's entitlement record.
type Adapter struct {
	billing.Unsupported

	sharedSecret string
	logger       *zap.Logger

	service     Service
	receiptData string
}

// New builds the adapter from registry configuration. The receipt credential
// is optional; without it GetPurchases needs a prior Purchase to seed the
// session.
func New(cfg billing.Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		sharedSecret: cfg.Credential(CredentialSharedSecret),
		logger:       logger.With(zap.String("component", "appstore")),
		receiptData:  cfg.Credential(CredentialReceiptData),
	}
}

// NewWithService builds the adapter over an existing verification binding,
// already connected. Used by tests.
func NewWithService(service Service, receiptData string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		logger:      logger.With(zap.String("component", "appstore")),
		service:     service,
		receiptData: receiptData,
	}
}

func (a *Adapter) Platform() billing.Platform {
	return billing.PlatformAppStore
}

// Connect builds the verification client and probes the store. A probe with
// no receipt still elicits a store verdict (21002), which proves
// reachability; only a transport failure reports false.
func (a *Adapter) Connect(ctx context.Context) bool {
	if a.service == nil {
		a.service = NewService(a.sharedSecret)
	}
	if _, err := a.service.VerifyReceipt(ctx, a.receiptData); err != nil {
		a.logger.Warn("billing service unreachable", zap.Error(err))
		return false
	}
	return true
}

// Disconnect releases the session and its receipt. Safe to repeat.
func (a *Adapter) Disconnect(ctx context.Context) {
	a.service = nil
	a.receiptData = ""
}

// GetPurchases decodes the session receipt and maps each entitlement
// independently: canceled transactions are canceled, lapsed subscriptions
// are unknown (lapsed is not the same as denied), everything else the store
// attests is purchased. Only the newest record per product is reported.
func (a *Adapter) GetPurchases(ctx context.Context, itemType billing.ItemType, verify billing.Verifier) ([]billing.Purchase, error) {
	if a.service == nil {
		return nil, billing.ErrNotConnected
	}
	if a.receiptData == "" {
		return nil, ErrNoReceipt
	}

	resp, err := a.service.VerifyReceipt(ctx, a.receiptData)
	if err != nil {
		return nil, err
	}
	if resp.Status != statusOK && resp.Status != statusSubscriptionExpired {
		state, reason := mapReceiptStatus(resp.Status)
		return nil, &billing.PurchaseError{
			Platform: billing.PlatformAppStore,
			Op:       "get_purchases",
			Code:     reason,
			Msg:      "receipt not usable for entitlement query: " + string(state),
		}
	}

	purchases := make([]billing.Purchase, 0)
	for _, entry := range latestPerProduct(receiptEntries(resp)) {
		if !matchesItemType(entry, itemType) {
			continue
		}
		purchases = append(purchases, mapEntry(entry))
	}

	a.logger.Debug("entitlement query",
		zap.Int("returned", len(purchases)),
		zap.String("item_type", itemType.String()),
	)
	return billing.Filter(ctx, verify, purchases), nil
}

// Purchase finalizes the transaction attested by the receipt in req.Payload:
// the on-device flow already ran, and the store's verdict on the receipt is
// the native result this adapter maps. A valid receipt also becomes the new
// session receipt.
func (a *Adapter) Purchase(ctx context.Context, req billing.Request) (billing.Purchase, error) {
	if a.service == nil {
		return billing.Purchase{}, billing.ErrNotConnected
	}
	if req.Payload == "" {
		return billing.Purchase{}, &billing.PurchaseError{
			Platform: billing.PlatformAppStore,
			Op:       "purchase",
			Msg:      "transaction receipt is required in the request payload",
		}
	}

	purchase := billing.Purchase{ProductID: req.ProductID}

	resp, err := a.service.VerifyReceipt(ctx, req.Payload)
	if err != nil {
		purchase.State = billing.StateUnknown
		purchase.StateReason = err.Error()
		return billing.Screen(ctx, req.Verifier, purchase), nil
	}

	if resp.Status != statusOK {
		purchase.State, purchase.StateReason = mapReceiptStatus(resp.Status)
		return billing.Screen(ctx, req.Verifier, purchase), nil
	}

	entry, found := matchProduct(receiptEntries(resp), req.ProductID)
	if !found {
		purchase.State = billing.StateFailed
		purchase.StateReason = "product not present in receipt"
		return billing.Screen(ctx, req.Verifier, purchase), nil
	}

	purchase = mapEntry(entry)
	if purchase.State == billing.StatePurchased &&
		req.ItemType == billing.ItemTypeInAppPurchase &&
		entry.OriginalTransactionID != "" &&
		string(entry.OriginalTransactionID) != entry.TransactionID {
		// A durable re-delivered under a fresh transaction id is the store
		// restoring prior ownership, not a new charge.
		purchase.State = billing.StateRestored
		purchase.StateReason = "re-delivery of original transaction " + string(entry.OriginalTransactionID)
	}

	a.receiptData = req.Payload
	if resp.LatestReceipt != "" {
		a.receiptData = resp.LatestReceipt
	}

	a.logger.Info("purchase finalized",
		zap.String("product_id", req.ProductID),
		zap.String("state", purchase.State.String()),
	)
	return billing.Screen(ctx, req.Verifier, purchase), nil
}

// receiptEntries prefers the decoded latest receipt info, falling back to
// the in-app entries of the receipt body.
func receiptEntries(resp *appstore.IAPResponse) []appstore.InApp {
	if len(resp.LatestReceiptInfo) > 0 {
		return resp.LatestReceiptInfo
	}
	return resp.Receipt.InApp
}

// matchesItemType tells subscriptions from durables by the presence of an
// expiration: only auto-renewable entries carry one.
func matchesItemType(entry appstore.InApp, itemType billing.ItemType) bool {
	if itemType == billing.ItemTypeSubscription {
		return entry.ExpiresDate.ExpiresDateMS != ""
	}
	return entry.ExpiresDate.ExpiresDateMS == ""
}

func mapEntry(entry appstore.InApp) billing.Purchase {
	purchase := billing.Purchase{
		ProductID:     entry.ProductID,
		PurchaseToken: entry.TransactionID,
		ExpiresAt:     parseMillis(entry.ExpiresDate.ExpiresDateMS),
	}

	switch {
	case entry.CancellationDate.CancellationDateMS != "":
		purchase.State = billing.StateCanceled
		purchase.StateReason = "canceled by the store"
	case purchase.ExpiresAt != nil && purchase.ExpiresAt.Before(time.Now()):
		purchase.State = billing.StateUnknown
		purchase.StateReason = "subscription lapsed"
	default:
		purchase.State = billing.StatePurchased
	}
	return purchase
}

// latestPerProduct keeps the newest entry for each product id, by purchase
// date. Receipts carry full renewal history; callers want current standing.
func latestPerProduct(entries []appstore.InApp) []appstore.InApp {
	latest := make(map[string]int)
	out := make([]appstore.InApp, 0, len(entries))
	for _, entry := range entries {
		at, seen := latest[entry.ProductID]
		if !seen {
			latest[entry.ProductID] = len(out)
			out = append(out, entry)
			continue
		}
		if millis(entry.PurchaseDate.PurchaseDateMS) >= millis(out[at].PurchaseDate.PurchaseDateMS) {
			out[at] = entry
		}
	}
	return out
}

func matchProduct(entries []appstore.InApp, productID string) (appstore.InApp, bool) {
	var match appstore.InApp
	found := false
	for _, entry := range entries {
		if entry.ProductID != productID {
			continue
		}
		if !found || millis(entry.PurchaseDate.PurchaseDateMS) >= millis(match.PurchaseDate.PurchaseDateMS) {
			match = entry
			found = true
		}
	}
	return match, found
}

func millis(ms string) int64 {
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseMillis(ms string) *time.Time {
	v := millis(ms)
	if v == 0 {
		return nil
	}
	t := time.UnixMilli(v).UTC()
	return &t
}
