// Package playstore implements the Google Play billing adapter over the
// Android Publisher API: catalog lookups, purchase-token settlement, and
// consumption. Play has no server-side enumeration of a user's purchases, so
// GetPurchases re-checks tokens supplied by a caller-provided TokenSource.
package playstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/androidpublisher/v3"

	"github.com/bivex/storebridge/billing"
)

// Credential keys understood by the registry factory.
const (
	CredentialPackageName        = "package_name"
	CredentialServiceAccountJSON = "service_account_json"
)

func init() {
	billing.Register(billing.PlatformGooglePlay, func(cfg billing.Config) (billing.Adapter, error) {
		return New(cfg, nil)
	})
}

// TokenSource supplies the purchase tokens whose entitlements GetPurchases
// re-checks against the store, typically relayed from the on-device billing
// client. Without one the adapter reports GetPurchases as unsupported.
type TokenSource interface {
	Tokens(ctx context.Context, itemType billing.ItemType) ([]Token, error)
}

// Token pairs a product id with the purchase token the store issued for it.
type Token struct {
	ProductID     string
	PurchaseToken string
}

// Adapter fronts Google Play. The Service handle is the native session:
// acquired by Connect, released by Disconnect.
type Adapter struct {
	packageName string
	credentials []byte
	tokens      TokenSource
	logger      *zap.Logger

	service Service
}

// New builds the adapter from registry configuration. The sandbox flag has
// no server-side equivalent on Play — license testers are configured in the
// Play Console — so it is accepted and ignored.
func New(cfg billing.Config, tokens TokenSource) (*Adapter, error) {
	packageName := cfg.Credential(CredentialPackageName)
	key := cfg.Credential(CredentialServiceAccountJSON)
	if packageName == "" || key == "" {
		return nil, fmt.Errorf("playstore: credentials %q and %q are required", CredentialPackageName, CredentialServiceAccountJSON)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		packageName: packageName,
		credentials: []byte(key),
		tokens:      tokens,
		logger:      logger.With(zap.String("component", "playstore")),
	}, nil
}

// NewWithService builds the adapter over an existing native binding, already
// connected. Used by tests and by callers that manage their own client.
func NewWithService(packageName string, service Service, tokens TokenSource, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		packageName: packageName,
		tokens:      tokens,
		logger:      logger.With(zap.String("component", "playstore")),
		service:     service,
	}
}

func (a *Adapter) Platform() billing.Platform {
	return billing.PlatformGooglePlay
}

// Connect acquires the Android Publisher session and probes it with a
// catalog request. Unreachable or unauthorized comes back as false, never an
// error. ctx bounds only the probe: the session outlives this call, so its
// token client is built on a background context, not the caller's.
func (a *Adapter) Connect(ctx context.Context) bool {
	if a.service == nil {
		if len(a.credentials) == 0 {
			a.logger.Warn("cannot connect without service account credentials")
			return false
		}
		service, err := NewService(context.Background(), a.credentials)
		if err != nil {
			a.logger.Warn("failed to create Android Publisher session", zap.Error(err))
			return false
		}
		a.service = service
	}

	if err := a.service.Ping(ctx, a.packageName); err != nil {
		a.logger.Warn("billing service unreachable", zap.Error(err))
		return false
	}
	return true
}

// Disconnect releases the session. Safe without a prior Connect and safe to
// repeat.
func (a *Adapter) Disconnect(ctx context.Context) {
	a.service = nil
}

func (a *Adapter) GetProductInfo(ctx context.Context, itemType billing.ItemType, productIDs []string) ([]billing.Product, error) {
	if len(productIDs) == 0 {
		return nil, billing.ErrNoProductIDs
	}
	if a.service == nil {
		return nil, billing.ErrNotConnected
	}

	products := make([]billing.Product, 0, len(productIDs))
	for _, id := range productIDs {
		native, err := a.service.InAppProduct(ctx, a.packageName, id)
		if err != nil {
			return nil, err
		}
		if native == nil {
			// Unrecognized sku: omitted, not errored.
			a.logger.Debug("sku not in catalog", zap.String("sku", id))
			continue
		}
		if !matchesItemType(native.PurchaseType, itemType) {
			continue
		}
		products = append(products, mapProduct(native))
	}

	a.logger.Debug("catalog query",
		zap.Int("requested", len(productIDs)),
		zap.Int("returned", len(products)),
	)
	return products, nil
}

func (a *Adapter) GetPurchases(ctx context.Context, itemType billing.ItemType, verify billing.Verifier) ([]billing.Purchase, error) {
	if a.service == nil {
		return nil, billing.ErrNotConnected
	}
	if a.tokens == nil {
		return nil, fmt.Errorf("%w: Play exposes no purchase enumeration; configure a TokenSource", billing.ErrNotSupported)
	}

	tokens, err := a.tokens.Tokens(ctx, itemType)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase tokens: %w", err)
	}

	purchases := make([]billing.Purchase, 0, len(tokens))
	for _, token := range tokens {
		purchases = append(purchases, a.lookup(ctx, itemType, token.ProductID, token.PurchaseToken, ""))
	}
	return billing.Filter(ctx, verify, purchases), nil
}

// Purchase settles the transaction identified by req.PurchaseToken: the flow
// itself ran on-device, and the store's record of the token is the native
// result this adapter maps. req.Payload, when set, must match the developer
// payload recorded with the purchase.
func (a *Adapter) Purchase(ctx context.Context, req billing.Request) (billing.Purchase, error) {
	if a.service == nil {
		return billing.Purchase{}, billing.ErrNotConnected
	}
	if req.PurchaseToken == "" {
		return billing.Purchase{}, &billing.PurchaseError{
			Platform: billing.PlatformGooglePlay,
			Op:       "purchase",
			Msg:      "purchase token is required",
		}
	}

	purchase := a.lookup(ctx, req.ItemType, req.ProductID, req.PurchaseToken, req.Payload)
	a.logger.Info("purchase settled",
		zap.String("product_id", req.ProductID),
		zap.String("state", purchase.State.String()),
		zap.String("reason", purchase.StateReason),
	)
	return billing.Screen(ctx, req.Verifier, purchase), nil
}

// Consume marks the consumable behind req.PurchaseToken as spent so it can
// be purchased again.
func (a *Adapter) Consume(ctx context.Context, req billing.Request) (billing.Purchase, error) {
	if a.service == nil {
		return billing.Purchase{}, billing.ErrNotConnected
	}
	if req.PurchaseToken == "" {
		return billing.Purchase{}, &billing.PurchaseError{
			Platform: billing.PlatformGooglePlay,
			Op:       "consume",
			Msg:      "purchase token is required",
		}
	}

	purchase := billing.Purchase{
		ProductID:     req.ProductID,
		PurchaseToken: req.PurchaseToken,
	}
	err := a.service.ConsumeProduct(ctx, a.packageName, req.ProductID, req.PurchaseToken)
	switch {
	case errors.Is(err, ErrTokenNotRecognized):
		purchase.State = billing.StateFailed
		purchase.StateReason = "purchase token not recognized"
	case err != nil:
		// Infrastructure ambiguity: the consumption may or may not have
		// registered. Reported as data, not an error.
		purchase.State = billing.StateUnknown
		purchase.StateReason = err.Error()
	default:
		purchase.State = billing.StatePurchased
		purchase.StateReason = "consumed"
		a.logger.Info("consumable spent", zap.String("product_id", req.ProductID))
	}
	return billing.Screen(ctx, req.Verifier, purchase), nil
}

// lookup fetches the store's record of one purchase token and maps it
// through the status tables.
func (a *Adapter) lookup(ctx context.Context, itemType billing.ItemType, productID, token, payload string) billing.Purchase {
	purchase := billing.Purchase{ProductID: productID, PurchaseToken: token}

	if itemType == billing.ItemTypeSubscription {
		native, err := a.service.SubscriptionPurchase(ctx, a.packageName, productID, token)
		if err != nil {
			purchase.State = billing.StateUnknown
			purchase.StateReason = err.Error()
			return purchase
		}
		if native == nil {
			purchase.State = billing.StateFailed
			purchase.StateReason = "purchase token not recognized"
			return purchase
		}
		if payload != "" && native.DeveloperPayload != payload {
			purchase.State = billing.StateFailed
			purchase.StateReason = "developer payload mismatch"
			return purchase
		}
		if native.ExpiryTimeMillis > 0 {
			expires := time.UnixMilli(native.ExpiryTimeMillis).UTC()
			purchase.ExpiresAt = &expires
		}
		if native.UserCancellationTimeMillis > 0 {
			purchase.State = billing.StateCanceled
			purchase.StateReason = "canceled by user"
			return purchase
		}
		purchase.State, purchase.StateReason = mapPaymentState(native.PaymentState)
		return purchase
	}

	native, err := a.service.ProductPurchase(ctx, a.packageName, productID, token)
	if err != nil {
		purchase.State = billing.StateUnknown
		purchase.StateReason = err.Error()
		return purchase
	}
	if native == nil {
		purchase.State = billing.StateFailed
		purchase.StateReason = "purchase token not recognized"
		return purchase
	}
	if payload != "" && native.DeveloperPayload != payload {
		purchase.State = billing.StateFailed
		purchase.StateReason = "developer payload mismatch"
		return purchase
	}

	purchase.State, purchase.StateReason = mapProductState(native.PurchaseState)
	if purchase.State == billing.StatePurchased && native.AcknowledgementState == acknowledgementStateAcknowledged {
		// An already-acknowledged record means the entitlement was granted
		// earlier; no new charge occurred on this call.
		purchase.State = billing.StateRestored
		purchase.StateReason = "already acknowledged"
	}
	return purchase
}

func matchesItemType(purchaseType string, itemType billing.ItemType) bool {
	if itemType == billing.ItemTypeSubscription {
		return purchaseType == "subscription"
	}
	return purchaseType != "subscription"
}

// mapProduct assembles the normalized catalog record. The Publisher API
// reports prices in micros, not the display string the on-device client
// shows, so the micros amount is rendered as a plain decimal; the currency
// code is carried verbatim.
func mapProduct(native *androidpublisher.InAppProduct) billing.Product {
	product := billing.Product{ID: native.Sku}

	if listing, ok := native.Listings[native.DefaultLanguage]; ok {
		product.Name = listing.Title
		product.Description = listing.Description
	}
	if native.DefaultPrice != nil {
		product.CurrencyCode = native.DefaultPrice.Currency
		product.LocalizedPrice = formatMicros(native.DefaultPrice.PriceMicros)
	}
	return product
}

// formatMicros renders a micros amount ("4990000") as a decimal ("4.99").
func formatMicros(micros string) string {
	v, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return micros
	}
	return fmt.Sprintf("%d.%02d", v/1_000_000, (v%1_000_000)/10_000)
}
