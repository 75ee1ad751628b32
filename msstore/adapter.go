// Package msstore implements the Microsoft Store billing adapter over the
// collections and display catalog services. The Store models entitlements as
// one license container per app: a primary application license plus add-on
// licenses, which GetPurchases flattens in the store's own order. Purchases
// run entirely through the on-device Store client, so Purchase and Consume
// report ErrNotSupported here.
package msstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/bivex/storebridge/billing"
)

// Credential keys understood by the registry factory.
const (
	CredentialTenantID     = "tenant_id"
	CredentialClientID     = "client_id"
	CredentialClientSecret = "client_secret"

	// CredentialBeneficiary is the publisher user id the collections query
	// is scoped to, as relayed by the client app.
	CredentialBeneficiary = "beneficiary"
)

func init() {
	billing.Register(billing.PlatformMicrosoftStore, func(cfg billing.Config) (billing.Adapter, error) {
		return New(cfg), nil
	})
}

// Adapter fronts the Microsoft Store.
type Adapter struct {
	billing.Unsupported

	cfg     ClientConfig
	logger  *zap.Logger
	service Service
}

// New builds the adapter from registry configuration.
func New(cfg billing.Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg: ClientConfig{
			TenantID:     cfg.Credential(CredentialTenantID),
			ClientID:     cfg.Credential(CredentialClientID),
			ClientSecret: cfg.Credential(CredentialClientSecret),
			Beneficiary:  cfg.Credential(CredentialBeneficiary),
			Sandbox:      cfg.Sandbox,
		},
		logger: logger.With(zap.String("component", "msstore")),
	}
}

// NewWithService builds the adapter over an existing Store binding, already
// connected. Used by tests.
func NewWithService(service Service, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		logger:  logger.With(zap.String("component", "msstore")),
		service: service,
	}
}

func (a *Adapter) Platform() billing.Platform {
	return billing.PlatformMicrosoftStore
}

// Connect builds the Store client and queries the license container once.
// Unlike the receipt stores there is no cheap anonymous probe: the query
// needs a valid token and beneficiary, so any failure, auth or transport,
// reports false. The session client is not bound to ctx, which bounds only
// the probe.
func (a *Adapter) Connect(ctx context.Context) bool {
	if a.service == nil {
		a.service = NewClient(a.cfg)
	}
	if _, err := a.service.AppLicense(ctx); err != nil {
		a.logger.Warn("billing service unreachable", zap.Error(err))
		return false
	}
	return true
}

// Disconnect releases the session. Safe to repeat.
func (a *Adapter) Disconnect(ctx context.Context) {
	a.service = nil
}

// GetProductInfo looks the ids up in the display catalog and carries the
// service's price and currency fields through untouched; see CatalogProduct
// for how the production client renders the amount. The Store models
// subscriptions as recurring durables, so the durable kind answers the
// subscription query and consumable kinds answer the inapp query.
func (a *Adapter) GetProductInfo(ctx context.Context, itemType billing.ItemType, productIDs []string) ([]billing.Product, error) {
	if a.service == nil {
		return nil, billing.ErrNotConnected
	}
	if len(productIDs) == 0 {
		return nil, billing.ErrNoProductIDs
	}

	catalog, err := a.service.Products(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	products := make([]billing.Product, 0, len(catalog))
	for _, native := range catalog {
		if !kindMatches(native.Kind, itemType) {
			continue
		}
		products = append(products, billing.Product{
			ID:             native.StoreID,
			Name:           native.Title,
			Description:    native.Description,
			LocalizedPrice: native.FormattedPrice,
			CurrencyCode:   native.CurrencyCode,
		})
	}

	a.logger.Debug("product lookup",
		zap.Int("requested", len(productIDs)),
		zap.Int("returned", len(products)),
	)
	return products, nil
}

// GetPurchases queries the license container and flattens it: the primary
// app license first, then every add-on in the store's order. The container
// does not separate kinds, so both item types share the same view.
func (a *Adapter) GetPurchases(ctx context.Context, itemType billing.ItemType, verify billing.Verifier) ([]billing.Purchase, error) {
	if a.service == nil {
		return nil, billing.ErrNotConnected
	}

	license, err := a.service.AppLicense(ctx)
	if err != nil {
		return nil, err
	}

	set := billing.LicenseSet{
		App: billing.License{
			ProductID: license.StoreID,
			Active:    license.IsActive,
			ExpiresAt: license.ExpirationDate,
		},
	}
	for _, addOn := range license.AddOns {
		set.AddOns = append(set.AddOns, billing.License{
			ProductID: addOn.StoreID,
			Active:    addOn.IsActive,
			ExpiresAt: addOn.ExpirationDate,
			Token:     addOn.OfferToken,
		})
	}

	purchases := set.Purchases()
	a.logger.Debug("entitlement query",
		zap.Int("add_ons", len(set.AddOns)),
		zap.String("item_type", itemType.String()),
	)
	return billing.Filter(ctx, verify, purchases), nil
}

// kindMatches folds the Store's product kinds onto the two query kinds.
func kindMatches(kind string, itemType billing.ItemType) bool {
	consumable := kind == "Consumable" || kind == "UnmanagedConsumable"
	if itemType == billing.ItemTypeInAppPurchase {
		return consumable
	}
	return !consumable && kind != productKindApplication
}
