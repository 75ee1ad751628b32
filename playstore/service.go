package playstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrTokenNotRecognized reports a purchase token the store has no record of.
var ErrTokenNotRecognized = errors.New("purchase token not recognized by the store")

// Service is the slice of the Android Publisher API the adapter consumes.
// Lookup methods return (nil, nil) for skus the store does not recognize;
// only transport and server failures surface as errors.
type Service interface {
	Ping(ctx context.Context, packageName string) error
	InAppProduct(ctx context.Context, packageName, sku string) (*androidpublisher.InAppProduct, error)
	ProductPurchase(ctx context.Context, packageName, sku, token string) (*androidpublisher.ProductPurchase, error)
	SubscriptionPurchase(ctx context.Context, packageName, sku, token string) (*androidpublisher.SubscriptionPurchase, error)
	ConsumeProduct(ctx context.Context, packageName, sku, token string) error
}

// googleService is the production binding over the generated Android
// Publisher client, authenticated with a service account key.
type googleService struct {
	svc *androidpublisher.Service
}

// NewService builds the production Android Publisher binding from a service
// account key, the same credential the Play Console issues for server access.
// ctx scopes the session's token refreshes; pass one that outlives the
// session, not a per-request context.
func NewService(ctx context.Context, serviceAccountJSON []byte) (Service, error) {
	creds, err := google.CredentialsFromJSON(ctx, serviceAccountJSON, androidpublisher.AndroidpublisherScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}

	svc, err := androidpublisher.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Android Publisher service: %w", err)
	}

	return &googleService{svc: svc}, nil
}

func (g *googleService) Ping(ctx context.Context, packageName string) error {
	_, err := g.svc.Inappproducts.List(packageName).MaxResults(1).Context(ctx).Do()
	return err
}

func (g *googleService) InAppProduct(ctx context.Context, packageName, sku string) (*androidpublisher.InAppProduct, error) {
	product, err := g.svc.Inappproducts.Get(packageName, sku).Context(ctx).Do()
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query in-app product %q: %w", sku, err)
	}
	return product, nil
}

func (g *googleService) ProductPurchase(ctx context.Context, packageName, sku, token string) (*androidpublisher.ProductPurchase, error) {
	purchase, err := g.svc.Purchases.Products.Get(packageName, sku, token).Context(ctx).Do()
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product purchase %q: %w", sku, err)
	}
	return purchase, nil
}

func (g *googleService) SubscriptionPurchase(ctx context.Context, packageName, sku, token string) (*androidpublisher.SubscriptionPurchase, error) {
	purchase, err := g.svc.Purchases.Subscriptions.Get(packageName, sku, token).Context(ctx).Do()
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscription purchase %q: %w", sku, err)
	}
	return purchase, nil
}

func (g *googleService) ConsumeProduct(ctx context.Context, packageName, sku, token string) error {
	err := g.svc.Purchases.Products.Consume(packageName, sku, token).Context(ctx).Do()
	if isNotFound(err) {
		return ErrTokenNotRecognized
	}
	if err != nil {
		return fmt.Errorf("failed to consume product %q: %w", sku, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
