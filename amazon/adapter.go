// Package amazon implements the Amazon Appstore billing adapter over the
// Receipt Verification Service (RVS). RVS answers for one receipt at a time:
// Purchase finalizes the transaction a device-issued receipt id attests.
// There is no server-side catalog, purchase enumeration, or consumption
// primitive, so those operations report ErrNotSupported.
package amazon

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/awa/go-iap/amazon"
	"go.uber.org/zap"

	"github.com/bivex/storebridge/billing"
)

// Credential keys understood by the registry factory.
const (
	// CredentialSharedSecret is the RVS developer secret from the Amazon
	// developer console.
	CredentialSharedSecret = "shared_secret"
)

func init() {
	billing.Register(billing.PlatformAmazon, func(cfg billing.Config) (billing.Adapter, error) {
		return New(cfg), nil
	})
}

// Service is the slice of RVS the adapter consumes. RVS reports invalid
// receipts and transport failures alike as errors; the design rule for
// ambiguity therefore maps every verification error to StateUnknown with the
// native diagnostic preserved, never to StateFailed.
type Service interface {
	Verify(ctx context.Context, userID, receiptID string) (amazon.IAPResponse, error)
}

type rvsService struct {
	client *amazon.Client
}

// NewService builds the production RVS binding. The go-iap client targets
// the live RVS endpoint; the sandbox RVS is a local companion process it
// selects through its own environment switch.
func NewService(secret string) Service {
	return &rvsService{client: amazon.New(secret)}
}

func (s *rvsService) Verify(ctx context.Context, userID, receiptID string) (amazon.IAPResponse, error) {
	return s.client.Verify(ctx, userID, receiptID)
}

// Adapter fronts the Amazon Appstore.
type Adapter struct {
	billing.Unsupported

	secret  string
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
		secret: cfg.Credential(CredentialSharedSecret),
		logger: logger.With(zap.String("component", "amazon")),
	}
}

// NewWithService builds the adapter over an existing RVS binding, already
// connected. Used by tests.
func NewWithService(service Service, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		logger:  logger.With(zap.String("component", "amazon")),
		service: service,
	}
}

func (a *Adapter) Platform() billing.Platform {
	return billing.PlatformAmazon
}

// Connect builds the RVS client and probes it. RVS rejects the probe ids,
// but a rejection is still an answer; only a transport-level failure reports
// false.
func (a *Adapter) Connect(ctx context.Context) bool {
	if a.service == nil {
		a.service = NewService(a.secret)
	}
	if _, err := a.service.Verify(ctx, "connectivity-probe", "connectivity-probe"); err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) {
			a.logger.Warn("billing service unreachable", zap.Error(err))
			return false
		}
	}
	return true
}

// Disconnect releases the session. Safe to repeat.
func (a *Adapter) Disconnect(ctx context.Context) {
	a.service = nil
}

// Purchase finalizes the transaction attested by a device receipt:
// req.Payload carries the Amazon user id, req.PurchaseToken the receipt id.
func (a *Adapter) Purchase(ctx context.Context, req billing.Request) (billing.Purchase, error) {
	if a.service == nil {
		return billing.Purchase{}, billing.ErrNotConnected
	}
	if req.Payload == "" || req.PurchaseToken == "" {
		return billing.Purchase{}, &billing.PurchaseError{
			Platform: billing.PlatformAmazon,
			Op:       "purchase",
			Msg:      "amazon user id (payload) and receipt id (purchase token) are required",
		}
	}

	purchase := billing.Purchase{
		ProductID:     req.ProductID,
		PurchaseToken: req.PurchaseToken,
	}

	resp, err := a.service.Verify(ctx, req.Payload, req.PurchaseToken)
	if err != nil {
		purchase.State = billing.StateUnknown
		purchase.StateReason = err.Error()
		return billing.Screen(ctx, req.Verifier, purchase), nil
	}

	if resp.ProductID != "" && resp.ProductID != req.ProductID {
		purchase.State = billing.StateFailed
		purchase.StateReason = "receipt belongs to product " + resp.ProductID
		return billing.Screen(ctx, req.Verifier, purchase), nil
	}

	if resp.RenewalDate > 0 {
		renewal := time.UnixMilli(resp.RenewalDate).UTC()
		purchase.ExpiresAt = &renewal
	}
	if resp.CancelDate > 0 {
		purchase.State = billing.StateCanceled
		purchase.StateReason = "receipt canceled by the store"
	} else {
		purchase.State = billing.StatePurchased
	}

	a.logger.Info("purchase finalized",
		zap.String("product_id", req.ProductID),
		zap.String("state", purchase.State.String()),
	)
	return billing.Screen(ctx, req.Verifier, purchase), nil
}
