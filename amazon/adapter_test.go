package amazon_test

import (
	"context"
	"errors"
	"net"
	"testing"

	iap "github.com/awa/go-iap/amazon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/storebridge/amazon"
	"github.com/bivex/storebridge/billing"
)

type fakeService struct {
	resp iap.IAPResponse
	err  error
}

func (f *fakeService) Verify(ctx context.Context, userID, receiptID string) (iap.IAPResponse, error) {
	return f.resp, f.err
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func request() billing.Request {
	return billing.Request{
		ProductID:     "com.bivex.sword",
		ItemType:      billing.ItemTypeInAppPurchase,
		Payload:       "amzn1.account.user",
		PurchaseToken: "receipt-1",
	}
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("verified receipt yields purchased", func(t *testing.T) {
		service := &fakeService{resp: iap.IAPResponse{ProductID: "com.bivex.sword", ReceiptID: "receipt-1"}}
		p, err := amazon.NewWithService(service, nil).Purchase(ctx, request())
		require.NoError(t, err)
		assert.Equal(t, billing.StatePurchased, p.State)
		assert.Equal(t, "receipt-1", p.PurchaseToken)
	})

	t.Run("canceled receipt yields canceled", func(t *testing.T) {
		service := &fakeService{resp: iap.IAPResponse{ProductID: "com.bivex.sword", CancelDate: 1700000000000}}
		p, err := amazon.NewWithService(service, nil).Purchase(ctx, request())
		require.NoError(t, err)
		assert.Equal(t, billing.StateCanceled, p.State)
	})

	t.Run("receipt for a different product is a definitive failure", func(t *testing.T) {
		service := &fakeService{resp: iap.IAPResponse{ProductID: "com.bivex.shield"}}
		p, err := amazon.NewWithService(service, nil).Purchase(ctx, request())
		require.NoError(t, err)
		assert.Equal(t, billing.StateFailed, p.State)
	})

	t.Run("verification error is unknown data with the diagnostic kept", func(t *testing.T) {
		service := &fakeService{err: errors.New("400: invalid receiptId")}
		p, err := amazon.NewWithService(service, nil).Purchase(ctx, request())
		require.NoError(t, err)
		assert.Equal(t, billing.StateUnknown, p.State)
		assert.Contains(t, p.StateReason, "invalid receiptId")
	})

	t.Run("subscription renewal date becomes the expiration", func(t *testing.T) {
		service := &fakeService{resp: iap.IAPResponse{ProductID: "com.bivex.sword", RenewalDate: 1893456000000}}
		p, err := amazon.NewWithService(service, nil).Purchase(ctx, request())
		require.NoError(t, err)
		require.NotNil(t, p.ExpiresAt)
	})

	t.Run("missing ids fail the invocation itself", func(t *testing.T) {
		_, err := amazon.NewWithService(&fakeService{}, nil).Purchase(ctx, billing.Request{ProductID: "x"})
		var perr *billing.PurchaseError
		assert.ErrorAs(t, err, &perr)
	})
}

func TestUnsupportedOperations(t *testing.T) {
	ctx := context.Background()
	adapter := amazon.NewWithService(&fakeService{}, nil)

	_, err := adapter.GetProductInfo(ctx, billing.ItemTypeInAppPurchase, []string{"sku"})
	assert.ErrorIs(t, err, billing.ErrNotSupported)

	_, err = adapter.GetPurchases(ctx, billing.ItemTypeInAppPurchase, nil)
	assert.ErrorIs(t, err, billing.ErrNotSupported)

	p, err := adapter.Consume(ctx, billing.Request{ProductID: "sku", PurchaseToken: "receipt-1"})
	assert.ErrorIs(t, err, billing.ErrNotSupported)
	assert.Equal(t, billing.Purchase{}, p)
}

func TestConnectionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("store rejection of the probe still proves reachability", func(t *testing.T) {
		adapter := amazon.NewWithService(&fakeService{err: errors.New("404: receipt not found")}, nil)
		assert.True(t, adapter.Connect(ctx))
	})

	t.Run("transport failure reports false", func(t *testing.T) {
		adapter := amazon.NewWithService(&fakeService{err: timeoutError{}}, nil)
		assert.False(t, adapter.Connect(ctx))
	})

	t.Run("disconnect twice is safe", func(t *testing.T) {
		adapter := amazon.NewWithService(&fakeService{}, nil)
		adapter.Disconnect(ctx)
		adapter.Disconnect(ctx)
		_, err := adapter.Purchase(ctx, request())
		assert.ErrorIs(t, err, billing.ErrNotConnected)
	})
}
