package appstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	iap "github.com/awa/go-iap/appstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/storebridge/appstore"
	"github.com/bivex/storebridge/billing"
)

type fakeService struct {
	responses map[string]*iap.IAPResponse
	err       error
	calls     int
}

func (f *fakeService) VerifyReceipt(ctx context.Context, receiptData string) (*iap.IAPResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[receiptData]; ok {
		return resp, nil
	}
	return &iap.IAPResponse{Status: 21002}, nil
}

func ms(t time.Time) string {
	return fmt.Sprintf("%d", t.UnixMilli())
}

func entry(productID, txID, origTxID string, expires, canceled string) iap.InApp {
	e := iap.InApp{
		ProductID:             productID,
		TransactionID:         txID,
		OriginalTransactionID: iap.NumericString(origTxID),
	}
	e.PurchaseDate.PurchaseDateMS = ms(time.Now().Add(-time.Hour))
	e.ExpiresDate.ExpiresDateMS = expires
	e.CancellationDate.CancellationDateMS = canceled
	return e
}

func TestReceiptStatusMapping(t *testing.T) {
	ctx := context.Background()

	// The table must be total and deterministic: every listed code maps to
	// exactly one state, definitive rejections to failed, server-side
	// ambiguity to unknown, and unlisted codes to unknown.
	cases := map[int]billing.PurchaseState{
		21000: billing.StateFailed,
		21002: billing.StateFailed,
		21003: billing.StateFailed,
		21004: billing.StateFailed,
		21005: billing.StateUnknown,
		21006: billing.StateUnknown,
		21007: billing.StateUnknown,
		21008: billing.StateUnknown,
		21009: billing.StateUnknown,
		21010: billing.StateFailed,
		21099: billing.StateUnknown, // not in the table
	}

	for status, want := range cases {
		t.Run(fmt.Sprintf("status %d", status), func(t *testing.T) {
			service := &fakeService{responses: map[string]*iap.IAPResponse{
				"receipt": {Status: status},
			}}
			adapter := appstore.NewWithService(service, "", nil)

			p, err := adapter.Purchase(ctx, billing.Request{
				ProductID: "premium", ItemType: billing.ItemTypeInAppPurchase, Payload: "receipt",
			})
			require.NoError(t, err)
			assert.Equal(t, want, p.State)
			assert.Contains(t, p.StateReason, fmt.Sprintf("%d", status))
		})
	}
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()
	future := ms(time.Now().Add(30 * 24 * time.Hour))

	t.Run("valid receipt with the product yields purchased", func(t *testing.T) {
		service := &fakeService{responses: map[string]*iap.IAPResponse{
			"receipt": {Status: 0, Receipt: iap.Receipt{InApp: []iap.InApp{
				entry("premium", "tx-1", "tx-1", "", ""),
			}}},
		}}
		adapter := appstore.NewWithService(service, "", nil)

		p, err := adapter.Purchase(ctx, billing.Request{
			ProductID: "premium", ItemType: billing.ItemTypeInAppPurchase, Payload: "receipt",
		})
		require.NoError(t, err)
		assert.Equal(t, billing.StatePurchased, p.State)
		assert.Equal(t, "tx-1", p.PurchaseToken)
	})

	t.Run("durable re-delivered under a new transaction id is restored", func(t *testing.T) {
		service := &fakeService{responses: map[string]*iap.IAPResponse{
			"receipt": {Status: 0, Receipt: iap.Receipt{InApp: []iap.InApp{
				entry("premium", "tx-9", "tx-1", "", ""),
			}}},
		}}
		adapter := appstore.NewWithService(service, "", nil)

		p, err := adapter.Purchase(ctx, billing.Request{
			ProductID: "premium", ItemType: billing.ItemTypeInAppPurchase, Payload: "receipt",
		})
		require.NoError(t, err)
		assert.Equal(t, billing.StateRestored, p.State)
	})

	t.Run("product absent from the receipt is a definitive failure", func(t *testing.T) {
		service := &fakeService{responses: map[string]*iap.IAPResponse{
			"receipt": {Status: 0, Receipt: iap.Receipt{InApp: []iap.InApp{
				entry("other", "tx-1", "tx-1", "", ""),
			}}},
		}}
		adapter := appstore.NewWithService(service, "", nil)

		p, err := adapter.Purchase(ctx, billing.Request{
			ProductID: "premium", ItemType: billing.ItemTypeInAppPurchase, Payload: "receipt",
		})
		require.NoError(t, err)
		assert.Equal(t, billing.StateFailed, p.State)
	})

	t.Run("canceled transaction maps to canceled", func(t *testing.T) {
		service := &fakeService{responses: map[string]*iap.IAPResponse{
			"receipt": {Status: 0, LatestReceiptInfo: []iap.InApp{
				entry("premium.monthly", "tx-1", "tx-1", future, ms(time.Now())),
			}},
		}}
		adapter := appstore.NewWithService(service, "", nil)

		p, err := adapter.Purchase(ctx, billing.Request{
			ProductID: "premium.monthly", ItemType: billing.ItemTypeSubscription, Payload: "receipt",
		})
		require.NoError(t, err)
		assert.Equal(t, billing.StateCanceled, p.State)
	})

	t.Run("transport failure is unknown data, not an error", func(t *testing.T) {
		service := &fakeService{err: errors.New("dial tcp: timeout")}
		adapter := appstore.NewWithService(service, "", nil)

		p, err := adapter.Purchase(ctx, billing.Request{
			ProductID: "premium", ItemType: billing.ItemTypeInAppPurchase, Payload: "receipt",
		})
		require.NoError(t, err)
		assert.Equal(t, billing.StateUnknown, p.State)
	})

	t.Run("missing payload fails the invocation itself", func(t *testing.T) {
		adapter := appstore.NewWithService(&fakeService{}, "", nil)
		_, err := adapter.Purchase(ctx, billing.Request{ProductID: "premium"})
		var perr *billing.PurchaseError
		assert.ErrorAs(t, err, &perr)
	})
}

func TestGetPurchases(t *testing.T) {
	ctx := context.Background()
	future := ms(time.Now().Add(30 * 24 * time.Hour))
	past := ms(time.Now().Add(-24 * time.Hour))

	sessionResponse := &iap.IAPResponse{Status: 0, LatestReceiptInfo: []iap.InApp{
		entry("premium.monthly", "tx-1", "tx-1", future, ""),
		entry("premium.yearly", "tx-2", "tx-2", past, ""),
		entry("remove.ads", "tx-3", "tx-3", "", ""),
	}}

	t.Run("subscriptions map independently: active purchased, lapsed unknown", func(t *testing.T) {
		service := &fakeService{responses: map[string]*iap.IAPResponse{"session": sessionResponse}}
		adapter := appstore.NewWithService(service, "session", nil)

		purchases, err := adapter.GetPurchases(ctx, billing.ItemTypeSubscription, nil)
		require.NoError(t, err)
		require.Len(t, purchases, 2)

		byProduct := map[string]billing.Purchase{}
		for _, p := range purchases {
			byProduct[p.ProductID] = p
		}
		assert.Equal(t, billing.StatePurchased, byProduct["premium.monthly"].State)
		assert.Equal(t, billing.StateUnknown, byProduct["premium.yearly"].State)
		assert.Equal(t, "subscription lapsed", byProduct["premium.yearly"].StateReason)
	})

	t.Run("durables are listed under the inapp kind only", func(t *testing.T) {
		service := &fakeService{responses: map[string]*iap.IAPResponse{"session": sessionResponse}}
		adapter := appstore.NewWithService(service, "session", nil)

		purchases, err := adapter.GetPurchases(ctx, billing.ItemTypeInAppPurchase, nil)
		require.NoError(t, err)
		require.Len(t, purchases, 1)
		assert.Equal(t, "remove.ads", purchases[0].ProductID)
	})

	t.Run("verifier rejection excludes the purchase", func(t *testing.T) {
		service := &fakeService{responses: map[string]*iap.IAPResponse{"session": sessionResponse}}
		adapter := appstore.NewWithService(service, "session", nil)

		reject := billing.VerifierFunc(func(ctx context.Context, p billing.Purchase) (bool, error) {
			return p.ProductID != "premium.monthly", nil
		})
		purchases, err := adapter.GetPurchases(ctx, billing.ItemTypeSubscription, reject)
		require.NoError(t, err)
		require.Len(t, purchases, 1)
		assert.Equal(t, "premium.yearly", purchases[0].ProductID)
	})

	t.Run("renewal history collapses to the newest record per product", func(t *testing.T) {
		old := entry("premium.monthly", "tx-1", "tx-1", past, "")
		old.PurchaseDate.PurchaseDateMS = ms(time.Now().Add(-60 * 24 * time.Hour))
		renewed := entry("premium.monthly", "tx-8", "tx-1", future, "")

		service := &fakeService{responses: map[string]*iap.IAPResponse{
			"session": {Status: 0, LatestReceiptInfo: []iap.InApp{old, renewed}},
		}}
		adapter := appstore.NewWithService(service, "session", nil)

		purchases, err := adapter.GetPurchases(ctx, billing.ItemTypeSubscription, nil)
		require.NoError(t, err)
		require.Len(t, purchases, 1)
		assert.Equal(t, billing.StatePurchased, purchases[0].State)
		assert.Equal(t, "tx-8", purchases[0].PurchaseToken)
	})

	t.Run("no session receipt is reported explicitly", func(t *testing.T) {
		adapter := appstore.NewWithService(&fakeService{}, "", nil)
		_, err := adapter.GetPurchases(ctx, billing.ItemTypeSubscription, nil)
		assert.ErrorIs(t, err, appstore.ErrNoReceipt)
	})
}

func TestUnsupportedOperations(t *testing.T) {
	ctx := context.Background()
	adapter := appstore.NewWithService(&fakeService{}, "", nil)

	t.Run("catalog queries have no server primitive", func(t *testing.T) {
		_, err := adapter.GetProductInfo(ctx, billing.ItemTypeInAppPurchase, []string{"premium"})
		assert.ErrorIs(t, err, billing.ErrNotSupported)
	})

	t.Run("consume has no server primitive and fabricates nothing", func(t *testing.T) {
		p, err := adapter.Consume(ctx, billing.Request{ProductID: "coins", PurchaseToken: "tx-1"})
		assert.ErrorIs(t, err, billing.ErrNotSupported)
		assert.Equal(t, billing.Purchase{}, p)
	})
}

func TestConnectionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("connect is true when the store answers, even with a rejection", func(t *testing.T) {
		adapter := appstore.NewWithService(&fakeService{}, "", nil)
		assert.True(t, adapter.Connect(ctx))
	})

	t.Run("connect reports transport failure as false", func(t *testing.T) {
		adapter := appstore.NewWithService(&fakeService{err: errors.New("no route to host")}, "", nil)
		assert.False(t, adapter.Connect(ctx))
	})

	t.Run("disconnect twice is safe and drops the session", func(t *testing.T) {
		adapter := appstore.NewWithService(&fakeService{}, "session", nil)
		adapter.Disconnect(ctx)
		adapter.Disconnect(ctx)
		_, err := adapter.GetPurchases(ctx, billing.ItemTypeSubscription, nil)
		assert.ErrorIs(t, err, billing.ErrNotConnected)
	})
}
