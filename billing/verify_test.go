package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/storebridge/billing"
)

func acceptAll(ctx context.Context, p billing.Purchase) (bool, error) { return true, nil }

func rejectProduct(id string) billing.VerifierFunc {
	return func(ctx context.Context, p billing.Purchase) (bool, error) {
		return p.ProductID != id, nil
	}
}

func TestScreen(t *testing.T) {
	ctx := context.Background()
	granted := billing.Purchase{ProductID: "sku", State: billing.StatePurchased}

	t.Run("nil verifier passes the purchase through", func(t *testing.T) {
		assert.Equal(t, granted, billing.Screen(ctx, nil, granted))
	})

	t.Run("accepted purchase is unchanged", func(t *testing.T) {
		assert.Equal(t, granted, billing.Screen(ctx, billing.VerifierFunc(acceptAll), granted))
	})

	t.Run("rejected purchase is flagged failed, not granted", func(t *testing.T) {
		p := billing.Screen(ctx, rejectProduct("sku"), granted)
		assert.Equal(t, billing.StateFailed, p.State)
		assert.Equal(t, "rejected by verification hook", p.StateReason)
		assert.False(t, p.Granted())
	})

	t.Run("hook failure degrades to unknown with the cause", func(t *testing.T) {
		boom := billing.VerifierFunc(func(ctx context.Context, p billing.Purchase) (bool, error) {
			return false, errors.New("verification server unreachable")
		})
		p := billing.Screen(ctx, boom, granted)
		assert.Equal(t, billing.StateUnknown, p.State)
		assert.Contains(t, p.StateReason, "verification server unreachable")
	})

	t.Run("ungranted purchases are not verified", func(t *testing.T) {
		called := false
		spy := billing.VerifierFunc(func(ctx context.Context, p billing.Purchase) (bool, error) {
			called = true
			return false, nil
		})
		denied := billing.Purchase{ProductID: "sku", State: billing.StateFailed}
		assert.Equal(t, denied, billing.Screen(ctx, spy, denied))
		assert.False(t, called)
	})
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	purchases := []billing.Purchase{
		{ProductID: "keep", State: billing.StatePurchased},
		{ProductID: "drop", State: billing.StatePurchased},
		{ProductID: "inactive", State: billing.StateUnknown},
	}

	t.Run("rejected purchases are excluded from the success set", func(t *testing.T) {
		kept := billing.Filter(ctx, rejectProduct("drop"), purchases)
		require.Len(t, kept, 2)
		assert.Equal(t, "keep", kept[0].ProductID)
		assert.Equal(t, "inactive", kept[1].ProductID)
	})

	t.Run("ungranted records pass through without a hook call", func(t *testing.T) {
		kept := billing.Filter(ctx, rejectProduct("inactive"), purchases)
		require.Len(t, kept, 3)
		assert.Equal(t, billing.StateUnknown, kept[2].State)
	})

	t.Run("hook failure keeps the record degraded to unknown", func(t *testing.T) {
		boom := billing.VerifierFunc(func(ctx context.Context, p billing.Purchase) (bool, error) {
			return false, errors.New("timeout")
		})
		kept := billing.Filter(ctx, boom, purchases[:1])
		require.Len(t, kept, 1)
		assert.Equal(t, billing.StateUnknown, kept[0].State)
		assert.Contains(t, kept[0].StateReason, "timeout")
	})

	t.Run("nil verifier returns the input", func(t *testing.T) {
		assert.Equal(t, purchases, billing.Filter(ctx, nil, purchases))
	})
}
