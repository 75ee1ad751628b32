package msstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// serverClient runs the production client against a local server with a
// static session token, so request shape and response folding are exercised
// without the Azure AD exchange.
func serverClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		TenantID:     "tenant",
		ClientID:     "app",
		ClientSecret: "secret",
		Beneficiary:  "user-1",
	})
	client.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "session-token", TokenType: "Bearer"})
	client.collectionsURL = server.URL + "/collections/query"
	client.catalogURL = server.URL + "/products"
	return client
}

const collectionBody = `{"items":[
	{"productId":"9P8X2MZQK6T1","productKind":"Durable","status":"Active","devOfferId":"offer-1"},
	{"productId":"9NBLGGH4R315","productKind":"Application","status":"Active"},
	{"productId":"9P8X2MZQK6T2","productKind":"Consumable","status":"Expired"}
]}`

func TestAppLicenseRequests(t *testing.T) {
	t.Run("requests carry the session token and a correlation id", func(t *testing.T) {
		var gotAuth, gotRequestID string
		client := serverClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotRequestID = r.Header.Get("MS-RequestId")
			w.Write([]byte(collectionBody))
		})

		_, err := client.AppLicense(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer session-token", gotAuth)
		assert.NotEmpty(t, gotRequestID)
	})

	t.Run("the application item is the primary, the rest add-ons in order", func(t *testing.T) {
		client := serverClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(collectionBody))
		})

		license, err := client.AppLicense(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "9NBLGGH4R315", license.StoreID)
		assert.True(t, license.IsActive)
		require.Len(t, license.AddOns, 2)
		assert.Equal(t, "9P8X2MZQK6T1", license.AddOns[0].StoreID)
		assert.Equal(t, "offer-1", license.AddOns[0].OfferToken)
		assert.Equal(t, "9P8X2MZQK6T2", license.AddOns[1].StoreID)
		assert.False(t, license.AddOns[1].IsActive)
	})

	t.Run("a collection without an application license is an error", func(t *testing.T) {
		client := serverClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"items":[]}`))
		})
		_, err := client.AppLicense(context.Background())
		assert.Error(t, err)
	})

	t.Run("only the per-call context bounds a request", func(t *testing.T) {
		client := serverClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(collectionBody))
		})

		dead, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.AppLicense(dead)
		require.Error(t, err)

		// The session survives a dead context from an earlier call.
		_, err = client.AppLicense(context.Background())
		assert.NoError(t, err)
	})
}

func TestProductsRequests(t *testing.T) {
	t.Run("catalog records parse with the list price rendered as a decimal", func(t *testing.T) {
		client := serverClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "9P8X2MZQK6T1", r.URL.Query().Get("bigIds"))
			w.Write([]byte(`{"Products":[{
				"ProductId":"9P8X2MZQK6T1",
				"ProductKind":"Durable",
				"LocalizedProperties":[{"ProductTitle":"Premium","ProductDescription":"All features"}],
				"DisplaySkuAvailabilities":[{"Availabilities":[{"OrderManagementData":{"Price":{"CurrencyCode":"EUR","ListPrice":4.99}}}]}]
			}]}`))
		})

		products, err := client.Products(context.Background(), []string{"9P8X2MZQK6T1"})
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "Premium", products[0].Title)
		assert.Equal(t, "All features", products[0].Description)
		assert.Equal(t, "EUR", products[0].CurrencyCode)
		assert.Equal(t, "4.99", products[0].FormattedPrice)
	})

	t.Run("a non-200 answer is an error", func(t *testing.T) {
		client := serverClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		_, err := client.Products(context.Background(), []string{"x"})
		assert.Error(t, err)
	})
}
