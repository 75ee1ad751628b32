package msstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	collectionsURL        = "https://collections.mp.microsoft.com/v6.0/collections/query"
	sandboxCollectionsURL = "https://collections.md.mp.microsoft.com/v6.0/collections/query"
	displayCatalogURL     = "https://displaycatalog.mp.microsoft.com/v7.0/products"
	tokenResource         = "https://onestore.microsoft.com"

	productKindApplication = "Application"
)

// AppLicense is the native license container: the primary application
// license plus the add-on licenses the store enumerated with it, order
// preserved.
type AppLicense struct {
	StoreID        string
	IsActive       bool
	ExpirationDate *time.Time
	AddOns         []AddOnLicense
}

// AddOnLicense is one secondary entitlement tied to the primary license.
type AddOnLicense struct {
	StoreID        string
	IsActive       bool
	ExpirationDate *time.Time
	OfferToken     string
}

// CatalogProduct is one native catalog record. CurrencyCode is carried
// exactly as the catalog reported it. The catalog prices availabilities as a
// numeric list price, not a display string, so FormattedPrice is that amount
// rendered as a plain decimal.
type CatalogProduct struct {
	StoreID        string
	Title          string
	Description    string
	Kind           string
	FormattedPrice string
	CurrencyCode   string
}

// Service is the slice of the Store licensing and catalog surface the
// adapter consumes.
type Service interface {
	AppLicense(ctx context.Context) (*AppLicense, error)
	Products(ctx context.Context, storeIDs []string) ([]CatalogProduct, error)
}

// ClientConfig identifies the Azure AD application and the beneficiary whose
// collection the client queries. Sandbox routes collection queries to the
// integration environment.
type ClientConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// Beneficiary is the publisher user id the collections query is scoped
	// to, as relayed by the client app.
	Beneficiary string

	Market  string
	Locale  string
	Sandbox bool
}

// Client is the production Store binding, authenticated with an Azure AD
// client-credentials token scoped to the Store resource.
type Client struct {
	cfg    ClientConfig
	tokens oauth2.TokenSource
	http   *http.Client

	collectionsURL string
	catalogURL     string
}

// NewClient builds the production binding. The session outlives any single
// call, so the token source and its cache are process-scoped; the context
// given to each request bounds only that request. The token is fetched
// lazily on the first request.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Market == "" {
		cfg.Market = "US"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/token", cfg.TenantID),
		EndpointParams: url.Values{
			"resource": {tokenResource},
		},
	}
	collections := collectionsURL
	if cfg.Sandbox {
		collections = sandboxCollectionsURL
	}
	return &Client{
		cfg:            cfg,
		tokens:         cc.TokenSource(context.Background()),
		http:           &http.Client{Timeout: 30 * time.Second},
		collectionsURL: collections,
		catalogURL:     displayCatalogURL,
	}
}

type collectionsRequest struct {
	Beneficiaries []beneficiary `json:"beneficiaries"`
	ProductTypes  []string      `json:"productTypes"`
	ValidityType  string        `json:"validityType"`
}

type beneficiary struct {
	IdentityType  string `json:"identitytype"`
	IdentityValue string `json:"identityValue"`
}

type collectionsResponse struct {
	Items []collectionItem `json:"items"`
}

type collectionItem struct {
	ProductID       string     `json:"productId"`
	SkuID           string     `json:"skuId"`
	ProductKind     string     `json:"productKind"`
	Status          string     `json:"status"`
	EndDate         *time.Time `json:"endDate"`
	InAppOfferToken string     `json:"devOfferId"`
}

// AppLicense queries the beneficiary's collection and folds it into the
// license container: the Application item is the primary license, every
// other item an add-on, in the order the store returned them.
func (c *Client) AppLicense(ctx context.Context) (*AppLicense, error) {
	body := collectionsRequest{
		Beneficiaries: []beneficiary{{IdentityType: "b2b", IdentityValue: c.cfg.Beneficiary}},
		ProductTypes:  []string{"Application", "Durable", "Consumable", "UnmanagedConsumable"},
		ValidityType:  "All",
	}

	var resp collectionsResponse
	if err := c.postJSON(ctx, c.collectionsURL, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	license := &AppLicense{}
	foundApp := false
	for _, item := range resp.Items {
		active := item.Status == "Active"
		if item.ProductKind == productKindApplication && !foundApp {
			foundApp = true
			license.StoreID = item.ProductID
			license.IsActive = active
			license.ExpirationDate = item.EndDate
			continue
		}
		license.AddOns = append(license.AddOns, AddOnLicense{
			StoreID:        item.ProductID,
			IsActive:       active,
			ExpirationDate: item.EndDate,
			OfferToken:     item.InAppOfferToken,
		})
	}
	if !foundApp {
		return nil, fmt.Errorf("collection for beneficiary holds no application license")
	}
	return license, nil
}

type catalogResponse struct {
	Products []catalogProduct `json:"Products"`
}

type catalogProduct struct {
	ProductID           string `json:"ProductId"`
	ProductKind         string `json:"ProductKind"`
	LocalizedProperties []struct {
		ProductTitle       string `json:"ProductTitle"`
		ProductDescription string `json:"ProductDescription"`
	} `json:"LocalizedProperties"`
	DisplaySkuAvailabilities []struct {
		Availabilities []struct {
			OrderManagementData struct {
				Price struct {
					CurrencyCode string  `json:"CurrencyCode"`
					ListPrice    float64 `json:"ListPrice"`
				} `json:"Price"`
			} `json:"OrderManagementData"`
		} `json:"Availabilities"`
	} `json:"DisplaySkuAvailabilities"`
}

// Products looks up the requested store ids in the display catalog. Ids the
// catalog does not recognize are simply absent from the response.
func (c *Client) Products(ctx context.Context, storeIDs []string) ([]CatalogProduct, error) {
	query := url.Values{
		"bigIds":    {strings.Join(storeIDs, ",")},
		"market":    {c.cfg.Market},
		"languages": {c.cfg.Locale},
	}

	var resp catalogResponse
	if err := c.getJSON(ctx, c.catalogURL+"?"+query.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("failed to query display catalog: %w", err)
	}

	products := make([]CatalogProduct, 0, len(resp.Products))
	for _, native := range resp.Products {
		product := CatalogProduct{
			StoreID: native.ProductID,
			Kind:    native.ProductKind,
		}
		if len(native.LocalizedProperties) > 0 {
			product.Title = native.LocalizedProperties[0].ProductTitle
			product.Description = native.LocalizedProperties[0].ProductDescription
		}
		if len(native.DisplaySkuAvailabilities) > 0 && len(native.DisplaySkuAvailabilities[0].Availabilities) > 0 {
			price := native.DisplaySkuAvailabilities[0].Availabilities[0].OrderManagementData.Price
			product.CurrencyCode = price.CurrencyCode
			product.FormattedPrice = strconv.FormatFloat(price.ListPrice, 'f', 2, 64)
		}
		products = append(products, product)
	}
	return products, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to acquire store token: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("MS-RequestId", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("store answered %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
