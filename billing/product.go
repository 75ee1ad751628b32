package billing

// Product is an immutable snapshot of one catalog entry at query time. The
// price and currency are carried exactly as the native store reported them:
// LocalizedPrice is the store's display string and CurrencyCode its ISO code,
// neither reformatted nor parsed by this library.
type Product struct {
	// ID is the store-assigned product identifier, unique per platform.
	ID          string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	LocalizedPrice string `json:"localized_price"`
	CurrencyCode   string `json:"currency_code"`
}
