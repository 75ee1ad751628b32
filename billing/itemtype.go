package billing

import (
	"errors"
)

var (
	ErrInvalidItemType = errors.New("invalid item type")
)

// ItemType distinguishes the product kinds a store sells. It determines which
// native query path an adapter uses: consumables and durables go through the
// in-app product surface, subscriptions through the subscription surface.
type ItemType string

const (
	ItemTypeInAppPurchase ItemType = "inapp"
	ItemTypeSubscription  ItemType = "subscription"
)

// NewItemType creates an ItemType value object from its string form
func NewItemType(itemType string) (ItemType, error) {
	t := ItemType(itemType)
	switch t {
	case ItemTypeInAppPurchase, ItemTypeSubscription:
		return t, nil
	default:
		return "", ErrInvalidItemType
	}
}

// String returns the string representation of the item type
func (t ItemType) String() string {
	return string(t)
}
