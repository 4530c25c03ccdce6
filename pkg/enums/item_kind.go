package enums

import "fmt"

// ItemKind distinguishes the two rentable item flavors. It replaces the legacy
// string-prefixed identifiers ("produk-123", "bundling-45") with an explicit tag
// resolved once at the API boundary.
type ItemKind string

const (
	ItemKindProduct  ItemKind = "product"
	ItemKindBundling ItemKind = "bundling"
)

var validItemKinds = []ItemKind{
	ItemKindProduct,
	ItemKindBundling,
}

// String implements fmt.Stringer.
func (k ItemKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known ItemKind.
func (k ItemKind) IsValid() bool {
	for _, candidate := range validItemKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseItemKind converts raw input into an ItemKind.
func ParseItemKind(value string) (ItemKind, error) {
	for _, candidate := range validItemKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item kind %q", value)
}
