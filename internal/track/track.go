// Package track defines the canonical catalog record shared by every MintFlip component.
package track

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mintflip/internal/price"
)

// License enumerates the usage rights sold with a track.
type License string

const (
	LicenseStandard   License = "Standard"
	LicenseCommercial License = "Commercial"
	LicenseExclusive  License = "Exclusive"
	LicensePremium    License = "Premium"
)

var (
	// ErrInvalidTrack signals a track without a usable identifier.
	ErrInvalidTrack = errors.New("invalid track")
	// ErrInvalidLicense signals an unknown license category.
	ErrInvalidLicense = errors.New("invalid license type")
)

// ParseLicense accepts any casing of the four license categories.
func ParseLicense(raw string) (License, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "standard", "":
		return LicenseStandard, nil
	case "commercial":
		return LicenseCommercial, nil
	case "exclusive":
		return LicenseExclusive, nil
	case "premium":
		return LicensePremium, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLicense, raw)
}

// Track is one music NFT as seen by the catalog, cart and player.
type Track struct {
	ID           int64       `json:"id"`
	TokenID      *int64      `json:"tokenId,omitempty"`
	Title        string      `json:"title"`
	Artist       string      `json:"artist"`
	ImageURI     string      `json:"imageUri"`
	AudioURI     string      `json:"audioUri"`
	MetadataURI  string      `json:"metadataUri,omitempty"`
	Price        price.Price `json:"price"`
	License      License     `json:"licenseType"`
	Genre        string      `json:"genre,omitempty"`
	Description  string      `json:"description,omitempty"`
	OwnerAddress string      `json:"ownerAddress,omitempty"`
	PlayCount    int64       `json:"playCount"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Validate enforces the identifier precondition used by the cart ledger.
func (t Track) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("%w: missing identifier", ErrInvalidTrack)
	}
	return nil
}

// PurchaseID is the identifier passed to the purchase contract call.
// Catalog rows written before the mint receipt was known fall back to the row id.
func (t Track) PurchaseID() int64 {
	if t.TokenID != nil {
		return *t.TokenID
	}
	return t.ID
}
