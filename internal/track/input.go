package track

import (
	"fmt"
	"strings"

	"mintflip/internal/price"
)

// Input is the request body of POST /api/nfts/music.
type Input struct {
	TokenID      *int64 `json:"tokenId"`
	Name         string `json:"name"`
	Artist       string `json:"artist"`
	Description  string `json:"description"`
	Genre        string `json:"genre"`
	Price        string `json:"price"`
	IPFSURI      string `json:"ipfsUri"`
	ImageURI     string `json:"imageUri"`
	AudioURI     string `json:"audioUri"`
	OwnerAddress string `json:"ownerAddress"`
	LicenseType  string `json:"licenseType"`
}

// ToInput renders t as a create request.
func ToInput(t Track) Input {
	return Input{
		TokenID:      t.TokenID,
		Name:         t.Title,
		Artist:       t.Artist,
		Description:  t.Description,
		Genre:        t.Genre,
		Price:        t.Price.Decimal(),
		IPFSURI:      t.MetadataURI,
		ImageURI:     t.ImageURI,
		AudioURI:     t.AudioURI,
		OwnerAddress: t.OwnerAddress,
		LicenseType:  string(t.License),
	}
}

// Track validates the input and converts it. The result has no ID yet.
func (in Input) Track() (Track, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Track{}, fmt.Errorf("%w: name is required", ErrInvalidTrack)
	}
	if strings.TrimSpace(in.Artist) == "" {
		return Track{}, fmt.Errorf("%w: artist is required", ErrInvalidTrack)
	}
	p, err := price.Parse(in.Price)
	if err != nil {
		return Track{}, err
	}
	license, err := ParseLicense(in.LicenseType)
	if err != nil {
		return Track{}, err
	}

	return Track{
		TokenID:      in.TokenID,
		Title:        name,
		Artist:       strings.TrimSpace(in.Artist),
		Description:  in.Description,
		Genre:        in.Genre,
		Price:        p,
		MetadataURI:  in.IPFSURI,
		ImageURI:     in.ImageURI,
		AudioURI:     in.AudioURI,
		OwnerAddress: strings.ToLower(in.OwnerAddress),
		License:      license,
	}, nil
}
