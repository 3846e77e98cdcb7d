package track

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"mintflip/internal/price"
)

// DefaultGateway is the public IPFS gateway used when none is configured.
const DefaultGateway = "https://ipfs.io"

// Row is the wire shape of a catalog record served by /api/nfts/music.
type Row struct {
	ID           int64     `json:"id"`
	TokenID      *int64    `json:"token_id"`
	Name         string    `json:"name"`
	Artist       string    `json:"artist"`
	Description  string    `json:"description"`
	Genre        string    `json:"genre"`
	PriceETH     string    `json:"price_eth"`
	IPFSURI      string    `json:"ipfs_uri"`
	ImageURI     string    `json:"image_uri"`
	AudioURI     string    `json:"audio_uri"`
	OwnerAddress string    `json:"owner_address"`
	LicenseType  string    `json:"license_type"`
	PlayCount    int64     `json:"play_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToRow renders a track in the catalog wire shape.
func ToRow(t Track) Row {
	return Row{
		ID:           t.ID,
		TokenID:      t.TokenID,
		Name:         t.Title,
		Artist:       t.Artist,
		Description:  t.Description,
		Genre:        t.Genre,
		PriceETH:     t.Price.Decimal(),
		IPFSURI:      t.MetadataURI,
		ImageURI:     t.ImageURI,
		AudioURI:     t.AudioURI,
		OwnerAddress: t.OwnerAddress,
		LicenseType:  string(t.License),
		PlayCount:    t.PlayCount,
		CreatedAt:    t.CreatedAt,
	}
}

// FromRow converts a catalog row into a Track, rewriting IPFS references
// to the given gateway. It is the only place row fields are interpreted.
func FromRow(r Row, gateway string) (Track, error) {
	p, err := price.Parse(r.PriceETH)
	if err != nil {
		return Track{}, fmt.Errorf("track %d: %w", r.ID, err)
	}
	license, err := ParseLicense(r.LicenseType)
	if err != nil {
		return Track{}, fmt.Errorf("track %d: %w", r.ID, err)
	}

	return Track{
		ID:           r.ID,
		TokenID:      r.TokenID,
		Title:        strings.TrimSpace(r.Name),
		Artist:       strings.TrimSpace(r.Artist),
		ImageURI:     NormalizeURI(r.ImageURI, gateway),
		AudioURI:     NormalizeURI(r.AudioURI, gateway),
		MetadataURI:  NormalizeURI(r.IPFSURI, gateway),
		Price:        p,
		License:      license,
		Genre:        r.Genre,
		Description:  r.Description,
		OwnerAddress: r.OwnerAddress,
		PlayCount:    r.PlayCount,
		CreatedAt:    r.CreatedAt,
	}, nil
}

// NormalizeURI maps the different IPFS reference styles onto one gateway:
//
//	ipfs://<cid>/<path>
//	https://<cid>.ipfs.<host>/<path>
//	https://<host>/ipfs/<cid>/<path>
//
// Anything else is returned unchanged.
func NormalizeURI(raw, gateway string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if gateway == "" {
		gateway = DefaultGateway
	}
	gateway = strings.TrimRight(gateway, "/")

	if rest, ok := strings.CutPrefix(raw, "ipfs://"); ok {
		rest = strings.TrimPrefix(rest, "ipfs/")
		return gateway + "/ipfs/" + rest
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	if cid, _, ok := strings.Cut(u.Host, ".ipfs."); ok && cid != "" {
		return gateway + "/ipfs/" + cid + u.EscapedPath()
	}

	if idx := strings.Index(u.EscapedPath(), "/ipfs/"); idx >= 0 {
		return gateway + u.EscapedPath()[idx:]
	}

	return raw
}
