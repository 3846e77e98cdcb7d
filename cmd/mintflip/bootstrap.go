package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"mintflip/internal/price"
	"mintflip/internal/store"
	"mintflip/internal/track"
)

// demoWallet is the first account of a local development node.
const demoWallet = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

func bootstrapDemoData(ctx context.Context, db *sql.DB, dataStore *store.Store) error {
	if err := ensureDemoUser(ctx, dataStore); err != nil {
		return err
	}
	if err := ensureDemoTracks(ctx, db, dataStore); err != nil {
		return err
	}
	return nil
}

func ensureDemoUser(ctx context.Context, dataStore *store.Store) error {
	if err := dataStore.EnsureUser(ctx, demoWallet); err != nil {
		return fmt.Errorf("bootstrap demo user: %w", err)
	}

	username := "demo"
	bio := "Welcome to MintFlip! Mint a track to get started."
	if _, err := dataStore.UpdateProfile(ctx, demoWallet, store.ProfileUpdate{
		Username:       &username,
		Bio:            &bio,
		FavoriteGenres: []string{"Electronic", "Ambient"},
	}); err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return fmt.Errorf("bootstrap demo profile: %w", err)
	}
	return nil
}

func ensureDemoTracks(ctx context.Context, db *sql.DB, dataStore *store.Store) error {
	exists, err := tableExists(ctx, db, "music_nfts")
	if err != nil {
		return fmt.Errorf("check music_nfts table: %w", err)
	}
	if !exists {
		return nil
	}

	var count int
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM music_nfts
		WHERE owner_address = $1
	`, demoWallet).Scan(&count); err != nil {
		return fmt.Errorf("count demo tracks: %w", err)
	}
	if count > 0 {
		return nil
	}

	tokenID := func(v int64) *int64 { return &v }

	tracks := []track.Track{
		{
			TokenID:     tokenID(1),
			Title:       "Neon Tides",
			Artist:      "Synthwave Engine",
			Description: "Generated retro synth with a slow arpeggio.",
			Genre:       "Electronic",
			Price:       price.MustParse("0.05"),
			License:     track.LicenseStandard,
		},
		{
			TokenID:     tokenID(2),
			Title:       "Glass Orchard",
			Artist:      "Latent Choir",
			Description: "Ambient pads sampled from a diffusion model.",
			Genre:       "Ambient",
			Price:       price.MustParse("0.08"),
			License:     track.LicenseCommercial,
		},
		{
			TokenID:     tokenID(3),
			Title:       "Night Bus Loop",
			Artist:      "Token Beats",
			Description: "Lo-fi loop for late commutes.",
			Genre:       "Lo-Fi",
			Price:       price.MustParse("0.02"),
			License:     track.LicenseStandard,
		},
	}

	for _, t := range tracks {
		t.OwnerAddress = demoWallet
		if _, err := dataStore.CreateTrack(ctx, t); err != nil {
			if errors.Is(err, store.ErrTrackExists) {
				continue
			}
			return fmt.Errorf("insert demo track %q: %w", t.Title, err)
		}
	}
	log.Info().Int("tracks", len(tracks)).Msg("seeded demo catalog")
	return nil
}

type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryRower, table string) (bool, error) {
	var name sql.NullString
	if err := q.QueryRowContext(ctx, `SELECT to_regclass($1)`, table).Scan(&name); err != nil {
		return false, err
	}
	return name.Valid, nil
}
