package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Profile is the public profile of a wallet.
type Profile struct {
	WalletAddress  string   `json:"walletAddress"`
	Username       string   `json:"username,omitempty"`
	Bio            string   `json:"bio,omitempty"`
	AvatarURL      string   `json:"avatarUrl,omitempty"`
	FavoriteGenres []string `json:"favoriteGenres"`
}

// ProfileUpdate holds the fields to change; nil fields keep their value.
type ProfileUpdate struct {
	Username       *string  `json:"username"`
	Bio            *string  `json:"bio"`
	AvatarURL      *string  `json:"avatarUrl"`
	FavoriteGenres []string `json:"favoriteGenres"`
}

// EnsureUser creates the user row for wallet on first login.
func (s *Store) EnsureUser(ctx context.Context, wallet string) error {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	if wallet == "" {
		return fmt.Errorf("wallet address is required")
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO users (wallet_address)
		VALUES ($1)
		ON CONFLICT (wallet_address) DO NOTHING
	`, wallet); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetProfile loads the profile of wallet.
func (s *Store) GetProfile(ctx context.Context, wallet string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT wallet_address, username, bio, avatar_url, favorite_genres
		FROM users
		WHERE wallet_address = $1
	`, strings.ToLower(wallet))

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, fmt.Errorf("select profile: %w", err)
	}
	return p, nil
}

// UpdateProfile applies update to the profile of wallet.
func (s *Store) UpdateProfile(ctx context.Context, wallet string, update ProfileUpdate) (Profile, error) {
	var genres any
	if update.FavoriteGenres != nil {
		genres = pq.Array(update.FavoriteGenres)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET
			username = COALESCE($1, username),
			bio = COALESCE($2, bio),
			avatar_url = COALESCE($3, avatar_url),
			favorite_genres = COALESCE($4, favorite_genres),
			updated_at = CURRENT_TIMESTAMP
		WHERE wallet_address = $5
		RETURNING wallet_address, username, bio, avatar_url, favorite_genres
	`, update.Username, update.Bio, update.AvatarURL, genres, strings.ToLower(wallet))

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

func scanProfile(row *sql.Row) (Profile, error) {
	var (
		p                     Profile
		username, bio, avatar sql.NullString
	)
	if err := row.Scan(&p.WalletAddress, &username, &bio, &avatar, pq.Array(&p.FavoriteGenres)); err != nil {
		return Profile{}, err
	}
	p.Username = nullString(username)
	p.Bio = nullString(bio)
	p.AvatarURL = nullString(avatar)
	if p.FavoriteGenres == nil {
		p.FavoriteGenres = []string{}
	}
	return p, nil
}
