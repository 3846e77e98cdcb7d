package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mintflip/internal/track"
)

// TrackFilter selects a page of the catalog.
type TrackFilter struct {
	Limit  int
	Offset int
	Genre  string
}

const trackColumns = `id, token_id, name, artist, description, genre, price_eth::text,
		ipfs_uri, image_uri, audio_uri, owner_address, license_type, play_count, created_at`

// CreateTrack inserts a catalog row and returns its id.
func (s *Store) CreateTrack(ctx context.Context, t track.Track) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO music_nfts (
			token_id, name, artist, description, genre, price_eth,
			ipfs_uri, image_uri, audio_uri, owner_address, license_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP)
		RETURNING id
	`,
		int64PtrArg(t.TokenID),
		t.Title,
		t.Artist,
		t.Description,
		t.Genre,
		t.Price.Decimal(),
		t.MetadataURI,
		t.ImageURI,
		t.AudioURI,
		strings.ToLower(t.OwnerAddress),
		string(t.License),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrTrackExists
		}
		return 0, fmt.Errorf("insert track: %w", err)
	}
	return id, nil
}

// ListTracks returns catalog rows newest first.
func (s *Store) ListTracks(ctx context.Context, filter TrackFilter) ([]track.Row, error) {
	query := `SELECT ` + trackColumns + ` FROM music_nfts`
	args := []interface{}{filter.Limit, filter.Offset}
	if filter.Genre != "" {
		query += ` WHERE genre = $3`
		args = append(args, filter.Genre)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	return s.queryTracks(ctx, query, args...)
}

// TracksByOwner returns the rows owned by a wallet, newest first.
func (s *Store) TracksByOwner(ctx context.Context, owner string) ([]track.Row, error) {
	return s.queryTracks(ctx, `SELECT `+trackColumns+` FROM music_nfts
		WHERE owner_address = $1
		ORDER BY created_at DESC, id DESC`, strings.ToLower(owner))
}

// GetTrack loads one catalog row.
func (s *Store) GetTrack(ctx context.Context, id int64) (track.Row, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM music_nfts WHERE id = $1`, id)
	r, err := scanTrack(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return track.Row{}, ErrTrackNotFound
		}
		return track.Row{}, fmt.Errorf("select track: %w", err)
	}
	return r, nil
}

// IncrementPlayCount records one play and returns the new count.
func (s *Store) IncrementPlayCount(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE music_nfts
		SET play_count = play_count + 1
		WHERE id = $1
		RETURNING play_count
	`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTrackNotFound
		}
		return 0, fmt.Errorf("update play count: %w", err)
	}
	return count, nil
}

func (s *Store) queryTracks(ctx context.Context, query string, args ...interface{}) ([]track.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	out := []track.Row{}
	for rows.Next() {
		r, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(sc rowScanner) (track.Row, error) {
	var (
		r                                  track.Row
		tokenID                            sql.NullInt64
		description, genre, ipfsURI        sql.NullString
		imageURI, audioURI, owner, license sql.NullString
		createdAt                          time.Time
	)
	if err := sc.Scan(
		&r.ID, &tokenID, &r.Name, &r.Artist, &description, &genre, &r.PriceETH,
		&ipfsURI, &imageURI, &audioURI, &owner, &license, &r.PlayCount, &createdAt,
	); err != nil {
		return track.Row{}, err
	}
	r.TokenID = nullInt64Ptr(tokenID)
	r.Description = nullString(description)
	r.Genre = nullString(genre)
	r.IPFSURI = nullString(ipfsURI)
	r.ImageURI = nullString(imageURI)
	r.AudioURI = nullString(audioURI)
	r.OwnerAddress = nullString(owner)
	r.LicenseType = nullString(license)
	r.CreatedAt = createdAt.UTC()
	return r, nil
}
