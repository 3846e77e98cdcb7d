package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"mintflip/internal/mint"
	"mintflip/internal/price"
	"mintflip/internal/track"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

var trackRowColumns = []string{
	"id", "token_id", "name", "artist", "description", "genre", "price_eth",
	"ipfs_uri", "image_uri", "audio_uri", "owner_address", "license_type", "play_count", "created_at",
}

func TestEnsureUserLowercasesWallet(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		INSERT INTO users (wallet_address)
		VALUES ($1)
		ON CONFLICT (wallet_address) DO NOTHING
	`)).
		WithArgs("0xabc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.EnsureUser(context.Background(), " 0xABC "); err != nil {
		t.Fatalf("EnsureUser error: %v", err)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users`)).
		WithArgs("0xabc").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.GetProfile(context.Background(), "0xabc"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateProfileKeepsUnsetFields(t *testing.T) {
	s, mock := newMockStore(t)
	name := "dj"

	mock.ExpectQuery(regexp.QuoteMeta(`username = COALESCE($1, username)`)).
		WithArgs("dj", nil, nil, sqlmock.AnyArg(), "0xabc").
		WillReturnRows(sqlmock.NewRows([]string{"wallet_address", "username", "bio", "avatar_url", "favorite_genres"}).
			AddRow("0xabc", "dj", nil, nil, "{Lo-fi,Synthwave}"))

	got, err := s.UpdateProfile(context.Background(), "0xABC", ProfileUpdate{
		Username:       &name,
		FavoriteGenres: []string{"Lo-fi", "Synthwave"},
	})
	if err != nil {
		t.Fatalf("UpdateProfile error: %v", err)
	}
	if got.Username != "dj" || got.Bio != "" {
		t.Fatalf("unexpected profile %#v", got)
	}
	if len(got.FavoriteGenres) != 2 || got.FavoriteGenres[1] != "Synthwave" {
		t.Fatalf("unexpected genres %v", got.FavoriteGenres)
	}
}

func TestCreateTrack(t *testing.T) {
	s, mock := newMockStore(t)
	tokenID := int64(7)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO music_nfts`)).
		WithArgs(int64(7), "Night Drive", "Synth AI", "", "Synthwave", "0.05",
			"https://meta", "", "https://audio", "0xabc", "Standard").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := s.CreateTrack(context.Background(), track.Track{
		TokenID:      &tokenID,
		Title:        "Night Drive",
		Artist:       "Synth AI",
		Genre:        "Synthwave",
		Price:        price.MustParse("0.05 ETH"),
		MetadataURI:  "https://meta",
		AudioURI:     "https://audio",
		OwnerAddress: "0xABC",
		License:      track.LicenseStandard,
	})
	if err != nil {
		t.Fatalf("CreateTrack error: %v", err)
	}
	if id != 3 {
		t.Fatalf("expected id 3, got %d", id)
	}
}

func TestCreateTrackDuplicateToken(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO music_nfts`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateTrack(context.Background(), track.Track{Title: "x", Price: price.Zero("")})
	if !errors.Is(err, ErrTrackExists) {
		t.Fatalf("expected ErrTrackExists, got %v", err)
	}
}

func TestListTracksWithGenre(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE genre = $3 ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`)).
		WithArgs(20, 0, "Lo-fi").
		WillReturnRows(sqlmock.NewRows(trackRowColumns).
			AddRow(int64(1), nil, "Rain", "Bot", nil, "Lo-fi", "0.010000000000000000",
				"ipfs://bafymeta", "ipfs://bafyimg", "ipfs://bafyaudio", "0xabc", "Premium", int64(4), created))

	rows, err := s.ListTracks(context.Background(), TrackFilter{Limit: 20, Genre: "Lo-fi"})
	if err != nil {
		t.Fatalf("ListTracks error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.TokenID != nil || r.Description != "" || r.PlayCount != 4 || !r.CreatedAt.Equal(created) {
		t.Fatalf("unexpected row %#v", r)
	}

	got, err := track.FromRow(r, "")
	if err != nil {
		t.Fatalf("FromRow error: %v", err)
	}
	if got.Price.String() != "0.01 ETH" {
		t.Fatalf("unexpected price %s", got.Price)
	}
}

func TestListTracksEmptyIsNotNil(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM music_nfts ORDER BY created_at DESC`)).
		WithArgs(20, 40).
		WillReturnRows(sqlmock.NewRows(trackRowColumns))

	rows, err := s.ListTracks(context.Background(), TrackFilter{Limit: 20, Offset: 40})
	if err != nil {
		t.Fatalf("ListTracks error: %v", err)
	}
	if rows == nil {
		t.Fatal("expected empty slice, got nil")
	}
}

func TestIncrementPlayCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SET play_count = play_count + 1`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"play_count"}).AddRow(int64(12)))
	mock.ExpectQuery(regexp.QuoteMeta(`SET play_count = play_count + 1`)).
		WithArgs(int64(6)).
		WillReturnError(sql.ErrNoRows)

	count, err := s.IncrementPlayCount(context.Background(), 5)
	if err != nil || count != 12 {
		t.Fatalf("IncrementPlayCount = %d, %v", count, err)
	}
	if _, err := s.IncrementPlayCount(context.Background(), 6); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("expected ErrTrackNotFound, got %v", err)
	}
}

func TestMintJobRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tokenID := int64(9)
	job := &mint.Job{
		ID:         uuid.MustParse("6f1c2b7e-1b2a-4c3d-9e8f-112233445566"),
		Stage:      mint.StageMinted,
		Checkpoint: mint.StageMinted,
		Minter:     "0xabc",
		Name:       "Night Drive",
		License:    track.LicenseStandard,
		Price:      price.MustParse("0.05 ETH"),
		AudioName:  "a.mp3",
		TokenID:    &tokenID,
		TxHash:     "0xtx",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO mint_jobs`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE mint_jobs`)).
		WithArgs(job.ID, "minted", "minted", "", "", "", "", "", "", int64(9), "0xtx", nil, "", now, "minting").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM mint_jobs WHERE id = $1`)).
		WithArgs(job.ID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "stage", "checkpoint", "minter", "name", "artist", "description", "genre",
			"license_type", "price", "audio_name", "image_name", "audio_cid", "image_cid", "metadata_cid",
			"audio_uri", "image_uri", "token_uri", "token_id", "tx_hash", "track_id", "error", "created_at", "updated_at",
		}).AddRow(job.ID.String(), "minted", "minted", "0xabc", "Night Drive", "", "", "",
			"Standard", "0.05 ETH", "a.mp3", "", "", "", "",
			"", "", "", int64(9), "0xtx", nil, "", now, now))

	ctx := context.Background()
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	if err := s.UpdateJob(ctx, job, mint.StageMinting); err != nil {
		t.Fatalf("UpdateJob error: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if got.Stage != mint.StageMinted || *got.TokenID != 9 || got.TrackID != nil {
		t.Fatalf("unexpected job %#v", got)
	}
	if !got.Price.Equal(job.Price) {
		t.Fatalf("price mismatch: %s", got.Price)
	}
}

func TestUpdateJobUnknown(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE mint_jobs`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM mint_jobs WHERE id = $1)`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := s.UpdateJob(context.Background(), &mint.Job{ID: id, Price: price.Zero("")}, mint.StagePending)
	if !errors.Is(err, mint.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestUpdateJobStageMovedOn(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND stage = $15`)).
		WithArgs(id, "minting", "metadata_uploaded", "", "", "", "", "", "", nil, "", nil, "", sqlmock.AnyArg(), "metadata_uploaded").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	job := &mint.Job{ID: id, Stage: mint.StageMinting, Checkpoint: mint.StageMetadataUploaded, Price: price.Zero("")}
	err := s.UpdateJob(context.Background(), job, mint.StageMetadataUploaded)
	if !errors.Is(err, mint.ErrJobConflict) {
		t.Fatalf("expected ErrJobConflict, got %v", err)
	}
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db)

	mock.ExpectPing()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
