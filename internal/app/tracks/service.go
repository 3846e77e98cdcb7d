package tracks

import (
	"context"
	"strings"

	"mintflip/internal/store"
	"mintflip/internal/track"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Store describes the catalog persistence used by the service.
type Store interface {
	CreateTrack(ctx context.Context, t track.Track) (int64, error)
	ListTracks(ctx context.Context, filter store.TrackFilter) ([]track.Row, error)
	TracksByOwner(ctx context.Context, owner string) ([]track.Row, error)
	GetTrack(ctx context.Context, id int64) (track.Row, error)
	IncrementPlayCount(ctx context.Context, id int64) (int64, error)
}

// Service exposes catalog operations.
type Service interface {
	Create(ctx context.Context, wallet string, in track.Input) (int64, error)
	List(ctx context.Context, filter store.TrackFilter) ([]track.Row, error)
	ByOwner(ctx context.Context, owner string) ([]track.Row, error)
	Get(ctx context.Context, id int64) (track.Row, error)
	RecordPlay(ctx context.Context, id int64) (int64, error)
}

type service struct {
	store Store
}

// New constructs a catalog Service.
func New(store Store) Service {
	return &service{store: store}
}

// Create validates in and inserts it. Rows without an owner belong to the caller.
func (s *service) Create(ctx context.Context, wallet string, in track.Input) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t, err := in.Track()
	if err != nil {
		return 0, err
	}
	if t.OwnerAddress == "" {
		t.OwnerAddress = strings.ToLower(wallet)
	}
	return s.store.CreateTrack(ctx, t)
}

func (s *service) List(ctx context.Context, filter store.TrackFilter) ([]track.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Genre = strings.TrimSpace(filter.Genre)
	return s.store.ListTracks(ctx, filter)
}

func (s *service) ByOwner(ctx context.Context, owner string) ([]track.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.TracksByOwner(ctx, owner)
}

func (s *service) Get(ctx context.Context, id int64) (track.Row, error) {
	if err := ctx.Err(); err != nil {
		return track.Row{}, err
	}
	return s.store.GetTrack(ctx, id)
}

func (s *service) RecordPlay(ctx context.Context, id int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.store.IncrementPlayCount(ctx, id)
}
