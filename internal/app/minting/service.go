package minting

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mintflip/internal/mint"
)

// ErrForbidden is returned when a wallet touches another wallet's job.
var ErrForbidden = errors.New("mint job belongs to another wallet")

// Pipeline runs mint jobs.
type Pipeline interface {
	Run(ctx context.Context, req mint.Request, onProgress mint.ProgressFunc) (*mint.Job, error)
	Resume(ctx context.Context, id uuid.UUID, files mint.Files, onProgress mint.ProgressFunc) (*mint.Job, error)
	Compensate(ctx context.Context, id uuid.UUID) (*mint.Job, error)
}

// Jobs reads persisted jobs.
type Jobs interface {
	GetJob(ctx context.Context, id uuid.UUID) (*mint.Job, error)
	ListJobs(ctx context.Context, minter string) ([]*mint.Job, error)
}

// Service exposes mint job workflows scoped to the calling wallet.
type Service interface {
	Start(ctx context.Context, wallet string, req mint.Request) (*mint.Job, error)
	Get(ctx context.Context, wallet string, id uuid.UUID) (*mint.Job, error)
	List(ctx context.Context, wallet string) ([]*mint.Job, error)
	Resume(ctx context.Context, wallet string, id uuid.UUID, files mint.Files) (*mint.Job, error)
	Compensate(ctx context.Context, wallet string, id uuid.UUID) (*mint.Job, error)
}

type service struct {
	pipeline Pipeline
	jobs     Jobs
}

// New constructs a minting Service.
func New(pipeline Pipeline, jobs Jobs) Service {
	return &service{pipeline: pipeline, jobs: jobs}
}

// Start mints to the caller's wallet regardless of the requested recipient.
func (s *service) Start(ctx context.Context, wallet string, req mint.Request) (*mint.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.Minter = wallet
	return s.pipeline.Run(ctx, req, logProgress)
}

func (s *service) Get(ctx context.Context, wallet string, id uuid.UUID) (*mint.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.owned(ctx, wallet, id)
}

func (s *service) List(ctx context.Context, wallet string) ([]*mint.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.jobs.ListJobs(ctx, strings.ToLower(wallet))
}

func (s *service) Resume(ctx context.Context, wallet string, id uuid.UUID, files mint.Files) (*mint.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, wallet, id); err != nil {
		return nil, err
	}
	return s.pipeline.Resume(ctx, id, files, logProgress)
}

func (s *service) Compensate(ctx context.Context, wallet string, id uuid.UUID) (*mint.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, wallet, id); err != nil {
		return nil, err
	}
	return s.pipeline.Compensate(ctx, id)
}

func (s *service) owned(ctx context.Context, wallet string, id uuid.UUID) (*mint.Job, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(job.Minter, wallet) {
		return nil, ErrForbidden
	}
	return job, nil
}

func logProgress(job mint.Job) {
	log.Info().
		Str("job_id", job.ID.String()).
		Str("stage", string(job.Stage)).
		Int("progress", job.Checkpoint.Percent()).
		Msg("mint progress")
}
