package minting

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"mintflip/internal/mint"
)

type fakePipeline struct {
	runReq      mint.Request
	compensated bool
}

func (f *fakePipeline) Run(_ context.Context, req mint.Request, onProgress mint.ProgressFunc) (*mint.Job, error) {
	f.runReq = req
	job := &mint.Job{ID: uuid.New(), Stage: mint.StageCataloged, Checkpoint: mint.StageCataloged}
	onProgress(*job)
	return job, nil
}

func (f *fakePipeline) Resume(_ context.Context, id uuid.UUID, _ mint.Files, _ mint.ProgressFunc) (*mint.Job, error) {
	return &mint.Job{ID: id}, nil
}

func (f *fakePipeline) Compensate(_ context.Context, id uuid.UUID) (*mint.Job, error) {
	f.compensated = true
	return &mint.Job{ID: id, Stage: mint.StageCompensated}, nil
}

func TestStartUsesCallerWallet(t *testing.T) {
	p := &fakePipeline{}
	svc := New(p, mint.NewMemoryJobStore())

	if _, err := svc.Start(context.Background(), "0xcaller", mint.Request{Minter: "0xsomeoneelse"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if p.runReq.Minter != "0xcaller" {
		t.Fatalf("expected caller wallet as minter, got %q", p.runReq.Minter)
	}
}

func TestJobOwnership(t *testing.T) {
	ctx := context.Background()
	jobs := mint.NewMemoryJobStore()
	job := &mint.Job{ID: uuid.New(), Minter: "0xowner", Stage: mint.StageFailed}
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	p := &fakePipeline{}
	svc := New(p, jobs)

	if _, err := svc.Get(ctx, "0xOWNER", job.ID); err != nil {
		t.Fatalf("owner Get error: %v", err)
	}
	if _, err := svc.Compensate(ctx, "0xintruder", job.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if p.compensated {
		t.Fatal("pipeline must not run for a foreign wallet")
	}
	if _, err := svc.Compensate(ctx, "0xowner", job.ID); err != nil {
		t.Fatalf("owner Compensate error: %v", err)
	}
	if _, err := svc.Resume(ctx, "0xowner", uuid.New(), mint.Files{}); !errors.Is(err, mint.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
