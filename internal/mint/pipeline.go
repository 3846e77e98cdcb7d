// Package mint turns an uploaded track into an on-chain token and a catalog entry.
// Each stage is checkpointed so an interrupted job can be resumed or rolled back.
package mint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mintflip/internal/chain"
	"mintflip/internal/price"
	"mintflip/internal/track"
)

const (
	// DefaultEditionSize is the number of copies minted per track.
	DefaultEditionSize = 10
	// DefaultMintLease is how long a job stays claimed by the run that
	// moved it to StageMinting. It outlasts the chain client's receipt wait.
	DefaultMintLease = 10 * time.Minute
)

var (
	ErrMissingName     = errors.New("track name is required")
	ErrMissingAudio    = errors.New("audio file is required")
	ErrInvalidMinter   = errors.New("minter address is invalid")
	ErrInvalidPrice    = errors.New("price must be a non-negative ETH amount")
	ErrContentRequired = errors.New("file content required to resume upload")
	ErrAlreadyMinted   = errors.New("job already minted, uploads cannot be released")
	ErrCompensated     = errors.New("job was compensated")
	ErrJobInFlight     = errors.New("mint transaction in flight, try again later")
)

// File is an upload supplied by the caller.
type File struct {
	Name    string
	Content io.Reader
}

// Request describes a track to mint.
type Request struct {
	Name        string
	Artist      string
	Description string
	Genre       string
	License     track.License
	Price       price.Price
	Audio       File
	Image       *File
	Minter      string
}

// Files carries upload content into Resume. Either may be nil when the
// matching stage already completed.
type Files struct {
	Audio io.Reader
	Image io.Reader
}

// ContentStore pins files and documents to content-addressed storage.
type ContentStore interface {
	UploadFile(ctx context.Context, filename string, r io.Reader) (string, error)
	UploadJSON(ctx context.Context, v any) (string, error)
	Unpin(ctx context.Context, cid string) error
	GatewayURL(cid, filename string) string
}

// Minter mints tokens on the music contract. SendMint returns as soon as
// the transaction is accepted; MintResultOf waits for its receipt.
type Minter interface {
	SendMint(ctx context.Context, to, tokenURI string, amount, priceWei *big.Int) (string, error)
	MintResultOf(ctx context.Context, txHash string) (chain.MintResult, error)
}

// Catalog records minted tracks.
type Catalog interface {
	CreateTrack(ctx context.Context, t track.Track) (int64, error)
}

// ProgressFunc observes a job after each completed stage.
type ProgressFunc func(job Job)

// Pipeline runs mint jobs.
type Pipeline struct {
	content     ContentStore
	minter      Minter
	catalog     Catalog
	jobs        JobStore
	editionSize int64
	mintLease   time.Duration
	now         func() time.Time
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithEditionSize overrides DefaultEditionSize.
func WithEditionSize(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.editionSize = n
		}
	}
}

// WithMintLease overrides DefaultMintLease.
func WithMintLease(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.mintLease = d
		}
	}
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(content ContentStore, minter Minter, catalog Catalog, jobs JobStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		content:     content,
		minter:      minter,
		catalog:     catalog,
		jobs:        jobs,
		editionSize: DefaultEditionSize,
		mintLease:   DefaultMintLease,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks a request before any stage runs.
func Validate(req *Request) error {
	if strings.TrimSpace(req.Name) == "" {
		return ErrMissingName
	}
	if req.Audio.Content == nil || req.Audio.Name == "" {
		return ErrMissingAudio
	}
	if _, err := chain.ParseAddress(req.Minter); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMinter, err)
	}
	if req.Price.Amount.IsNegative() {
		return ErrInvalidPrice
	}
	if _, err := req.Price.Wei(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	license, err := track.ParseLicense(string(req.License))
	if err != nil {
		return err
	}
	req.License = license
	if req.Image != nil && (req.Image.Content == nil || req.Image.Name == "") {
		req.Image = nil
	}
	return nil
}

// Run validates req, records a new job and drives it to completion.
// The returned job reflects the last checkpoint even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context, req Request, onProgress ProgressFunc) (*Job, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}

	now := p.now()
	job := &Job{
		ID:          uuid.New(),
		Stage:       StagePending,
		Checkpoint:  StagePending,
		Name:        strings.TrimSpace(req.Name),
		Artist:      req.Artist,
		Description: req.Description,
		Genre:       req.Genre,
		License:     req.License,
		Price:       req.Price,
		Minter:      strings.ToLower(req.Minter),
		AudioName:   req.Audio.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	files := Files{Audio: req.Audio.Content}
	if req.Image != nil {
		job.ImageName = req.Image.Name
		files.Image = req.Image.Content
	}

	if err := p.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create mint job: %w", err)
	}
	log.Info().Str("job_id", job.ID.String()).Str("minter", job.Minter).Msg("mint job created")
	notify(onProgress, job)

	return p.advance(ctx, job, files, onProgress)
}

// Resume continues a job from its last checkpoint. Completed stages are
// skipped, and a job whose mint transaction was sent is never minted twice.
// A job another run holds in StageMinting is refused until its lease ends.
func (p *Pipeline) Resume(ctx context.Context, id uuid.UUID, files Files, onProgress ProgressFunc) (*Job, error) {
	job, err := p.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Stage == StageCompensated {
		return job, ErrCompensated
	}
	if job.Stage == StageCataloged {
		return job, nil
	}
	if p.inFlight(job) {
		return job, ErrJobInFlight
	}

	from := job.Stage
	job.Stage = job.Checkpoint
	job.Error = ""
	if err := p.save(ctx, job, from); err != nil {
		return job, fmt.Errorf("claim mint job %s: %w", job.ID, err)
	}
	log.Info().Str("job_id", job.ID.String()).Str("checkpoint", string(job.Checkpoint)).Msg("resuming mint job")
	return p.advance(ctx, job, files, onProgress)
}

// Compensate unpins every upload of a job that never reached the chain.
func (p *Pipeline) Compensate(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := p.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Stage == StageCompensated {
		return job, nil
	}
	if job.Checkpoint.Reached(StageMinted) || job.TxHash != "" {
		return job, ErrAlreadyMinted
	}
	if p.inFlight(job) {
		return job, ErrJobInFlight
	}
	from := job.Stage

	var errs []error
	for _, cid := range []string{job.MetadataCID, job.ImageCID, job.AudioCID} {
		if cid == "" {
			continue
		}
		if err := p.content.Unpin(ctx, cid); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		job.Error = err.Error()
		if saveErr := p.save(ctx, job, from); saveErr != nil {
			log.Error().Err(saveErr).Str("job_id", job.ID.String()).Msg("save mint job failed")
		}
		return job, fmt.Errorf("compensate mint job %s: %w", job.ID, err)
	}

	job.Stage = StageCompensated
	job.Error = ""
	if err := p.save(ctx, job, from); err != nil {
		return job, fmt.Errorf("save mint job: %w", err)
	}
	log.Info().Str("job_id", job.ID.String()).Msg("mint job compensated")
	return job, nil
}

func (p *Pipeline) advance(ctx context.Context, job *Job, files Files, onProgress ProgressFunc) (*Job, error) {
	if !job.Checkpoint.Reached(StageAudioUploaded) {
		if files.Audio == nil {
			return p.fail(ctx, job, ErrContentRequired)
		}
		cid, err := p.content.UploadFile(ctx, job.AudioName, files.Audio)
		if err != nil {
			return p.fail(ctx, job, fmt.Errorf("upload audio: %w", err))
		}
		job.AudioCID = cid
		job.AudioURI = p.content.GatewayURL(cid, job.AudioName)
		if err := p.checkpoint(ctx, job, StageAudioUploaded, onProgress); err != nil {
			return job, err
		}
	}

	if !job.Checkpoint.Reached(StageImageUploaded) {
		if job.ImageName != "" {
			if files.Image == nil {
				return p.fail(ctx, job, ErrContentRequired)
			}
			cid, err := p.content.UploadFile(ctx, job.ImageName, files.Image)
			if err != nil {
				return p.fail(ctx, job, fmt.Errorf("upload image: %w", err))
			}
			job.ImageCID = cid
			job.ImageURI = p.content.GatewayURL(cid, job.ImageName)
		}
		if err := p.checkpoint(ctx, job, StageImageUploaded, onProgress); err != nil {
			return job, err
		}
	}

	if !job.Checkpoint.Reached(StageMetadataUploaded) {
		cid, err := p.content.UploadJSON(ctx, ComposeMetadata(job))
		if err != nil {
			return p.fail(ctx, job, fmt.Errorf("upload metadata: %w", err))
		}
		job.MetadataCID = cid
		job.TokenURI = p.content.GatewayURL(cid, "")
		if err := p.checkpoint(ctx, job, StageMetadataUploaded, onProgress); err != nil {
			return job, err
		}
	}

	if !job.Checkpoint.Reached(StageMinted) {
		tokenID, err := p.mint(ctx, job)
		if errors.Is(err, ErrJobConflict) {
			return job, err
		}
		if err != nil {
			return p.fail(ctx, job, err)
		}
		job.TokenID = &tokenID
		if err := p.checkpoint(ctx, job, StageMinted, onProgress); err != nil {
			return job, err
		}
	}

	if !job.Checkpoint.Reached(StageCataloged) {
		id, err := p.catalog.CreateTrack(ctx, catalogEntry(job))
		if err != nil {
			// The token exists on chain; keep the job at minted so the catalog write can be retried.
			log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("catalog write failed after mint")
			job.Error = err.Error()
			if saveErr := p.save(ctx, job, job.Stage); saveErr != nil {
				return job, fmt.Errorf("save mint job: %w", saveErr)
			}
			return job, nil
		}
		job.TrackID = &id
		if err := p.checkpoint(ctx, job, StageCataloged, onProgress); err != nil {
			return job, err
		}
	}

	return job, nil
}

// mint claims the job by moving it to StageMinting, sends the transaction
// unless an earlier run already recorded one, and waits for the receipt.
// The hash is saved before waiting so a crash or timeout never leads to a
// second transaction.
func (p *Pipeline) mint(ctx context.Context, job *Job) (int64, error) {
	from := job.Stage
	job.Stage = StageMinting
	if err := p.save(ctx, job, from); err != nil {
		job.Stage = from
		return 0, fmt.Errorf("claim mint: %w", err)
	}

	if job.TxHash == "" {
		wei, err := job.Price.Wei()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
		}
		hash, err := p.minter.SendMint(ctx, job.Minter, job.TokenURI, big.NewInt(p.editionSize), wei)
		if err != nil {
			return 0, fmt.Errorf("mint: %w", err)
		}
		job.TxHash = hash
		if err := p.save(ctx, job, StageMinting); err != nil {
			return 0, fmt.Errorf("record mint transaction %s: %w", hash, err)
		}
		log.Info().Str("job_id", job.ID.String()).Str("tx", hash).Msg("mint transaction recorded")
	}

	res, err := p.minter.MintResultOf(ctx, job.TxHash)
	if err != nil {
		return 0, fmt.Errorf("await mint %s: %w", job.TxHash, err)
	}
	if res.TokenID == nil || !res.TokenID.IsInt64() {
		return 0, fmt.Errorf("token id %v out of range", res.TokenID)
	}
	return res.TokenID.Int64(), nil
}

// inFlight reports whether another run still holds job's mint claim.
func (p *Pipeline) inFlight(job *Job) bool {
	return job.Stage == StageMinting && p.now().Sub(job.UpdatedAt) < p.mintLease
}

func (p *Pipeline) save(ctx context.Context, job *Job, from Stage) error {
	job.UpdatedAt = p.now()
	return p.jobs.UpdateJob(ctx, job, from)
}

func (p *Pipeline) checkpoint(ctx context.Context, job *Job, stage Stage, onProgress ProgressFunc) error {
	from := job.Stage
	job.Stage = stage
	job.Checkpoint = stage
	job.Error = ""
	if err := p.save(ctx, job, from); err != nil {
		return fmt.Errorf("save mint job checkpoint %s: %w", stage, err)
	}
	log.Debug().Str("job_id", job.ID.String()).Str("stage", string(stage)).Int("progress", stage.Percent()).Msg("mint stage complete")
	notify(onProgress, job)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, job *Job, cause error) (*Job, error) {
	from := job.Stage
	job.Stage = StageFailed
	job.Error = cause.Error()
	if err := p.save(ctx, job, from); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("save failed mint job")
	}
	log.Error().Err(cause).Str("job_id", job.ID.String()).Str("checkpoint", string(job.Checkpoint)).Msg("mint job failed")
	return job, fmt.Errorf("mint job %s: %w", job.ID, cause)
}

func notify(fn ProgressFunc, job *Job) {
	if fn != nil {
		fn(*job)
	}
}

func catalogEntry(job *Job) track.Track {
	return track.Track{
		TokenID:      job.TokenID,
		Title:        job.Name,
		Artist:       job.Artist,
		Description:  job.Description,
		Genre:        job.Genre,
		Price:        job.Price,
		License:      job.License,
		ImageURI:     job.ImageURI,
		AudioURI:     job.AudioURI,
		MetadataURI:  job.TokenURI,
		OwnerAddress: job.Minter,
	}
}
