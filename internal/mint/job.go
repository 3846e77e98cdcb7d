package mint

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mintflip/internal/price"
	"mintflip/internal/track"
)

// Stage is a checkpoint of a mint job.
type Stage string

const (
	StagePending          Stage = "pending"
	StageAudioUploaded    Stage = "audio_uploaded"
	StageImageUploaded    Stage = "image_uploaded"
	StageMetadataUploaded Stage = "metadata_uploaded"
	StageMinted           Stage = "minted"
	StageCataloged        Stage = "cataloged"
	StageMinting          Stage = "minting"
	StageFailed           Stage = "failed"
	StageCompensated      Stage = "compensated"
)

var stageOrder = map[Stage]int{
	StagePending:          0,
	StageAudioUploaded:    1,
	StageImageUploaded:    2,
	StageMetadataUploaded: 3,
	StageMinted:           4,
	StageCataloged:        5,
}

// Reached reports whether checkpoint s is at or past target.
func (s Stage) Reached(target Stage) bool {
	a, ok := stageOrder[s]
	b, ok2 := stageOrder[target]
	return ok && ok2 && a >= b
}

// Percent is the coarse progress reported once s completes.
func (s Stage) Percent() int {
	switch s {
	case StagePending:
		return 10
	case StageAudioUploaded:
		return 40
	case StageImageUploaded:
		return 60
	case StageMetadataUploaded:
		return 90
	case StageMinted:
		return 95
	case StageCataloged:
		return 100
	}
	return 0
}

var (
	// ErrJobNotFound is returned by a JobStore for unknown ids.
	ErrJobNotFound = errors.New("mint job not found")
	// ErrJobConflict is returned by a JobStore when the stored stage is no
	// longer the one the update was based on.
	ErrJobConflict = errors.New("mint job was changed by another run")
)

// Job is the persisted state of one pipeline run. Stage is the job's status,
// Checkpoint the last stage that completed; they differ while the mint
// transaction is in flight and once the job has failed or been compensated.
type Job struct {
	ID          uuid.UUID     `json:"id"`
	Stage       Stage         `json:"stage"`
	Checkpoint  Stage         `json:"checkpoint"`
	Name        string        `json:"name"`
	Artist      string        `json:"artist"`
	Description string        `json:"description,omitempty"`
	Genre       string        `json:"genre,omitempty"`
	License     track.License `json:"licenseType"`
	Price       price.Price   `json:"price"`
	Minter      string        `json:"minter"`
	AudioName   string        `json:"audioName"`
	ImageName   string        `json:"imageName,omitempty"`
	AudioCID    string        `json:"audioCid,omitempty"`
	ImageCID    string        `json:"imageCid,omitempty"`
	MetadataCID string        `json:"metadataCid,omitempty"`
	AudioURI    string        `json:"audioUri,omitempty"`
	ImageURI    string        `json:"imageUri,omitempty"`
	TokenURI    string        `json:"tokenUri,omitempty"`
	TokenID     *int64        `json:"tokenId,omitempty"`
	TxHash      string        `json:"txHash,omitempty"`
	TrackID     *int64        `json:"trackId,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Done reports whether the job has nothing left to do.
func (j *Job) Done() bool {
	return j.Stage == StageCataloged || j.Stage == StageCompensated
}

// JobStore persists job checkpoints. UpdateJob only applies when the stored
// stage still equals from and returns ErrJobConflict otherwise.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job, from Stage) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context, minter string) ([]*Job, error)
}

// MemoryJobStore keeps jobs in process memory.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]Job
}

// NewMemoryJobStore returns an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]Job)}
}

func (m *MemoryJobStore) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemoryJobStore) UpdateJob(_ context.Context, job *Job, from Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	if stored.Stage != from {
		return ErrJobConflict
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemoryJobStore) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (m *MemoryJobStore) ListJobs(_ context.Context, minter string) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Job
	for _, job := range m.jobs {
		if minter == "" || strings.EqualFold(job.Minter, minter) {
			j := job
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}
