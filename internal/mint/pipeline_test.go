package mint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintflip/internal/chain"
	"mintflip/internal/price"
	"mintflip/internal/track"
)

const minter = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

type fakeContent struct {
	uploads  []string
	docs     []any
	unpinned []string
	failOn   string
	failJSON bool
	unpinErr error
}

func (f *fakeContent) UploadFile(_ context.Context, name string, r io.Reader) (string, error) {
	if name == f.failOn {
		return "", errors.New("gateway down")
	}
	io.ReadAll(r)
	f.uploads = append(f.uploads, name)
	return "cid-" + name, nil
}

func (f *fakeContent) UploadJSON(_ context.Context, v any) (string, error) {
	if f.failJSON {
		return "", errors.New("gateway down")
	}
	f.docs = append(f.docs, v)
	return "cid-meta", nil
}

func (f *fakeContent) Unpin(_ context.Context, cid string) error {
	f.unpinned = append(f.unpinned, cid)
	return f.unpinErr
}

func (f *fakeContent) GatewayURL(cid, filename string) string {
	if filename == "" {
		return "https://" + cid + ".ipfs.test"
	}
	return "https://" + cid + ".ipfs.test/" + filename
}

type fakeMinter struct {
	mu        sync.Mutex
	calls     int
	recovered int
	err       error
	waitErr   error
	amount    *big.Int
	priceWei  *big.Int
	tokenURI  string

	// When set, SendMint or MintResultOf announce themselves on entered
	// and block until release is closed or the context ends.
	holdSend    bool
	holdReceipt bool
	entered     chan string
	release     chan struct{}
}

func (f *fakeMinter) hold(ctx context.Context, call string) error {
	f.entered <- call
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeMinter) SendMint(ctx context.Context, to, tokenURI string, amount, priceWei *big.Int) (string, error) {
	f.mu.Lock()
	f.calls++
	f.amount, f.priceWei, f.tokenURI = amount, priceWei, tokenURI
	hold, err := f.holdSend, f.err
	f.mu.Unlock()

	if hold {
		if err := f.hold(ctx, "send"); err != nil {
			return "", err
		}
	}
	if err != nil {
		return "", err
	}
	return "0xmint", nil
}

func (f *fakeMinter) MintResultOf(ctx context.Context, txHash string) (chain.MintResult, error) {
	f.mu.Lock()
	f.recovered++
	hold, err := f.holdReceipt, f.waitErr
	f.mu.Unlock()

	if hold {
		if err := f.hold(ctx, "receipt"); err != nil {
			return chain.MintResult{TxHash: txHash}, err
		}
	}
	if err != nil {
		return chain.MintResult{TxHash: txHash}, err
	}
	return chain.MintResult{TokenID: big.NewInt(7), TxHash: txHash}, nil
}

func (f *fakeMinter) counts() (sent, awaited int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.recovered
}

type fakeCatalog struct {
	mu     sync.Mutex
	tracks []track.Track
	err    error
}

func (f *fakeCatalog) CreateTrack(_ context.Context, t track.Track) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.tracks = append(f.tracks, t)
	return int64(len(f.tracks)), nil
}

func request() Request {
	return Request{
		Name:        "Night Drive",
		Artist:      "Synth AI",
		Description: "late night",
		Genre:       "Synthwave",
		License:     "commercial",
		Price:       price.MustParse("0.05 ETH"),
		Audio:       File{Name: "drive.mp3", Content: strings.NewReader("audio")},
		Image:       &File{Name: "cover.png", Content: strings.NewReader("image")},
		Minter:      minter,
	}
}

type harness struct {
	content *fakeContent
	minter  *fakeMinter
	catalog *fakeCatalog
	jobs    *MemoryJobStore
	p       *Pipeline
}

func newHarness() *harness {
	h := &harness{
		content: &fakeContent{},
		minter:  &fakeMinter{},
		catalog: &fakeCatalog{},
		jobs:    NewMemoryJobStore(),
	}
	h.p = NewPipeline(h.content, h.minter, h.catalog, h.jobs)
	return h
}

func TestRunCompletesAllStages(t *testing.T) {
	h := newHarness()
	var progress []int
	job, err := h.p.Run(context.Background(), request(), func(j Job) { progress = append(progress, j.Checkpoint.Percent()) })
	require.NoError(t, err)

	assert.Equal(t, StageCataloged, job.Stage)
	assert.Equal(t, []int{10, 40, 60, 90, 95, 100}, progress)
	assert.Equal(t, []string{"drive.mp3", "cover.png"}, h.content.uploads)

	assert.Equal(t, int64(10), h.minter.amount.Int64())
	assert.Equal(t, "50000000000000000", h.minter.priceWei.String())
	assert.Equal(t, "https://cid-meta.ipfs.test", h.minter.tokenURI)

	require.Len(t, h.catalog.tracks, 1)
	entry := h.catalog.tracks[0]
	assert.Equal(t, track.LicenseCommercial, entry.License)
	assert.Equal(t, int64(7), *entry.TokenID)
	assert.Equal(t, "https://cid-drive.mp3.ipfs.test/drive.mp3", entry.AudioURI)
	assert.Equal(t, minter, entry.OwnerAddress)

	stored, err := h.jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCataloged, stored.Stage)
	assert.Equal(t, int64(1), *stored.TrackID)
}

func TestMetadataDocument(t *testing.T) {
	h := newHarness()
	_, err := h.p.Run(context.Background(), request(), nil)
	require.NoError(t, err)

	require.Len(t, h.content.docs, 1)
	doc := h.content.docs[0].(Metadata)
	assert.Equal(t, "Night Drive", doc.Name)
	assert.Equal(t, "https://cid-cover.png.ipfs.test/cover.png", doc.Image)
	assert.Equal(t, "https://cid-drive.mp3.ipfs.test/drive.mp3", doc.AnimationURL)
	assert.Contains(t, doc.Attributes, Attribute{TraitType: "Price", Value: "0.05"})
	assert.Contains(t, doc.Attributes, Attribute{TraitType: "License", Value: "Commercial"})
}

func TestRunWithoutImage(t *testing.T) {
	h := newHarness()
	req := request()
	req.Image = nil

	job, err := h.p.Run(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"drive.mp3"}, h.content.uploads)
	assert.Empty(t, job.ImageURI)
}

func TestValidationRunsBeforeAnyStage(t *testing.T) {
	cases := map[string]func(*Request){
		"name":    func(r *Request) { r.Name = " " },
		"audio":   func(r *Request) { r.Audio = File{} },
		"minter":  func(r *Request) { r.Minter = "nobody" },
		"license": func(r *Request) { r.License = "forever" },
		"unit":    func(r *Request) { r.Price = price.MustParse("3 MATIC") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			req := request()
			mutate(&req)

			job, err := h.p.Run(context.Background(), req, nil)
			require.Error(t, err)
			assert.Nil(t, job)
			assert.Empty(t, h.content.uploads)
			jobs, _ := h.jobs.ListJobs(context.Background(), "")
			assert.Empty(t, jobs)
		})
	}
}

func TestFailedMintNeverCatalogs(t *testing.T) {
	h := newHarness()
	h.minter.err = errors.New("user rejected")

	job, err := h.p.Run(context.Background(), request(), nil)
	require.Error(t, err)
	assert.Equal(t, StageFailed, job.Stage)
	assert.Equal(t, StageMetadataUploaded, job.Checkpoint)
	assert.Empty(t, h.catalog.tracks)
	assert.Contains(t, job.Error, "user rejected")
}

func TestResumeSkipsCompletedStages(t *testing.T) {
	h := newHarness()
	h.minter.err = errors.New("nonce too low")
	job, err := h.p.Run(context.Background(), request(), nil)
	require.Error(t, err)

	h.minter.err = nil
	resumed, err := h.p.Resume(context.Background(), job.ID, Files{}, nil)
	require.NoError(t, err)

	assert.Equal(t, StageCataloged, resumed.Stage)
	assert.Len(t, h.content.uploads, 2)
	assert.Len(t, h.content.docs, 1)
	assert.Equal(t, 2, h.minter.calls)
	assert.Len(t, h.catalog.tracks, 1)
}

func TestResumeAfterSentTransactionDoesNotRemint(t *testing.T) {
	h := newHarness()
	h.minter.waitErr = fmt.Errorf("%w: 0xmint", chain.ErrReceiptTimeout)

	job, err := h.p.Run(context.Background(), request(), nil)
	require.Error(t, err)
	assert.Equal(t, StageFailed, job.Stage)
	assert.Equal(t, "0xmint", job.TxHash)

	h.minter.waitErr = nil
	resumed, err := h.p.Resume(context.Background(), job.ID, Files{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StageCataloged, resumed.Stage)
	assert.Equal(t, 1, h.minter.calls)
	assert.Equal(t, 2, h.minter.recovered)
}

func TestResumeRefusedWhileMintInFlight(t *testing.T) {
	h := newHarness()
	h.minter.holdSend = true
	h.minter.entered = make(chan string, 1)
	h.minter.release = make(chan struct{})

	type result struct {
		job *Job
		err error
	}
	done := make(chan result, 1)
	go func() {
		job, err := h.p.Run(context.Background(), request(), nil)
		done <- result{job, err}
	}()
	require.Equal(t, "send", <-h.minter.entered)

	jobs, err := h.jobs.ListJobs(context.Background(), minter)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, StageMinting, jobs[0].Stage)
	assert.Equal(t, StageMetadataUploaded, jobs[0].Checkpoint)

	_, err = h.p.Resume(context.Background(), jobs[0].ID, Files{}, nil)
	assert.True(t, errors.Is(err, ErrJobInFlight))
	_, err = h.p.Compensate(context.Background(), jobs[0].ID)
	assert.True(t, errors.Is(err, ErrJobInFlight))

	close(h.minter.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StageCataloged, res.job.Stage)

	sent, _ := h.minter.counts()
	assert.Equal(t, 1, sent)
	assert.Len(t, h.catalog.tracks, 1)
	assert.Empty(t, h.content.unpinned)
}

func TestTxHashSavedBeforeReceipt(t *testing.T) {
	h := newHarness()
	h.minter.holdReceipt = true
	h.minter.entered = make(chan string, 1)
	h.minter.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.p.Run(ctx, request(), nil)
		done <- err
	}()
	require.Equal(t, "receipt", <-h.minter.entered)

	jobs, err := h.jobs.ListJobs(context.Background(), minter)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	stored := jobs[0]
	assert.Equal(t, StageMinting, stored.Stage)
	assert.Equal(t, "0xmint", stored.TxHash)

	// A later process finds the claim expired and recovers the receipt
	// from the recorded hash instead of sending again.
	later := NewPipeline(h.content, h.minter, h.catalog, h.jobs, WithMintLease(time.Minute))
	later.now = func() time.Time { return stored.UpdatedAt.Add(2 * time.Minute) }
	h.minter.mu.Lock()
	h.minter.holdReceipt = false
	h.minter.mu.Unlock()

	resumed, err := later.Resume(context.Background(), stored.ID, Files{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StageCataloged, resumed.Stage)
	assert.Equal(t, int64(7), *resumed.TokenID)

	cancel()
	require.Error(t, <-done)

	sent, awaited := h.minter.counts()
	assert.Equal(t, 1, sent)
	assert.Equal(t, 2, awaited)
	assert.Len(t, h.catalog.tracks, 1)

	final, err := h.jobs.GetJob(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCataloged, final.Stage)
}

func TestConcurrentResumeClaimsOnce(t *testing.T) {
	h := newHarness()
	h.minter.err = errors.New("nonce too low")
	job, err := h.p.Run(context.Background(), request(), nil)
	require.Error(t, err)

	stale := *job
	h.minter.err = nil
	_, err = h.p.Resume(context.Background(), job.ID, Files{}, nil)
	require.NoError(t, err)

	// An update based on the pre-resume copy must not overwrite the result.
	stale.Error = "late writer"
	err = h.jobs.UpdateJob(context.Background(), &stale, StageFailed)
	assert.True(t, errors.Is(err, ErrJobConflict))

	stored, err := h.jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCataloged, stored.Stage)
	assert.Equal(t, 2, h.minter.calls)
}

func TestResumeNeedsContentForPendingUpload(t *testing.T) {
	h := newHarness()
	h.content.failOn = "cover.png"
	job, err := h.p.Run(context.Background(), request(), nil)
	require.Error(t, err)
	assert.Equal(t, StageAudioUploaded, job.Checkpoint)

	h.content.failOn = ""
	_, err = h.p.Resume(context.Background(), job.ID, Files{}, nil)
	assert.True(t, errors.Is(err, ErrContentRequired))

	resumed, err := h.p.Resume(context.Background(), job.ID, Files{Image: strings.NewReader("image")}, nil)
	require.NoError(t, err)
	assert.Equal(t, StageCataloged, resumed.Stage)
	assert.Equal(t, []string{"drive.mp3", "cover.png"}, h.content.uploads)
}

func TestCatalogFailureKeepsMintedJob(t *testing.T) {
	h := newHarness()
	h.catalog.err = errors.New("db down")

	job, err := h.p.Run(context.Background(), request(), nil)
	require.NoError(t, err)
	assert.Equal(t, StageMinted, job.Stage)
	assert.Equal(t, "db down", job.Error)
	assert.False(t, job.Done())

	h.catalog.err = nil
	resumed, err := h.p.Resume(context.Background(), job.ID, Files{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StageCataloged, resumed.Stage)
	assert.Equal(t, 1, h.minter.calls)
}

func TestCompensateUnpinsUploads(t *testing.T) {
	h := newHarness()
	h.content.failJSON = true
	job, err := h.p.Run(context.Background(), request(), nil)
	require.Error(t, err)

	compensated, err := h.p.Compensate(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCompensated, compensated.Stage)
	assert.ElementsMatch(t, []string{"cid-drive.mp3", "cid-cover.png"}, h.content.unpinned)

	_, err = h.p.Resume(context.Background(), job.ID, Files{}, nil)
	assert.True(t, errors.Is(err, ErrCompensated))
}

func TestCompensateRefusedOnceMinted(t *testing.T) {
	h := newHarness()
	job, err := h.p.Run(context.Background(), request(), nil)
	require.NoError(t, err)

	_, err = h.p.Compensate(context.Background(), job.ID)
	assert.True(t, errors.Is(err, ErrAlreadyMinted))
	assert.Empty(t, h.content.unpinned)
}

func TestCompensateReportsUnpinErrors(t *testing.T) {
	h := newHarness()
	h.content.failJSON = true
	h.content.unpinErr = errors.New("unpin failed")
	job, _ := h.p.Run(context.Background(), request(), nil)

	got, err := h.p.Compensate(context.Background(), job.ID)
	require.Error(t, err)
	assert.Equal(t, StageFailed, got.Stage)
}

func TestStageReached(t *testing.T) {
	assert.True(t, StageMinted.Reached(StageAudioUploaded))
	assert.False(t, StagePending.Reached(StageAudioUploaded))
	assert.False(t, StageFailed.Reached(StagePending))
}
