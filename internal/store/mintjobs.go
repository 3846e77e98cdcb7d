package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mintflip/internal/mint"
	"mintflip/internal/price"
	"mintflip/internal/track"
)

const mintJobColumns = `id, stage, checkpoint, minter, name, artist, description, genre,
		license_type, price, audio_name, image_name, audio_cid, image_cid, metadata_cid,
		audio_uri, image_uri, token_uri, token_id, tx_hash, track_id, error, created_at, updated_at`

// CreateJob records a new mint job.
func (s *Store) CreateJob(ctx context.Context, job *mint.Job) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO mint_jobs (`+mintJobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`, mintJobArgs(job)...); err != nil {
		return fmt.Errorf("insert mint job: %w", err)
	}
	return nil
}

// UpdateJob saves the checkpoint fields of a job if its stored stage is
// still from. A row that moved on returns mint.ErrJobConflict.
func (s *Store) UpdateJob(ctx context.Context, job *mint.Job, from mint.Stage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mint_jobs
		SET stage = $2, checkpoint = $3, audio_cid = $4, image_cid = $5, metadata_cid = $6,
			audio_uri = $7, image_uri = $8, token_uri = $9, token_id = $10, tx_hash = $11,
			track_id = $12, error = $13, updated_at = $14
		WHERE id = $1 AND stage = $15
	`,
		job.ID,
		string(job.Stage),
		string(job.Checkpoint),
		job.AudioCID,
		job.ImageCID,
		job.MetadataCID,
		job.AudioURI,
		job.ImageURI,
		job.TokenURI,
		int64PtrArg(job.TokenID),
		job.TxHash,
		int64PtrArg(job.TrackID),
		job.Error,
		job.UpdatedAt,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update mint job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mint job: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM mint_jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check mint job: %w", err)
	}
	if !exists {
		return mint.ErrJobNotFound
	}
	return mint.ErrJobConflict
}

// GetJob loads a mint job.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*mint.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mintJobColumns+` FROM mint_jobs WHERE id = $1`, id)
	job, err := scanMintJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mint.ErrJobNotFound
		}
		return nil, fmt.Errorf("select mint job: %w", err)
	}
	return job, nil
}

// ListJobs returns the jobs started by minter, newest first.
func (s *Store) ListJobs(ctx context.Context, minter string) ([]*mint.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mintJobColumns+` FROM mint_jobs
		WHERE minter = $1
		ORDER BY created_at DESC`, strings.ToLower(minter))
	if err != nil {
		return nil, fmt.Errorf("query mint jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*mint.Job
	for rows.Next() {
		job, err := scanMintJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mint job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mint jobs: %w", err)
	}
	return jobs, nil
}

func mintJobArgs(job *mint.Job) []any {
	return []any{
		job.ID,
		string(job.Stage),
		string(job.Checkpoint),
		job.Minter,
		job.Name,
		job.Artist,
		job.Description,
		job.Genre,
		string(job.License),
		job.Price.String(),
		job.AudioName,
		job.ImageName,
		job.AudioCID,
		job.ImageCID,
		job.MetadataCID,
		job.AudioURI,
		job.ImageURI,
		job.TokenURI,
		int64PtrArg(job.TokenID),
		job.TxHash,
		int64PtrArg(job.TrackID),
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	}
}

func scanMintJob(sc rowScanner) (*mint.Job, error) {
	var (
		job              mint.Job
		stage, check     string
		license, rawCost string
		tokenID, trackID sql.NullInt64
	)
	if err := sc.Scan(
		&job.ID, &stage, &check, &job.Minter, &job.Name, &job.Artist, &job.Description, &job.Genre,
		&license, &rawCost, &job.AudioName, &job.ImageName, &job.AudioCID, &job.ImageCID, &job.MetadataCID,
		&job.AudioURI, &job.ImageURI, &job.TokenURI, &tokenID, &job.TxHash, &trackID, &job.Error,
		&job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Stage = mint.Stage(stage)
	job.Checkpoint = mint.Stage(check)
	job.License = track.License(license)
	job.TokenID = nullInt64Ptr(tokenID)
	job.TrackID = nullInt64Ptr(trackID)

	p, err := price.Parse(rawCost)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.Price = p
	return &job, nil
}
