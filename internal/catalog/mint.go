package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	"mintflip/internal/mint"
)

// MintForm holds the text fields of a mint submission.
type MintForm struct {
	Name        string
	Artist      string
	Description string
	Genre       string
	Price       string
	License     string
}

// Upload is a named file sent with a mint submission.
type Upload struct {
	Name    string
	Content io.Reader
}

// SubmitMint uploads a track for minting and waits for the job to finish.
func (c *Client) SubmitMint(ctx context.Context, form MintForm, audio Upload, image *Upload) (*mint.Job, error) {
	fields := map[string]string{
		"name":        form.Name,
		"artist":      form.Artist,
		"description": form.Description,
		"genre":       form.Genre,
		"price":       form.Price,
		"licenseType": form.License,
	}
	files := map[string]Upload{"audio": audio}
	if image != nil {
		files["image"] = *image
	}

	var job mint.Job
	if err := c.doMultipart(ctx, "/api/mint", fields, files, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// MintJobs lists the caller's mint jobs, newest first.
func (c *Client) MintJobs(ctx context.Context) ([]*mint.Job, error) {
	var jobs []*mint.Job
	if err := c.do(ctx, http.MethodGet, "/api/mint", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// MintJob fetches one mint job.
func (c *Client) MintJob(ctx context.Context, id uuid.UUID) (*mint.Job, error) {
	var job mint.Job
	if err := c.do(ctx, http.MethodGet, "/api/mint/"+id.String(), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ResumeMint continues a failed job. Files are only needed for upload
// stages that never completed.
func (c *Client) ResumeMint(ctx context.Context, id uuid.UUID, audio, image *Upload) (*mint.Job, error) {
	files := map[string]Upload{}
	if audio != nil {
		files["audio"] = *audio
	}
	if image != nil {
		files["image"] = *image
	}

	var job mint.Job
	if err := c.doMultipart(ctx, "/api/mint/"+id.String()+"/resume", nil, files, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CompensateMint releases the uploads of a job that never minted.
func (c *Client) CompensateMint(ctx context.Context, id uuid.UUID) (*mint.Job, error) {
	var job mint.Job
	if err := c.do(ctx, http.MethodPost, "/api/mint/"+id.String()+"/compensate", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) doMultipart(ctx context.Context, path string, fields map[string]string, files map[string]Upload, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return fmt.Errorf("%w: write field %s: %v", ErrRequest, name, err)
		}
	}
	for field, f := range files {
		fw, err := mw.CreateFormFile(field, f.Name)
		if err != nil {
			return fmt.Errorf("%w: create form file: %v", ErrRequest, err)
		}
		if _, err := io.Copy(fw, f.Content); err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrRequest, f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, out)
}
