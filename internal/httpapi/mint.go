package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"mintflip/internal/app/minting"
	"mintflip/internal/logging"
	"mintflip/internal/mint"
	"mintflip/internal/price"
	"mintflip/internal/track"
)

const maxUploadMemory = 32 << 20

type mintErrorResponse struct {
	Error string    `json:"error"`
	Job   *mint.Job `json:"job,omitempty"`
}

func (s *Server) handleStartMint(w http.ResponseWriter, r *http.Request) {
	if !s.mintingEnabled(w) {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "expected multipart form data"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, closers, err := mintRequest(r)
	defer closeAll(closers)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	job, err := s.minting.Start(r.Context(), walletFrom(r), req)
	if err != nil {
		s.writeMintError(w, r, job, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListMints(w http.ResponseWriter, r *http.Request) {
	if !s.mintingEnabled(w) {
		return
	}
	jobs, err := s.minting.List(r.Context(), walletFrom(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if jobs == nil {
		jobs = []*mint.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetMint(w http.ResponseWriter, r *http.Request) {
	if !s.mintingEnabled(w) {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := s.minting.Get(r.Context(), walletFrom(r), id)
	if err != nil {
		s.writeMintError(w, r, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleResumeMint(w http.ResponseWriter, r *http.Request) {
	if !s.mintingEnabled(w) {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	var files mint.Files
	var closers []io.Closer
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form data"})
			return
		}
		defer r.MultipartForm.RemoveAll()
		if f, _, err := r.FormFile("audio"); err == nil {
			files.Audio = f
			closers = append(closers, f)
		}
		if f, _, err := r.FormFile("image"); err == nil {
			files.Image = f
			closers = append(closers, f)
		}
	}
	defer closeAll(closers)

	job, err := s.minting.Resume(r.Context(), walletFrom(r), id, files)
	if err != nil {
		s.writeMintError(w, r, job, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCompensateMint(w http.ResponseWriter, r *http.Request) {
	if !s.mintingEnabled(w) {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := s.minting.Compensate(r.Context(), walletFrom(r), id)
	if err != nil {
		s.writeMintError(w, r, job, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) mintingEnabled(w http.ResponseWriter) bool {
	if s.minting == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "minting is not configured"})
		return false
	}
	return true
}

func (s *Server) writeMintError(w http.ResponseWriter, r *http.Request, job *mint.Job, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, mint.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, minting.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, mint.ErrAlreadyMinted),
		errors.Is(err, mint.ErrCompensated),
		errors.Is(err, mint.ErrJobInFlight),
		errors.Is(err, mint.ErrJobConflict):
		status = http.StatusConflict
	case errors.Is(err, mint.ErrMissingName),
		errors.Is(err, mint.ErrMissingAudio),
		errors.Is(err, mint.ErrInvalidMinter),
		errors.Is(err, mint.ErrInvalidPrice),
		errors.Is(err, mint.ErrContentRequired),
		errors.Is(err, track.ErrInvalidLicense):
		status = http.StatusBadRequest
	default:
		logging.WithContext(r.Context()).Error().Err(err).Msg("mint job failed")
	}
	writeJSON(w, status, mintErrorResponse{Error: err.Error(), Job: job})
}

// mintRequest reads the form fields and files of a mint submission. The
// returned closers must be closed once the job has run.
func mintRequest(r *http.Request) (mint.Request, []io.Closer, error) {
	var closers []io.Closer

	p := price.Zero(price.DefaultUnit)
	if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
		parsed, err := price.Parse(raw)
		if err != nil {
			return mint.Request{}, closers, err
		}
		p = parsed
	}

	license := r.FormValue("licenseType")
	if license == "" {
		license = r.FormValue("license")
	}

	req := mint.Request{
		Name:        r.FormValue("name"),
		Artist:      r.FormValue("artist"),
		Description: r.FormValue("description"),
		Genre:       r.FormValue("genre"),
		License:     track.License(license),
		Price:       p,
	}

	audio, audioHeader, err := r.FormFile("audio")
	if err != nil {
		return req, closers, mint.ErrMissingAudio
	}
	closers = append(closers, audio)
	req.Audio = mint.File{Name: audioHeader.Filename, Content: audio}

	if image, imageHeader, err := r.FormFile("image"); err == nil {
		closers = append(closers, image)
		req.Image = &mint.File{Name: imageHeader.Filename, Content: image}
	} else if !errors.Is(err, http.ErrMissingFile) {
		return req, closers, err
	}

	return req, closers, nil
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid job id"})
		return uuid.Nil, false
	}
	return id, true
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
