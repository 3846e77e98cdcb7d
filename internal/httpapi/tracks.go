package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mintflip/internal/price"
	"mintflip/internal/store"
	"mintflip/internal/track"
)

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.TrackFilter{Genre: query.Get("genre")}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit parameter"})
			return
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid offset parameter"})
			return
		}
		filter.Offset = offset
	}

	rows, err := s.tracks.List(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleTracksByOwner(w http.ResponseWriter, r *http.Request) {
	rows, err := s.tracks.ByOwner(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	row, err := s.tracks.Get(r.Context(), id)
	if err != nil {
		writeTrackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleRecordPlay(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	count, err := s.tracks.RecordPlay(r.Context(), id)
	if err != nil {
		writeTrackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ID        int64 `json:"id"`
		PlayCount int64 `json:"playCount"`
	}{ID: id, PlayCount: count})
}

func (s *Server) handleCreateTrack(w http.ResponseWriter, r *http.Request) {
	var in track.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	id, err := s.tracks.Create(r.Context(), walletFrom(r), in)
	if err != nil {
		writeTrackError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		ID int64 `json:"id"`
	}{ID: id})
}

func trackID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id parameter"})
		return 0, false
	}
	return id, true
}

func writeTrackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrTrackNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "track not found"})
	case errors.Is(err, store.ErrTrackExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, track.ErrInvalidTrack),
		errors.Is(err, track.ErrInvalidLicense),
		errors.Is(err, price.ErrInvalidPrice):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}
