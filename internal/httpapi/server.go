package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"mintflip/internal/http/middleware"
	"mintflip/internal/mint"
	"mintflip/internal/store"
	"mintflip/internal/track"
)

// UserService captures wallet login and profile operations.
type UserService interface {
	Login(ctx context.Context, wallet, message, signature string) (string, error)
	Authenticate(ctx context.Context, token string) (string, error)
	Profile(ctx context.Context, wallet string) (store.Profile, error)
	UpdateProfile(ctx context.Context, wallet string, update store.ProfileUpdate) (store.Profile, error)
}

// TrackService describes catalog workflows.
type TrackService interface {
	Create(ctx context.Context, wallet string, in track.Input) (int64, error)
	List(ctx context.Context, filter store.TrackFilter) ([]track.Row, error)
	ByOwner(ctx context.Context, owner string) ([]track.Row, error)
	Get(ctx context.Context, id int64) (track.Row, error)
	RecordPlay(ctx context.Context, id int64) (int64, error)
}

// MintService coordinates mint jobs for the calling wallet.
type MintService interface {
	Start(ctx context.Context, wallet string, req mint.Request) (*mint.Job, error)
	Get(ctx context.Context, wallet string, id uuid.UUID) (*mint.Job, error)
	List(ctx context.Context, wallet string) ([]*mint.Job, error)
	Resume(ctx context.Context, wallet string, id uuid.UUID, files mint.Files) (*mint.Job, error)
	Compensate(ctx context.Context, wallet string, id uuid.UUID) (*mint.Job, error)
}

const healthTimeout = 2 * time.Second

// Server wires HTTP handlers to the underlying services.
type Server struct {
	users   UserService
	tracks  TrackService
	minting MintService
	health  func(context.Context) error
}

// Option customises a Server.
type Option func(*Server)

// WithHealthCheck makes the health routes report 503 while check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// New configures a Server. minting may be nil when no storage or chain
// backend is configured; the mint routes then answer 503.
func New(users UserService, tracks TrackService, minting MintService, opts ...Option) *Server {
	s := &Server{users: users, tracks: tracks, minting: minting}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes exposes the HTTP handlers.
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/users/auth", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/users/profile/{walletAddress}", s.handleGetProfile).Methods(http.MethodGet)

	api.HandleFunc("/nfts/music", s.handleListTracks).Methods(http.MethodGet)
	api.HandleFunc("/nfts/music/user/{address}", s.handleTracksByOwner).Methods(http.MethodGet)
	api.HandleFunc("/nfts/music/{id:[0-9]+}", s.handleGetTrack).Methods(http.MethodGet)
	api.HandleFunc("/nfts/music/{id:[0-9]+}/play", s.handleRecordPlay).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.RequireWallet(tokenVerifier{s.users}))
	protected.HandleFunc("/users/profile", s.handleUpdateProfile).Methods(http.MethodPost, http.MethodPut)
	protected.HandleFunc("/nfts/music", s.handleCreateTrack).Methods(http.MethodPost)
	protected.HandleFunc("/mint", s.handleStartMint).Methods(http.MethodPost)
	protected.HandleFunc("/mint", s.handleListMints).Methods(http.MethodGet)
	protected.HandleFunc("/mint/{id}", s.handleGetMint).Methods(http.MethodGet)
	protected.HandleFunc("/mint/{id}/resume", s.handleResumeMint).Methods(http.MethodPost)
	protected.HandleFunc("/mint/{id}/compensate", s.handleCompensateMint).Methods(http.MethodPost)

	return router
}

type healthResponse struct {
	Status  string `json:"status"`
	Minting bool   `json:"minting"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Minting: s.minting != nil}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health(ctx); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			resp.Status = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// tokenVerifier adapts UserService to the middleware's verifier.
type tokenVerifier struct {
	users UserService
}

func (v tokenVerifier) Verify(token string) (string, error) {
	return v.users.Authenticate(context.Background(), token)
}

type errorResponse struct {
	Error string `json:"error"`
}

func walletFrom(r *http.Request) string {
	wallet, _ := middleware.Wallet(r.Context())
	return wallet
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
