package users

import (
	"context"
	"errors"
	"strings"

	"mintflip/internal/store"
)

// ErrMissingFields is returned when a login request is incomplete.
var ErrMissingFields = errors.New("wallet address, signature, and message are required")

// Store describes the persistence operations required by the user service.
type Store interface {
	EnsureUser(ctx context.Context, wallet string) error
	GetProfile(ctx context.Context, wallet string) (store.Profile, error)
	UpdateProfile(ctx context.Context, wallet string, update store.ProfileUpdate) (store.Profile, error)
}

// SignatureVerifier checks a signed login message.
type SignatureVerifier interface {
	Verify(ctx context.Context, address, message, signature string) error
}

// Tokens issues and validates session tokens.
type Tokens interface {
	Issue(wallet string) (string, error)
	Verify(token string) (string, error)
}

// Service exposes wallet login and profile workflows.
type Service interface {
	Login(ctx context.Context, wallet, message, signature string) (string, error)
	Authenticate(ctx context.Context, token string) (string, error)
	Profile(ctx context.Context, wallet string) (store.Profile, error)
	UpdateProfile(ctx context.Context, wallet string, update store.ProfileUpdate) (store.Profile, error)
}

type service struct {
	store    Store
	verifier SignatureVerifier
	tokens   Tokens
}

// New wires a Service backed by the provided Store.
func New(store Store, verifier SignatureVerifier, tokens Tokens) Service {
	return &service{store: store, verifier: verifier, tokens: tokens}
}

func (s *service) Login(ctx context.Context, wallet, message, signature string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	wallet = strings.TrimSpace(wallet)
	if wallet == "" || message == "" || signature == "" {
		return "", ErrMissingFields
	}
	if err := s.verifier.Verify(ctx, wallet, message, signature); err != nil {
		return "", err
	}
	if err := s.store.EnsureUser(ctx, wallet); err != nil {
		return "", err
	}
	return s.tokens.Issue(wallet)
}

func (s *service) Authenticate(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.tokens.Verify(token)
}

func (s *service) Profile(ctx context.Context, wallet string) (store.Profile, error) {
	if err := ctx.Err(); err != nil {
		return store.Profile{}, err
	}
	return s.store.GetProfile(ctx, wallet)
}

func (s *service) UpdateProfile(ctx context.Context, wallet string, update store.ProfileUpdate) (store.Profile, error) {
	if err := ctx.Err(); err != nil {
		return store.Profile{}, err
	}
	return s.store.UpdateProfile(ctx, wallet, update)
}
