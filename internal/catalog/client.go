// Package catalog is the HTTP client of the MintFlip track catalog API.
// Every row it returns is normalized into a track.Track before callers see it.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"mintflip/internal/track"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("authentication required")
	ErrRequest      = errors.New("catalog request failed")
)

// Query selects a page of the catalog.
type Query struct {
	Limit  int
	Offset int
	Genre  string
}

func (q Query) normalized() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.Genre = strings.TrimSpace(q.Genre)
	return q
}

func (q Query) values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	if q.Genre != "" {
		v.Set("genre", q.Genre)
	}
	return v
}

// Client calls the catalog API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	gateway    string
	httpClient *http.Client
	group      singleflight.Group

	mu    sync.RWMutex
	token string
}

// Option customises a Client.
type Option func(*Client)

// WithGateway sets the IPFS gateway that track URIs are rewritten to.
func WithGateway(gateway string) Option {
	return func(c *Client) { c.gateway = gateway }
}

// WithToken sets the bearer token sent on authenticated calls.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default 30s-timeout HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		gateway:    track.DefaultGateway,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches one page of tracks, newest first. Identical concurrent
// queries share a single request; a caller that gives up does not cancel
// it for the others.
func (c *Client) List(ctx context.Context, q Query) ([]track.Track, error) {
	q = q.normalized()
	path := "/api/nfts/music?" + q.values().Encode()

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(path, func() (interface{}, error) {
		return c.fetchTracks(shared, path)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug().Str("path", path).Msg("catalog list request shared")
		}
		return append([]track.Track(nil), res.Val.([]track.Track)...), nil
	}
}

// ByOwner fetches the tracks owned by a wallet.
func (c *Client) ByOwner(ctx context.Context, address string) ([]track.Track, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: wallet address is required", ErrRequest)
	}
	return c.fetchTracks(ctx, "/api/nfts/music/user/"+url.PathEscape(address))
}

// Get fetches one track by catalog id.
func (c *Client) Get(ctx context.Context, id int64) (track.Track, error) {
	var row track.Row
	if err := c.do(ctx, http.MethodGet, "/api/nfts/music/"+strconv.FormatInt(id, 10), nil, &row); err != nil {
		return track.Track{}, err
	}
	return track.FromRow(row, c.gateway)
}

// RecordPlay increments the play count of a track.
func (c *Client) RecordPlay(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, "/api/nfts/music/"+strconv.FormatInt(id, 10)+"/play", nil, nil)
}

// Create adds a track to the catalog and returns its id.
func (c *Client) Create(ctx context.Context, t track.Track) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/nfts/music", track.ToInput(t), &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Authenticate exchanges a signed login message for a bearer token and
// keeps it for later calls.
func (c *Client) Authenticate(ctx context.Context, wallet, message, signature string) (string, error) {
	body := map[string]string{"walletAddress": wallet, "message": message, "signature": signature}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/users/auth", body, &out); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return out.Token, nil
}

func (c *Client) fetchTracks(ctx context.Context, path string) ([]track.Track, error) {
	var rows []track.Row
	if err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}

	tracks := make([]track.Track, 0, len(rows))
	for _, row := range rows {
		t, err := track.FromRow(row, c.gateway)
		if err != nil {
			log.Warn().Err(err).Int64("track_id", row.ID).Msg("skipping malformed catalog row")
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode body: %v", ErrRequest, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send executes req and decodes a JSON response into out, which may be nil.
func (c *Client) send(req *http.Request, out any) error {
	method, path := req.Method, req.URL.Path
	req.Header.Set("Accept", "application/json")
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequest, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = apiErr.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		default:
			return fmt.Errorf("%w: %s %s: %s", ErrRequest, method, path, msg)
		}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrRequest, path, err)
	}
	return nil
}
