// Package ipfs pins and unpins content on an NFT.Storage compatible pinning service.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultAPIURL  = "https://api.nft.storage"
	DefaultGateway = "nftstorage.link"
)

var (
	ErrNotConfigured = errors.New("ipfs api key not configured")
	ErrUpload        = errors.New("ipfs upload failed")
	ErrUnpin         = errors.New("ipfs unpin failed")
)

// Client talks to the pinning service API.
type Client struct {
	baseURL    string
	apiKey     string
	gateway    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[string]
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 30s-timeout HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithGateway sets the subdomain gateway host used by GatewayURL.
func WithGateway(host string) Option {
	return func(c *Client) {
		if host != "" {
			c.gateway = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
		}
	}
}

// NewClient returns a client for the pinning API at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		gateway:    DefaultGateway,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ipfs",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return c
}

type uploadResponse struct {
	OK    bool `json:"ok"`
	Value struct {
		CID string `json:"cid"`
	} `json:"value"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// UploadFile pins a file sent as multipart form data and returns its CID.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrUpload, filename, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return c.upload(ctx, body.Bytes(), mw.FormDataContentType())
}

// UploadJSON pins v encoded as a JSON document and returns its CID.
func (c *Client) UploadJSON(ctx context.Context, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrUpload, err)
	}
	return c.upload(ctx, data, "application/json")
}

func (c *Client) upload(ctx context.Context, payload []byte, contentType string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	return c.breaker.Execute(func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUpload, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUpload, err)
		}
		defer resp.Body.Close()

		var out uploadResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && resp.StatusCode == http.StatusOK {
			return "", fmt.Errorf("%w: decode response: %v", ErrUpload, err)
		}
		if resp.StatusCode != http.StatusOK {
			msg := resp.Status
			if out.Error != nil && out.Error.Message != "" {
				msg = out.Error.Message
			}
			return "", fmt.Errorf("%w: %s", ErrUpload, msg)
		}
		if out.Value.CID == "" {
			return "", fmt.Errorf("%w: response carried no cid", ErrUpload)
		}

		log.Debug().Str("cid", out.Value.CID).Int("bytes", len(payload)).Msg("pinned content")
		return out.Value.CID, nil
	})
}

// Unpin removes cid from the pinning service. Unknown CIDs are not an error.
func (c *Client) Unpin(ctx context.Context, cid string) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	_, err := c.breaker.Execute(func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/"+url.PathEscape(cid), nil)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnpin, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnpin, err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
			return "", fmt.Errorf("%w: %s: %s", ErrUnpin, cid, resp.Status)
		}
		return cid, nil
	})
	return err
}

// GatewayURL returns the HTTP gateway address of cid, optionally of a file inside it.
func (c *Client) GatewayURL(cid, filename string) string {
	return GatewayURL(c.gateway, cid, filename)
}

// GatewayURL builds "https://<cid>.ipfs.<host>[/<filename>]".
func GatewayURL(host, cid, filename string) string {
	if host == "" {
		host = DefaultGateway
	}
	u := fmt.Sprintf("https://%s.ipfs.%s", cid, host)
	if filename != "" {
		u += "/" + url.PathEscape(filename)
	}
	return u
}
