// Package remote implements the HTTP clients for the external stores: the
// primary spreadsheet web-hook endpoint and the JSON-blob backup endpoint.
// Both exchange the full application document; no partial updates exist.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
	"go.uber.org/zap"
)

var (
	// ErrMissingEndpoint indicates a client was constructed without a URL.
	ErrMissingEndpoint = errors.New("remote: endpoint url required")
	// ErrUnexpectedStatus indicates a non-2xx response from a store.
	ErrUnexpectedStatus = errors.New("remote: unexpected response status")
)

const maxDocumentBytes = 16 << 20

// PrimaryConfig describes the primary store client dependencies.
type PrimaryConfig struct {
	EndpointURL string
	HTTPClient  *http.Client
	Clock       func() time.Time
	Logger      *zap.Logger
}

// PrimaryClient reads and writes the authoritative remote document. Every
// save rewrites the entire document; the endpoint offers nothing finer.
type PrimaryClient struct {
	endpointURL string
	httpClient  *http.Client
	clock       func() time.Time
	logger      *zap.Logger
}

// NewPrimaryClient constructs a PrimaryClient with validated configuration.
func NewPrimaryClient(cfg PrimaryConfig) (*PrimaryClient, error) {
	if cfg.EndpointURL == "" {
		return nil, ErrMissingEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrimaryClient{
		endpointURL: cfg.EndpointURL,
		httpClient:  httpClient,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Fetch retrieves the latest document. A cache-busting query parameter keeps
// intermediaries from serving a stale copy.
func (c *PrimaryClient) Fetch(ctx context.Context) (appdata.Document, error) {
	requestURL, err := url.Parse(c.endpointURL)
	if err != nil {
		return appdata.Document{}, err
	}
	query := requestURL.Query()
	query.Set("t", strconv.FormatInt(c.clock().UnixMilli(), 10))
	requestURL.RawQuery = query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return appdata.Document{}, err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return appdata.Document{}, err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return appdata.Document{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxDocumentBytes))
	if err != nil {
		return appdata.Document{}, err
	}
	return appdata.Decode(payload)
}

// Push replaces the remote document wholesale.
func (c *PrimaryClient) Push(ctx context.Context, doc appdata.Document) error {
	payload, err := doc.Encode()
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body) //nolint:errcheck

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode)
	}

	c.logger.Debug("pushed document to primary store", zap.Int("bytes", len(payload)))
	return nil
}
