package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
	"go.uber.org/zap"
)

// BackupConfig describes the backup store client dependencies.
type BackupConfig struct {
	EndpointURL string
	DocumentID  string
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// BackupClient mirrors the document to a secondary blob store addressed by a
// fixed document identifier. Pushes are opportunistic; fetch backs the
// admin-triggered restore.
type BackupClient struct {
	documentURL string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewBackupClient constructs a BackupClient with validated configuration.
func NewBackupClient(cfg BackupConfig) (*BackupClient, error) {
	if cfg.EndpointURL == "" || cfg.DocumentID == "" {
		return nil, ErrMissingEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupClient{
		documentURL: strings.TrimRight(cfg.EndpointURL, "/") + "/" + cfg.DocumentID,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// Fetch retrieves the latest backup document.
func (c *BackupClient) Fetch(ctx context.Context) (appdata.Document, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.documentURL, nil)
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

// Push overwrites the backup document. Callers treat failures as best-effort.
func (c *BackupClient) Push(ctx context.Context, doc appdata.Document) error {
	payload, err := doc.Encode()
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPut, c.documentURL, bytes.NewReader(payload))
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

	c.logger.Debug("pushed document to backup store", zap.Int("bytes", len(payload)))
	return nil
}
