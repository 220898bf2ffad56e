package nhanes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/giygas/nhanes-api/logging"
	"github.com/giygas/nhanes-api/nhanes/table"
	"github.com/giygas/nhanes-api/nhanes/xport"
	"golang.org/x/text/encoding"
)

// DefaultFetchTimeout bounds a single file download.
const DefaultFetchTimeout = 5 * time.Minute

var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Fetcher retrieves and parses the file at location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (*table.Table, error)
}

// HTTPFetcher downloads transport files over HTTP(S).
type HTTPFetcher struct {
	client   *http.Client
	encoding encoding.Encoding
}

// NewHTTPFetcher creates a fetcher decoding text as Windows-1252.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		encoding: xport.DefaultEncoding,
	}
}

// Fetch downloads location and decodes it as an XPORT file.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) (*table.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}

	response, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", location, err)
	}
	defer func() {
		if err := response.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, location, response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	tbl, err := xport.Decode(body, f.encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", location, err)
	}
	return tbl, nil
}
