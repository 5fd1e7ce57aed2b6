package locationsharing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the location sharing read endpoint.
const DefaultEndpoint = "https://www.google.de/maps/rpc/locationsharing/read?authuser=0&pb="

// maxBodySize bounds how much of a response is read.
const maxBodySize = 10 << 20

// Fetcher retrieves the raw location sharing payload for a session credential.
type Fetcher interface {
	Fetch(ctx context.Context, credential string) ([]byte, error)
}

// Client issues location sharing requests over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a Client. An empty endpoint selects DefaultEndpoint and a
// zero timeout leaves the deadline to the caller's context.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch performs a single GET with the credential sent as the Cookie header.
func (c *Client) Fetch(ctx context.Context, credential string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Cookie", credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}
	return body, nil
}
