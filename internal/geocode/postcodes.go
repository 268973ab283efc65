// Package geocode resolves UK postcodes to coordinates via the
// postcodes.io API. Lookups are idempotent reads, so the transport
// retries transient failures.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/avlasov/farmmap/internal/farms"
)

// Client looks up postcodes against a postcodes.io-shaped endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	return &Client{baseURL: baseURL, httpClient: rc.StandardClient()}
}

type lookupResponse struct {
	Status int `json:"status"`
	Result *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"result"`
}

// Lookup returns coordinates for a postcode. ok=false without an error
// means the postcode is simply not known to the service.
func (c *Client) Lookup(ctx context.Context, postcode string) (coords farms.Coords, ok bool, err error) {
	pc := farms.NormalizePostcode(postcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(pc)), nil)
	if err != nil {
		return farms.Coords{}, false, fmt.Errorf("geocode: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return farms.Coords{}, false, fmt.Errorf("geocode %s: %w", pc, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return farms.Coords{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return farms.Coords{}, false, fmt.Errorf("geocode %s: status %d", pc, resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return farms.Coords{}, false, fmt.Errorf("geocode %s: decode: %w", pc, err)
	}
	if out.Result == nil {
		return farms.Coords{}, false, nil
	}
	return farms.Coords{Lat: out.Result.Latitude, Lng: out.Result.Longitude}, true, nil
}
