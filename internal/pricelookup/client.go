/**
 * @description
 * Client for the on-demand market price lookup API.
 * Strictly best-effort: the resolver treats every failure here as "no price" and
 * moves on, so this client never needs to distinguish failure modes beyond not-found.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 */

package pricelookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const requestTimeout = 10 * time.Second

// ErrNoPrice is returned when the API has no estimate for the vehicle
var ErrNoPrice = errors.New("pricelookup: no price available")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type lookupResponse struct {
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	SampleSize int     `json:"sample_size"`
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Lookup fetches a single market price estimate for a make/model/year.
// Returns ErrNoPrice when the API is not configured or has no data.
func (c *Client) Lookup(ctx context.Context, make, model string, year int) (float64, error) {
	if c.baseURL == "" {
		return 0, ErrNoPrice
	}

	u, err := url.Parse(c.baseURL + "/v1/price")
	if err != nil {
		return 0, err
	}
	q := u.Query()
	q.Set("make", make)
	q.Set("model", model)
	q.Set("year", strconv.Itoa(year))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrNoPrice
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pricelookup api error: status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	if body.Price <= 0 {
		return 0, ErrNoPrice
	}

	return body.Price, nil
}
