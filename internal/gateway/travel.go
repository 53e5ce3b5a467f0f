package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avdeev-dev/slotbook/config"
)

// TravelClient resolves driving time between two zip codes from the
// distance provider. Any failure is surfaced as an error so callers can
// fail open.
type TravelClient struct {
	baseURL string
	hc      *http.Client
}

func NewTravelClient(cfg config.TravelConfig) *TravelClient {
	return &TravelClient{
		baseURL: cfg.BaseURL,
		hc: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (c *TravelClient) GetTravelMinutes(ctx context.Context, fromZip, toZip string) (int, error) {
	query := url.Values{"from": {fromZip}, "to": {toZip}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/travel-time?"+query.Encode(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("travel provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("travel provider returned %d", resp.StatusCode)
	}

	var out struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Minutes < 0 {
		return 0, fmt.Errorf("travel provider returned negative minutes %d", out.Minutes)
	}
	return out.Minutes, nil
}
