// Package routing talks to an OSRM-compatible routing API to get road distances.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrNoRoute is returned when the service answers but finds no route
	ErrNoRoute = errors.New("routing: no route found")
	// ErrBadResponse is returned for a non-2xx status or an undecodable body
	ErrBadResponse = errors.New("routing: unexpected response")
)

// Point is a latitude/longitude pair
type Point struct {
	Lat float64
	Lng float64
}

// Config configures the routing client
type Config struct {
	// BaseURL of the routing service, e.g. "https://router.project-osrm.org"
	BaseURL string
	// Timeout bounds the whole request. Defaults to 10s.
	Timeout time.Duration
}

// Client is an HTTP client for the routing API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new routing client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// DrivingDistance returns the driving distance in meters from one point to another
func (c *Client) DrivingDistance(ctx context.Context, from, to Point) (float64, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%s,%s;%s,%s?overview=false",
		c.baseURL,
		formatCoord(from.Lng), formatCoord(from.Lat),
		formatCoord(to.Lng), formatCoord(to.Lat),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("routing: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("routing: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("routing: read body: %w", err)
	}

	var out routeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("%w: status %d: %v", ErrBadResponse, resp.StatusCode, err)
	}

	if out.Code == "NoRoute" || (resp.StatusCode == http.StatusOK && len(out.Routes) == 0) {
		return 0, ErrNoRoute
	}
	if resp.StatusCode != http.StatusOK || out.Code != "Ok" {
		return 0, fmt.Errorf("%w: status %d code %q %s", ErrBadResponse, resp.StatusCode, out.Code, out.Message)
	}

	return out.Routes[0].Distance, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
