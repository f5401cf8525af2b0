// Package client talks to the traffic counts HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"traffic_counts/pkg/edgeid"
	"traffic_counts/pkg/flowtree"
)

// maxTreeBytes bounds a tree response body.
const maxTreeBytes = 64 << 20

var (
	// ErrTransport wraps network failures and non-2xx responses.
	ErrTransport = errors.New("traffic counts transport failure")
	// ErrNotFound is joined with ErrTransport when the server has no data
	// for the requested edge or point.
	ErrNotFound = errors.New("not found")
)

// Client fetches trees and snaps points against one API base URL.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithKey sets the API key sent as X-API-Key.
func WithKey(key string) Option {
	return func(c *Client) { c.key = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MVTURL returns the TileJSON URL of the counts vector tiles.
func (c *Client) MVTURL() string {
	return c.baseURL + "/tiles/mvt.json"
}

// TreeURL returns the URL of the tree for id.
func (c *Client) TreeURL(id edgeid.DirectedEdgeID) string {
	return c.baseURL + "/trees/" + id.String()
}

// FetchTree retrieves the raw tree record for id. Numbers are kept as
// json.Number so flowtree.Decode sees them unrounded.
func (c *Client) FetchTree(ctx context.Context, id edgeid.DirectedEdgeID) (*flowtree.RawTreeRecord, error) {
	body, err := c.get(ctx, c.TreeURL(id))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	dec := json.NewDecoder(io.LimitReader(body, maxTreeBytes))
	dec.UseNumber()
	var rec flowtree.RawTreeRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decode tree %d: %v", flowtree.ErrMalformedTreeData, id, err)
	}
	return &rec, nil
}

// Snap is the segment nearest to a queried point.
type Snap struct {
	SegmentID      uint64                `json:"segment_id"`
	EdgeID         edgeid.DirectedEdgeID `json:"edge_id"`
	DistanceMeters float64               `json:"distance_meters"`
}

// Nearest returns the segment closest to lat/lng.
func (c *Client) Nearest(ctx context.Context, lat, lng float64) (Snap, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))

	body, err := c.get(ctx, c.baseURL+"/api/v1/segments/nearest?"+q.Encode())
	if err != nil {
		return Snap{}, err
	}
	defer body.Close()

	var snap Snap
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return Snap{}, fmt.Errorf("%w: decode nearest: %v", ErrTransport, err)
	}
	return snap, nil
}

func (c *Client) get(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, u, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, u, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrTransport, u, resp.StatusCode)
	}
	return resp.Body, nil
}
