package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Health checks backend availability through GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("get health: %w", err)
	}
	return &resp, nil
}

// GetStations fetches every monitoring station.
func (c *Client) GetStations(ctx context.Context) ([]APIStation, error) {
	var resp StationsResponse
	if err := c.get(ctx, "/stations", nil, &resp); err != nil {
		return nil, fmt.Errorf("get stations: %w", err)
	}
	return resp.Stations, nil
}

// GetReadings fetches one page of readings for a station.
func (c *Client) GetReadings(ctx context.Context, stationID string, opts GetReadingsOptions) (*ReadingsResponse, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Since != "" {
		query.Set("since", opts.Since)
	}

	var resp ReadingsResponse
	if err := c.get(ctx, "/stations/"+url.PathEscape(stationID)+"/readings", query, &resp); err != nil {
		return nil, fmt.Errorf("get readings %s: %w", stationID, err)
	}

	return &resp, nil
}

// GetLatestReadings fetches the most recent readings for a station, newest
// first. It is the workhorse of the polling fallback path.
func (c *Client) GetLatestReadings(ctx context.Context, stationID string, limit int) ([]APIReading, error) {
	resp, err := c.GetReadings(ctx, stationID, GetReadingsOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Readings, nil
}

// GetAllReadings paginates through every reading matching opts.
func (c *Client) GetAllReadings(ctx context.Context, stationID string, opts GetReadingsOptions) ([]APIReading, error) {
	var all []APIReading
	opts.Limit = 1000 // Max page size

	for {
		resp, err := c.GetReadings(ctx, stationID, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Readings...)

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return all, nil
}
