package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnprocessable is returned when the service rejects the request with a
// 422, i.e. the parameters or edge list failed validation server-side.
var ErrUnprocessable = errors.New("clustering service rejected request")

type ClientParams struct {
	BaseURL    string
	TimeoutMin int
}

// Client talks to the clustering service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(params ClientParams) *Client {
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}
	return &Client{
		baseURL: params.BaseURL,
		http:    &http.Client{Timeout: time.Minute * time.Duration(timeoutMin)},
	}
}

// Cluster posts the edge list and returns the flat hierarchical cover.
func (c *Client) Cluster(ctx context.Context, request *ClusterRequest) ([]Assignment, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cluster request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cluster", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cluster request failed: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("%w: %s", ErrUnprocessable, bytes.TrimSpace(msg))
	default:
		return nil, fmt.Errorf("cluster request failed with status %d", res.StatusCode)
	}

	var parsed ClusterResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode cluster response: %w", err)
	}
	return parsed.Communities, nil
}

// Health checks the service's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", res.StatusCode)
	}
	return nil
}
