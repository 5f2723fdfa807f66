package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/scenesync/internal/config"
	"github.com/haasonsaas/scenesync/internal/scene"
)

// healthStatus mirrors the relay's /healthz response.
type healthStatus struct {
	Status    string `json:"status"`
	SceneFile string `json:"scene_file"`
	Sessions  int    `json:"sessions"`
}

// apiClient is the out-of-process writer's view of the relay: plain
// request/response calls against the configured base URL.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	if baseURL == "" {
		baseURL = os.Getenv("SCENESYNC_BASE_URL")
	}
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// The export call blocks for up to the relay's fulfillment window,
		// so the client timeout must comfortably exceed it.
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *apiClient) Health(ctx context.Context) (*healthStatus, error) {
	var health healthStatus
	if err := c.getJSON(ctx, "/healthz", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *apiClient) Scene(ctx context.Context) (*scene.Document, error) {
	var doc scene.Document
	if err := c.getJSON(ctx, "/api/scene", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *apiClient) ReplaceScene(ctx context.Context, doc *scene.Document) error {
	return c.doJSON(ctx, http.MethodPut, "/api/scene", doc, nil)
}

func (c *apiClient) CreateElement(ctx context.Context, el scene.Element) (scene.Element, error) {
	var created scene.Element
	if err := c.doJSON(ctx, http.MethodPost, "/api/elements", el, &created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *apiClient) UpdateElement(ctx context.Context, id string, patch scene.Element) (scene.Element, error) {
	var updated scene.Element
	if err := c.doJSON(ctx, http.MethodPatch, "/api/elements/"+id, patch, &updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *apiClient) DeleteElement(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/elements/"+id, nil, nil)
}

// Export blocks until the relay returns the rendered PNG or an error.
func (c *apiClient) Export(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/export", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the relay running at %s? %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("relay: %s (HTTP %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("relay: HTTP %d", resp.StatusCode)
}
