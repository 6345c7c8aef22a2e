package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fotad-io/fotad/internal/agent"
)

// apiClient talks to the fotad operator API.
type apiClient struct {
	baseURL string
	httpc   *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) status() (agent.Status, error) {
	var st agent.Status
	err := c.call(http.MethodGet, "/api/v1/status", &st)
	return st, err
}

func (c *apiClient) check() (queued bool, msg string, err error) {
	var resp struct {
		Queued  bool   `json:"queued"`
		Message string `json:"message"`
	}
	if err := c.call(http.MethodPost, "/api/v1/check", &resp); err != nil {
		return false, "", err
	}
	return resp.Queued, resp.Message, nil
}

func (c *apiClient) rollback() (activeSlot, msg string, err error) {
	var resp struct {
		ActiveSlot string `json:"active_slot"`
		Message    string `json:"message"`
	}
	if err := c.call(http.MethodPost, "/api/v1/rollback", &resp); err != nil {
		return "", "", err
	}
	return resp.ActiveSlot, resp.Message, nil
}

func (c *apiClient) call(method, path string, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach fotad at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("fotad: %s", apiErr.Error)
		}
		return fmt.Errorf("fotad returned %s", resp.Status)
	}
	return json.Unmarshal(body, out)
}
