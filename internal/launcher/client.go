// Package launcher is the client library containers and launchers use
// to obtain and present session tokens against the control-plane API
// (spec.md §4.9). The request/response shape follows the typed HTTP
// client pattern in tools/credentials-mcp/main.go: build a JSON body,
// issue it with http.NewRequestWithContext, decode a typed response,
// and surface non-2xx statuses as an error carrying the response body.
package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	baseURL        string
	launcherSecret string
	httpClient     *http.Client
}

func NewClient(baseURL, launcherSecret string) *Client {
	return &Client{
		baseURL:        baseURL,
		launcherSecret: launcherSecret,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

type RegisterRequest struct {
	LauncherSecret string `json:"launcher_secret"`
	ContainerID    string `json:"container_id"`
	ContainerIP    string `json:"container_ip"`
	Mode           string `json:"mode"`
}

type RegisterResponse struct {
	Token          string `json:"token"`
	SessionSummary any    `json:"session_summary"`
}

// Register calls POST /session/register with the given container id/ip/
// mode. Callers should prefer RegisterWithResolvedIP, which determines
// containerIP itself rather than trusting a caller-supplied value.
func (c *Client) Register(ctx context.Context, containerID, containerIP, mode string) (RegisterResponse, error) {
	body := RegisterRequest{
		LauncherSecret: c.launcherSecret,
		ContainerID:    containerID,
		ContainerIP:    containerIP,
		Mode:           mode,
	}
	var out RegisterResponse
	err := c.doJSON(ctx, http.MethodPost, "/session/register", body, &out)
	return out, err
}

// Delete calls DELETE /session for the given raw token.
func (c *Client) Delete(ctx context.Context, token string) error {
	body := map[string]string{"launcher_secret": c.launcherSecret, "token": token}
	return c.doJSON(ctx, http.MethodDelete, "/session", body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("control-plane error (%d): %s", resp.StatusCode, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
