package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haivivi/t140cast/pkg/device"
)

// apiError is a failed API call.
type apiError struct {
	Status  int
	Reason  device.Reason
	Message string
}

func (e *apiError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Reason, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Is lets errors.Is match device sentinels by reason.
func (e *apiError) Is(target error) bool {
	t, ok := target.(*device.Error)
	return ok && t.Reason == e.Reason && e.Reason != ""
}

// apiClient talks to a running t140cast server.
type apiClient struct {
	base string
	http *http.Client
}

func newClient() (*apiClient, error) {
	base := serverURL
	if base == "" {
		cfg, err := GetConfig()
		if err != nil {
			return nil, err
		}
		base = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// do sends in as the JSON body and decodes the response into out. A nil
// out discards the body.
func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error  string        `json:"error"`
			Reason device.Reason `json:"reason"`
		}
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &apiError{Status: resp.StatusCode, Reason: e.Reason, Message: e.Error}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
