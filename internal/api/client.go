package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
)

// Client talks to the chat backend's REST API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zerolog.Logger
}

// NewClient builds a client for baseURL (e.g. http://localhost:8080).
func NewClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger,
	}
}

func (c *Client) apiURL(path string) string {
	return c.baseURL + path
}

// do performs the request and returns the status code and the full body.
// Transport failures come back as fetch_failed errors.
func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.apiURL(path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, core.NewError(core.ErrCodeFetchFailed, fmt.Sprintf("%s %s: %v", method, url, err), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, core.NewError(core.ErrCodeFetchFailed, fmt.Sprintf("read response: %v", err), err)
	}

	c.log.Debug().Str("method", method).Str("url", url).Int("status", resp.StatusCode).Msg("api request")
	return resp.StatusCode, data, nil
}

// errorText extracts a human-readable error from a response body. Servers
// answer with plain text or with {"error": "..."}.
func errorText(body []byte, fallback string) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fallback
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		}
		return fallback
	}
	return text
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isClientError(status int) bool {
	return status >= 400 && status < 500
}
