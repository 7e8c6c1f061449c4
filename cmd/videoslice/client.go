package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/qiaofuyo/video-slice/internal/api"
	"github.com/qiaofuyo/video-slice/internal/db"
	"github.com/qiaofuyo/video-slice/internal/logging"
	"github.com/qiaofuyo/video-slice/internal/state"
)

// apiClient talks to a running agent over its loopback HTTP API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), token: token, http: &http.Client{Timeout: 30 * time.Second}}
}

// apiError is a non-2xx response from the agent.
type apiError struct {
	Status  int
	Message string
	Code    string
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("agent returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (c *commandContext) client(ctx context.Context) (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(*c.tokenFlag)
	if token == "" {
		token, err = storedToken(ctx, cfg.DBPath())
		if err != nil {
			return nil, err
		}
	}
	return newAPIClient(api.BaseURL(cfg.Port()), token), nil
}

func storedToken(ctx context.Context, dbPath string) (string, error) {
	database, err := db.Open(ctx, dbPath, logging.Discard())
	if err != nil {
		return "", fmt.Errorf("open agent state: %w", err)
	}
	defer database.Close()

	token, err := state.NewRepository(database.SQL()).GetConfig(ctx, state.KeyAuthToken)
	if err != nil {
		return "", fmt.Errorf("read api token: %w", err)
	}
	if token == "" {
		return "", errors.New("no api token yet; start the agent with `videoslice serve` first or pass --token")
	}
	return token, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("connect to agent at %s refused; start it with `videoslice serve`", c.base)
		}
		return fmt.Errorf("connect to agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e api.ErrorResponse
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error, Code: e.Code}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
