// Package browser verifies the DevTools endpoint of the already-running
// browser before the worker starts. A missing browser is the only fatal
// startup condition: without it no engine session can be driven.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	probeTimeout  = 5 * time.Second
	probeAttempts = 3
	probeBackoff  = 2 * time.Second
)

// ErrNotReachable means the DevTools endpoint did not answer after all
// attempts.
var ErrNotReachable = errors.New("browser: devtools endpoint not reachable")

// Info describes the attached browser instance.
type Info struct {
	Browser         string `json:"Browser"`
	ProtocolVersion string `json:"Protocol-Version"`
	UserAgent       string `json:"User-Agent"`
	WebSocketURL    string `json:"webSocketDebuggerUrl"`
}

// Target is one open page exposed by the DevTools endpoint.
type Target struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Checker probes a DevTools HTTP endpoint.
type Checker struct {
	baseURL    string
	httpClient *http.Client
}

// NewChecker creates a checker for the given DevTools base URL, e.g.
// "http://localhost:9222".
func NewChecker(cdpURL string) *Checker {
	return &Checker{
		baseURL:    strings.TrimRight(cdpURL, "/"),
		httpClient: &http.Client{Timeout: probeTimeout},
	}
}

// Check probes /json/version with retries and returns the browser info.
// It fails only after all attempts are exhausted.
func (c *Checker) Check(ctx context.Context) (*Info, error) {
	var lastErr error
	for attempt := 1; attempt <= probeAttempts; attempt++ {
		info, err := c.version(ctx)
		if err == nil {
			return info, nil
		}
		lastErr = err

		if attempt < probeAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(probeBackoff):
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrNotReachable, probeAttempts, lastErr)
}

// Targets lists the open pages. Used for startup diagnostics so the log
// shows which engine tabs are already open.
func (c *Checker) Targets(ctx context.Context) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/json/list", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list targets: status %d", resp.StatusCode)
	}

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	return targets, nil
}

// Diagnose summarizes the endpoint state for error messages: reachable or
// not, and which page targets exist.
func (c *Checker) Diagnose(ctx context.Context) string {
	info, err := c.version(ctx)
	if err != nil {
		return fmt.Sprintf("devtools endpoint %s unreachable (%v); start the browser with --remote-debugging-port", c.baseURL, err)
	}

	targets, err := c.Targets(ctx)
	if err != nil {
		return fmt.Sprintf("browser %q reachable but target list failed: %v", info.Browser, err)
	}

	pages := 0
	for _, t := range targets {
		if t.Type == "page" {
			pages++
		}
	}
	return fmt.Sprintf("browser %q reachable, %d page target(s)", info.Browser, pages)
}

func (c *Checker) version(ctx context.Context) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/json/version", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("version probe: status %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	return &info, nil
}
