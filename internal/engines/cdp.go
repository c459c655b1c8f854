package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// tab is one DevTools page target, as reported by /json/list.
type tab struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	URL          string `json:"url"`
	WebSocketURL string `json:"webSocketDebuggerUrl"`
}

// cdpMessage is a DevTools protocol frame, request or response.
type cdpMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params any             `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// cdpSession is a synchronous DevTools connection to one tab. Sessions
// are single-owner: the execution unit that opened it is the only caller,
// so requests are strictly serialized and protocol events interleaved in
// the stream are simply skipped.
type cdpSession struct {
	conn   *websocket.Conn
	nextID int64
}

// findOrCreateTab returns the websocket URL of a page tab already on the
// engine's site, creating a fresh tab when none exists.
func findOrCreateTab(ctx context.Context, cdpURL, engineURL string) (string, error) {
	base := strings.TrimRight(cdpURL, "/")

	tabs, err := listTabs(ctx, base)
	if err != nil {
		return "", err
	}

	wantHost := hostOf(engineURL)
	for _, t := range tabs {
		if t.Type == "page" && hostOf(t.URL) == wantHost && t.WebSocketURL != "" {
			return t.WebSocketURL, nil
		}
	}

	// Chrome switched /json/new to PUT; issue that directly.
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		base+"/json/new?"+url.QueryEscape(engineURL), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create tab: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("create tab: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var created tab
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode created tab: %w", err)
	}
	if created.WebSocketURL == "" {
		return "", fmt.Errorf("created tab %s has no debugger URL", created.ID)
	}
	return created.WebSocketURL, nil
}

func listTabs(ctx context.Context, base string) ([]tab, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	defer resp.Body.Close()

	var tabs []tab
	if err := json.NewDecoder(resp.Body).Decode(&tabs); err != nil {
		return nil, fmt.Errorf("decode tabs: %w", err)
	}
	return tabs, nil
}

// dialSession connects to a tab's debugger websocket.
func dialSession(ctx context.Context, wsURL string) (*cdpSession, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial devtools: %w", err)
	}
	return &cdpSession{conn: conn}, nil
}

// call issues one protocol command and waits for its response, skipping
// any events Chrome pushes in between.
func (s *cdpSession) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.nextID++
	id := s.nextID

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(cdpMessage{ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("%s: write: %w", method, err)
	}

	_ = s.conn.SetReadDeadline(deadline)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var msg cdpMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("%s: read: %w", method, err)
		}
		if msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return nil, fmt.Errorf("%s: %s (code %d)", method, msg.Error.Message, msg.Error.Code)
		}
		return msg.Result, nil
	}
}

// eval runs a JS expression in the page and returns its JSON value.
func (s *cdpSession) eval(ctx context.Context, expression string, out any) error {
	result, err := s.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return err
	}

	var wrapper struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &wrapper); err != nil {
		return fmt.Errorf("decode evaluate result: %w", err)
	}
	if wrapper.ExceptionDetails != nil {
		return fmt.Errorf("page script failed: %s", wrapper.ExceptionDetails.Text)
	}
	if out == nil || wrapper.Result.Value == nil {
		return nil
	}
	return json.Unmarshal(wrapper.Result.Value, out)
}

func (s *cdpSession) close() error {
	return s.conn.Close()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
