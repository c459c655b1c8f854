package engines

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverFor(t *testing.T) {
	for _, engine := range []string{"chatgpt", "perplexity", "gemini", "grok"} {
		d, err := DriverFor(engine)
		require.NoError(t, err, engine)
		assert.NotEmpty(t, d.PromptInput, engine)
		assert.NotEmpty(t, d.ResponseContainer, engine)
	}

	_, err := DriverFor("copilot")
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.Len(t, Supported(), 4)
}

func TestJSLiterals(t *testing.T) {
	assert.Equal(t, `"it's \"quoted\""`, jsString(`it's "quoted"`))
	assert.Equal(t, `["a","b"]`, jsArray([]string{"a", "b"}))
}

// fakeDevTools serves /json/list plus a debugger websocket that answers
// Runtime.evaluate with a canned value.
func fakeDevTools(t *testing.T, evalValue any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/json/list":
			wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/page/1"
			json.NewEncoder(w).Encode([]tab{{
				ID:           "1",
				Type:         "page",
				URL:          "https://chatgpt.com/",
				WebSocketURL: wsURL,
			}})
		case strings.HasPrefix(r.URL.Path, "/devtools/"):
			conn, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			defer conn.Close()
			for {
				var msg cdpMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				value, _ := json.Marshal(evalValue)
				result, _ := json.Marshal(map[string]any{
					"result": map[string]any{"value": json.RawMessage(value)},
				})
				conn.WriteJSON(map[string]any{"id": msg.ID, "result": json.RawMessage(result)})
			}
		default:
			http.NotFound(w, r)
		}
	}))
	return srv
}

func TestFindOrCreateTab_ReusesExistingTab(t *testing.T) {
	srv := fakeDevTools(t, true)
	defer srv.Close()

	wsURL, err := findOrCreateTab(context.Background(), srv.URL, "https://www.chatgpt.com/c/abc")
	require.NoError(t, err)
	assert.Contains(t, wsURL, "/devtools/page/1")
}

func TestSessionEvalRoundTrip(t *testing.T) {
	srv := fakeDevTools(t, map[string]any{"ok": true})
	defer srv.Close()

	wsURL, err := findOrCreateTab(context.Background(), srv.URL, "https://chatgpt.com")
	require.NoError(t, err)

	session, err := dialSession(context.Background(), wsURL)
	require.NoError(t, err)
	defer session.close()

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, session.eval(context.Background(), "({ok: true})", &out))
	assert.True(t, out.OK)
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "chatgpt.com", hostOf("https://www.chatgpt.com/c/123"))
	assert.Equal(t, "gemini.google.com", hostOf("https://gemini.google.com/app"))
	assert.Equal(t, "", hostOf("://bad"))
}
