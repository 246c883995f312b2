package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mattermost/mattermost/server/public/model"
)

// withConfigDir points the package-level config dir at dir for one test.
func withConfigDir(t *testing.T, dir string) {
	t.Helper()
	orig := configDir
	configDir = dir
	t.Cleanup(func() { configDir = orig })
}

// captureStdout returns what fn prints to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w

	done := make(chan string)
	go func() {
		b, _ := io.ReadAll(r)
		done <- string(b)
	}()

	defer func() { os.Stdout = orig }()
	fn()
	_ = w.Close()
	return <-done
}

// upstreamServer serves a fixed post list in the content API shape.
func upstreamServer(t *testing.T, ids ...string) *httptest.Server {
	t.Helper()
	var posts []map[string]string
	for _, id := range ids {
		posts = append(posts, map[string]string{
			"_id":         id,
			"description": "<p>Signal " + id + ". Entry at market.</p>",
			"createdAt":   "2026-03-01T09:30:00Z",
		})
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Authorization") != "api-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"post": posts})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// chatServer is a minimal Mattermost API fake.
type chatServer struct {
	*httptest.Server

	mu       sync.Mutex
	posts    []model.Post
	revoked  bool
	channels []*model.Channel
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	c := &chatServer{}
	c.Server = httptest.NewServer(http.HandlerFunc(c.handle))
	t.Cleanup(c.Close)
	return c
}

func (c *chatServer) setRevoked(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked = v
}

func (c *chatServer) setChannels(chs ...*model.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = chs
}

func (c *chatServer) Posts() []model.Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Post(nil), c.posts...)
}

func (c *chatServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revoked {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "api.context.session_expired.app_error", "message": "Invalid or expired session", "status_code": 401,
		})
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/api/v4/users/me":
		_ = json.NewEncoder(w).Encode(&model.User{Id: "bot-id", Username: "relay-bot"})
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/teams"):
		_ = json.NewEncoder(w).Encode([]*model.Team{{Id: "team-1", DisplayName: "Desk"}})
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/channels"):
		chs := c.channels
		if chs == nil {
			chs = []*model.Channel{}
		}
		_ = json.NewEncoder(w).Encode(chs)
	case r.Method == http.MethodPost && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = fmt.Sprintf("post-%d", len(c.posts)+1)
		c.posts = append(c.posts, post)
		_ = json.NewEncoder(w).Encode(&post)
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "not_found", "message": path, "status_code": 404})
	}
}

type testEnv struct {
	dir     string
	stateIn string
	dbPath  string
}

// writeTestConfig writes a config.yaml wired to the given fake servers and
// returns the directory layout.
func writeTestConfig(t *testing.T, upstreamURL, chatURL string, extra string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:     dir,
		stateIn: filepath.Join(dir, "state"),
		dbPath:  filepath.Join(dir, "history.db"),
	}
	cfg := fmt.Sprintf(`upstream:
  kind: api
  endpoint: %s
  token: api-token
  user_id: account-1
  timeout: 5s
poll_interval: 1
destinations: [ch-1, ch-2]
mattermost:
  server_url: %s
  token: chat-token
format:
  timezone: UTC
state:
  backend: file
  dir: %s
history:
  enabled: true
  path: %s
log:
  level: error
  format: json
%s`, upstreamURL, chatURL, env.stateIn, env.dbPath, extra)

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}
