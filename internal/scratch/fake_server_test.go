package scratch

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
)

// newTestLogger creates a logger that discards all output to reduce test noise
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeScratch serves the login endpoints and the cloud websocket.
type fakeScratch struct {
	server      *httptest.Server
	password    string
	frames      []string // sent after the handshake, one websocket message each
	closeNormal bool

	mu         sync.Mutex
	handshakes []handshake
	cookies    []string
	logins     int32
}

func newFakeScratch(t *testing.T, password string, frames ...string) *fakeScratch {
	t.Helper()
	return startFakeScratch(t, &fakeScratch{password: password, frames: frames, closeNormal: true})
}

// newHangingScratch accepts the handshake and then never sends or closes.
func newHangingScratch(t *testing.T, password string) *fakeScratch {
	t.Helper()
	return startFakeScratch(t, &fakeScratch{password: password})
}

func startFakeScratch(t *testing.T, fs *fakeScratch) *fakeScratch {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/csrf_token/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: csrfCookie, Value: "csrf123"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fs.logins, 1)
		if r.Header.Get("X-CSRFToken") != "csrf123" {
			http.Error(w, "csrf", http.StatusForbidden)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["password"] != fs.password {
			_, _ = w.Write([]byte(`[{"username":"` + body["username"] + `","success":0,"msg":"Incorrect username or password."}]`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "sess-abc"})
		_, _ = w.Write([]byte(`[{"username":"` + body["username"] + `","success":1,"msg":""}]`))
	})
	mux.HandleFunc("/cloud", func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		fs.mu.Lock()
		fs.cookies = append(fs.cookies, r.Header.Get("Cookie"))
		fs.mu.Unlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var hs handshake
		if err := json.Unmarshal([]byte(strings.TrimSpace(string(msg))), &hs); err == nil {
			fs.mu.Lock()
			fs.handshakes = append(fs.handshakes, hs)
			fs.mu.Unlock()
		}

		for _, f := range fs.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if fs.closeNormal {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		}
		// Wait for the client to hang up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	fs.server = httptest.NewServer(mux)
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeScratch) config(password string) Config {
	cfg := DefaultConfig()
	cfg.Username = "tester"
	cfg.Password = password
	cfg.ProjectID = "1211167512"
	cfg.BaseURL = fs.server.URL
	cfg.CloudURL = "ws" + strings.TrimPrefix(fs.server.URL, "http") + "/cloud"
	return cfg
}

func (fs *fakeScratch) Handshakes() []handshake {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]handshake(nil), fs.handshakes...)
}
