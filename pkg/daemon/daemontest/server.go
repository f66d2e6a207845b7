// Package daemontest provides an in-memory AdsPower local API for tests.
package daemontest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/entrhq/adspower/pkg/daemon"
)

// ThrottledMsg is the error text the real daemon uses when called too fast.
const ThrottledMsg = "Too many request per second, please check"

// Profile is the server-side view of a profile.
type Profile struct {
	ID             string
	GroupID        string
	BrowserVersion string
	Active         bool
	Headless       bool
}

// Server is a fake daemon. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	APIKey string

	mu       sync.Mutex
	profiles map[string]*Profile
	nextID   int
	down     bool
	noWS     bool
	failures map[string]int
	calls    map[string]int
}

// NewServer starts a fake daemon that expects apiKey as bearer token
// (any key when empty). It is closed when the test ends.
func NewServer(t testing.TB, apiKey string) *Server {
	t.Helper()

	s := &Server{
		APIKey:   apiKey,
		profiles: make(map[string]*Profile),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(daemon.PathStatus, s.guard(s.handleStatus))
	mux.HandleFunc(daemon.PathUserCreate, s.guard(s.handleCreate))
	mux.HandleFunc(daemon.PathUserDelete, s.guard(s.handleDelete))
	mux.HandleFunc(daemon.PathBrowserStart, s.guard(s.handleStart))
	mux.HandleFunc(daemon.PathBrowserStop, s.guard(s.handleStop))
	mux.HandleFunc(daemon.PathBrowserActive, s.guard(s.handleActive))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetDown simulates an outage: every endpoint answers HTTP 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// SetNoEndpoint makes browser starts succeed without reporting any
// debugger address, as daemons do when the kernel failed to open its port.
func (s *Server) SetNoEndpoint(missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noWS = missing
}

// Fail makes the next n calls to path answer with a non-success envelope.
func (s *Server) Fail(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] += n
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Profile returns a copy of the profile with the given id.
func (s *Server) Profile(id string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// ProfileCount returns the number of existing profiles.
func (s *Server) ProfileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}

// RunningCount returns the number of profiles with an active browser.
func (s *Server) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.profiles {
		if p.Active {
			n++
		}
	}
	return n
}

// SetActive flips a profile's browser state, e.g. to simulate a crashed browser.
func (s *Server) SetActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[id]; ok {
		p.Active = active
	}
}

func (s *Server) guard(next func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		down := s.down
		failing := s.failures[r.URL.Path] > 0
		if failing {
			s.failures[r.URL.Path]--
		}
		s.mu.Unlock()

		if down {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		if s.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+s.APIKey {
			writeEnvelope(w, -1, "invalid api key", nil)
			return
		}
		if failing {
			writeEnvelope(w, -1, ThrottledMsg, nil)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, 0, "success", nil)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID           string `json:"group_id"`
		FingerprintConfig struct {
			BrowserKernelConfig struct {
				Version string `json:"version"`
				Type    string `json:"type"`
			} `json:"browser_kernel_config"`
		} `json:"fingerprint_config"`
	}
	if r.Method != http.MethodPost {
		writeEnvelope(w, -1, "method not allowed", nil)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, -1, "invalid body", nil)
		return
	}

	s.mu.Lock()
	s.nextID++
	p := &Profile{
		ID:             fmt.Sprintf("j%06d", s.nextID),
		GroupID:        req.GroupID,
		BrowserVersion: req.FingerprintConfig.BrowserKernelConfig.Version,
	}
	s.profiles[p.ID] = p
	s.mu.Unlock()

	writeEnvelope(w, 0, "Success", map[string]interface{}{"id": p.ID})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.UserIDs) == 0 {
		writeEnvelope(w, -1, "user_ids is required", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range req.UserIDs {
		if _, ok := s.profiles[id]; !ok {
			writeEnvelope(w, -1, fmt.Sprintf("user_id %s does not exist", id), nil)
			return
		}
	}
	for _, id := range req.UserIDs {
		delete(s.profiles, id)
	}
	writeEnvelope(w, 0, "Success", nil)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("user_id")

	s.mu.Lock()
	p, ok := s.profiles[id]
	if ok {
		p.Active = true
		p.Headless = r.URL.Query().Get("headless") == "1"
	}
	noWS := s.noWS
	s.mu.Unlock()

	if !ok {
		writeEnvelope(w, -1, "user_id is invalid", nil)
		return
	}
	if noWS {
		writeEnvelope(w, 0, "success", map[string]interface{}{"ws": map[string]string{}})
		return
	}

	_, port, _ := net.SplitHostPort(s.Listener.Addr().String())
	writeEnvelope(w, 0, "success", map[string]interface{}{
		"ws": map[string]string{
			"selenium":  "127.0.0.1:" + port,
			"puppeteer": "ws://127.0.0.1:" + port + "/devtools/browser/" + uuid.NewString(),
		},
		"debug_port": port,
		"webdriver":  "/opt/adspower/chromedriver",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("user_id")

	s.mu.Lock()
	p, ok := s.profiles[id]
	if ok {
		p.Active = false
	}
	s.mu.Unlock()

	if !ok {
		writeEnvelope(w, -1, "user_id is invalid", nil)
		return
	}
	writeEnvelope(w, 0, "success", nil)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("user_id")

	s.mu.Lock()
	p, ok := s.profiles[id]
	active := ok && p.Active
	s.mu.Unlock()

	if !ok {
		writeEnvelope(w, -1, "user_id is invalid", nil)
		return
	}
	status := "Inactive"
	if active {
		status = "Active"
	}
	writeEnvelope(w, 0, "success", map[string]interface{}{"status": status})
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code": code,
		"msg":  msg,
		"data": data,
	})
}
