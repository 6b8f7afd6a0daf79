package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status  string `json:"status"`
	AgentID string `json:"agent_id"`
}

// Status is returned by GET /status: current work-in-progress snapshot,
// the local introspection surface described in §4.3's expansion note.
type Status struct {
	AgentID            string    `json:"agent_id"`
	CurrentTaskID      string    `json:"current_task_id,omitempty"`
	QueueDepth         int       `json:"queue_depth"`
	DisclosuresEmitted int       `json:"disclosures_emitted"`
	StartedAt          time.Time `json:"started_at"`
	Uptime             float64   `json:"uptime_seconds"`
}

// HealthServer exposes /healthz and /status on a loopback HTTP port,
// trimmed from the teacher's ACP server down to pure local introspection —
// no config/secrets-apply/restart endpoints, since no other AOR component
// talks to this surface.
type HealthServer struct {
	addr      string
	agent     *Agent
	startedAt time.Time
	server    *http.Server
}

// NewHealthServer returns a HealthServer for agent, bound to addr (e.g.
// "127.0.0.1:8090").
func NewHealthServer(addr string, agent *Agent) *HealthServer {
	s := &HealthServer{addr: addr, agent: agent, startedAt: time.Now()}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start binds the listener and serves in the background until ctx is
// cancelled.
func (s *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("agent: health listen %s: %w", s.addr, err)
	}
	slog.Info("agent: health server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("agent: health server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.server.Shutdown(context.Background())
	}()
	return nil
}

func (s *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthStatus{Status: "ok", AgentID: s.agent.id})
}

func (s *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, Status{
		AgentID:            s.agent.id,
		CurrentTaskID:      s.agent.CurrentTaskID(),
		QueueDepth:         s.agent.QueueDepth(),
		DisclosuresEmitted: s.agent.DisclosuresEmitted(),
		StartedAt:          s.startedAt,
		Uptime:             time.Since(s.startedAt).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
