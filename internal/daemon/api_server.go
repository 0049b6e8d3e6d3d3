package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"harvester/internal/api"
	"harvester/internal/config"
	"harvester/internal/logging"
	"harvester/internal/orchestrator"
	"harvester/internal/queue"
	"harvester/internal/status"
)

// controller is the part of Daemon the HTTP API calls into.
type controller interface {
	StartCycle(ctx context.Context) (api.Ack, error)
	StopCycle() api.Ack
	ResetFailed(ctx context.Context) (api.Ack, error)
	Status(ctx context.Context) (api.Status, error)
	Subscribe() (<-chan status.Snapshot, func())
	Convert(ctx context.Context, snap status.Snapshot) api.Status
	ListTasks(ctx context.Context, stages []queue.Stage) ([]api.Task, error)
	Task(ctx context.Context, id string) (*api.Task, error)
	DedupList(ctx context.Context) ([]api.DedupEntry, error)
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	ctl    controller

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, ctl controller, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || ctl == nil {
		return nil, errors.New("api server requires config and controller")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		ctl:    ctl,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/start", s.authMiddleware(token, s.handleStart))
	mux.HandleFunc("/api/stop", s.authMiddleware(token, s.handleStop))
	mux.HandleFunc("/api/reset-failed", s.authMiddleware(token, s.handleResetFailed))
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTask)
	mux.HandleFunc("/api/dedup", s.handleDedup)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	payload, err := s.ctl.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// handleStatusStream serves server-sent events: the current snapshot first,
// then one "status" event per published snapshot until the client leaves.
func (s *apiServer) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updates, cancel := s.ctl.Subscribe()
	defer cancel()

	initial, err := s.ctl.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	last := initial.Sequence
	if err := s.writeEvent(w, rc, initial); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.Sequence <= last {
				continue
			}
			last = snap.Sequence
			if err := s.writeEvent(w, rc, s.ctl.Convert(r.Context(), snap)); err != nil {
				return
			}
		}
	}
}

func (s *apiServer) writeEvent(w http.ResponseWriter, rc *http.ResponseController, payload api.Status) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log().Error("failed to encode status event", logging.Error(err))
		return err
	}
	if _, err := fmt.Fprintf(w, "event: status\nid: %d\ndata: %s\n\n", payload.Sequence, data); err != nil {
		return err
	}
	return rc.Flush()
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	ack, err := s.ctl.StartCycle(r.Context())
	if err != nil {
		code := http.StatusServiceUnavailable
		if errors.Is(err, orchestrator.ErrClosed) {
			code = http.StatusGone
		}
		s.writeError(w, code, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ack)
}

func (s *apiServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctl.StopCycle())
}

func (s *apiServer) handleResetFailed(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	ack, err := s.ctl.ResetFailed(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ack)
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	stages, err := api.ParseStages(r.URL.Query()["stage"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks, err := s.ctl.ListTasks(r.Context(), stages)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: tasks})
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	task, err := s.ctl.Task(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: *task})
}

func (s *apiServer) handleDedup(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	entries, err := s.ctl.DedupList(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.DedupListResponse{Entries: entries})
}

func (s *apiServer) allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func (s *apiServer) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.NewNop()
}
