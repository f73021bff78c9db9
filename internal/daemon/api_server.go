package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rewind/internal/config"
	"rewind/internal/logging"
	"rewind/internal/record"
	"rewind/internal/store"
)

const maxIngestBody = 32 << 20

type apiServer struct {
	bind   string
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Store.Bind)
	if bind == "" {
		return nil, errors.New("store.bind must be configured")
	}

	srv := &apiServer{bind: bind, daemon: d}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/snapshots/ingest", srv.handleSnapshotIngest)
	mux.HandleFunc("/api/events/ingest", srv.handleEventIngest)
	mux.HandleFunc("/api/sessions/", srv.handleSessions)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.daemon.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.daemon.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
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
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleSnapshotIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req store.SnapshotIngest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ack, err := s.daemon.store.IngestSnapshots(r.Context(), req)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ack)
}

func (s *apiServer) handleEventIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req store.EventIngest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ack, err := s.daemon.store.IngestEvents(r.Context(), req)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ack)
}

// sessionResponse is the retrieval payload: the stored session plus its
// merged record streams.
type sessionResponse struct {
	Session   *store.SessionRow `json:"session"`
	Snapshots []record.Record   `json:"snapshots"`
	Events    []record.Record   `json:"events"`
}

type sessionListResponse struct {
	Sessions []*store.SessionRow `json:"sessions"`
}

// handleSessions serves /api/sessions/{project} and
// /api/sessions/{project}/{session}.
func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	projectID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.listSessions(w, r, projectID)
	case len(parts) == 2 && r.Method == http.MethodGet:
		s.getSession(w, r, projectID, parts[1])
	case len(parts) == 2 && r.Method == http.MethodDelete:
		s.deleteSession(w, r, projectID, parts[1])
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listSessions(w http.ResponseWriter, r *http.Request, projectID int64) {
	sessions, err := s.daemon.store.ListSessions(r.Context(), projectID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions})
}

func (s *apiServer) getSession(w http.ResponseWriter, r *http.Request, projectID int64, sessionID string) {
	session, err := s.daemon.store.Session(r.Context(), projectID, sessionID)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	snapshots, err := s.daemon.store.SnapshotRecords(r.Context(), session.RowID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	events, err := s.daemon.store.EventRecords(r.Context(), session.RowID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{Session: session, Snapshots: snapshots, Events: events})
}

func (s *apiServer) deleteSession(w http.ResponseWriter, r *http.Request, projectID int64, sessionID string) {
	if err := s.daemon.store.DeleteSession(r.Context(), projectID, sessionID); err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": sessionID})
}

func (s *apiServer) writeIngestError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrBadIngest) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *apiServer) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.daemon.logger.Warn("write api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
