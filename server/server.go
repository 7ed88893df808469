// Package server exposes the playback status endpoint the video player
// reports to, the session playlist, a live score feed and /metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/maastricht-university/amusement-pipeline/metrics"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	log   logrus.FieldLogger
	board *StatusBoard
	hub   *Hub
	mux   *http.ServeMux
	srv   *http.Server

	mu       sync.RWMutex
	playlist []string
}

func New(addr string, board *StatusBoard, hub *Hub, m *metrics.Collectors, log logrus.FieldLogger) *Server {
	s := &Server{log: log, board: board, hub: hub, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /status", s.postStatus)
	s.mux.HandleFunc("GET /status", s.getStatus)
	s.mux.HandleFunc("GET /playlist", s.getPlaylist)
	s.mux.HandleFunc("GET /ws", hub.ServeWs)
	s.mux.Handle("GET /metrics", m.Handler())

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) SetPlaylist(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlist = append([]string(nil), ids...)
}

// Run serves until ctx is done, then shuts down gracefully. The websocket
// hub runs for the same lifetime.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()
	s.log.WithField("addr", ln.Addr().String()).Info("status server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("status server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) postStatus(w http.ResponseWriter, r *http.Request) {
	var u StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	st := s.board.Apply(u)
	s.log.WithFields(logrus.Fields{
		"video_id": st.VideoID,
		"playing":  st.Playing,
		"finished": st.Finished,
	}).Debug("playback status")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Status())
}

func (s *Server) getPlaylist(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ids := s.playlist
	s.mu.RUnlock()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlist": ids})
}
