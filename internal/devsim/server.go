package devsim

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/api"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/metrics"
)

// Server exposes a Device over the firmware HTTP protocol.
type Server struct {
	device  *Device
	log     *zap.Logger
	httpSrv *http.Server
}

func NewServer(device *Device, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{device: device, log: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/poll", s.pollHandler)
	mux.HandleFunc("/mutate", s.mutateHandler)
	mux.HandleFunc("/slot-info", s.slotInfoHandler)
	mux.HandleFunc("/device-info", s.deviceInfoHandler)
	mux.Handle("/metrics", metrics.Handler())
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for httptest-based wiring.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.log.Info("simulator listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(ln)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) pollHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "poll is GET only")
		return
	}
	toolSince, err := cursorParam(r, "tool_since")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_cursor", err.Error())
		return
	}
	rawSince, err := cursorParam(r, "raw_since")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_cursor", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.device.Poll(toolSince, rawSince))
}

func (s *Server) mutateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "mutate is POST only")
		return
	}
	var req api.MutateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body", fmt.Sprintf("decode mutate request: %v", err))
		return
	}
	resp := s.device.Mutate(req)
	if !resp.Success {
		s.log.Debug("mutation rejected", zap.String("message", resp.Message))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) slotInfoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "slot-info is GET only")
		return
	}
	s.writeJSON(w, http.StatusOK, s.device.Snapshot())
}

func (s *Server) deviceInfoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "device-info is GET only")
		return
	}
	s.writeJSON(w, http.StatusOK, s.device.Info())
}

func cursorParam(r *http.Request, name string) (int64, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: api.APIError{Code: code, Message: msg}})
}
