// Package controlapi implements the JSON-over-HTTP control surface for
// the translation daemon: pool4 membership, BIB/session introspection,
// and per-class timeout tuning.
package controlapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/gonat64/gonat64/internal/nat64"
)

// Server serves the control API's handlers. Each handler delegates to
// the translation Manager for the actual operation; Server is a thin
// adapter between HTTP and the internal domain.
type Server struct {
	manager *nat64.Manager
	logger  *slog.Logger
}

// New constructs a Server backed by mgr; Handler builds its routes.
func New(mgr *nat64.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		manager: mgr,
		logger:  logger.With(slog.String("component", "controlapi")),
	}
}

// Handler builds the routed http.Handler for the control API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pool4", s.handleAddPool4)
	mux.HandleFunc("GET /pool4", s.handleListPool4)
	mux.HandleFunc("DELETE /pool4/{addr}", s.handleRemovePool4)
	mux.HandleFunc("GET /bib", s.handleListBIB)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("PATCH /config/timeouts", s.handlePatchTimeouts)
	return mux
}

// -------------------------------------------------------------------------
// pool4
// -------------------------------------------------------------------------

type addPool4Request struct {
	Addr string `json:"addr"`
}

func (s *Server) handleAddPool4(w http.ResponseWriter, r *http.Request) {
	var req addPool4Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request body: %w", err))
		return
	}

	addr, err := netip.ParseAddr(req.Addr)
	if err != nil || !addr.Is4() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("addr %q: not an IPv4 address", req.Addr))
		return
	}

	if err := s.manager.Pool4().Register(addr); err != nil {
		writeMappedError(w, "register pool4 address", err)
		return
	}

	s.logger.Info("pool4 address added via control api", slog.String("addr", addr.String()))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemovePool4(w http.ResponseWriter, r *http.Request) {
	addr, err := netip.ParseAddr(r.PathValue("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("addr: %w", err))
		return
	}

	if err := s.manager.Pool4().Remove(addr); err != nil {
		writeMappedError(w, "remove pool4 address", err)
		return
	}

	s.logger.Info("pool4 address removed via control api", slog.String("addr", addr.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPool4(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Pool4Addresses())
}

// -------------------------------------------------------------------------
// bib / sessions
// -------------------------------------------------------------------------

func (s *Server) handleListBIB(w http.ResponseWriter, r *http.Request) {
	proto, err := parseProto(r.URL.Query().Get("proto"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.BIBs(proto))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	proto, err := parseProto(r.URL.Query().Get("proto"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Sessions(proto))
}

func parseProto(s string) (nat64.Protocol, error) {
	switch s {
	case "udp":
		return nat64.ProtoUDP, nil
	case "tcp":
		return nat64.ProtoTCP, nil
	case "icmp":
		return nat64.ProtoICMP, nil
	default:
		return 0, fmt.Errorf("proto %q: must be one of udp, tcp, icmp", s)
	}
}

// -------------------------------------------------------------------------
// config
// -------------------------------------------------------------------------

type patchTimeoutsRequest struct {
	Class   string `json:"class"`
	Timeout string `json:"timeout"`
}

func (s *Server) handlePatchTimeouts(w http.ResponseWriter, r *http.Request) {
	var req patchTimeoutsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request body: %w", err))
		return
	}

	class, err := parseClass(req.Class)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	d, err := time.ParseDuration(req.Timeout)
	if err != nil || d <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("timeout %q: must be a positive duration", req.Timeout))
		return
	}

	s.manager.Expiry().SetTimeout(class, d)
	s.logger.Info("expiry timeout updated via control api",
		slog.String("class", class.String()), slog.Duration("timeout", d))
	w.WriteHeader(http.StatusNoContent)
}

func parseClass(s string) (nat64.ExpiryClass, error) {
	switch s {
	case "udp":
		return nat64.ClassUDP, nil
	case "icmp":
		return nat64.ClassICMP, nil
	case "tcp-trans":
		return nat64.ClassTCPTrans, nil
	case "tcp-est":
		return nat64.ClassTCPEst, nil
	case "tcp-incoming-syn":
		return nat64.ClassTCPIncomingSyn, nil
	default:
		return 0, fmt.Errorf("class %q: must be one of udp, icmp, tcp-trans, tcp-est, tcp-incoming-syn", s)
	}
}

// -------------------------------------------------------------------------
// response helpers
// -------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err // response already started; nothing more to do
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeMappedError translates nat64 package sentinel errors into HTTP
// status codes.
func writeMappedError(w http.ResponseWriter, operation string, err error) {
	switch {
	case errors.Is(err, nat64.ErrAlreadyPresent):
		writeError(w, http.StatusConflict, fmt.Errorf("%s: %w", operation, err))
	case errors.Is(err, nat64.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Errorf("%s: %w", operation, err))
	case errors.Is(err, nat64.ErrPoolExhausted),
		errors.Is(err, nat64.ErrConfig):
		writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", operation, err))
	default:
		writeError(w, http.StatusInternalServerError, fmt.Errorf("%s: %w", operation, err))
	}
}
