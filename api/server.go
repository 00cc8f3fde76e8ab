package api

import (
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

// maxBodySize limits request bodies
const maxBodySize = 1 << 20

// Server serves the API
type Server struct {
	mgr      Manager
	origins  []string
	validate *validator.Validate
	mux      *http.ServeMux
}

// Option configures the Server
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins, `*` allows any
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New returns the API server for the manager
func New(mgr Manager, opts ...Option) *Server {
	s := &Server{
		mgr:      mgr,
		origins:  []string{"*"},
		validate: validator.New(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /connect", s.handleConnect)
	s.mux.HandleFunc("POST /disconnect", s.handleDisconnect)
	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("DELETE /history", s.handleClearHistory)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the HTTP handler with CORS and request logging
func (s *Server) Handler() http.Handler {
	return s.withLogging(s.withCORS(s.mux))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !s.decode(w, r, &req) {
		return
	}

	status, err := s.mgr.Connect(r.Context(), req.ServerPath)
	if err != nil {
		s.errorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ConnectResponse{
		Status:    "connected",
		Tools:     status.Tools,
		SessionID: status.SessionID,
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Disconnect(r.Context()); err != nil {
		s.errorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.mgr.Status())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	// checked before the body, a query without a session never reaches the model
	if !s.mgr.Status().Connected {
		s.errorResponse(w, r, http.StatusBadRequest, chatmodel.ErrNotConnected)
		return
	}

	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	turn, err := s.mgr.Query(r.Context(), req.Query)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, chatmodel.ErrNotConnected) {
			code = http.StatusBadRequest
		}
		s.errorResponse(w, r, code, err)
		return
	}
	writeJSON(w, r, http.StatusOK, turn)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.mgr.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.mgr.History(r.Context())
	if err != nil {
		s.errorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	if turns == nil {
		turns = []chatmodel.ConversationTurn{}
	}
	writeJSON(w, r, http.StatusOK, turns)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.ClearHistory(r.Context()); err != nil {
		s.errorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads and validates the JSON body,
// on failure the error response is written and false returned
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, errors.Wrap(err, "failed to read request"))
		return false
	}
	if err = json.Unmarshal(body, v); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, errors.Wrap(err, "invalid request"))
		return false
	}
	if err = s.validate.Struct(v); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, errors.WithMessage(err, "invalid request"))
		return false
	}
	return true
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, code int, err error) {
	detail := err.Error()
	if errors.Is(err, chatmodel.ErrNotConnected) {
		detail = NotConnectedDetail
	}

	level := xlog.WARNING
	if code >= http.StatusInternalServerError {
		level = xlog.ERROR
	}
	logger.ContextKV(r.Context(), level,
		"method", r.Method,
		"path", r.URL.Path,
		"code", code,
		"err", detail,
	)
	writeJSON(w, r, code, ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ContextKV(r.Context(), xlog.DEBUG,
			"reason", "write_response",
			"err", err.Error(),
		)
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowOrigin(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) bool {
	return slices.ContainsFunc(s.origins, func(o string) bool {
		return o == "*" || strings.EqualFold(o, origin)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if r.Pattern == "" {
			// unrouted paths are not used as metric tags
			path = "other"
		}
		metricskey.PerfHTTPRequest.MeasureSince(started, r.Method, path)
		metricskey.StatsHTTPRequests.IncrCounter(1, r.Method, path, strconv.Itoa(rec.code))

		logger.ContextKV(r.Context(), xlog.DEBUG,
			"method", r.Method,
			"path", r.URL.Path,
			"code", rec.code,
			"elapsed", time.Since(started).String(),
		)
	})
}
