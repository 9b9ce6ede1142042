package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"topictree/internal/auth"
	"topictree/internal/export"
	"topictree/internal/logger"
	"topictree/internal/metrics"
	"topictree/internal/rbac"
	"topictree/internal/search"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	keys       *auth.Keyring
	metrics    *metrics.Metrics
	logger     *logger.Logger
	corsOrigin string
}

type ServerOptions struct {
	Keys       *auth.Keyring
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
	CORSOrigin string
}

func NewHTTPServer(service *Service, opts ServerOptions) *HTTPServer {
	keys := opts.Keys
	if keys == nil {
		keys = auth.NewKeyring("", "", "")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	origin := opts.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	return &HTTPServer{
		service:    service,
		keys:       keys,
		metrics:    opts.Metrics,
		logger:     log.With("component", "http"),
		corsOrigin: origin,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" && s.metrics != nil {
		s.metrics.Handler().ServeHTTP(w, r)
		return
	}

	role, err := s.keys.Authenticate(r.Header.Get(auth.HeaderAPIKey))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	r = r.WithContext(auth.WithRole(r.Context(), role))

	parts := splitPath(r.URL.Path)
	switch {
	case len(parts) >= 1 && parts[0] == "trees":
		s.handleTrees(w, r, parts[1:])
	case len(parts) == 1 && parts[0] == "search" && r.Method == http.MethodGet:
		if s.allow(w, r, rbac.ActionRead) {
			s.handleSearch(w, r)
		}
	case len(parts) == 2 && parts[0] == "admin" && parts[1] == "reindex" && r.Method == http.MethodPost:
		if s.allow(w, r, rbac.ActionAdmin) {
			s.handleReindex(w, r)
		}
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"store": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["store"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// allow writes a 403 and returns false when the caller's role cannot act.
func (s *HTTPServer) allow(w http.ResponseWriter, r *http.Request, action rbac.Action) bool {
	role := auth.RoleFrom(r.Context())
	if rbac.Can(role, action) {
		return true
	}
	s.logger.Warn("request forbidden", "role", role, "action", action, "path", r.URL.Path)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	return false
}

func (s *HTTPServer) handleTrees(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodPost:
			if !s.allow(w, r, rbac.ActionTag) {
				return
			}
			id, err := s.service.CreateTree(ctx)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"tree_key": id})
		case http.MethodGet:
			if !s.allow(w, r, rbac.ActionRead) {
				return
			}
			ids, err := s.service.ListTrees(ctx)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"trees": ids})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	if len(parts) > 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		if s.allow(w, r, rbac.ActionRead) {
			s.handleGetTree(w, r, id)
		}
	case action == "topics" && r.Method == http.MethodGet:
		if !s.allow(w, r, rbac.ActionRead) {
			return
		}
		topics, err := s.service.MainTopics(ctx, id)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tree_key": id, "main_topics": topics})
	case action == "tag" && r.Method == http.MethodPost:
		if !s.allow(w, r, rbac.ActionTag) {
			return
		}
		// mistral_api_key is accepted for compatibility; the server uses its own key.
		var body struct {
			Comment       string `json:"comment"`
			MistralAPIKey string `json:"mistral_api_key"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Tag(ctx, id, body.Comment)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case action == "comments" && r.Method == http.MethodPost:
		if !s.allow(w, r, rbac.ActionTag) {
			return
		}
		var body InsertCommentInput
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		t, err := s.service.InsertComment(ctx, id, body)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tree_key": id, "tree": t})
	case action == "history" && r.Method == http.MethodGet:
		if !s.allow(w, r, rbac.ActionRead) {
			return
		}
		limit, err := intQuery(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
			return
		}
		items, err := s.service.History(ctx, id, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tree_key": id, "history": items})
	case action == "export" && r.Method == http.MethodGet:
		if s.allow(w, r, rbac.ActionRead) {
			s.handleExport(w, r, id)
		}
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleGetTree(w http.ResponseWriter, r *http.Request, id string) {
	revision := strings.TrimSpace(r.URL.Query().Get("revision"))
	var payload map[string]any
	if revision == "" {
		t, err := s.service.GetTree(r.Context(), id)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		payload = map[string]any{"tree_key": id, "tree": t}
	} else {
		t, err := s.service.GetTreeAt(r.Context(), id, revision)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		payload = map[string]any{"tree_key": id, "revision": revision, "tree": t}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.service.Export(r.Context(), id, export.Format(r.URL.Query().Get("format")))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
		return
	}
	offset, err := intQuery(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
		return
	}
	resp := s.service.Search(r.Context(), search.Query{
		Text:   q,
		TreeID: strings.TrimSpace(r.URL.Query().Get("treeId")),
		Limit:  min(limit, 100),
		Offset: offset,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleReindex(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.Reindex(r.Context())
	if err != nil {
		s.logger.Error("reindex failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "REINDEX_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "trees": n})
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, writer.status, elapsed)
		}
		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-API-KEY, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
