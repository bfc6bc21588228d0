// Package chi is the thin HTTP surface over the agent use cases.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ragfolio/ragfolio/internal/domain"
	"github.com/ragfolio/ragfolio/internal/index"
	"github.com/ragfolio/ragfolio/internal/metrics"
	healthuc "github.com/ragfolio/ragfolio/internal/usecase/health"
	queryuc "github.com/ragfolio/ragfolio/internal/usecase/query"
	rebuilduc "github.com/ragfolio/ragfolio/internal/usecase/rebuild"
	"github.com/ragfolio/ragfolio/internal/version"
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest          = "bad_request"
	codeMalformedQuery      = "malformed_query"
	codeQueryBlocked        = "query_blocked"
	codeUnknownAgent        = "unknown_agent"
	codeVectorDimMismatch   = "vector_dim_mismatch"
	codeUpstreamUnavailable = "upstream_unavailable"
	codeRebuildFailed       = "rebuild_failed"
	codeInternalError       = "internal_error"
)

const defaultRecordsLimit = 50

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes HTTP requests to the query, rebuild, and health services.
type Server struct {
	query         *queryuc.Service
	rebuild       *rebuilduc.Service
	health        *healthuc.Service
	usage         *metrics.Set
	stores        map[domain.Kind]*index.Store
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	query *queryuc.Service,
	rebuild *rebuilduc.Service,
	health *healthuc.Service,
	usage *metrics.Set,
	stores map[domain.Kind]*index.Store,
	logger *zap.Logger,
) *Server {
	s := &Server{
		query:   query,
		rebuild: rebuild,
		health:  health,
		usage:   usage,
		stores:  stores,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		blockedHandler,
		sentinelHandler(domain.ErrMalformedQuery, http.StatusBadRequest, codeMalformedQuery),
		sentinelHandler(domain.ErrUnknownAgent, http.StatusNotFound, codeUnknownAgent),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusBadGateway, codeUpstreamUnavailable),
		sentinelHandler(domain.ErrRebuildFailed, http.StatusInternalServerError, codeRebuildFailed),
	}
	return s
}

// Routes registers all endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.ServiceInfo)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/stats", s.Stats)
	r.Get("/search", s.Search)
	r.Post("/agents/{kind}/query", s.AgentQuery)
	r.Get("/agents/{kind}/records", s.AgentRecords)
	r.Post("/admin/rebuild", s.Rebuild)
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Query     string       `json:"query"`
	Answer    string       `json:"answer"`
	Results   []resultItem `json:"results"`
	ElapsedMs int64        `json:"elapsed_ms"`
	Success   bool         `json:"success"`
}

// AgentQuery handles POST /agents/{kind}/query.
func (s *Server) AgentQuery(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.query.Ask(r.Context(), kind, req.Query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Query:     req.Query,
		Answer:    res.Answer,
		Results:   resultsToItems(res.Results),
		ElapsedMs: res.Elapsed.Milliseconds(),
		Success:   true,
	})
}

// Search handles GET /search: raw hybrid retrieval without the answer
// model. type selects one corpus or "all".
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	typ := r.URL.Query().Get("type")
	if typ == "" {
		typ = "all"
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 0)

	var kinds []domain.Kind
	if typ == "all" {
		kinds = domain.Kinds()
	} else {
		kind, err := domain.ParseKind(typ)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest,
				"type must be 'all', 'projects', or 'awards'")
			return
		}
		kinds = []domain.Kind{kind}
	}

	resp := map[string]any{"query": q}
	for _, kind := range kinds {
		results, err := s.query.Search(r.Context(), kind, q, limit)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		resp[string(kind)] = resultsToItems(results)
	}

	writeJSON(w, http.StatusOK, resp)
}

type recordsResponse struct {
	Kind  string       `json:"kind"`
	Total int          `json:"total"`
	Items []recordItem `json:"items"`
}

// AgentRecords handles GET /agents/{kind}/records: lists the current
// snapshot's corpus.
func (s *Server) AgentRecords(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	store, ok := s.stores[kind]
	if !ok {
		s.handleDomainError(w, domain.ErrUnknownAgent)
		return
	}

	snap := store.Current()
	records := snap.Records()
	limit := parseLimit(r.URL.Query().Get("limit"), defaultRecordsLimit)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	items := make([]recordItem, len(records))
	for i := range records {
		items[i] = recordToItem(&records[i])
	}

	writeJSON(w, http.StatusOK, recordsResponse{
		Kind:  string(kind),
		Total: snap.Len(),
		Items: items,
	})
}

// Stats handles GET /stats: per-agent usage metrics state.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	states := s.usage.SnapshotAll()
	resp := make(map[string]metrics.State, len(states))
	for kind, state := range states {
		resp[string(kind)] = state
	}
	writeJSON(w, http.StatusOK, resp)
}

type rebuildResponse struct {
	Rebuilt []string `json:"rebuilt"`
}

// Rebuild handles POST /admin/rebuild. kind selects one corpus; empty or
// "all" rebuilds everything.
func (s *Server) Rebuild(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("kind")

	if typ == "" || typ == "all" {
		if err := s.rebuild.RebuildAll(r.Context()); err != nil {
			s.handleDomainError(w, err)
			return
		}
		rebuilt := make([]string, 0, len(domain.Kinds()))
		for _, k := range domain.Kinds() {
			rebuilt = append(rebuilt, string(k))
		}
		writeJSON(w, http.StatusOK, rebuildResponse{Rebuilt: rebuilt})
		return
	}

	kind, err := domain.ParseKind(typ)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.rebuild.Rebuild(r.Context(), kind); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rebuildResponse{Rebuilt: []string{string(kind)}})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// ServiceInfo handles GET /.
func (s *Server) ServiceInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "ragfolio",
		"version": version.Version,
		"agents":  domain.Kinds(),
	})
}

// recordItem is the JSON shape of one corpus record.
type recordItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`

	Location    string   `json:"location,omitempty"`
	Client      string   `json:"client,omitempty"`
	Value       string   `json:"value,omitempty"`
	Features    []string `json:"features,omitempty"`
	Specialties []string `json:"specialties,omitempty"`

	Organization    string   `json:"organization,omitempty"`
	Category        string   `json:"category,omitempty"`
	Year            string   `json:"year,omitempty"`
	Date            string   `json:"date,omitempty"`
	RelatedProjects []string `json:"related_projects,omitempty"`
}

// resultItem is one scored retrieval result.
type resultItem struct {
	recordItem
	VectorScore    float64 `json:"vector_score"`
	KeywordMatches int     `json:"keyword_matches"`
	FieldBoost     float64 `json:"field_boost"`
	FinalScore     float64 `json:"final_score"`
}

func recordToItem(rec *domain.Record) recordItem {
	return recordItem{
		ID:              rec.ID,
		Title:           rec.Title,
		Description:     rec.Description,
		URL:             rec.URL,
		ImageURL:        rec.ImageURL,
		Location:        rec.Location,
		Client:          rec.Client,
		Value:           rec.Value,
		Features:        rec.Features,
		Specialties:     rec.Specialties,
		Organization:    rec.Organization,
		Category:        rec.Category,
		Year:            rec.Year,
		Date:            rec.Date,
		RelatedProjects: rec.RelatedProjects,
	}
}

func resultsToItems(results []domain.ScoredResult) []resultItem {
	items := make([]resultItem, len(results))
	for i := range results {
		rec := results[i].Record()
		items[i] = resultItem{
			recordItem:     recordToItem(&rec),
			VectorScore:    results[i].VectorScore(),
			KeywordMatches: results[i].KeywordMatches(),
			FieldBoost:     results[i].FieldBoost(),
			FinalScore:     results[i].FinalScore(),
		}
	}
	return items
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client
// without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrMalformedQuery,
		domain.ErrQueryBlocked,
		domain.ErrUnknownAgent,
		domain.ErrVectorDimMismatch,
		domain.ErrUpstreamUnavailable,
		domain.ErrRebuildFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// blockedHandler handles guard rejections with the matched rule name.
func blockedHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrQueryBlocked) {
		return false
	}
	var blocked *domain.BlockedError
	if errors.As(err, &blocked) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":    codeQueryBlocked,
			"message": "Potential prompt injection detected",
			"rule":    blocked.Rule,
		})
		return true
	}
	writeError(w, http.StatusBadRequest, codeQueryBlocked, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
