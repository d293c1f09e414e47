package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/cognigraph/internal/engine"
	"github.com/nidhogg/cognigraph/internal/eventlog"
	"github.com/nidhogg/cognigraph/internal/index"
	"github.com/nidhogg/cognigraph/internal/kgraph"
	"github.com/nidhogg/cognigraph/internal/memory"
	"github.com/nidhogg/cognigraph/internal/simulation"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine    *engine.Engine
	manager   *memory.Manager
	idx       *index.Index
	graph     *kgraph.Graph
	reasoner  *kgraph.Reasoner
	simulator *simulation.Simulator
	audit     *eventlog.Store
	logger    *zap.Logger
}

// NewHandler creates a new API handler. idx and audit may be nil when the
// embedding provider or PostgreSQL are not configured.
func NewHandler(
	eng *engine.Engine,
	manager *memory.Manager,
	idx *index.Index,
	graph *kgraph.Graph,
	reasoner *kgraph.Reasoner,
	simulator *simulation.Simulator,
	audit *eventlog.Store,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:    eng,
		manager:   manager,
		idx:       idx,
		graph:     graph,
		reasoner:  reasoner,
		simulator: simulator,
		audit:     audit,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Post("/analyze/text", h.analyzeText)

		r.Post("/memory", h.createMemory)
		r.Post("/memory/encode", h.encodeMemory)
		r.Post("/memory/search", h.searchMemory)
		r.Post("/memory/similarity", h.similaritySearch)
		r.Get("/memory/graph/{id}", h.memoryGraph)
		r.Get("/memory/{type}", h.listMemory)
		r.Get("/memory/{type}/{id}", h.getMemory)

		r.Get("/threats/paths/{entityID}", h.threatPaths)
		r.Post("/simulate/threats", h.simulateThreats)

		r.Get("/ingestions", h.recentIngestions)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type analyzeRequest struct {
	Text  string `json:"text"`
	Embed bool   `json:"embed,omitempty"`
}

func (h *Handler) analyzeText(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	analysis, err := h.engine.AnalyzeText(r.Context(), req.Text, engine.Options{Embed: req.Embed})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type createMemoryRequest struct {
	Content    string `json:"content"`
	MemoryType string `json:"memory_type"`
	LinkToType string `json:"link_to_type,omitempty"`
	LinkToID   string `json:"link_to_id,omitempty"`
	Embed      bool   `json:"embed,omitempty"`
}

type createMemoryResponse struct {
	NodeID   string `json:"node_id"`
	LinkedTo string `json:"linked_to,omitempty"`
	Relation string `json:"relation,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

func (h *Handler) createMemory(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Validate everything before touching the store.
	typ, err := memory.ParseMemoryType(req.MemoryType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var linkTarget *memory.Node
	if req.LinkToID != "" {
		linkType, err := memory.ParseMemoryType(req.LinkToType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		linkTarget, err = h.manager.Store().GetNode(r.Context(), linkType, req.LinkToID)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
	}

	node, err := h.manager.CreateMemory(r.Context(), typ, req.Content, linkTarget)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	resp := createMemoryResponse{NodeID: node.ID}
	if linkTarget != nil {
		resp.LinkedTo = linkTarget.ID
		resp.Relation = memory.InferRelation(typ, linkTarget.Type)
	}

	if req.Embed && h.idx != nil {
		if err := h.idx.EmbedAndStore(r.Context(), typ, node.ID, req.Content); err != nil {
			// Creation already succeeded; report the embedding failure
			// without undoing the node.
			resp.Warning = err.Error()
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

type encodeRequest struct {
	MemoryType string `json:"memory_type"`
	NodeID     string `json:"node_id"`
	Content    string `json:"content,omitempty"` // re-encode this instead of the stored content
}

func (h *Handler) encodeMemory(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	typ, err := memory.ParseMemoryType(req.MemoryType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if h.idx == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "embedding provider not configured"})
		return
	}

	content := req.Content
	if content == "" {
		node, err := h.manager.Store().GetNode(r.Context(), typ, req.NodeID)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		content = node.Content
	}

	if err := h.idx.EmbedAndStore(r.Context(), typ, req.NodeID, content); err != nil {
		if errors.Is(err, index.ErrEmbeddingUnavailable) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "embedding stored", "node_id": req.NodeID})
}

type searchRequest struct {
	Query      string `json:"query"`
	MemoryType string `json:"memory_type,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

func (h *Handler) searchMemory(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	types, err := optionalTypeFilter(req.MemoryType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	nodes, err := h.manager.Store().FindNodes(r.Context(), types, req.Query, req.Limit)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"query": req.Query, "results": nodeSummaries(nodes)})
}

type similarityRequest struct {
	Query          string `json:"query"`
	MemoryType     string `json:"memory_type,omitempty"`
	TopK           int    `json:"top_k,omitempty"`
	CandidateLimit int    `json:"candidate_limit,omitempty"`
}

type similarityHit struct {
	ID      string  `json:"id"`
	Type    string  `json:"memory_type"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func (h *Handler) similaritySearch(w http.ResponseWriter, r *http.Request) {
	var req similarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if h.idx == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "embedding provider not configured"})
		return
	}

	var typ *memory.MemoryType
	if req.MemoryType != "" {
		parsed, err := memory.ParseMemoryType(req.MemoryType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		typ = &parsed
	}

	scored, err := h.idx.FindTopK(r.Context(), req.Query, req.TopK, typ, req.CandidateLimit)
	if err != nil {
		if errors.Is(err, index.ErrEmbeddingUnavailable) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		h.writeStoreError(w, err)
		return
	}

	hits := make([]similarityHit, len(scored))
	for i, s := range scored {
		hits[i] = similarityHit{
			ID:      s.Node.ID,
			Type:    string(s.Node.Type),
			Content: s.Node.Content,
			Score:   s.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"query": req.Query, "results": hits})
}

func (h *Handler) listMemory(w http.ResponseWriter, r *http.Request) {
	typ, err := memory.ParseMemoryType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := queryInt(r, "limit", 100)

	nodes, err := h.manager.Store().ListNodes(r.Context(), typ, limit)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeSummaries(nodes))
}

func (h *Handler) getMemory(w http.ResponseWriter, r *http.Request) {
	typ, err := memory.ParseMemoryType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	node, err := h.manager.Store().GetNode(r.Context(), typ, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *Handler) memoryGraph(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hops := queryInt(r, "hops", 1)
	if hops < 1 {
		hops = 1
	}
	if hops > 3 {
		hops = 3
	}

	edges, err := h.manager.Subgraph(r.Context(), id, hops)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node_id": id,
		"hops":    hops,
		"edges":   edges,
	})
}

func (h *Handler) threatPaths(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	if h.graph.Entity(entityID) == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "entity not found"})
		return
	}

	paths := h.reasoner.DetectThreatPaths(entityID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entity":  entityID,
		"paths":   paths,
		"summary": kgraph.Summarize(paths),
	})
}

type simulateRequest struct {
	Count int `json:"count,omitempty"`
}

func (h *Handler) simulateThreats(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	detections := h.simulator.Run(req.Count)
	threats := h.simulator.Seed(h.graph, detections)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"detections": detections,
		"threats":    threats,
	})
}

func (h *Handler) recentIngestions(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event log not configured"})
		return
	}
	rows, err := h.audit.RecentIngestions(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// --- helpers ---

// writeStoreError maps store sentinel errors to HTTP statuses.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, memory.ErrInvalidType):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, memory.ErrStoreUnavailable):
		h.logger.Error("store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

type nodeSummary struct {
	ID        string `json:"id"`
	Type      string `json:"memory_type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Embedded  bool   `json:"embedded"`
}

func nodeSummaries(nodes []*memory.Node) []nodeSummary {
	out := make([]nodeSummary, len(nodes))
	for i, n := range nodes {
		out[i] = nodeSummary{
			ID:        n.ID,
			Type:      string(n.Type),
			Content:   n.Content,
			Timestamp: n.Timestamp.Format(time.RFC3339Nano),
			Embedded:  n.HasEmbedding(),
		}
	}
	return out
}

func optionalTypeFilter(s string) ([]memory.MemoryType, error) {
	if s == "" {
		return nil, nil
	}
	typ, err := memory.ParseMemoryType(s)
	if err != nil {
		return nil, err
	}
	return []memory.MemoryType{typ}, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
