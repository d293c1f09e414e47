package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nidhogg/cognigraph/internal/kgraph"
	"go.uber.org/zap"
)

// HTTPExtractor calls an external NLP service for keyword and entity
// extraction. When a graph is attached, typed entities found in the text are
// injected into it as a side effect of extraction.
type HTTPExtractor struct {
	endpoint string
	client   *http.Client
	graph    *kgraph.Graph
	logger   *zap.Logger
}

// NewHTTPExtractor returns an extractor for the given service endpoint.
func NewHTTPExtractor(endpoint string, logger *zap.Logger) *HTTPExtractor {
	return &HTTPExtractor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// AttachGraph enables entity injection into g on every extraction.
func (e *HTTPExtractor) AttachGraph(g *kgraph.Graph) {
	e.graph = g
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Entities []kgraph.ExtractedEntity `json:"entities"`
}

// Extract posts text to the service and returns the tagged span texts as
// keywords. Typed entities are injected into the attached graph, if any.
func (e *HTTPExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	body, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extractor request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}

	var parsed extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}

	if e.graph != nil {
		if ids := kgraph.InjectEntities(e.graph, parsed.Entities); len(ids) > 0 {
			e.logger.Debug("entities injected", zap.Int("count", len(ids)))
		}
	}

	keywords := make([]string, 0, len(parsed.Entities))
	for _, ent := range parsed.Entities {
		keywords = append(keywords, ent.Text)
	}
	return keywords, nil
}
