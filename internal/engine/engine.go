// Package engine is the top-level façade: it turns raw text into linked
// working memory, optionally embedding it on request.
package engine

import (
	"context"
	"strings"

	"github.com/nidhogg/cognigraph/internal/index"
	"github.com/nidhogg/cognigraph/internal/memory"
	"go.uber.org/zap"
)

// Extractor is the external NLP boundary. Implementations may call out to a
// pipeline service; the fallback tokenizer is used when none is configured
// or the call fails.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// Recorder receives a record of each processed observation. Implemented by
// the Postgres event log; nil disables recording.
type Recorder interface {
	RecordIngestion(ctx context.Context, rec IngestionRecord) error
}

// IngestionRecord is the audit row written per observation.
type IngestionRecord struct {
	NodeID   string
	Keywords []string
	Links    int
	Embedded bool
	Warning  string
}

// Statuses reported by AnalyzeText.
const (
	StatusStandalone = "standalone"
	StatusLinked     = "linked"
)

// Analysis is the structured result of ingesting one text input.
type Analysis struct {
	Status          string            `json:"status"`
	WorkingMemoryID string            `json:"working_memory_id"`
	Keywords        []string          `json:"keywords"`
	Linked          []memory.Relation `json:"linked,omitempty"`
	Warning         string            `json:"warning,omitempty"`
}

// Options tunes a single AnalyzeText call.
type Options struct {
	// Embed computes and stores the node's embedding immediately. An
	// embedding failure downgrades to a warning; the node still exists.
	Embed bool
}

// Engine wires the memory graph manager, the embedding index and the
// optional collaborators together. All dependencies are passed in; the
// engine owns none of their lifecycles.
type Engine struct {
	manager   *memory.Manager
	idx       *index.Index
	extractor Extractor
	recorder  Recorder
	logger    *zap.Logger
}

// New creates an Engine. idx, extractor and recorder may be nil.
func New(manager *memory.Manager, idx *index.Index, extractor Extractor, recorder Recorder, logger *zap.Logger) *Engine {
	return &Engine{
		manager:   manager,
		idx:       idx,
		extractor: extractor,
		recorder:  recorder,
		logger:    logger,
	}
}

// AnalyzeText derives keywords from text, stores it as working memory linked
// to related prior memories, and optionally embeds it.
func (e *Engine) AnalyzeText(ctx context.Context, text string, opts Options) (*Analysis, error) {
	keywords := e.deriveKeywords(ctx, text)

	result, err := e.manager.ProcessNewObservation(ctx, text, keywords)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		Status:          StatusLinked,
		WorkingMemoryID: result.Node.ID,
		Keywords:        result.Node.Tags,
		Linked:          result.Linked,
	}
	if result.Standalone() {
		analysis.Status = StatusStandalone
	}

	embedded := false
	if opts.Embed && e.idx != nil {
		if err := e.idx.EmbedAndStore(ctx, memory.Working, result.Node.ID, text); err != nil {
			// Node exists, unembedded. Partial failure, reported distinctly.
			analysis.Warning = err.Error()
			e.logger.Warn("immediate embedding failed",
				zap.String("id", result.Node.ID), zap.Error(err))
		} else {
			embedded = true
		}
	}

	if e.recorder != nil {
		rec := IngestionRecord{
			NodeID:   result.Node.ID,
			Keywords: analysis.Keywords,
			Links:    len(result.Linked),
			Embedded: embedded,
			Warning:  analysis.Warning,
		}
		if err := e.recorder.RecordIngestion(ctx, rec); err != nil {
			e.logger.Warn("ingestion record failed", zap.Error(err))
		}
	}
	return analysis, nil
}

// Recall searches working memory for past observations containing keyword.
func (e *Engine) Recall(ctx context.Context, keyword string, limit int) ([]*memory.Node, error) {
	return e.manager.Recall(ctx, keyword, limit)
}

// deriveKeywords asks the configured extractor first and falls back to the
// built-in tokenizer. Derivation is deterministic for a given text and
// extractor.
func (e *Engine) deriveKeywords(ctx context.Context, text string) []string {
	if e.extractor != nil {
		spans, err := e.extractor.Extract(ctx, text)
		if err == nil && len(spans) > 0 {
			return spans
		}
		if err != nil {
			e.logger.Warn("extractor failed, using fallback tokenizer", zap.Error(err))
		}
	}
	return FallbackKeywords(text)
}

// FallbackKeywords lowercases the text and keeps tokens longer than three
// characters, in order of appearance.
func FallbackKeywords(text string) []string {
	var out []string
	for _, tok := range strings.Fields(text) {
		tok = strings.ToLower(strings.Trim(tok, ".,;:!?\"'()[]"))
		if len(tok) > 3 {
			out = append(out, tok)
		}
	}
	return out
}
