package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/nidhogg/cognigraph/internal/index"
	"github.com/nidhogg/cognigraph/internal/memory"
	"go.uber.org/zap"
)

type fixedExtractor struct {
	keywords []string
	err      error
}

func (f *fixedExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	return f.keywords, f.err
}

type failingProvider struct{}

func (failingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("model offline")
}
func (failingProvider) Dimension() int { return 3 }

type constProvider struct{}

func (constProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
func (constProvider) Dimension() int { return 3 }

type capturingRecorder struct {
	records []IngestionRecord
}

func (c *capturingRecorder) RecordIngestion(ctx context.Context, rec IngestionRecord) error {
	c.records = append(c.records, rec)
	return nil
}

func TestFallbackKeywords(t *testing.T) {
	got := FallbackKeywords("Suspicious network traffic on port 443.")
	want := []string{"suspicious", "network", "traffic", "port"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keyword[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAnalyzeTextStandalone(t *testing.T) {
	store := memory.NewInMemoryStore()
	mgr := memory.NewManager(store, zap.NewNop())
	e := New(mgr, nil, nil, nil, zap.NewNop())

	a, err := e.AnalyzeText(context.Background(), "Suspicious network traffic on port 443", Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.Status != StatusStandalone {
		t.Errorf("status = %q, want standalone on empty store", a.Status)
	}
	if a.WorkingMemoryID == "" {
		t.Error("missing working memory id")
	}
	if len(a.Keywords) == 0 {
		t.Error("fallback extraction produced no keywords")
	}
}

func TestAnalyzeTextLinked(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	store.CreateNodeIfAbsent(ctx, &memory.Node{
		ID: "lt_1", Type: memory.LongTerm, Content: "network anomaly report",
	})

	mgr := memory.NewManager(store, zap.NewNop())
	e := New(mgr, nil, &fixedExtractor{keywords: []string{"network"}}, nil, zap.NewNop())

	a, err := e.AnalyzeText(ctx, "new network alert", Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.Status != StatusLinked {
		t.Errorf("status = %q, want linked", a.Status)
	}
	if len(a.Linked) != 1 || a.Linked[0].Label != memory.RelRefersTo {
		t.Fatalf("linked = %v, want one REFERS_TO edge", a.Linked)
	}
}

func TestAnalyzeTextExtractorErrorFallsBack(t *testing.T) {
	store := memory.NewInMemoryStore()
	mgr := memory.NewManager(store, zap.NewNop())
	e := New(mgr, nil, &fixedExtractor{err: errors.New("pipeline down")}, nil, zap.NewNop())

	a, err := e.AnalyzeText(context.Background(), "database replication lagging", Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(a.Keywords) == 0 {
		t.Fatal("fallback tokenizer not applied on extractor error")
	}
}

func TestAnalyzeTextEmbedFailureIsWarning(t *testing.T) {
	store := memory.NewInMemoryStore()
	mgr := memory.NewManager(store, zap.NewNop())
	ix := index.New(store, failingProvider{}, zap.NewNop())
	e := New(mgr, ix, nil, nil, zap.NewNop())

	ctx := context.Background()
	a, err := e.AnalyzeText(ctx, "observation to embed", Options{Embed: true})
	if err != nil {
		t.Fatalf("embedding failure must not fail the ingestion: %v", err)
	}
	if a.Warning == "" {
		t.Error("embedding failure not surfaced as warning")
	}

	// Node persists unembedded.
	n, err := store.GetNode(ctx, memory.Working, a.WorkingMemoryID)
	if err != nil {
		t.Fatalf("node missing after embedding failure: %v", err)
	}
	if n.HasEmbedding() {
		t.Error("node unexpectedly embedded")
	}
}

func TestAnalyzeTextRecordsIngestion(t *testing.T) {
	store := memory.NewInMemoryStore()
	mgr := memory.NewManager(store, zap.NewNop())
	ix := index.New(store, constProvider{}, zap.NewNop())
	rec := &capturingRecorder{}
	e := New(mgr, ix, nil, rec, zap.NewNop())

	a, err := e.AnalyzeText(context.Background(), "observed lateral movement", Options{Embed: true})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(rec.records) != 1 {
		t.Fatalf("got %d records, want 1", len(rec.records))
	}
	r := rec.records[0]
	if r.NodeID != a.WorkingMemoryID || !r.Embedded {
		t.Errorf("record = %+v, want embedded record for %s", r, a.WorkingMemoryID)
	}
}
