package rag

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleIndex(repo string, entries ...EmbeddingEntry) *EmbeddingIndex {
	return &EmbeddingIndex{
		Repository: repo,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		ModelName:  "test-model",
		Entries:    entries,
	}
}

func entryFor(id, content string, embedding []float64) EmbeddingEntry {
	return EmbeddingEntry{
		Chunk: DocumentChunk{
			ID:      id,
			Content: content,
			Metadata: ChunkMetadata{
				FilePath:   "a.txt",
				FileName:   "a.txt",
				FileType:   "txt",
				Repository: "acme/widget",
				ChunkType:  ChunkTypePlain,
			},
			StartLine: 1,
			EndLine:   1,
		},
		Embedding: embedding,
		Norm:      EuclideanNorm(embedding),
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	index := sampleIndex("acme/widget",
		entryFor("a.txt#0", "hello", []float64{1, 2, 3}),
		entryFor("a.txt#1", "world", []float64{4, 5, 6}),
	)
	if err := store.Save(index); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := store.Load("acme/widget")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.Repository != index.Repository || loaded.ModelName != index.ModelName {
		t.Fatalf("header mismatch: %+v", loaded)
	}
	if len(loaded.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded.Entries))
	}
	for i, entry := range loaded.Entries {
		orig := index.Entries[i]
		if entry.Chunk != orig.Chunk {
			t.Fatalf("chunk %d not identical after round trip:\n %+v\n %+v", i, entry.Chunk, orig.Chunk)
		}
		if entry.Norm != orig.Norm {
			t.Fatalf("norm %d changed: %v vs %v", i, entry.Norm, orig.Norm)
		}
	}
}

func TestStore_NormInvariant(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	index := sampleIndex("r",
		entryFor("a#0", "x", []float64{0.1, 0.2, 0.3, 0.4}),
		entryFor("a#1", "y", []float64{-1.5, 2.5, 0, 3}),
	)
	if err := store.Save(index); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, _, _ := store.Load("r")

	dim := len(loaded.Entries[0].Embedding)
	for i, entry := range loaded.Entries {
		if len(entry.Embedding) != dim {
			t.Fatalf("entry %d has dimension %d, want %d", i, len(entry.Embedding), dim)
		}
		var sum float64
		for _, v := range entry.Embedding {
			sum += v * v
		}
		if math.Abs(entry.Norm-math.Sqrt(sum)) > 1e-9 {
			t.Fatalf("entry %d norm %v does not match embedding (want %v)", i, entry.Norm, math.Sqrt(sum))
		}
	}
}

func TestStore_MissingIndexIsNotAnError(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	_, ok, err := store.Load("never/indexed")
	if err != nil {
		t.Fatalf("missing index must not error: %v", err)
	}
	if ok {
		t.Fatal("missing index reported as present")
	}

	results, err := store.Search("never/indexed", []float64{1, 0}, 5, 0)
	if err != nil {
		t.Fatalf("search on missing index must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
}

func TestStore_SanitizedFilename(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)
	if err := store.Save(sampleIndex("acme/widget repo!")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "acme_widget_repo_.json")); err != nil {
		t.Fatalf("expected sanitized filename: %v", err)
	}
}

func TestStore_OverwriteReplacesWholeIndex(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	_ = store.Save(sampleIndex("r", entryFor("old#0", "old", []float64{1})))
	_ = store.Save(sampleIndex("r", entryFor("new#0", "new", []float64{2})))

	loaded, _, _ := store.Load("r")
	if len(loaded.Entries) != 1 || loaded.Entries[0].Chunk.ID != "new#0" {
		t.Fatalf("overwrite must replace the prior index: %+v", loaded.Entries)
	}
}

func TestSearch_RankingAndFilters(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	index := sampleIndex("r",
		entryFor("a#0", "exact", []float64{1, 0, 0}),
		entryFor("a#1", "close", []float64{0.9, 0.1, 0}),
		entryFor("a#2", "far", []float64{0, 0, 1}),
	)
	if err := store.Save(index); err != nil {
		t.Fatalf("save: %v", err)
	}

	results, err := store.Search("r", []float64{1, 0, 0}, 2, 0.5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (minSimilarity filters one, topK caps), got %d", len(results))
	}
	if results[0].Chunk.ID != "a#0" || results[0].Rank != 1 {
		t.Fatalf("top result wrong: %+v", results[0])
	}
	if results[0].Similarity < 0.999 {
		t.Fatalf("identical vector similarity should be ~1, got %v", results[0].Similarity)
	}
	if results[1].Chunk.ID != "a#1" || results[1].Rank != 2 {
		t.Fatalf("second result wrong: %+v", results[1])
	}
}

func TestSearch_SelfQueryTopRank(t *testing.T) {
	embedder := NewDeterministicEmbedder(64)
	ctx := context.Background()

	texts := []string{
		"the quick brown fox jumps over the lazy dog",
		"container builds run with cache disabled",
		"session stores are never shared across runs",
	}
	index := sampleIndex("self")
	for i, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		index.Entries = append(index.Entries, entryFor(
			texts[i][:4]+"#0", text, vec))
	}

	store := NewStore(t.TempDir(), nil)
	if err := store.Save(index); err != nil {
		t.Fatalf("save: %v", err)
	}

	for i, text := range texts {
		query, _ := embedder.Embed(ctx, text)
		results, err := store.Search("self", query, 3, 0)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) == 0 {
			t.Fatalf("no results for own content %d", i)
		}
		if results[0].Chunk.Content != text {
			t.Fatalf("self query %d: top-1 is %q", i, results[0].Chunk.Content)
		}
		if results[0].Similarity < 0.99 {
			t.Fatalf("self query %d similarity %v < 0.99", i, results[0].Similarity)
		}
	}
}
