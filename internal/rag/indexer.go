package rag

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AndVl1/repoagent/internal/logging"
)

// IndexerConfig controls discovery and embedding limits.
type IndexerConfig struct {
	// IncludeSuffixes is the file allow-list (default: common source,
	// markdown and text suffixes).
	IncludeSuffixes []string
	// ExcludePatterns are substrings of relative paths to skip (glob
	// wildcards stripped).
	ExcludePatterns []string
	// MaxChunks caps chunks for the whole repository (default 2000); a
	// single file contributes at most MaxChunks/10.
	MaxChunks int
	// Workers bounds the embedding pool (default 4).
	Workers int
}

// Progress reports cumulative indexing state.
type Progress struct {
	FilesIndexed int
	TotalChunks  int
	IsComplete   bool
}

// ProgressFunc observes indexing progress.
type ProgressFunc func(Progress)

var defaultIncludeSuffixes = []string{
	".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".kt", ".kts",
	".rs", ".rb", ".c", ".h", ".cpp", ".cc", ".cs", ".swift", ".php",
	".scala", ".md", ".markdown", ".txt", ".yaml", ".yml", ".json", ".toml",
}

var defaultExcludePatterns = []string{
	".git/", "node_modules/", "vendor/", "dist/", "build/", "target/",
	".idea/", "__pycache__/",
}

// Indexer runs the discover → chunk → embed → persist pipeline.
type Indexer struct {
	config   IndexerConfig
	chunker  *Chunker
	embedder Embedder
	store    *Store
	logger   logging.Logger
}

// NewIndexer wires the pipeline.
func NewIndexer(config IndexerConfig, chunker *Chunker, embedder Embedder, store *Store, logger logging.Logger) *Indexer {
	if len(config.IncludeSuffixes) == 0 {
		config.IncludeSuffixes = defaultIncludeSuffixes
	}
	if len(config.ExcludePatterns) == 0 {
		config.ExcludePatterns = defaultExcludePatterns
	}
	if config.MaxChunks == 0 {
		config.MaxChunks = 2000
	}
	if config.Workers == 0 {
		config.Workers = 4
	}
	return &Indexer{
		config:   config,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		logger:   logging.OrNop(logger),
	}
}

// IndexRepository indexes the checkout at root under the given repository
// name, persists the index, and returns it. onProgress (optional) receives
// cumulative updates; the final call has IsComplete=true.
func (ix *Indexer) IndexRepository(ctx context.Context, repository, root string, onProgress ProgressFunc) (*EmbeddingIndex, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	files, err := ix.discover(root)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	perFileCap := ix.config.MaxChunks / 10
	var chunks []DocumentChunk
	filesIndexed := 0
	for _, rel := range files {
		if len(chunks) >= ix.config.MaxChunks {
			ix.logger.Warn("chunk cap %d reached; remaining files skipped", ix.config.MaxChunks)
			break
		}
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			ix.logger.Warn("skip unreadable file %s: %v", rel, err)
			continue
		}

		fileChunks := ix.chunker.ChunkFile(repository, rel, string(content))
		if len(fileChunks) > perFileCap && perFileCap > 0 {
			fileChunks = fileChunks[:perFileCap]
		}
		if remaining := ix.config.MaxChunks - len(chunks); len(fileChunks) > remaining {
			fileChunks = fileChunks[:remaining]
		}
		if len(fileChunks) == 0 {
			continue
		}
		chunks = append(chunks, fileChunks...)
		filesIndexed++
		onProgress(Progress{FilesIndexed: filesIndexed, TotalChunks: len(chunks)})
	}

	entries, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	index := &EmbeddingIndex{
		Repository: repository,
		CreatedAt:  time.Now().UTC(),
		ModelName:  ix.embedder.ModelName(),
		Entries:    entries,
	}
	if err := ix.store.Save(index); err != nil {
		return nil, err
	}
	onProgress(Progress{FilesIndexed: filesIndexed, TotalChunks: len(chunks), IsComplete: true})
	return index, nil
}

// discover returns relative paths under root that pass the allow/deny
// filters, sorted for deterministic enumeration.
func (ix *Indexer) discover(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		for _, pattern := range ix.config.ExcludePatterns {
			if strings.Contains(rel, strings.Trim(pattern, "*")) {
				return nil
			}
		}
		for _, suffix := range ix.config.IncludeSuffixes {
			if strings.HasSuffix(rel, suffix) {
				files = append(files, rel)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// embedAll embeds chunks on a bounded worker pool. Completion order is
// arbitrary; entries are keyed back to their position so the final order
// follows discovery order. A chunk that fails to embed is logged and
// contributes no entry.
func (ix *Indexer) embedAll(ctx context.Context, chunks []DocumentChunk) ([]EmbeddingEntry, error) {
	slots := make([]*EmbeddingEntry, len(chunks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.config.Workers)

	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			embedding, err := ix.embedder.Embed(gctx, chunk.Content)
			if err != nil {
				ix.logger.Warn("embed chunk %s failed: %v", chunk.ID, err)
				return nil
			}
			entry := &EmbeddingEntry{
				Chunk:     chunk,
				Embedding: embedding,
				Norm:      EuclideanNorm(embedding),
			}
			mu.Lock()
			slots[i] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embedding pool: %w", err)
	}

	entries := make([]EmbeddingEntry, 0, len(chunks))
	for _, slot := range slots {
		if slot != nil {
			entries = append(entries, *slot)
		}
	}
	return entries, nil
}

// SearchText embeds the query and searches the repository's stored index.
func (ix *Indexer) SearchText(ctx context.Context, repository, query string, topK int, minSimilarity float64) ([]SearchResult, error) {
	embedding, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return ix.store.Search(repository, embedding, topK, minSimilarity)
}
