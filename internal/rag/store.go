package rag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/AndVl1/repoagent/internal/logging"
)

// Store persists one EmbeddingIndex per repository as a single JSON file in
// dir. Writes go through a temp file and rename, so readers see either the
// prior full index or the new one. Access serializes per repository key.
type Store struct {
	dir    string
	logger logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger logging.Logger) *Store {
	return &Store{dir: dir, logger: logging.OrNop(logger), locks: make(map[string]*sync.RWMutex)}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeRepoName maps a repository name to its index filename stem.
func SanitizeRepoName(repository string) string {
	return unsafeNameChars.ReplaceAllString(repository, "_")
}

func (s *Store) indexPath(repository string) string {
	return filepath.Join(s.dir, SanitizeRepoName(repository)+".json")
}

func (s *Store) repoLock(repository string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SanitizeRepoName(repository)
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[key] = lock
	}
	return lock
}

// Save atomically overwrites the repository's index.
func (s *Store) Save(index *EmbeddingIndex) error {
	lock := s.repoLock(index.Repository)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	path := s.indexPath(index.Repository)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename index: %w", err)
	}

	s.logger.Debug("saved index for %s: %d entries", index.Repository, len(index.Entries))
	return nil
}

// Load reads the repository's index. A missing file means "not indexed" and
// returns (nil, false, nil), not an error.
func (s *Store) Load(repository string) (*EmbeddingIndex, bool, error) {
	lock := s.repoLock(repository)
	lock.RLock()
	defer lock.RUnlock()

	data, err := os.ReadFile(s.indexPath(repository))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read index: %w", err)
	}

	var index EmbeddingIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, false, fmt.Errorf("decode index for %s: %w", repository, err)
	}
	return &index, true, nil
}

// Delete removes the repository's index, if present.
func (s *Store) Delete(repository string) error {
	lock := s.repoLock(repository)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(s.indexPath(repository))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Search ranks the repository's entries by cosine similarity to the query
// embedding. Entries below minSimilarity are dropped; at most topK results
// return, ranked from 1. A missing index yields an empty list.
func (s *Store) Search(repository string, query []float64, topK int, minSimilarity float64) ([]SearchResult, error) {
	index, ok, err := s.Load(repository)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return SearchIndex(index, query, topK, minSimilarity), nil
}

// SearchIndex ranks an in-memory index.
func SearchIndex(index *EmbeddingIndex, query []float64, topK int, minSimilarity float64) []SearchResult {
	queryNorm := EuclideanNorm(query)
	results := make([]SearchResult, 0, len(index.Entries))
	for _, entry := range index.Entries {
		similarity := CosineSimilarity(query, entry.Embedding, queryNorm, entry.Norm)
		if similarity < minSimilarity {
			continue
		}
		results = append(results, SearchResult{Chunk: entry.Chunk, Similarity: similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}
