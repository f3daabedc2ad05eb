// Package rag implements the retrieval pipeline: file discovery, chunking,
// embedding, a persistent per-repository index, and cosine search.
package rag

import (
	"math"
	"time"
)

// ChunkType classifies how a chunk was produced.
type ChunkType string

const (
	ChunkTypeCode     ChunkType = "code-block"
	ChunkTypeMarkdown ChunkType = "markdown-section"
	ChunkTypePlain    ChunkType = "plain-text"
)

// ChunkMetadata locates a chunk within its repository.
type ChunkMetadata struct {
	FilePath     string    `json:"filePath"`
	FileName     string    `json:"fileName"`
	FileType     string    `json:"fileType"`
	Repository   string    `json:"repository"`
	ChunkType    ChunkType `json:"chunkType"`
	Language     string    `json:"language,omitempty"`
	FunctionName string    `json:"functionName,omitempty"`
	ClassName    string    `json:"className,omitempty"`
}

// DocumentChunk is one indexed piece of a file. Line numbers are 1-indexed
// inclusive.
type DocumentChunk struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	StartLine int           `json:"startLine"`
	EndLine   int           `json:"endLine"`
}

// EmbeddingEntry pairs a chunk with its embedding and precomputed Euclidean
// norm.
type EmbeddingEntry struct {
	Chunk     DocumentChunk `json:"chunk"`
	Embedding []float64     `json:"embedding"`
	Norm      float64       `json:"norm"`
}

// EmbeddingIndex is the whole persisted index for one repository.
type EmbeddingIndex struct {
	Repository string           `json:"repository"`
	CreatedAt  time.Time        `json:"createdAt"`
	ModelName  string           `json:"modelName"`
	Entries    []EmbeddingEntry `json:"entries"`
}

// SearchResult is one ranked retrieval hit. Rank is 1-based.
type SearchResult struct {
	Chunk      DocumentChunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
	Rank       int           `json:"rank"`
}

// EuclideanNorm computes sqrt(sum(v_i^2)).
func EuclideanNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// CosineSimilarity computes dot(a, b) / (normA * normB). Zero norms yield 0.
func CosineSimilarity(a, b []float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (normA * normB)
}
