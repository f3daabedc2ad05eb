package rag

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ChunkerConfig bounds chunk sizes. Byte caps split oversized chunks;
// MinChunkBytes merges undersized ones with their successor in the same
// region.
type ChunkerConfig struct {
	MaxChunkBytes int // default 4096
	MinChunkBytes int // default 64
	MaxTokens     int // default 512, counted with cl100k_base
}

// Chunker splits file content into DocumentChunks with one of three
// strategies, selected by extension: code-aware for known source languages,
// markdown for .md, plain-text otherwise.
type Chunker struct {
	config   ChunkerConfig
	encoding *tiktoken.Tiktoken
}

// NewChunker creates a chunker.
func NewChunker(config ChunkerConfig) (*Chunker, error) {
	if config.MaxChunkBytes == 0 {
		config.MaxChunkBytes = 4096
	}
	if config.MinChunkBytes == 0 {
		config.MinChunkBytes = 64
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 512
	}
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get encoding: %w", err)
	}
	return &Chunker{config: config, encoding: encoding}, nil
}

// CountTokens returns the cl100k_base token count of text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

var codeLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".jsx":   "javascript",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".rs":    "rust",
	".rb":    "ruby",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".php":   "php",
	".scala": "scala",
}

// section is an intermediate chunk before size normalization. endLine is
// tracked separately because plain-text sections skip blank lines.
type section struct {
	lines        []string
	startLine    int // 1-indexed
	endLine      int // 1-indexed inclusive; 0 means contiguous from startLine
	chunkType    ChunkType
	language     string
	functionName string
	className    string
}

func (s *section) text() string { return strings.Join(s.lines, "\n") }

func (s *section) end() int {
	if s.endLine > 0 {
		return s.endLine
	}
	return s.startLine + len(s.lines) - 1
}

// ChunkFile splits one file into chunks. repository and relPath feed the
// chunk metadata; chunk ids are "<relPath>#<n>" so per-file order is stable.
func (c *Chunker) ChunkFile(repository, relPath, content string) []DocumentChunk {
	ext := strings.ToLower(filepath.Ext(relPath))

	var sections []section
	switch {
	case ext == ".md" || ext == ".markdown":
		sections = c.markdownSections(content)
	case codeLanguages[ext] != "":
		sections = c.codeSections(content, codeLanguages[ext])
	default:
		sections = c.plainSections(content)
	}

	sections = c.splitOversized(sections)
	sections = c.mergeUndersized(sections)

	chunks := make([]DocumentChunk, 0, len(sections))
	for i, s := range sections {
		text := s.text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, DocumentChunk{
			ID:      fmt.Sprintf("%s#%d", relPath, i),
			Content: text,
			Metadata: ChunkMetadata{
				FilePath:     relPath,
				FileName:     filepath.Base(relPath),
				FileType:     strings.TrimPrefix(ext, "."),
				Repository:   repository,
				ChunkType:    s.chunkType,
				Language:     s.language,
				FunctionName: s.functionName,
				ClassName:    s.className,
			},
			StartLine: s.startLine,
			EndLine:   s.end(),
		})
	}
	return chunks
}

var (
	functionPattern = regexp.MustCompile(`^\s*(?:func|def|fn|function)\s+\(?[\w\[\]\*\. ]*?\)?\s*(\w+)`)
	classPattern    = regexp.MustCompile(`^\s*(?:(?:public|private|internal|abstract|final|data|sealed|export)\s+)*(?:class|interface|struct|trait|object|enum)\s+(\w+)`)
	goTypePattern   = regexp.MustCompile(`^type\s+(\w+)\s+(?:struct|interface)`)
	headerPattern   = regexp.MustCompile("^(#{1,6})\\s+(.*)$")
)

// codeSections splits source at top-level declaration boundaries, tagging
// sections with the declared function or type name.
func (c *Chunker) codeSections(content, language string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	current := section{startLine: 1, chunkType: ChunkTypeCode, language: language}

	flush := func(nextStart int) {
		if len(current.lines) > 0 {
			sections = append(sections, current)
		}
		current = section{startLine: nextStart, chunkType: ChunkTypeCode, language: language}
	}

	for i, line := range lines {
		isDecl := functionPattern.MatchString(line) || classPattern.MatchString(line) || goTypePattern.MatchString(line)
		if isDecl && len(current.lines) > 0 {
			flush(i + 1)
		}
		current.lines = append(current.lines, line)
		if m := functionPattern.FindStringSubmatch(line); m != nil && current.functionName == "" {
			current.functionName = m[1]
		}
		if m := classPattern.FindStringSubmatch(line); m != nil && current.className == "" {
			current.className = m[1]
		}
		if m := goTypePattern.FindStringSubmatch(line); m != nil && current.className == "" {
			current.className = m[1]
		}
	}
	flush(len(lines) + 1)
	return sections
}

// markdownSections splits at headers; each header starts a new section.
func (c *Chunker) markdownSections(content string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	current := section{startLine: 1, chunkType: ChunkTypeMarkdown}
	inCodeFence := false

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCodeFence = !inCodeFence
		}
		if !inCodeFence && headerPattern.MatchString(line) && len(current.lines) > 0 {
			sections = append(sections, current)
			current = section{startLine: i + 1, chunkType: ChunkTypeMarkdown}
		}
		current.lines = append(current.lines, line)
	}
	if len(current.lines) > 0 {
		sections = append(sections, current)
	}
	return sections
}

// plainSections splits at blank-line paragraph boundaries.
func (c *Chunker) plainSections(content string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	current := section{startLine: 1, chunkType: ChunkTypePlain}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(current.lines) > 0 {
				current.endLine = i // the previous line, 1-indexed
				sections = append(sections, current)
			}
			current = section{startLine: i + 2, chunkType: ChunkTypePlain}
			continue
		}
		current.lines = append(current.lines, line)
	}
	if len(current.lines) > 0 {
		current.endLine = len(lines)
		sections = append(sections, current)
	}
	return sections
}

// splitOversized breaks sections over the byte or token cap at line
// boundaries, preserving line numbering.
func (c *Chunker) splitOversized(sections []section) []section {
	var out []section
	for _, s := range sections {
		if len(s.text()) <= c.config.MaxChunkBytes && c.CountTokens(s.text()) <= c.config.MaxTokens {
			out = append(out, s)
			continue
		}

		part := section{startLine: s.startLine, chunkType: s.chunkType, language: s.language,
			functionName: s.functionName, className: s.className}
		size := 0
		for i, line := range s.lines {
			if size > 0 && (size+len(line)+1 > c.config.MaxChunkBytes || c.CountTokens(part.text()) >= c.config.MaxTokens) {
				out = append(out, part)
				part = section{startLine: s.startLine + i, chunkType: s.chunkType, language: s.language,
					functionName: s.functionName, className: s.className}
				size = 0
			}
			part.lines = append(part.lines, line)
			size += len(line) + 1
		}
		if len(part.lines) > 0 {
			out = append(out, part)
		}
	}
	return out
}

// mergeUndersized folds tiny sections into their successor when both share a
// chunk type.
func (c *Chunker) mergeUndersized(sections []section) []section {
	var out []section
	for i := 0; i < len(sections); i++ {
		s := sections[i]
		for len(s.text()) < c.config.MinChunkBytes && i+1 < len(sections) && sections[i+1].chunkType == s.chunkType {
			next := sections[i+1]
			s.lines = append(s.lines, next.lines...)
			s.endLine = next.end()
			if s.functionName == "" {
				s.functionName = next.functionName
			}
			if s.className == "" {
				s.className = next.className
			}
			i++
		}
		out = append(out, s)
	}
	return out
}
