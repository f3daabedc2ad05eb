package rag

import (
	"fmt"
	"regexp"
	"strings"
)

// MarkdownNodeKind tags a block-level markdown node.
type MarkdownNodeKind string

const (
	MarkdownHeader        MarkdownNodeKind = "header"
	MarkdownParagraph     MarkdownNodeKind = "paragraph"
	MarkdownCodeBlock     MarkdownNodeKind = "code-block"
	MarkdownUnorderedList MarkdownNodeKind = "unordered-list"
	MarkdownOrderedList   MarkdownNodeKind = "ordered-list"
	MarkdownBlockquote    MarkdownNodeKind = "blockquote"
	MarkdownRule          MarkdownNodeKind = "hr"
)

// MarkdownNode is one block of a parsed document. Inline formatting (bold,
// italic, inline code, links) stays verbatim inside Text/Items, so a
// parse/render round trip preserves it.
type MarkdownNode struct {
	Kind     MarkdownNodeKind `json:"kind"`
	Level    int              `json:"level,omitempty"`    // headers 1..4
	Text     string           `json:"text,omitempty"`     // header/paragraph/blockquote/code content
	Language string           `json:"language,omitempty"` // code-block fence tag
	Items    []string         `json:"items,omitempty"`    // list items
}

var (
	mdHeader  = regexp.MustCompile(`^(#{1,4})\s+(.*)$`)
	mdRule    = regexp.MustCompile(`^(\*{3,}|-{3,}|_{3,})\s*$`)
	mdOrdered = regexp.MustCompile(`^\s*\d+\.\s+(.*)$`)
	mdBullet  = regexp.MustCompile(`^\s*[-*+]\s+(.*)$`)
)

// ParseMarkdown decomposes text into block nodes. Recognized subset: headers
// 1-4, paragraphs, fenced code blocks, unordered and ordered lists,
// blockquotes, and horizontal rules.
func ParseMarkdown(text string) []MarkdownNode {
	lines := strings.Split(text, "\n")
	var nodes []MarkdownNode

	var paragraph []string
	flushParagraph := func() {
		if len(paragraph) > 0 {
			nodes = append(nodes, MarkdownNode{Kind: MarkdownParagraph, Text: strings.Join(paragraph, "\n")})
			paragraph = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "```"):
			flushParagraph()
			language := strings.TrimPrefix(trimmed, "```")
			var code []string
			i++
			for ; i < len(lines); i++ {
				if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
					break
				}
				code = append(code, lines[i])
			}
			nodes = append(nodes, MarkdownNode{Kind: MarkdownCodeBlock, Language: language, Text: strings.Join(code, "\n")})

		case mdHeader.MatchString(trimmed):
			flushParagraph()
			m := mdHeader.FindStringSubmatch(trimmed)
			nodes = append(nodes, MarkdownNode{Kind: MarkdownHeader, Level: len(m[1]), Text: m[2]})

		case mdRule.MatchString(trimmed):
			flushParagraph()
			nodes = append(nodes, MarkdownNode{Kind: MarkdownRule})

		case strings.HasPrefix(trimmed, ">"):
			flushParagraph()
			var quoted []string
			for ; i < len(lines); i++ {
				t := strings.TrimSpace(lines[i])
				if !strings.HasPrefix(t, ">") {
					i--
					break
				}
				quoted = append(quoted, strings.TrimSpace(strings.TrimPrefix(t, ">")))
			}
			nodes = append(nodes, MarkdownNode{Kind: MarkdownBlockquote, Text: strings.Join(quoted, "\n")})

		case mdBullet.MatchString(line):
			flushParagraph()
			var items []string
			for ; i < len(lines); i++ {
				m := mdBullet.FindStringSubmatch(lines[i])
				if m == nil {
					i--
					break
				}
				items = append(items, m[1])
			}
			nodes = append(nodes, MarkdownNode{Kind: MarkdownUnorderedList, Items: items})

		case mdOrdered.MatchString(line):
			flushParagraph()
			var items []string
			for ; i < len(lines); i++ {
				m := mdOrdered.FindStringSubmatch(lines[i])
				if m == nil {
					i--
					break
				}
				items = append(items, m[1])
			}
			nodes = append(nodes, MarkdownNode{Kind: MarkdownOrderedList, Items: items})

		case trimmed == "":
			flushParagraph()

		default:
			paragraph = append(paragraph, trimmed)
		}
	}
	flushParagraph()
	return nodes
}

// RenderMarkdown serializes nodes back to markdown. Whitespace may differ
// from the source; the node structure round-trips.
func RenderMarkdown(nodes []MarkdownNode) string {
	var blocks []string
	for _, node := range nodes {
		switch node.Kind {
		case MarkdownHeader:
			blocks = append(blocks, strings.Repeat("#", node.Level)+" "+node.Text)
		case MarkdownParagraph:
			blocks = append(blocks, node.Text)
		case MarkdownCodeBlock:
			blocks = append(blocks, "```"+node.Language+"\n"+node.Text+"\n```")
		case MarkdownUnorderedList:
			var lines []string
			for _, item := range node.Items {
				lines = append(lines, "- "+item)
			}
			blocks = append(blocks, strings.Join(lines, "\n"))
		case MarkdownOrderedList:
			var lines []string
			for i, item := range node.Items {
				lines = append(lines, fmt.Sprintf("%d. %s", i+1, item))
			}
			blocks = append(blocks, strings.Join(lines, "\n"))
		case MarkdownBlockquote:
			var lines []string
			for _, line := range strings.Split(node.Text, "\n") {
				lines = append(lines, "> "+line)
			}
			blocks = append(blocks, strings.Join(lines, "\n"))
		case MarkdownRule:
			blocks = append(blocks, "---")
		}
	}
	return strings.Join(blocks, "\n\n")
}
