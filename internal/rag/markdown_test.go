package rag

import (
	"reflect"
	"testing"
)

const markdownSample = `# Title

Some **bold** and *italic* text with ` + "`inline code`" + ` and a [link](https://example.com).

## Section

- first item
- second **item**

1. step one
2. step two

> a quoted line
> and another

` + "```go\nfunc main() {}\n```" + `

---

#### Deep header
`

func TestParseMarkdown_RecognizedBlocks(t *testing.T) {
	nodes := ParseMarkdown(markdownSample)

	want := []MarkdownNodeKind{
		MarkdownHeader, MarkdownParagraph, MarkdownHeader,
		MarkdownUnorderedList, MarkdownOrderedList, MarkdownBlockquote,
		MarkdownCodeBlock, MarkdownRule, MarkdownHeader,
	}
	if len(nodes) != len(want) {
		t.Fatalf("expected %d nodes, got %d: %+v", len(want), len(nodes), nodes)
	}
	for i, kind := range want {
		if nodes[i].Kind != kind {
			t.Fatalf("node %d: expected %s, got %s", i, kind, nodes[i].Kind)
		}
	}

	if nodes[0].Level != 1 || nodes[2].Level != 2 || nodes[8].Level != 4 {
		t.Fatalf("header levels wrong: %d %d %d", nodes[0].Level, nodes[2].Level, nodes[8].Level)
	}
	if nodes[3].Items[1] != "second **item**" {
		t.Fatalf("inline formatting must survive in list items: %q", nodes[3].Items[1])
	}
	if nodes[6].Language != "go" || nodes[6].Text != "func main() {}" {
		t.Fatalf("code block wrong: %+v", nodes[6])
	}
}

func TestMarkdownRoundTrip(t *testing.T) {
	first := ParseMarkdown(markdownSample)
	rendered := RenderMarkdown(first)
	second := ParseMarkdown(rendered)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("round trip changed the node structure:\n first: %+v\nsecond: %+v", first, second)
	}
}

func TestParseMarkdown_InlineFormattingPreserved(t *testing.T) {
	nodes := ParseMarkdown("Text with **bold**, *italic*, `code` and [a link](https://x).")
	if len(nodes) != 1 || nodes[0].Kind != MarkdownParagraph {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}
	if nodes[0].Text != "Text with **bold**, *italic*, `code` and [a link](https://x)." {
		t.Fatalf("inline markup altered: %q", nodes[0].Text)
	}
}
