package doctemplate

import (
	"strings"
	"unicode/utf16"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Kind classifies a rendered block.
type Kind string

const (
	KindHeading1  Kind = "heading1"
	KindHeading2  Kind = "heading2"
	KindHeading3  Kind = "heading3"
	KindParagraph Kind = "paragraph"
	KindBullet    Kind = "bullet"
	KindNumbered  Kind = "numbered"
	KindEmpty     Kind = "empty"
)

// Span marks where a placeholder value landed inside a block's text.
// Offsets count UTF-16 code units, matching document index arithmetic.
type Span struct {
	Field string
	Start int
	End   int
}

// Block is one paragraph of rendered output.
type Block struct {
	Kind  Kind
	Text  string
	Spans []Span
}

var markdown = goldmark.New()

// Render parses the body and substitutes values into every placeholder.
// Placeholders without a value render as the template's empty text.
func (t *Template) Render(values map[string]string) []Block {
	src := []byte(t.Body)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var blocks []Block
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if node.HasBlankPreviousLines() && len(blocks) > 0 && blocks[len(blocks)-1].Kind != KindEmpty {
			blocks = append(blocks, Block{Kind: KindEmpty})
		}
		blocks = t.appendNode(blocks, node, src, values)
	}
	return blocks
}

func (t *Template) appendNode(blocks []Block, node ast.Node, src []byte, values map[string]string) []Block {
	switch n := node.(type) {
	case *ast.Heading:
		kind := KindHeading3
		switch n.Level {
		case 1:
			kind = KindHeading1
		case 2:
			kind = KindHeading2
		}
		return append(blocks, t.block(kind, joinLines(n, src, " "), values))
	case *ast.List:
		kind := KindBullet
		if n.IsOrdered() {
			kind = KindNumbered
		}
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				if _, nested := child.(*ast.List); nested {
					blocks = t.appendNode(blocks, child, src, values)
					continue
				}
				blocks = append(blocks, t.block(kind, joinLines(child, src, " "), values))
			}
		}
		return blocks
	case *ast.ThematicBreak:
		return blocks
	default:
		raw := joinLines(node, src, "\n")
		if raw == "" {
			return blocks
		}
		return append(blocks, t.block(KindParagraph, raw, values))
	}
}

func (t *Template) block(kind Kind, raw string, values map[string]string) Block {
	var out strings.Builder
	var spans []Span
	offset := 0
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(raw, -1) {
		literal := raw[last:loc[0]]
		out.WriteString(literal)
		offset += utf16Len(literal)

		field := raw[loc[2]:loc[3]]
		value := t.DisplayValue(values[field])
		out.WriteString(value)
		width := utf16Len(value)
		spans = append(spans, Span{Field: field, Start: offset, End: offset + width})
		offset += width
		last = loc[1]
	}
	out.WriteString(raw[last:])
	return Block{Kind: kind, Text: out.String(), Spans: spans}
}

func joinLines(node ast.Node, src []byte, sep string) string {
	lines := node.Lines()
	if lines == nil {
		return ""
	}
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimSpace(strings.TrimRight(string(seg.Value(src)), "\r\n"))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, sep)
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// UTF16Len reports the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	return utf16Len(s)
}
