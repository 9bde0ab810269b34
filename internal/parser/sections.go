package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	introHeading = "Introduction"
	notesHeading = "Notes"
)

// Section is the text under one heading of a note.
type Section struct {
	Heading string
	Content string
}

type heading struct {
	title      string
	lineStart  int
	contentPos int
}

var md = goldmark.New()

// headings returns the top-level headings of src in document order.
func headings(src []byte) []heading {
	doc := md.Parser().Parse(text.NewReader(src))
	var out []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		lines := h.Lines()
		var title bytes.Buffer
		for i := 0; i < lines.Len(); i++ {
			if i > 0 {
				title.WriteByte(' ')
			}
			seg := lines.At(i)
			title.Write(bytes.TrimSpace(seg.Value(src)))
		}
		first, last := lines.At(0), lines.At(lines.Len()-1)
		out = append(out, heading{
			title:      title.String(),
			lineStart:  bytes.LastIndexByte(src[:first.Start], '\n') + 1,
			contentPos: endOfLine(src, last.Stop),
		})
	}
	return out
}

func endOfLine(src []byte, pos int) int {
	if i := bytes.IndexByte(src[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(src)
}

// trimContent drops surrounding blank space and a setext underline left
// behind by the heading.
func trimContent(s string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	if line, rest, ok := strings.Cut(s, "\n"); ok || line != "" {
		u := strings.TrimSpace(line)
		if u != "" && (strings.Trim(u, "=") == "" || strings.Trim(u, "-") == "") {
			s = rest
		}
	}
	return strings.TrimSpace(s)
}

// Sections splits markdown into heading sections. Text before the first
// heading becomes an "Introduction" section, and a note without headings is
// a single "Notes" section.
func Sections(markdown string) []Section {
	src := []byte(markdown)
	hs := headings(src)

	if len(hs) == 0 {
		if content := strings.TrimSpace(markdown); content != "" {
			return []Section{{Heading: notesHeading, Content: content}}
		}
		return nil
	}

	var sections []Section
	if intro := strings.TrimSpace(markdown[:hs[0].lineStart]); intro != "" {
		sections = append(sections, Section{Heading: introHeading, Content: intro})
	}
	for i, h := range hs {
		end := len(src)
		if i+1 < len(hs) {
			end = hs[i+1].lineStart
		}
		sections = append(sections, Section{
			Heading: h.title,
			Content: trimContent(markdown[min(h.contentPos, end):end]),
		})
	}
	return sections
}

// Title returns the text of the first heading, or "" when there is none.
func Title(markdown string) string {
	if hs := headings([]byte(markdown)); len(hs) > 0 {
		return hs[0].title
	}
	return ""
}

// FromMarkdown turns every section with content into a card whose front is
// the heading.
func FromMarkdown(markdown string) []Card {
	var cards []Card
	for _, s := range Sections(markdown) {
		if s.Heading == "" || s.Content == "" {
			continue
		}
		cards = append(cards, Card{Front: s.Heading, Back: s.Content})
	}
	return cards
}

// Extract returns the Q/A cards of a note, falling back to heading cards
// when the note has none.
func Extract(markdown string) ([]Card, error) {
	cards, err := ParseQA(strings.NewReader(markdown))
	if err != nil {
		return nil, err
	}
	if len(cards) > 0 {
		return cards, nil
	}
	return FromMarkdown(markdown), nil
}
