package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var (
	sectionMarkerRe = regexp.MustCompile(`(?m)^[ \t]*\[\[section:[ \t]*([^\]\n]*?)[ \t]*\]\][ \t]*$`)
	paragraphBreak  = regexp.MustCompile(`\n\s*\n`)
)

// SectionMarker renders the line extractors emit in front of a labelled
// section (a PDF page, a spreadsheet sheet).
func SectionMarker(label string) string {
	return "[[section: " + label + "]]"
}

// Window is one chunk of a document. Text[:OverlapLen] repeats the tail of
// the previous window; Text[OverlapLen:] is new content.
type Window struct {
	Index      int
	Section    string
	Text       string
	OverlapLen int
}

// Fresh returns the part of the window not carried over from its predecessor.
func (w Window) Fresh() string {
	return w.Text[w.OverlapLen:]
}

// Chunker packs paragraphs into windows of roughly Size bytes, seeding each
// new window with the last Overlap bytes of the one before it. Sizes are
// measured in bytes and cut on rune boundaries.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split is deterministic: identical text and parameters always produce the
// same windows in the same order. Window indexes run across sections.
func (c Chunker) Split(text string) []Window {
	size := c.Size
	if size <= 0 {
		size = DefaultChunkSize
	}

	var out []Window
	for _, s := range splitSections(strings.ReplaceAll(text, "\r\n", "\n")) {
		for _, w := range c.pack(Paragraphs(s.body), size) {
			w.Index = len(out)
			w.Section = s.label
			out = append(out, w)
		}
	}
	return out
}

type section struct {
	label string
	body  string
}

func splitSections(text string) []section {
	locs := sectionMarkerRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []section{{body: text}}
	}

	var out []section
	if pre := text[:locs[0][0]]; strings.TrimSpace(pre) != "" {
		out = append(out, section{body: pre})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, section{label: text[loc[2]:loc[3]], body: text[loc[1]:end]})
	}
	return out
}

// Paragraphs splits on blank lines and drops empty paragraphs.
func Paragraphs(body string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(body, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Chunker) pack(paras []string, size int) []Window {
	var (
		out  []Window
		buf  []string
		cur  int
		seed int
	)

	for _, p := range paras {
		plen := len(p) + 2
		if len(buf) == 0 || cur+plen <= size {
			buf = append(buf, p)
			cur += plen
			continue
		}

		joined := strings.Join(buf, "\n\n")
		out = append(out, Window{Text: joined, OverlapLen: seed})

		if tail := tailOf(joined, c.Overlap); tail != "" {
			buf = []string{tail, p}
			cur = len(tail) + plen
			seed = len(tail) + 2
		} else {
			buf = []string{p}
			cur = plen
			seed = 0
		}
	}

	if len(buf) > 0 {
		out = append(out, Window{Text: strings.Join(buf, "\n\n"), OverlapLen: seed})
	}
	return out
}

// tailOf returns at most n trailing bytes of s starting on a rune boundary,
// or "" when s is not longer than n.
func tailOf(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
