package document

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"reqgraph/backend/internal/vector"
)

// Document is a loaded text document split into paragraphs.
type Document struct {
	Source     string   `json:"source"`
	Title      string   `json:"title,omitempty"`
	Paragraphs []string `json:"paragraphs"`
}

// passageNamespace scopes passage ids derived with uuid.NewSHA1.
var passageNamespace = uuid.MustParse("5b1f3c52-8f0e-4d8e-9a57-6a4c1f0e2d11")

var blankLines = regexp.MustCompile(`\n\s*\n`)

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th, dt, dd"

// Load picks a loader from the source name or, failing that, the content.
func Load(source string, data []byte) (*Document, error) {
	if IsHTML(source, data) {
		return LoadHTML(source, bytes.NewReader(data))
	}
	return LoadText(source, string(data)), nil
}

// IsHTML reports whether a document should be read as HTML.
func IsHTML(source string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".html", ".htm", ".xhtml":
		return true
	case ".txt", ".md", ".text":
		return false
	}
	return strings.HasPrefix(http.DetectContentType(data), "text/html")
}

// LoadText splits plain text into paragraphs on blank lines. Whitespace
// inside a paragraph is collapsed.
func LoadText(source, text string) *Document {
	doc := &Document{Source: source}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, block := range blankLines.Split(text, -1) {
		if p := collapse(block); p != "" {
			doc.Paragraphs = append(doc.Paragraphs, p)
		}
	}
	return doc
}

// LoadHTML extracts the title and the text of block elements. Scripts,
// styles and navigation are dropped; a block that contains other blocks
// contributes only through them.
func LoadHTML(source string, r io.Reader) (*Document, error) {
	html, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML %s: %w", source, err)
	}
	html.Find("script, style, noscript, nav, template").Remove()

	doc := &Document{
		Source: source,
		Title:  collapse(html.Find("title").First().Text()),
	}
	html.Find("body").Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if p := collapse(s.Text()); p != "" {
			doc.Paragraphs = append(doc.Paragraphs, p)
		}
	})
	if len(doc.Paragraphs) == 0 {
		if p := collapse(html.Find("body").Text()); p != "" {
			doc.Paragraphs = append(doc.Paragraphs, p)
		}
	}
	return doc, nil
}

// Passages turns the paragraphs into indexable passages. Ids are derived
// from the source, position and text, so loading the same document again
// yields the same ids.
func (d *Document) Passages() []vector.Passage {
	out := make([]vector.Passage, 0, len(d.Paragraphs))
	for i, p := range d.Paragraphs {
		key := d.Source + "\x00" + strconv.Itoa(i) + "\x00" + p
		out = append(out, vector.Passage{
			ID:     uuid.NewSHA1(passageNamespace, []byte(key)).String(),
			Source: d.Source,
			Text:   p,
		})
	}
	return out
}

// Text joins the paragraphs with blank lines.
func (d *Document) Text() string {
	return strings.Join(d.Paragraphs, "\n\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
