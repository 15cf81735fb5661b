package catalog

import (
	"html"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shelfarr/shelfbrowse/internal/openlibrary"
)

const (
	// BlurbMaxLength is the rune length after which content is truncated
	BlurbMaxLength = 150
	// DefaultCoverSize is the cover variant used by views
	DefaultCoverSize = "M"
)

var plainText = bluemonday.StrictPolicy()

// Book is a validated search result ready to be shown
type Book struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	AuthorNames []string `json:"authorNames"`
	CoverID     int      `json:"coverId"`
	Content     string   `json:"content,omitempty"`
}

// FilterDocs keeps the documents that have both an author list and a cover.
// It returns the valid books and the number of dropped documents.
func FilterDocs(docs []openlibrary.SearchDoc) ([]Book, int) {
	books := make([]Book, 0, len(docs))
	for _, d := range docs {
		if !d.HasAuthors() || !d.HasCover() {
			continue
		}
		b := Book{
			Key:         d.Key,
			Title:       d.Title,
			AuthorNames: slices.Clone(d.AuthorName),
			CoverID:     *d.CoverI,
		}
		if d.Content != nil {
			b.Content = *d.Content
		}
		books = append(books, b)
	}
	return books, len(docs) - len(books)
}

// CoverURL returns the cover image URL for the book
func (b Book) CoverURL(size string) string {
	if size == "" {
		size = DefaultCoverSize
	}
	return openlibrary.GetCoverURL(b.CoverID, size)
}

// URL is the Open Library page for the work
func (b Book) URL() string {
	return openlibrary.GetWorkURL(b.Key)
}

// Authors joins the author names, or returns "N/A" when there are none
func (b Book) Authors() string {
	if b.AuthorNames == nil {
		return "N/A"
	}
	return strings.Join(b.AuthorNames, ", ")
}

// Blurb returns the truncated plain-text content, falling back to a byline
func (b Book) Blurb() string {
	if text := Truncate(sanitize(b.Content), BlurbMaxLength); text != "" {
		return text
	}
	return "A book by " + b.Authors() + "."
}

// Truncate cuts s to n runes and appends "..." when it was longer
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
}
