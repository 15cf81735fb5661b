package catalog

import (
	"github.com/shelfarr/shelfbrowse/internal/openlibrary"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TopicLabel is the display label of a topic
func TopicLabel(t Topic) string {
	// a Caser holds state and cannot be shared between goroutines
	return cases.Title(language.English).String(string(t))
}

// View is a render-ready projection of a Snapshot.
// Status is one of loading, ready, empty or error. An empty first page is reported
// as "empty" so consumers can keep the topic selector on screen.
type View struct {
	Status     string      `json:"status"`
	Topic      Topic       `json:"topic"`
	Topics     []TopicView `json:"topics"`
	Books      []BookView  `json:"books"`
	Pagination Pagination  `json:"pagination"`
	Error      string      `json:"error,omitempty"`
	Seq        uint64      `json:"seq"`
}

// TopicView is one entry of the topic selector
type TopicView struct {
	Name   Topic  `json:"name"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// BookView is a book with its derived display fields
type BookView struct {
	ID       string   `json:"id"`
	Key      string   `json:"key"`
	Title    string   `json:"title"`
	Authors  string   `json:"authors"`
	Names    []string `json:"authorNames"`
	CoverURL string   `json:"coverUrl"`
	Blurb    string   `json:"blurb"`
	URL      string   `json:"url"`
}

// Pagination drives previous/next controls
type Pagination struct {
	Page       int  `json:"page"`
	TotalPages int  `json:"totalPages"`
	HasPrev    bool `json:"hasPrev"`
	HasNext    bool `json:"hasNext"`
}

// NewView renders a snapshot for consumers
func NewView(s Snapshot, topics []Topic) View {
	v := View{
		Status: viewStatus(s),
		Topic:  s.Topic,
		Topics: make([]TopicView, 0, len(topics)),
		Books:  make([]BookView, 0, len(s.Items)),
		Pagination: Pagination{
			Page:       s.Page,
			TotalPages: s.TotalPages,
			HasPrev:    s.Page > 1,
			HasNext:    s.Page < s.TotalPages,
		},
		Error: s.Error,
		Seq:   s.Seq,
	}

	for _, t := range topics {
		v.Topics = append(v.Topics, TopicView{Name: t, Label: TopicLabel(t), Active: t == s.Topic})
	}
	for _, b := range s.Items {
		v.Books = append(v.Books, BookView{
			ID:       openlibrary.ExtractOLID(b.Key),
			Key:      b.Key,
			Title:    b.Title,
			Authors:  b.Authors(),
			Names:    b.AuthorNames,
			CoverURL: b.CoverURL(DefaultCoverSize),
			Blurb:    b.Blurb(),
			URL:      b.URL(),
		})
	}
	return v
}

func viewStatus(s Snapshot) string {
	switch {
	case s.IsLoading:
		return "loading"
	case s.ErrorKind == ErrorEmpty:
		return "empty"
	case s.Error != "":
		return "error"
	default:
		return "ready"
	}
}
