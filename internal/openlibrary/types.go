package openlibrary

// SearchResponse represents the response from Open Library's search API
type SearchResponse struct {
	NumFound      int         `json:"numFound"`
	Start         int         `json:"start"`
	NumFoundExact bool        `json:"numFoundExact"`
	Docs          []SearchDoc `json:"docs"`
}

// SearchDoc represents a single document in search results.
// AuthorName is nil when the field is absent and CoverI is nil when there is no cover,
// so callers can tell missing data from empty data.
type SearchDoc struct {
	Key              string   `json:"key"` // Work key like "/works/OL45804W"
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name,omitempty"`
	AuthorKey        []string `json:"author_key,omitempty"`
	FirstPublishYear int      `json:"first_publish_year,omitempty"`
	EditionCount     int      `json:"edition_count,omitempty"`
	CoverI           *int     `json:"cover_i,omitempty"` // Cover ID for covers API
	Content          *string  `json:"content,omitempty"`
	Language         []string `json:"language,omitempty"`
	Subject          []string `json:"subject,omitempty"`
}

// HasCover reports whether the document carries a usable cover id
func (d SearchDoc) HasCover() bool {
	return d.CoverI != nil && *d.CoverI != 0
}

// HasAuthors reports whether the author_name field was present
func (d SearchDoc) HasAuthors() bool {
	return d.AuthorName != nil
}
