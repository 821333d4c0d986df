// Package document holds the page types shared by the indexer, the stores
// and the ranking service.
package document

// Document is a cleaned page as delivered to the indexer: visible text and
// absolute outbound link URLs, already extracted from the HTML.
type Document struct {
	ID    int64    `json:"doc_id"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
	Text  string   `json:"text"`
	Links []string `json:"links,omitempty"`
}

// Meta is the presentation data attached to a ranked hit.
type Meta struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}
