package models

import "time"

const (
	// DefaultAuth is reported when a record carries no auth information.
	DefaultAuth = "unknown"
	// DefaultCORS is reported when a record carries no CORS information.
	DefaultCORS = "unknown"
)

// PublicAPIFields holds the optional transport metadata of a directory entry.
type PublicAPIFields struct {
	HTTPS *bool   `json:"https,omitempty"`
	Auth  *string `json:"auth,omitempty"`
	CORS  *string `json:"cors,omitempty"`
}

// APIRecord is one entry of the public API directory dataset.
type APIRecord struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	URL             string           `json:"url"`
	Categories      []string         `json:"categories"`
	PublicAPIFields *PublicAPIFields `json:"public_api_fields,omitempty"`
}

// Document is the top-level shape of the fetched dataset and of the cache file.
type Document struct {
	Data []APIRecord `json:"data"`
}

// Dataset is a parsed snapshot together with the time it was fetched.
type Dataset struct {
	Records   []APIRecord
	FetchedAt time.Time
	// Stale is set when the snapshot outlived its TTL and could not be refreshed.
	Stale bool
}

// SearchResult is the projection of an APIRecord returned to search consumers.
type SearchResult struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Categories  []string `json:"categories"`
	HTTPS       bool     `json:"https"`
	Auth        string   `json:"auth"`
	CORS        string   `json:"cors"`
	Score       float64  `json:"score"`
}

// APIDocument is the shape stored in the search index.
type APIDocument struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Categories  []string  `json:"categories"`
	HTTPS       bool      `json:"https"`
	Auth        string    `json:"auth"`
	CORS        string    `json:"cors"`
	Keywords    []string  `json:"keywords"`
	Position    int       `json:"position"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Project converts a record into a SearchResult, filling defaults for absent metadata.
func Project(rec APIRecord, score float64) SearchResult {
	res := SearchResult{
		Name:        rec.Name,
		Description: rec.Description,
		URL:         rec.URL,
		Categories:  rec.Categories,
		Auth:        DefaultAuth,
		CORS:        DefaultCORS,
		Score:       score,
	}
	if res.Categories == nil {
		res.Categories = []string{}
	}
	if f := rec.PublicAPIFields; f != nil {
		if f.HTTPS != nil {
			res.HTTPS = *f.HTTPS
		}
		if f.Auth != nil {
			res.Auth = *f.Auth
		}
		if f.CORS != nil {
			res.CORS = *f.CORS
		}
	}
	return res
}

// ProjectDocument is Project for documents read back from the search index.
func ProjectDocument(doc APIDocument, score float64) SearchResult {
	res := SearchResult{
		Name:        doc.Name,
		Description: doc.Description,
		URL:         doc.URL,
		Categories:  doc.Categories,
		HTTPS:       doc.HTTPS,
		Auth:        doc.Auth,
		CORS:        doc.CORS,
		Score:       score,
	}
	if res.Categories == nil {
		res.Categories = []string{}
	}
	if res.Auth == "" {
		res.Auth = DefaultAuth
	}
	if res.CORS == "" {
		res.CORS = DefaultCORS
	}
	return res
}
