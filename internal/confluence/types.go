// Package confluence defines the adapter interface the core depends
// on (spec §6 "API adapter interface (the only contract the core
// depends on)") and a concrete implementation built on gopencils, the
// same REST client library the teacher's pkg/confluence wraps.
package confluence

import "time"

// Ancestor is a lightweight ancestor reference as returned by the
// Confluence REST API's "ancestors" expansion.
type Ancestor struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Page is a page as consumed from the API (spec §3 "Page").
type Page struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	BodyStorage  string     `json:"bodyStorage"`
	Version      int        `json:"version"`
	ParentID     string     `json:"parentId,omitempty"`
	Ancestors    []Ancestor `json:"ancestors"`
	ModifiedDate *time.Time `json:"modifiedDate,omitempty"`
}

// Attachment describes a page attachment as listed by the API.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"downloadUrl"`
	MediaType   string `json:"mediaType,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
}

// User is a Confluence user as returned by GetUser/GetUserByUsername.
type User struct {
	Key         string `json:"key"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AccountID   string `json:"accountId,omitempty"`
}

// Page returned by a child-listing call, with pagination cursor.
type ChildPage struct {
	Page
}

// Cursor is an opaque pagination token.
type Cursor string

// APIError is returned by adapter methods on failure; it always
// carries the originating HTTP status so the core can classify it
// (spec §6 "All may fail with a typed error carrying an HTTP status").
type APIError struct {
	StatusCode int
	Op         string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *APIError) Unwrap() error {
	return e.Err
}
