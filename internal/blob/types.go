package blob

import (
	"time"
)

// Blob is one immutable template snapshot: the HTML, CSS and JS
// sections stored as a unit. Identity is the content hash of the three
// sections, so identical content is always the same blob.
type Blob struct {
	ID        string    `json:"id"`
	HTML      string    `json:"html"`
	CSS       string    `json:"css"`
	JS        string    `json:"js"`
	CreatedAt time.Time `json:"created_at"`
}

// Meta stores bookkeeping about stored content
type Meta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	RefCount   uint32    `json:"ref_count"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

type Store interface {
	Put(html, css, js string) (string, error)
	Get(id string) (*Blob, error)
	Exists(id string) (bool, error)

	// AddRef records another commit referencing the blob.
	AddRef(id string) error

	// Release drops one reference; content is removed at zero.
	Release(id string) error
}
