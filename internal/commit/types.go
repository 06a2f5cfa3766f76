package commit

import (
	"time"
)

// Commit is one immutable node in a template's history. ParentIDs holds
// zero entries for a root commit, one for an ordinary commit and two
// for a merge commit (target first, source second).
type Commit struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"`
	ParentIDs  []string  `json:"parent_ids"`
	BlobID     string    `json:"blob_id"`
	Author     string    `json:"author"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsMerge reports whether the commit joins two lines of history.
func (c *Commit) IsMerge() bool {
	return len(c.ParentIDs) == 2
}

// SectionChange summarizes edits to one section relative to the first
// parent, for history listings.
type SectionChange struct {
	Section    string `json:"section"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}
