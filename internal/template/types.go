package template

import (
	"time"

	"quill/internal/commit"
)

// Template owns one blob lineage: a set of branches and, through them,
// every reachable commit and blob. Templates never share content
// lineage with each other.
type Template struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	DefaultBranch string    `json:"default_branch"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HistoryEntry is one commit in a branch listing, with the per-section
// change summary relative to its first parent.
type HistoryEntry struct {
	Commit  *commit.Commit         `json:"commit"`
	Changes []commit.SectionChange `json:"changes"`
}
