// internal/commit/graph.go
package commit

import (
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"quill/internal/blob"
	apperrors "quill/internal/errors"
	"quill/internal/storage"
	"quill/shared/utils"
)

// Graph is the append-only commit DAG. Nodes are addressed by id and
// parents must exist before a child is written, so the graph is acyclic
// by construction.
type Graph struct {
	store *storage.BadgerStore
	blobs blob.Store
}

func NewGraph(db *badger.DB, blobs blob.Store) *Graph {
	return &Graph{
		store: storage.NewBadgerStore(db, "commit"),
		blobs: blobs,
	}
}

// commitEntity wraps Commit to implement storage.Entity
type commitEntity struct {
	*Commit
}

func (c *commitEntity) GetID() string {
	return c.ID
}

// Commit appends an ordinary commit. parentID may be empty for the root
// commit of a template.
func (g *Graph) Commit(templateID, parentID, blobID, author, message string) (*Commit, error) {
	var parents []string
	if parentID != "" {
		parents = []string{parentID}
	}
	return g.create(templateID, parents, blobID, author, message)
}

// MergeCommit appends a commit joining two histories. By convention the
// target branch head comes first.
func (g *Graph) MergeCommit(templateID, leftID, rightID, blobID, author, message string) (*Commit, error) {
	if leftID == "" || rightID == "" {
		return nil, apperrors.InvalidHistory("merge commit requires two parents")
	}
	return g.create(templateID, []string{leftID, rightID}, blobID, author, message)
}

func (g *Graph) create(templateID string, parents []string, blobID, author, message string) (*Commit, error) {
	if author == "" {
		return nil, apperrors.ValidationError("author is required", nil)
	}

	for _, p := range parents {
		if _, err := g.Get(p); err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.InvalidHistory("parent commit does not exist: %s", p)
			}
			return nil, err
		}
	}

	exists, err := g.blobs.Exists(blobID)
	if err != nil {
		return nil, fmt.Errorf("checking blob: %w", err)
	}
	if !exists {
		return nil, apperrors.NotFound("blob not found: %s", blobID)
	}

	now := time.Now()
	c := &Commit{
		TemplateID: templateID,
		ParentIDs:  parents,
		BlobID:     blobID,
		Author:     author,
		Message:    message,
		CreatedAt:  now,
	}
	c.ID = hashCommit(c)

	if err := g.store.Create(&commitEntity{Commit: c}); err != nil {
		return nil, fmt.Errorf("storing commit: %w", err)
	}

	if err := g.blobs.AddRef(blobID); err != nil {
		return nil, fmt.Errorf("referencing blob: %w", err)
	}

	return c, nil
}

func hashCommit(c *Commit) string {
	sections := []string{c.TemplateID, c.BlobID, c.Author, c.Message, c.CreatedAt.Format(time.RFC3339Nano)}
	sections = append(sections, c.ParentIDs...)
	return utils.HashSections(sections...)
}

// Get resolves a commit by id.
func (g *Graph) Get(id string) (*Commit, error) {
	var entity commitEntity
	entity.Commit = &Commit{}

	if err := g.store.Get(id, &entity); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("commit not found: %s", id)
		}
		return nil, fmt.Errorf("getting commit: %w", err)
	}

	return entity.Commit, nil
}

// AncestorIter walks a commit's history breadth-first, starting at the
// commit itself. Next returns nil once the walk is exhausted.
type AncestorIter struct {
	g     *Graph
	queue []string
	seen  map[string]bool
}

func (it *AncestorIter) Next() (*Commit, error) {
	for len(it.queue) > 0 {
		id := it.queue[0]
		it.queue = it.queue[1:]
		if it.seen[id] {
			continue
		}
		it.seen[id] = true

		c, err := it.g.Get(id)
		if err != nil {
			return nil, err
		}
		it.queue = append(it.queue, c.ParentIDs...)
		return c, nil
	}
	return nil, nil
}

// Ancestors returns a lazy breadth-first walk over id's history,
// including id itself. The walk terminates because the graph is
// append-only and acyclic.
func (g *Graph) Ancestors(id string) (*AncestorIter, error) {
	if _, err := g.Get(id); err != nil {
		return nil, err
	}
	return &AncestorIter{
		g:     g,
		queue: []string{id},
		seen:  make(map[string]bool),
	}, nil
}

// depths maps every ancestor of id (including id at depth 0) to its
// minimal parent-edge distance.
func (g *Graph) depths(id string) (map[string]int, error) {
	depths := map[string]int{}
	queue := []string{id}
	depths[id] = 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		c, err := g.Get(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range c.ParentIDs {
			if _, ok := depths[p]; !ok {
				depths[p] = depths[cur] + 1
				queue = append(queue, p)
			}
		}
	}
	return depths, nil
}

// CommonAncestor finds the merge base of two commits: the commit
// reachable from both with the smallest combined distance. Ties break
// by earliest creation time, then by id, so the result is
// deterministic. Returns nil for disjoint histories.
func (g *Graph) CommonAncestor(aID, bID string) (*Commit, error) {
	aDepths, err := g.depths(aID)
	if err != nil {
		return nil, err
	}
	bDepths, err := g.depths(bID)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for id := range aDepths {
		if _, ok := bDepths[id]; ok {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	commits := make(map[string]*Commit, len(candidates))
	for _, id := range candidates {
		c, err := g.Get(id)
		if err != nil {
			return nil, err
		}
		commits[id] = c
	}

	sort.Slice(candidates, func(i, j int) bool {
		di := aDepths[candidates[i]] + bDepths[candidates[i]]
		dj := aDepths[candidates[j]] + bDepths[candidates[j]]
		if di != dj {
			return di < dj
		}
		ti, tj := commits[candidates[i]].CreatedAt, commits[candidates[j]].CreatedAt
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return candidates[i] < candidates[j]
	})

	return commits[candidates[0]], nil
}

// IsAncestor reports whether ancestorID lies on commitID's history
// (a commit counts as its own ancestor).
func (g *Graph) IsAncestor(ancestorID, commitID string) (bool, error) {
	depths, err := g.depths(commitID)
	if err != nil {
		return false, err
	}
	_, ok := depths[ancestorID]
	return ok, nil
}
