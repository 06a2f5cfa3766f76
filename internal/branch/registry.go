// internal/branch/registry.go
package branch

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"quill/internal/commit"
	apperrors "quill/internal/errors"
	"quill/internal/storage"
)

// Branch is a named mutable pointer into a template's commit graph.
type Branch struct {
	TemplateID   string    `json:"template_id"`
	Name         string    `json:"name"`
	HeadCommitID string    `json:"head_commit_id"`
	Description  string    `json:"description"`
	IsDefault    bool      `json:"is_default"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// branchEntity wraps Branch to implement storage.Entity. Branches are
// keyed by template id plus name, which enforces per-template name
// uniqueness at the storage layer.
type branchEntity struct {
	*Branch
}

func (b *branchEntity) GetID() string {
	return b.TemplateID + "/" + b.Name
}

// Registry manages branch pointers. Advance serializes per
// (template, branch), which is the engine's only contended path.
type Registry struct {
	store *storage.BadgerStore
	graph *commit.Graph

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry(db *badger.DB, graph *commit.Graph) *Registry {
	return &Registry{
		store: storage.NewBadgerStore(db, "branch"),
		graph: graph,
		locks: make(map[string]*sync.Mutex),
	}
}

func validateName(name string) error {
	if name == "" {
		return apperrors.ValidationError("branch name is required", nil)
	}
	if strings.ContainsAny(name, "/: \t\n") {
		return apperrors.ValidationError("branch name contains invalid characters", name)
	}
	return nil
}

func (r *Registry) lockFor(templateID, name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := templateID + "/" + name
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// Create registers a new branch pointing at fromCommitID.
func (r *Registry) Create(templateID, name, fromCommitID, createdBy, description string, isDefault bool) (*Branch, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, err := r.graph.Get(fromCommitID); err != nil {
		return nil, err
	}

	now := time.Now()
	b := &Branch{
		TemplateID:   templateID,
		Name:         name,
		HeadCommitID: fromCommitID,
		Description:  description,
		IsDefault:    isDefault,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.store.Create(&branchEntity{Branch: b}); err != nil {
		if apperrors.IsConflict(err) {
			return nil, apperrors.Conflict("branch already exists: %s", name)
		}
		return nil, fmt.Errorf("storing branch: %w", err)
	}

	return b, nil
}

// Get resolves a branch by template and name.
func (r *Registry) Get(templateID, name string) (*Branch, error) {
	var entity branchEntity
	entity.Branch = &Branch{}

	if err := r.store.Get(templateID+"/"+name, &entity); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("branch not found: %s", name)
		}
		return nil, fmt.Errorf("getting branch: %w", err)
	}

	return entity.Branch, nil
}

// List returns a template's branches in name order.
func (r *Registry) List(templateID string) ([]*Branch, error) {
	var entities []branchEntity
	if err := r.store.List(&entities); err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	var branches []*Branch
	for i := range entities {
		if entities[i].TemplateID == templateID {
			branches = append(branches, entities[i].Branch)
		}
	}
	return branches, nil
}

// Advance moves the branch head to newHeadID with compare-and-swap
// semantics: when expectedHeadID is non-empty, the stored head must
// still match it, so concurrent advances on one branch serialize and
// the loser of a race observes FastForward. Ordinary commits must also
// be fast-forward (the current head lies on the new head's lineage);
// merges pass allowNonFF to take the sanctioned non-fast-forward path.
func (r *Registry) Advance(templateID, name, newHeadID, expectedHeadID string, allowNonFF bool) (*Branch, error) {
	lock := r.lockFor(templateID, name)
	lock.Lock()
	defer lock.Unlock()

	b, err := r.Get(templateID, name)
	if err != nil {
		return nil, err
	}

	if expectedHeadID != "" && b.HeadCommitID != expectedHeadID {
		return nil, apperrors.FastForward(
			"branch %s moved: head is %s, expected %s", name, b.HeadCommitID, expectedHeadID)
	}

	if _, err := r.graph.Get(newHeadID); err != nil {
		return nil, err
	}

	if newHeadID == b.HeadCommitID {
		return b, nil
	}

	if !allowNonFF {
		ok, err := r.graph.IsAncestor(b.HeadCommitID, newHeadID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.FastForward(
				"branch %s head %s is not an ancestor of %s", name, b.HeadCommitID, newHeadID)
		}
	}

	b.HeadCommitID = newHeadID
	b.UpdatedAt = time.Now()
	if err := r.store.Update(&branchEntity{Branch: b}); err != nil {
		return nil, fmt.Errorf("updating branch: %w", err)
	}

	return b, nil
}

// Delete removes a branch pointer. The default branch is protected;
// history stays reachable through the commit graph either way.
func (r *Registry) Delete(templateID, name string) error {
	b, err := r.Get(templateID, name)
	if err != nil {
		return err
	}
	if b.IsDefault {
		return apperrors.Conflict("cannot delete default branch: %s", name)
	}

	return r.store.Delete(templateID + "/" + name)
}
