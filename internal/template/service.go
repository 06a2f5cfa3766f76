// internal/template/service.go
package template

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quill/internal/blob"
	"quill/internal/branch"
	"quill/internal/commit"
	"quill/internal/diff"
	apperrors "quill/internal/errors"
	"quill/internal/merge"
	"quill/internal/storage"
)

// DefaultBranchName is the branch created with every template.
const DefaultBranchName = "main"

// templateEntity wraps Template to implement storage.Entity
type templateEntity struct {
	*Template
}

func (t *templateEntity) GetID() string {
	return t.ID
}

// Service is the narrow interface collaborators call: the upload
// pipeline records initial versions, the editor commits edits and
// requests diffs and merges. Authorization happens before any call
// reaches here; author arrives as an opaque identity.
type Service struct {
	store    *storage.BadgerStore
	blobs    blob.Store
	graph    *commit.Graph
	branches *branch.Registry
	differ   *diff.Engine
	merger   *merge.Engine
	logger   *zap.Logger
}

func NewService(db *badger.DB, blobs blob.Store, logger *zap.Logger) *Service {
	graph := commit.NewGraph(db, blobs)
	branches := branch.NewRegistry(db, graph)
	differ := diff.NewEngine()

	return &Service{
		store:    storage.NewBadgerStore(db, "template"),
		blobs:    blobs,
		graph:    graph,
		branches: branches,
		differ:   differ,
		merger:   merge.NewEngine(blobs, graph, branches, differ),
		logger:   logger,
	}
}

// Graph exposes the commit graph for read-side collaborators.
func (s *Service) Graph() *commit.Graph { return s.graph }

// Branches exposes the branch registry.
func (s *Service) Branches() *branch.Registry { return s.branches }

// Create records a template with its initial content as the root
// commit of a new default branch.
func (s *Service) Create(name, description, author, html, css, js string) (*Template, *commit.Commit, error) {
	if name == "" {
		return nil, nil, apperrors.ValidationError("template name is required", nil)
	}

	now := time.Now()
	t := &Template{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		DefaultBranch: DefaultBranchName,
		CreatedBy:     author,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(&templateEntity{Template: t}); err != nil {
		return nil, nil, fmt.Errorf("storing template: %w", err)
	}

	blobID, err := s.blobs.Put(html, css, js)
	if err != nil {
		return nil, nil, fmt.Errorf("storing initial blob: %w", err)
	}

	root, err := s.graph.Commit(t.ID, "", blobID, author, "Initial version")
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.branches.Create(t.ID, DefaultBranchName, root.ID, author, "", true); err != nil {
		return nil, nil, err
	}

	s.logger.Info("template created",
		zap.String("template_id", t.ID),
		zap.String("name", name),
		zap.String("root_commit", root.ID))

	return t, root, nil
}

// Get resolves a template by id.
func (s *Service) Get(id string) (*Template, error) {
	var entity templateEntity
	entity.Template = &Template{}

	if err := s.store.Get(id, &entity); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("template not found: %s", id)
		}
		return nil, fmt.Errorf("getting template: %w", err)
	}

	return entity.Template, nil
}

// List returns all templates.
func (s *Service) List() ([]*Template, error) {
	var entities []templateEntity
	if err := s.store.List(&entities); err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	templates := make([]*Template, len(entities))
	for i := range entities {
		templates[i] = entities[i].Template
	}
	return templates, nil
}

// Commit records edited content on a branch tip. The commit is
// fast-forward by construction; a concurrent advance surfaces as
// FastForward and the caller retries against the fresh head.
func (s *Service) Commit(templateID, branchName, author, message, html, css, js string) (*commit.Commit, error) {
	if _, err := s.Get(templateID); err != nil {
		return nil, err
	}

	b, err := s.branches.Get(templateID, branchName)
	if err != nil {
		return nil, err
	}

	blobID, err := s.blobs.Put(html, css, js)
	if err != nil {
		return nil, fmt.Errorf("storing blob: %w", err)
	}

	c, err := s.graph.Commit(templateID, b.HeadCommitID, blobID, author, message)
	if err != nil {
		return nil, err
	}

	if _, err := s.branches.Advance(templateID, branchName, c.ID, b.HeadCommitID, false); err != nil {
		return nil, err
	}

	s.logger.Debug("commit recorded",
		zap.String("template_id", templateID),
		zap.String("branch", branchName),
		zap.String("commit", c.ID))

	return c, nil
}

// History lists commits from the branch tip back through its ancestry,
// each with a change summary relative to its first parent.
func (s *Service) History(templateID, branchName string, limit int) ([]HistoryEntry, error) {
	b, err := s.branches.Get(templateID, branchName)
	if err != nil {
		return nil, err
	}

	iter, err := s.graph.Ancestors(b.HeadCommitID)
	if err != nil {
		return nil, err
	}

	var entries []HistoryEntry
	for {
		c, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if c == nil {
			break
		}

		entry := HistoryEntry{Commit: c}
		if len(c.ParentIDs) > 0 {
			changes, err := s.changeSummary(c.ParentIDs[0], c.ID)
			if err != nil {
				return nil, err
			}
			entry.Changes = changes
		}
		entries = append(entries, entry)

		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

func (s *Service) changeSummary(parentID, commitID string) ([]commit.SectionChange, error) {
	diffs, err := s.DiffCommits("", parentID, commitID)
	if err != nil {
		return nil, err
	}

	var changes []commit.SectionChange
	for _, sd := range diffs {
		if sd.Stats.Insertions == 0 && sd.Stats.Deletions == 0 {
			continue
		}
		changes = append(changes, commit.SectionChange{
			Section:    string(sd.Section),
			Insertions: sd.Stats.Insertions,
			Deletions:  sd.Stats.Deletions,
		})
	}
	return changes, nil
}

// DiffCommits renders the structural difference between two arbitrary
// commits. templateID, when given, scopes the lookup.
func (s *Service) DiffCommits(templateID, aID, bID string) ([]diff.SectionDiff, error) {
	a, err := s.resolveCommit(templateID, aID)
	if err != nil {
		return nil, err
	}
	b, err := s.resolveCommit(templateID, bID)
	if err != nil {
		return nil, err
	}

	aBlob, err := s.blobs.Get(a.BlobID)
	if err != nil {
		return nil, err
	}
	bBlob, err := s.blobs.Get(b.BlobID)
	if err != nil {
		return nil, err
	}

	return s.differ.Diff(aBlob, bBlob), nil
}

func (s *Service) resolveCommit(templateID, id string) (*commit.Commit, error) {
	c, err := s.graph.Get(id)
	if err != nil {
		return nil, err
	}
	if templateID != "" && c.TemplateID != templateID {
		return nil, apperrors.NotFound("commit not found: %s", id)
	}
	return c, nil
}

// Show returns the content snapshot at a commit.
func (s *Service) Show(templateID, commitID string) (*blob.Blob, error) {
	c, err := s.resolveCommit(templateID, commitID)
	if err != nil {
		return nil, err
	}
	return s.blobs.Get(c.BlobID)
}

// Merge merges source into target via the merge engine.
func (s *Service) Merge(templateID, source, target, author, message string) (*merge.Result, error) {
	if _, err := s.Get(templateID); err != nil {
		return nil, err
	}
	result, err := s.merger.Merge(templateID, source, target, author, message)
	if err != nil {
		return nil, err
	}

	s.logger.Info("merge finished",
		zap.String("template_id", templateID),
		zap.String("source", source),
		zap.String("target", target),
		zap.String("status", string(result.Status)),
		zap.Int("conflicts", len(result.Conflicts)))

	return result, nil
}

// PreviewMerge reports what a merge would do without committing.
func (s *Service) PreviewMerge(templateID, source, target string) (*merge.Result, error) {
	if _, err := s.Get(templateID); err != nil {
		return nil, err
	}
	return s.merger.Preview(templateID, source, target)
}

// Rollback records a new commit on the branch carrying an older
// commit's content. History stays intact; the rollback is itself an
// ordinary commit.
func (s *Service) Rollback(templateID, branchName, commitID, author string) (*commit.Commit, error) {
	old, err := s.resolveCommit(templateID, commitID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.blobs.Get(old.BlobID)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Rollback to %s", old.ID[:8])
	return s.Commit(templateID, branchName, author, message, snapshot.HTML, snapshot.CSS, snapshot.JS)
}

// CreateBranch forks a new branch from an existing branch's tip or an
// explicit commit.
func (s *Service) CreateBranch(templateID, name, fromBranch, fromCommit, author, description string) (*branch.Branch, error) {
	if _, err := s.Get(templateID); err != nil {
		return nil, err
	}

	startID := fromCommit
	if startID == "" {
		if fromBranch == "" {
			t, err := s.Get(templateID)
			if err != nil {
				return nil, err
			}
			fromBranch = t.DefaultBranch
		}
		b, err := s.branches.Get(templateID, fromBranch)
		if err != nil {
			return nil, err
		}
		startID = b.HeadCommitID
	}

	return s.branches.Create(templateID, name, startID, author, description, false)
}

// DeleteBranch removes a branch pointer; the default branch is
// protected at the registry.
func (s *Service) DeleteBranch(templateID, name string) error {
	if _, err := s.Get(templateID); err != nil {
		return err
	}
	return s.branches.Delete(templateID, name)
}

// ListBranches lists a template's branches.
func (s *Service) ListBranches(templateID string) ([]*branch.Branch, error) {
	if _, err := s.Get(templateID); err != nil {
		return nil, err
	}
	return s.branches.List(templateID)
}
