package branch

import (
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/blob"
	"quill/internal/commit"
	apperrors "quill/internal/errors"
)

type fixture struct {
	graph    *commit.Graph
	blobs    blob.Store
	registry *Registry
}

func setupRegistry(t *testing.T) *fixture {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := blob.NewDiskStore(db, blob.Options{Root: t.TempDir()})
	require.NoError(t, err)

	graph := commit.NewGraph(db, blobs)
	return &fixture{
		graph:    graph,
		blobs:    blobs,
		registry: NewRegistry(db, graph),
	}
}

func (f *fixture) commit(t *testing.T, parentID, html string) *commit.Commit {
	t.Helper()
	blobID, err := f.blobs.Put(html, "", "")
	require.NoError(t, err)
	c, err := f.graph.Commit("tpl-1", parentID, blobID, "alice", "edit")
	require.NoError(t, err)
	return c
}

func TestRegistry_CreateAndGet(t *testing.T) {
	f := setupRegistry(t)
	root := f.commit(t, "", "v1")

	b, err := f.registry.Create("tpl-1", "main", root.ID, "alice", "", true)
	require.NoError(t, err)
	assert.Equal(t, root.ID, b.HeadCommitID)
	assert.True(t, b.IsDefault)

	got, err := f.registry.Get("tpl-1", "main")
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.HeadCommitID)
}

func TestRegistry_DuplicateNameConflicts(t *testing.T) {
	f := setupRegistry(t)
	root := f.commit(t, "", "v1")

	_, err := f.registry.Create("tpl-1", "feature", root.ID, "alice", "", false)
	require.NoError(t, err)

	_, err = f.registry.Create("tpl-1", "feature", root.ID, "bob", "", false)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	// Same name on another template is fine
	other, err := f.graph.Commit("tpl-2", "", mustPut(t, f.blobs, "other"), "carol", "root")
	require.NoError(t, err)
	_, err = f.registry.Create("tpl-2", "feature", other.ID, "carol", "", false)
	require.NoError(t, err)
}

func mustPut(t *testing.T, blobs blob.Store, html string) string {
	t.Helper()
	id, err := blobs.Put(html, "", "")
	require.NoError(t, err)
	return id
}

func TestRegistry_InvalidNames(t *testing.T) {
	f := setupRegistry(t)
	root := f.commit(t, "", "v1")

	for _, name := range []string{"", "bad/name", "bad name", "bad:name"} {
		_, err := f.registry.Create("tpl-1", name, root.ID, "alice", "", false)
		assert.Error(t, err, "name %q", name)
	}
}

func TestRegistry_AdvanceFastForward(t *testing.T) {
	f := setupRegistry(t)
	root := f.commit(t, "", "v1")
	next := f.commit(t, root.ID, "v2")

	_, err := f.registry.Create("tpl-1", "main", root.ID, "alice", "", true)
	require.NoError(t, err)

	b, err := f.registry.Advance("tpl-1", "main", next.ID, root.ID, false)
	require.NoError(t, err)
	assert.Equal(t, next.ID, b.HeadCommitID)
}

func TestRegistry_AdvanceRejectsNonFastForward(t *testing.T) {
	f := setupRegistry(t)
	root := f.commit(t, "", "v1")
	onMain := f.commit(t, root.ID, "main edit")
	sideways := f.commit(t, root.ID, "divergent edit")

	_, err := f.registry.Create("tpl-1", "main", root.ID, "alice", "", true)
	require.NoError(t, err)

	_, err = f.registry.Advance("tpl-1", "main", onMain.ID, "", false)
	require.NoError(t, err)

	// sideways does not descend from the current head
	_, err = f.registry.Advance("tpl-1", "main", sideways.ID, "", false)
	require.Error(t, err)
	assert.True(t, apperrors.IsFastForward(err))

	// The sanctioned non-fast-forward path is explicit
	_, err = f.registry.Advance("tpl-1", "main", sideways.ID, "", true)
	require.NoError(t, err)
}

func TestRegistry_AdvanceStaleExpectedHead(t *testing.T) {
	f := setupRegistry(t)
	root := f.commit(t, "", "v1")
	c2 := f.commit(t, root.ID, "v2")
	c3 := f.commit(t, c2.ID, "v3")

	_, err := f.registry.Create("tpl-1", "main", root.ID, "alice", "", true)
	require.NoError(t, err)

	_, err = f.registry.Advance("tpl-1", "main", c2.ID, root.ID, false)
	require.NoError(t, err)

	// Still thinks the head is root
	_, err = f.registry.Advance("tpl-1", "main", c3.ID, root.ID, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsFastForward(err))
}

func TestRegistry_ConcurrentAdvanceRace(t *testing.T) {
	f := setupRegistry(t)
	root := f.commit(t, "", "v1")

	// Two commits built against the same stale head
	a := f.commit(t, root.ID, "edit a")
	b := f.commit(t, root.ID, "edit b")

	_, err := f.registry.Create("tpl-1", "main", root.ID, "alice", "", true)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.registry.Advance("tpl-1", "main", a.ID, root.ID, false)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.registry.Advance("tpl-1", "main", b.ID, root.ID, false)
	}()
	wg.Wait()

	// Exactly one side wins; the loser sees a stale head.
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperrors.IsFastForward(err))
		}
	}
	assert.Equal(t, 1, winners)
}

func TestRegistry_DeleteDefaultBranchConflicts(t *testing.T) {
	f := setupRegistry(t)
	root := f.commit(t, "", "v1")

	_, err := f.registry.Create("tpl-1", "main", root.ID, "alice", "", true)
	require.NoError(t, err)
	_, err = f.registry.Create("tpl-1", "feature", root.ID, "alice", "", false)
	require.NoError(t, err)

	err = f.registry.Delete("tpl-1", "main")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	require.NoError(t, f.registry.Delete("tpl-1", "feature"))
	_, err = f.registry.Get("tpl-1", "feature")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRegistry_List(t *testing.T) {
	f := setupRegistry(t)
	root := f.commit(t, "", "v1")

	_, err := f.registry.Create("tpl-1", "main", root.ID, "alice", "", true)
	require.NoError(t, err)
	_, err = f.registry.Create("tpl-1", "draft", root.ID, "bob", "work in progress", false)
	require.NoError(t, err)

	branches, err := f.registry.List("tpl-1")
	require.NoError(t, err)
	require.Len(t, branches, 2)

	// Key order: draft before main
	assert.Equal(t, "draft", branches[0].Name)
	assert.Equal(t, "main", branches[1].Name)
}
