package merge

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/blob"
	"quill/internal/branch"
	"quill/internal/commit"
	"quill/internal/diff"
)

type fixture struct {
	blobs    blob.Store
	graph    *commit.Graph
	branches *branch.Registry
	engine   *Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := blob.NewDiskStore(db, blob.Options{Root: t.TempDir()})
	require.NoError(t, err)

	graph := commit.NewGraph(db, blobs)
	branches := branch.NewRegistry(db, graph)

	return &fixture{
		blobs:    blobs,
		graph:    graph,
		branches: branches,
		engine:   NewEngine(blobs, graph, branches, diff.NewEngine()),
	}
}

func (f *fixture) commitContent(t *testing.T, parentID, html, css, js string) *commit.Commit {
	t.Helper()
	blobID, err := f.blobs.Put(html, css, js)
	require.NoError(t, err)
	c, err := f.graph.Commit("tpl-1", parentID, blobID, "alice", "edit")
	require.NoError(t, err)
	return c
}

// seed creates main and feature both pointing at a shared root commit.
func (f *fixture) seed(t *testing.T, html, css, js string) *commit.Commit {
	t.Helper()
	root := f.commitContent(t, "", html, css, js)
	_, err := f.branches.Create("tpl-1", "main", root.ID, "alice", "", true)
	require.NoError(t, err)
	_, err = f.branches.Create("tpl-1", "feature", root.ID, "alice", "", false)
	require.NoError(t, err)
	return root
}

func (f *fixture) advanceTo(t *testing.T, branchName string, c *commit.Commit) {
	t.Helper()
	_, err := f.branches.Advance("tpl-1", branchName, c.ID, "", false)
	require.NoError(t, err)
}

func TestMerge_FastForward(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "<p>v1</p>\n", "", "")

	// feature moves ahead, main stays put
	c2 := f.commitContent(t, root.ID, "<p>v2</p>\n", "", "")
	f.advanceTo(t, "feature", c2)

	result, err := f.engine.Merge("tpl-1", "feature", "main", "alice", "")
	require.NoError(t, err)

	assert.Equal(t, StatusClean, result.Status)
	assert.True(t, result.FastForward)
	require.NotNil(t, result.Commit)
	// No merge commit: the target simply adopts feature's head.
	assert.Equal(t, c2.ID, result.Commit.ID)
	assert.Equal(t, "<p>v2</p>\n", result.Blob.HTML)

	main, err := f.branches.Get("tpl-1", "main")
	require.NoError(t, err)
	assert.Equal(t, c2.ID, main.HeadCommitID)
}

func TestMerge_IntoItselfIsNoOp(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "<p>v1</p>\n", "", "")

	result, err := f.engine.Merge("tpl-1", "main", "main", "alice", "")
	require.NoError(t, err)

	assert.Equal(t, StatusClean, result.Status)
	assert.Equal(t, root.ID, result.Commit.ID)
	assert.Empty(t, result.Conflicts)
}

func TestMerge_SourceAlreadyMerged(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "<p>v1</p>\n", "", "")

	// main moves ahead of feature; merging feature changes nothing
	c2 := f.commitContent(t, root.ID, "<p>v2</p>\n", "", "")
	f.advanceTo(t, "main", c2)

	result, err := f.engine.Merge("tpl-1", "feature", "main", "alice", "")
	require.NoError(t, err)

	assert.Equal(t, StatusClean, result.Status)
	assert.Equal(t, c2.ID, result.Commit.ID)

	main, err := f.branches.Get("tpl-1", "main")
	require.NoError(t, err)
	assert.Equal(t, c2.ID, main.HeadCommitID)
}

func TestMerge_CleanAcrossSections(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "<p>base</p>\n", "p { color: black; }\n", "let n = 1;\n")

	// main edits CSS only, feature edits JS only
	mainEdit := f.commitContent(t, root.ID, "<p>base</p>\n", "p { color: blue; }\n", "let n = 1;\n")
	f.advanceTo(t, "main", mainEdit)
	featureEdit := f.commitContent(t, root.ID, "<p>base</p>\n", "p { color: black; }\n", "let n = 2;\n")
	f.advanceTo(t, "feature", featureEdit)

	result, err := f.engine.Merge("tpl-1", "feature", "main", "alice", "")
	require.NoError(t, err)

	require.Equal(t, StatusClean, result.Status)
	assert.False(t, result.FastForward)
	require.NotNil(t, result.Commit)
	assert.Equal(t, []string{mainEdit.ID, featureEdit.ID}, result.Commit.ParentIDs)

	// Both edits survive
	assert.Equal(t, "p { color: blue; }\n", result.Blob.CSS)
	assert.Equal(t, "let n = 2;\n", result.Blob.JS)
	assert.Equal(t, "<p>base</p>\n", result.Blob.HTML)

	main, err := f.branches.Get("tpl-1", "main")
	require.NoError(t, err)
	assert.Equal(t, result.Commit.ID, main.HeadCommitID)
}

func TestMerge_CleanWithinSection(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "", "a { x: 1 }\nb { x: 2 }\nc { x: 3 }\n", "")

	// Edits touch different rules of the same section
	mainEdit := f.commitContent(t, root.ID, "", "a { x: 9 }\nb { x: 2 }\nc { x: 3 }\n", "")
	f.advanceTo(t, "main", mainEdit)
	featureEdit := f.commitContent(t, root.ID, "", "a { x: 1 }\nb { x: 2 }\nc { x: 9 }\n", "")
	f.advanceTo(t, "feature", featureEdit)

	result, err := f.engine.Merge("tpl-1", "feature", "main", "alice", "")
	require.NoError(t, err)

	require.Equal(t, StatusClean, result.Status)
	assert.Equal(t, "a { x: 9 }\nb { x: 2 }\nc { x: 9 }\n", result.Blob.CSS)
}

func TestMerge_ConflictSameLine(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "line one\nline two\nline three\n", "", "")

	// Both sides rewrite the same HTML line differently
	mainEdit := f.commitContent(t, root.ID, "line one\nmain version\nline three\n", "", "")
	f.advanceTo(t, "main", mainEdit)
	featureEdit := f.commitContent(t, root.ID, "line one\nfeature version\nline three\n", "", "")
	f.advanceTo(t, "feature", featureEdit)

	mainHeadBefore, err := f.branches.Get("tpl-1", "main")
	require.NoError(t, err)

	result, err := f.engine.Merge("tpl-1", "feature", "main", "alice", "")
	require.NoError(t, err)

	require.Equal(t, StatusConflicted, result.Status)
	require.Len(t, result.Conflicts, 1)

	c := result.Conflicts[0]
	assert.Equal(t, diff.SectionHTML, c.Section)
	assert.Equal(t, "main version\n", c.Ours)
	assert.Equal(t, "feature version\n", c.Theirs)
	assert.Equal(t, "line two\n", c.Base)

	// No commit, no branch movement
	assert.Nil(t, result.Commit)
	mainHeadAfter, err := f.branches.Get("tpl-1", "main")
	require.NoError(t, err)
	assert.Equal(t, mainHeadBefore.HeadCommitID, mainHeadAfter.HeadCommitID)
}

func TestMerge_IdenticalEditsCollapse(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "", "", "let n = 1;\n")

	// Both sides make the exact same change
	mainEdit := f.commitContent(t, root.ID, "", "", "let n = 2;\n")
	f.advanceTo(t, "main", mainEdit)
	featureEdit := f.commitContent(t, root.ID, "x", "", "let n = 2;\n")
	f.advanceTo(t, "feature", featureEdit)

	result, err := f.engine.Merge("tpl-1", "feature", "main", "alice", "")
	require.NoError(t, err)

	require.Equal(t, StatusClean, result.Status)
	assert.Equal(t, "let n = 2;\n", result.Blob.JS)
	assert.Equal(t, "x", result.Blob.HTML)
}

func TestMerge_ConflictsOrderedAcrossSections(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "h1\nh2\n", "c1\nc2\n", "j1\nj2\n")

	mainEdit := f.commitContent(t, root.ID, "h1\nmain-h\n", "c1\nmain-c\n", "j1\nmain-j\n")
	f.advanceTo(t, "main", mainEdit)
	featureEdit := f.commitContent(t, root.ID, "h1\nfeat-h\n", "c1\nfeat-c\n", "j1\nfeat-j\n")
	f.advanceTo(t, "feature", featureEdit)

	result, err := f.engine.Merge("tpl-1", "feature", "main", "alice", "")
	require.NoError(t, err)

	require.Equal(t, StatusConflicted, result.Status)
	require.Len(t, result.Conflicts, 3)
	assert.Equal(t, diff.SectionHTML, result.Conflicts[0].Section)
	assert.Equal(t, diff.SectionCSS, result.Conflicts[1].Section)
	assert.Equal(t, diff.SectionJS, result.Conflicts[2].Section)
}

func TestMerge_CleanBothDirections(t *testing.T) {
	// When the sides touch disjoint spans, the merge is clean from
	// either direction even though the resulting parents differ.
	f := setup(t)
	root := f.seed(t, "", "a { x: 1 }\nb { x: 2 }\nc { x: 3 }\n", "")

	mainEdit := f.commitContent(t, root.ID, "", "a { x: 9 }\nb { x: 2 }\nc { x: 3 }\n", "")
	f.advanceTo(t, "main", mainEdit)
	featureEdit := f.commitContent(t, root.ID, "", "a { x: 1 }\nb { x: 2 }\nc { x: 9 }\n", "")
	f.advanceTo(t, "feature", featureEdit)

	forward, err := f.engine.Preview("tpl-1", "feature", "main")
	require.NoError(t, err)
	backward, err := f.engine.Preview("tpl-1", "main", "feature")
	require.NoError(t, err)

	assert.Equal(t, StatusClean, forward.Status)
	assert.Equal(t, StatusClean, backward.Status)
	assert.Equal(t, forward.Blob.CSS, backward.Blob.CSS)
}

func TestMerge_PreviewMovesNothing(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "<p>v1</p>\n", "", "")

	c2 := f.commitContent(t, root.ID, "<p>v2</p>\n", "", "")
	f.advanceTo(t, "feature", c2)

	result, err := f.engine.Preview("tpl-1", "feature", "main")
	require.NoError(t, err)
	assert.Equal(t, StatusClean, result.Status)
	assert.True(t, result.FastForward)

	main, err := f.branches.Get("tpl-1", "main")
	require.NoError(t, err)
	assert.Equal(t, root.ID, main.HeadCommitID)
}

func TestMerge_InsertionsAtSamePointConflict(t *testing.T) {
	f := setup(t)
	root := f.seed(t, "", "", "start();\nend();\n")

	mainEdit := f.commitContent(t, root.ID, "", "", "start();\nmainStep();\nend();\n")
	f.advanceTo(t, "main", mainEdit)
	featureEdit := f.commitContent(t, root.ID, "", "", "start();\nfeatureStep();\nend();\n")
	f.advanceTo(t, "feature", featureEdit)

	result, err := f.engine.Merge("tpl-1", "feature", "main", "alice", "")
	require.NoError(t, err)

	require.Equal(t, StatusConflicted, result.Status)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, diff.SectionJS, result.Conflicts[0].Section)
	assert.Equal(t, "mainStep();\n", result.Conflicts[0].Ours)
	assert.Equal(t, "featureStep();\n", result.Conflicts[0].Theirs)
}

func TestRenderConflict(t *testing.T) {
	out := RenderConflict(ConflictRegion{
		Section: diff.SectionHTML,
		Base:    "old\n",
		Ours:    "ours\n",
		Theirs:  "theirs\n",
	})

	assert.Contains(t, out, "<<<<<<< ours\nours\n")
	assert.Contains(t, out, "||||||| base\nold\n")
	assert.Contains(t, out, "=======\ntheirs\n")
	assert.Contains(t, out, ">>>>>>> theirs\n")
}
