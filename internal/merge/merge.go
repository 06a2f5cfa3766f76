// internal/merge/merge.go
package merge

import (
	"fmt"
	"strings"

	"quill/internal/blob"
	"quill/internal/branch"
	"quill/internal/commit"
	"quill/internal/diff"
	apperrors "quill/internal/errors"
)

type Status string

const (
	StatusClean      Status = "clean"
	StatusConflicted Status = "conflicted"
)

// ConflictRegion is a span where both sides changed the same part of a
// section, each differently from the base. Positions count tokens in
// the base section.
type ConflictRegion struct {
	Section   diff.Section `json:"section"`
	BasePos   int          `json:"base_pos"`
	BaseCount int          `json:"base_count"`
	Base      string       `json:"base"`
	Ours      string       `json:"ours"`
	Theirs    string       `json:"theirs"`
}

// Result is the outcome of a merge. Conflicted is a normal outcome, not
// an error: the caller resolves the regions and resubmits.
type Result struct {
	Status      Status           `json:"status"`
	FastForward bool             `json:"fast_forward"`
	Commit      *commit.Commit   `json:"commit,omitempty"`
	Blob        *blob.Blob       `json:"blob,omitempty"`
	Conflicts   []ConflictRegion `json:"conflicts,omitempty"`
}

// Engine performs three-way merges between branch tips.
type Engine struct {
	blobs    blob.Store
	graph    *commit.Graph
	branches *branch.Registry
	differ   *diff.Engine
}

func NewEngine(blobs blob.Store, graph *commit.Graph, branches *branch.Registry, differ *diff.Engine) *Engine {
	return &Engine{
		blobs:    blobs,
		graph:    graph,
		branches: branches,
		differ:   differ,
	}
}

// Merge merges sourceName into targetName. Fast-forwards advance the
// target pointer without a new commit; divergent histories get a
// three-way merge and, when clean, a merge commit with parents
// [target.head, source.head].
func (e *Engine) Merge(templateID, sourceName, targetName, author, message string) (*Result, error) {
	return e.merge(templateID, sourceName, targetName, author, message, false)
}

// Preview runs the merge computation without creating a commit or
// moving any branch. Editors use it to surface conflicts before asking
// for the real merge.
func (e *Engine) Preview(templateID, sourceName, targetName string) (*Result, error) {
	return e.merge(templateID, sourceName, targetName, "", "", true)
}

func (e *Engine) merge(templateID, sourceName, targetName, author, message string, dryRun bool) (*Result, error) {
	source, err := e.branches.Get(templateID, sourceName)
	if err != nil {
		return nil, err
	}
	target, err := e.branches.Get(templateID, targetName)
	if err != nil {
		return nil, err
	}

	// Merging a branch into itself (or identical tips) is a no-op.
	if source.HeadCommitID == target.HeadCommitID {
		head, err := e.graph.Get(target.HeadCommitID)
		if err != nil {
			return nil, err
		}
		b, err := e.blobs.Get(head.BlobID)
		if err != nil {
			return nil, err
		}
		return &Result{Status: StatusClean, Commit: head, Blob: b}, nil
	}

	base, err := e.graph.CommonAncestor(source.HeadCommitID, target.HeadCommitID)
	if err != nil {
		return nil, err
	}
	if base == nil {
		// Disjoint histories violate the single-root invariant.
		return nil, apperrors.InvalidHistory(
			"branches %s and %s share no history", sourceName, targetName)
	}

	// Target is an ancestor of source: fast-forward, never conflicts.
	if base.ID == target.HeadCommitID {
		srcHead, err := e.graph.Get(source.HeadCommitID)
		if err != nil {
			return nil, err
		}
		b, err := e.blobs.Get(srcHead.BlobID)
		if err != nil {
			return nil, err
		}
		if !dryRun {
			if _, err := e.branches.Advance(templateID, targetName, source.HeadCommitID, target.HeadCommitID, false); err != nil {
				return nil, err
			}
		}
		return &Result{Status: StatusClean, FastForward: true, Commit: srcHead, Blob: b}, nil
	}

	// Source is already contained in target: nothing to do.
	if base.ID == source.HeadCommitID {
		tgtHead, err := e.graph.Get(target.HeadCommitID)
		if err != nil {
			return nil, err
		}
		b, err := e.blobs.Get(tgtHead.BlobID)
		if err != nil {
			return nil, err
		}
		return &Result{Status: StatusClean, Commit: tgtHead, Blob: b}, nil
	}

	srcHead, err := e.graph.Get(source.HeadCommitID)
	if err != nil {
		return nil, err
	}
	tgtHead, err := e.graph.Get(target.HeadCommitID)
	if err != nil {
		return nil, err
	}

	baseBlob, err := e.blobs.Get(base.BlobID)
	if err != nil {
		return nil, err
	}
	ourBlob, err := e.blobs.Get(tgtHead.BlobID)
	if err != nil {
		return nil, err
	}
	theirBlob, err := e.blobs.Get(srcHead.BlobID)
	if err != nil {
		return nil, err
	}

	sections := map[diff.Section][3]string{
		diff.SectionHTML: {baseBlob.HTML, ourBlob.HTML, theirBlob.HTML},
		diff.SectionCSS:  {baseBlob.CSS, ourBlob.CSS, theirBlob.CSS},
		diff.SectionJS:   {baseBlob.JS, ourBlob.JS, theirBlob.JS},
	}

	merged := map[diff.Section]string{}
	var conflicts []ConflictRegion
	for _, sec := range diff.Sections() {
		texts := sections[sec]
		text, secConflicts := e.mergeSection(sec, texts[0], texts[1], texts[2])
		merged[sec] = text
		conflicts = append(conflicts, secConflicts...)
	}

	if len(conflicts) > 0 {
		return &Result{Status: StatusConflicted, Conflicts: conflicts}, nil
	}

	blobID, err := e.blobs.Put(merged[diff.SectionHTML], merged[diff.SectionCSS], merged[diff.SectionJS])
	if err != nil {
		return nil, fmt.Errorf("storing merged blob: %w", err)
	}
	mergedBlob, err := e.blobs.Get(blobID)
	if err != nil {
		return nil, err
	}

	if dryRun {
		return &Result{Status: StatusClean, Blob: mergedBlob}, nil
	}

	if message == "" {
		message = fmt.Sprintf("Merge branch '%s' into %s", sourceName, targetName)
	}
	mergeCommit, err := e.graph.MergeCommit(templateID, target.HeadCommitID, source.HeadCommitID, blobID, author, message)
	if err != nil {
		return nil, err
	}
	if _, err := e.branches.Advance(templateID, targetName, mergeCommit.ID, target.HeadCommitID, true); err != nil {
		return nil, err
	}

	return &Result{Status: StatusClean, Commit: mergeCommit, Blob: mergedBlob}, nil
}

// region is one side's edit over a base token interval [start, end).
// Insertions have start == end.
type region struct {
	start, end int
	repl       []string
}

func regionsOf(changes []diff.Change) []region {
	var regions []region
	for _, c := range changes {
		if c.Op == diff.Unchanged {
			continue
		}
		regions = append(regions, region{
			start: c.OldPos,
			end:   c.OldPos + c.OldCount,
			repl:  c.NewText,
		})
	}
	return regions
}

// overlaps reports whether two base intervals touch the same content.
// Insertions at the same point collide; an insertion inside a replaced
// or deleted span collides with it.
func overlaps(a, b region) bool {
	if a.start == a.end && b.start == b.end {
		return a.start == b.start
	}
	if a.start == a.end {
		return b.start <= a.start && a.start < b.end
	}
	if b.start == b.end {
		return a.start <= b.start && b.start < a.end
	}
	return a.start < b.end && b.start < a.end
}

// mergeSection performs the per-section lockstep walk: both sides'
// changes relative to base advance together by base position.
// Non-overlapping edits both apply; overlapping edits that produce the
// same text collapse; the rest become conflict regions.
func (e *Engine) mergeSection(sec diff.Section, baseText, oursText, theirsText string) (string, []ConflictRegion) {
	baseTokens := diff.Tokenize(sec, baseText)
	ours := regionsOf(e.differ.DiffSection(sec, baseText, oursText).Changes)
	theirs := regionsOf(e.differ.DiffSection(sec, baseText, theirsText).Changes)

	var out []string
	var conflicts []ConflictRegion
	pos := 0
	i, j := 0, 0

	for i < len(ours) || j < len(theirs) {
		// Seed the cluster with the earliest pending region, ours first
		// on ties so the walk is deterministic.
		var cluster []region
		var fromOurs, fromTheirs []region

		takeOurs := func() {
			cluster = append(cluster, ours[i])
			fromOurs = append(fromOurs, ours[i])
			i++
		}
		takeTheirs := func() {
			cluster = append(cluster, theirs[j])
			fromTheirs = append(fromTheirs, theirs[j])
			j++
		}

		if j >= len(theirs) || (i < len(ours) && ours[i].start <= theirs[j].start) {
			takeOurs()
		} else {
			takeTheirs()
		}

		// Grow the cluster while pending regions overlap its span.
		for {
			span := clusterSpan(cluster)
			grew := false
			if i < len(ours) && overlaps(span, ours[i]) {
				takeOurs()
				grew = true
			}
			if j < len(theirs) && overlaps(span, theirs[j]) {
				takeTheirs()
				grew = true
			}
			if !grew {
				break
			}
		}

		span := clusterSpan(cluster)

		// Copy untouched base tokens up to the cluster.
		out = append(out, baseTokens[pos:span.start]...)

		switch {
		case len(fromTheirs) == 0:
			out = append(out, applyRegions(baseTokens, span, fromOurs)...)
		case len(fromOurs) == 0:
			out = append(out, applyRegions(baseTokens, span, fromTheirs)...)
		default:
			ourSide := applyRegions(baseTokens, span, fromOurs)
			theirSide := applyRegions(baseTokens, span, fromTheirs)
			if join(ourSide) == join(theirSide) {
				// Both sides made the identical change.
				out = append(out, ourSide...)
			} else {
				conflicts = append(conflicts, ConflictRegion{
					Section:   sec,
					BasePos:   span.start,
					BaseCount: span.end - span.start,
					Base:      join(baseTokens[span.start:span.end]),
					Ours:      join(ourSide),
					Theirs:    join(theirSide),
				})
				out = append(out, baseTokens[span.start:span.end]...)
			}
		}
		pos = span.end
	}

	out = append(out, baseTokens[pos:]...)
	return join(out), conflicts
}

func clusterSpan(cluster []region) region {
	span := cluster[0]
	for _, r := range cluster[1:] {
		if r.start < span.start {
			span.start = r.start
		}
		if r.end > span.end {
			span.end = r.end
		}
	}
	return region{start: span.start, end: span.end}
}

// applyRegions rewrites the base tokens inside span with one side's
// regions, which are disjoint and ordered within a single diff.
func applyRegions(baseTokens []string, span region, regions []region) []string {
	var out []string
	pos := span.start
	for _, r := range regions {
		out = append(out, baseTokens[pos:r.start]...)
		out = append(out, r.repl...)
		pos = r.end
	}
	out = append(out, baseTokens[pos:span.end]...)
	return out
}

func join(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t)
	}
	return b.String()
}

// RenderConflict produces the familiar marker form of a conflict region
// for manual resolution.
func RenderConflict(c ConflictRegion) string {
	var b strings.Builder
	b.WriteString("<<<<<<< ours\n")
	b.WriteString(ensureNewline(c.Ours))
	b.WriteString("||||||| base\n")
	b.WriteString(ensureNewline(c.Base))
	b.WriteString("=======\n")
	b.WriteString(ensureNewline(c.Theirs))
	b.WriteString(">>>>>>> theirs\n")
	return b.String()
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
