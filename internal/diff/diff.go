// internal/diff/diff.go
package diff

import (
	"fmt"

	"quill/internal/blob"
)

// Op classifies a change span.
type Op int

const (
	Unchanged Op = iota
	Inserted
	Deleted
	Replaced
)

func (o Op) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Inserted:
		return "inserted"
	case Deleted:
		return "deleted"
	case Replaced:
		return "replaced"
	}
	return "unknown"
}

// Change is one span of a section diff. Positions count tokens:
// OldPos/OldCount locate the span in the base side, NewPos/NewCount in
// the new side. Insertions have OldCount == 0, deletions NewCount == 0.
type Change struct {
	Op       Op       `json:"op"`
	OldPos   int      `json:"old_pos"`
	OldCount int      `json:"old_count"`
	NewPos   int      `json:"new_pos"`
	NewCount int      `json:"new_count"`
	OldText  []string `json:"old_text,omitempty"`
	NewText  []string `json:"new_text,omitempty"`
}

// SectionDiff is the ordered change sequence for one section.
type SectionDiff struct {
	Section Section  `json:"section"`
	Changes []Change `json:"changes"`
	Stats   struct {
		Insertions int `json:"insertions"`
		Deletions  int `json:"deletions"`
	} `json:"stats"`
}

// Engine computes structural diffs between template snapshots. Diffing
// is pure: identical inputs always produce identical change sequences.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Diff compares two blobs section by section, in html, css, js order.
func (e *Engine) Diff(a, b *blob.Blob) []SectionDiff {
	sections := map[Section][2]string{
		SectionHTML: {a.HTML, b.HTML},
		SectionCSS:  {a.CSS, b.CSS},
		SectionJS:   {a.JS, b.JS},
	}

	var result []SectionDiff
	for _, sec := range Sections() {
		pair := sections[sec]
		result = append(result, e.DiffSection(sec, pair[0], pair[1]))
	}
	return result
}

// DiffSection compares one section's text.
func (e *Engine) DiffSection(section Section, oldText, newText string) SectionDiff {
	oldTokens := Tokenize(section, oldText)
	newTokens := Tokenize(section, newText)

	sd := SectionDiff{
		Section: section,
		Changes: e.changes(oldTokens, newTokens),
	}
	for _, c := range sd.Changes {
		switch c.Op {
		case Inserted:
			sd.Stats.Insertions += c.NewCount
		case Deleted:
			sd.Stats.Deletions += c.OldCount
		case Replaced:
			sd.Stats.Insertions += c.NewCount
			sd.Stats.Deletions += c.OldCount
		}
	}
	return sd
}

// computeLCS builds the longest-common-subsequence matrix
func (e *Engine) computeLCS(oldTokens, newTokens []string) [][]int {
	matrix := make([][]int, len(oldTokens)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(newTokens)+1)
	}

	for i := 1; i <= len(oldTokens); i++ {
		for j := 1; j <= len(newTokens); j++ {
			if oldTokens[i-1] == newTokens[j-1] {
				matrix[i][j] = matrix[i-1][j-1] + 1
			} else {
				matrix[i][j] = max(matrix[i-1][j], matrix[i][j-1])
			}
		}
	}

	return matrix
}

type tokenOp struct {
	op    Op
	token string
}

// changes walks the LCS matrix backwards, then groups the per-token
// edit script into spans. A contiguous cluster of deletions and
// insertions collapses into a single Replaced span.
func (e *Engine) changes(oldTokens, newTokens []string) []Change {
	lcs := e.computeLCS(oldTokens, newTokens)

	var script []tokenOp
	i, j := len(oldTokens), len(newTokens)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && oldTokens[i-1] == newTokens[j-1]:
			script = append(script, tokenOp{Unchanged, oldTokens[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			script = append(script, tokenOp{Inserted, newTokens[j-1]})
			j--
		default:
			script = append(script, tokenOp{Deleted, oldTokens[i-1]})
			i--
		}
	}

	// Reverse into forward order
	for l, r := 0, len(script)-1; l < r; l, r = l+1, r-1 {
		script[l], script[r] = script[r], script[l]
	}

	var changes []Change
	oldPos, newPos := 0, 0
	for k := 0; k < len(script); {
		if script[k].op == Unchanged {
			c := Change{Op: Unchanged, OldPos: oldPos, NewPos: newPos}
			for k < len(script) && script[k].op == Unchanged {
				c.OldText = append(c.OldText, script[k].token)
				c.OldCount++
				c.NewCount++
				k++
			}
			c.NewText = c.OldText
			oldPos += c.OldCount
			newPos += c.NewCount
			changes = append(changes, c)
			continue
		}

		// Cluster of edits: collect deletions and insertions until the
		// next unchanged token.
		var deleted, inserted []string
		for k < len(script) && script[k].op != Unchanged {
			if script[k].op == Deleted {
				deleted = append(deleted, script[k].token)
			} else {
				inserted = append(inserted, script[k].token)
			}
			k++
		}

		c := Change{
			OldPos:   oldPos,
			OldCount: len(deleted),
			NewPos:   newPos,
			NewCount: len(inserted),
			OldText:  deleted,
			NewText:  inserted,
		}
		switch {
		case len(deleted) > 0 && len(inserted) > 0:
			c.Op = Replaced
		case len(inserted) > 0:
			c.Op = Inserted
		default:
			c.Op = Deleted
		}
		oldPos += c.OldCount
		newPos += c.NewCount
		changes = append(changes, c)
	}

	return changes
}

// Apply reconstructs the new side of a diff from the base text and the
// change sequence. Round-trip invariant: for any a and b,
// Apply(section, a, DiffSection(section, a, b).Changes) == b.
func (e *Engine) Apply(section Section, baseText string, changes []Change) (string, error) {
	baseTokens := Tokenize(section, baseText)

	var out []string
	pos := 0
	for _, c := range changes {
		if c.OldPos != pos {
			return "", fmt.Errorf("change at old position %d, expected %d", c.OldPos, pos)
		}
		if pos+c.OldCount > len(baseTokens) {
			return "", fmt.Errorf("change overruns base: %d tokens at %d, base has %d", c.OldCount, pos, len(baseTokens))
		}

		switch c.Op {
		case Unchanged:
			out = append(out, baseTokens[pos:pos+c.OldCount]...)
		case Inserted, Replaced:
			out = append(out, c.NewText...)
		case Deleted:
			// Drop the span
		}
		pos += c.OldCount
	}
	if pos != len(baseTokens) {
		return "", fmt.Errorf("changes cover %d of %d base tokens", pos, len(baseTokens))
	}

	var b []byte
	for _, tok := range out {
		b = append(b, tok...)
	}
	return string(b), nil
}
