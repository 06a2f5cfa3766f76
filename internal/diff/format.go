// internal/diff/format.go
package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	addColor    = color.New(color.FgGreen)
	delColor    = color.New(color.FgRed)
	headerColor = color.New(color.FgCyan, color.Bold)
)

// Format renders the section diff in a unified style. Colorized output
// is for terminal display; the plain form is stable and test-friendly.
func (sd SectionDiff) Format(colorize bool) string {
	var buf bytes.Buffer

	header := fmt.Sprintf("@@ %s +%d -%d @@\n", sd.Section, sd.Stats.Insertions, sd.Stats.Deletions)
	if colorize {
		headerColor.Fprint(&buf, header)
	} else {
		buf.WriteString(header)
	}

	writeTokens := func(prefix string, c *color.Color, tokens []string) {
		for _, tok := range tokens {
			line := prefix + " " + strings.TrimRight(tok, "\n") + "\n"
			if colorize {
				c.Fprint(&buf, line)
			} else {
				buf.WriteString(line)
			}
		}
	}

	for _, ch := range sd.Changes {
		switch ch.Op {
		case Unchanged:
			for _, tok := range ch.OldText {
				buf.WriteString("  " + strings.TrimRight(tok, "\n") + "\n")
			}
		case Deleted:
			writeTokens("-", delColor, ch.OldText)
		case Inserted:
			writeTokens("+", addColor, ch.NewText)
		case Replaced:
			writeTokens("-", delColor, ch.OldText)
			writeTokens("+", addColor, ch.NewText)
		}
	}

	return buf.String()
}

// FormatAll renders every section that has edits.
func FormatAll(diffs []SectionDiff, colorize bool) string {
	var buf bytes.Buffer
	for _, sd := range diffs {
		if sd.Stats.Insertions == 0 && sd.Stats.Deletions == 0 {
			continue
		}
		buf.WriteString(sd.Format(colorize))
	}
	return buf.String()
}
