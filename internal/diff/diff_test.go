package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/blob"
)

func TestTokenize_Lines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"single line no newline", "a { color: red; }", []string{"a { color: red; }"}},
		{"trailing newline", "one\ntwo\n", []string{"one\n", "two\n"}},
		{"no trailing newline", "one\ntwo", []string{"one\n", "two"}},
		{"blank lines kept", "one\n\ntwo\n", []string{"one\n", "\n", "two\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(SectionCSS, tt.text))
		})
	}
}

func TestTokenize_HTML(t *testing.T) {
	tokens := Tokenize(SectionHTML, `<div class="box"><p>Hello</p></div>`)
	assert.Equal(t, []string{`<div class="box">`, `<p>`, "Hello", `</p>`, `</div>`}, tokens)
}

func TestTokenize_HTMLTextRunsSplitAtLines(t *testing.T) {
	tokens := Tokenize(SectionHTML, "<ul>\nfirst\nsecond\n</ul>")
	assert.Equal(t, []string{"<ul>", "\n", "first\n", "second\n", "</ul>"}, tokens)
}

func TestTokenize_ConcatenatesBack(t *testing.T) {
	texts := map[Section]string{
		SectionHTML: "<div id=\"a\">\n  text <b>bold</b>\n</div>\n",
		SectionCSS:  ".a { color: red; }\n.b { margin: 0 }\n",
		SectionJS:   "function f() {\n  return 1;\n}",
	}

	for sec, text := range texts {
		joined := ""
		for _, tok := range Tokenize(sec, text) {
			joined += tok
		}
		assert.Equal(t, text, joined, "section %s", sec)
	}
}

func TestDiffSection_RoundTrip(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name     string
		section  Section
		old, new string
	}{
		{"identical", SectionCSS, "a { x: 1 }\n", "a { x: 1 }\n"},
		{"pure insertion", SectionCSS, "a\nb\n", "a\nnew\nb\n"},
		{"pure deletion", SectionJS, "a\nb\nc\n", "a\nc\n"},
		{"replacement", SectionCSS, "a\nb\nc\n", "a\nB\nc\n"},
		{"everything changed", SectionJS, "x\ny\n", "p\nq\nr\n"},
		{"from empty", SectionCSS, "", "a\nb\n"},
		{"to empty", SectionCSS, "a\nb\n", ""},
		{"html tag edit", SectionHTML, "<div class=\"old\">text</div>", "<div class=\"new\">text</div>"},
		{"html structural edit", SectionHTML, "<p>one</p><p>two</p>", "<p>one</p><span>extra</span><p>two</p>"},
		{"no trailing newline", SectionJS, "a\nb", "a\nb\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd := e.DiffSection(tt.section, tt.old, tt.new)

			rebuilt, err := e.Apply(tt.section, tt.old, sd.Changes)
			require.NoError(t, err)
			assert.Equal(t, tt.new, rebuilt)
		})
	}
}

func TestDiffSection_ChangeShapes(t *testing.T) {
	e := NewEngine()

	sd := e.DiffSection(SectionCSS, "a\nb\nc\n", "a\nB\nc\n")
	require.Len(t, sd.Changes, 3)

	assert.Equal(t, Unchanged, sd.Changes[0].Op)
	assert.Equal(t, Replaced, sd.Changes[1].Op)
	assert.Equal(t, []string{"b\n"}, sd.Changes[1].OldText)
	assert.Equal(t, []string{"B\n"}, sd.Changes[1].NewText)
	assert.Equal(t, Unchanged, sd.Changes[2].Op)

	assert.Equal(t, 1, sd.Stats.Insertions)
	assert.Equal(t, 1, sd.Stats.Deletions)
}

func TestDiffSection_InsertionPositions(t *testing.T) {
	e := NewEngine()

	sd := e.DiffSection(SectionCSS, "a\nc\n", "a\nb\nc\n")
	require.Len(t, sd.Changes, 3)

	ins := sd.Changes[1]
	assert.Equal(t, Inserted, ins.Op)
	assert.Equal(t, 1, ins.OldPos)
	assert.Equal(t, 0, ins.OldCount)
	assert.Equal(t, 1, ins.NewCount)
}

func TestDiff_IsDeterministic(t *testing.T) {
	e := NewEngine()

	a := &blob.Blob{
		HTML: "<div>\nalpha\n</div>",
		CSS:  "div { padding: 1px }\n",
		JS:   "let n = 1;\n",
	}
	b := &blob.Blob{
		HTML: "<div>\nbeta\n</div>",
		CSS:  "div { padding: 2px }\n",
		JS:   "let n = 1;\nlet m = 2;\n",
	}

	first := e.Diff(a, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Diff(a, b))
	}
}

func TestDiff_SectionOrder(t *testing.T) {
	e := NewEngine()

	diffs := e.Diff(&blob.Blob{}, &blob.Blob{HTML: "<p>x</p>", CSS: "p{}", JS: ";"})
	require.Len(t, diffs, 3)
	assert.Equal(t, SectionHTML, diffs[0].Section)
	assert.Equal(t, SectionCSS, diffs[1].Section)
	assert.Equal(t, SectionJS, diffs[2].Section)
}

func TestApply_RejectsMismatchedBase(t *testing.T) {
	e := NewEngine()

	sd := e.DiffSection(SectionCSS, "a\nb\n", "a\nc\n")
	_, err := e.Apply(SectionCSS, "a\nb\nextra\n", sd.Changes)
	assert.Error(t, err)
}

func TestFormat_PlainOutput(t *testing.T) {
	e := NewEngine()

	sd := e.DiffSection(SectionCSS, "a\nb\n", "a\nc\n")
	out := sd.Format(false)

	assert.Contains(t, out, "@@ css +1 -1 @@")
	assert.Contains(t, out, "- b")
	assert.Contains(t, out, "+ c")
	assert.Contains(t, out, "  a")
}
