// internal/diff/tokenize.go
package diff

import (
	"strings"
)

// Section tags which part of a template snapshot a diff applies to.
type Section string

const (
	SectionHTML Section = "html"
	SectionCSS  Section = "css"
	SectionJS   Section = "js"
)

// Sections lists the sections in their canonical order.
func Sections() []Section {
	return []Section{SectionHTML, SectionCSS, SectionJS}
}

// Tokenize splits text into the units the diff operates on. Tokens
// always concatenate back to the original text exactly, which is what
// makes Apply a faithful inverse.
//
// CSS and JS use line tokens. HTML uses tag-aware tokens: each markup
// tag (with its attributes) is one token, and text runs between tags
// split at line boundaries.
func Tokenize(section Section, text string) []string {
	if section == SectionHTML {
		return tokenizeHTML(text)
	}
	return tokenizeLines(text)
}

func tokenizeLines(text string) []string {
	if text == "" {
		return nil
	}
	tokens := strings.SplitAfter(text, "\n")
	if tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func tokenizeHTML(text string) []string {
	var tokens []string
	var buf strings.Builder

	flushText := func() {
		if buf.Len() == 0 {
			return
		}
		tokens = append(tokens, tokenizeLines(buf.String())...)
		buf.Reset()
	}

	i := 0
	for i < len(text) {
		c := text[i]
		if c == '<' {
			end := strings.IndexByte(text[i:], '>')
			if end < 0 {
				// Unterminated tag, keep as text
				buf.WriteString(text[i:])
				break
			}
			flushText()
			tokens = append(tokens, text[i:i+end+1])
			i += end + 1
			continue
		}
		buf.WriteByte(c)
		i++
	}
	flushText()

	return tokens
}
