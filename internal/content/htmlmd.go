package content

import "strings"

// removedTags are stripped entirely, tag and content, before extraction.
var removedTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"iframe": true, "svg": true, "form": true, "noscript": true,
	"header": true,
}

// headingLevel maps heading tag names to their markdown prefix length.
var headingLevel = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

// paragraphTags emit a paragraph break on close.
var paragraphTags = map[string]bool{"p": true, "div": true, "section": true}

// ToMarkdown converts raw HTML to markdown. It never panics, regardless of
// input, and never lowercases the whole string: tag matching is byte-level
// ASCII case folding only, so multi-byte runes are never touched or split.
func ToMarkdown(html string) string {
	stripped := removeComments(html)
	stripped = removeBlocks(stripped, removedTags)
	main := extractMain(stripped)
	converted := convertTags(main)
	decoded := decodeEntities(converted)
	return collapseWhitespace(decoded)
}

// asciiFold folds a single ASCII letter to lowercase; non-letters and
// non-ASCII bytes pass through unchanged. This is the byte-safe analogue of
// eq_ignore_ascii_case: it never touches multi-byte UTF-8 sequences because
// every byte ≥ 0x80 is left as-is.
func asciiFold(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// asciiEqualFold compares two strings byte-by-byte with ASCII case folding.
func asciiEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if asciiFold(a[i]) != asciiFold(b[i]) {
			return false
		}
	}
	return true
}

func isTagNameByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '-'
}

// tagToken describes one parsed "<...>" occurrence.
type tagToken struct {
	start, end  int // [start,end) spans the whole "<...>" text
	name        string
	closing     bool
	selfClosing bool
	raw         string
}

// nextTag scans html starting at from for the next tag. found is false once
// no more '<' remain.
func nextTag(html string, from int) (tagToken, bool) {
	for {
		idx := strings.IndexByte(html[from:], '<')
		if idx < 0 {
			return tagToken{}, false
		}
		start := from + idx
		if start+1 >= len(html) {
			return tagToken{}, false
		}

		end := strings.IndexByte(html[start:], '>')
		if end < 0 {
			return tagToken{}, false
		}
		end = start + end + 1
		raw := html[start:end]

		pos := start + 1
		closing := false
		if pos < len(html) && html[pos] == '/' {
			closing = true
			pos++
		}
		nameStart := pos
		for pos < len(html) && isTagNameByte(html[pos]) {
			pos++
		}
		if pos == nameStart {
			// Not an element tag (e.g. stray '<' or a doctype); skip past it.
			from = end
			continue
		}
		name := asciiLowerASCII(html[nameStart:pos])
		selfClosing := strings.HasSuffix(strings.TrimSpace(raw[:len(raw)-1]), "/")

		return tagToken{start: start, end: end, name: name, closing: closing, selfClosing: selfClosing, raw: raw}, true
	}
}

// asciiLowerASCII folds only ASCII letters, leaving any non-ASCII byte (which
// cannot occur in a tag name) untouched.
func asciiLowerASCII(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b[i] = asciiFold(s[i])
	}
	return string(b)
}

func removeComments(html string) string {
	var b strings.Builder
	i := 0
	for i < len(html) {
		idx := strings.Index(html[i:], "<!--")
		if idx < 0 {
			b.WriteString(html[i:])
			break
		}
		start := i + idx
		b.WriteString(html[i:start])
		end := strings.Index(html[start:], "-->")
		if end < 0 {
			break
		}
		i = start + end + 3
	}
	return b.String()
}

// removeBlocks strips <tag>...</tag> (tag and everything inside) for every
// tag name in names, tracking nesting depth so a nested same-name tag
// doesn't end the removal early.
func removeBlocks(html string, names map[string]bool) string {
	var b strings.Builder
	i := 0
	for i < len(html) {
		tok, ok := nextTag(html, i)
		if !ok {
			b.WriteString(html[i:])
			break
		}
		if !tok.closing && !tok.selfClosing && names[tok.name] {
			closeEnd := findMatchingClose(html, tok.end, tok.name)
			b.WriteString(html[i:tok.start])
			i = closeEnd
			continue
		}
		b.WriteString(html[i:tok.end])
		i = tok.end
	}
	return b.String()
}

// findMatchingClose returns the index just past the close tag matching an
// open tag named name whose content starts at from. If no close tag is
// found, it returns len(html) so the remainder is consumed.
func findMatchingClose(html string, from int, name string) int {
	_, end := findMatchingCloseTag(html, from, name)
	return end
}

// findMatchingCloseTag is like findMatchingClose but also returns the start
// of the matched close tag itself, so callers can recover the span between
// an open tag and its close tag without re-searching for "</".
func findMatchingCloseTag(html string, from int, name string) (start, end int) {
	depth := 1
	i := from
	for {
		tok, ok := nextTag(html, i)
		if !ok {
			return len(html), len(html)
		}
		if tok.name == name && !tok.selfClosing {
			if tok.closing {
				depth--
				if depth == 0 {
					return tok.start, tok.end
				}
			} else {
				depth++
			}
		}
		i = tok.end
	}
}

// extractMain returns the inner content of the first <main>, else <article>,
// else <body>; falling back to the whole input if none is present.
func extractMain(html string) string {
	for _, tag := range []string{"main", "article", "body"} {
		if inner, ok := extractTagContent(html, tag); ok {
			return inner
		}
	}
	return html
}

func extractTagContent(html, name string) (string, bool) {
	i := 0
	for {
		tok, ok := nextTag(html, i)
		if !ok {
			return "", false
		}
		if tok.name == name && !tok.closing && !tok.selfClosing {
			closeStart, _ := findMatchingCloseTag(html, tok.end, name)
			return html[tok.end:closeStart], true
		}
		i = tok.end
	}
}

// mdFrame is a deferred close-text entry for elements whose markdown
// rendering needs both an open and a close marker (headings, links).
type mdFrame struct {
	name    string
	onClose string
}

// convertTags walks the remaining markup converting recognized elements to
// their markdown equivalent and stripping everything else, keeping text
// content in place.
func convertTags(html string) string {
	var b strings.Builder
	var stack []mdFrame

	i := 0
	for i < len(html) {
		tok, ok := nextTag(html, i)
		if !ok {
			b.WriteString(html[i:])
			break
		}
		b.WriteString(html[i:tok.start])

		switch {
		case tok.name == "br":
			b.WriteString("\n")

		case headingLevel[tok.name] != 0 && !tok.closing:
			b.WriteString("\n" + strings.Repeat("#", headingLevel[tok.name]) + " ")
			stack = append(stack, mdFrame{tok.name, "\n\n"})
		case headingLevel[tok.name] != 0 && tok.closing:
			popMatching(&stack, tok.name, &b)

		case paragraphTags[tok.name]:
			// Both edges separate: text abutting the open tag gets a
			// paragraph break too, same as the close.
			b.WriteString("\n\n")

		case tok.name == "strong" || tok.name == "b":
			b.WriteString("**")
		case tok.name == "em" || tok.name == "i":
			b.WriteString("*")
		case tok.name == "code":
			b.WriteString("`")

		case tok.name == "pre" && !tok.closing:
			b.WriteString("\n```\n")
		case tok.name == "pre" && tok.closing:
			b.WriteString("\n```\n")

		case tok.name == "blockquote" && !tok.closing:
			b.WriteString("> ")
		case tok.name == "blockquote" && tok.closing:
			b.WriteString("\n\n")

		case (tok.name == "ul" || tok.name == "ol") && !tok.closing:
			b.WriteString("\n")
		case (tok.name == "ul" || tok.name == "ol") && tok.closing:
			b.WriteString("\n")

		case tok.name == "li" && !tok.closing:
			b.WriteString("- ")
		case tok.name == "li" && tok.closing:
			b.WriteString("\n")

		case tok.name == "a" && !tok.closing && !tok.selfClosing:
			b.WriteString("[")
			stack = append(stack, mdFrame{tok.name, "](" + extractHref(tok.raw) + ")"})
		case tok.name == "a" && tok.closing:
			popMatching(&stack, tok.name, &b)

		default:
			// Unrecognized tag: drop the markup, keep the text content.
		}

		i = tok.end
	}
	return b.String()
}

// popMatching finds the most recent stack frame with the given name and
// emits its deferred close text, discarding anything pushed after it so a
// malformed mismatch doesn't wedge the stack forever.
func popMatching(stack *[]mdFrame, name string, b *strings.Builder) {
	s := *stack
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].name == name {
			b.WriteString(s[i].onClose)
			*stack = s[:i]
			return
		}
	}
}

func extractHref(rawTag string) string {
	for _, quote := range []byte{'"', '\''} {
		marker := "href=" + string(quote)
		idx := indexFold(rawTag, marker)
		if idx < 0 {
			continue
		}
		start := idx + len(marker)
		end := strings.IndexByte(rawTag[start:], quote)
		if end < 0 {
			continue
		}
		return rawTag[start : start+end]
	}
	return ""
}

// indexFold finds substr in s using ASCII case-insensitive comparison.
func indexFold(s, substr string) int {
	if len(substr) == 0 {
		return 0
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if asciiEqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}
