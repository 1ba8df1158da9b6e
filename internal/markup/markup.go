// Package markup interprets the two emphasis markers staff type into
// storyboard text: **bold** and ==highlight==.
package markup

import "strings"

const (
	boldMarker      = "**"
	highlightMarker = "=="
)

// Run is a span of text sharing one style.
type Run struct {
	Text      string `json:"text"`
	Bold      bool   `json:"bold,omitempty"`
	Highlight bool   `json:"highlight,omitempty"`
}

// Plain reports whether the run carries no styling.
func (r Run) Plain() bool {
	return !r.Bold && !r.Highlight
}

// Interpret splits text into styled runs.
//
// Markers are matched left to right; at each position a complete **…** pair
// is tried before ==…==, and the closing marker is the nearest one on the
// same line. Markers without a partner stay in the text, as do line breaks.
// Styled spans are taken verbatim, so markers do not nest, and empty spans
// are dropped.
func Interpret(line string) []Run {
	var runs []Run
	var plain strings.Builder

	flush := func() {
		if plain.Len() > 0 {
			runs = append(runs, Run{Text: plain.String()})
			plain.Reset()
		}
	}

	for i := 0; i < len(line); {
		if inner, n, ok := span(line[i:], boldMarker); ok {
			if inner != "" {
				flush()
				runs = append(runs, Run{Text: inner, Bold: true})
			}
			i += n
			continue
		}
		if inner, n, ok := span(line[i:], highlightMarker); ok {
			if inner != "" {
				flush()
				runs = append(runs, Run{Text: inner, Highlight: true})
			}
			i += n
			continue
		}
		plain.WriteByte(line[i])
		i++
	}
	flush()
	return runs
}

// span matches marker…marker at the start of s and returns the inner text
// and the number of bytes consumed. The pair must close before the next
// line break.
func span(s, marker string) (string, int, bool) {
	if !strings.HasPrefix(s, marker) {
		return "", 0, false
	}
	rest := s[len(marker):]
	if nl := strings.IndexAny(rest, "\r\n"); nl >= 0 {
		rest = rest[:nl]
	}
	end := strings.Index(rest, marker)
	if end < 0 {
		return "", 0, false
	}
	return rest[:end], 2*len(marker) + end, true
}
