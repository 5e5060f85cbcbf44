// Package unsafescan scans source files for occurrences of the forbidden
// keyword outside strings and comments, as a defense-in-depth check
// against compiler bypasses (component B).
package unsafescan

import (
	"fmt"
	"os"
)

// Keyword is the forbidden source token this scanner looks for.
const Keyword = "unsafe"

// Location is a (path, line, column) source location, 1-indexed, used
// as a set element after sort and dedup.
type Location struct {
	Path   string
	Line   int
	Column int
}

// Scan reads the file at path and returns every real-token occurrence of
// Keyword, in source order. It understands just enough of the language's
// lexical rules (double-quoted and raw string literals, `//` line
// comments, `/* */` block comments, character literals) to suppress the
// common false positives.
//
// Scan fails the whole file on any read error rather than returning a
// partial location list: a silent partial scan could let a violation
// escape (spec design note, §9).
func Scan(path string) ([]Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}

	return scanBytes(path, data), nil
}

type lexState int

const (
	stateCode lexState = iota
	stateLineComment
	stateBlockComment
	stateString
	stateRawString
	stateChar
)

func scanBytes(path string, data []byte) []Location {
	var locs []Location

	state := stateCode
	line, col := 1, 1
	rawHashes := 0

	advance := func(b byte) {
		if b == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	i := 0
	for i < len(data) {
		b := data[i]

		switch state {
		case stateCode:
			switch {
			case b == '/' && i+1 < len(data) && data[i+1] == '/':
				state = stateLineComment
				advance(b)
				i++

				continue
			case b == '/' && i+1 < len(data) && data[i+1] == '*':
				state = stateBlockComment
				advance(b)
				i++

				continue
			case b == '"':
				state = stateString
			case b == '\'':
				state = stateChar
			case b == 'r' && isRawStringStart(data, i):
				rawHashes = countHashesAfterQuote(data, i+1)
				state = stateRawString

				// Consume 'r', the opening hashes, and the opening quote.
				for k := 0; k < rawHashes+2; k++ {
					advance(data[i])
					i++
				}

				continue
			case isKeywordAt(data, i):
				locs = append(locs, Location{Path: path, Line: line, Column: col})

				for range Keyword {
					advance(data[i])
					i++
				}

				continue
			}

			advance(b)
			i++
		case stateLineComment:
			if b == '\n' {
				state = stateCode
			}

			advance(b)
			i++
		case stateBlockComment:
			if b == '*' && i+1 < len(data) && data[i+1] == '/' {
				advance(b)
				i++
				advance(data[i])
				i++
				state = stateCode

				continue
			}

			advance(b)
			i++
		case stateString:
			if b == '\\' && i+1 < len(data) {
				advance(b)
				i++
				advance(data[i])
				i++

				continue
			}

			if b == '"' {
				state = stateCode
			}

			advance(b)
			i++
		case stateChar:
			if b == '\\' && i+1 < len(data) {
				advance(b)
				i++
				advance(data[i])
				i++

				continue
			}

			if b == '\'' {
				state = stateCode
			}

			advance(b)
			i++
		case stateRawString:
			if b == '"' && hasClosingHashes(data, i+1, rawHashes) {
				advance(b)
				i++

				for k := 0; k < rawHashes; k++ {
					advance(data[i])
					i++
				}

				state = stateCode

				continue
			}

			advance(b)
			i++
		}
	}

	return locs
}

// isKeywordAt reports whether data[i:] begins with Keyword as a whole
// token (not a prefix of a longer identifier).
func isKeywordAt(data []byte, i int) bool {
	if i+len(Keyword) > len(data) {
		return false
	}

	if string(data[i:i+len(Keyword)]) != Keyword {
		return false
	}

	if i > 0 && isIdentContinuation(data[i-1]) {
		return false
	}

	if i+len(Keyword) < len(data) && isIdentContinuation(data[i+len(Keyword)]) {
		return false
	}

	return true
}

func isIdentContinuation(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// isRawStringStart reports whether data[i:] begins a raw string literal:
// 'r' followed by zero or more '#' then a '"'.
func isRawStringStart(data []byte, i int) bool {
	if data[i] != 'r' {
		return false
	}

	j := i + 1
	for j < len(data) && data[j] == '#' {
		j++
	}

	return j < len(data) && data[j] == '"'
}

func countHashesAfterQuote(data []byte, i int) int {
	n := 0
	for i < len(data) && data[i] == '#' {
		n++
		i++
	}

	return n
}

func hasClosingHashes(data []byte, i, n int) bool {
	if i+n > len(data) {
		return false
	}

	for k := 0; k < n; k++ {
		if data[i+k] != '#' {
			return false
		}
	}

	return true
}

// SortDedup sorts locs lexicographically by (path, line, column) and
// removes duplicates, per spec.md law 5.
func SortDedup(locs []Location) []Location {
	if len(locs) == 0 {
		return locs
	}

	sorted := make([]Location, len(locs))
	copy(sorted, locs)

	insertionSort(sorted)

	out := sorted[:1]

	for _, l := range sorted[1:] {
		if l != out[len(out)-1] {
			out = append(out, l)
		}
	}

	return out
}

func insertionSort(locs []Location) {
	for i := 1; i < len(locs); i++ {
		for j := i; j > 0 && less(locs[j], locs[j-1]); j-- {
			locs[j], locs[j-1] = locs[j-1], locs[j]
		}
	}
}

func less(a, b Location) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}

	if a.Line != b.Line {
		return a.Line < b.Line
	}

	return a.Column < b.Column
}
