// diff.go – listing-based archive comparison
package bsa

import (
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// AddedHunk represents a contiguous run of listing lines that exist in
// the newer archive but not in the older one. Consecutive additions
// are grouped into a single hunk so a folder gained wholesale reads as
// one unit instead of one hunk per file.
type AddedHunk struct {
	// Lines holds the added listing lines, trailing newlines stripped.
	// The format is the one Dump emits.
	Lines []string

	// StartLine is the 1-based line number where the hunk begins in
	// the newer archive's listing.
	StartLine int
}

// EndLine returns the 1-based line number where the hunk ends in the
// newer archive's listing.
func (h *AddedHunk) EndLine() int {
	if len(h.Lines) == 0 {
		return h.StartLine
	}
	return h.StartLine + len(h.Lines) - 1
}

// AddedEntries compares the listings of two decoded archives and
// returns the entries present only in the newer one, grouped into
// contiguous hunks.
//
// Both listings are deterministic (folders in ascending hash order,
// files in wire order), so a line-oriented Myers diff pinpoints grown
// content without any bespoke tree walking. Identical archives, or a
// newer archive that only removed content, yield nil.
func AddedEntries(older, newer *Archive) []AddedHunk {
	a, b := older.listing(), newer.listing()
	if a == b {
		return nil
	}

	edits := myers.ComputeEdits(span.URIFromPath(""), a, b)
	u := gotextdiff.ToUnified("", "", a, edits)
	if len(u.Hunks) == 0 {
		return nil
	}

	var hunks []AddedHunk
	var current *AddedHunk

	for _, h := range u.Hunks {
		lineNo := h.ToLine // already 1-based

		for _, ln := range h.Lines {
			switch ln.Kind {
			case gotextdiff.Insert:
				text := strings.TrimSuffix(ln.Content, "\n")
				if current == nil {
					current = &AddedHunk{StartLine: lineNo, Lines: []string{text}}
				} else {
					current.Lines = append(current.Lines, text)
				}
				lineNo++

			case gotextdiff.Equal, gotextdiff.Delete:
				if current != nil {
					hunks = append(hunks, *current)
					current = nil
				}
				if ln.Kind == gotextdiff.Equal {
					lineNo++
				}
			}
		}

		if current != nil {
			hunks = append(hunks, *current)
			current = nil
		}
	}

	return hunks
}
