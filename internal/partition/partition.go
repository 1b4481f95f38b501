// Package partition computes how a document's pages are divided into parts
// from a set of split points and deleted pages. It does no I/O.
package partition

import (
	"fmt"
	"sort"
	"strings"
)

// State is everything the user chose for one document.
// PartNames is keyed by the 0-based part index.
type State struct {
	PageCount    int            `json:"pageCount" yaml:"pageCount"`
	SplitPoints  []int          `json:"splitPoints" yaml:"splitPoints"`
	DeletedPages []int          `json:"deletedPages" yaml:"deletedPages"`
	PartNames    map[int]string `json:"partNames,omitempty" yaml:"partNames,omitempty"`
}

// Part is one contiguous page range [Start, End] of the source document.
// Pages holds the range minus deleted pages, in source order.
type Part struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Pages []int  `json:"pages"`
	Name  string `json:"name"`
	Empty bool   `json:"empty"`
}

// Number is the 1-based part number used in file names.
func (p Part) Number() int { return p.Index + 1 }

// DefaultName is the display name of a part without a user supplied one.
func DefaultName(index int) string {
	return fmt.Sprintf("Part %d", index+1)
}

// ComputeParts divides pages 1..PageCount at the state's split points.
// Split points outside [2, PageCount] are ignored and duplicates collapse.
// A part whose pages are all deleted is kept and marked Empty.
func ComputeParts(s State) []Part {
	n := s.PageCount
	if n < 1 {
		return nil
	}
	bounds := boundaries(n, s.SplitPoints)
	deleted := toSet(s.DeletedPages, n)

	parts := make([]Part, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		p := Part{Index: i, Start: bounds[i], End: bounds[i+1] - 1, Name: s.nameFor(i)}
		p.Pages = make([]int, 0, p.End-p.Start+1)
		for pg := p.Start; pg <= p.End; pg++ {
			if !deleted[pg] {
				p.Pages = append(p.Pages, pg)
			}
		}
		p.Empty = len(p.Pages) == 0
		parts = append(parts, p)
	}
	return parts
}

// EffectivePages returns 1..n without the deleted pages, in order.
func EffectivePages(n int, deletedPages []int) []int {
	deleted := toSet(deletedPages, n)
	out := make([]int, 0, n)
	for pg := 1; pg <= n; pg++ {
		if !deleted[pg] {
			out = append(out, pg)
		}
	}
	return out
}

// boundaries returns sort(unique({1} ∪ valid splits ∪ {n+1})).
func boundaries(n int, splits []int) []int {
	seen := map[int]bool{1: true, n + 1: true}
	out := []int{1, n + 1}
	for _, p := range splits {
		if p < 2 || p > n || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func toSet(pages []int, n int) map[int]bool {
	set := make(map[int]bool, len(pages))
	for _, p := range pages {
		if p >= 1 && p <= n {
			set[p] = true
		}
	}
	return set
}

func (s State) nameFor(index int) string {
	if name := strings.TrimSpace(s.PartNames[index]); name != "" {
		return name
	}
	return DefaultName(index)
}
