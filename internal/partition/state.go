package partition

import (
	"sort"
	"strconv"
	"strings"

	"github.com/local/chopdok/internal/apperr"
)

// Normalize returns a copy with sorted unique split points in [2, PageCount],
// sorted unique deletions in [1, PageCount] and blank names dropped.
func (s State) Normalize() State {
	out := State{PageCount: s.PageCount}
	b := boundaries(s.PageCount, s.SplitPoints)
	if len(b) > 2 {
		out.SplitPoints = append([]int(nil), b[1:len(b)-1]...)
	}
	for p := range toSet(s.DeletedPages, s.PageCount) {
		out.DeletedPages = append(out.DeletedPages, p)
	}
	sort.Ints(out.DeletedPages)
	for i, name := range s.PartNames {
		if name = strings.TrimSpace(name); name != "" {
			if out.PartNames == nil {
				out.PartNames = map[int]string{}
			}
			out.PartNames[i] = name
		}
	}
	return out
}

// ToggleSplit adds page as a split point, or removes it if already present.
// Pages outside [2, PageCount] leave the state unchanged.
func (s State) ToggleSplit(page int) State {
	if page < 2 || page > s.PageCount {
		return s
	}
	s.SplitPoints = toggle(s.SplitPoints, page)
	return s
}

// ToggleDelete marks page as deleted, or restores it.
func (s State) ToggleDelete(page int) State {
	if page < 1 || page > s.PageCount {
		return s
	}
	s.DeletedPages = toggle(s.DeletedPages, page)
	return s
}

// SetName assigns a display name to the part at index. A blank name
// restores the default.
func (s State) SetName(index int, name string) State {
	names := make(map[int]string, len(s.PartNames)+1)
	for k, v := range s.PartNames {
		names[k] = v
	}
	if name = strings.TrimSpace(name); name == "" {
		delete(names, index)
	} else {
		names[index] = name
	}
	s.PartNames = names
	return s
}

func toggle(set []int, v int) []int {
	out := make([]int, 0, len(set)+1)
	found := false
	for _, x := range set {
		if x == v {
			found = true
			continue
		}
		out = append(out, x)
	}
	if !found {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// ParsePageList parses "1,3-5, 9" into [1 3 4 5 9]. Empty input yields nil.
func ParsePageList(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(field, "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, apperr.Input(err, "invalid page %q", field)
		}
		if !isRange {
			out = append(out, a)
			continue
		}
		b, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, apperr.Input(err, "invalid page range %q", field)
		}
		if b < a {
			return nil, apperr.Input(nil, "page range %q is reversed", field)
		}
		for p := a; p <= b; p++ {
			out = append(out, p)
		}
	}
	return out, nil
}
