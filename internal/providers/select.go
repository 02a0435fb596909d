package providers

import (
	"fmt"
	"strconv"
	"strings"
)

// Selection narrows a chapter list by chapter number. Only one of the fields
// is used, checked in declaration order; the zero value selects everything.
type Selection struct {
	Chapter string // a single number, or a chapter name
	Range   string // "from-to", inclusive
	List    string // "n,m,..."
}

func (s Selection) IsZero() bool {
	return s.Chapter == "" && s.Range == "" && s.List == ""
}

func (s Selection) Apply(all []Chapter) ([]Chapter, error) {
	switch {
	case s.Chapter != "":
		return selectOne(all, strings.TrimSpace(s.Chapter)), nil
	case s.Range != "":
		return selectRange(all, s.Range)
	case s.List != "":
		return selectList(all, s.List)
	}
	return all, nil
}

// Filter returns a predicate over chapters reporting membership in the
// selection.
func (s Selection) Filter(all []Chapter) (func(Chapter) bool, error) {
	if s.IsZero() {
		return func(Chapter) bool { return true }, nil
	}

	picked, err := s.Apply(all)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(picked))
	for _, c := range picked {
		set[c.Name] = true
	}
	return func(c Chapter) bool { return set[c.Name] }, nil
}

func selectOne(all []Chapter, want string) []Chapter {
	var out []Chapter
	if n, err := strconv.ParseFloat(want, 64); err == nil {
		for _, c := range all {
			if c.Number == n {
				out = append(out, c)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	for _, c := range all {
		if strings.EqualFold(c.Name, want) {
			out = append(out, c)
		}
	}
	return out
}

func selectRange(all []Chapter, rng string) ([]Chapter, error) {
	from, to, ok := strings.Cut(rng, "-")
	if !ok {
		return nil, fmt.Errorf("invalid range %q: want from-to", rng)
	}

	start, err1 := strconv.ParseFloat(strings.TrimSpace(from), 64)
	end, err2 := strconv.ParseFloat(strings.TrimSpace(to), 64)
	if err1 != nil || err2 != nil || start > end {
		return nil, fmt.Errorf("invalid range %q", rng)
	}

	var out []Chapter
	for _, c := range all {
		if c.Number >= start && c.Number <= end {
			out = append(out, c)
		}
	}
	return out, nil
}

func selectList(all []Chapter, list string) ([]Chapter, error) {
	want := map[float64]bool{}
	for p := range strings.SplitSeq(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chapter number %q in list", p)
		}
		want[n] = true
	}

	var out []Chapter
	for _, c := range all {
		if want[c.Number] {
			out = append(out, c)
		}
	}
	return out, nil
}
