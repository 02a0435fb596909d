package generic

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	reVolChapter  = regexp.MustCompile(`vol(?:ume)?[_\-\s.]*0*(\d+)[/_\-\s.]*(?:ch|chapter)[_\-\s.]*0*(\d+(?:\.\d+)?)`)
	reChapterDash = regexp.MustCompile(`chapter[_\-]?0*(\d+)(?:[_\-](\d+))?`)
	reChSimple    = regexp.MustCompile(`(?:^|[/\-_])ch[_\-.]?0*(\d+(?:\.\d+)?)`)
	rePlainNumber = regexp.MustCompile(`[/\-](\d+(?:\.\d+)?)(?:$|[/\-_])`)
	reTitleLead   = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*[.\- ]`)
	reTitleChap   = regexp.MustCompile(`(?i)(?:vol(?:ume)?\.?\s*(\d+)\s*)?(?:chapter|ch)\.?[_\-\s]*0*(\d+)(?:\s*[.\-]\s*(\d+))?`)

	reLikelyChapter = regexp.MustCompile(`(?:^|[-_/])(?:ch|chapter)[-_]?\d+`)
)

type chapterNumber struct {
	number float64
	volume *float64
}

type chapterMatcher func(href, title string) (chapterNumber, bool)

// Ordered from most to least specific.
var chapterMatchers = []chapterMatcher{
	matchVolumeChapter,
	matchChapterDash,
	matchChapterSimple,
	matchPlainNumber,
	matchTitleLead,
	matchTitleChapter,
}

// parseChapterLink extracts a chapter number from a link. href is expected
// to be lower case.
func parseChapterLink(href, title string) (chapterNumber, bool) {
	if !looksLikeChapterLink(href, title) || excludedLink(href) {
		return chapterNumber{}, false
	}

	for _, m := range chapterMatchers {
		if n, ok := m(href, title); ok {
			return n, true
		}
	}
	return chapterNumber{}, false
}

func looksLikeChapterLink(href, title string) bool {
	if reLikelyChapter.MatchString(href) || reVolChapter.MatchString(href) || reChSimple.MatchString(href) {
		return true
	}

	t := strings.ToLower(strings.TrimSpace(title))
	return strings.HasPrefix(t, "ch ") || strings.HasPrefix(t, "ch.") || strings.HasPrefix(t, "chapter ")
}

func excludedLink(href string) bool {
	return strings.Contains(href, "/u/") || strings.Contains(href, "/user/") || strings.Contains(href, "comment")
}

func matchVolumeChapter(href, _ string) (chapterNumber, bool) {
	m := reVolChapter.FindStringSubmatch(href)
	if m == nil {
		return chapterNumber{}, false
	}
	vol := parseFloat(m[1])
	return chapterNumber{number: parseFloat(m[2]), volume: &vol}, true
}

// matchChapterDash reads "chapter-10-5" as chapter 10.5.
func matchChapterDash(href, _ string) (chapterNumber, bool) {
	m := reChapterDash.FindStringSubmatch(href)
	if m == nil {
		return chapterNumber{}, false
	}
	s := m[1]
	if m[2] != "" {
		s += "." + m[2]
	}
	return chapterNumber{number: parseFloat(s)}, true
}

func matchChapterSimple(href, _ string) (chapterNumber, bool) {
	m := reChSimple.FindStringSubmatch(href)
	if m == nil {
		return chapterNumber{}, false
	}
	return chapterNumber{number: parseFloat(m[1])}, true
}

func matchPlainNumber(href, _ string) (chapterNumber, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return chapterNumber{}, false
	}
	m := rePlainNumber.FindStringSubmatch(u.Path)
	if m == nil {
		return chapterNumber{}, false
	}
	return chapterNumber{number: parseFloat(m[1])}, true
}

func matchTitleLead(_, title string) (chapterNumber, bool) {
	m := reTitleLead.FindStringSubmatch(title)
	if m == nil {
		return chapterNumber{}, false
	}
	return chapterNumber{number: parseFloat(m[1])}, true
}

func matchTitleChapter(_, title string) (chapterNumber, bool) {
	m := reTitleChap.FindStringSubmatch(title)
	if m == nil {
		return chapterNumber{}, false
	}

	s := m[2]
	if m[3] != "" {
		s += "." + m[3]
	}
	n := chapterNumber{number: parseFloat(s)}
	if m[1] != "" {
		vol := parseFloat(m[1])
		n.volume = &vol
	}
	return n, true
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return base
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return u.String()
	}

	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}
