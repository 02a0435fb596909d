package generic

import (
	"net/url"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	reImageExt   = regexp.MustCompile(`(?i)\.(jpe?g|png|webp|gif|avif)$`)
	reSizeSuffix = regexp.MustCompile(`[-_](\d{2,5})x(\d{2,5})`)
	reCSSURL     = regexp.MustCompile(`url\(\s*["']?([^"')]+)["']?\s*\)`)
	reLooseURL   = regexp.MustCompile(`https?://[^\s"'<>\\]+`)
)

// Substrings of image URLs that are site chrome rather than pages.
var chromeHints = []string{"logo", "cover", "profile", "avatar", "banner", "icon", "sprite"}

type candidate struct {
	url   string
	index int // data-index of the element, -1 when absent
	seq   int // discovery order
}

// pageCollector gathers page image candidates from several passes over a
// chapter document and reduces them to one URL per page.
type pageCollector struct {
	allowed *regexp.Regexp
	found   []candidate
	seen    map[string]bool
}

func newPageCollector(allowExt []string) *pageCollector {
	return &pageCollector{
		allowed: extPattern(allowExt),
		seen:    map[string]bool{},
	}
}

func extPattern(exts []string) *regexp.Regexp {
	var clean []string
	for _, e := range exts {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e != "" {
			clean = append(clean, regexp.QuoteMeta(e))
		}
	}
	if len(clean) == 0 {
		return reImageExt
	}
	return regexp.MustCompile(`(?i)\.(` + strings.Join(clean, "|") + `)$`)
}

func (c *pageCollector) add(raw string, index int) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || c.seen[raw] {
		return false
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "javascript:") {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil || !c.allowed.MatchString(u.Path) {
		return false
	}
	for _, hint := range chromeHints {
		if strings.Contains(lower, hint) {
			return false
		}
	}

	c.seen[raw] = true
	c.found = append(c.found, candidate{url: raw, index: index, seq: len(c.found)})
	return true
}

// scanDocument runs every DOM pass and reports how many candidates it added.
func (c *pageCollector) scanDocument(doc *goquery.Selection, base string) int {
	before := len(c.found)

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		idx := elementIndex(img)
		if ss, ok := img.Attr("srcset"); ok {
			c.addSrcset(ss, base, idx)
		}
		for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
			if v, ok := img.Attr(attr); ok {
				c.add(resolveURL(base, v), idx)
			}
		}
	})

	doc.Find("source[srcset]").Each(func(_ int, src *goquery.Selection) {
		ss, _ := src.Attr("srcset")
		c.addSrcset(ss, base, elementIndex(src))
	})

	doc.Find("[style]").Each(func(_ int, el *goquery.Selection) {
		style, _ := el.Attr("style")
		if !strings.Contains(strings.ToLower(style), "background") {
			return
		}
		idx := elementIndex(el)
		for _, m := range reCSSURL.FindAllStringSubmatch(style, -1) {
			c.add(resolveURL(base, m[1]), idx)
		}
	})

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "http") || strings.HasPrefix(href, "/") || strings.HasPrefix(href, "./") {
			c.add(resolveURL(base, href), elementIndex(a))
		}
	})

	return len(c.found) - before
}

func (c *pageCollector) addSrcset(srcset, base string, idx int) {
	for part := range strings.SplitSeq(srcset, ",") {
		fields := strings.Fields(part)
		if len(fields) > 0 {
			c.add(resolveURL(base, fields[0]), idx)
		}
	}
}

// scanState walks decoded JSON state (Nuxt, Next and similar) for image URLs
// and embedded HTML fragments.
func (c *pageCollector) scanState(v any, base string) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			c.add(s, -1)
			return
		}
		if looksLikeHTML(s) {
			if frag, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
				c.scanDocument(frag.Selection, base)
			}
		}
	case []any:
		for _, x := range t {
			c.scanState(x, base)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			c.scanState(t[k], base)
		}
	}
}

func (c *pageCollector) scanText(body string) int {
	before := len(c.found)
	for _, u := range reLooseURL.FindAllString(body, -1) {
		c.add(u, -1)
	}
	return len(c.found) - before
}

// pages groups candidates that are size variants of one image, keeps the
// best variant of each group and orders the result by data-index, then by
// discovery.
func (c *pageCollector) pages() []string {
	type group struct {
		best  candidate
		area  int
		plain bool
		index int
		seq   int
	}

	groups := map[string]*group{}
	var order []*group

	for _, it := range c.found {
		key := sizeless(it.url)
		w, h := sizeOf(it.url)
		plain := w == 0 && h == 0

		g, ok := groups[key]
		if !ok {
			g = &group{best: it, area: w * h, plain: plain, index: it.index, seq: it.seq}
			groups[key] = g
			order = append(order, g)
			continue
		}

		// An unsized URL is the original and beats every resized one.
		switch {
		case g.plain:
		case plain:
			g.best, g.plain = it, true
		case w*h > g.area:
			g.best, g.area = it, w*h
		}
		if it.index >= 0 && (g.index < 0 || it.index < g.index) {
			g.index = it.index
		}
	}

	slices.SortStableFunc(order, func(a, b *group) int {
		switch {
		case a.index >= 0 && b.index >= 0 && a.index != b.index:
			return a.index - b.index
		case a.index >= 0 && b.index < 0:
			return -1
		case a.index < 0 && b.index >= 0:
			return 1
		}
		return a.seq - b.seq
	})

	out := make([]string, 0, len(order))
	for _, g := range order {
		out = append(out, g.best.url)
	}
	return out
}

func sizeless(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	ext := path.Ext(u.Path)
	stem := reSizeSuffix.ReplaceAllString(strings.TrimSuffix(u.Path, ext), "")
	return u.Host + strings.TrimRight(stem, "-_") + ext
}

func sizeOf(raw string) (int, int) {
	m := reSizeSuffix.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return w, h
}

func elementIndex(sel *goquery.Selection) int {
	if n, ok := indexAttr(sel); ok {
		return n
	}
	if n, ok := indexAttr(sel.ParentsFiltered("[data-index]").First()); ok {
		return n
	}
	return -1
}

func indexAttr(sel *goquery.Selection) (int, bool) {
	v, ok := sel.Attr("data-index")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	return n, err == nil
}

func looksLikeHTML(s string) bool {
	for _, tag := range []string{"<img", "<picture", "<source", "<div", "<a "} {
		if strings.Contains(s, tag) {
			return true
		}
	}
	return false
}
