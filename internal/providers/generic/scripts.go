package generic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	reNuxtState = regexp.MustCompile(`(?s)window\.__NUXT__\s*=\s*(\{.*?\});`)

	reScriptVar  = regexp.MustCompile(`(?m)(?:var|let|const)\s+([A-Za-z0-9_]+)\s*=\s*["']?([\w\-/.]+)["']?;`)
	reScriptPath = regexp.MustCompile(`["'](/[A-Za-z0-9/\-._]+)["']`)
	reScriptCall = regexp.MustCompile(`(?:fetch|axios|post|get)\s*\(\s*["']([^"']+)["']`)
)

// scanEmbeddedState feeds JSON page state embedded by SSR frameworks to the
// collector.
func scanEmbeddedState(doc *goquery.Document, body string, base string, c *pageCollector) {
	if m := reNuxtState.FindStringSubmatch(body); m != nil {
		var state any
		if json.Unmarshal([]byte(m[1]), &state) == nil {
			c.scanState(state, base)
		}
	}

	doc.Find(`script[type="application/json"], script#__NEXT_DATA__`).Each(func(_ int, s *goquery.Selection) {
		var state any
		if json.Unmarshal([]byte(s.Text()), &state) == nil {
			c.scanState(state, base)
		}
	})
}

// endpointCandidates guesses XHR endpoints that return chapter images from
// the inline scripts of doc: literal fetch targets, plus chapter-ish paths
// joined with id-like variables.
func endpointCandidates(doc *goquery.Document) []string {
	var code strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		code.WriteString(s.Text())
		code.WriteByte('\n')
	})
	js := code.String()

	vars := map[string]string{}
	for _, m := range reScriptVar.FindAllStringSubmatch(js, -1) {
		vars[m[1]] = m[2]
	}

	var out []string
	seen := map[string]bool{}
	push := func(u string) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	for _, m := range reScriptPath.FindAllStringSubmatch(js, -1) {
		p := m[1]
		if !strings.Contains(p, "chap") || !strings.HasSuffix(p, "/") {
			continue
		}
		for k, v := range vars {
			if strings.Contains(strings.ToLower(k), "id") {
				push(p + v)
			}
		}
	}
	for _, m := range reScriptCall.FindAllStringSubmatch(js, -1) {
		push(m[1])
	}

	return out
}

// probeEndpoints requests every candidate endpoint, POST first, and scans
// any JSON that comes back.
func (s *Scraper) probeEndpoints(ctx context.Context, base string, candidates []string, c *pageCollector) {
	for _, path := range candidates {
		target := resolveURL(base, path)
		s.log.Debugf("probing %s\n", target)

		body, ok := s.fetchXHR(ctx, http.MethodPost, target, base)
		if !ok {
			body, ok = s.fetchXHR(ctx, http.MethodGet, target, base)
		}
		if !ok || !strings.HasPrefix(strings.TrimSpace(body), "{") {
			continue
		}

		var state any
		if json.Unmarshal([]byte(body), &state) == nil {
			c.scanState(state, base)
		}
	}
}

func (s *Scraper) fetchXHR(ctx context.Context, method, target, referer string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", referer)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		s.log.Debugf("read %s: %v\n", target, err)
		return "", false
	}
	return string(b), true
}
