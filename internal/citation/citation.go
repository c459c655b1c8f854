// Package citation extracts and normalizes source references from engine
// response HTML and text. Engines cite their sources as anchors, bare
// URLs, or plain domain mentions; all three feed brand-visibility
// attribution.
package citation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ellipsesearch/visibility-worker/internal/domain"
)

// excludedDomains are infrastructure hosts that engines link to but that
// never count as citations.
var excludedDomains = map[string]struct{}{
	"openai.com":       {},
	"chatgpt.com":      {},
	"chat.openai.com":  {},
	"perplexity.ai":    {},
	"gemini.google.com": {},
	"grok.com":         {},
	"x.ai":             {},
	"googleusercontent.com": {},
	"gstatic.com":           {},
	"w3.org":                {},
	"localhost":             {},
}

var (
	// urlPattern matches bare URLs inside response text.
	urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

	// domainPattern matches plain domain mentions like "example.com" or
	// "docs.example.co.uk" without a scheme.
	domainPattern = regexp.MustCompile(`\b(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}\b`)
)

// ExtractFromHTML pulls cited sources out of a response HTML fragment.
// Anchors win: they carry both URL and link text. Returns nil on
// unparseable input rather than an error; citation extraction is best
// effort.
func ExtractFromHTML(html string) []domain.Source {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var sources []domain.Source
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		src, ok := sourceFromURL(href)
		if !ok {
			return
		}
		src.Title = strings.TrimSpace(sel.Text())
		sources = append(sources, src)
	})

	return MergeSources(sources, nil)
}

// ExtractFromText finds bare URLs and plain domain mentions in response
// text. Domain mentions yield a source with an https URL synthesized from
// the domain.
func ExtractFromText(text string) []domain.Source {
	var sources []domain.Source

	stripped := text
	for _, raw := range urlPattern.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,;:!?")
		if src, ok := sourceFromURL(raw); ok {
			sources = append(sources, src)
		}
		stripped = strings.ReplaceAll(stripped, raw, " ")
	}

	// Plain mentions, matched only against what is left after removing
	// full URLs so each citation counts once.
	for _, mention := range domainPattern.FindAllString(strings.ToLower(stripped), -1) {
		d := NormalizeDomain(mention)
		if d == "" || isExcluded(d) {
			continue
		}
		sources = append(sources, domain.Source{
			URL:    "https://" + d,
			Domain: d,
		})
	}

	return MergeSources(sources, nil)
}

// Extract combines HTML and text extraction, deduplicated by URL.
func Extract(html, text string) []domain.Source {
	return MergeSources(ExtractFromHTML(html), ExtractFromText(text))
}

// MergeSources merges two source lists keyed by URL, keeping first
// occurrence order. Merging is by full URL, never by domain: two distinct
// pages on one site are two citations.
func MergeSources(a, b []domain.Source) []domain.Source {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]domain.Source, 0, len(a)+len(b))
	for _, src := range append(append([]domain.Source{}, a...), b...) {
		key := strings.TrimSuffix(src.URL, "/")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, src)
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// NormalizeDomain lowercases a host and strips a leading "www." so domain
// comparison is stable.
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if !strings.Contains(host, ".") {
		return ""
	}
	return host
}

// MentionsDomain reports whether the text cites the given brand domain,
// either as a URL or a plain mention.
func MentionsDomain(text, brandDomain string) bool {
	want := NormalizeDomain(brandDomain)
	if want == "" {
		return false
	}
	for _, src := range ExtractFromText(text) {
		if src.Domain == want {
			return true
		}
	}
	return false
}

// sourceFromURL parses a raw URL into a Source, rejecting non-http
// schemes, fragments-only links, and excluded infrastructure hosts.
func sourceFromURL(raw string) (domain.Source, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.Source{}, false
	}

	d := NormalizeDomain(u.Hostname())
	if d == "" || isExcluded(d) {
		return domain.Source{}, false
	}

	return domain.Source{URL: u.String(), Domain: d}, true
}

// isExcluded checks the host and its registrable suffixes against the
// exclusion set, so "lh3.googleusercontent.com" is caught by its parent.
func isExcluded(d string) bool {
	for {
		if _, ok := excludedDomains[d]; ok {
			return true
		}
		i := strings.Index(d, ".")
		if i < 0 || !strings.Contains(d[i+1:], ".") {
			return false
		}
		d = d[i+1:]
	}
}
