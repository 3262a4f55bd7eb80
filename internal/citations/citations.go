// Package citations normalizes and deduplicates {title, url} pairs
// surfaced by streamed search results, inline annotations, and raw text,
// grounded on the original implementation's citations.py.
package citations

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Citation is a normalized {title, url} pair.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// trackingPrefixes are query-param key prefixes stripped during
// normalization, matched case-insensitively.
var trackingPrefixes = []string{
	"utm", "utm_", "ref", "fbclid", "gclid", "mc_cid", "mc_eid", "igshid",
}

// Normalize lowercases scheme and host, strips a leading "www.", trims a
// trailing slash from the path (an empty path becomes "/"), drops
// tracking query params, sorts the remaining params, and drops the
// fragment. It is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimSuffix(u.Path, "/")
	if path == "" {
		path = "/"
	}

	query := u.Query()
	for key := range query {
		lower := strings.ToLower(key)
		for _, prefix := range trackingPrefixes {
			if strings.HasPrefix(lower, prefix) {
				query.Del(key)
				break
			}
		}
	}

	out := url.URL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   host,
		Path:   path,
	}
	if len(query) > 0 {
		out.RawQuery = sortedQuery(query)
	}
	return out.String()
}

func sortedQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for j, v := range vals {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Dedupe normalizes every citation's URL and drops duplicates, keeping
// the first occurrence's title.
func Dedupe(cites []Citation) []Citation {
	if len(cites) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(cites))
	out := make([]Citation, 0, len(cites))
	for _, c := range cites {
		norm := Normalize(c.URL)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, Citation{Title: strings.TrimSpace(c.Title), URL: norm})
	}
	return out
}

// Merge concatenates citation lists, preserving first occurrence, and
// dedupes the result.
func Merge(lists ...[]Citation) []Citation {
	var merged []Citation
	for _, l := range lists {
		merged = append(merged, l...)
	}
	return Dedupe(merged)
}

var (
	mdLinkRe  = regexp.MustCompile(`\[([^\]]{1,256})\]\((https?://[^)\s]+)\)`)
	bareURLRe = regexp.MustCompile(`https?://[\w\-._~:/?#\[\]@!$&'(*+,;=%]+`)
)

// ExtractFromText finds both Markdown [title](url) links and bare URLs in
// text, falling back to the hostname as the title for bare URLs, then
// dedupes the result. Used when a provider streams citations only as
// inline text rather than structured annotation/search events.
func ExtractFromText(text string) []Citation {
	if text == "" {
		return nil
	}
	var out []Citation
	for _, m := range mdLinkRe.FindAllStringSubmatch(text, -1) {
		title := strings.TrimSpace(m[1])
		link := strings.TrimSpace(m[2])
		if link != "" {
			out = append(out, Citation{Title: title, URL: link})
		}
	}
	for _, link := range bareURLRe.FindAllString(text, -1) {
		out = append(out, Citation{Title: hostOf(link), URL: link})
	}
	return Dedupe(out)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
