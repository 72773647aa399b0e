package capture

import (
	"net/url"
	"strings"
)

// DefaultSkipSchemes are browser-internal schemes that are never recorded.
var DefaultSkipSchemes = []string{
	"about",
	"chrome",
	"chrome-extension",
	"chrome-search",
	"devtools",
	"edge",
	"file",
	"moz-extension",
	"safari-web-extension",
	"view-source",
}

// Filter decides which visited URLs qualify for recording.
type Filter struct {
	schemes map[string]struct{}
	domains []string
}

// NewFilter builds a filter. A nil skipSchemes uses DefaultSkipSchemes;
// denyDomains match the host itself and any subdomain.
func NewFilter(skipSchemes, denyDomains []string) *Filter {
	if skipSchemes == nil {
		skipSchemes = DefaultSkipSchemes
	}
	f := &Filter{schemes: make(map[string]struct{}, len(skipSchemes))}
	for _, s := range skipSchemes {
		f.schemes[strings.ToLower(strings.TrimSuffix(s, ":"))] = struct{}{}
	}
	for _, d := range denyDomains {
		d = strings.ToLower(strings.Trim(d, ". "))
		if d != "" {
			f.domains = append(f.domains, d)
		}
	}
	return f
}

// Allow reports whether rawURL should be recorded.
func (f *Filter) Allow(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return false
	}
	if _, skip := f.schemes[strings.ToLower(u.Scheme)]; skip {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range f.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return false
		}
	}
	return true
}
