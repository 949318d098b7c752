package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// BuildSources constructs the default source set, one fetcher per source so each
// site's requests are throttled independently
func BuildSources(opts FetcherOptions, log *logrus.Logger) []Source {
	newFetcher := func(name string) *Fetcher {
		o := opts
		o.Name = name
		return NewFetcher(o, log)
	}
	return []Source{
		NewCarsComSource(newFetcher("cars.com"), log),
		NewAutotraderSource(newFetcher("autotrader"), log),
		NewCarGurusSource(newFetcher("cargurus"), log),
	}
}

// firstText returns the trimmed text of the first selector that matches
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if node := sel.Find(s).First(); node.Length() > 0 {
			if text := strings.TrimSpace(node.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// splitLocation parses "City, ST" into its parts; either may come back empty
func splitLocation(text string) (city, state string) {
	if text == "" {
		return "", ""
	}
	parts := strings.SplitN(text, ",", 2)
	city = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		st := strings.TrimSpace(parts[1])
		if len(st) >= 2 {
			state = strings.ToUpper(st[:2])
		}
	}
	return city, state
}

// absoluteURL resolves a scraped href against the source's base URL
func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return base + href
}
