/**
 * @description
 * CarGurus listing source.
 * Page-indexed pagination over the per-model search path. CarGurus exposes a deal
 * rating per card; it rides along in the feature bag.
 *
 * @dependencies
 * - github.com/PuerkitoBio/goquery
 * - backend/internal/scraper (Fetcher)
 */

package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

type CarGurusSource struct {
	baseURL string
	fetcher *Fetcher
	log     *logrus.Logger
}

func NewCarGurusSource(fetcher *Fetcher, log *logrus.Logger) *CarGurusSource {
	return &CarGurusSource{
		baseURL: "https://www.cargurus.com",
		fetcher: fetcher,
		log:     log,
	}
}

func (s *CarGurusSource) Name() string { return "cargurus" }

func (s *CarGurusSource) ScrapeListings(ctx context.Context, q Query) ([]Candidate, RunStats, error) {
	var all []Candidate
	stats := RunStats{}
	before := s.fetcher.Stats()

	for page := 1; len(all) < q.MaxResults; page++ {
		body, err := s.fetcher.Fetch(ctx, s.searchURL(q, page))
		if err != nil {
			s.finish(&stats, before, len(all))
			return all, stats, fmt.Errorf("cargurus page %d: %w", page, err)
		}
		stats.Pages++

		cands := s.extractPage(body)
		if len(cands) == 0 {
			break
		}
		all = append(all, cands...)
	}

	all = DedupeBatch(all)
	if len(all) > q.MaxResults {
		all = all[:q.MaxResults]
	}
	s.finish(&stats, before, len(all))
	return all, stats, nil
}

func (s *CarGurusSource) finish(stats *RunStats, before Stats, found int) {
	after := s.fetcher.Stats()
	stats.Found = found
	stats.Requests = after.Requests - before.Requests
	stats.Errors = after.Errors - before.Errors
}

func (s *CarGurusSource) searchURL(q Query, page int) string {
	makeModel := strings.ToLower(strings.ReplaceAll(q.Make+"-"+q.Model, " ", "-"))

	params := url.Values{}
	params.Set("zip", q.ZipCode)
	params.Set("distance", strconv.Itoa(q.RadiusMi))
	params.Set("page", strconv.Itoa(page))
	if q.Year != nil {
		params.Set("startYear", strconv.Itoa(*q.Year))
		params.Set("endYear", strconv.Itoa(*q.Year))
	}
	return s.baseURL + "/Cars/" + makeModel + "?" + params.Encode()
}

func (s *CarGurusSource) extractPage(body []byte) []Candidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.log.WithError(err).Warn("cargurus: unparseable page")
		return nil
	}

	cards := doc.Find("div.listing-row")
	if cards.Length() == 0 {
		cards = doc.Find(`div[data-cg-ft="srp-listing-blade"]`)
	}

	var out []Candidate
	cards.Each(func(_ int, card *goquery.Selection) {
		if c := s.extractListing(card); c != nil && c.Valid() {
			out = append(out, *c)
		}
	})
	return out
}

func (s *CarGurusSource) extractListing(card *goquery.Selection) *Candidate {
	c := &Candidate{Source: s.Name()}

	c.Price = CleanPrice(firstText(card, "span.price", "h4.price-section"))
	c.Mileage = CleanMileage(firstText(card, "p.mileage", "span.mileage"))

	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		c.ListingURL = absoluteURL(s.baseURL, href)
	}

	c.City, c.State = splitLocation(firstText(card, "p.dealer-location"))
	c.Condition = "used"

	features := map[string]string{}
	if title := firstText(card, "h4", "h3"); title != "" {
		features["title"] = title
	}
	if deal := firstText(card, "span.deal-rating"); deal != "" {
		features["deal_rating"] = deal
	}
	if len(features) > 0 {
		c.Features = features
	}

	if c.Price == nil {
		return nil
	}
	return c
}
