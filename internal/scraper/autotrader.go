/**
 * @description
 * Autotrader listing source.
 * Offset-based pagination (firstRecord/numRecords) over the inventory search.
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

const autotraderPageSize = 25

type AutotraderSource struct {
	baseURL string
	fetcher *Fetcher
	log     *logrus.Logger
}

func NewAutotraderSource(fetcher *Fetcher, log *logrus.Logger) *AutotraderSource {
	return &AutotraderSource{
		baseURL: "https://www.autotrader.com",
		fetcher: fetcher,
		log:     log,
	}
}

func (s *AutotraderSource) Name() string { return "autotrader" }

func (s *AutotraderSource) ScrapeListings(ctx context.Context, q Query) ([]Candidate, RunStats, error) {
	var all []Candidate
	stats := RunStats{}
	before := s.fetcher.Stats()

	for first := 0; len(all) < q.MaxResults && first < q.MaxResults; first += autotraderPageSize {
		body, err := s.fetcher.Fetch(ctx, s.searchURL(q, first))
		if err != nil {
			s.finish(&stats, before, len(all))
			return all, stats, fmt.Errorf("autotrader offset %d: %w", first, err)
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

func (s *AutotraderSource) finish(stats *RunStats, before Stats, found int) {
	after := s.fetcher.Stats()
	stats.Found = found
	stats.Requests = after.Requests - before.Requests
	stats.Errors = after.Errors - before.Errors
}

func (s *AutotraderSource) searchURL(q Query, firstRecord int) string {
	params := url.Values{}
	params.Set("makeCodeList", strings.ToUpper(q.Make))
	params.Set("modelCodeList", strings.ReplaceAll(strings.ToUpper(q.Model), " ", ""))
	params.Set("zip", q.ZipCode)
	params.Set("searchRadius", strconv.Itoa(q.RadiusMi))
	params.Set("firstRecord", strconv.Itoa(firstRecord))
	params.Set("numRecords", strconv.Itoa(autotraderPageSize))
	params.Set("sortBy", "relevance")
	if q.Year != nil {
		params.Set("startYear", strconv.Itoa(*q.Year))
		params.Set("endYear", strconv.Itoa(*q.Year))
	}
	return s.baseURL + "/cars-for-sale/all-cars?" + params.Encode()
}

func (s *AutotraderSource) extractPage(body []byte) []Candidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.log.WithError(err).Warn("autotrader: unparseable page")
		return nil
	}

	cards := doc.Find(`div[data-cmp="inventoryListing"]`)
	if cards.Length() == 0 {
		cards = doc.Find("div.inventory-listing")
	}

	var out []Candidate
	cards.Each(func(_ int, card *goquery.Selection) {
		if c := s.extractListing(card); c != nil && c.Valid() {
			out = append(out, *c)
		}
	})
	return out
}

func (s *AutotraderSource) extractListing(card *goquery.Selection) *Candidate {
	c := &Candidate{Source: s.Name()}

	c.Price = CleanPrice(firstText(card, "span.first-price", `span[data-cmp="firstPrice"]`))
	c.Mileage = CleanMileage(firstText(card, "span.mileage", `div[data-cmp="mileageSpecification"]`))

	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		c.ListingURL = absoluteURL(s.baseURL, href)
	}
	if id, ok := card.Attr("data-listing-id"); ok {
		c.ListingID = id
	}

	c.City, c.State = splitLocation(firstText(card, "div.dealer-location"))
	c.DealerName = firstText(card, `div[data-cmp="sellerName"]`)
	c.Condition = "used"

	if title := firstText(card, "h3", "h2"); title != "" {
		c.Features = map[string]string{"title": title}
	}

	if c.Price == nil {
		return nil
	}
	return c
}
