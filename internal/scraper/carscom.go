/**
 * @description
 * Cars.com listing source.
 * Page-indexed pagination over the shopping results endpoint. Selectors are
 * best-effort against the current markup; an unparseable page yields zero
 * candidates, never an error.
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

const carsComPageSize = 20

type CarsComSource struct {
	baseURL string
	fetcher *Fetcher
	log     *logrus.Logger
}

func NewCarsComSource(fetcher *Fetcher, log *logrus.Logger) *CarsComSource {
	return &CarsComSource{
		baseURL: "https://www.cars.com",
		fetcher: fetcher,
		log:     log,
	}
}

func (s *CarsComSource) Name() string { return "cars.com" }

// ScrapeListings paginates search results until the cap, an empty page, or a
// fetch error. Partial results survive an error.
func (s *CarsComSource) ScrapeListings(ctx context.Context, q Query) ([]Candidate, RunStats, error) {
	var all []Candidate
	stats := RunStats{}
	before := s.fetcher.Stats()

	maxPages := q.MaxResults/carsComPageSize + 1

	for page := 1; len(all) < q.MaxResults && page <= maxPages; page++ {
		body, err := s.fetcher.Fetch(ctx, s.searchURL(q, page))
		if err != nil {
			s.finish(&stats, before, len(all))
			return all, stats, fmt.Errorf("cars.com page %d: %w", page, err)
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

func (s *CarsComSource) finish(stats *RunStats, before Stats, found int) {
	after := s.fetcher.Stats()
	stats.Found = found
	stats.Requests = after.Requests - before.Requests
	stats.Errors = after.Errors - before.Errors
}

func (s *CarsComSource) searchURL(q Query, page int) string {
	params := url.Values{}
	params.Set("stock_type", "used")
	params.Add("makes[]", strings.ToLower(q.Make))
	params.Add("models[]", fmt.Sprintf("%s-%s",
		strings.ToLower(q.Make), strings.ReplaceAll(strings.ToLower(q.Model), " ", "_")))
	params.Set("maximum_distance", strconv.Itoa(q.RadiusMi))
	params.Set("zip", q.ZipCode)
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(carsComPageSize))
	params.Set("sort", "best_match_desc")
	if q.Year != nil {
		params.Set("year_min", strconv.Itoa(*q.Year))
		params.Set("year_max", strconv.Itoa(*q.Year))
	}
	return s.baseURL + "/shopping/results/?" + params.Encode()
}

// extractPage pulls every candidate from one results page
func (s *CarsComSource) extractPage(body []byte) []Candidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.log.WithError(err).Warn("cars.com: unparseable page")
		return nil
	}

	cards := doc.Find("div.vehicle-card")
	if cards.Length() == 0 {
		cards = doc.Find(`div[data-testid="listing"]`)
	}

	var out []Candidate
	cards.Each(func(_ int, card *goquery.Selection) {
		if c := s.extractListing(card); c != nil && c.Valid() {
			out = append(out, *c)
		}
	})
	return out
}

// extractListing reads one vehicle card; only price is mandatory
func (s *CarsComSource) extractListing(card *goquery.Selection) *Candidate {
	c := &Candidate{Source: s.Name()}

	c.Price = CleanPrice(firstText(card, "span.primary-price", `span[data-testid="price"]`))
	c.Mileage = CleanMileage(firstText(card, "div.mileage"))

	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		c.ListingURL = absoluteURL(s.baseURL, href)
	}
	if id, ok := card.Attr("data-listing-id"); ok {
		c.ListingID = id
	}

	c.City, c.State = splitLocation(firstText(card, "div.dealer-location"))
	c.DealerName = firstText(card, "div.dealer-name")

	if vin := firstText(card, "span.vin"); vin != "" {
		c.VIN = strings.ToUpper(vin)
	}
	if title := firstText(card, "h2.title", "h2"); title != "" {
		c.Features = map[string]string{"title": title}
	}
	c.Condition = "used"

	if c.Price == nil {
		return nil
	}
	return c
}
