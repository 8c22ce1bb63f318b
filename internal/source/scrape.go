package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/config"
	"github.com/recallguard/recallguard-api/internal/models"
)

// siteScraper ingests recall bulletins from sites without an API. Item and
// date selectors come from configuration so new sites need no code. Listing
// pages have no stable IDs, so the external ID is a slug of the title.
type siteScraper struct {
	cfg    config.SiteConfig
	client *httpClient
	cache  *SnapshotCache
	logger zerolog.Logger
}

func NewSiteScraper(cfg config.SiteConfig, client *httpClient, cache *SnapshotCache, logger zerolog.Logger) Adapter {
	return &siteScraper{
		cfg:    cfg,
		client: client,
		cache:  cache,
		logger: logger.With().Str("source", string(models.MiscSource(cfg.Name))).Logger(),
	}
}

func (a *siteScraper) Name() models.Source { return models.MiscSource(a.cfg.Name) }

func (a *siteScraper) Fetch(ctx context.Context, cutoff time.Time, policy Policy) ([]RawRecall, error) {
	body, err := a.client.get(ctx, a.cfg.URL)
	if err != nil {
		return fallback(a.cache, a.Name(), policy, nil, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fallback(a.cache, a.Name(), policy, nil, err)
	}

	base, _ := url.Parse(a.cfg.URL)

	var raws []RawRecall
	doc.Find(a.cfg.ItemSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := collapseSpace(itemTitle(sel))
		id := Slugify(title)
		if id == "" {
			return true
		}

		date := a.itemDate(sel)
		// Listings are newest-first; the first stale item ends the scan.
		if beforeCutoff(date, cutoff) {
			return false
		}

		payload, _ := json.Marshal(map[string]string{
			"title": title,
			"url":   itemLink(sel, base),
			"date":  itemDateText(date),
			"site":  a.cfg.Name,
		})
		raws = append(raws, RawRecall{
			Source:     a.Name(),
			ExternalID: id,
			RecallDate: date,
			Payload:    payload,
		})

		// A known item still refreshes, but nothing older is new.
		return policy.Known == nil || !policy.Known(id)
	})

	a.logger.Debug().Int("items", len(raws)).Msg("scraped listing page")
	return fallback(a.cache, a.Name(), policy, dedup(raws), nil)
}

func (a *siteScraper) itemDate(sel *goquery.Selection) *time.Time {
	if a.cfg.DateSelector == "" {
		return nil
	}
	text := strings.TrimSpace(sel.Find(a.cfg.DateSelector).First().Text())
	if text == "" {
		return nil
	}
	if a.cfg.DateFormat != "" {
		if t, err := time.Parse(a.cfg.DateFormat, text); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return ParseDate(text)
}

func itemTitle(sel *goquery.Selection) string {
	if anchor := sel.Find("a").First(); anchor.Length() > 0 {
		if text := strings.TrimSpace(anchor.Text()); text != "" {
			return text
		}
	}
	return strings.TrimSpace(sel.Text())
}

func itemLink(sel *goquery.Selection, base *url.URL) string {
	href, ok := sel.Find("a").First().Attr("href")
	if !ok {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String()
}

func itemDateText(date *time.Time) string {
	if date == nil {
		return ""
	}
	return date.Format("2006-01-02")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

const slugMaxLen = 80

// Slugify derives a stable external ID from an item title.
func Slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= slugMaxLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}
