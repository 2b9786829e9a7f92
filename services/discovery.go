package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"ktm-timetables/models"
)

const (
	// modalSelector matches the anchors that open the timetable download modal.
	modalSelector = `a[data-target="#reusemodal"]`
	downloadAttr  = "data-dl"
)

var (
	effectivePhraseRE = regexp.MustCompile(`(?i)Effective\s+(.+)`)

	weekdayKeywords = []string{"WEEKDAY", "WEEKDAYS"}
	weekendKeywords = []string{"WEEKEND", "WEEKENDS", "SATURDAY", "SUNDAY", "PUBLIC HOLIDAY"}
)

// Discoverer turns the publisher's listing page into candidate documents.
type Discoverer struct {
	ListingURL string
	Client     *http.Client
	Logger     *zap.Logger
}

// NewDiscoverer creates a Discoverer for the given listing page.
func NewDiscoverer(listingURL string, client *http.Client, logger *zap.Logger) *Discoverer {
	return &Discoverer{ListingURL: listingURL, Client: client, Logger: logger}
}

// Fetch downloads the listing page and parses it. There is no retry; the
// caller treats an error like an empty listing and ends the run.
func (d *Discoverer) Fetch(ctx context.Context) ([]models.CandidateDocument, error) {
	base, err := url.Parse(d.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing url: %w", err)
	}
	d.Logger.Info("Scraping timetable listing", zap.String("url", d.ListingURL))
	body, err := fetch(ctx, d.Client, d.ListingURL, maxListingBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	return d.ParseListing(bytes.NewReader(body), base)
}

// ParseListing extracts one candidate per download anchor of the page.
// Relative links are resolved against base.
func (d *Discoverer) ParseListing(r io.Reader, base *url.URL) ([]models.CandidateDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var docs []models.CandidateDocument
	doc.Find(modalSelector).Each(func(i int, s *goquery.Selection) {
		link, ok := s.Attr(downloadAttr)
		if !ok || strings.TrimSpace(link) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(link))
		if err != nil {
			d.Logger.Warn("Skipping anchor with unparseable link", zap.Int("anchor", i), zap.String("link", link), zap.Error(err))
			return
		}
		candidate := newCandidate(base.ResolveReference(ref).String(), anchorLabel(s), anchorTitle(s))
		d.Logger.Debug("Found timetable link",
			zap.String("title", candidate.Title),
			zap.String("url", candidate.DocumentURL),
			zap.String("schedule", string(candidate.ScheduleKind)),
			zap.String("effective", candidate.EffectiveISO()))
		docs = append(docs, candidate)
	})
	d.Logger.Info("Timetable listing parsed", zap.Int("candidates", len(docs)))
	return docs, nil
}

// newCandidate classifies the schedule kind and resolves the effective date,
// first from the "Effective ..." phrase of the title, then the whole title,
// then the document file name.
func newCandidate(link, label, title string) models.CandidateDocument {
	c := models.CandidateDocument{
		Title:        strings.ToUpper(title),
		DocumentURL:  link,
		ScheduleKind: classifySchedule(label),
	}
	if m := effectivePhraseRE.FindStringSubmatch(title); m != nil {
		c.EffectiveText = strings.TrimSpace(m[1])
	}

	var resolved ResolvedDate
	var ok bool
	if c.EffectiveText != "" {
		resolved, ok = ResolveEffectiveDate(c.EffectiveText)
	}
	if !ok && title != "" {
		resolved, ok = ResolveEffectiveDate(title)
	}
	if !ok {
		resolved, ok = DateFromURL(link)
	}
	if ok {
		d := resolved.Date
		c.EffectiveDate = &d
		if c.EffectiveText == "" {
			c.EffectiveText = resolved.Text
		}
	}
	return c
}

// classifySchedule matches the anchor label against weekday and weekend
// keywords, weekday first.
func classifySchedule(label string) models.ScheduleKind {
	label = strings.ToUpper(label)
	for _, kw := range weekdayKeywords {
		if strings.Contains(label, kw) {
			return models.ScheduleWeekdays
		}
	}
	for _, kw := range weekendKeywords {
		if strings.Contains(label, kw) {
			return models.ScheduleWeekends
		}
	}
	return models.ScheduleUnknown
}

func anchorLabel(s *goquery.Selection) string {
	for _, attr := range []string{"alt", "aria-label", "title"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func anchorTitle(s *goquery.Selection) string {
	b := s.Find("b").First()
	if b.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(b.Text()), " ")
}
