package fetcher

import (
	"context"
	"fmt"
	"io"
	mathrand "math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"imovelworker/helpers"
	"imovelworker/internal/extractor"
	"imovelworker/internal/listing"
	"imovelworker/logger"
	"imovelworker/pkg/errors"
	"imovelworker/services/cache"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher retrieves one page of raw listing records. It is the only component
// that performs network I/O; the engine treats it as a black box, so fixture
// implementations are interchangeable with the HTTP one.
type Fetcher interface {
	// FetchPage retrieves the raw records of a 1-based page index
	FetchPage(ctx context.Context, page int) ([]listing.RawRecord, error)

	// Portal returns the portal name for logging and identification
	Portal() string
}

// FieldSelector locates one labeled field inside a listing card.
type FieldSelector struct {
	Selector string
	Attr     string // empty means element text
}

// FieldHandler customizes extraction for fields a plain selector cannot
// express (for example distinguishing IPTU from condo fee rows).
type FieldHandler func(*goquery.Selection) string

// PortalConfig describes how to walk and read one portal's result pages.
type PortalConfig struct {
	Name         string
	URL          string // entry URL, filter parameters included
	SiteRoot     string // prefix for resolving relative links
	PageParam    string // pagination query parameter, appended for page > 1
	CardSelector string
	Fields       map[string]FieldSelector
	CustomFields map[string]FieldHandler
	IDPattern    *regexp.Regexp
	FallbackID   bool
	City         string
	State        string
	BlockKey     string
	BlockTime    time.Duration
}

// PageURL builds the URL for a 1-based page index.
func (c PortalConfig) PageURL(page int) string {
	if page <= 1 {
		return c.URL
	}
	sep := "?"
	if strings.Contains(c.URL, "?") {
		sep = "&"
	}
	return c.URL + sep + c.PageParam + "=" + strconv.Itoa(page)
}

// ExtractorConfig returns the matching extractor configuration.
func (c PortalConfig) ExtractorConfig() extractor.Config {
	return extractor.Config{
		Portal:     c.Name,
		IDPattern:  c.IDPattern,
		FallbackID: c.FallbackID,
		City:       c.City,
		State:      c.State,
	}
}

// PortalFetcher implements Fetcher over HTTP with goquery. A rate-limit
// response arms a block key in the cache service; while the key lives,
// fetches fail transiently without touching the portal.
type PortalFetcher struct {
	cfg       PortalConfig
	cacheSvc  cache.CacheService
	fetchFunc func(url string) (io.Reader, error)
	delayMin  time.Duration
	delayMax  time.Duration
	log       *logger.Logger
	fetched   bool
}

// NewPortalFetcher creates an HTTP fetcher for a portal. delayMin/delayMax
// bound the randomized pause inserted before every fetch after the first;
// pacing is fetcher policy, not the engine's.
func NewPortalFetcher(cfg PortalConfig, cacheSvc cache.CacheService, delayMin, delayMax time.Duration) *PortalFetcher {
	return &PortalFetcher{
		cfg:       cfg,
		cacheSvc:  cacheSvc,
		fetchFunc: helpers.FetchWithRandomHeaders,
		delayMin:  delayMin,
		delayMax:  delayMax,
		log:       logger.ForPortal(cfg.Name),
	}
}

// Portal returns the portal name
func (f *PortalFetcher) Portal() string {
	return f.cfg.Name
}

// FetchPage retrieves and parses one result page into raw records.
func (f *PortalFetcher) FetchPage(ctx context.Context, page int) ([]listing.RawRecord, error) {
	if err := f.pause(ctx); err != nil {
		return nil, err
	}

	if f.blocked() {
		return nil, errors.NewFetchTransient(f.cfg.Name, "request window blocked after rate limiting", nil)
	}

	url := f.cfg.PageURL(page)
	f.log.Debug().Int("page", page).Str("url", url).Msg("Fetching page")

	body, err := f.fetchFunc(url)
	if err != nil {
		return nil, f.classify(err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, errors.NewParsing(f.cfg.Name, "failed to parse page HTML", err)
	}

	var records []listing.RawRecord
	doc.Find(f.cfg.CardSelector).Each(func(_ int, s *goquery.Selection) {
		records = append(records, f.buildRecord(s))
	})

	f.log.Debug().Int("page", page).Int("cards", len(records)).Msg("Parsed page")
	return records, nil
}

// pause applies the randomized inter-page delay, honoring cancellation.
func (f *PortalFetcher) pause(ctx context.Context) error {
	if !f.fetched {
		f.fetched = true
		return nil
	}
	if f.delayMax <= 0 {
		return nil
	}

	delay := f.delayMin
	if f.delayMax > f.delayMin {
		delay += time.Duration(mathrand.Int63n(int64(f.delayMax - f.delayMin)))
	}

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *PortalFetcher) blocked() bool {
	if f.cacheSvc == nil || f.cfg.BlockKey == "" {
		return false
	}
	_, err := f.cacheSvc.Get(f.cfg.BlockKey)
	return err == nil
}

// classify maps a raw fetch failure onto the engine's error taxonomy.
func (f *PortalFetcher) classify(err error) error {
	msg := err.Error()

	if strings.Contains(msg, "rate limited") {
		if f.cacheSvc != nil && f.cfg.BlockKey != "" {
			seconds := fmt.Sprintf("%d", int(f.cfg.BlockTime/time.Second))
			f.cacheSvc.Set(f.cfg.BlockKey, []byte(seconds), f.cfg.BlockTime)
		}
		return errors.NewFetchTransient(f.cfg.Name, "portal rate limited the session", err)
	}

	for _, code := range []string{"status code: 401", "status code: 403", "status code: 410"} {
		if strings.Contains(msg, code) {
			return errors.NewFetchPermanent(f.cfg.Name, "portal refused the session", err)
		}
	}

	return errors.NewFetchTransient(f.cfg.Name, "fetch failed", err)
}

// buildRecord reads every configured field out of one listing card.
func (f *PortalFetcher) buildRecord(s *goquery.Selection) listing.RawRecord {
	fields := make(map[string]string)

	for label, fs := range f.cfg.Fields {
		sel := s.Find(fs.Selector)
		if sel.Length() == 0 {
			continue
		}

		var value string
		if fs.Attr != "" {
			value, _ = sel.First().Attr(fs.Attr)
		} else {
			value = sel.First().Text()
		}

		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if label == extractor.URLField && strings.HasPrefix(value, "/") {
			value = f.cfg.SiteRoot + value
		}
		fields[label] = value
	}

	for label, handler := range f.cfg.CustomFields {
		if value := strings.TrimSpace(handler(s)); value != "" {
			fields[label] = value
		}
	}

	return listing.RawRecord{
		Fields: fields,
		Text:   strings.Join(strings.Fields(s.Text()), " "),
	}
}
