package extractor

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"imovelworker/internal/listing"
	"imovelworker/pkg/errors"
)

// Raw record field labels the portal fetchers produce. Any of them may be
// absent; only URLField (for the id) and PriceField are required for a record
// to survive extraction.
const (
	URLField      = "url"
	TitleField    = "title"
	PriceField    = "price"
	CondoFeeField = "condo_fee"
	IPTUField     = "iptu"
	BedroomsField = "bedrooms"
	BathsField    = "bathrooms"
	ParkingField  = "parking_spaces"
	AreaField     = "area"
	LocationField = "location"
	DateField     = "date"
)

var (
	priceRe = regexp.MustCompile(`R\$\s*([\d.,]+)`)
	digitRe = regexp.MustCompile(`\d+`)
)

// Config describes how to extract listings for one portal.
type Config struct {
	Portal string
	// IDPattern pulls the portal-assigned listing id out of the listing URL;
	// first capture group is the id.
	IDPattern *regexp.Regexp
	// FallbackID enables the content-hash id when IDPattern finds nothing.
	// Hash ids are a weaker identity: two distinct listings with identical
	// title, price and neighborhood collide.
	FallbackID bool
	// City/State fill in listings whose location text carries neither.
	City  string
	State string
}

// Extractor turns raw records into validated listings. It is a pure function
// of its input plus the clock; re-extracting a record yields an identical
// listing except CollectedAt.
type Extractor struct {
	cfg Config
	now func() time.Time
}

// New creates an extractor for a portal configuration.
func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg, now: time.Now}
}

// NewAt creates an extractor with an explicit clock.
func NewAt(cfg Config, now func() time.Time) *Extractor {
	return &Extractor{cfg: cfg, now: now}
}

// Extract produces a validated listing from a raw record, or a typed
// extraction rejection. A record without a resolvable id or parseable price
// is rejected; all other fields are best-effort.
func (e *Extractor) Extract(rec listing.RawRecord, sourcePage int) (*listing.Listing, error) {
	url := strings.TrimSpace(rec.Field(URLField))

	id := e.extractID(url)
	if id == "" && e.cfg.FallbackID {
		id = e.hashID(rec)
	}
	if id == "" {
		return nil, errors.NewExtraction(e.cfg.Portal, "no listing id resolvable from record")
	}

	price, ok := ParsePrice(rec.Field(PriceField))
	if !ok {
		return nil, errors.NewExtraction(e.cfg.Portal, fmt.Sprintf("listing %s has no parseable price", id))
	}

	l := &listing.Listing{
		ID:          id,
		Portal:      e.cfg.Portal,
		URL:         url,
		Title:       strings.TrimSpace(rec.Field(TitleField)),
		Price:       price,
		City:        e.cfg.City,
		State:       e.cfg.State,
		CollectedAt: e.now(),
		SourcePage:  sourcePage,
	}

	l.PropertyType = PropertyType(l.Title)

	if v, ok := ParseCount(rec.Field(BedroomsField)); ok {
		l.Bedrooms = &v
	}
	if v, ok := ParseCount(rec.Field(BathsField)); ok {
		l.Bathrooms = &v
	}
	if v, ok := ParseCount(rec.Field(ParkingField)); ok {
		l.ParkingSpaces = &v
	}
	if v, ok := ParseCount(rec.Field(AreaField)); ok {
		l.Area = &v
	}

	if v, ok := ParsePrice(rec.Field(CondoFeeField)); ok {
		l.CondoFee = &v
	}
	if v, ok := ParsePrice(rec.Field(IPTUField)); ok {
		l.IPTU = &v
	}

	if neighborhood, city := SplitLocation(rec.Field(LocationField)); neighborhood != "" || city != "" {
		l.Neighborhood = neighborhood
		if city != "" {
			l.City = city
		}
	}

	// Derived only when both inputs are present and area is positive
	if l.Area != nil && *l.Area > 0 {
		perSqm := math.Round(price / float64(*l.Area) * 100) / 100
		l.PricePerSqm = &perSqm
	}

	l.TotalCost = price
	if l.CondoFee != nil {
		l.TotalCost += *l.CondoFee
	}
	if l.IPTU != nil {
		l.TotalCost += *l.IPTU
	}

	if date, ok := ParseListingDate(rec.Field(DateField), e.now()); ok {
		l.ListingDate = date
	}

	return l, nil
}

func (e *Extractor) extractID(url string) string {
	if url == "" || e.cfg.IDPattern == nil {
		return ""
	}
	m := e.cfg.IDPattern.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// hashID builds a content-hash identity from the record's stable text fields.
func (e *Extractor) hashID(rec listing.RawRecord) string {
	basis := strings.Join([]string{
		e.cfg.Portal,
		strings.TrimSpace(rec.Field(TitleField)),
		strings.TrimSpace(rec.Field(PriceField)),
		strings.TrimSpace(rec.Field(LocationField)),
	}, "|")
	if basis == e.cfg.Portal+"|||" {
		return ""
	}
	sum := sha1.Sum([]byte(basis))
	return "h_" + hex.EncodeToString(sum[:])[:16]
}

// ParsePrice extracts a non-negative amount from Brazilian price text such as
// "R$ 1.234,56" or "Condomínio: R$ 450". Grouping dots are stripped before
// the decimal comma is normalized, so "R$ 1.234" parses as 1234, never 1.234.
func ParsePrice(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}

	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	clean := strings.ReplaceAll(m[1], ".", "")
	clean = strings.Replace(clean, ",", ".", 1)

	value, err := strconv.ParseFloat(clean, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// ParseCount extracts a small integer from quantity text such as "3 quartos"
// or "120m²". Grouping dots are removed first.
func ParseCount(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	m := digitRe.FindString(strings.ReplaceAll(text, ".", ""))
	if m == "" {
		return 0, false
	}
	value, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return value, true
}

// PropertyType infers the property type from title keywords.
func PropertyType(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "apartamento"), strings.Contains(lower, "apto"), strings.Contains(lower, "ap."):
		return "apartamento"
	case strings.Contains(lower, "casa"), strings.Contains(lower, "sobrado"):
		return "casa"
	}
	return ""
}

// SplitLocation splits portal location text ("Cidade, Bairro") into
// neighborhood and city.
func SplitLocation(text string) (neighborhood, city string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	parts := strings.Split(text, ",")
	city = strings.TrimSpace(parts[0])
	if len(parts) >= 2 {
		neighborhood = strings.TrimSpace(parts[1])
	}
	return neighborhood, city
}

var months = map[string]time.Month{
	"jan": time.January, "janeiro": time.January,
	"fev": time.February, "fevereiro": time.February,
	"mar": time.March, "março": time.March,
	"abr": time.April, "abril": time.April,
	"mai": time.May, "maio": time.May,
	"jun": time.June, "junho": time.June,
	"jul": time.July, "julho": time.July,
	"ago": time.August, "agosto": time.August,
	"set": time.September, "setembro": time.September,
	"out": time.October, "outubro": time.October,
	"nov": time.November, "novembro": time.November,
	"dez": time.December, "dezembro": time.December,
}

var (
	daysAgoRe  = regexp.MustCompile(`(\d+)\s*dias?`)
	weeksAgoRe = regexp.MustCompile(`(\d+)\s*semanas?`)
	monthsRe   = regexp.MustCompile(`(\d+)\s*m[eê]s`)
	dayMonthRe = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})`)
)

// ParseListingDate normalizes Portuguese relative date text ("hoje", "ontem",
// "5 de jul, 09:39", "há 3 dias", "12/07") to DD/MM/YYYY relative to now.
func ParseListingDate(text string, now time.Time) (string, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}

	// Drop a trailing time component ("5 de jul, 09:39")
	if idx := strings.Index(text, ","); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}

	var date time.Time
	switch {
	case strings.Contains(text, "hoje"):
		date = now
	case strings.Contains(text, "anteontem"):
		date = now.AddDate(0, 0, -2)
	case strings.Contains(text, "ontem"):
		date = now.AddDate(0, 0, -1)
	case strings.Contains(text, " de "):
		parts := strings.SplitN(text, " de ", 2)
		day, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return "", false
		}
		month, ok := months[strings.TrimSpace(parts[1])]
		if !ok {
			return "", false
		}
		date = time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location())
		if date.After(now) {
			date = date.AddDate(-1, 0, 0)
		}
	case strings.Contains(text, "dia"):
		m := daysAgoRe.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		days, _ := strconv.Atoi(m[1])
		date = now.AddDate(0, 0, -days)
	case strings.Contains(text, "semana"):
		weeks := 1
		if m := weeksAgoRe.FindStringSubmatch(text); m != nil {
			weeks, _ = strconv.Atoi(m[1])
		}
		date = now.AddDate(0, 0, -7*weeks)
	case strings.Contains(text, "mês"), strings.Contains(text, "mes"):
		count := 1
		if m := monthsRe.FindStringSubmatch(text); m != nil {
			count, _ = strconv.Atoi(m[1])
		}
		date = now.AddDate(0, 0, -30*count)
	default:
		m := dayMonthRe.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return "", false
		}
		date = time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
		if date.After(now) {
			date = date.AddDate(-1, 0, 0)
		}
	}

	return date.Format("02/01/2006"), true
}
